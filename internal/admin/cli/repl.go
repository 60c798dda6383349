package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

const helpText = `Available commands:
  pending                  list payments awaiting verification
  event <slug>             list registrations for an event
  lookup <email> <slug>    show one registration
  verify <paymentId>       mark a payment verified
  reject <paymentId>       mark a payment rejected
  settings                 list all settings
  get <key>                show one setting
  set <key> <json>         create or update a setting
  delete <key>             delete a setting
  exit | quit              leave the console`

// execIface is the command surface the REPL dispatches to.
type execIface interface {
	Pending(ctx context.Context) error
	Event(ctx context.Context, slug string) error
	Lookup(ctx context.Context, email, slug string) error
	SetStatus(ctx context.Context, paymentID, status string) error
	ListSettings(ctx context.Context) error
	GetSetting(ctx context.Context, key string) error
	SetSetting(ctx context.Context, key, value string) error
	DeleteSetting(ctx context.Context, key string) error
}

// runREPL reads one command per line until EOF or exit. Command errors are
// printed and the loop continues.
func runREPL(ctx context.Context, a execIface, scanner *bufio.Scanner, w io.Writer) {
	for {
		fmt.Fprint(w, "devsoc> ")
		if !scanner.Scan() {
			return
		}
		line := scanner.Text()
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		var err error
		switch cmd {
		case "help":
			fmt.Fprintln(w, helpText)

		case "pending":
			err = a.Pending(ctx)

		case "event":
			if len(args) != 1 {
				fmt.Fprintln(w, "Usage: event <slug>")
				continue
			}
			err = a.Event(ctx, args[0])

		case "lookup":
			if len(args) != 2 {
				fmt.Fprintln(w, "Usage: lookup <email> <slug>")
				continue
			}
			err = a.Lookup(ctx, args[0], args[1])

		case "verify", "reject":
			if len(args) != 1 {
				fmt.Fprintf(w, "Usage: %s <paymentId>\n", cmd)
				continue
			}
			status := "verified"
			if cmd == "reject" {
				status = "rejected"
			}
			err = a.SetStatus(ctx, args[0], status)

		case "settings":
			err = a.ListSettings(ctx)

		case "get":
			if len(args) != 1 {
				fmt.Fprintln(w, "Usage: get <key>")
				continue
			}
			err = a.GetSetting(ctx, args[0])

		case "set":
			if len(args) < 2 {
				fmt.Fprintln(w, "Usage: set <key> <json>")
				continue
			}
			err = a.SetSetting(ctx, args[0], restAfter(line, 2))

		case "delete":
			if len(args) != 1 {
				fmt.Fprintln(w, "Usage: delete <key>")
				continue
			}
			err = a.DeleteSetting(ctx, args[0])

		case "exit", "quit":
			fmt.Fprintln(w, "Bye!")
			return

		default:
			fmt.Fprintln(w, "Unknown command:", cmd)
			continue
		}

		if err != nil {
			fmt.Fprintln(w, "Error:", err)
		}
	}
}

// restAfter returns line with its first n fields removed, keeping the
// spacing of what remains.
func restAfter(line string, n int) string {
	rest := strings.TrimLeft(line, " \t")
	for i := 0; i < n; i++ {
		idx := strings.IndexAny(rest, " \t")
		if idx < 0 {
			return ""
		}
		rest = strings.TrimLeft(rest[idx:], " \t")
	}
	return rest
}
