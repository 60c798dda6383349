package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/devsoc/devsoc-backend/internal/server/models"
)

const timeLayout = "2006-01-02 15:04"

func (a *App) table() *tabwriter.Writer {
	return tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
}

func (a *App) Pending(ctx context.Context) error {
	payments, err := a.api.PendingPayments(ctx)
	if err != nil {
		return err
	}
	if len(payments) == 0 {
		fmt.Fprintln(a.out, "No pending payments")
		return nil
	}

	tw := a.table()
	fmt.Fprintln(tw, "PAYMENT\tEVENT\tEMAIL\tTXN\tAMOUNT\tCREATED\tPROOF")
	for _, p := range payments {
		email := ""
		if p.User != nil {
			email = p.User.Email
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			p.ID, p.EventSlug, email, p.TransactionID, p.Amount.StringFixed(2), p.CreatedAt.Local().Format(timeLayout), p.ScreenshotURL)
	}
	return tw.Flush()
}

func (a *App) Event(ctx context.Context, slug string) error {
	regs, err := a.api.EventRegistrations(ctx, slug)
	if err != nil {
		return err
	}
	if len(regs) == 0 {
		fmt.Fprintf(a.out, "No registrations for %s\n", slug)
		return nil
	}

	tw := a.table()
	fmt.Fprintln(tw, "NAME\tROLL\tEMAIL\tPHONE\tSTATUS\tREGISTERED")
	for _, r := range regs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.Name, r.Roll, r.Email, r.Phone, paymentStatus(r.Payment), r.RegisteredAt.Local().Format(timeLayout))
	}
	return tw.Flush()
}

func paymentStatus(p *models.Payment) string {
	if p == nil {
		return "-"
	}
	return string(p.Status)
}

func (a *App) Lookup(ctx context.Context, email, slug string) error {
	r, err := a.api.LookupRegistration(ctx, email, slug)
	if err != nil {
		return err
	}

	tw := a.table()
	fmt.Fprintf(tw, "Name:\t%s\n", r.Name)
	fmt.Fprintf(tw, "Roll:\t%s\n", r.Roll)
	fmt.Fprintf(tw, "Email:\t%s\n", r.Email)
	fmt.Fprintf(tw, "Phone:\t%s\n", r.Phone)
	fmt.Fprintf(tw, "Department:\t%s (%s)\n", r.Department, r.Year)
	fmt.Fprintf(tw, "Event:\t%s\n", r.EventTitle)
	fmt.Fprintf(tw, "Registered:\t%s\n", r.RegisteredAt.Local().Format(timeLayout))
	if p := r.Payment; p != nil {
		fmt.Fprintf(tw, "Payment:\t%s (%s)\n", p.ID, p.Status)
		fmt.Fprintf(tw, "Transaction:\t%s\n", p.TransactionID)
		fmt.Fprintf(tw, "Proof:\t%s\n", p.ScreenshotURL)
		if p.VerifiedAt != nil {
			fmt.Fprintf(tw, "Verified:\t%s by %s\n", p.VerifiedAt.Local().Format(timeLayout), p.VerifiedBy)
		}
	}
	return tw.Flush()
}

func (a *App) SetStatus(ctx context.Context, paymentID, status string) error {
	msg, err := a.api.UpdatePaymentStatus(ctx, paymentID, models.PaymentStatus(status), actor)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, msg)
	return nil
}

func (a *App) ListSettings(ctx context.Context) error {
	settings, err := a.api.Settings(ctx)
	if err != nil {
		return err
	}
	if len(settings) == 0 {
		fmt.Fprintln(a.out, "No settings")
		return nil
	}

	tw := a.table()
	fmt.Fprintln(tw, "KEY\tVALUE\tUPDATED")
	for _, s := range settings {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", s.Key, s.Value, formatTime(s.UpdatedAt))
	}
	return tw.Flush()
}

func (a *App) GetSetting(ctx context.Context, key string) error {
	s, err := a.api.Setting(ctx, key)
	if err != nil {
		return err
	}

	var pretty any
	out := []byte(s.Value)
	if json.Unmarshal(s.Value, &pretty) == nil {
		if b, err := json.MarshalIndent(pretty, "", "  "); err == nil {
			out = b
		}
	}

	fmt.Fprintf(a.out, "%s\n%s\n", s.Key, out)
	if s.Description != "" {
		fmt.Fprintln(a.out, s.Description)
	}
	return nil
}

// SetSetting sends value as JSON when it parses, otherwise as a string.
func (a *App) SetSetting(ctx context.Context, key, value string) error {
	raw := json.RawMessage(value)
	if !json.Valid(raw) {
		b, err := json.Marshal(value)
		if err != nil {
			return err
		}
		raw = b
	}

	msg, err := a.api.SetSetting(ctx, key, raw, "")
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, msg)
	return nil
}

func (a *App) DeleteSetting(ctx context.Context, key string) error {
	msg, err := a.api.DeleteSetting(ctx, key)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, msg)
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(timeLayout)
}
