package config

import (
	"flag"
	"os"
	"time"

	"github.com/devsoc/devsoc-backend/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
//	-a string   base URL of the registration server
//	-t int      request timeout in seconds
func parseFlags(c *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-t"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&c.ServerURL, "a", c.ServerURL, "registration server URL")
	timeout := fs.Int("t", int(c.RequestTimeout.Seconds()), "request timeout (in seconds)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	c.RequestTimeout = time.Duration(*timeout) * time.Second
}
