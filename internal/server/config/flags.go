package config

import (
	"flag"
	"os"
	"time"

	"github.com/devsoc/devsoc-backend/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-d string   PostgreSQL DSN
//	-s string   admin shared secret
//	-u string   S3 access key
//	-p string   S3 secret key
//	-b string   S3 bucket
//	-g string   S3 region
//	-e string   S3 base endpoint
//	-r string   Redis address
//	-k string   Kafka brokers, comma separated
//	-l int      registration attempts per window and IP
//	-i int      reconciliation interval, minutes
func parseFlags(c *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d", "-s", "-u", "-p", "-b", "-g", "-e", "-r", "-k", "-l", "-i"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&c.HTTPAddr, "a", c.HTTPAddr, "address and port to run server")
	fs.StringVar(&c.DatabaseDSN, "d", c.DatabaseDSN, "database DSN")
	fs.StringVar(&c.AdminSecret, "s", c.AdminSecret, "admin secret")
	fs.StringVar(&c.S3AccessKey, "u", c.S3AccessKey, "S3 access key")
	fs.StringVar(&c.S3SecretKey, "p", c.S3SecretKey, "S3 secret key")
	fs.StringVar(&c.S3Bucket, "b", c.S3Bucket, "S3 bucket")
	fs.StringVar(&c.S3Region, "g", c.S3Region, "S3 region")
	fs.StringVar(&c.S3BaseEndpoint, "e", c.S3BaseEndpoint, "S3 base endpoint")
	fs.StringVar(&c.RedisAddr, "r", c.RedisAddr, "redis address")
	brokers := fs.String("k", "", "kafka brokers")
	fs.IntVar(&c.RateLimitMax, "l", c.RateLimitMax, "registration attempts per window")
	interval := fs.Int("i", int(c.ReconcileInterval.Minutes()), "reconcile interval (in minutes)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "k":
			c.KafkaBrokers = splitList(*brokers)
		case "i":
			c.ReconcileInterval = time.Duration(*interval) * time.Minute
		}
	})
}
