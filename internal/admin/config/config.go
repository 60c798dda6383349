// Package config loads settings for the admin CLI: defaults, then
// environment (optionally seeded from a .env file), then a JSON file, then
// command-line flags.
package config

import (
	"os"
	"time"

	"github.com/devsoc/devsoc-backend/internal/flagx"
	"github.com/joho/godotenv"
)

// Config holds runtime settings for the admin CLI.
//
// Fields:
//   - ServerURL: base URL of the registration server.
//   - AdminSecret: shared admin secret. When empty the CLI prompts for it.
//   - RequestTimeout: per-request HTTP timeout.
type Config struct {
	ServerURL      string
	AdminSecret    string
	RequestTimeout time.Duration
}

func (c *Config) LoadDefaults() {
	c.ServerURL = "http://127.0.0.1:8080"
	c.RequestTimeout = 10 * time.Second
}

func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseEnv(cfg)
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}

func parseEnv(c *Config) {
	if file := flagx.EnvFileFlags(); file != "" {
		if err := godotenv.Load(file); err != nil {
			panic(err)
		}
	} else {
		_ = godotenv.Load()
	}

	if v := os.Getenv("DEVSOC_SERVER_URL"); v != "" {
		c.ServerURL = v
	}
	if v := os.Getenv("ADMIN_SECRET"); v != "" {
		c.AdminSecret = v
	}
	if v := os.Getenv("DEVSOC_REQUEST_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			panic(err)
		}
		c.RequestTimeout = d
	}
}
