package config

import (
	"encoding/json"
	"os"

	"github.com/devsoc/devsoc-backend/internal/flagx"
	"github.com/devsoc/devsoc-backend/internal/timex"
)

// JsonConfig is the on-disk shape of the CLI configuration file.
type JsonConfig struct {
	ServerURL      string         `json:"server_url"`
	AdminSecret    string         `json:"admin_secret"`
	RequestTimeout timex.Duration `json:"request_timeout"`
}

func parseJson(c *Config) {
	path := flagx.JSONConfigFlags()
	if path == "" {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	var jc JsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.ServerURL != "" {
		c.ServerURL = jc.ServerURL
	}
	if jc.AdminSecret != "" {
		c.AdminSecret = jc.AdminSecret
	}
	if jc.RequestTimeout.Duration != 0 {
		c.RequestTimeout = jc.RequestTimeout.Duration
	}
}
