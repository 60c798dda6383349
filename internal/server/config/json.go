package config

import (
	"encoding/json"
	"os"

	"github.com/devsoc/devsoc-backend/internal/flagx"
	"github.com/devsoc/devsoc-backend/internal/timex"
)

// JsonConfig is the on-disk shape of the configuration file. Duration fields
// accept either "15m" style strings or integer nanoseconds. Only non-zero
// values override what earlier layers produced.
type JsonConfig struct {
	HTTPAddr          string         `json:"http_addr"`
	DatabaseDSN       string         `json:"database_dsn"`
	AdminSecret       string         `json:"admin_secret"`
	S3AccessKey       string         `json:"s3_access_key"`
	S3SecretKey       string         `json:"s3_secret_key"`
	S3Bucket          string         `json:"s3_bucket"`
	S3Region          string         `json:"s3_region"`
	S3BaseEndpoint    string         `json:"s3_base_endpoint"`
	S3PublicBaseURL   string         `json:"s3_public_base_url"`
	RedisAddr         string         `json:"redis_addr"`
	RedisPassword     string         `json:"redis_password"`
	RedisDB           int            `json:"redis_db"`
	KafkaBrokers      []string       `json:"kafka_brokers"`
	KafkaTopic        string         `json:"kafka_topic"`
	RateLimitMax      int            `json:"rate_limit_max"`
	RateLimitWindow   timex.Duration `json:"rate_limit_window"`
	SagaStaleAfter    timex.Duration `json:"saga_stale_after"`
	ReconcileInterval timex.Duration `json:"reconcile_interval"`
	CORSOrigins       []string       `json:"cors_origins"`
	LogLevel          string         `json:"log_level"`
}

// parseJson loads the file named by -c/-config into c. A missing flag means
// no file; an unreadable or malformed file panics.
func parseJson(c *Config) {
	path := flagx.JSONConfigFlags()
	if path == "" {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	j := &JsonConfig{}
	if err := json.Unmarshal(data, j); err != nil {
		panic(err)
	}

	overlay(&c.HTTPAddr, j.HTTPAddr)
	overlay(&c.DatabaseDSN, j.DatabaseDSN)
	overlay(&c.AdminSecret, j.AdminSecret)
	overlay(&c.S3AccessKey, j.S3AccessKey)
	overlay(&c.S3SecretKey, j.S3SecretKey)
	overlay(&c.S3Bucket, j.S3Bucket)
	overlay(&c.S3Region, j.S3Region)
	overlay(&c.S3BaseEndpoint, j.S3BaseEndpoint)
	overlay(&c.S3PublicBaseURL, j.S3PublicBaseURL)
	overlay(&c.RedisAddr, j.RedisAddr)
	overlay(&c.RedisPassword, j.RedisPassword)
	overlay(&c.RedisDB, j.RedisDB)
	overlay(&c.KafkaTopic, j.KafkaTopic)
	overlay(&c.RateLimitMax, j.RateLimitMax)
	overlay(&c.RateLimitWindow, j.RateLimitWindow.Duration)
	overlay(&c.SagaStaleAfter, j.SagaStaleAfter.Duration)
	overlay(&c.ReconcileInterval, j.ReconcileInterval.Duration)
	overlay(&c.LogLevel, j.LogLevel)
	if len(j.KafkaBrokers) > 0 {
		c.KafkaBrokers = j.KafkaBrokers
	}
	if len(j.CORSOrigins) > 0 {
		c.CORSOrigins = j.CORSOrigins
	}
}

func overlay[T comparable](dst *T, v T) {
	var zero T
	if v != zero {
		*dst = v
	}
}
