package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/devsoc/devsoc-backend/internal/flagx"
	"github.com/joho/godotenv"
)

// parseEnv overlays Config with environment variables. A dotenv file named by
// -env (or ./.env when present) is loaded first; variables already set in the
// process environment win over the file.
func parseEnv(c *Config) {
	file := flagx.EnvFileFlags()
	if file != "" {
		if err := godotenv.Load(file); err != nil {
			panic(err)
		}
	} else {
		// a missing .env is the normal production case
		_ = godotenv.Load()
	}

	setString(&c.HTTPAddr, "HTTP_ADDR")
	setString(&c.DatabaseDSN, "DATABASE_DSN")
	setString(&c.AdminSecret, "ADMIN_SECRET")
	setString(&c.S3AccessKey, "S3_ACCESS_KEY")
	setString(&c.S3SecretKey, "S3_SECRET_KEY")
	setString(&c.S3Bucket, "S3_BUCKET")
	setString(&c.S3Region, "S3_REGION")
	setString(&c.S3BaseEndpoint, "S3_BASE_ENDPOINT")
	setString(&c.S3PublicBaseURL, "S3_PUBLIC_BASE_URL")
	setString(&c.RedisAddr, "REDIS_ADDR")
	setString(&c.RedisPassword, "REDIS_PASSWORD")
	setInt(&c.RedisDB, "REDIS_DB")
	setList(&c.KafkaBrokers, "KAFKA_BROKERS")
	setString(&c.KafkaTopic, "KAFKA_TOPIC")
	setInt(&c.RateLimitMax, "RATE_LIMIT_MAX")
	setDuration(&c.RateLimitWindow, "RATE_LIMIT_WINDOW")
	setDuration(&c.SagaStaleAfter, "SAGA_STALE_AFTER")
	setDuration(&c.ReconcileInterval, "RECONCILE_INTERVAL")
	setList(&c.CORSOrigins, "CORS_ORIGINS")
	setString(&c.LogLevel, "LOG_LEVEL")
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			panic(err)
		}
		*dst = n
	}
}

func setDuration(dst *time.Duration, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			panic(err)
		}
		*dst = d
	}
}

func setList(dst *[]string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = splitList(v)
	}
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
