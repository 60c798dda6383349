package ratelimit

import (
	"context"

	"github.com/devsoc/devsoc-backend/internal/logging"
)

// FailOpen wraps a Limiter so that backend errors admit the request.
type FailOpen struct {
	next Limiter
	log  logging.Logger
}

func NewFailOpen(next Limiter, log logging.Logger) *FailOpen {
	return &FailOpen{next: next, log: log.With("module", "ratelimit")}
}

func (f *FailOpen) Allow(ctx context.Context, key string) (bool, error) {
	ok, err := f.next.Allow(ctx, key)
	if err != nil {
		f.log.Warn(ctx, "rate limiter unavailable, allowing request", "key", key, "error", err)
		return true, nil
	}
	return ok, nil
}
