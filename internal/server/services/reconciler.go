package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/devsoc/devsoc-backend/internal/logging"
	"github.com/devsoc/devsoc-backend/internal/server/assets"
)

const reconcileBatch = 100

// Reconciler compensates registration sagas that never reached a terminal
// state, typically because the process died mid-registration.
type Reconciler struct {
	store      *RegistrationStore
	assets     assets.Host
	staleAfter time.Duration
	log        logging.Logger
	now        func() time.Time
}

func NewReconciler(store *RegistrationStore, host assets.Host, staleAfter time.Duration, log logging.Logger) *Reconciler {
	return &Reconciler{
		store:      store,
		assets:     host,
		staleAfter: staleAfter,
		log:        log.With("module", "reconciler"),
		now:        time.Now,
	}
}

// SweepResult counts what a single sweep did.
type SweepResult struct {
	Compensated int
	Failed      int
}

// Sweep compensates every saga untouched for longer than staleAfter. A saga
// that cannot be compensated keeps its journal row with the last error and
// is retried on the next sweep.
func (r *Reconciler) Sweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult

	cutoff := r.now().Add(-r.staleAfter)
	stale, err := r.store.repomanager.Sagas(r.store.db).ListStale(ctx, cutoff, reconcileBatch)
	if err != nil {
		return res, fmt.Errorf("error listing stale sagas: %w", err)
	}

	for _, rec := range stale {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}

		var errs []error
		if rec.AssetID != "" {
			if err := r.assets.Delete(ctx, rec.AssetID); err != nil {
				errs = append(errs, fmt.Errorf("delete asset: %w", err))
			}
		}
		// The journal row survives while the asset is still on the host.
		dropJournal := len(errs) == 0
		if err := r.store.deleteRegistration(ctx, rec.UserID, rec.PaymentID, dropJournal); err != nil {
			errs = append(errs, fmt.Errorf("delete registration: %w", err))
		}

		if len(errs) > 0 {
			res.Failed++
			cause := errors.Join(errs...)
			r.log.Warn(ctx, "saga not compensated", "saga_id", rec.ID, "state", rec.State, "error", cause)
			if err := r.store.recordSagaFailure(ctx, rec.ID, rec.AssetID, cause); err != nil {
				r.log.Error(ctx, "saga failure not journaled", "saga_id", rec.ID, "error", err)
			}
			continue
		}

		res.Compensated++
		r.log.Info(ctx, "stale saga compensated", "saga_id", rec.ID, "state", rec.State, "payment_id", rec.PaymentID)
	}

	return res, nil
}

// Run sweeps on every tick until ctx is cancelled.
// A non-positive interval disables sweeping.
func (r *Reconciler) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		r.log.Warn(ctx, "reconciler disabled", "interval", interval)
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			res, err := r.Sweep(ctx)
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					r.log.Error(ctx, "reconcile sweep failed", "error", err)
				}
				continue
			}
			if res.Compensated > 0 || res.Failed > 0 {
				r.log.Info(ctx, "reconcile sweep done", "compensated", res.Compensated, "failed", res.Failed)
			}
		}
	}
}
