// Package saga runs a sequence of named steps and, when one fails, undoes
// the steps that already completed by running their compensations in
// reverse order.
package saga

import (
	"context"
	"errors"
	"fmt"

	"github.com/devsoc/devsoc-backend/internal/logging"
)

// Step is one unit of work with an optional compensation. Compensate is
// only invoked if Do returned nil.
type Step struct {
	Name       string
	Do         func(ctx context.Context) error
	Compensate func(ctx context.Context) error
}

// Saga is an ordered list of steps. It is not safe for concurrent Execute
// calls; build one per operation.
type Saga struct {
	name  string
	steps []Step
	log   logging.Logger
}

func New(name string, log logging.Logger) *Saga {
	return &Saga{name: name, log: log.With("saga", name)}
}

// AddStep appends a step and returns the saga for chaining.
func (s *Saga) AddStep(step Step) *Saga {
	s.steps = append(s.steps, step)
	return s
}

// Error reports the failed step. It unwraps to the step's own error, so
// callers classify it with errors.Is exactly as if the step had been
// called directly. Compensation failures never replace the original cause.
type Error struct {
	Step         string
	Err          error
	Compensation error
}

func (e *Error) Error() string {
	if e.Compensation != nil {
		return fmt.Sprintf("step %s: %v (compensation: %v)", e.Step, e.Err, e.Compensation)
	}
	return fmt.Sprintf("step %s: %v", e.Step, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Execute runs every step in order. On the first failure the completed
// steps are compensated newest first and a *Error is returned.
// Compensations run on a context detached from ctx cancellation.
func (s *Saga) Execute(ctx context.Context) error {
	for i, step := range s.steps {
		s.log.Debug(ctx, "saga step started", "step", step.Name)

		if err := step.Do(ctx); err != nil {
			s.log.Warn(ctx, "saga step failed", "step", step.Name, "error", err)
			return &Error{
				Step:         step.Name,
				Err:          err,
				Compensation: s.compensate(context.WithoutCancel(ctx), i),
			}
		}
	}
	return nil
}

// compensate undoes steps [0, failed) in reverse and joins their errors.
func (s *Saga) compensate(ctx context.Context, failed int) error {
	var errs []error
	for i := failed - 1; i >= 0; i-- {
		step := s.steps[i]
		if step.Compensate == nil {
			continue
		}
		if err := step.Compensate(ctx); err != nil {
			s.log.Error(ctx, "saga compensation failed", "step", step.Name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", step.Name, err))
			continue
		}
		s.log.Info(ctx, "saga step compensated", "step", step.Name)
	}
	return errors.Join(errs...)
}
