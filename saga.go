package credentials

import (
	"context"
	"fmt"
	"time"
)

type sagaStep struct {
	name       string
	action     func(ctx context.Context) error
	compensate func(ctx context.Context) error
}

// saga runs steps in order. When a step fails the compensations of the
// completed steps run in reverse and the failing step is reported.
// Compensations run detached from the caller's cancellation, bounded by
// timeout when set.
type saga struct {
	steps   []sagaStep
	logger  Logger
	timeout time.Duration
}

func (s *saga) add(name string, action, compensate func(ctx context.Context) error) *saga {
	s.steps = append(s.steps, sagaStep{name: name, action: action, compensate: compensate})
	return s
}

func (s *saga) run(ctx context.Context) error {
	done := make([]sagaStep, 0, len(s.steps))

	for _, step := range s.steps {
		if err := step.action(ctx); err != nil {
			s.rollback(ctx, done)
			return &sagaStepError{step: step.name, err: err}
		}
		done = append(done, step)
	}

	return nil
}

func (s *saga) rollback(ctx context.Context, done []sagaStep) {
	ctx = context.WithoutCancel(ctx)
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	for i := len(done) - 1; i >= 0; i-- {
		step := done[i]
		if step.compensate == nil {
			continue
		}
		if err := step.compensate(ctx); err != nil {
			s.logger.Error("saga compensation failed", "step", step.name, "error", err)
		}
	}
}

type sagaStepError struct {
	step string
	err  error
}

func (e *sagaStepError) Error() string {
	return fmt.Sprintf("%s: %v", e.step, e.err)
}

func (e *sagaStepError) Unwrap() error {
	return e.err
}
