// Package operation models a round trip to a backend as pending, success or failure,
// independent of whether the call is real or simulated.
package operation

import (
	"context"
	"errors"
	"strategy-desk/internal/notify"
	"time"
)

// ErrSimulatedFailure is returned by a Simulated operation configured to fail.
var ErrSimulatedFailure = errors.New("simulated failure")

// Operation is one call whose outcome the user waits for.
type Operation interface {
	Run(ctx context.Context) error
}

// Func adapts a function to Operation.
type Func func(ctx context.Context) error

func (f Func) Run(ctx context.Context) error { return f(ctx) }

// Simulated waits for Delay and then succeeds, or fails when Fail is set.
type Simulated struct {
	Delay time.Duration
	Fail  bool
}

func (s Simulated) Run(ctx context.Context) error {
	timer := time.NewTimer(s.Delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	}
	if s.Fail {
		return ErrSimulatedFailure
	}
	return nil
}

// Then runs op and, when it succeeds, fn. The combined operation reports the first error.
func Then(op Operation, fn func() error) Operation {
	return Func(func(ctx context.Context) error {
		if err := op.Run(ctx); err != nil {
			return err
		}
		return fn()
	})
}

// Phase is the state of a tracked operation.
type Phase string

const (
	PhasePending Phase = "pending"
	PhaseSuccess Phase = "success"
	PhaseFailure Phase = "failure"
)

// Result is the settled outcome of a tracked operation.
type Result struct {
	Phase   Phase  `json:"phase"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// OK reports whether the operation succeeded.
func (r Result) OK() bool { return r.Phase == PhaseSuccess }

// Messages are the texts shown for each phase. An empty Pending skips the pending notification.
type Messages struct {
	Pending string
	Success string
	Failure string
}

// Track runs op, emitting a notification when it starts and when it settles.
func Track(ctx context.Context, op Operation, msgs Messages, n notify.Notifier) Result {
	if msgs.Pending != "" {
		notify.Send(n, notify.Pending, msgs.Pending)
	}

	if err := op.Run(ctx); err != nil {
		notify.Send(n, notify.Failure, msgs.Failure)
		return Result{Phase: PhaseFailure, Message: msgs.Failure, Err: err}
	}

	notify.Send(n, notify.Success, msgs.Success)
	return Result{Phase: PhaseSuccess, Message: msgs.Success}
}
