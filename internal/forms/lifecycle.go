// Package forms drives the add/edit strategy, API connection and support forms through
// validation and a tracked submission.
package forms

import (
	"context"
	"errors"
	"strategy-desk/internal/notify"
	"strategy-desk/internal/operation"
	"sync"

	"github.com/qmuntal/stateless"
	"go.uber.org/zap"
)

var (
	// ErrBusy is returned when a form is submitted while a previous submission is still pending.
	ErrBusy = errors.New("form submission already in progress")
	// ErrNotFound is returned when a form is opened for a record that does not exist.
	ErrNotFound = errors.New("record not found")
)

// State is a step of the form lifecycle.
type State string

const (
	StateIdle       State = "idle"
	StateValidating State = "validating"
	StateInvalid    State = "idle_with_errors"
	StateSubmitting State = "submitting"
	StateSettled    State = "settled"
)

const (
	triggerSubmit = "submit"
	triggerValid  = "valid"
	triggerReject = "reject"
	triggerSettle = "settle"
	triggerReset  = "reset"
)

// lifecycle is the state machine shared by every form:
// idle -> validating -> (idle_with_errors | submitting -> settled).
type lifecycle struct {
	name    string
	logger  *zap.Logger
	mu      sync.Mutex
	machine *stateless.StateMachine
}

func newLifecycle(name string, logger *zap.Logger) *lifecycle {
	m := stateless.NewStateMachine(StateIdle)

	m.Configure(StateIdle).
		Permit(triggerSubmit, StateValidating).
		Ignore(triggerReset)
	m.Configure(StateValidating).
		Permit(triggerValid, StateSubmitting).
		Permit(triggerReject, StateInvalid)
	m.Configure(StateInvalid).
		Permit(triggerSubmit, StateValidating).
		Permit(triggerReset, StateIdle)
	m.Configure(StateSubmitting).
		Permit(triggerSettle, StateSettled)
	m.Configure(StateSettled).
		Permit(triggerSubmit, StateValidating).
		Permit(triggerReset, StateIdle)

	m.OnTransitioned(func(_ context.Context, t stateless.Transition) {
		logger.Debug("form transition",
			zap.String("form", name),
			zap.Any("from", t.Source),
			zap.Any("to", t.Destination),
			zap.Any("trigger", t.Trigger))
	})

	return &lifecycle{name: name, logger: logger, machine: m}
}

// begin moves the form into validating. It fails with ErrBusy while a submission runs.
func (l *lifecycle) begin() error {
	return l.fire(triggerSubmit)
}

func (l *lifecycle) fire(trigger string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.machine.Fire(trigger); err != nil {
		return ErrBusy
	}
	return nil
}

// submission is what a form hands the lifecycle once its values pass validation.
type submission struct {
	op   operation.Operation
	msgs operation.Messages
}

// submit runs one pass of the lifecycle. prepare runs once the form is known not to be busy;
// it validates the values and returns the operation to track.
func (l *lifecycle) submit(ctx context.Context, prepare func() (submission, error), n notify.Notifier) (operation.Result, error) {
	if err := l.begin(); err != nil {
		return operation.Result{}, err
	}

	sub, err := prepare()
	if err != nil {
		l.advance(triggerReject)
		l.logger.Debug("form rejected", zap.String("form", l.name), zap.Error(err))
		return operation.Result{}, err
	}
	l.advance(triggerValid)

	res := operation.Track(ctx, sub.op, sub.msgs, n)
	l.advance(triggerSettle)
	if !res.OK() {
		l.logger.Warn("form submission failed", zap.String("form", l.name), zap.Error(res.Err))
		return res, res.Err
	}
	return res, nil
}

// advance fires a transition the form itself drives. These cannot be refused in a correct flow.
func (l *lifecycle) advance(trigger string) {
	if err := l.fire(trigger); err != nil {
		l.logger.Error("form transition refused", zap.String("form", l.name), zap.String("trigger", trigger))
	}
}

func (l *lifecycle) state() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.machine.MustState().(State)
}
