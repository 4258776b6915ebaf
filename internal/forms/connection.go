package forms

import (
	"context"
	"fmt"
	"strategy-desk/internal/exchange"
	"strategy-desk/internal/models"
	"strategy-desk/internal/notify"
	"strategy-desk/internal/operation"
	"strategy-desk/internal/validation"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const (
	msgConnectionAdded   = "API connection added successfully!"
	msgConnectionFailed  = "Failed to add API connection. Please try again."
	msgConnectionRemoved = "API connection removed successfully!"
	msgRemoveFailed      = "Failed to remove API connection. Please try again."
	msgTesting           = "Testing connection..."
	msgTestSucceeded     = "Connection successful!"
	msgTestFailed        = "Failed to connect. Please check your API credentials."
)

// ConnectionStore is what the connection form reads and writes.
type ConnectionStore interface {
	FindConnection(id string) (models.APIConnection, bool)
	AddConnection(conn models.APIConnection) (models.APIConnection, error)
	DeleteConnection(id string) (models.APIConnection, error)
}

// ConnectionHandlers are the typed handlers of the API connection form.
type ConnectionHandlers struct {
	Add    func(ctx context.Context, draft models.APIConnectionDraft) error
	Delete func(ctx context.Context, id string) error
}

// ConnectionFromDraft converts form values into a stored connection.
func ConnectionFromDraft(d models.APIConnectionDraft) models.APIConnection {
	return models.APIConnection{
		Exchange:       models.ExchangeName(d.Exchange),
		APIKey:         d.APIKey,
		APISecret:      d.APISecret,
		TelegramChatID: d.TelegramChatID,
	}
}

// StoreConnectionHandlers returns handlers that write through to store.
func StoreConnectionHandlers(store ConnectionStore) ConnectionHandlers {
	return ConnectionHandlers{
		Add: func(_ context.Context, d models.APIConnectionDraft) error {
			_, err := store.AddConnection(ConnectionFromDraft(d))
			return err
		},
		Delete: func(_ context.Context, id string) error {
			_, err := store.DeleteConnection(id)
			return err
		},
	}
}

// ConnectionForm is the exchange API connection dialog together with the test and remove
// actions of the connection list.
type ConnectionForm struct {
	lc       *lifecycle
	store    ConnectionStore
	handlers ConnectionHandlers
	tester   exchange.ConnectionTester
	latency  time.Duration
	notifier notify.Notifier
	logger   *zap.Logger
	probing  atomic.Bool

	mu         sync.Mutex
	draft      models.APIConnectionDraft
	errors     validation.FieldErrors
	dialogOpen bool
}

// NewConnectionForm creates an empty connection form.
func NewConnectionForm(store ConnectionStore, handlers ConnectionHandlers, tester exchange.ConnectionTester, latency time.Duration, notifier notify.Notifier, logger *zap.Logger) *ConnectionForm {
	return &ConnectionForm{
		lc:       newLifecycle("connection", logger),
		store:    store,
		handlers: handlers,
		tester:   tester,
		latency:  latency,
		notifier: notifier,
		logger:   logger,
	}
}

// Open shows the dialog with empty values.
func (f *ConnectionForm) Open() error {
	if err := f.lc.fire(triggerReset); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.draft = models.APIConnectionDraft{}
	f.errors = nil
	f.dialogOpen = true
	return nil
}

// Submit validates draft and adds the connection after the simulated latency.
func (f *ConnectionForm) Submit(ctx context.Context, draft models.APIConnectionDraft) (operation.Result, error) {
	prepare := func() (submission, error) {
		err := validation.Connection(draft)
		f.mu.Lock()
		f.draft = draft
		f.errors, _ = err.(validation.FieldErrors)
		f.mu.Unlock()
		if err != nil {
			return submission{}, err
		}
		return submission{
			op: operation.Then(operation.Simulated{Delay: f.latency}, func() error {
				return f.handlers.Add(ctx, draft)
			}),
			msgs: operation.Messages{Success: msgConnectionAdded, Failure: msgConnectionFailed},
		}, nil
	}

	res, err := f.lc.submit(ctx, prepare, f.notifier)
	if err != nil {
		return res, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.logger.Info("API connection submitted", zap.String("exchange", draft.Exchange))
	f.dialogOpen = false
	f.draft = models.APIConnectionDraft{}
	return res, nil
}

// TestConnection checks the stored credentials of id. It always reports a pending notification
// followed by a success or failure one.
func (f *ConnectionForm) TestConnection(ctx context.Context, id string) (operation.Result, error) {
	conn, ok := f.store.FindConnection(id)
	if !ok {
		return operation.Result{}, fmt.Errorf("test connection %s: %w", id, ErrNotFound)
	}
	if !f.probing.CompareAndSwap(false, true) {
		return operation.Result{}, ErrBusy
	}
	defer f.probing.Store(false)

	res := operation.Track(ctx, exchange.Probe(f.tester, conn),
		operation.Messages{Pending: msgTesting, Success: msgTestSucceeded, Failure: msgTestFailed},
		f.notifier)
	f.logger.Info("API connection tested", zap.String("id", id), zap.String("phase", string(res.Phase)))
	return res, nil
}

// Remove deletes the connection id.
func (f *ConnectionForm) Remove(ctx context.Context, id string) (operation.Result, error) {
	res := operation.Track(ctx, operation.Func(func(ctx context.Context) error {
		return f.handlers.Delete(ctx, id)
	}), operation.Messages{Success: msgConnectionRemoved, Failure: msgRemoveFailed}, f.notifier)
	if !res.OK() {
		return res, res.Err
	}
	return res, nil
}

// State returns the lifecycle step.
func (f *ConnectionForm) State() State { return f.lc.state() }

// Draft returns the current form values.
func (f *ConnectionForm) Draft() models.APIConnectionDraft {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.draft
}

// Errors returns the per-field messages of the last rejected submission.
func (f *ConnectionForm) Errors() validation.FieldErrors {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.errors
}

// DialogOpen reports whether the dialog is shown.
func (f *ConnectionForm) DialogOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dialogOpen
}
