package forms

import (
	"context"
	"fmt"
	"strategy-desk/internal/models"
	"strategy-desk/internal/notify"
	"strategy-desk/internal/operation"
	"strategy-desk/internal/validation"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Mode selects what a strategy form submission does.
type Mode string

const (
	ModeAdd  Mode = "add"
	ModeEdit Mode = "edit"
)

const (
	msgStrategyAdded   = "Strategy added successfully!"
	msgStrategyUpdated = "Strategy updated successfully!"
	msgStrategyFailed  = "Failed to save strategy. Please try again."
)

// StrategyStore is what the strategy form reads and writes.
type StrategyStore interface {
	validation.UserDirectory
	IsActive(id string) bool
	FindStrategy(id string) (models.StrategyRecord, bool)
	AddStrategy(record models.StrategyRecord, active bool) (models.StrategyRecord, error)
	UpdateStrategy(id string, record models.StrategyRecord, active bool) (models.StrategyRecord, error)
}

// AddStrategyFunc handles a validated add submission.
type AddStrategyFunc func(ctx context.Context, draft models.StrategyDraft) error

// EditStrategyFunc handles a validated edit submission.
type EditStrategyFunc func(ctx context.Context, id string, draft models.StrategyDraft) error

// StrategyHandlers are the typed submit handlers of the strategy form.
type StrategyHandlers struct {
	Add  AddStrategyFunc
	Edit EditStrategyFunc
}

// RecordFromDraft converts form values into a catalog record. Form values are mapped to
// display names the way the catalog stores them.
func RecordFromDraft(d models.StrategyDraft) models.StrategyRecord {
	return models.StrategyRecord{
		Name:                 strings.TrimSpace(d.Name),
		Owner:                d.Owner,
		Exchange:             models.ExchangeName(d.Exchange),
		TradingPair:          d.TradingPair,
		Strategy:             models.StrategyKind(d.Strategy).Label(),
		Timeframe:            models.Timeframe(d.Timeframe),
		InitialInvestment:    d.InitialInvestment,
		RiskLevel:            int(d.RiskLevel),
		TakeProfitPercentage: d.TakeProfitPercentage,
		StopLossPercentage:   d.StopLossPercentage,
	}
}

// DraftFromRecord builds the edit form values for a catalog record.
func DraftFromRecord(r models.StrategyRecord, active bool) models.StrategyDraft {
	return models.StrategyDraft{
		Name:                 r.Name,
		Exchange:             strings.ToLower(r.Exchange),
		TradingPair:          r.TradingPair,
		Strategy:             string(models.KindFromLabel(r.Strategy)),
		Timeframe:            string(r.Timeframe),
		InitialInvestment:    r.InitialInvestment,
		RiskLevel:            float64(r.RiskLevel),
		TakeProfitPercentage: r.TakeProfitPercentage,
		StopLossPercentage:   r.StopLossPercentage,
		Owner:                r.Owner,
		IsActive:             active,
	}
}

// StoreHandlers returns submit handlers that write through to store.
func StoreHandlers(store StrategyStore) StrategyHandlers {
	return StrategyHandlers{
		Add: func(_ context.Context, d models.StrategyDraft) error {
			_, err := store.AddStrategy(RecordFromDraft(d), d.IsActive)
			return err
		},
		Edit: func(_ context.Context, id string, d models.StrategyDraft) error {
			_, err := store.UpdateStrategy(id, RecordFromDraft(d), d.IsActive)
			return err
		},
	}
}

// StrategyForm is the add/edit strategy dialog.
type StrategyForm struct {
	lc       *lifecycle
	store    StrategyStore
	handlers StrategyHandlers
	latency  time.Duration
	notifier notify.Notifier
	logger   *zap.Logger

	mu         sync.Mutex
	mode       Mode
	editingID  string
	draft      models.StrategyDraft
	errors     validation.FieldErrors
	dialogOpen bool
	last       operation.Result
}

// NewStrategyForm creates a form in add mode with default values. latency is the simulated
// round trip every submission waits for.
func NewStrategyForm(store StrategyStore, handlers StrategyHandlers, latency time.Duration, notifier notify.Notifier, logger *zap.Logger) *StrategyForm {
	return &StrategyForm{
		lc:       newLifecycle("strategy", logger),
		store:    store,
		handlers: handlers,
		latency:  latency,
		notifier: notifier,
		logger:   logger,
		mode:     ModeAdd,
		draft:    models.DefaultStrategyDraft(),
	}
}

// BeginAdd opens the dialog with default values.
func (f *StrategyForm) BeginAdd() error {
	if err := f.lc.fire(triggerReset); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mode = ModeAdd
	f.editingID = ""
	f.draft = models.DefaultStrategyDraft()
	f.errors = nil
	f.dialogOpen = true
	return nil
}

// BeginEdit opens the dialog pre-populated from the catalog record id.
func (f *StrategyForm) BeginEdit(id string) error {
	rec, ok := f.store.FindStrategy(id)
	if !ok {
		return fmt.Errorf("edit strategy %s: %w", id, ErrNotFound)
	}
	if err := f.lc.fire(triggerReset); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mode = ModeEdit
	f.editingID = id
	f.draft = DraftFromRecord(rec, f.store.IsActive(id))
	f.errors = nil
	f.dialogOpen = true
	return nil
}

// Submit validates draft and, when every field passes, runs the handler of the mode the dialog
// was opened in after the simulated latency. Validation failures are returned as
// validation.FieldErrors.
func (f *StrategyForm) Submit(ctx context.Context, draft models.StrategyDraft) (operation.Result, error) {
	return f.submit(ctx, nil, draft)
}

// SubmitAdd submits draft as a new record regardless of the mode the dialog is in.
func (f *StrategyForm) SubmitAdd(ctx context.Context, draft models.StrategyDraft) (operation.Result, error) {
	return f.submit(ctx, &target{mode: ModeAdd}, draft)
}

// SubmitEdit submits draft over the record id regardless of the mode the dialog is in.
func (f *StrategyForm) SubmitEdit(ctx context.Context, id string, draft models.StrategyDraft) (operation.Result, error) {
	if _, ok := f.store.FindStrategy(id); !ok {
		return operation.Result{}, fmt.Errorf("edit strategy %s: %w", id, ErrNotFound)
	}
	return f.submit(ctx, &target{mode: ModeEdit, id: id}, draft)
}

// target pins the mode and record of one submission.
type target struct {
	mode Mode
	id   string
}

// submit runs one submission. With a nil target the dialog's mode is used. Otherwise the target
// is applied once the busy gate is held, so one caller's mode never leaks into another's.
func (f *StrategyForm) submit(ctx context.Context, to *target, draft models.StrategyDraft) (operation.Result, error) {
	var mode Mode
	prepare := func() (submission, error) {
		f.mu.Lock()
		if to != nil {
			f.mode, f.editingID = to.mode, to.id
		}
		f.draft = draft
		m, id := f.mode, f.editingID
		f.mu.Unlock()
		mode = m

		err := validation.Strategy(draft, f.store)
		f.mu.Lock()
		f.errors, _ = err.(validation.FieldErrors)
		f.mu.Unlock()
		if err != nil {
			return submission{}, err
		}

		sub := submission{msgs: operation.Messages{Success: msgStrategyAdded, Failure: msgStrategyFailed}}
		handler := func() error { return f.handlers.Add(ctx, draft) }
		if m == ModeEdit {
			sub.msgs.Success = msgStrategyUpdated
			handler = func() error { return f.handlers.Edit(ctx, id, draft) }
		}
		sub.op = operation.Then(operation.Simulated{Delay: f.latency}, handler)
		return sub, nil
	}

	res, err := f.lc.submit(ctx, prepare, f.notifier)
	if res.Phase == "" {
		return res, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.last = res
	if err != nil {
		return res, err
	}

	f.logger.Info("strategy submitted", zap.String("mode", string(mode)), zap.String("name", draft.Name))
	f.dialogOpen = false
	if mode == ModeAdd {
		f.draft = models.DefaultStrategyDraft()
	} else {
		f.mode = ModeAdd
		f.editingID = ""
	}
	return res, nil
}

// State returns the lifecycle step.
func (f *StrategyForm) State() State { return f.lc.state() }

// Draft returns the current form values.
func (f *StrategyForm) Draft() models.StrategyDraft {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.draft
}

// Errors returns the per-field messages of the last rejected submission.
func (f *StrategyForm) Errors() validation.FieldErrors {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.errors
}

// DialogOpen reports whether the dialog is shown.
func (f *StrategyForm) DialogOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dialogOpen
}

// Mode returns the current mode and, in edit mode, the record being edited.
func (f *StrategyForm) Mode() (Mode, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mode, f.editingID
}

// LastResult returns the outcome of the last settled submission.
func (f *StrategyForm) LastResult() operation.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}
