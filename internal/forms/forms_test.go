package forms

import (
	"context"
	"errors"
	"math"
	"strategy-desk/internal/catalog"
	"strategy-desk/internal/exchange"
	"strategy-desk/internal/models"
	"strategy-desk/internal/notify"
	"strategy-desk/internal/operation"
	"strategy-desk/internal/statemanager"
	"strategy-desk/internal/validation"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testLatency = 20 * time.Millisecond

func newStore(t *testing.T) *statemanager.StateManager {
	t.Helper()
	sm := statemanager.NewStateManager(catalog.InitialState(), nil, nil, zap.NewNop())
	sm.Start()
	t.Cleanup(sm.Stop)
	return sm
}

func validDraft() models.StrategyDraft {
	return models.StrategyDraft{
		Name:                 "My BTC Strategy",
		Exchange:             "binance",
		TradingPair:          "BTC/USDT",
		Strategy:             "MA_CROSSOVER",
		Timeframe:            "1h",
		InitialInvestment:    100,
		RiskLevel:            5,
		TakeProfitPercentage: 3,
		StopLossPercentage:   2,
		Owner:                "james.wilson@example.com",
	}
}

// countingHandlers wraps the store handlers and counts how often each one ran.
func countingHandlers(store StrategyStore, adds, edits *int32) StrategyHandlers {
	h := StoreHandlers(store)
	return StrategyHandlers{
		Add: func(ctx context.Context, d models.StrategyDraft) error {
			atomic.AddInt32(adds, 1)
			return h.Add(ctx, d)
		},
		Edit: func(ctx context.Context, id string, d models.StrategyDraft) error {
			atomic.AddInt32(edits, 1)
			return h.Edit(ctx, id, d)
		},
	}
}

func TestAddValidDraftSettlesAndResets(t *testing.T) {
	store := newStore(t)
	rec := notify.NewRecorder(0)
	form := NewStrategyForm(store, StoreHandlers(store), testLatency, rec, zap.NewNop())
	require.NoError(t, form.BeginAdd())
	require.True(t, form.DialogOpen())

	start := time.Now()
	res, err := form.Submit(context.Background(), validDraft())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), testLatency)

	assert.Equal(t, operation.PhaseSuccess, res.Phase)
	notes := rec.All()
	require.Len(t, notes, 1)
	assert.Equal(t, notify.Success, notes[0].Level)
	assert.Equal(t, "Strategy added successfully!", notes[0].Message)

	assert.False(t, form.DialogOpen())
	assert.Equal(t, models.DefaultStrategyDraft(), form.Draft())
	assert.Equal(t, StateSettled, form.State())
	assert.Empty(t, form.Errors())

	snapshot := store.Snapshot()
	require.Len(t, snapshot.Strategies, 6)
	added := snapshot.Strategies[5]
	assert.Equal(t, "My BTC Strategy", added.Name)
	assert.Equal(t, "Binance", added.Exchange)
	assert.Equal(t, "MA Crossover", added.Strategy)
	assert.Equal(t, 5, added.RiskLevel)
	assert.False(t, snapshot.Active[added.ID])
}

func TestRiskLevelElevenIsRejected(t *testing.T) {
	store := newStore(t)
	rec := notify.NewRecorder(0)
	var adds, edits int32
	form := NewStrategyForm(store, countingHandlers(store, &adds, &edits), testLatency, rec, zap.NewNop())
	require.NoError(t, form.BeginAdd())

	draft := validDraft()
	draft.RiskLevel = 11
	res, err := form.Submit(context.Background(), draft)

	var fe validation.FieldErrors
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, validation.CodeRange, fe["riskLevel"].Code)
	assert.Equal(t, operation.Phase(""), res.Phase)

	assert.Zero(t, atomic.LoadInt32(&adds))
	assert.Empty(t, rec.All())
	assert.True(t, form.DialogOpen())
	assert.Equal(t, draft, form.Draft())
	assert.Equal(t, StateInvalid, form.State())
	assert.Len(t, store.Snapshot().Strategies, 5)
}

func TestInitialInvestmentBelowMinimumIsRejected(t *testing.T) {
	store := newStore(t)
	var adds, edits int32
	form := NewStrategyForm(store, countingHandlers(store, &adds, &edits), testLatency, nil, zap.NewNop())

	draft := validDraft()
	draft.InitialInvestment = 5
	_, err := form.Submit(context.Background(), draft)
	require.Error(t, err)

	errs := form.Errors()
	require.True(t, errs.Has("initialInvestment"))
	assert.Equal(t, "Initial investment must be at least 10 USDT.", errs["initialInvestment"].Message)
	assert.Zero(t, atomic.LoadInt32(&adds))

	// Correcting the field lets the next submission through.
	draft.InitialInvestment = 10
	_, err = form.Submit(context.Background(), draft)
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&adds))
}

func TestEditPrepopulatesAndUpdatesCatalog(t *testing.T) {
	store := newStore(t)
	rec := notify.NewRecorder(0)
	form := NewStrategyForm(store, StoreHandlers(store), testLatency, rec, zap.NewNop())

	require.NoError(t, form.BeginEdit("2"))
	mode, id := form.Mode()
	assert.Equal(t, ModeEdit, mode)
	assert.Equal(t, "2", id)

	draft := form.Draft()
	assert.Equal(t, "ETH Conservative", draft.Name)
	assert.Equal(t, "coinbase", draft.Exchange)
	assert.Equal(t, "BOLLINGER_BANDS", draft.Strategy)
	assert.Equal(t, "4h", draft.Timeframe)
	assert.Equal(t, 4.0, draft.RiskLevel)
	assert.False(t, draft.IsActive)

	draft.Name = "ETH Balanced"
	draft.RiskLevel = 6
	_, err := form.Submit(context.Background(), draft)
	require.NoError(t, err)

	notes := rec.All()
	require.Len(t, notes, 1)
	assert.Equal(t, "Strategy updated successfully!", notes[0].Message)
	assert.False(t, form.DialogOpen())

	got, ok := store.FindStrategy("2")
	require.True(t, ok)
	assert.Equal(t, "ETH Balanced", got.Name)
	assert.Equal(t, 6, got.RiskLevel)
	assert.Len(t, store.Snapshot().Strategies, 5)

	mode, _ = form.Mode()
	assert.Equal(t, ModeAdd, mode)
}

func TestSubmitEditIgnoresDialogMode(t *testing.T) {
	store := newStore(t)
	var adds, edits int32
	form := NewStrategyForm(store, countingHandlers(store, &adds, &edits), 0, nil, zap.NewNop())

	// Another caller reopened the dialog in add mode.
	require.NoError(t, form.BeginAdd())

	rec, ok := store.FindStrategy("1")
	require.True(t, ok)
	draft := DraftFromRecord(rec, store.IsActive("1"))
	draft.Name = "BTC Momentum Renamed"

	_, err := form.SubmitEdit(context.Background(), "1", draft)
	require.NoError(t, err)
	assert.Equal(t, int32(0), atomic.LoadInt32(&adds))
	assert.Equal(t, int32(1), atomic.LoadInt32(&edits))

	got, ok := store.FindStrategy("1")
	require.True(t, ok)
	assert.Equal(t, "BTC Momentum Renamed", got.Name)
	assert.Len(t, store.Snapshot().Strategies, 5)
}

func TestSubmitAddIgnoresDialogMode(t *testing.T) {
	store := newStore(t)
	var adds, edits int32
	form := NewStrategyForm(store, countingHandlers(store, &adds, &edits), 0, nil, zap.NewNop())

	// Another caller left the dialog editing record 2.
	require.NoError(t, form.BeginEdit("2"))

	_, err := form.SubmitAdd(context.Background(), validDraft())
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&adds))
	assert.Equal(t, int32(0), atomic.LoadInt32(&edits))

	state := store.Snapshot()
	require.Len(t, state.Strategies, 6)
	assert.Equal(t, "My BTC Strategy", state.Strategies[5].Name)
	got, _ := store.FindStrategy("2")
	assert.Equal(t, "ETH Conservative", got.Name)
}

func TestSubmitEditUnknownStrategy(t *testing.T) {
	store := newStore(t)
	form := NewStrategyForm(store, StoreHandlers(store), 0, nil, zap.NewNop())

	_, err := form.SubmitEdit(context.Background(), "missing", validDraft())
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, StateIdle, form.State())
}

func TestBeginEditUnknownStrategy(t *testing.T) {
	store := newStore(t)
	form := NewStrategyForm(store, StoreHandlers(store), testLatency, nil, zap.NewNop())

	err := form.BeginEdit("missing")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, form.DialogOpen())
}

func TestSubmitWhileSubmittingIsBusy(t *testing.T) {
	store := newStore(t)
	release := make(chan struct{})
	handlers := StrategyHandlers{
		Add: func(ctx context.Context, d models.StrategyDraft) error {
			<-release
			return nil
		},
	}
	form := NewStrategyForm(store, handlers, 0, nil, zap.NewNop())

	done := make(chan error, 1)
	go func() {
		_, err := form.Submit(context.Background(), validDraft())
		done <- err
	}()

	require.Eventually(t, func() bool { return form.State() == StateSubmitting }, time.Second, time.Millisecond)

	_, err := form.Submit(context.Background(), validDraft())
	assert.True(t, errors.Is(err, ErrBusy))
	assert.True(t, errors.Is(form.BeginAdd(), ErrBusy))

	close(release)
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("first submission never settled")
	}
	assert.Equal(t, StateSettled, form.State())
}

func TestHandlerFailureKeepsDialogOpen(t *testing.T) {
	store := newStore(t)
	rec := notify.NewRecorder(0)
	boom := errors.New("backend unavailable")
	handlers := StrategyHandlers{Add: func(context.Context, models.StrategyDraft) error { return boom }}
	form := NewStrategyForm(store, handlers, 0, rec, zap.NewNop())
	require.NoError(t, form.BeginAdd())

	res, err := form.Submit(context.Background(), validDraft())
	assert.True(t, errors.Is(err, boom))
	assert.Equal(t, operation.PhaseFailure, res.Phase)
	assert.Equal(t, 1, rec.Count(notify.Failure))
	assert.Zero(t, rec.Count(notify.Success))
	assert.True(t, form.DialogOpen())
	assert.Equal(t, validDraft(), form.Draft())
	assert.Equal(t, operation.PhaseFailure, form.LastResult().Phase)
}

func TestConnectionFormAddTestAndRemove(t *testing.T) {
	store := newStore(t)
	rec := notify.NewRecorder(0)
	form := NewConnectionForm(store, StoreConnectionHandlers(store), exchange.NewSimulatedTester(time.Millisecond), testLatency, rec, zap.NewNop())
	require.NoError(t, form.Open())

	_, err := form.Submit(context.Background(), models.APIConnectionDraft{Exchange: "okx", APIKey: "abcdefghijklmno", APISecret: "supersecret"})
	require.NoError(t, err)
	assert.False(t, form.DialogOpen())
	assert.Equal(t, models.APIConnectionDraft{}, form.Draft())

	conns := store.Snapshot().Connections
	require.Len(t, conns, 3)
	assert.Equal(t, "OKX", conns[2].Exchange)

	res, err := form.TestConnection(context.Background(), conns[2].ID)
	require.NoError(t, err)
	assert.True(t, res.OK())

	_, err = form.Remove(context.Background(), "2")
	require.NoError(t, err)
	assert.Len(t, store.Snapshot().Connections, 2)

	var messages []string
	for _, n := range rec.All() {
		messages = append(messages, n.Message)
	}
	assert.Equal(t, []string{
		"API connection added successfully!",
		"Testing connection...",
		"Connection successful!",
		"API connection removed successfully!",
	}, messages)
}

func TestConnectionFormRejectsShortCredentials(t *testing.T) {
	store := newStore(t)
	rec := notify.NewRecorder(0)
	form := NewConnectionForm(store, StoreConnectionHandlers(store), exchange.NewSimulatedTester(0), 0, rec, zap.NewNop())

	_, err := form.Submit(context.Background(), models.APIConnectionDraft{Exchange: "binance", APIKey: "abc", APISecret: "abcdef"})
	require.Error(t, err)
	assert.True(t, form.Errors().Has("apiKey"))
	assert.False(t, form.Errors().Has("apiSecret"))
	assert.Empty(t, rec.All())
	assert.Len(t, store.Snapshot().Connections, 2)
}

func TestConnectionTestFailureBranch(t *testing.T) {
	store := newStore(t)
	rec := notify.NewRecorder(0)
	form := NewConnectionForm(store, StoreConnectionHandlers(store), &exchange.SimulatedTester{Fail: true}, 0, rec, zap.NewNop())

	res, err := form.TestConnection(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, operation.PhaseFailure, res.Phase)
	assert.Equal(t, "Failed to connect. Please check your API credentials.", res.Message)

	notes := rec.All()
	require.Len(t, notes, 2)
	assert.Equal(t, notify.Pending, notes[0].Level)
	assert.Equal(t, notify.Failure, notes[1].Level)

	_, err = form.TestConnection(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSupportForm(t *testing.T) {
	rec := notify.NewRecorder(0)
	var sent int32
	send := func(context.Context, models.SupportTicketDraft) error {
		atomic.AddInt32(&sent, 1)
		return nil
	}
	form := NewSupportForm(send, 0, rec, zap.NewNop())

	_, err := form.Submit(context.Background(), models.SupportTicketDraft{Name: "A", Email: "bad", Subject: "general", Message: "hi"})
	require.Error(t, err)
	assert.Zero(t, atomic.LoadInt32(&sent))
	assert.Equal(t, StateInvalid, form.State())

	ticket := models.SupportTicketDraft{Name: "Emily Jackson", Email: "emily.jackson@example.com", Subject: "technical", Message: "My strategy does not start."}
	res, err := form.Submit(context.Background(), ticket)
	require.NoError(t, err)
	assert.Equal(t, "Your message has been sent. We'll get back to you soon!", res.Message)
	assert.Equal(t, int32(1), atomic.LoadInt32(&sent))
	assert.Equal(t, models.SupportTicketDraft{}, form.Draft())
}

func TestDecodeStrategyDraftCoercesNumbers(t *testing.T) {
	draft, err := DecodeStrategyDraft(map[string]interface{}{
		"name":               "Coerced",
		"riskLevel":          "11",
		"initialInvestment":  "abc",
		"stopLossPercentage": 1.5,
		"isActive":           "true",
	})
	require.NoError(t, err)

	assert.Equal(t, "Coerced", draft.Name)
	assert.Equal(t, 11.0, draft.RiskLevel)
	assert.True(t, math.IsNaN(draft.InitialInvestment))
	assert.Equal(t, 1.5, draft.StopLossPercentage)
	assert.Equal(t, 3.0, draft.TakeProfitPercentage, "missing fields keep their defaults")
	assert.True(t, draft.IsActive)

	err = validation.Strategy(draft, nil)
	var fe validation.FieldErrors
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, validation.CodeRange, fe["riskLevel"].Code)
	assert.Equal(t, validation.CodeInvalid, fe["initialInvestment"].Code)
}

func TestDecodeConnectionAndTicket(t *testing.T) {
	conn, err := DecodeConnectionDraft(map[string]interface{}{"exchange": "kucoin", "apiKey": "12345", "apiSecret": 67890})
	require.NoError(t, err)
	assert.Equal(t, "kucoin", conn.Exchange)
	assert.Equal(t, "67890", conn.APISecret)

	ticket, err := DecodeSupportTicket(map[string]interface{}{"name": "Lisa", "subject": "billing"})
	require.NoError(t, err)
	assert.Equal(t, "Lisa", ticket.Name)
	assert.Equal(t, "billing", ticket.Subject)
}
