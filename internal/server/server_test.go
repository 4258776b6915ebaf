package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strategy-desk/internal/catalog"
	"strategy-desk/internal/exchange"
	"strategy-desk/internal/forms"
	"strategy-desk/internal/metrics"
	"strategy-desk/internal/models"
	"strategy-desk/internal/notify"
	"strategy-desk/internal/plans"
	"strategy-desk/internal/statemanager"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testServer struct {
	handler    http.Handler
	store      *statemanager.StateManager
	strategies *forms.StrategyForm
	rec        *notify.Recorder
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	return newTestServerWithLatency(t, 0)
}

// newTestServerWithLatency delays every strategy submission by latency.
func newTestServerWithLatency(t *testing.T, latency time.Duration) *testServer {
	t.Helper()
	log := zap.NewNop()
	rec := notify.NewRecorder(0)

	store := statemanager.NewStateManager(catalog.InitialState(), nil, rec, log)
	store.Start()
	t.Cleanup(store.Stop)

	deps := Deps{
		Store:         store,
		Strategies:    forms.NewStrategyForm(store, forms.StoreHandlers(store), latency, rec, log),
		Connections:   forms.NewConnectionForm(store, forms.StoreConnectionHandlers(store), exchange.NewSimulatedTester(0), 0, rec, log),
		Support:       forms.NewSupportForm(forms.LogTicket(log), 0, rec, log),
		Plans:         plans.NewService(store, 0, rec, log),
		Notifications: rec,
		Metrics:       metrics.New(models.MetricsConfig{}, log),
		Logger:        log,
	}
	srv := New(models.ServerConfig{Addr: ":0", AllowedOrigins: []string{"*"}}, deps)
	return &testServer{handler: srv.Handler(), store: store, strategies: deps.Strategies, rec: rec}
}

func (ts *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, req)
	return w
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v))
}

func validStrategyBody() map[string]interface{} {
	return map[string]interface{}{
		"name":                 "My BTC Strategy",
		"exchange":             "binance",
		"tradingPair":          "BTC/USDT",
		"strategy":             "MA_CROSSOVER",
		"timeframe":            "1h",
		"initialInvestment":    "250",
		"riskLevel":            6,
		"takeProfitPercentage": 4,
		"stopLossPercentage":   2,
		"owner":                "james.wilson@example.com",
		"isActive":             true,
	}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ok")
}

func TestListStrategiesFilters(t *testing.T) {
	ts := newTestServer(t)

	var all []strategyView
	decodeJSON(t, ts.do(t, http.MethodGet, "/api/strategies", nil), &all)
	require.Len(t, all, 5)
	assert.True(t, all[0].IsActive)
	assert.False(t, all[1].IsActive)

	var binance []strategyView
	decodeJSON(t, ts.do(t, http.MethodGet, "/api/strategies?exchange=Binance", nil), &binance)
	require.Len(t, binance, 2)
	for _, v := range binance {
		assert.Equal(t, "Binance", v.Exchange)
	}

	var searched []strategyView
	decodeJSON(t, ts.do(t, http.MethodGet, "/api/strategies?search=conservative&exchange=all", nil), &searched)
	require.Len(t, searched, 2)
	assert.Equal(t, "2", searched[0].ID)
	assert.Equal(t, "4", searched[1].ID)
}

func TestToggleStrategy(t *testing.T) {
	ts := newTestServer(t)

	var res statemanager.ToggleResult
	w := ts.do(t, http.MethodPost, "/api/strategies/1/toggle", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decodeJSON(t, w, &res)
	assert.False(t, res.Active)
	assert.Equal(t, "Strategy stopped successfully!", res.Message)

	decodeJSON(t, ts.do(t, http.MethodPost, "/api/strategies/1/toggle", nil), &res)
	assert.True(t, res.Active)
	assert.Equal(t, "Strategy started successfully!", res.Message)
	assert.True(t, ts.store.IsActive("1"))
}

func TestAddStrategyValidationFailure(t *testing.T) {
	ts := newTestServer(t)
	body := validStrategyBody()
	body["riskLevel"] = 11
	body["initialInvestment"] = 5

	w := ts.do(t, http.MethodPost, "/api/strategies", body)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var resp struct {
		Fields map[string]struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"fields"`
	}
	decodeJSON(t, w, &resp)
	assert.Equal(t, "range", resp.Fields["riskLevel"].Code)
	assert.Equal(t, "Initial investment must be at least 10 USDT.", resp.Fields["initialInvestment"].Message)
	assert.Len(t, ts.store.Snapshot().Strategies, 5)
	assert.Zero(t, ts.rec.Count(notify.Success))
}

func TestAddStrategy(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/strategies", validStrategyBody())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	state := ts.store.Snapshot()
	require.Len(t, state.Strategies, 6)
	added := state.Strategies[5]
	assert.Equal(t, "Binance", added.Exchange)
	assert.Equal(t, "MA Crossover", added.Strategy)
	assert.Equal(t, 250.0, added.InitialInvestment)
	assert.True(t, state.Active[added.ID])

	var notes []notify.Notification
	decodeJSON(t, ts.do(t, http.MethodGet, "/api/notifications", nil), &notes)
	require.NotEmpty(t, notes)
	assert.Equal(t, "Strategy added successfully!", notes[len(notes)-1].Message)
}

func TestEditStrategy(t *testing.T) {
	ts := newTestServer(t)

	var draft models.StrategyDraft
	decodeJSON(t, ts.do(t, http.MethodGet, "/api/strategies/2/draft", nil), &draft)
	assert.Equal(t, "coinbase", draft.Exchange)
	assert.Equal(t, "BOLLINGER_BANDS", draft.Strategy)

	w := ts.do(t, http.MethodPut, "/api/strategies/2", map[string]interface{}{"name": "ETH Renamed"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	rec, ok := ts.store.FindStrategy("2")
	require.True(t, ok)
	assert.Equal(t, "ETH Renamed", rec.Name)
	assert.Equal(t, "Coinbase", rec.Exchange)
	assert.Equal(t, 500.0, rec.InitialInvestment)

	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodPut, "/api/strategies/99", map[string]interface{}{}).Code)
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, "/api/strategies/99/draft", nil).Code)
}

func TestOverlappingEditAndAdd(t *testing.T) {
	ts := newTestServerWithLatency(t, 100*time.Millisecond)

	putDone := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		putDone <- ts.do(t, http.MethodPut, "/api/strategies/1", `{"name": "BTC Momentum Renamed"}`)
	}()
	require.Eventually(t, func() bool { return ts.strategies.State() == forms.StateSubmitting }, time.Second, time.Millisecond)

	w := ts.do(t, http.MethodPost, "/api/strategies", validStrategyBody())
	assert.Equal(t, http.StatusConflict, w.Code, w.Body.String())

	select {
	case w = <-putDone:
	case <-time.After(2 * time.Second):
		t.Fatal("edit did not finish")
	}
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	state := ts.store.Snapshot()
	require.Len(t, state.Strategies, 5)
	rec, ok := ts.store.FindStrategy("1")
	require.True(t, ok)
	assert.Equal(t, "BTC Momentum Renamed", rec.Name)

	w = ts.do(t, http.MethodPost, "/api/strategies", validStrategyBody())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	state = ts.store.Snapshot()
	require.Len(t, state.Strategies, 6)
	assert.Equal(t, "My BTC Strategy", state.Strategies[5].Name)
	rec, _ = ts.store.FindStrategy("1")
	assert.Equal(t, "BTC Momentum Renamed", rec.Name)
}

func TestConcurrentEditsAndAddsNeverCrossModes(t *testing.T) {
	ts := newTestServer(t)
	const rounds = 20

	addBody, err := json.Marshal(validStrategyBody())
	require.NoError(t, err)

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		codes = map[string][]int{}
	)
	record := func(method string, code int) {
		mu.Lock()
		defer mu.Unlock()
		codes[method] = append(codes[method], code)
	}
	for i := 0; i < rounds; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			record(http.MethodPut, ts.do(t, http.MethodPut, "/api/strategies/1", `{"name": "BTC Momentum Renamed"}`).Code)
		}()
		go func() {
			defer wg.Done()
			record(http.MethodPost, ts.do(t, http.MethodPost, "/api/strategies", string(addBody)).Code)
		}()
	}
	wg.Wait()

	edited, added := 0, 0
	for _, code := range codes[http.MethodPut] {
		require.Contains(t, []int{http.StatusOK, http.StatusConflict}, code)
		if code == http.StatusOK {
			edited++
		}
	}
	for _, code := range codes[http.MethodPost] {
		require.Contains(t, []int{http.StatusCreated, http.StatusConflict}, code)
		if code == http.StatusCreated {
			added++
		}
	}

	state := ts.store.Snapshot()
	assert.Len(t, state.Strategies, 5+added)
	for _, rec := range state.Strategies[5:] {
		assert.Equal(t, "My BTC Strategy", rec.Name)
	}
	rec, ok := ts.store.FindStrategy("1")
	require.True(t, ok)
	if edited > 0 {
		assert.Equal(t, "BTC Momentum Renamed", rec.Name)
	} else {
		assert.Equal(t, "BTC Momentum Strategy", rec.Name)
	}
}

func TestDeleteStrategy(t *testing.T) {
	ts := newTestServer(t)

	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodDelete, "/api/strategies/3", nil).Code)
	_, ok := ts.store.FindStrategy("3")
	assert.False(t, ok)
	assert.False(t, ts.store.IsActive("3"))

	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodDelete, "/api/strategies/3", nil).Code)
}

func TestBadJSON(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, http.MethodPost, "/api/strategies", "{not json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestConnections(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/api/connections", nil)
	require.Equal(t, http.StatusOK, w.Code)
	for _, c := range catalog.Connections() {
		assert.NotContains(t, w.Body.String(), c.APIKey)
		assert.NotContains(t, w.Body.String(), c.APISecret)
	}
	var views []connectionView
	decodeJSON(t, w, &views)
	require.Len(t, views, 2)
	assert.Equal(t, "**********", views[0].APISecret)

	w = ts.do(t, http.MethodPost, "/api/connections", map[string]interface{}{"exchange": "okx", "apiKey": "abc", "apiSecret": "def"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = ts.do(t, http.MethodPost, "/api/connections", map[string]interface{}{
		"exchange": "okx", "apiKey": "okx-key-1234567890", "apiSecret": "okx-secret-123",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	conns := ts.store.Snapshot().Connections
	require.Len(t, conns, 3)
	assert.Equal(t, "OKX", conns[2].Exchange)

	w = ts.do(t, http.MethodPost, "/api/connections/1/test", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "Connection successful!"))
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodPost, "/api/connections/99/test", nil).Code)

	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodDelete, "/api/connections/1", nil).Code)
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodDelete, "/api/connections/1", nil).Code)
	assert.Len(t, ts.store.Snapshot().Connections, 2)
}

func TestPlans(t *testing.T) {
	ts := newTestServer(t)

	var resp plansResponse
	decodeJSON(t, ts.do(t, http.MethodGet, "/api/plans", nil), &resp)
	assert.Len(t, resp.Plans, 3)
	assert.Equal(t, "basic", resp.CurrentPlan)
	assert.True(t, strings.HasPrefix(resp.NextPayment, "$29 on "))

	w := ts.do(t, http.MethodPost, "/api/plans/pro/upgrade", map[string]interface{}{"billingCycle": "yearly"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "Successfully upgraded to Pro plan!")

	state := ts.store.Snapshot()
	assert.Equal(t, "pro", state.CurrentPlanID)
	assert.Equal(t, models.Yearly, state.BillingCycle)

	assert.Equal(t, http.StatusConflict, ts.do(t, http.MethodPost, "/api/plans/pro/upgrade", nil).Code)
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodPost, "/api/plans/gold/upgrade", nil).Code)
	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/api/plans/cancel", nil).Code)
}

func TestSupport(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/support", map[string]interface{}{
		"name": "Jo", "email": "jo@example.com", "subject": "billing", "message": "Please check my invoice.",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "We'll get back to you soon!")

	w = ts.do(t, http.MethodPost, "/api/support", map[string]interface{}{"name": "J", "email": "nope"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}
