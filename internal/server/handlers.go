package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strategy-desk/internal/filter"
	"strategy-desk/internal/forms"
	"strategy-desk/internal/models"
	"strategy-desk/internal/plans"
	"strategy-desk/internal/statemanager"
	"time"

	"github.com/go-chi/chi/v5"
)

var errBadRequest = errors.New("bad request")

// strategyView is a catalog row with its running flag, as both views list it.
type strategyView struct {
	models.StrategyRecord
	IsActive bool `json:"isActive"`
}

// connectionView never carries the full key or the secret.
type connectionView struct {
	ID             string `json:"id"`
	Exchange       string `json:"exchange"`
	APIKey         string `json:"apiKey"`
	APISecret      string `json:"apiSecret"`
	TelegramChatID string `json:"telegramChatId,omitempty"`
	Status         string `json:"status"`
	AddedOn        string `json:"addedOn"`
}

type plansResponse struct {
	Plans        []models.SubscriptionPlan `json:"plans"`
	CurrentPlan  string                    `json:"currentPlan"`
	BillingCycle models.BillingCycle       `json:"billingCycle"`
	NextPayment  string                    `json:"nextPayment"`
}

// decodeBody reads a JSON object into a loose map for the form decoders. An empty body is an
// empty object.
func decodeBody(r *http.Request) (map[string]interface{}, error) {
	input := map[string]interface{}{}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return input, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.deps.Store.Snapshot().Users)
}

// handleListStrategies returns the filtered catalog.
// GET /api/strategies?search=&exchange=
func (s *Server) handleListStrategies(w http.ResponseWriter, r *http.Request) {
	state := s.deps.Store.Snapshot()
	q := r.URL.Query()
	rows := filter.Strategies(state.Strategies, q.Get("search"), filter.Exchange(q.Get("exchange")))

	views := make([]strategyView, 0, len(rows))
	for _, rec := range rows {
		views = append(views, strategyView{StrategyRecord: rec, IsActive: state.Active[rec.ID]})
	}
	s.writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleAddStrategy(w http.ResponseWriter, r *http.Request) {
	input, err := decodeBody(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	draft, err := forms.DecodeStrategyDraft(input)
	if err != nil {
		s.writeError(w, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}

	res, err := s.deps.Strategies.SubmitAdd(r.Context(), draft)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.deps.Metrics.Inc("strategy.added")
	s.writeJSON(w, http.StatusCreated, res)
}

func (s *Server) handleEditStrategy(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	input, err := decodeBody(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	rec, ok := s.deps.Store.FindStrategy(id)
	if !ok {
		s.writeError(w, fmt.Errorf("edit strategy %s: %w", id, forms.ErrNotFound))
		return
	}

	// Fields missing from the body keep the stored values.
	base := forms.DraftFromRecord(rec, s.deps.Store.IsActive(id))
	draft, err := forms.DecodeStrategyDraftOver(base, input)
	if err != nil {
		s.writeError(w, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}

	res, err := s.deps.Strategies.SubmitEdit(r.Context(), id, draft)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.deps.Metrics.Inc("strategy.updated")
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleDeleteStrategy(w http.ResponseWriter, r *http.Request) {
	rec, err := s.deps.Store.DeleteStrategy(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.deps.Metrics.Inc("strategy.deleted")
	s.writeJSON(w, http.StatusOK, rec)
}

// handleStrategyDraft returns the edit form values of a record.
// GET /api/strategies/{id}/draft
func (s *Server) handleStrategyDraft(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, ok := s.deps.Store.FindStrategy(id)
	if !ok {
		s.writeError(w, fmt.Errorf("strategy %s: %w", id, statemanager.ErrNotFound))
		return
	}
	s.writeJSON(w, http.StatusOK, forms.DraftFromRecord(rec, s.deps.Store.IsActive(id)))
}

func (s *Server) handleToggleStrategy(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Store.Toggle(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.deps.Metrics.Inc("strategy.toggled")
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleListConnections(w http.ResponseWriter, r *http.Request) {
	conns := s.deps.Store.Snapshot().Connections
	views := make([]connectionView, 0, len(conns))
	for _, c := range conns {
		views = append(views, connectionView{
			ID:             c.ID,
			Exchange:       c.Exchange,
			APIKey:         c.RedactedKey(),
			APISecret:      c.MaskedSecret(),
			TelegramChatID: c.TelegramChatID,
			Status:         c.Status,
			AddedOn:        c.AddedOn,
		})
	}
	s.writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleAddConnection(w http.ResponseWriter, r *http.Request) {
	input, err := decodeBody(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	draft, err := forms.DecodeConnectionDraft(input)
	if err != nil {
		s.writeError(w, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	if err := s.deps.Connections.Open(); err != nil {
		s.writeError(w, err)
		return
	}

	res, err := s.deps.Connections.Submit(r.Context(), draft)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.deps.Metrics.Inc("connection.added")
	s.writeJSON(w, http.StatusCreated, res)
}

// handleTestConnection reports the probe outcome. A failed probe is still a 200.
func (s *Server) handleTestConnection(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Connections.TestConnection(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.deps.Metrics.Inc("connection.tested." + string(res.Phase))
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleDeleteConnection(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Connections.Remove(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.deps.Metrics.Inc("connection.removed")
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleListPlans(w http.ResponseWriter, r *http.Request) {
	current, cycle := s.deps.Plans.Current()
	s.writeJSON(w, http.StatusOK, plansResponse{
		Plans:        s.deps.Plans.Plans(),
		CurrentPlan:  current.ID,
		BillingCycle: cycle,
		NextPayment:  plans.NextPayment(current, cycle, time.Now()),
	})
}

// handleUpgradePlan switches plans. The body may carry {"billingCycle": "yearly"}.
func (s *Server) handleUpgradePlan(w http.ResponseWriter, r *http.Request) {
	input, err := decodeBody(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	cycle, _ := input["billingCycle"].(string)

	res, err := s.deps.Plans.Upgrade(r.Context(), chi.URLParam(r, "id"), models.BillingCycle(cycle))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.deps.Metrics.Inc("plan.upgraded")
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleCancelPlan(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Plans.Cancel(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.deps.Metrics.Inc("plan.cancelled")
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleSupport(w http.ResponseWriter, r *http.Request) {
	input, err := decodeBody(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	draft, err := forms.DecodeSupportTicket(input)
	if err != nil {
		s.writeError(w, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}

	res, err := s.deps.Support.Submit(r.Context(), draft)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.deps.Notifications.All())
}
