// Package plans handles the subscription page: listing tiers, upgrading and cancelling.
// No payment is taken; every change is a simulated round trip.
package plans

import (
	"context"
	"errors"
	"fmt"
	"strategy-desk/internal/catalog"
	"strategy-desk/internal/models"
	"strategy-desk/internal/notify"
	"strategy-desk/internal/operation"
	"time"

	"go.uber.org/zap"
)

var (
	ErrUnknownPlan     = errors.New("unknown plan")
	ErrAlreadyCurrent  = errors.New("plan is already the current plan")
	ErrNothingToCancel = errors.New("the free plan has no subscription to cancel")
)

const (
	msgCancelled    = "Your subscription has been cancelled. You can still use premium features until the end of your billing cycle."
	msgChangeFailed = "Failed to update your subscription. Please try again."
	freePlanID      = "free"
)

// Store is the part of the desk store that tracks the current plan.
type Store interface {
	Snapshot() *models.DeskState
	SetPlan(planID string, cycle models.BillingCycle) error
}

// Service runs plan changes against the store.
type Service struct {
	store    Store
	plans    []models.SubscriptionPlan
	latency  time.Duration
	notifier notify.Notifier
	logger   *zap.Logger
}

func NewService(store Store, latency time.Duration, notifier notify.Notifier, logger *zap.Logger) *Service {
	return &Service{
		store:    store,
		plans:    catalog.Plans(),
		latency:  latency,
		notifier: notifier,
		logger:   logger,
	}
}

// Plans returns the tiers in display order.
func (s *Service) Plans() []models.SubscriptionPlan {
	out := make([]models.SubscriptionPlan, len(s.plans))
	copy(out, s.plans)
	return out
}

// Find returns the plan with id.
func (s *Service) Find(id string) (models.SubscriptionPlan, bool) {
	for _, p := range s.plans {
		if p.ID == id {
			return p, true
		}
	}
	return models.SubscriptionPlan{}, false
}

// Current returns the plan the user is on and the billing cycle.
func (s *Service) Current() (models.SubscriptionPlan, models.BillingCycle) {
	state := s.store.Snapshot()
	p, _ := s.Find(state.CurrentPlanID)
	return p, state.BillingCycle
}

// NextPayment describes the next charge for plan on cycle, counted from now.
func NextPayment(plan models.SubscriptionPlan, cycle models.BillingCycle, now time.Time) string {
	if plan.ID == freePlanID {
		return "No payment required"
	}
	next := now.AddDate(0, 1, 0)
	if cycle == models.Yearly {
		next = now.AddDate(1, 0, 0)
	}
	return fmt.Sprintf("%s on %s", plan.PriceFor(cycle), next.Format("January 2, 2006"))
}

// Upgrade switches the current plan to planID after the simulated latency.
func (s *Service) Upgrade(ctx context.Context, planID string, cycle models.BillingCycle) (operation.Result, error) {
	plan, ok := s.Find(planID)
	if !ok {
		return operation.Result{}, fmt.Errorf("upgrade to %q: %w", planID, ErrUnknownPlan)
	}
	if cycle == "" {
		cycle = models.Monthly
	}
	current, _ := s.Current()
	if current.ID == plan.ID {
		return operation.Result{}, fmt.Errorf("upgrade to %q: %w", planID, ErrAlreadyCurrent)
	}

	op := operation.Then(operation.Simulated{Delay: s.latency}, func() error {
		s.logger.Info("Upgrading plan", zap.String("from", current.ID), zap.String("to", plan.ID))
		return s.store.SetPlan(plan.ID, cycle)
	})
	res := operation.Track(ctx, op, operation.Messages{
		Success: fmt.Sprintf("Successfully upgraded to %s plan!", plan.Name),
		Failure: msgChangeFailed,
	}, s.notifier)
	if !res.OK() {
		return res, res.Err
	}
	return res, nil
}

// Cancel cancels the paid subscription. The plan stays current until the billing cycle ends.
func (s *Service) Cancel(ctx context.Context) (operation.Result, error) {
	current, _ := s.Current()
	if current.ID == "" || current.ID == freePlanID {
		return operation.Result{}, ErrNothingToCancel
	}

	op := operation.Then(operation.Simulated{Delay: s.latency}, func() error {
		s.logger.Info("Cancelling subscription", zap.String("plan", current.ID))
		return nil
	})
	res := operation.Track(ctx, op, operation.Messages{Success: msgCancelled, Failure: msgChangeFailed}, s.notifier)
	if !res.OK() {
		return res, res.Err
	}
	return res, nil
}
