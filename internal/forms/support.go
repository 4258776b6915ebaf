package forms

import (
	"context"
	"strategy-desk/internal/models"
	"strategy-desk/internal/notify"
	"strategy-desk/internal/operation"
	"strategy-desk/internal/validation"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	msgTicketSent   = "Your message has been sent. We'll get back to you soon!"
	msgTicketFailed = "Failed to send your message. Please try again."
)

// SendTicketFunc delivers a validated support ticket.
type SendTicketFunc func(ctx context.Context, draft models.SupportTicketDraft) error

// LogTicket returns a SendTicketFunc that only writes the ticket to the log.
func LogTicket(logger *zap.Logger) SendTicketFunc {
	return func(_ context.Context, d models.SupportTicketDraft) error {
		logger.Info("support ticket received",
			zap.String("name", d.Name),
			zap.String("email", d.Email),
			zap.String("subject", d.Subject))
		return nil
	}
}

// SupportForm is the contact form of the support page.
type SupportForm struct {
	lc       *lifecycle
	send     SendTicketFunc
	latency  time.Duration
	notifier notify.Notifier

	mu     sync.Mutex
	draft  models.SupportTicketDraft
	errors validation.FieldErrors
}

func NewSupportForm(send SendTicketFunc, latency time.Duration, notifier notify.Notifier, logger *zap.Logger) *SupportForm {
	return &SupportForm{
		lc:       newLifecycle("support", logger),
		send:     send,
		latency:  latency,
		notifier: notifier,
	}
}

// Submit validates the ticket and sends it after the simulated latency. The form is cleared
// once the ticket is sent.
func (f *SupportForm) Submit(ctx context.Context, draft models.SupportTicketDraft) (operation.Result, error) {
	prepare := func() (submission, error) {
		err := validation.SupportTicket(draft)
		f.mu.Lock()
		f.draft = draft
		f.errors, _ = err.(validation.FieldErrors)
		f.mu.Unlock()
		if err != nil {
			return submission{}, err
		}
		return submission{
			op: operation.Then(operation.Simulated{Delay: f.latency}, func() error {
				return f.send(ctx, draft)
			}),
			msgs: operation.Messages{Success: msgTicketSent, Failure: msgTicketFailed},
		}, nil
	}

	res, err := f.lc.submit(ctx, prepare, f.notifier)
	if err != nil {
		return res, err
	}

	f.mu.Lock()
	f.draft = models.SupportTicketDraft{}
	f.mu.Unlock()
	return res, nil
}

func (f *SupportForm) State() State { return f.lc.state() }

func (f *SupportForm) Draft() models.SupportTicketDraft {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.draft
}

func (f *SupportForm) Errors() validation.FieldErrors {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.errors
}
