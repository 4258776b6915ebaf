// Package notify carries the short user-facing messages every desk action produces.
package notify

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Level is the tone of a notification.
type Level string

const (
	Pending Level = "pending"
	Success Level = "success"
	Failure Level = "error"
	Info    Level = "info"
)

// Notification is one transient message shown to the user.
type Notification struct {
	Level   Level     `json:"level"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// Notifier delivers notifications.
type Notifier interface {
	Notify(n Notification)
}

// Send builds a notification stamped with the current time and delivers it.
func Send(n Notifier, level Level, message string) {
	if n == nil {
		return
	}
	n.Notify(Notification{Level: level, Message: message, Time: time.Now()})
}

// Recorder keeps the most recent notifications in memory.
type Recorder struct {
	mu    sync.Mutex
	items []Notification
	limit int
}

// NewRecorder creates a recorder holding at most limit entries. A limit of 0 keeps everything.
func NewRecorder(limit int) *Recorder {
	return &Recorder{limit: limit}
}

func (r *Recorder) Notify(n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, n)
	if r.limit > 0 && len(r.items) > r.limit {
		r.items = r.items[len(r.items)-r.limit:]
	}
}

// All returns a copy of the recorded notifications, oldest first.
func (r *Recorder) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, len(r.items))
	copy(out, r.items)
	return out
}

// Count returns how many recorded notifications have the level.
func (r *Recorder) Count(level Level) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, it := range r.items {
		if it.Level == level {
			n++
		}
	}
	return n
}

// LogNotifier writes notifications to the log.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (l *LogNotifier) Notify(n Notification) {
	l.logger.Info("notification", zap.String("level", string(n.Level)), zap.String("message", n.Message))
}

// Multi fans a notification out to several notifiers.
type Multi []Notifier

func (m Multi) Notify(n Notification) {
	for _, t := range m {
		if t != nil {
			t.Notify(n)
		}
	}
}
