// Package notify delivers operator alerts for engine events: completed or
// aborted evolution cycles, algorithm failures, and data gaps. Notifications
// fan out to all registered senders and can be filtered by event type.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/evoquant/evobot/internal/domain"
)

// Event names used by the engine.
const (
	EventCycleComplete    = "cycle_complete"
	EventCycleAborted     = "cycle_aborted"
	EventAlgorithmFailure = "algorithm_failure"
	EventDataGap          = "data_gap"
)

// Notification is the payload handed to each sender. Event carries the
// engine event name so channels can render per-event styling.
type Notification struct {
	Event string
	Title string
	Body  string
}

// Sender is the interface each notification channel implements.
type Sender interface {
	// Send delivers a notification to the channel.
	Send(ctx context.Context, n Notification) error
	// Name returns a human-readable sender identifier (e.g. "telegram").
	Name() string
}

// Notifier dispatches notifications to one or more Senders, filtered by an
// allowed event-type set. An empty set allows every event.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier delivering to the given senders. Only
// events named in the events slice pass the filter; an empty slice allows
// all.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		allowed[strings.TrimSpace(e)] = true
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Notify sends a notification when the event type passes the filter.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", event))
		return nil
	}
	return n.dispatch(ctx, Notification{Event: event, Title: title, Body: message})
}

// NotifyCycle formats and sends a completed evolution cycle summary.
func (n *Notifier) NotifyCycle(ctx context.Context, rec domain.EvolutionCycleRecord) error {
	title := fmt.Sprintf("Evolution cycle %s", shortID(rec.CycleID))
	message := fmt.Sprintf(
		"selected %d, proposed %d, accepted %d, retired %d",
		len(rec.SelectedIDs), len(rec.Proposed), len(rec.AcceptedIDs), len(rec.RetiredIDs),
	)
	return n.Notify(ctx, EventCycleComplete, title, message)
}

// dispatch delivers to every sender; one sender's failure never blocks the
// rest. Errors are collected into a combined error.
func (n *Notifier) dispatch(ctx context.Context, note Notification) error {
	if len(n.senders) == 0 {
		return nil
	}

	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, note); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", note.Title),
		)
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %s", strings.Join(errs, "; "))
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
