// Package notify delivers the engine's lifecycle notifications (startup,
// wind-down, abnormal stop) to the configured operator channels. Senders are
// best-effort: a failed delivery is logged and reported, never fatal to the
// engine.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Event classifies a notification so operators can subscribe per type.
type Event string

// The engine emits exactly these events.
const (
	// EventStartup fires once the session bands are built and the live loop
	// is about to start.
	EventStartup Event = "startup"
	// EventWindDown fires after the engine stopped normally: the market
	// close triggered the global flatten.
	EventWindDown Event = "wind_down"
	// EventAbnormalStop fires when the engine stopped any other way, for
	// example relay channel closure or a runtime failure.
	EventAbnormalStop Event = "abnormal_stop"
)

// Sender is one delivery channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	// Name identifies the channel in logs and combined errors.
	Name() string
}

// Notifier fans a notification out to every sender, gated by the configured
// event subscription. An empty subscription means every event passes.
type Notifier struct {
	senders    []Sender
	subscribed map[Event]bool
	logger     *slog.Logger
}

// NewNotifier creates a Notifier delivering to senders. events is the
// subscription from config (`notify.events`); unknown names are kept as-is so
// a future event type needs no loader change.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	subscribed := make(map[Event]bool, len(events))
	for _, e := range events {
		subscribed[Event(strings.TrimSpace(e))] = true
	}
	return &Notifier{
		senders:    senders,
		subscribed: subscribed,
		logger:     logger.With(slog.String("component", "notifier")),
	}
}

// Notify delivers one notification to every sender if the event is
// subscribed. Sender failures are collected into one combined error; every
// sender is still attempted.
func (n *Notifier) Notify(ctx context.Context, event Event, title, message string) error {
	if len(n.subscribed) > 0 && !n.subscribed[event] {
		n.logger.DebugContext(ctx, "event not subscribed, skipping",
			slog.String("event", string(event)),
		)
		return nil
	}
	if len(n.senders) == 0 {
		return nil
	}

	var failed []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("event", string(event)),
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			failed = append(failed, fmt.Sprintf("%s: %v", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("event", string(event)),
			slog.String("sender", s.Name()),
		)
	}

	if len(failed) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(failed), strings.Join(failed, "; "))
	}
	return nil
}
