package workflow

import (
	"context"
	"time"
)

// EventKind identifies a workflow milestone.
type EventKind string

const (
	EventDiscovered           EventKind = "discovered"
	EventMatched              EventKind = "matched"
	EventConfirmationRequired EventKind = "confirmation_required"
	EventApplicationStart     EventKind = "application_start"
	EventApplicationComplete  EventKind = "application_complete"
	EventError                EventKind = "error"
)

// Event is one milestone on the event stream. Events are emitted in the
// order milestones occur; consumers drive CLI/UI feedback from them
// without the engine knowing about any presentation layer.
type Event struct {
	Kind      EventKind
	SessionID string
	JobID     string
	JobTitle  string
	Score     float64
	Message   string
	Time      time.Time
}

// Events returns the engine's event stream. The channel is buffered;
// once the buffer fills, emission blocks the run until the consumer
// drains (the audit ordering guarantee outranks liveness). The channel
// closes when the run that owns it returns.
func (e *Engine) Events() <-chan Event {
	return e.events
}

// emit delivers ev in order, giving up only on cancellation.
func (e *Engine) emit(ctx context.Context, ev Event) {
	ev.Time = time.Now()
	select {
	case e.events <- ev:
	case <-ctx.Done():
	}
}
