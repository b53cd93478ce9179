package responselog

import (
	"context"
	"time"
)

// Outcome is the terminal state of one pipeline run.
type Outcome string

const (
	OutcomeCommitted Outcome = "committed"
	OutcomeFailed    Outcome = "failed"
	OutcomeDropped   Outcome = "dropped"
)

// EventRecorder records meta-data about each pipeline run.
type EventRecorder interface {
	Record(ctx context.Context, e Event)
}

// Event represents the meta data associated with one logged (or dropped) request.
type Event struct {
	Measurement    string
	Method         string
	StatusCode     int
	Outcome        Outcome
	CommitDuration time.Duration
}

// NopEventRecorder never records events.
type NopEventRecorder struct{}

// Record never records events.
func (n *NopEventRecorder) Record(_ context.Context, _ Event) {}
