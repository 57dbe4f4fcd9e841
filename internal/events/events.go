// Package events fans recorded decisions out to downstream consumers.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ILLUVRSE/outfit-review/internal/models"
)

// TypeDecisionRecorded is the event type of DecisionEvent.
const TypeDecisionRecorded = "decision.recorded"

// DecisionEvent describes one decision that was durably recorded.
type DecisionEvent struct {
	ID          string             `json:"id"`
	Type        string             `json:"type"`
	Fingerprint string             `json:"fingerprint"`
	Combination models.Combination `json:"combination"`
	Decisions   models.DecisionSet `json:"decisions"`
	Accepted    []models.Category  `json:"accepted"`
	Reviewer    string             `json:"reviewer,omitempty"`
	Ts          time.Time          `json:"ts"`
}

// NewDecisionEvent builds the event for a processed record.
func NewDecisionEvent(rec *models.ProcessedRecord) DecisionEvent {
	accepted := rec.Decisions.Accepted()
	if accepted == nil {
		accepted = []models.Category{}
	}
	return DecisionEvent{
		ID:          uuid.New().String(),
		Type:        TypeDecisionRecorded,
		Fingerprint: rec.Combination.Fingerprint(),
		Combination: rec.Combination.Identity(),
		Decisions:   rec.Decisions,
		Accepted:    accepted,
		Reviewer:    rec.Reviewer,
		Ts:          rec.ProcessedAt,
	}
}

// Publisher accepts decision events. Implementations must not block the
// caller for long; delivery is best effort.
type Publisher interface {
	Publish(ctx context.Context, ev DecisionEvent) error
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, DecisionEvent) error { return nil }
