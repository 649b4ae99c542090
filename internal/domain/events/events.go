// Package events defines domain events that represent significant business occurrences.
// Events are immutable facts about what happened in the past.
//
// Events defined here travel over the message broker, so their exported
// fields double as the JSON wire schema.
package events

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// DomainEvent is the base interface for all domain events.
type DomainEvent interface {
	EventID() string
	EventType() string
	OccurredAt() time.Time
}

// Event Types (wire discriminators)
const (
	EventTypeApplicationSubmitted = "ApplicationSubmitted"
)

// NewMessageID returns a fresh message identifier: a UUID rendered as
// 32 lowercase hex characters without dashes.
func NewMessageID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
