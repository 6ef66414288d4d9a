package events

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	eventSource  = "options_flow_analyzer"
	eventVersion = "1.0"
)

// BaseEvent is the envelope shared by every published event
type BaseEvent struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
	RunID     string    `json:"run_id"`
	Version   string    `json:"version"`
}

// NewBaseEvent creates a new base event with defaults
func NewBaseEvent(eventType, runID string) BaseEvent {
	return BaseEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Source:    eventSource,
		RunID:     runID,
		Version:   eventVersion,
	}
}

// SanitizeUTF8 drops invalid UTF-8 sequences; upstream error texts end up in event payloads
func SanitizeUTF8(s string) string {
	return strings.ToValidUTF8(s, "")
}
