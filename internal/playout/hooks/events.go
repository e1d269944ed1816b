// Package hooks implements the engine's lifecycle event fan-out: block
// and seam transitions and session start/end are posted here for external
// consumers (shell scripts, webhooks, structured stdio) without coupling
// the tick loop to any particular notification channel. Event types for
// the bounded-fallback states (degraded TAKE, frame authority vacuum,
// fence preload miss, padded gap, preload failure) and block_fence are
// defined here as well; control.Session does not trigger them.
package hooks

import (
	"time"

	"github.com/google/uuid"
)

// EventType names one playout lifecycle event.
type EventType string

const (
	// Block/session lifecycle.
	EventBlockLoaded    EventType = "block_loaded"
	EventBlockCompleted EventType = "block_completed"
	EventSessionStarted EventType = "session_started"
	EventSessionEnded   EventType = "session_ended"

	// Seam/transition events.
	EventSeamTransition EventType = "seam_transition"
	EventBlockFence     EventType = "block_fence"

	// Bounded-fallback and violation events (see internal/perr).
	EventPaddedGapEntered     EventType = "padded_gap_entered"
	EventFencePreloadMissed   EventType = "fence_preload_missed"
	EventDegradedTakeEntered  EventType = "degraded_take_entered"
	EventFrameAuthorityVacuum EventType = "frame_authority_vacuum"
	EventPreloadFailed        EventType = "preload_failed"
)

// Event represents a single playout event that can trigger hooks.
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Timestamp int64                  `json:"timestamp"`
	ChannelID string                 `json:"channel_id,omitempty"`
	BlockID   string                 `json:"block_id,omitempty"`
	SegmentID string                 `json:"segment_id,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// NewEvent creates a new event with the current timestamp and a unique
// event ID (see internal/playout/blockplan for the matching session ID).
func NewEvent(eventType EventType) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().Unix(),
		Data:      make(map[string]interface{}),
	}
}

// WithChannelID sets the event's channel identity.
func (e *Event) WithChannelID(channelID string) *Event {
	e.ChannelID = channelID
	return e
}

// WithBlockID sets the event's block identity.
func (e *Event) WithBlockID(blockID string) *Event {
	e.BlockID = blockID
	return e
}

// WithSegmentID sets the event's segment identity.
func (e *Event) WithSegmentID(segmentID string) *Event {
	e.SegmentID = segmentID
	return e
}

// WithData adds a data field to the event.
func (e *Event) WithData(key string, value interface{}) *Event {
	if e.Data == nil {
		e.Data = make(map[string]interface{})
	}
	e.Data[key] = value
	return e
}

// String returns a human-readable representation of the event.
func (e *Event) String() string {
	if e.SegmentID != "" {
		return string(e.Type) + ":" + e.SegmentID
	}
	if e.BlockID != "" {
		return string(e.Type) + ":" + e.BlockID
	}
	return string(e.Type)
}
