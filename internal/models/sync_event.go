package models

import (
	"time"

	"github.com/google/uuid"
)

// Sync event types.
const (
	EventDriftCorrection = "DRIFT_CORRECTION"
	EventOnlineSync      = "ONLINE_SYNC"
	EventGroupCommand    = "GROUP_COMMAND"
)

// SyncEvent is a single journal entry for a command that was sent to the bus.
type SyncEvent struct {
	EventID     string    `json:"event_id"`
	OccurredAt  time.Time `json:"occurred_at"`
	Type        string    `json:"type"`      // DRIFT_CORRECTION | ONLINE_SYNC | GROUP_COMMAND
	DeviceID    string    `json:"device_id"` // group id for GROUP_COMMAND
	State       PlugState `json:"state"`
	Description string    `json:"description"`
}

// NewSyncEvent stamps a new journal entry with a fresh id and a UTC timestamp.
func NewSyncEvent(now time.Time, eventType, deviceID string, state PlugState, description string) SyncEvent {
	return SyncEvent{
		EventID:     uuid.NewString(),
		OccurredAt:  now.UTC(),
		Type:        eventType,
		DeviceID:    deviceID,
		State:       state,
		Description: description,
	}
}
