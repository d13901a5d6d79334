package models

import "time"

// SyncStatus is a point-in-time view of the reconciler.
type SyncStatus struct {
	State             PlugState `json:"state"`
	PendingSyncs      int       `json:"pending_syncs"`
	SuppressedDevices int       `json:"suppressed_devices"`
	BusConnected      bool      `json:"bus_connected"`
	CheckedAt         time.Time `json:"checked_at"`
}
