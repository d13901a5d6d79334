package service

import "time"

// LogFilter supports journal filtering by time range, type and device.
type LogFilter struct {
	From     time.Time // inclusive; zero means no lower bound
	To       time.Time // inclusive; zero means no upper bound
	Type     string    // "", "DRIFT_CORRECTION", "ONLINE_SYNC", "GROUP_COMMAND"
	DeviceID string    // "" means every device
}
