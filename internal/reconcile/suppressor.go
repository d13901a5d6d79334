package reconcile

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// DefaultCommandTimeout is how long a commanded device's reports are treated as echoes.
const DefaultCommandTimeout = 2 * time.Second

// Suppressor remembers which devices were just commanded so their echo
// reports are not mistaken for fresh drift.
//
// It is not safe for concurrent use; the engine serialises access.
type Suppressor struct {
	clock     clockwork.Clock
	timeout   time.Duration
	commanded map[string]time.Time // device id -> expiry
}

// NewSuppressor returns a Suppressor whose entries live for timeout
// (DefaultCommandTimeout when timeout <= 0).
func NewSuppressor(clk clockwork.Clock, timeout time.Duration) *Suppressor {
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	return &Suppressor{
		clock:     clk,
		timeout:   timeout,
		commanded: make(map[string]time.Time),
	}
}

// MarkCommanded starts (or restarts) the suppression window for deviceID at
// the instant its command was published.
func (s *Suppressor) MarkCommanded(deviceID string, at time.Time) {
	s.commanded[deviceID] = at.Add(s.timeout)
}

// IsSuppressed reports whether deviceID has an unexpired entry. Expired
// entries are removed on the way.
func (s *Suppressor) IsSuppressed(deviceID string) bool {
	expiry, ok := s.commanded[deviceID]
	if !ok {
		return false
	}
	if !s.clock.Now().Before(expiry) {
		delete(s.commanded, deviceID)
		return false
	}
	return true
}

// Sweep drops every expired entry and returns how many were removed.
func (s *Suppressor) Sweep() int {
	now := s.clock.Now()
	removed := 0
	for id, expiry := range s.commanded {
		if !now.Before(expiry) {
			delete(s.commanded, id)
			removed++
		}
	}
	return removed
}

// Active counts unexpired entries without removing anything.
func (s *Suppressor) Active() int {
	now := s.clock.Now()
	n := 0
	for _, expiry := range s.commanded {
		if now.Before(expiry) {
			n++
		}
	}
	return n
}
