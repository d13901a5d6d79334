package models

import "fmt"

// PlugState is the ON/OFF state of a plug, and the type of the desired state.
type PlugState string

const (
	StateOn  PlugState = "ON"
	StateOff PlugState = "OFF"

	// DefaultState is used when nothing has been persisted yet.
	DefaultState = StateOff
)

// Valid reports whether s is ON or OFF.
func (s PlugState) Valid() bool {
	return s == StateOn || s == StateOff
}

func (s PlugState) String() string { return string(s) }

// ParsePlugState accepts exactly "ON" or "OFF".
func ParsePlugState(v string) (PlugState, error) {
	s := PlugState(v)
	if !s.Valid() {
		return "", fmt.Errorf("invalid plug state %q", v)
	}
	return s, nil
}
