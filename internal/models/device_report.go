package models

import (
	"bytes"
	"encoding/json"
	"errors"
)

// AvailabilityOnline is the availability value a (re)joined device announces.
const AvailabilityOnline = "online"

var errEmptyPayload = errors.New("empty payload")

// DeviceReport is one inbound message from a device on the bus.
type DeviceReport struct {
	DeviceID     string
	State        PlugState // empty when the message carried no state
	Availability string
}

// HasState reports whether the device included its on/off state.
func (r DeviceReport) HasState() bool { return r.State != "" }

// Online reports whether the device announced it is online.
func (r DeviceReport) Online() bool { return r.Availability == AvailabilityOnline }

// ParseDeviceReport decodes a device payload. Only payloads that are not a
// JSON object are rejected; each field is read on its own, so a strangely
// typed field never hides the others.
//
// A string state is taken verbatim. Any other non-empty state value (true, a
// number, an object) counts as present and is kept as its JSON text, which
// never equals ON or OFF. false, 0 and null count as absent. A non-string
// availability is treated as not online.
func ParseDeviceReport(deviceID string, payload []byte) (DeviceReport, error) {
	if len(bytes.TrimSpace(payload)) == 0 {
		return DeviceReport{}, errEmptyPayload
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return DeviceReport{}, err
	}
	if fields == nil {
		return DeviceReport{}, errEmptyPayload
	}

	report := DeviceReport{DeviceID: deviceID}
	if raw, ok := fields["state"]; ok {
		report.State = reportedState(raw)
	}
	if raw, ok := fields["availability"]; ok {
		var s string
		if json.Unmarshal(raw, &s) == nil {
			report.Availability = s
		}
	}
	return report, nil
}

func reportedState(raw json.RawMessage) PlugState {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return PlugState(s)
	}
	if absentValue(raw) {
		return ""
	}
	var compact bytes.Buffer
	if json.Compact(&compact, raw) != nil {
		return PlugState(raw)
	}
	return PlugState(compact.String())
}

// absentValue reports whether raw is null, false or a numeric zero.
func absentValue(raw json.RawMessage) bool {
	switch string(bytes.TrimSpace(raw)) {
	case "null", "false":
		return true
	}
	var n float64
	return json.Unmarshal(raw, &n) == nil && n == 0
}
