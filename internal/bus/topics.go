package bus

import "strings"

// DefaultBaseTopic is the zigbee2mqtt default prefix.
const DefaultBaseTopic = "zigbee2mqtt"

// Topics builds the device topics below a base prefix.
//
//	t := bus.NewTopics("zigbee2mqtt")
//	t.Devices()        // zigbee2mqtt/+
//	t.Set("plug-1")    // zigbee2mqtt/plug-1/set
type Topics struct {
	Base string
}

// NewTopics trims surrounding slashes from base and falls back to DefaultBaseTopic.
func NewTopics(base string) Topics {
	base = strings.Trim(base, "/")
	if base == "" {
		base = DefaultBaseTopic
	}
	return Topics{Base: base}
}

// Devices is the single-level wildcard covering every device report topic.
func (t Topics) Devices() string {
	return t.Base + "/+"
}

// Set is the command topic for a device or group.
func (t Topics) Set(target string) string {
	return t.Base + "/" + target + "/set"
}

// DeviceID extracts the device id from a report topic. It returns "" when the
// topic is outside the base, has no id, or has more than one level below the base.
func (t Topics) DeviceID(topic string) string {
	rest, ok := strings.CutPrefix(topic, t.Base+"/")
	if !ok || rest == "" || strings.Contains(rest, "/") {
		return ""
	}
	return rest
}
