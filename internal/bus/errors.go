package bus

import "errors"

// Sentinel errors for device bus operations. Use errors.Is to check them.
var (
	// ErrNotConnected is returned when publishing or subscribing on a disconnected client.
	ErrNotConnected = errors.New("bus: client not connected")

	// ErrConnectionFailed is returned when the initial broker connection fails.
	ErrConnectionFailed = errors.New("bus: connection failed")

	// ErrPublishFailed is returned when a message cannot be handed to the broker.
	ErrPublishFailed = errors.New("bus: publish failed")

	// ErrSubscribeFailed is returned when a subscription is rejected.
	ErrSubscribeFailed = errors.New("bus: subscribe failed")

	// ErrInvalidTopic is returned for an empty topic or command target.
	ErrInvalidTopic = errors.New("bus: topic cannot be empty")

	// ErrInvalidURL is returned when the broker connection string cannot be used.
	ErrInvalidURL = errors.New("bus: invalid broker url")

	// ErrInvalidQoS is returned for a QoS level other than 0, 1 or 2.
	ErrInvalidQoS = errors.New("bus: invalid QoS level (must be 0, 1, or 2)")
)
