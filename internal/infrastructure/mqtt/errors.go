package mqtt

import "errors"

// Use errors.Is to check for these in calling code.
var (
	// ErrNotConnected is returned while the broker session is down.
	// Nothing is queued for later delivery.
	ErrNotConnected = errors.New("mqtt: client not connected")

	// ErrConnectionFailed wraps the broker's error from the initial connect.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrPublishFailed wraps a publish the broker did not acknowledge.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrSubscribeFailed wraps a SUBSCRIBE the broker refused or timed out.
	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")

	// ErrUnsubscribeFailed wraps a failed broker UNSUBSCRIBE.
	ErrUnsubscribeFailed = errors.New("mqtt: unsubscribe failed")

	// ErrInvalidQoS rejects a QoS outside 0..2.
	ErrInvalidQoS = errors.New("mqtt: invalid QoS level (must be 0, 1, or 2)")

	// ErrInvalidTopic rejects an empty topic.
	ErrInvalidTopic = errors.New("mqtt: topic cannot be empty")

	// ErrInvalidTopicName rejects a publish topic containing wildcards or NUL.
	ErrInvalidTopicName = errors.New("mqtt: invalid topic name")

	// ErrInvalidPattern rejects a subscription pattern with misplaced wildcards.
	ErrInvalidPattern = errors.New("mqtt: invalid topic pattern")

	// ErrInvalidSerial rejects a serial that cannot be a topic segment.
	ErrInvalidSerial = errors.New("mqtt: invalid device serial")
)
