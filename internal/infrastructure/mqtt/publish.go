package mqtt

import "fmt"

// maxPayloadSize caps outbound payloads at 1MB.
const maxPayloadSize = 1 << 20

// Assurance is the delivery guarantee requested for a publish.
type Assurance byte

// Assurance levels map one to one onto MQTT QoS.
const (
	AtMostOnce  Assurance = 0
	AtLeastOnce Assurance = 1
	ExactlyOnce Assurance = 2
)

// QoS returns the MQTT QoS level for a.
func (a Assurance) QoS() byte { return byte(a) }

func (a Assurance) String() string {
	switch a {
	case AtMostOnce:
		return "at_most_once"
	case AtLeastOnce:
		return "at_least_once"
	case ExactlyOnce:
		return "exactly_once"
	default:
		return fmt.Sprintf("assurance(%d)", byte(a))
	}
}

// DeliveryOptions controls how a single message is published.
type DeliveryOptions struct {
	Assurance Assurance
	Retained  bool
}

// Publish sends payload to topic and waits for the broker acknowledgement
// the QoS level calls for (none for QoS 0).
//
// Nothing is queued while the client is offline: the call fails with
// ErrNotConnected.
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if err := ValidateTopicName(topic); err != nil {
		return err
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	return waitToken(c.sess.Publish(topic, qos, retained, payload), ErrPublishFailed)
}

// PublishWith publishes using DeliveryOptions.
//
//	err := client.PublishWith(topic, body, mqtt.DeliveryOptions{Assurance: mqtt.ExactlyOnce})
func (c *Client) PublishWith(topic string, payload []byte, opts DeliveryOptions) error {
	if opts.Assurance > ExactlyOnce {
		return ErrInvalidQoS
	}
	return c.Publish(topic, payload, opts.Assurance.QoS(), opts.Retained)
}

// DefaultDelivery returns the configured default QoS, not retained.
func (c *Client) DefaultDelivery() DeliveryOptions {
	return DeliveryOptions{Assurance: Assurance(c.cfg.QoS)}
}
