package mqtt

import "fmt"

// maxPayloadSize caps outbound payloads. Setting values are scalars or
// small JSON documents, far below this.
const maxPayloadSize = 1 << 20

// Publish sends payload to topic and waits for the broker acknowledgement
// (QoS 1 and 2) or the write (QoS 0). One attempt; the caller decides what a
// failure means.
//
// Setting commands must not be retained: a restarting gateway would replay
// a stale value. Only the core status topic is retained.
//
// Example:
//
//	topic := client.Topics().Universal("gridChargeOn")
//	err := client.Publish(topic, []byte("false"), 1, false)
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if err := checkRequest(topic, qos); err != nil {
		return err
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	if err := await(c.paho.Publish(topic, qos, retained, payload), ErrPublishFailed); err != nil {
		return err
	}
	c.stats.published.Add(1)
	return nil
}
