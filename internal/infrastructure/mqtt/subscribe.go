package mqtt

import (
	"fmt"
	"sort"
)

// Subscribe routes messages matching filter to handler and remembers the
// subscription so it survives reconnects. Subscribing the same filter again
// replaces the handler.
//
// Example:
//
//	err := client.Subscribe(client.Topics().Subscribe(), 1, ingestor.Ingest)
func (c *Client) Subscribe(filter string, qos byte, handler MessageHandler) error {
	if err := checkRequest(filter, qos); err != nil {
		return err
	}
	if handler == nil {
		return fmt.Errorf("%w: handler cannot be nil", ErrSubscribeFailed)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	if err := await(c.paho.Subscribe(filter, qos, c.dispatch(handler)), ErrSubscribeFailed); err != nil {
		return err
	}

	c.mu.Lock()
	c.subs[filter] = subscription{qos: qos, handler: handler}
	c.mu.Unlock()
	return nil
}

// Unsubscribe drops filter. Messages already in flight may still arrive.
func (c *Client) Unsubscribe(filter string) error {
	if filter == "" {
		return ErrInvalidTopic
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.mu.Lock()
	delete(c.subs, filter)
	c.mu.Unlock()

	return await(c.paho.Unsubscribe(filter), ErrUnsubscribeFailed)
}

// Subscriptions returns the active filters in sorted order.
func (c *Client) Subscriptions() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	filters := make([]string, 0, len(c.subs))
	for f := range c.subs {
		filters = append(filters, f)
	}
	sort.Strings(filters)
	return filters
}
