package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/solar-control-core/internal/infrastructure/config"
)

// Client is the bus connection shared by the telemetry subscription and the
// command publisher.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Subscriptions are re-issued after every reconnect.
//   - Handlers run on paho's delivery goroutine, in arrival order.
type Client struct {
	paho   pahomqtt.Client
	cfg    config.MQTTConfig
	topics Topics

	mu        sync.RWMutex
	subs      map[string]subscription
	onConnect func()
	onLost    func(err error)
	logger    Logger

	online atomic.Bool
	stats  counters
}

// Logger is the subset of logging.Logger the client needs.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// MessageHandler receives one inbound message. A returned error is logged
// and counted; the message is never redelivered.
type MessageHandler func(topic string, payload []byte) error

type subscription struct {
	qos     byte
	handler MessageHandler
}

// Stats are running totals since Connect.
type Stats struct {
	Received      uint64 `json:"received"`
	HandlerErrors uint64 `json:"handler_errors"`
	Panics        uint64 `json:"panics"`
	Published     uint64 `json:"published"`
	Reconnects    uint64 `json:"reconnects"`
}

type counters struct {
	received      atomic.Uint64
	handlerErrors atomic.Uint64
	panics        atomic.Uint64
	published     atomic.Uint64
	reconnects    atomic.Uint64
}

// Connect dials the broker and blocks until the session is up, the
// connect timeout passes, or ctx is cancelled.
//
// On every (re)connect the client re-subscribes and publishes a retained
// "online" message to {namespace}/core/status. The broker publishes the
// "offline" will message on that topic if the process dies.
//
// Parameters:
//   - ctx: Cancels the wait for the initial connection
//   - cfg: MQTT configuration from config.yaml
//
// Returns:
//   - *Client: Connected client ready for use
//   - error: ErrConnectionFailed wrapping the cause
func Connect(ctx context.Context, cfg config.MQTTConfig) (*Client, error) {
	c := &Client{
		cfg:    cfg,
		topics: Topics{Namespace: cfg.Namespace},
		subs:   make(map[string]subscription),
	}

	opts := newClientOptions(cfg)
	opts.SetWill(c.topics.Status(), string(statusPayload(cfg, statusOffline, reasonUnexpected, time.Now())), 1, true)
	opts.SetOnConnectHandler(func(pahomqtt.Client) { c.connected() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.lost(err) })
	opts.SetReconnectingHandler(func(pahomqtt.Client, *pahomqtt.ClientOptions) {
		c.stats.reconnects.Add(1)
		if l := c.log(); l != nil {
			l.Warn("MQTT reconnecting", "broker", brokerURL(cfg.Broker))
		}
	})

	c.paho = pahomqtt.NewClient(opts)
	token := c.paho.Connect()

	timer := time.NewTimer(connectTimeout)
	defer timer.Stop()
	select {
	case <-token.Done():
	case <-timer.C:
		c.paho.Disconnect(0)
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, connectTimeout)
	case <-ctx.Done():
		c.paho.Disconnect(0)
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, ctx.Err())
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// The OnConnect handler runs asynchronously; mark online now so callers
	// can subscribe straight away.
	c.online.Store(true)
	return c, nil
}

func (c *Client) connected() {
	c.online.Store(true)

	c.mu.RLock()
	for topic, sub := range c.subs {
		c.paho.Subscribe(topic, sub.qos, c.dispatch(sub.handler))
	}
	callback := c.onConnect
	c.mu.RUnlock()

	c.paho.Publish(c.topics.Status(), c.qos(), true, statusPayload(c.cfg, statusOnline, "", time.Now()))

	if callback != nil {
		callback()
	}
}

func (c *Client) lost(err error) {
	c.online.Store(false)

	c.mu.RLock()
	callback := c.onLost
	c.mu.RUnlock()
	if callback != nil {
		callback(err)
	}
}

// Close publishes a graceful "offline" status and disconnects. It is safe
// to call on a client that never connected.
func (c *Client) Close() error {
	if c.paho == nil {
		return nil
	}

	if c.IsConnected() {
		token := c.paho.Publish(c.topics.Status(), c.qos(), true,
			statusPayload(c.cfg, statusOffline, reasonShutdown, time.Now()))
		token.WaitTimeout(operationTimeout)
	}

	c.paho.Disconnect(disconnectQuiesceMS)
	c.online.Store(false)
	return nil
}

// HealthCheck returns ErrNotConnected while the session is down.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected reports the last known session state.
func (c *Client) IsConnected() bool {
	return c.paho != nil && c.online.Load() && c.paho.IsConnected()
}

// Topics returns the topic builder for the configured namespace.
func (c *Client) Topics() Topics {
	return c.topics
}

// Stats returns the message counters.
func (c *Client) Stats() Stats {
	return Stats{
		Received:      c.stats.received.Load(),
		HandlerErrors: c.stats.handlerErrors.Load(),
		Panics:        c.stats.panics.Load(),
		Published:     c.stats.published.Load(),
		Reconnects:    c.stats.reconnects.Load(),
	}
}

// SetOnConnect registers a callback for the initial connect and every
// reconnect.
func (c *Client) SetOnConnect(callback func()) {
	c.mu.Lock()
	c.onConnect = callback
	c.mu.Unlock()
}

// SetOnDisconnect registers a callback for lost connections.
func (c *Client) SetOnDisconnect(callback func(err error)) {
	c.mu.Lock()
	c.onLost = callback
	c.mu.Unlock()
}

// SetLogger sets the logger for handler errors and panics. Without one
// they are only counted.
func (c *Client) SetLogger(logger Logger) {
	c.mu.Lock()
	c.logger = logger
	c.mu.Unlock()
}

func (c *Client) log() Logger {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.logger
}

func (c *Client) qos() byte {
	return byte(c.cfg.QoS) // #nosec G115 -- config validates 0..2
}

// dispatch adapts handler to paho, counting every message and containing
// handler panics so one bad frame cannot stop delivery.
func (c *Client) dispatch(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		c.stats.received.Add(1)
		defer func() {
			if r := recover(); r != nil {
				c.stats.panics.Add(1)
				if l := c.log(); l != nil {
					l.Error("MQTT handler panic recovered", "topic", msg.Topic(), "panic", r)
				}
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			c.stats.handlerErrors.Add(1)
			if l := c.log(); l != nil {
				l.Warn("MQTT handler returned error", "topic", msg.Topic(), "error", err)
			}
		}
	}
}
