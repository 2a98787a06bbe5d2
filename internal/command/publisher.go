// Package command is the outbound boundary of the core: it serialises
// setting values and publishes them to the MQTT bus.
package command

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/nerrad567/solar-control-core/internal/notify"
	"github.com/nerrad567/solar-control-core/internal/value"
)

// Publisher errors.
var (
	// ErrNaNValue is returned for a NaN number; nothing is sent.
	ErrNaNValue = errors.New("command: refusing to publish NaN")

	// ErrEmptyTopic is returned when no topic is given.
	ErrEmptyTopic = errors.New("command: topic cannot be empty")

	// ErrNoClient is returned when the publisher has no bus connection.
	ErrNoClient = errors.New("command: no MQTT client")
)

// Results reported to the metrics recorder.
const (
	ResultSent     = "sent"
	ResultRejected = "rejected"
	ResultFailed   = "failed"
)

// MQTTClient is the interface for publishing to the bus.
// *mqtt.Client satisfies it.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Recorder counts publishes by result.
type Recorder interface {
	CommandPublished(result string)
}

// Auditor keeps a record of every publish attempt. *influxdb.Client
// satisfies it.
type Auditor interface {
	WriteCommand(topic, payload string, err error)
}

// Logger is the logging interface used by the publisher.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options configures a Publisher. Nil collaborators are ignored.
type Options struct {
	QoS      byte
	Retained bool
	Notifier notify.Notifier
	Logger   Logger
	Metrics  Recorder
	Auditor  Auditor
}

// Publisher sends values to bus topics and reports each success to
// observers as an automationLog event.
//
// Thread Safety: Publish is safe for concurrent use.
type Publisher struct {
	client   MQTTClient
	qos      byte
	retained bool
	notifier notify.Notifier
	logger   Logger
	metrics  Recorder
	auditor  Auditor
}

// NewPublisher creates a Publisher over client.
func NewPublisher(client MQTTClient, opts Options) *Publisher {
	p := &Publisher{
		client:   client,
		qos:      opts.QoS,
		retained: opts.Retained,
		notifier: opts.Notifier,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		auditor:  opts.Auditor,
	}
	if p.notifier == nil {
		p.notifier = notify.Discard
	}
	if p.logger == nil {
		p.logger = noopLogger{}
	}
	return p
}

// Encode returns the bus payload for v: text verbatim, anything else as
// JSON.
func Encode(v value.Value) ([]byte, error) {
	if s, ok := v.Str(); ok {
		return []byte(s), nil
	}
	if v.IsNumber() && math.IsNaN(v.Float()) {
		return nil, ErrNaNValue
	}
	b, err := v.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("command: encoding value: %w", err)
	}
	return b, nil
}

// Publish makes one attempt to send v to topic. There is no retry.
func (p *Publisher) Publish(ctx context.Context, topic string, v value.Value) error {
	if topic == "" {
		p.record(ResultRejected)
		return ErrEmptyTopic
	}

	payload, err := Encode(v)
	if err != nil {
		p.record(ResultRejected)
		p.logger.Warn("skipping publish", "topic", topic, "error", err)
		return err
	}

	if err := ctx.Err(); err != nil {
		p.record(ResultRejected)
		return fmt.Errorf("command: %w", err)
	}
	if p.client == nil {
		p.record(ResultFailed)
		p.audit(topic, payload, ErrNoClient)
		return ErrNoClient
	}

	start := time.Now()
	if err := p.client.Publish(topic, payload, p.qos, p.retained); err != nil {
		p.record(ResultFailed)
		p.audit(topic, payload, err)
		return fmt.Errorf("publishing to %s: %w", topic, err)
	}

	p.record(ResultSent)
	p.audit(topic, payload, nil)

	msg := fmt.Sprintf("Published to %s: %s", topic, payload)
	p.logger.Info("published", "topic", topic, "payload", string(payload), "duration_ms", time.Since(start).Milliseconds())
	p.notifier.Notify(notify.Log(msg))
	return nil
}

func (p *Publisher) record(result string) {
	if p.metrics != nil {
		p.metrics.CommandPublished(result)
	}
}

func (p *Publisher) audit(topic string, payload []byte, err error) {
	if p.auditor != nil {
		p.auditor.WriteCommand(topic, string(payload), err)
	}
}
