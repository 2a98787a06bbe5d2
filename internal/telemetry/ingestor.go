// Package telemetry turns inbound bus messages into state store readings.
//
// Topics follow the Solar Assistant layout:
//
//	solar_assistant_DEYE/total/battery_state_of_charge/state
//	└── prefix ────────┘ └dev┘ └── measurement ─────┘ └suffix┘
//
// The first segment and the last segment are routing noise. The second is
// the device bucket, and everything in between is joined with "_" to form
// the measurement name, so "inverter_1/pv_power/1/state" becomes
// inverter_1.pv_power_1.
package telemetry

import (
	"errors"
	"fmt"
	"strings"

	"github.com/nerrad567/solar-control-core/internal/value"
)

// ErrMalformedTopic is returned when a topic has too few segments to name a
// device and a measurement.
var ErrMalformedTopic = errors.New("telemetry: malformed topic")

// Outcomes reported to the metrics recorder.
const (
	ResultStored   = "stored"
	ResultText     = "text"
	ResultRejected = "rejected"
)

// minSegments is prefix, device, measurement, suffix.
const minSegments = 4

// Applier receives parsed readings. *state.Store satisfies it.
type Applier interface {
	Apply(device, measurement string, v value.Value)
}

// Recorder counts ingested messages by outcome.
type Recorder interface {
	TelemetryIngested(result string)
}

// Logger is the logging interface used by the ingestor.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

type noopRecorder struct{}

func (noopRecorder) TelemetryIngested(string) {}

// Ingestor parses bus messages and applies them to the store.
type Ingestor struct {
	store   Applier
	logger  Logger
	metrics Recorder
}

// NewIngestor creates an Ingestor writing to store.
func NewIngestor(store Applier) *Ingestor {
	return &Ingestor{
		store:   store,
		logger:  noopLogger{},
		metrics: noopRecorder{},
	}
}

// SetLogger sets the logger used for dropped-message diagnostics.
func (in *Ingestor) SetLogger(l Logger) {
	if l != nil {
		in.logger = l
	}
}

// SetRecorder sets the metrics recorder.
func (in *Ingestor) SetRecorder(r Recorder) {
	if r != nil {
		in.metrics = r
	}
}

// Ingest handles one message. A payload that is not a decimal number is
// stored verbatim as text. The returned error is informational: the message
// has already been dropped and the caller should carry on.
//
// The signature matches mqtt.MessageHandler so the ingestor can be
// subscribed directly.
func (in *Ingestor) Ingest(topic string, payload []byte) error {
	device, measurement, err := SplitTopic(topic)
	if err != nil {
		in.metrics.TelemetryIngested(ResultRejected)
		in.logger.Warn("dropping telemetry", "topic", topic, "error", err)
		return err
	}

	v := value.Parse(string(payload))
	if v.IsNumber() {
		in.metrics.TelemetryIngested(ResultStored)
	} else {
		in.metrics.TelemetryIngested(ResultText)
	}

	in.store.Apply(device, measurement, v)
	in.logger.Debug("telemetry applied", "device", device, "measurement", measurement, "value", v.String())
	return nil
}

// SplitTopic extracts the device bucket and measurement name from a topic.
func SplitTopic(topic string) (device, measurement string, err error) {
	segs := strings.Split(topic, "/")
	if len(segs) < minSegments {
		return "", "", fmt.Errorf("%w: %q has %d segments", ErrMalformedTopic, topic, len(segs))
	}
	device = segs[1]
	measurement = strings.Join(segs[2:len(segs)-1], "_")
	if device == "" || measurement == "" {
		return "", "", fmt.Errorf("%w: %q has no device or measurement", ErrMalformedTopic, topic)
	}
	return device, measurement, nil
}
