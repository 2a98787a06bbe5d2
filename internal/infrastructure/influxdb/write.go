package influxdb

import (
	"encoding/json"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/solar-control-core/internal/notify"
)

// Measurement names written by the audit client.
const (
	MeasurementCommand    = "command"
	MeasurementAutomation = "automation_event"
)

// WriteCommand records one outbound publish attempt. A non-nil err marks
// the attempt as failed.
//
// The write is non-blocking; data is batched and sent asynchronously.
func (c *Client) WriteCommand(topic, payload string, err error) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(commandPoint(topic, payload, err, c.timestamp()))
}

// Notify records rule firings, applied schedules and automation log lines.
// State updates are ignored; they arrive on every telemetry message.
func (c *Client) Notify(e notify.Event) {
	if !c.IsConnected() {
		return
	}
	if p, ok := eventPoint(e, c.timestamp()); ok {
		c.writeAPI.WritePoint(p)
	}
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Example:
//
//	client.WritePoint("engine_tick",
//	    map[string]string{"site": "site-001"},
//	    map[string]interface{}{"rules_fired": 2})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, c.timestamp())
	c.writeAPI.WritePoint(point)
}

func commandPoint(topic, payload string, err error, ts time.Time) *write.Point {
	status := "sent"
	fields := map[string]interface{}{
		"payload": payload,
	}
	if err != nil {
		status = "failed"
		fields["error"] = err.Error()
	}
	return write.NewPoint(
		MeasurementCommand,
		map[string]string{
			"topic":  topic,
			"status": status,
		},
		fields,
		ts,
	)
}

// eventPoint maps an observer event onto a point. The bool is false for
// events that are not audited.
func eventPoint(e notify.Event, ts time.Time) (*write.Point, bool) {
	tags := map[string]string{"type": e.Type}
	fields := map[string]interface{}{}

	switch e.Type {
	case notify.TypeAutomationRuleTriggered:
		tags["rule"] = e.RuleName
		actions, err := json.Marshal(e.Actions)
		if err != nil {
			return nil, false
		}
		fields["actions"] = string(actions)
	case notify.TypeScheduledSettingApplied:
		tags["key"] = e.Key
		if e.Value != nil {
			fields["value"] = e.Value.String()
		} else {
			fields["value"] = "null"
		}
	case notify.TypeAutomationLog:
		fields["message"] = e.Message
	default:
		return nil, false
	}

	return write.NewPoint(MeasurementAutomation, tags, fields, ts), true
}
