// Package influxdb records what the automation did, not what the inverter
// measured: live telemetry is never written.
//
// Two measurements are written:
//   - "command": every outbound publish, tagged with topic and sent/failed
//   - "automation_event": rule firings, applied schedules and publish log lines
//
// *Client satisfies command.Auditor and notify.Notifier, so it is wired as
// the publisher's auditor and as one branch of the observer fan-out.
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB, influxdb.WithDefaultTag("site", cfg.Site.ID))
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
// Writes never block. Batch failures arrive on the SetOnError callback and
// are counted by WriteErrors.
package influxdb
