// Package mqtt is the broker connection for Solar Control Core.
//
// Solar Assistant publishes inverter and battery readings under one
// namespace and accepts setting writes under the same namespace:
//
//	solar_assistant_DEYE/total/battery_power/state     inbound telemetry
//	solar_assistant_DEYE/work_mode/set                 outbound rule action
//	solar_assistant_DEYE/universal/dischargeVoltage    outbound API setting
//	solar_assistant_DEYE/core/status                   retained core status (LWT)
//
// The Client reconnects on its own, restores subscriptions afterwards and
// keeps message counters (Stats) for the system metrics endpoint. Topics
// builds every topic name from the namespace.
//
// Usage:
//
//	client, err := mqtt.Connect(ctx, cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(client.Topics().Subscribe(), 1, ingestor.Ingest)
package mqtt
