// Package state holds the live snapshot of inverter, battery and aggregate
// readings.
//
// Readings are stored per device bucket exactly as they arrive (numbers or
// text). Five derived scalars mirror readings of the "total" bucket so
// conditions can refer to them by a short name:
//
//	total.battery_power            → batteryPower
//	total.battery_state_of_charge  → batterySOC
//	total.grid_power               → gridPower
//	total.load_power               → loadPower
//	total.pv_power                 → solarPower
//
// The derived scalars are only written by Store.Apply.
package state
