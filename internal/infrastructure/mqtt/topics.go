package mqtt

import "strings"

// Topic segments under the namespace.
//
// Telemetry arrives as {namespace}/{device}/{measurement...}/state and
// commands leave as {namespace}/{key}. Settings pushed from the API use
// the universal and inverter sub-trees.
const (
	segmentUniversal = "universal"
	segmentInverter  = "inverter"
	segmentCore      = "core"
	segmentStatus    = "status"
	segmentState     = "state"
)

// Topics provides builders for the namespace's MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{Namespace: "solar_assistant_DEYE"}
//	topics.Universal("gridChargeOn")
//	// Returns: "solar_assistant_DEYE/universal/gridChargeOn"
type Topics struct {
	Namespace string
}

func (t Topics) prefix() string {
	return strings.TrimSuffix(t.Namespace, "/")
}

func (t Topics) join(parts ...string) string {
	return t.prefix() + "/" + strings.Join(parts, "/")
}

// Subscribe returns the filter covering every telemetry topic.
//
// Example: solar_assistant_DEYE/#
func (t Topics) Subscribe() string {
	return t.join("#")
}

// Telemetry returns the topic a reading for device is published on.
// Multi-part measurements become separate segments.
//
// Example: solar_assistant_DEYE/battery_1/state_of_charge/state
func (t Topics) Telemetry(device string, measurement ...string) string {
	parts := append([]string{device}, measurement...)
	return t.join(append(parts, segmentState)...)
}

// Command returns the topic for a rule action or scheduled setting key.
//
// Example: solar_assistant_DEYE/work_mode/set
func (t Topics) Command(key string) string {
	return t.join(key)
}

// Universal returns the topic for a universal setting.
//
// Example: solar_assistant_DEYE/universal/dischargeVoltage
func (t Topics) Universal(key string) string {
	return t.join(segmentUniversal, key)
}

// Inverter returns the topic for an inverter-type setting.
//
// Example: solar_assistant_DEYE/inverter/maxSellPower
func (t Topics) Inverter(key string) string {
	return t.join(segmentInverter, key)
}

// Status returns the retained Core status topic, also used for the LWT.
//
// Example: solar_assistant_DEYE/core/status
func (t Topics) Status() string {
	return t.join(segmentCore, segmentStatus)
}

// IsStatus reports whether topic is the Core status topic. The ingest
// path uses it to ignore its own status messages.
func (t Topics) IsStatus(topic string) bool {
	return topic == t.Status()
}
