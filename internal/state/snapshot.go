package state

import (
	"encoding/json"
	"time"

	"github.com/nerrad567/solar-control-core/internal/value"
)

// Snapshot is an immutable copy of the store at one instant.
type Snapshot struct {
	Devices map[string]map[string]value.Value
	Scalars map[string]value.Value
	Time    time.Time
}

// Reading looks up device.measurement.
func (s Snapshot) Reading(device, measurement string) (value.Value, bool) {
	bucket, ok := s.Devices[device]
	if !ok {
		return value.Value{}, false
	}
	v, ok := bucket[measurement]
	return v, ok
}

// Scalar looks up a derived scalar by name.
func (s Snapshot) Scalar(name string) (value.Value, bool) {
	v, ok := s.Scalars[name]
	return v, ok
}

// MarshalJSON renders the snapshot as one flat object: each device bucket
// under its name, the derived scalars as top-level fields and "time" as an
// RFC 3339 timestamp.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(s.Devices)+len(s.Scalars)+1)
	for name, bucket := range s.Devices {
		out[name] = bucket
	}
	for name, v := range s.Scalars {
		out[name] = v
	}
	out["time"] = s.Time.UTC().Format(time.RFC3339Nano)
	return json.Marshal(out)
}
