package state

import (
	"sync"
	"time"

	"github.com/nerrad567/solar-control-core/internal/notify"
	"github.com/nerrad567/solar-control-core/internal/value"
)

// TotalDevice is the aggregate device bucket whose readings feed the derived
// scalars.
const TotalDevice = "total"

// Names of the derived scalars.
const (
	BatteryPower = "batteryPower"
	BatterySOC   = "batterySOC"
	GridPower    = "gridPower"
	LoadPower    = "loadPower"
	SolarPower   = "solarPower"
)

// ScalarNames lists the derived scalars in snapshot order.
var ScalarNames = []string{BatteryPower, BatterySOC, GridPower, LoadPower, SolarPower}

// mirrors maps a total.<measurement> reading to the scalar it updates.
var mirrors = map[string]string{
	"battery_power":           BatteryPower,
	"battery_state_of_charge": BatterySOC,
	"grid_power":              GridPower,
	"load_power":              LoadPower,
	"pv_power":                SolarPower,
}

// DefaultDevices are the buckets present before any telemetry arrives.
var DefaultDevices = []string{"inverter_1", "inverter_2", "battery_1", TotalDevice}

// Store holds the live device state. It is written by the telemetry path and
// read everywhere else through Snapshot.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - The notifier is called after the lock is released.
type Store struct {
	mu       sync.RWMutex
	devices  map[string]map[string]value.Value
	scalars  map[string]value.Value
	updated  time.Time
	notifier notify.Notifier
	now      func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithNotifier sets the observer that receives a stateUpdate after each apply.
func WithNotifier(n notify.Notifier) Option {
	return func(s *Store) { s.notifier = n }
}

// WithClock overrides the time source used for the last-update timestamp.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore returns a Store seeded with the default device buckets and all
// derived scalars set to zero.
func NewStore(opts ...Option) *Store {
	s := &Store{
		devices:  make(map[string]map[string]value.Value, len(DefaultDevices)),
		scalars:  make(map[string]value.Value, len(ScalarNames)),
		notifier: notify.Discard,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	for _, d := range DefaultDevices {
		s.devices[d] = make(map[string]value.Value)
	}
	for _, name := range ScalarNames {
		s.scalars[name] = value.Number(0)
	}
	s.updated = s.now()
	return s
}

// SetNotifier replaces the observer. Used by main once the hub exists.
func (s *Store) SetNotifier(n notify.Notifier) {
	if n == nil {
		n = notify.Discard
	}
	s.mu.Lock()
	s.notifier = n
	s.mu.Unlock()
}

// Apply records one reading, creating the device bucket if needed, stamps
// the update time, and refreshes the matching derived scalar when the
// reading belongs to the total bucket. The resulting snapshot is pushed to
// the notifier.
func (s *Store) Apply(device, measurement string, v value.Value) {
	s.mu.Lock()
	bucket, ok := s.devices[device]
	if !ok {
		bucket = make(map[string]value.Value)
		s.devices[device] = bucket
	}
	bucket[measurement] = v
	s.updated = s.now()

	if device == TotalDevice {
		if scalar, ok := mirrors[measurement]; ok {
			s.scalars[scalar] = v
		}
	}

	snap := s.snapshotLocked()
	n := s.notifier
	s.mu.Unlock()

	n.Notify(notify.StateUpdate(snap))
}

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	devices := make(map[string]map[string]value.Value, len(s.devices))
	for name, bucket := range s.devices {
		cp := make(map[string]value.Value, len(bucket))
		for k, v := range bucket {
			cp[k] = v
		}
		devices[name] = cp
	}
	scalars := make(map[string]value.Value, len(s.scalars))
	for k, v := range s.scalars {
		scalars[k] = v
	}
	return Snapshot{Devices: devices, Scalars: scalars, Time: s.updated}
}
