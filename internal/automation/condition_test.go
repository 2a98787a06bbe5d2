package automation

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/solar-control-core/internal/state"
	"github.com/nerrad567/solar-control-core/internal/value"
)

// ─── Test Helpers ───────────────────────────────────────────────────────────

// captureLogger records warnings so diagnostics can be asserted.
type captureLogger struct {
	mu    sync.Mutex
	warns []string
	errs  []string
}

func (l *captureLogger) Debug(string, ...any) {}
func (l *captureLogger) Info(string, ...any)  {}

func (l *captureLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}

func (l *captureLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errs = append(l.errs, msg)
}

func (l *captureLogger) warnCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.warns)
}

// snapshotWith builds a store snapshot from device readings.
func snapshotWith(readings map[string]map[string]value.Value) state.Snapshot {
	s := state.NewStore()
	for device, ms := range readings {
		for m, v := range ms {
			s.Apply(device, m, v)
		}
	}
	return s.Snapshot()
}

// ─── CompareNumeric ─────────────────────────────────────────────────────────

func TestCompareNumeric(t *testing.T) {
	e := NewEvaluator(nil)

	tests := []struct {
		name     string
		actual   float64
		op       Operator
		expected float64
		want     bool
	}{
		{"equals exact", 50, OpEquals, 50, true},
		{"equals within tolerance", 50.0004, OpEquals, 50, true},
		{"equals outside tolerance", 50.002, OpEquals, 50, false},
		{"notEquals within tolerance", 50.0004, OpNotEquals, 50, false},
		{"notEquals outside tolerance", 51, OpNotEquals, 50, true},
		{"greaterThan true", 3000, OpGreaterThan, 2000, true},
		{"greaterThan equal", 2000, OpGreaterThan, 2000, false},
		{"lessThan true", 10, OpLessThan, 20, true},
		{"greaterThanOrEqual equal", 20, OpGreaterThanOrEqual, 20, true},
		{"lessThanOrEqual greater", 21, OpLessThanOrEqual, 20, false},
		{"negative values", -500, OpLessThan, 0, true},
		{"unknown operator", 1, Operator("between"), 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := e.CompareNumeric(tt.actual, tt.op, tt.expected); got != tt.want {
				t.Errorf("CompareNumeric(%v, %s, %v) = %v, want %v", tt.actual, tt.op, tt.expected, got, tt.want)
			}
		})
	}
}

func TestCompareNumeric_EqualsReflexiveAndSymmetric(t *testing.T) {
	e := NewEvaluator(nil)
	samples := []float64{0, -1.5, 0.0005, 48.2, 1e6, 123.4567}

	for _, a := range samples {
		if !e.CompareNumeric(a, OpEquals, a) {
			t.Errorf("CompareNumeric(%v, equals, %v) = false, want true", a, a)
		}
		for _, b := range samples {
			if e.CompareNumeric(a, OpEquals, b) != e.CompareNumeric(b, OpEquals, a) {
				t.Errorf("equals not symmetric for %v and %v", a, b)
			}
		}
	}
}

func TestCompareNumeric_NaNIsFalse(t *testing.T) {
	e := NewEvaluator(nil)
	ops := []Operator{OpEquals, OpNotEquals, OpGreaterThan, OpLessThan, OpGreaterThanOrEqual, OpLessThanOrEqual}
	for _, op := range ops {
		if e.CompareNumeric(math.NaN(), op, 1) {
			t.Errorf("CompareNumeric(NaN, %s, 1) = true, want false", op)
		}
	}
}

func TestCompareNumeric_UnknownOperatorLogs(t *testing.T) {
	log := &captureLogger{}
	e := NewEvaluator(log)
	e.CompareNumeric(1, "approximately", 1)
	if log.warnCount() != 1 {
		t.Errorf("warnings = %d, want 1", log.warnCount())
	}
}

// ─── CompareTime / CompareDay ───────────────────────────────────────────────

func TestCompareTime(t *testing.T) {
	e := NewEvaluator(nil)
	at := time.Date(2026, 5, 6, 14, 30, 0, 0, time.UTC)

	tests := []struct {
		name     string
		op       Operator
		expected string
		want     bool
	}{
		{"equals", OpEquals, "14:30", true},
		{"equals other minute", OpEquals, "14:31", false},
		{"notEquals", OpNotEquals, "09:00", true},
		{"after", OpAfter, "14:29", true},
		{"after same minute", OpAfter, "14:30", false},
		{"before", OpBefore, "23:59", true},
		{"before midnight", OpBefore, "00:00", false},
		{"malformed", OpEquals, "half past two", false},
		{"out of range", OpBefore, "25:00", false},
		{"unknown operator", Operator("around"), "14:30", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := e.CompareTime(at, tt.op, tt.expected); got != tt.want {
				t.Errorf("CompareTime(14:30, %s, %q) = %v, want %v", tt.op, tt.expected, got, tt.want)
			}
		})
	}
}

func TestCompareDay(t *testing.T) {
	e := NewEvaluator(nil)

	tests := []struct {
		name     string
		actual   int
		op       Operator
		expected string
		want     bool
	}{
		{"wednesday index", 3, OpEquals, "wednesday", true},
		{"mixed case", 0, OpEquals, "SunDay", true},
		{"saturday", 6, OpEquals, "Saturday", true},
		{"notEquals", 1, OpNotEquals, "Tuesday", true},
		{"notEquals same", 2, OpNotEquals, "tuesday", false},
		{"unknown day", 3, OpEquals, "Funday", false},
		{"unknown operator", 3, OpAfter, "Wednesday", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := e.CompareDay(tt.actual, tt.op, tt.expected); got != tt.want {
				t.Errorf("CompareDay(%d, %s, %q) = %v, want %v", tt.actual, tt.op, tt.expected, got, tt.want)
			}
		})
	}
}

func TestCompareDay_UnknownDayLogs(t *testing.T) {
	log := &captureLogger{}
	NewEvaluator(log).CompareDay(1, OpEquals, "Someday")
	if log.warnCount() != 1 {
		t.Errorf("warnings = %d, want 1", log.warnCount())
	}
}

// ─── Resolve / Evaluate ─────────────────────────────────────────────────────

func TestResolve(t *testing.T) {
	snap := snapshotWith(map[string]map[string]value.Value{
		"total":      {"pv_power": value.Number(3000)},
		"inverter_1": {"batteryPower": value.Number(-42)},
	})

	tests := []struct {
		name      string
		device    string
		parameter string
		want      value.Value
		wantOK    bool
	}{
		{"nested reading", "total", "pv_power", value.Number(3000), true},
		{"derived scalar fallback", "anything", "solarPower", value.Number(3000), true},
		{"nested wins over scalar", "inverter_1", "batteryPower", value.Number(-42), true},
		{"scalar when device lacks it", "inverter_2", "batteryPower", value.Number(0), true},
		{"unknown", "inverter_9", "pv_power", value.Value{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Resolve(snap, tt.device, tt.parameter)
			if ok != tt.wantOK {
				t.Fatalf("Resolve() ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && !got.Equal(tt.want) {
				t.Errorf("Resolve() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEvaluate(t *testing.T) {
	snap := snapshotWith(map[string]map[string]value.Value{
		"total":      {"pv_power": value.Number(3000), "battery_state_of_charge": value.Number(95)},
		"inverter_1": {"device_mode": value.Text("Grid")},
	})

	tests := []struct {
		name string
		cond Condition
		want bool
	}{
		{
			name: "numeric string threshold",
			cond: Condition{DeviceType: "total", Parameter: "pv_power", Operator: OpGreaterThan, Value: value.Text("2000")},
			want: true,
		},
		{
			name: "number threshold",
			cond: Condition{DeviceType: "total", Parameter: "battery_state_of_charge", Operator: OpGreaterThanOrEqual, Value: value.Number(95)},
			want: true,
		},
		{
			name: "derived scalar",
			cond: Condition{DeviceType: "", Parameter: "batterySOC", Operator: OpEquals, Value: value.Number(95)},
			want: true,
		},
		{
			name: "text reading never compares",
			cond: Condition{DeviceType: "inverter_1", Parameter: "device_mode", Operator: OpNotEquals, Value: value.Number(0)},
			want: false,
		},
		{
			name: "non-numeric threshold",
			cond: Condition{DeviceType: "total", Parameter: "pv_power", Operator: OpGreaterThan, Value: value.Text("lots")},
			want: false,
		},
		{
			name: "unknown device",
			cond: Condition{DeviceType: "inverter_9", Parameter: "pv_power_9", Operator: OpGreaterThan, Value: value.Number(0)},
			want: false,
		},
	}

	e := NewEvaluator(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := e.Evaluate(tt.cond, snap); got != tt.want {
				t.Errorf("Evaluate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEvaluate_UnknownParameterLogs(t *testing.T) {
	log := &captureLogger{}
	e := NewEvaluator(log)
	cond := Condition{DeviceType: "inverter_9", Parameter: "temperature", Operator: OpGreaterThan, Value: value.Number(1)}

	if e.Evaluate(cond, state.NewStore().Snapshot()) {
		t.Error("Evaluate() = true for unknown parameter")
	}
	if log.warnCount() != 1 {
		t.Errorf("warnings = %d, want 1", log.warnCount())
	}
}

func TestEvaluateAll(t *testing.T) {
	snap := snapshotWith(map[string]map[string]value.Value{
		"total": {"pv_power": value.Number(3000), "load_power": value.Number(400)},
	})
	e := NewEvaluator(nil)

	pvHigh := Condition{DeviceType: "total", Parameter: "pv_power", Operator: OpGreaterThan, Value: value.Number(2000)}
	loadLow := Condition{DeviceType: "total", Parameter: "load_power", Operator: OpLessThan, Value: value.Number(500)}
	loadHigh := Condition{DeviceType: "total", Parameter: "load_power", Operator: OpGreaterThan, Value: value.Number(500)}

	if !e.EvaluateAll(nil, snap) {
		t.Error("EvaluateAll(nil) = false, want vacuous true")
	}
	if !e.EvaluateAll([]Condition{pvHigh, loadLow}, snap) {
		t.Error("EvaluateAll(pvHigh, loadLow) = false, want true")
	}
	if e.EvaluateAll([]Condition{pvHigh, loadHigh}, snap) {
		t.Error("EvaluateAll(pvHigh, loadHigh) = true, want false")
	}
}

func TestMatches_ClockConditions(t *testing.T) {
	e := NewEvaluator(nil)
	snap := snapshotWith(map[string]map[string]value.Value{"total": {"pv_power": value.Number(3000)}})
	// 2026-05-06 is a Wednesday.
	tick := NewTickContext(time.Date(2026, 5, 6, 14, 30, 0, 0, time.UTC), time.UTC)

	conds := []Condition{
		{DeviceType: "total", Parameter: "pv_power", Operator: OpGreaterThan, Value: value.Number(2000)},
		{Type: ConditionTime, Operator: OpAfter, Value: value.Text("12:00")},
		{Type: ConditionDay, Operator: OpEquals, Value: value.Text("wednesday")},
	}
	if !e.Matches(conds, snap, tick) {
		t.Error("Matches() = false, want true")
	}

	conds[1].Value = value.Text("15:00")
	if e.Matches(conds, snap, tick) {
		t.Error("Matches() = true with time condition in the future")
	}
}
