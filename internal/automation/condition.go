package automation

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/nerrad567/solar-control-core/internal/state"
	"github.com/nerrad567/solar-control-core/internal/value"
)

// equalsTolerance absorbs floating point jitter in upstream telemetry.
const equalsTolerance = 0.001

// Evaluator decides whether conditions hold against a state snapshot. It
// never fails: anything it cannot interpret evaluates to false and is logged.
type Evaluator struct {
	logger Logger
}

// NewEvaluator creates an Evaluator. A nil logger discards diagnostics.
func NewEvaluator(logger Logger) *Evaluator {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Evaluator{logger: logger}
}

// Resolve finds the reading a condition refers to: first
// snapshot[device][parameter], then the derived scalar named parameter.
func Resolve(snap state.Snapshot, device, parameter string) (value.Value, bool) {
	if v, ok := snap.Reading(device, parameter); ok {
		return v, true
	}
	return snap.Scalar(parameter)
}

// Evaluate reports whether a numeric condition holds.
func (e *Evaluator) Evaluate(c Condition, snap state.Snapshot) bool {
	actual, ok := Resolve(snap, c.DeviceType, c.Parameter)
	if !ok {
		e.logger.Warn("unknown parameter", "parameter", c.DeviceType+"."+c.Parameter)
		return false
	}
	return e.CompareNumeric(actual.Float(), c.Operator, c.Value.Float())
}

// EvaluateAll reports whether every condition holds. An empty list holds.
func (e *Evaluator) EvaluateAll(conds []Condition, snap state.Snapshot) bool {
	for _, c := range conds {
		if !e.Evaluate(c, snap) {
			return false
		}
	}
	return true
}

// Matches is EvaluateAll extended with the tick's clock, so time and day
// conditions can be mixed with numeric ones.
func (e *Evaluator) Matches(conds []Condition, snap state.Snapshot, tick TickContext) bool {
	for _, c := range conds {
		var ok bool
		switch c.Type {
		case ConditionTime:
			s, _ := c.Value.Str()
			ok = e.CompareTime(tick.Now, c.Operator, s)
		case ConditionDay:
			s, _ := c.Value.Str()
			ok = e.CompareDay(tick.WeekdayIndex, c.Operator, s)
		default:
			ok = e.Evaluate(c, snap)
		}
		if !ok {
			return false
		}
	}
	return true
}

// CompareNumeric applies op to actual and expected. Equality is within
// equalsTolerance. NaN on either side makes every operator false.
func (e *Evaluator) CompareNumeric(actual float64, op Operator, expected float64) bool {
	switch op {
	case OpEquals:
		return math.Abs(actual-expected) < equalsTolerance
	case OpNotEquals:
		return math.Abs(actual-expected) >= equalsTolerance
	case OpGreaterThan:
		return actual > expected
	case OpLessThan:
		return actual < expected
	case OpGreaterThanOrEqual:
		return actual >= expected
	case OpLessThanOrEqual:
		return actual <= expected
	default:
		e.logger.Warn("unknown operator", "operator", string(op))
		return false
	}
}

// CompareTime compares the minutes since midnight of actual with an
// "HH:MM" value.
func (e *Evaluator) CompareTime(actual time.Time, op Operator, expected string) bool {
	want, ok := parseClock(expected)
	if !ok {
		e.logger.Warn("invalid time", "time", expected)
		return false
	}
	got := actual.Hour()*60 + actual.Minute()

	switch op {
	case OpEquals:
		return got == want
	case OpNotEquals:
		return got != want
	case OpAfter:
		return got > want
	case OpBefore:
		return got < want
	default:
		e.logger.Warn("unknown operator for time comparison", "operator", string(op))
		return false
	}
}

// CompareDay compares a Sunday-first weekday index with a day name.
func (e *Evaluator) CompareDay(actual int, op Operator, expected string) bool {
	want := DayIndex(expected)
	if want < 0 {
		e.logger.Warn("invalid day", "day", expected)
		return false
	}

	switch op {
	case OpEquals:
		return actual == want
	case OpNotEquals:
		return actual != want
	default:
		e.logger.Warn("unknown operator for day comparison", "operator", string(op))
		return false
	}
}

// parseClock converts "HH:MM" to minutes since midnight.
func parseClock(s string) (int, bool) {
	hh, mm, found := strings.Cut(strings.TrimSpace(s), ":")
	if !found {
		return 0, false
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, false
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return 0, false
	}
	return h*60 + m, true
}
