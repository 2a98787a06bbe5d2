package automation

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/solar-control-core/internal/value"
)

// Operator names a comparison used by a Condition.
type Operator string

// Numeric operators.
const (
	OpEquals             Operator = "equals"
	OpNotEquals          Operator = "notEquals"
	OpGreaterThan        Operator = "greaterThan"
	OpLessThan           Operator = "lessThan"
	OpGreaterThanOrEqual Operator = "greaterThanOrEqual"
	OpLessThanOrEqual    Operator = "lessThanOrEqual"
)

// Time-of-day operators. Equals and NotEquals also apply to times and days.
const (
	OpAfter  Operator = "after"
	OpBefore Operator = "before"
)

// ConditionType selects the comparison family of a Condition.
type ConditionType string

const (
	// ConditionNumeric compares a state reading with a number. It is the
	// default when the type is omitted.
	ConditionNumeric ConditionType = ""

	// ConditionTime compares the tick's wall clock with an "HH:MM" value.
	ConditionTime ConditionType = "time"

	// ConditionDay compares the tick's weekday with a day name.
	ConditionDay ConditionType = "day"
)

// Condition is one comparison in a rule. For numeric conditions Value may
// be a JSON number or a numeric string such as "2000".
type Condition struct {
	Type       ConditionType `json:"type,omitempty"`
	DeviceType string        `json:"deviceType"`
	Parameter  string        `json:"parameter"`
	Operator   Operator      `json:"operator"`
	Value      value.Value   `json:"value"`
}

// Action is one setting published when a rule fires. The command topic is
// the bus namespace joined with Key.
type Action struct {
	Key   string      `json:"key"`
	Value value.Value `json:"value"`
}

// Rule fires its actions on every tick of a listed day while all of its
// conditions hold.
type Rule struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Conditions []Condition `json:"conditions"`
	Actions    []Action    `json:"actions"`
	Days       []string    `json:"days"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ScheduledSetting publishes Key=Value on every tick that falls within Hour
// on Day.
type ScheduledSetting struct {
	ID    string      `json:"id"`
	Key   string      `json:"key"`
	Value value.Value `json:"value"`
	Day   string      `json:"day"`
	Hour  int         `json:"hour"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DeepCopy returns an independent copy of the rule.
func (r *Rule) DeepCopy() *Rule {
	if r == nil {
		return nil
	}
	cp := *r
	if r.Conditions != nil {
		cp.Conditions = append([]Condition(nil), r.Conditions...)
	}
	if r.Actions != nil {
		cp.Actions = append([]Action(nil), r.Actions...)
	}
	if r.Days != nil {
		cp.Days = append([]string(nil), r.Days...)
	}
	return &cp
}

// RunsOn reports whether weekday (an English day name) is one of the rule's
// days. Matching is exact, as stored.
func (r *Rule) RunsOn(weekday string) bool {
	for _, d := range r.Days {
		if d == weekday {
			return true
		}
	}
	return false
}

// Weekdays is the Sunday-first day ordering used for day names and indexes.
var Weekdays = [7]string{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"}

// DayIndex returns the Sunday-first index of a day name, ignoring case, or
// -1 if the name is not a day.
func DayIndex(name string) int {
	for i, d := range Weekdays {
		if strings.EqualFold(d, name) {
			return i
		}
	}
	return -1
}

// TickContext is the wall clock reading shared by both engines during one
// evaluation pass.
type TickContext struct {
	Now          time.Time
	Weekday      string
	WeekdayIndex int
	Hour         int
}

// NewTickContext reads now in loc. A nil loc means UTC.
func NewTickContext(now time.Time, loc *time.Location) TickContext {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	idx := int(local.Weekday())
	return TickContext{
		Now:          local,
		Weekday:      Weekdays[idx],
		WeekdayIndex: idx,
		Hour:         local.Hour(),
	}
}

// GenerateID returns a new unique identifier for rules and schedules.
func GenerateID() string {
	return uuid.New().String()
}
