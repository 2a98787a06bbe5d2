// Package notify defines the observer notifications raised by the core and
// the Notifier boundary that fans them out.
package notify

import (
	"github.com/nerrad567/solar-control-core/internal/value"
)

// Event types sent to observers.
const (
	TypeStateUpdate             = "stateUpdate"
	TypeAutomationRuleTriggered = "automationRuleTriggered"
	TypeScheduledSettingApplied = "scheduledSettingApplied"
	TypeAutomationLog           = "automationLog"
)

// Event is one observer notification. Only the fields relevant to Type are
// populated; the rest are omitted from the JSON form.
type Event struct {
	Type     string       `json:"type"`
	State    any          `json:"state,omitempty"`
	RuleName string       `json:"ruleName,omitempty"`
	Actions  any          `json:"actions,omitempty"`
	Key      string       `json:"key,omitempty"`
	Value    *value.Value `json:"value,omitempty"`
	Message  string       `json:"message,omitempty"`
}

// Notifier delivers events to observers. Delivery is best effort and must
// not block the caller for long.
type Notifier interface {
	Notify(Event)
}

// Func adapts an ordinary function to the Notifier interface.
type Func func(Event)

// Notify calls f(e).
func (f Func) Notify(e Event) { f(e) }

// Discard drops every event.
var Discard Notifier = Func(func(Event) {})

// Multi returns a Notifier that delivers each event to every non-nil n in
// order.
func Multi(ns ...Notifier) Notifier {
	out := make([]Notifier, 0, len(ns))
	for _, n := range ns {
		if n != nil {
			out = append(out, n)
		}
	}
	return multi(out)
}

type multi []Notifier

func (m multi) Notify(e Event) {
	for _, n := range m {
		n.Notify(e)
	}
}

// StateUpdate builds a stateUpdate event for a snapshot.
func StateUpdate(snapshot any) Event {
	return Event{Type: TypeStateUpdate, State: snapshot}
}

// RuleTriggered builds an automationRuleTriggered event.
func RuleTriggered(ruleName string, actions any) Event {
	return Event{Type: TypeAutomationRuleTriggered, RuleName: ruleName, Actions: actions}
}

// SettingApplied builds a scheduledSettingApplied event.
func SettingApplied(key string, v value.Value) Event {
	return Event{Type: TypeScheduledSettingApplied, Key: key, Value: &v}
}

// Log builds an automationLog event.
func Log(message string) Event {
	return Event{Type: TypeAutomationLog, Message: message}
}
