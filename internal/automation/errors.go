package automation

import "errors"

// Domain errors for the automation package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, automation.ErrRuleNotFound) {
//	    // handle not found case
//	}
var (
	// ErrRuleNotFound is returned when a rule ID does not exist.
	ErrRuleNotFound = errors.New("rule: not found")

	// ErrRuleExists is returned when creating a rule with an ID that already exists.
	ErrRuleExists = errors.New("rule: already exists")

	// ErrScheduleNotFound is returned when a scheduled setting ID does not exist.
	ErrScheduleNotFound = errors.New("schedule: not found")

	// ErrScheduleExists is returned when creating a scheduled setting with an ID that already exists.
	ErrScheduleExists = errors.New("schedule: already exists")
)
