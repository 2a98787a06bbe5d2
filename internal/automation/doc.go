// Package automation evaluates automation rules and scheduled settings
// against the live state and publishes the resulting commands.
//
// Architecture:
//
//	┌────────────────────────────────────────────────────────┐
//	│                Scheduler (scheduler.go)                │
//	│  one ticker, one TickContext + snapshot per pass       │
//	│        │                          │                    │
//	│        ▼                          ▼                    │
//	│  ┌────────────────┐        ┌──────────────┐            │
//	│  │ ScheduleEngine │        │  RuleEngine  │            │
//	│  │  day + hour    │        │  days + AND  │            │
//	│  └───────┬────────┘        └──────┬───────┘            │
//	│          │    ┌──────────────┐    │                    │
//	│          └───▶│   Registry   │◀───┘                    │
//	│               │(registry.go) │──▶ Repository           │
//	│               └──────────────┘                         │
//	│  Evaluator (condition.go): resolve + compare           │
//	│  Publisher: <namespace>/<key> on the bus               │
//	│  Notifier: ruleTriggered / settingApplied events       │
//	└────────────────────────────────────────────────────────┘
//
// # Evaluation Semantics
//
// Both engines are level triggered. A scheduled setting for Friday at 14
// is published on every tick between 14:00 and 14:59 on Fridays. A rule
// whose conditions stay true is fired on every tick of its days.
//
// Conditions are combined with AND. An empty condition list always holds.
// Numeric equality uses an absolute tolerance of 0.001. A condition that
// names an unknown reading or operator is false and logged.
//
// # Thread Safety
//
// Registry is safe for concurrent use. The Scheduler serialises its own
// passes; the engines read the registry through copies.
//
// # Usage
//
//	repo := automation.NewSQLiteRepository(db)
//	registry := automation.NewRegistry(repo)
//	if err := registry.RefreshCache(ctx); err != nil {
//	    return err
//	}
//
//	deps := automation.Deps{Publisher: pub, Notifier: hub, Namespace: "solar_assistant_DEYE"}
//	rules := automation.NewRuleEngine(registry, automation.NewEvaluator(log), deps)
//	schedules := automation.NewScheduleEngine(registry, deps)
//	go automation.NewScheduler(schedules, rules, store, automation.SchedulerConfig{}).Run(ctx)
package automation
