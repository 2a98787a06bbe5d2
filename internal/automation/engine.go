package automation

import (
	"context"
	"strings"

	"github.com/nerrad567/solar-control-core/internal/command"
	"github.com/nerrad567/solar-control-core/internal/notify"
	"github.com/nerrad567/solar-control-core/internal/state"
	"github.com/nerrad567/solar-control-core/internal/value"
)

// Publisher sends one value to one bus topic. *command.Publisher satisfies
// it.
type Publisher interface {
	Publish(ctx context.Context, topic string, v value.Value) error
}

// Recorder receives engine counters. *metrics.Metrics satisfies it.
type Recorder interface {
	RuleFired(rule string)
	SettingApplied(key string)
	PublishFailed(source string)
}

type noopRecorder struct{}

func (noopRecorder) RuleFired(string)      {}
func (noopRecorder) SettingApplied(string) {}
func (noopRecorder) PublishFailed(string)  {}

// Sources reported with publish failures.
const (
	SourceRule     = "rule"
	SourceSchedule = "schedule"
)

// RuleSource lists rules in stored order. *Registry satisfies it.
type RuleSource interface {
	Rules() []Rule
}

// ScheduleSource lists scheduled settings in stored order. *Registry
// satisfies it.
type ScheduleSource interface {
	Schedules() []ScheduledSetting
}

// Deps are the collaborators shared by both engines.
type Deps struct {
	Publisher Publisher
	Notifier  notify.Notifier
	Namespace string
	Logger    Logger
	Metrics   Recorder
}

// noPublisher stands in for a missing Publisher: every publish fails and
// is counted like any other publish failure.
type noPublisher struct{}

func (noPublisher) Publish(context.Context, string, value.Value) error {
	return command.ErrNoClient
}

func (d Deps) withDefaults() Deps {
	if d.Publisher == nil {
		d.Publisher = noPublisher{}
	}
	if d.Notifier == nil {
		d.Notifier = notify.Discard
	}
	if d.Logger == nil {
		d.Logger = noopLogger{}
	}
	if d.Metrics == nil {
		d.Metrics = noopRecorder{}
	}
	return d
}

// topic joins the namespace and a setting key.
func (d Deps) topic(key string) string {
	if d.Namespace == "" {
		return key
	}
	return strings.TrimSuffix(d.Namespace, "/") + "/" + key
}

// send is the only place engine publish errors are handled: the failure is
// logged and counted and evaluation carries on.
func (d Deps) send(ctx context.Context, source, key string, v value.Value) {
	topic := d.topic(key)
	if err := d.Publisher.Publish(ctx, topic, v); err != nil {
		d.Metrics.PublishFailed(source)
		d.Logger.Error("publish failed", "source", source, "topic", topic, "error", err)
	}
}

// RuleEngine fires the actions of every rule that matches the tick.
//
// Firing is level triggered: a rule whose conditions stay true fires again
// on every tick of its days.
type RuleEngine struct {
	rules RuleSource
	eval  *Evaluator
	deps  Deps
}

// NewRuleEngine creates a RuleEngine.
func NewRuleEngine(rules RuleSource, eval *Evaluator, deps Deps) *RuleEngine {
	deps = deps.withDefaults()
	if eval == nil {
		eval = NewEvaluator(deps.Logger)
	}
	return &RuleEngine{rules: rules, eval: eval, deps: deps}
}

// Evaluate runs every rule in stored order against snap and returns the
// number of rules that fired.
func (e *RuleEngine) Evaluate(ctx context.Context, tick TickContext, snap state.Snapshot) int {
	fired := 0
	for _, rule := range e.rules.Rules() {
		if !rule.RunsOn(tick.Weekday) {
			continue
		}
		if !e.eval.Matches(rule.Conditions, snap, tick) {
			continue
		}

		for _, a := range rule.Actions {
			e.deps.send(ctx, SourceRule, a.Key, a.Value)
		}
		e.deps.Notifier.Notify(notify.RuleTriggered(rule.Name, rule.Actions))
		e.deps.Metrics.RuleFired(rule.Name)
		e.deps.Logger.Info("automation rule triggered", "rule_id", rule.ID, "rule", rule.Name, "actions", len(rule.Actions))
		fired++
	}
	return fired
}

// ScheduleEngine applies every scheduled setting whose day and hour match
// the tick.
type ScheduleEngine struct {
	schedules ScheduleSource
	deps      Deps
}

// NewScheduleEngine creates a ScheduleEngine.
func NewScheduleEngine(schedules ScheduleSource, deps Deps) *ScheduleEngine {
	return &ScheduleEngine{schedules: schedules, deps: deps.withDefaults()}
}

// Evaluate applies matching settings in stored order and returns how many
// were applied.
func (e *ScheduleEngine) Evaluate(ctx context.Context, tick TickContext) int {
	applied := 0
	for _, s := range e.schedules.Schedules() {
		if s.Day != tick.Weekday || s.Hour != tick.Hour {
			continue
		}

		e.deps.send(ctx, SourceSchedule, s.Key, s.Value)
		e.deps.Notifier.Notify(notify.SettingApplied(s.Key, s.Value))
		e.deps.Metrics.SettingApplied(s.Key)
		e.deps.Logger.Info("scheduled setting applied", "schedule_id", s.ID, "key", s.Key, "value", s.Value.String())
		applied++
	}
	return applied
}
