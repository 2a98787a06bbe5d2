package automation

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Logger defines the logging interface used by the automation package.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry holds the rule and schedule collections the engines evaluate.
// It wraps a Repository and keeps an ordered in-memory copy so a tick never
// touches the database.
//
// The cache is populated on startup via RefreshCache() and kept in sync by
// the write-through CRUD methods. All public methods are thread-safe.
type Registry struct {
	repo      Repository
	mu        sync.RWMutex
	rules     []Rule
	schedules []ScheduledSetting
	logger    Logger
}

// NewRegistry creates a new registry over repo.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:   repo,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	if logger != nil {
		r.logger = logger
	}
}

// RefreshCache reloads rules and schedules from the repository.
func (r *Registry) RefreshCache(ctx context.Context) error {
	rules, err := r.repo.ListRules(ctx)
	if err != nil {
		return fmt.Errorf("loading rules: %w", err)
	}
	schedules, err := r.repo.ListSchedules(ctx)
	if err != nil {
		return fmt.Errorf("loading schedules: %w", err)
	}

	r.mu.Lock()
	r.rules = rules
	r.schedules = schedules
	r.mu.Unlock()

	r.logger.Info("automation cache refreshed", "rules", len(rules), "schedules", len(schedules))
	return nil
}

// ─── Rules ──────────────────────────────────────────────────────────────────

// Rules returns deep copies of all rules in stored order.
func (r *Registry) Rules() []Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Rule, len(r.rules))
	for i := range r.rules {
		out[i] = *r.rules[i].DeepCopy()
	}
	return out
}

// GetRule retrieves a rule by ID.
func (r *Registry) GetRule(id string) (*Rule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i := range r.rules {
		if r.rules[i].ID == id {
			return r.rules[i].DeepCopy(), nil
		}
	}
	return nil, ErrRuleNotFound
}

// CreateRule assigns an ID, persists the rule and appends it.
func (r *Registry) CreateRule(ctx context.Context, rule *Rule) error {
	rule.ID = GenerateID()
	if err := r.repo.CreateRule(ctx, rule); err != nil {
		return err
	}

	r.mu.Lock()
	r.rules = append(r.rules, *rule.DeepCopy())
	r.mu.Unlock()

	r.logger.Info("automation rule created", "id", rule.ID, "name", rule.Name)
	return nil
}

// UpdateRule persists rule over the stored rule with the same ID. The rule
// keeps its position.
func (r *Registry) UpdateRule(ctx context.Context, rule *Rule) error {
	if err := r.repo.UpdateRule(ctx, rule); err != nil {
		return err
	}

	r.mu.Lock()
	for i := range r.rules {
		if r.rules[i].ID == rule.ID {
			r.rules[i] = *rule.DeepCopy()
			break
		}
	}
	r.mu.Unlock()

	r.logger.Info("automation rule updated", "id", rule.ID, "name", rule.Name)
	return nil
}

// DeleteRule removes a rule. Deleting an unknown ID is not an error.
func (r *Registry) DeleteRule(ctx context.Context, id string) error {
	if err := r.repo.DeleteRule(ctx, id); err != nil && !errors.Is(err, ErrRuleNotFound) {
		return err
	}

	r.mu.Lock()
	for i := range r.rules {
		if r.rules[i].ID == id {
			r.rules = append(r.rules[:i], r.rules[i+1:]...)
			break
		}
	}
	r.mu.Unlock()

	r.logger.Info("automation rule deleted", "id", id)
	return nil
}

// RuleCount returns the number of cached rules.
func (r *Registry) RuleCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rules)
}

// ─── Scheduled Settings ─────────────────────────────────────────────────────

// Schedules returns copies of all scheduled settings in stored order.
func (r *Registry) Schedules() []ScheduledSetting {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]ScheduledSetting(nil), r.schedules...)
}

// GetSchedule retrieves a scheduled setting by ID.
func (r *Registry) GetSchedule(id string) (*ScheduledSetting, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i := range r.schedules {
		if r.schedules[i].ID == id {
			s := r.schedules[i]
			return &s, nil
		}
	}
	return nil, ErrScheduleNotFound
}

// CreateSchedule assigns an ID, persists the setting and appends it.
func (r *Registry) CreateSchedule(ctx context.Context, s *ScheduledSetting) error {
	s.ID = GenerateID()
	if err := r.repo.CreateSchedule(ctx, s); err != nil {
		return err
	}

	r.mu.Lock()
	r.schedules = append(r.schedules, *s)
	r.mu.Unlock()

	r.logger.Info("scheduled setting created", "id", s.ID, "key", s.Key, "day", s.Day, "hour", s.Hour)
	return nil
}

// UpdateSchedule persists s over the stored setting with the same ID.
func (r *Registry) UpdateSchedule(ctx context.Context, s *ScheduledSetting) error {
	if err := r.repo.UpdateSchedule(ctx, s); err != nil {
		return err
	}

	r.mu.Lock()
	for i := range r.schedules {
		if r.schedules[i].ID == s.ID {
			r.schedules[i] = *s
			break
		}
	}
	r.mu.Unlock()

	r.logger.Info("scheduled setting updated", "id", s.ID, "key", s.Key)
	return nil
}

// DeleteSchedule removes a scheduled setting. Deleting an unknown ID is not
// an error.
func (r *Registry) DeleteSchedule(ctx context.Context, id string) error {
	if err := r.repo.DeleteSchedule(ctx, id); err != nil && !errors.Is(err, ErrScheduleNotFound) {
		return err
	}

	r.mu.Lock()
	for i := range r.schedules {
		if r.schedules[i].ID == id {
			r.schedules = append(r.schedules[:i], r.schedules[i+1:]...)
			break
		}
	}
	r.mu.Unlock()

	r.logger.Info("scheduled setting deleted", "id", id)
	return nil
}

// ScheduleCount returns the number of cached scheduled settings.
func (r *Registry) ScheduleCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.schedules)
}
