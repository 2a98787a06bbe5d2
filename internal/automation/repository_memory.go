package automation

import (
	"context"
	"sync"
	"time"
)

// MemoryRepository is a Repository kept entirely in process. It backs the
// registry when no database is configured and in tests.
type MemoryRepository struct {
	mu        sync.Mutex
	rules     []Rule
	schedules []ScheduledSetting
}

// NewMemoryRepository creates an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

// ListRules returns copies of all rules in insertion order.
func (m *MemoryRepository) ListRules(_ context.Context) ([]Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Rule, len(m.rules))
	for i := range m.rules {
		out[i] = *m.rules[i].DeepCopy()
	}
	return out, nil
}

// CreateRule appends a rule.
func (m *MemoryRepository) CreateRule(_ context.Context, rule *Rule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rules {
		if r.ID == rule.ID {
			return ErrRuleExists
		}
	}
	now := time.Now().UTC()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	rule.UpdatedAt = now
	m.rules = append(m.rules, *rule.DeepCopy())
	return nil
}

// UpdateRule replaces a rule in place.
func (m *MemoryRepository) UpdateRule(_ context.Context, rule *Rule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.rules {
		if m.rules[i].ID == rule.ID {
			rule.UpdatedAt = time.Now().UTC()
			m.rules[i] = *rule.DeepCopy()
			return nil
		}
	}
	return ErrRuleNotFound
}

// DeleteRule removes a rule.
func (m *MemoryRepository) DeleteRule(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.rules {
		if m.rules[i].ID == id {
			m.rules = append(m.rules[:i], m.rules[i+1:]...)
			return nil
		}
	}
	return ErrRuleNotFound
}

// ListSchedules returns copies of all scheduled settings in insertion order.
func (m *MemoryRepository) ListSchedules(_ context.Context) ([]ScheduledSetting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ScheduledSetting(nil), m.schedules...), nil
}

// CreateSchedule appends a scheduled setting.
func (m *MemoryRepository) CreateSchedule(_ context.Context, s *ScheduledSetting) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.schedules {
		if existing.ID == s.ID {
			return ErrScheduleExists
		}
	}
	now := time.Now().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now
	m.schedules = append(m.schedules, *s)
	return nil
}

// UpdateSchedule replaces a scheduled setting in place.
func (m *MemoryRepository) UpdateSchedule(_ context.Context, s *ScheduledSetting) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.schedules {
		if m.schedules[i].ID == s.ID {
			s.UpdatedAt = time.Now().UTC()
			m.schedules[i] = *s
			return nil
		}
	}
	return ErrScheduleNotFound
}

// DeleteSchedule removes a scheduled setting.
func (m *MemoryRepository) DeleteSchedule(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.schedules {
		if m.schedules[i].ID == id {
			m.schedules = append(m.schedules[:i], m.schedules[i+1:]...)
			return nil
		}
	}
	return ErrScheduleNotFound
}
