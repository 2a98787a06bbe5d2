package automation

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Repository defines persistence for rules and scheduled settings.
// List methods return records in stored (creation) order.
type Repository interface {
	ListRules(ctx context.Context) ([]Rule, error)
	CreateRule(ctx context.Context, rule *Rule) error
	UpdateRule(ctx context.Context, rule *Rule) error
	DeleteRule(ctx context.Context, id string) error

	ListSchedules(ctx context.Context) ([]ScheduledSetting, error)
	CreateSchedule(ctx context.Context, s *ScheduledSetting) error
	UpdateSchedule(ctx context.Context, s *ScheduledSetting) error
	DeleteSchedule(ctx context.Context, id string) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// ─── Rules ──────────────────────────────────────────────────────────────────

// ListRules retrieves all rules ordered by position.
func (r *SQLiteRepository) ListRules(ctx context.Context) ([]Rule, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, conditions, actions, days, created_at, updated_at
		FROM automation_rules
		ORDER BY position, created_at`)
	if err != nil {
		return nil, fmt.Errorf("querying rules: %w", err)
	}
	defer rows.Close()

	var rules []Rule
	for rows.Next() {
		rule, scanErr := scanRule(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scanning rule: %w", scanErr)
		}
		rules = append(rules, *rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rules: %w", err)
	}
	return rules, nil
}

// CreateRule inserts a rule after every existing one.
func (r *SQLiteRepository) CreateRule(ctx context.Context, rule *Rule) error {
	conditions, actions, days, err := marshalRule(rule)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	rule.UpdatedAt = now

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO automation_rules (id, name, conditions, actions, days, position, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, (SELECT COALESCE(MAX(position), 0) + 1 FROM automation_rules), ?, ?)`,
		rule.ID,
		rule.Name,
		conditions,
		actions,
		days,
		rule.CreatedAt.Format(time.RFC3339),
		rule.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrRuleExists
		}
		return fmt.Errorf("inserting rule: %w", err)
	}
	return nil
}

// UpdateRule replaces a rule's contents, keeping its position.
func (r *SQLiteRepository) UpdateRule(ctx context.Context, rule *Rule) error {
	conditions, actions, days, err := marshalRule(rule)
	if err != nil {
		return err
	}

	rule.UpdatedAt = time.Now().UTC()

	result, err := r.db.ExecContext(ctx, `
		UPDATE automation_rules SET
			name = ?, conditions = ?, actions = ?, days = ?, updated_at = ?
		WHERE id = ?`,
		rule.Name,
		conditions,
		actions,
		days,
		rule.UpdatedAt.Format(time.RFC3339),
		rule.ID,
	)
	if err != nil {
		return fmt.Errorf("updating rule: %w", err)
	}
	return checkAffected(result, ErrRuleNotFound)
}

// DeleteRule removes a rule by ID.
func (r *SQLiteRepository) DeleteRule(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM automation_rules WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting rule: %w", err)
	}
	return checkAffected(result, ErrRuleNotFound)
}

// ─── Scheduled Settings ─────────────────────────────────────────────────────

// ListSchedules retrieves all scheduled settings ordered by position.
func (r *SQLiteRepository) ListSchedules(ctx context.Context) ([]ScheduledSetting, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, key, value, day, hour, created_at, updated_at
		FROM scheduled_settings
		ORDER BY position, created_at`)
	if err != nil {
		return nil, fmt.Errorf("querying schedules: %w", err)
	}
	defer rows.Close()

	var out []ScheduledSetting
	for rows.Next() {
		s, scanErr := scanSchedule(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scanning schedule: %w", scanErr)
		}
		out = append(out, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating schedules: %w", err)
	}
	return out, nil
}

// CreateSchedule inserts a scheduled setting after every existing one.
func (r *SQLiteRepository) CreateSchedule(ctx context.Context, s *ScheduledSetting) error {
	val, err := json.Marshal(s.Value)
	if err != nil {
		return fmt.Errorf("marshalling value: %w", err)
	}

	now := time.Now().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO scheduled_settings (id, key, value, day, hour, position, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, (SELECT COALESCE(MAX(position), 0) + 1 FROM scheduled_settings), ?, ?)`,
		s.ID,
		s.Key,
		string(val),
		s.Day,
		s.Hour,
		s.CreatedAt.Format(time.RFC3339),
		s.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrScheduleExists
		}
		return fmt.Errorf("inserting schedule: %w", err)
	}
	return nil
}

// UpdateSchedule replaces a scheduled setting's contents.
func (r *SQLiteRepository) UpdateSchedule(ctx context.Context, s *ScheduledSetting) error {
	val, err := json.Marshal(s.Value)
	if err != nil {
		return fmt.Errorf("marshalling value: %w", err)
	}

	s.UpdatedAt = time.Now().UTC()

	result, err := r.db.ExecContext(ctx, `
		UPDATE scheduled_settings SET
			key = ?, value = ?, day = ?, hour = ?, updated_at = ?
		WHERE id = ?`,
		s.Key,
		string(val),
		s.Day,
		s.Hour,
		s.UpdatedAt.Format(time.RFC3339),
		s.ID,
	)
	if err != nil {
		return fmt.Errorf("updating schedule: %w", err)
	}
	return checkAffected(result, ErrScheduleNotFound)
}

// DeleteSchedule removes a scheduled setting by ID.
func (r *SQLiteRepository) DeleteSchedule(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM scheduled_settings WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting schedule: %w", err)
	}
	return checkAffected(result, ErrScheduleNotFound)
}

// ─── Row Scanning Helpers ───────────────────────────────────────────────────

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(scanner rowScanner) (*Rule, error) {
	var rule Rule
	var conditions, actions, days string
	var createdAt, updatedAt string

	if err := scanner.Scan(&rule.ID, &rule.Name, &conditions, &actions, &days, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	if err := unmarshalColumn(conditions, &rule.Conditions); err != nil {
		return nil, fmt.Errorf("unmarshalling conditions: %w", err)
	}
	if err := unmarshalColumn(actions, &rule.Actions); err != nil {
		return nil, fmt.Errorf("unmarshalling actions: %w", err)
	}
	if err := unmarshalColumn(days, &rule.Days); err != nil {
		return nil, fmt.Errorf("unmarshalling days: %w", err)
	}
	rule.CreatedAt = parseTimestamp(createdAt)
	rule.UpdatedAt = parseTimestamp(updatedAt)
	return &rule, nil
}

func scanSchedule(scanner rowScanner) (*ScheduledSetting, error) {
	var s ScheduledSetting
	var val string
	var createdAt, updatedAt string

	if err := scanner.Scan(&s.ID, &s.Key, &val, &s.Day, &s.Hour, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(val), &s.Value); err != nil {
		return nil, fmt.Errorf("unmarshalling value: %w", err)
	}
	s.CreatedAt = parseTimestamp(createdAt)
	s.UpdatedAt = parseTimestamp(updatedAt)
	return &s, nil
}

// ─── SQL Helpers ────────────────────────────────────────────────────────────

func marshalRule(rule *Rule) (conditions, actions, days string, err error) {
	c, err := json.Marshal(nonNil(rule.Conditions))
	if err != nil {
		return "", "", "", fmt.Errorf("marshalling conditions: %w", err)
	}
	a, err := json.Marshal(nonNil(rule.Actions))
	if err != nil {
		return "", "", "", fmt.Errorf("marshalling actions: %w", err)
	}
	d, err := json.Marshal(nonNil(rule.Days))
	if err != nil {
		return "", "", "", fmt.Errorf("marshalling days: %w", err)
	}
	return string(c), string(a), string(d), nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func unmarshalColumn(col string, dest any) error {
	if col == "" || col == "null" {
		return nil
	}
	return json.Unmarshal([]byte(col), dest)
}

func parseTimestamp(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func checkAffected(result sql.Result, notFound error) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return notFound
	}
	return nil
}

func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint")
}
