package settings

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Document names in the settings_kv table.
const (
	DocUniversal       = "universal_settings"
	DocInverterTypes   = "inverter_types"
	DocInverterCurrent = "inverter_current"
)

// Repository stores named JSON documents.
type Repository interface {
	// Load returns the document saved under name, or ErrNotFound.
	Load(ctx context.Context, name string) (json.RawMessage, error)

	// Save creates or replaces the document saved under name.
	Save(ctx context.Context, name string, doc json.RawMessage) error
}

// SQLiteRepository implements Repository over the settings_kv table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a SQLiteRepository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Load returns the document saved under name.
func (r *SQLiteRepository) Load(ctx context.Context, name string) (json.RawMessage, error) {
	var doc string
	err := r.db.QueryRowContext(ctx,
		"SELECT document FROM settings_kv WHERE name = ?", name,
	).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", name, err)
	}
	return json.RawMessage(doc), nil
}

// Save upserts the document saved under name.
func (r *SQLiteRepository) Save(ctx context.Context, name string, doc json.RawMessage) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO settings_kv (name, document, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET document = excluded.document, updated_at = excluded.updated_at`,
		name, string(doc), time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("saving %s: %w", name, err)
	}
	return nil
}

// MemoryRepository implements Repository in memory. Used in tests and when
// no database is configured.
type MemoryRepository struct {
	mu   sync.RWMutex
	docs map[string]json.RawMessage
}

// NewMemoryRepository creates an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{docs: make(map[string]json.RawMessage)}
}

// Load returns the document saved under name.
func (r *MemoryRepository) Load(_ context.Context, name string) (json.RawMessage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc, ok := r.docs[name]
	if !ok {
		return nil, ErrNotFound
	}
	return append(json.RawMessage(nil), doc...), nil
}

// Save stores a copy of doc under name.
func (r *MemoryRepository) Save(_ context.Context, name string, doc json.RawMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs[name] = append(json.RawMessage(nil), doc...)
	return nil
}
