package settings

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"gopkg.in/yaml.v3"

	"github.com/nerrad567/solar-control-core/internal/value"
)

// setupTestDB creates an in-memory SQLite database with the settings schema.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	db.SetMaxOpenConns(1)

	// Matches migrations/20260302_090000_settings_kv.up.sql
	schema := `
		CREATE TABLE settings_kv (
			name TEXT PRIMARY KEY,
			document TEXT NOT NULL,
			updated_at TEXT NOT NULL
		) STRICT;`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("creating schema: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

func loadedStore(t *testing.T, repo Repository) *Store {
	t.Helper()
	s := NewStore(repo)
	if err := s.Load(context.Background(), BuiltinDefaults()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	return s
}

func marshal(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	return string(b)
}

// repositories runs a test against both Repository implementations.
func repositories(t *testing.T, fn func(t *testing.T, repo Repository)) {
	t.Run("sqlite", func(t *testing.T) { fn(t, NewSQLiteRepository(setupTestDB(t))) })
	t.Run("memory", func(t *testing.T) { fn(t, NewMemoryRepository()) })
}

// ─── Seeding ────────────────────────────────────────────────────────────────

func TestStore_SeedsDefaults(t *testing.T) {
	repositories(t, func(t *testing.T, repo Repository) {
		s := loadedStore(t, repo)

		if got := marshal(t, s.Universal()); got != `{"maxBatteryDischargePower":500,"gridChargeOn":false,"generatorChargeOn":false,"dischargeVoltage":48}` {
			t.Errorf("Universal() = %s", got)
		}
		if got := s.Types(); !reflect.DeepEqual(got, []string{"Deye", "MPP"}) {
			t.Errorf("Types() = %v, want [Deye MPP]", got)
		}
		cur := s.Current()
		if cur.Name != "Deye" || cur.Settings.Len() != 4 {
			t.Errorf("Current() = %s with %d keys, want Deye with 4", cur.Name, cur.Settings.Len())
		}
		mpp, err := s.TypeSettings("MPP")
		if err != nil || mpp.Len() != 0 {
			t.Errorf("TypeSettings(MPP) = %d keys, %v", mpp.Len(), err)
		}

		for _, doc := range []string{DocUniversal, DocInverterTypes, DocInverterCurrent} {
			if _, err := repo.Load(context.Background(), doc); err != nil {
				t.Errorf("seed document %s not saved: %v", doc, err)
			}
		}
	})
}

func TestStore_ReloadKeepsEdits(t *testing.T) {
	repositories(t, func(t *testing.T, repo Repository) {
		ctx := context.Background()
		s := loadedStore(t, repo)

		if _, err := s.MergeUniversal(ctx, setOf(t, `{"gridChargeOn":true}`)); err != nil {
			t.Fatalf("MergeUniversal() error = %v", err)
		}
		if err := s.AddType(ctx, "Growatt", setOf(t, `{"maxSellPower":3000}`)); err != nil {
			t.Fatalf("AddType() error = %v", err)
		}
		if _, err := s.Select(ctx, "Growatt", Set{}); err != nil {
			t.Fatalf("Select() error = %v", err)
		}

		again := loadedStore(t, repo)
		if v, _ := again.Universal().Get("gridChargeOn"); !v.Equal(value.Bool(true)) {
			t.Errorf("reloaded gridChargeOn = %v, want true", v)
		}
		if got := again.Types(); !reflect.DeepEqual(got, []string{"Deye", "MPP", "Growatt"}) {
			t.Errorf("reloaded Types() = %v", got)
		}
		if again.Current().Name != "Growatt" {
			t.Errorf("reloaded Current() = %s, want Growatt", again.Current().Name)
		}
	})
}

func TestDefaultsFromYAML(t *testing.T) {
	src := `
universal_settings:
  dischargeVoltage: 51.2
inverter_types:
  Sunsynk:
    maxSellPower: 8000
  Deye: {}
`
	var cfg struct {
		Universal yaml.Node `yaml:"universal_settings"`
		Types     yaml.Node `yaml:"inverter_types"`
	}
	if err := yaml.Unmarshal([]byte(src), &cfg); err != nil {
		t.Fatalf("yaml.Unmarshal() error = %v", err)
	}

	d, err := DefaultsFromYAML(&cfg.Universal, &cfg.Types, "Sunsynk")
	if err != nil {
		t.Fatalf("DefaultsFromYAML() error = %v", err)
	}
	if got := marshal(t, d.Universal); got != `{"dischargeVoltage":51.2}` {
		t.Errorf("Universal = %s", got)
	}
	if len(d.InverterTypes) != 2 || d.InverterTypes[0].Name != "Sunsynk" || d.InverterTypes[1].Name != "Deye" {
		t.Errorf("InverterTypes = %+v", d.InverterTypes)
	}
	if d.CurrentType != "Sunsynk" {
		t.Errorf("CurrentType = %q, want Sunsynk", d.CurrentType)
	}

	builtin, err := DefaultsFromYAML(&yaml.Node{}, nil, "")
	if err != nil {
		t.Fatalf("DefaultsFromYAML(empty) error = %v", err)
	}
	if builtin.Universal.Len() != 4 || len(builtin.InverterTypes) != 2 || builtin.CurrentType != DefaultInverterType {
		t.Errorf("empty nodes did not fall back to builtin defaults: %+v", builtin)
	}
}

// ─── Universal ──────────────────────────────────────────────────────────────

func TestStore_MergeUniversal(t *testing.T) {
	s := loadedStore(t, NewMemoryRepository())

	merged, err := s.MergeUniversal(context.Background(), setOf(t, `{"dischargeVoltage":50,"extra":"on"}`))
	if err != nil {
		t.Fatalf("MergeUniversal() error = %v", err)
	}

	want := `{"maxBatteryDischargePower":500,"gridChargeOn":false,"generatorChargeOn":false,"dischargeVoltage":50,"extra":"on"}`
	if got := marshal(t, merged); got != want {
		t.Errorf("MergeUniversal() = %s, want %s", got, want)
	}
	if got := marshal(t, s.Universal()); got != want {
		t.Errorf("Universal() = %s, want %s", got, want)
	}
}

type failingRepo struct {
	*MemoryRepository
	fail bool
}

func (r *failingRepo) Save(ctx context.Context, name string, doc json.RawMessage) error {
	if r.fail {
		return errors.New("disk full")
	}
	return r.MemoryRepository.Save(ctx, name, doc)
}

func TestStore_SaveFailureLeavesStateUnchanged(t *testing.T) {
	repo := &failingRepo{MemoryRepository: NewMemoryRepository()}
	s := loadedStore(t, repo)
	ctx := context.Background()
	repo.fail = true

	if _, err := s.MergeUniversal(ctx, setOf(t, `{"gridChargeOn":true}`)); err == nil {
		t.Error("MergeUniversal() error = nil, want save failure")
	}
	if v, _ := s.Universal().Get("gridChargeOn"); !v.Equal(value.Bool(false)) {
		t.Error("failed MergeUniversal() changed the settings")
	}
	if err := s.AddType(ctx, "Growatt", Set{}); err == nil {
		t.Error("AddType() error = nil, want save failure")
	}
	if len(s.Types()) != 2 {
		t.Errorf("failed AddType() changed Types() = %v", s.Types())
	}
}

// ─── Inverter Types ─────────────────────────────────────────────────────────

func TestStore_Select(t *testing.T) {
	s := loadedStore(t, NewMemoryRepository())
	ctx := context.Background()

	got, err := s.Select(ctx, "Deye", setOf(t, `{"maxSellPower":4000,"gridPeakShaving":true}`))
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if got.Name != "Deye" {
		t.Errorf("Select().Name = %q, want Deye", got.Name)
	}
	wantKeys := []string{"workMode", "solarExportWhenBatteryFull", "energyPattern", "maxSellPower", "gridPeakShaving"}
	if !reflect.DeepEqual(got.Settings.Keys(), wantKeys) {
		t.Errorf("Select() keys = %v, want %v", got.Settings.Keys(), wantKeys)
	}

	stored, _ := s.TypeSettings("Deye")
	if v, _ := stored.Get("maxSellPower"); !v.Equal(value.Number(4000)) {
		t.Errorf("merged settings not stored back: maxSellPower = %v", v)
	}

	if _, err := s.Select(ctx, "Victron", Set{}); !errors.Is(err, ErrUnknownType) {
		t.Errorf("Select(unknown) error = %v, want ErrUnknownType", err)
	}
	if s.Current().Name != "Deye" {
		t.Errorf("failed Select() changed Current() to %s", s.Current().Name)
	}
}

func TestStore_AddType(t *testing.T) {
	s := loadedStore(t, NewMemoryRepository())
	ctx := context.Background()

	if err := s.AddType(ctx, "Growatt", setOf(t, `{"maxSellPower":3000}`)); err != nil {
		t.Fatalf("AddType() error = %v", err)
	}
	if err := s.AddType(ctx, "Growatt", Set{}); !errors.Is(err, ErrTypeExists) {
		t.Errorf("AddType(duplicate) error = %v, want ErrTypeExists", err)
	}
	if err := s.AddType(ctx, "", Set{}); !errors.Is(err, ErrInvalidType) {
		t.Errorf("AddType(empty) error = %v, want ErrInvalidType", err)
	}
	if got := s.Types(); !reflect.DeepEqual(got, []string{"Deye", "MPP", "Growatt"}) {
		t.Errorf("Types() = %v", got)
	}
}

func TestStore_UpdateType(t *testing.T) {
	s := loadedStore(t, NewMemoryRepository())
	ctx := context.Background()

	merged, err := s.UpdateType(ctx, "MPP", setOf(t, `{"outputPriority":"SBU"}`))
	if err != nil {
		t.Fatalf("UpdateType() error = %v", err)
	}
	if marshal(t, merged) != `{"outputPriority":"SBU"}` {
		t.Errorf("UpdateType() = %s", marshal(t, merged))
	}
	if s.Current().Settings.Len() != 4 {
		t.Error("updating a non-current type changed the current settings")
	}

	if _, err := s.UpdateType(ctx, "Deye", setOf(t, `{"maxSellPower":1000}`)); err != nil {
		t.Fatalf("UpdateType(current) error = %v", err)
	}
	if v, _ := s.Current().Settings.Get("maxSellPower"); !v.Equal(value.Number(1000)) {
		t.Errorf("current settings maxSellPower = %v, want 1000", v)
	}

	if _, err := s.UpdateType(ctx, "Victron", Set{}); !errors.Is(err, ErrUnknownType) {
		t.Errorf("UpdateType(unknown) error = %v, want ErrUnknownType", err)
	}
}

func TestStore_DeleteType(t *testing.T) {
	s := loadedStore(t, NewMemoryRepository())
	ctx := context.Background()

	if err := s.DeleteType(ctx, "MPP"); err != nil {
		t.Fatalf("DeleteType() error = %v", err)
	}
	if err := s.DeleteType(ctx, "MPP"); !errors.Is(err, ErrUnknownType) {
		t.Errorf("second DeleteType() error = %v, want ErrUnknownType", err)
	}

	if err := s.DeleteType(ctx, "Deye"); err != nil {
		t.Fatalf("DeleteType(current) error = %v", err)
	}
	if len(s.Types()) != 0 {
		t.Errorf("Types() = %v, want empty", s.Types())
	}
	if cur := s.Current(); cur.Name != "Deye" || cur.Settings.Len() != 4 {
		t.Errorf("Current() after deleting it = %s/%d keys, want last selection kept", cur.Name, cur.Settings.Len())
	}
}

func TestStore_ReturnsCopies(t *testing.T) {
	s := loadedStore(t, NewMemoryRepository())

	u := s.Universal()
	u.Put("gridChargeOn", value.Bool(true))
	cur := s.Current()
	cur.Settings.Put("maxSellPower", value.Number(1))

	if v, _ := s.Universal().Get("gridChargeOn"); !v.Equal(value.Bool(false)) {
		t.Error("Universal() copy mutated the store")
	}
	if v, _ := s.Current().Settings.Get("maxSellPower"); !v.Equal(value.Number(5000)) {
		t.Error("Current() copy mutated the store")
	}
}
