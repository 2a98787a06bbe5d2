package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/nerrad567/solar-control-core/internal/value"
)

// DefaultInverterType is selected on first start.
const DefaultInverterType = "Deye"

// InverterType is one named inverter configuration.
type InverterType struct {
	Name     string `json:"type"`
	Settings Set    `json:"settings"`
}

// Defaults seed the store when nothing has been persisted yet.
type Defaults struct {
	Universal     Set
	InverterTypes []InverterType
	CurrentType   string
}

// BuiltinDefaults returns the settings a fresh install starts with.
func BuiltinDefaults() Defaults {
	var universal Set
	universal.Put("maxBatteryDischargePower", value.Number(500))
	universal.Put("gridChargeOn", value.Bool(false))
	universal.Put("generatorChargeOn", value.Bool(false))
	universal.Put("dischargeVoltage", value.Number(48.0))

	var deye Set
	workMode, _ := value.Raw(json.RawMessage(`["Selling first","Zero Export to Load","Selling first"]`))
	energyPattern, _ := value.Raw(json.RawMessage(`["Load First","Battery First"]`))
	deye.Put("workMode", workMode)
	deye.Put("solarExportWhenBatteryFull", value.Bool(true))
	deye.Put("energyPattern", energyPattern)
	deye.Put("maxSellPower", value.Number(5000))

	return Defaults{
		Universal: universal,
		InverterTypes: []InverterType{
			{Name: "Deye", Settings: deye},
			{Name: "MPP", Settings: Set{}},
		},
		CurrentType: DefaultInverterType,
	}
}

// DefaultsFromYAML builds Defaults from config nodes. An empty node keeps
// the builtin value for that part.
func DefaultsFromYAML(universal, inverterTypes *yaml.Node, currentType string) (Defaults, error) {
	d := BuiltinDefaults()

	if universal != nil && universal.Kind != 0 {
		set, err := FromYAML(universal)
		if err != nil {
			return d, fmt.Errorf("universal_settings: %w", err)
		}
		d.Universal = set
	}

	if node := unwrapDocument(inverterTypes); node != nil && node.Kind != 0 {
		if node.Kind != yaml.MappingNode {
			return d, fmt.Errorf("inverter_types: line %d: expected a mapping", node.Line)
		}
		d.InverterTypes = nil
		for i := 0; i+1 < len(node.Content); i += 2 {
			name := node.Content[i].Value
			set, err := FromYAML(node.Content[i+1])
			if err != nil {
				return d, fmt.Errorf("inverter_types.%s: %w", name, err)
			}
			d.InverterTypes = append(d.InverterTypes, InverterType{Name: name, Settings: set})
		}
	}

	if currentType != "" {
		d.CurrentType = currentType
	}
	return d, nil
}

// Logger is the logging interface used by the settings package.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}
func (noopLogger) Warn(string, ...any) {}

// Store holds the universal settings and the inverter configurations and
// writes every change through to a Repository before it becomes visible.
//
// Thread Safety: all methods are safe for concurrent use.
type Store struct {
	repo   Repository
	logger Logger

	mu          sync.RWMutex
	universal   Set
	typeNames   []string
	types       map[string]Set
	currentType string
	current     Set
}

// NewStore creates an empty Store over repo. Call Load before use.
func NewStore(repo Repository) *Store {
	return &Store{
		repo:   repo,
		logger: noopLogger{},
		types:  make(map[string]Set),
	}
}

// SetLogger sets the logger.
func (s *Store) SetLogger(logger Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger = logger
}

// Load reads the persisted documents. Any document that was never saved is
// seeded from d and saved.
func (s *Store) Load(ctx context.Context, d Defaults) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	universal := d.Universal.Clone()
	if err := s.loadDoc(ctx, DocUniversal, &universal, universal); err != nil {
		return err
	}

	seedTypes := make(typeList, 0, len(d.InverterTypes))
	for _, t := range d.InverterTypes {
		seedTypes = append(seedTypes, InverterType{Name: t.Name, Settings: t.Settings.Clone()})
	}
	types := seedTypes
	if err := s.loadDoc(ctx, DocInverterTypes, &types, seedTypes); err != nil {
		return err
	}

	seedCurrent := InverterType{Name: d.CurrentType}
	for _, t := range types {
		if t.Name == d.CurrentType {
			seedCurrent.Settings = t.Settings.Clone()
		}
	}
	current := seedCurrent
	if err := s.loadDoc(ctx, DocInverterCurrent, &current, seedCurrent); err != nil {
		return err
	}

	s.universal = universal
	s.typeNames = s.typeNames[:0]
	s.types = make(map[string]Set, len(types))
	for _, t := range types {
		if _, dup := s.types[t.Name]; !dup {
			s.typeNames = append(s.typeNames, t.Name)
		}
		s.types[t.Name] = t.Settings
	}
	s.currentType = current.Name
	s.current = current.Settings

	s.logger.Info("settings loaded",
		"universal_keys", s.universal.Len(),
		"inverter_types", len(s.typeNames),
		"current_type", s.currentType,
	)
	return nil
}

// loadDoc decodes document name into dst, saving seed when it is missing.
func (s *Store) loadDoc(ctx context.Context, name string, dst any, seed any) error {
	doc, err := s.repo.Load(ctx, name)
	if errors.Is(err, ErrNotFound) {
		return s.save(ctx, name, seed)
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(doc, dst); err != nil {
		return fmt.Errorf("decoding %s: %w", name, err)
	}
	return nil
}

func (s *Store) save(ctx context.Context, name string, doc any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", name, err)
	}
	return s.repo.Save(ctx, name, data)
}

// Universal returns a copy of the universal settings.
func (s *Store) Universal() Set {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.universal.Clone()
}

// MergeUniversal applies patch over the universal settings and returns the
// merged set.
func (s *Store) MergeUniversal(ctx context.Context, patch Set) (Set, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	merged := s.universal.Merge(patch)
	if err := s.save(ctx, DocUniversal, merged); err != nil {
		return Set{}, err
	}
	s.universal = merged
	return merged.Clone(), nil
}

// Types returns the configured inverter type names in creation order.
func (s *Store) Types() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.typeNames...)
}

// TypeSettings returns a copy of the configuration for name.
func (s *Store) TypeSettings(name string) (Set, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set, ok := s.types[name]
	if !ok {
		return Set{}, ErrUnknownType
	}
	return set.Clone(), nil
}

// Current returns the selected inverter type and its settings.
func (s *Store) Current() InverterType {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return InverterType{Name: s.currentType, Settings: s.current.Clone()}
}

// Select makes name the current inverter type, merges patch over its
// configuration and stores the result back as that type's configuration.
func (s *Store) Select(ctx context.Context, name string, patch Set) (InverterType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	base, ok := s.types[name]
	if !ok {
		return InverterType{}, ErrUnknownType
	}
	merged := base.Merge(patch)

	types := s.withType(name, merged)
	if err := s.save(ctx, DocInverterTypes, s.typeListOf(types)); err != nil {
		return InverterType{}, err
	}
	current := InverterType{Name: name, Settings: merged}
	if err := s.save(ctx, DocInverterCurrent, current); err != nil {
		return InverterType{}, err
	}

	s.types = types
	s.currentType = name
	s.current = merged
	return InverterType{Name: name, Settings: merged.Clone()}, nil
}

// AddType adds a new inverter type.
func (s *Store) AddType(ctx context.Context, name string, settings Set) error {
	if name == "" {
		return ErrInvalidType
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.types[name]; ok {
		return ErrTypeExists
	}

	types := s.withType(name, settings.Clone())
	names := append(append([]string(nil), s.typeNames...), name)
	if err := s.save(ctx, DocInverterTypes, typeListFrom(names, types)); err != nil {
		return err
	}

	s.types = types
	s.typeNames = names
	return nil
}

// UpdateType merges patch over the configuration for name and returns it.
// The current settings follow when name is the current type.
func (s *Store) UpdateType(ctx context.Context, name string, patch Set) (Set, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	base, ok := s.types[name]
	if !ok {
		return Set{}, ErrUnknownType
	}
	merged := base.Merge(patch)

	types := s.withType(name, merged)
	if err := s.save(ctx, DocInverterTypes, s.typeListOf(types)); err != nil {
		return Set{}, err
	}
	if name == s.currentType {
		if err := s.save(ctx, DocInverterCurrent, InverterType{Name: name, Settings: merged}); err != nil {
			return Set{}, err
		}
		s.current = merged
	}

	s.types = types
	return merged.Clone(), nil
}

// DeleteType removes an inverter type. Deleting the current type leaves
// the current selection and its last settings in place.
func (s *Store) DeleteType(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.types[name]; !ok {
		return ErrUnknownType
	}

	types := make(map[string]Set, len(s.types))
	names := make([]string, 0, len(s.typeNames))
	for _, n := range s.typeNames {
		if n == name {
			continue
		}
		names = append(names, n)
		types[n] = s.types[n]
	}
	if err := s.save(ctx, DocInverterTypes, typeListFrom(names, types)); err != nil {
		return err
	}

	s.types = types
	s.typeNames = names
	if name == s.currentType {
		s.logger.Warn("current inverter type deleted", "type", name)
	}
	return nil
}

// withType returns a copy of the type map with name set to settings.
func (s *Store) withType(name string, settings Set) map[string]Set {
	out := make(map[string]Set, len(s.types)+1)
	for k, v := range s.types {
		out[k] = v
	}
	out[name] = settings
	return out
}

func (s *Store) typeListOf(types map[string]Set) typeList {
	return typeListFrom(s.typeNames, types)
}

// typeList is the persisted form of the inverter configurations: a JSON
// object of type name to settings, in creation order.
type typeList []InverterType

func typeListFrom(names []string, types map[string]Set) typeList {
	out := make(typeList, 0, len(names))
	for _, n := range names {
		out = append(out, InverterType{Name: n, Settings: types[n]})
	}
	return out
}

// MarshalJSON implements json.Marshaler.
func (l typeList) MarshalJSON() ([]byte, error) {
	var set Set
	for _, t := range l {
		doc, err := t.Settings.MarshalJSON()
		if err != nil {
			return nil, err
		}
		v, err := value.Raw(doc)
		if err != nil {
			return nil, err
		}
		set.Put(t.Name, v)
	}
	return set.MarshalJSON()
}

// UnmarshalJSON implements json.Unmarshaler.
func (l *typeList) UnmarshalJSON(data []byte) error {
	var out typeList
	err := decodeObject(data, func(name string, raw json.RawMessage) error {
		var set Set
		if err := set.UnmarshalJSON(raw); err != nil {
			return fmt.Errorf("inverter type %q: %w", name, err)
		}
		out = append(out, InverterType{Name: name, Settings: set})
		return nil
	})
	if err != nil {
		return err
	}
	*l = out
	return nil
}
