// Package settings holds the operator-editable inverter settings: the
// universal settings shared by every inverter and the per-type inverter
// configurations, one of which is selected as current.
//
// Settings are ordered. Keys keep the order they were first written in and
// a merge appends new keys after existing ones, so pushing a set to the bus
// publishes keys in a stable, predictable order.
package settings

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/nerrad567/solar-control-core/internal/value"
)

// Set is an insertion-ordered collection of setting key to value.
// The zero Set is empty and ready to use.
type Set struct {
	keys []string
	vals map[string]value.Value
}

// Len returns the number of keys.
func (s Set) Len() int { return len(s.keys) }

// Keys returns the keys in order.
func (s Set) Keys() []string {
	return append([]string(nil), s.keys...)
}

// Get returns the value for key.
func (s Set) Get(key string) (value.Value, bool) {
	v, ok := s.vals[key]
	return v, ok
}

// Put sets key to v. A new key is appended; an existing key keeps its place.
func (s *Set) Put(key string, v value.Value) {
	if s.vals == nil {
		s.vals = make(map[string]value.Value)
	}
	if _, ok := s.vals[key]; !ok {
		s.keys = append(s.keys, key)
	}
	s.vals[key] = v
}

// Clone returns an independent copy.
func (s Set) Clone() Set {
	out := Set{
		keys: append([]string(nil), s.keys...),
		vals: make(map[string]value.Value, len(s.vals)),
	}
	for k, v := range s.vals {
		out.vals[k] = v
	}
	return out
}

// Merge returns a copy of s with every key of patch applied over it.
// Neither input is modified.
func (s Set) Merge(patch Set) Set {
	out := s.Clone()
	for _, k := range patch.keys {
		out.Put(k, patch.vals[k])
	}
	return out
}

// MarshalJSON encodes the set as a JSON object in key order.
func (s Set) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range s.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		val, err := s.vals[k].MarshalJSON()
		if err != nil {
			return nil, fmt.Errorf("settings: encoding %q: %w", k, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object, keeping its key order. null leaves
// the set unchanged.
func (s *Set) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}
	out := Set{}
	err := decodeObject(data, func(key string, raw json.RawMessage) error {
		var v value.Value
		if err := v.UnmarshalJSON(raw); err != nil {
			return fmt.Errorf("settings: key %q: %w", key, err)
		}
		out.Put(key, v)
		return nil
	})
	if err != nil {
		return err
	}
	*s = out
	return nil
}

// FromYAML converts a YAML mapping node into a Set, keeping document order.
func FromYAML(node *yaml.Node) (Set, error) {
	out := Set{}
	node = unwrapDocument(node)
	if node == nil || node.Kind == 0 {
		return out, nil
	}
	if node.Kind != yaml.MappingNode {
		return out, fmt.Errorf("settings: line %d: expected a mapping", node.Line)
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i].Value
		var decoded any
		if err := node.Content[i+1].Decode(&decoded); err != nil {
			return out, fmt.Errorf("settings: key %q: %w", key, err)
		}
		v, err := value.FromAny(decoded)
		if err != nil {
			return out, fmt.Errorf("settings: key %q: %w", key, err)
		}
		out.Put(key, v)
	}
	return out, nil
}

func unwrapDocument(node *yaml.Node) *yaml.Node {
	if node != nil && node.Kind == yaml.DocumentNode && len(node.Content) == 1 {
		return node.Content[0]
	}
	return node
}

// decodeObject walks a JSON object in document order.
func decodeObject(data []byte, fn func(key string, raw json.RawMessage) error) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("settings: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("settings: expected a JSON object")
	}

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("settings: %w", err)
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("settings: expected an object key")
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("settings: key %q: %w", key, err)
		}
		if err := fn(key, raw); err != nil {
			return err
		}
	}

	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("settings: %w", err)
	}
	return nil
}
