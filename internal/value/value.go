// Package value defines the polymorphic reading and setting type used across
// Solar Control Core.
//
// Telemetry only ever produces numbers or text. Settings and rule actions
// arrive as arbitrary JSON, so a Value can also carry a boolean or a raw JSON
// document (objects, arrays, null).
package value

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind identifies which field of a Value is populated.
type Kind uint8

const (
	// KindNull is the zero Value.
	KindNull Kind = iota
	KindNumber
	KindText
	KindBool
	KindRaw
)

// String returns the kind name used in diagnostics.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindNumber:
		return "number"
	case KindText:
		return "text"
	case KindBool:
		return "bool"
	case KindRaw:
		return "raw"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Value is a number, a string, a boolean or a raw JSON document.
type Value struct {
	kind Kind
	num  float64
	text string
	b    bool
	raw  json.RawMessage
}

// Number returns a numeric Value.
func Number(f float64) Value { return Value{kind: KindNumber, num: f} }

// Text returns a string Value.
func Text(s string) Value { return Value{kind: KindText, text: s} }

// Bool returns a boolean Value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Raw returns a Value holding an arbitrary JSON document. Scalars are
// normalised to their dedicated kinds.
func Raw(doc json.RawMessage) (Value, error) {
	var v Value
	if err := v.UnmarshalJSON(doc); err != nil {
		return Value{}, err
	}
	return v, nil
}

// Parse interprets a telemetry payload. A decimal floating point literal
// (surrounding whitespace ignored) becomes a Number; anything else, including
// "NaN", infinities and hexadecimal forms, is kept verbatim as Text.
func Parse(payload string) Value {
	s := strings.TrimSpace(payload)
	if f, ok := parseDecimal(s); ok {
		return Number(f)
	}
	return Text(payload)
}

func parseDecimal(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	digits := strings.TrimLeft(s, "+-")
	if len(digits) > 1 && digits[0] == '0' && (digits[1] == 'x' || digits[1] == 'X') {
		return 0, false
	}
	if strings.ContainsRune(s, '_') {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// FromAny converts a decoded YAML or JSON value into a Value.
func FromAny(v any) (Value, error) {
	switch t := v.(type) {
	case nil:
		return Value{}, nil
	case Value:
		return t, nil
	case float64:
		return Number(t), nil
	case float32:
		return Number(float64(t)), nil
	case int:
		return Number(float64(t)), nil
	case int64:
		return Number(float64(t)), nil
	case uint64:
		return Number(float64(t)), nil
	case string:
		return Text(t), nil
	case bool:
		return Bool(t), nil
	}
	doc, err := json.Marshal(normaliseMap(v))
	if err != nil {
		return Value{}, fmt.Errorf("value: encoding %T: %w", v, err)
	}
	return Value{kind: KindRaw, raw: doc}, nil
}

// normaliseMap rewrites map[any]any (yaml.v2 style) into map[string]any so it
// can be JSON encoded.
func normaliseMap(v any) any {
	switch t := v.(type) {
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = normaliseMap(val)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normaliseMap(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normaliseMap(val)
		}
		return out
	default:
		return v
	}
}

// Kind reports the populated kind.
func (v Value) Kind() Kind { return v.kind }

// IsNumber reports whether v holds a number.
func (v Value) IsNumber() bool { return v.kind == KindNumber }

// IsNull reports whether v is the zero Value.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Str returns the string payload and whether v is Text.
func (v Value) Str() (string, bool) { return v.text, v.kind == KindText }

// Float returns the numeric reading of v. Text that holds a decimal literal is
// read as that number, booleans read as 1 or 0, everything else is NaN.
func (v Value) Float() float64 {
	switch v.kind {
	case KindNumber:
		return v.num
	case KindText:
		if f, ok := parseDecimal(strings.TrimSpace(v.text)); ok {
			return f
		}
	case KindBool:
		if v.b {
			return 1
		}
		return 0
	}
	return math.NaN()
}

// Equal reports whether two values have the same kind and payload.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNumber:
		return v.num == o.num
	case KindText:
		return v.text == o.text
	case KindBool:
		return v.b == o.b
	case KindRaw:
		return bytes.Equal(v.raw, o.raw)
	}
	return true
}

// String renders v the way it is sent on the bus: text verbatim, everything
// else as its JSON form.
func (v Value) String() string {
	if v.kind == KindText {
		return v.text
	}
	b, err := v.MarshalJSON()
	if err != nil {
		return "NaN"
	}
	return string(b)
}

// MarshalJSON implements json.Marshaler. NaN and infinities cannot be
// represented in JSON and return an error.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNumber:
		if math.IsNaN(v.num) || math.IsInf(v.num, 0) {
			return nil, fmt.Errorf("value: %v is not representable in JSON", v.num)
		}
		return json.Marshal(v.num)
	case KindText:
		return json.Marshal(v.text)
	case KindBool:
		return json.Marshal(v.b)
	case KindRaw:
		return v.raw, nil
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return fmt.Errorf("value: empty document")
	}
	switch trimmed[0] {
	case 'n':
		*v = Value{}
		return nil
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(trimmed, &b); err != nil {
			return fmt.Errorf("value: %w", err)
		}
		*v = Bool(b)
		return nil
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return fmt.Errorf("value: %w", err)
		}
		*v = Text(s)
		return nil
	case '{', '[':
		var buf bytes.Buffer
		if err := json.Compact(&buf, trimmed); err != nil {
			return fmt.Errorf("value: invalid JSON document: %w", err)
		}
		*v = Value{kind: KindRaw, raw: buf.Bytes()}
		return nil
	default:
		var f float64
		if err := json.Unmarshal(trimmed, &f); err != nil {
			return fmt.Errorf("value: %w", err)
		}
		*v = Number(f)
		return nil
	}
}
