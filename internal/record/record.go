package record

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"unicode/utf16"
)

// Record is an application-level entity: a JSON object.
type Record map[string]any

// From converts any JSON-marshalable value (typically a struct) to a Record.
// The value must marshal to a JSON object.
func From(v any) (Record, error) {
	if r, ok := v.(Record); ok {
		return r.Clone(), nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("record from %T: %w", v, err)
	}
	r, err := Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("record from %T: %w", v, err)
	}
	return r, nil
}

// Unmarshal parses a JSON object into a Record using json.Number for numbers.
func Unmarshal(data []byte) (Record, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var r Record
	if err := dec.Decode(&r); err != nil {
		return nil, fmt.Errorf("unmarshal record: %w", err)
	}
	if r == nil {
		return nil, fmt.Errorf("unmarshal record: not a JSON object")
	}
	return r, nil
}

// Decode copies the record into dst (a pointer to a struct or map) by way
// of JSON.
func (r Record) Decode(dst any) error {
	data, err := MarshalExact(r)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode record: %w", err)
	}
	return nil
}

// Clone returns a deep copy of the record. Nested objects and arrays are
// copied; scalars are shared.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = cloneValue(v)
	}
	return out
}

// Without returns a shallow copy of the record with the named fields removed.
func (r Record) Without(fields ...string) Record {
	out := make(Record, len(r))
	for k, v := range r {
		if slices.Contains(fields, k) {
			continue
		}
		out[k] = v
	}
	return out
}

// SortedKeys returns keys in RFC 8785 canonical order (UTF-16 code units).
// Go's sort.Strings orders by UTF-8 bytes, which differs for some inputs.
func (r Record) SortedKeys() []string {
	return sortedKeys(r)
}

// Equal reports whether two records have identical canonical encodings.
func Equal(a, b Record) bool {
	ab, err := Marshal(a)
	if err != nil {
		return false
	}
	bb, err := Marshal(b)
	if err != nil {
		return false
	}
	return bytes.Equal(ab, bb)
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case Record:
		return val.Clone()
	case map[string]any:
		return Record(val).Clone()
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = cloneValue(elem)
		}
		return out
	default:
		return v
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeysRFC8785)
	return keys
}

func compareKeysRFC8785(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))

	minLen := min(len(a16), len(b16))
	for i := 0; i < minLen; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}
	return len(a16) - len(b16)
}
