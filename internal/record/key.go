package record

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidKey is returned when a key is missing or not a string or number.
var ErrInvalidKey = errors.New("invalid key")

// EncodeKey returns the canonical text form of a key. Strings encode as
// quoted JSON strings with their code points unchanged, so keys that differ
// only in Unicode normalization stay distinct; numbers encode as canonical
// JSON numbers. Any other type is rejected with ErrInvalidKey.
func EncodeKey(key any) (string, error) {
	switch k := key.(type) {
	case string, json.Number,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		data, err := MarshalValueExact(k)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidKey, err)
		}
		return string(data), nil
	case nil:
		return "", fmt.Errorf("%w: key is null", ErrInvalidKey)
	default:
		return "", fmt.Errorf("%w: unsupported key type %T", ErrInvalidKey, key)
	}
}

// DecodeKey parses an encoded key back to a string or json.Number.
func DecodeKey(encoded string) (any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(encoded)))
	dec.UseNumber()

	var key any
	if err := dec.Decode(&key); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	switch key.(type) {
	case string, json.Number:
		return key, nil
	default:
		return nil, fmt.Errorf("%w: encoded key %q is not a string or number", ErrInvalidKey, encoded)
	}
}

// KeyOf extracts the value of field from r and returns it together with
// its encoded form. The field must be present and hold a valid key.
func KeyOf(r Record, field string) (any, string, error) {
	key, ok := r[field]
	if !ok {
		return nil, "", fmt.Errorf("%w: field %q missing", ErrInvalidKey, field)
	}
	encoded, err := EncodeKey(key)
	if err != nil {
		return nil, "", fmt.Errorf("field %q: %w", field, err)
	}
	return key, encoded, nil
}

// SameKey reports whether two keys address the same entity.
func SameKey(a, b any) bool {
	ea, err := EncodeKey(a)
	if err != nil {
		return false
	}
	eb, err := EncodeKey(b)
	if err != nil {
		return false
	}
	return ea == eb
}
