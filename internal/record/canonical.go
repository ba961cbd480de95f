package record

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"golang.org/x/text/unicode/norm"
)

// Marshal produces the canonical JSON encoding of a record.
//
// Differences from json.Marshal:
//  1. Object keys sorted by UTF-16 code units
//  2. No HTML escaping (< > & are NOT escaped)
//  3. Strings are NFC normalized
//  4. Numbers are normalized (integers without exponent, NaN/Inf rejected)
//
// Marshal is for hashing and snapshots. Stored data uses MarshalExact.
func Marshal(r Record) ([]byte, error) {
	if r == nil {
		return nil, fmt.Errorf("marshal record: nil record")
	}
	return MarshalValue(map[string]any(r))
}

// MarshalValue produces canonical JSON for any supported value.
func MarshalValue(v any) ([]byte, error) {
	return encoder{nfc: true}.encode(v)
}

// MarshalExact is Marshal without NFC normalization: strings keep their
// exact code points, so distinct strings never encode alike.
func MarshalExact(r Record) ([]byte, error) {
	if r == nil {
		return nil, fmt.Errorf("marshal record: nil record")
	}
	return MarshalValueExact(map[string]any(r))
}

// MarshalValueExact is MarshalValue without NFC normalization.
func MarshalValueExact(v any) ([]byte, error) {
	return encoder{}.encode(v)
}

// encoder writes canonical JSON. nfc selects NFC normalization of strings
// and object keys.
type encoder struct {
	nfc bool
}

func (e encoder) encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := e.write(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (e encoder) write(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case string:
		return e.writeString(buf, val)
	case json.Number:
		num, err := canonicalNumber(val)
		if err != nil {
			return err
		}
		buf.WriteString(num)
	case int:
		buf.WriteString(strconv.FormatInt(int64(val), 10))
	case int8:
		buf.WriteString(strconv.FormatInt(int64(val), 10))
	case int16:
		buf.WriteString(strconv.FormatInt(int64(val), 10))
	case int32:
		buf.WriteString(strconv.FormatInt(int64(val), 10))
	case int64:
		buf.WriteString(strconv.FormatInt(val, 10))
	case uint:
		buf.WriteString(strconv.FormatUint(uint64(val), 10))
	case uint8:
		buf.WriteString(strconv.FormatUint(uint64(val), 10))
	case uint16:
		buf.WriteString(strconv.FormatUint(uint64(val), 10))
	case uint32:
		buf.WriteString(strconv.FormatUint(uint64(val), 10))
	case uint64:
		buf.WriteString(strconv.FormatUint(val, 10))
	case float32:
		num, err := canonicalFloat(float64(val))
		if err != nil {
			return err
		}
		buf.WriteString(num)
	case float64:
		num, err := canonicalFloat(val)
		if err != nil {
			return err
		}
		buf.WriteString(num)
	case []any:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := e.write(buf, elem); err != nil {
				return fmt.Errorf("array[%d]: %w", i, err)
			}
		}
		buf.WriteByte(']')
	case Record:
		return e.writeObject(buf, val)
	case map[string]any:
		return e.writeObject(buf, val)
	default:
		// Structs, typed slices and maps: round-trip through encoding/json
		// and canonicalize the result.
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Errorf("unsupported value %T: %w", v, err)
		}
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		var generic any
		if err := dec.Decode(&generic); err != nil {
			return fmt.Errorf("unsupported value %T: %w", v, err)
		}
		return e.write(buf, generic)
	}
	return nil
}

func (e encoder) writeObject(buf *bytes.Buffer, obj map[string]any) error {
	buf.WriteByte('{')
	for i, k := range sortedKeys(obj) {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := e.writeString(buf, k); err != nil {
			return fmt.Errorf("key %q: %w", k, err)
		}
		buf.WriteByte(':')
		if err := e.write(buf, obj[k]); err != nil {
			return fmt.Errorf("value for key %q: %w", k, err)
		}
	}
	buf.WriteByte('}')
	return nil
}

// writeString writes a JSON string without HTML escaping, NFC-normalized
// when e.nfc is set. U+2028 and U+2029 are emitted literally.
func (e encoder) writeString(buf *bytes.Buffer, s string) error {
	normalized := s
	if e.nfc {
		normalized = norm.NFC.String(s)
	}

	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(normalized); err != nil {
		return err
	}

	out := bytes.TrimSuffix(tmp.Bytes(), []byte{'\n'})
	buf.Write(unescapeLineSeparators(out))
	return nil
}

// unescapeLineSeparators converts \u2028 and \u2029 escapes emitted by
// encoding/json back to literal characters, leaving \\u2028 (an escaped
// backslash followed by text) alone.
func unescapeLineSeparators(data []byte) []byte {
	if !bytes.Contains(data, []byte(`\u202`)) {
		return data
	}

	out := make([]byte, 0, len(data))
	for i := 0; i < len(data); i++ {
		if data[i] == '\\' && i+5 < len(data) && data[i+1] == 'u' &&
			data[i+2] == '2' && data[i+3] == '0' && data[i+4] == '2' &&
			(data[i+5] == '8' || data[i+5] == '9') {
			backslashes := 0
			for j := len(out) - 1; j >= 0 && out[j] == '\\'; j-- {
				backslashes++
			}
			if backslashes%2 == 0 {
				if data[i+5] == '8' {
					out = append(out, "\u2028"...)
				} else {
					out = append(out, "\u2029"...)
				}
				i += 5
				continue
			}
		}
		out = append(out, data[i])
	}
	return out
}

func canonicalNumber(n json.Number) (string, error) {
	if i, err := n.Int64(); err == nil {
		return strconv.FormatInt(i, 10), nil
	}
	f, err := n.Float64()
	if err != nil {
		return "", fmt.Errorf("invalid number %q: %w", n.String(), err)
	}
	return canonicalFloat(f)
}

func canonicalFloat(f float64) (string, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", fmt.Errorf("number %v is not representable in JSON", f)
	}
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return strconv.FormatInt(int64(f), 10), nil
	}
	return strconv.FormatFloat(f, 'g', -1, 64), nil
}
