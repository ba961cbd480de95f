package changes

import (
	"errors"
	"fmt"

	"github.com/roach88/changestore/internal/record"
)

// Field names added to stored records.
const (
	FieldChangeType    = "changeType"
	FieldOriginalValue = "originalValue"
)

var (
	// ErrUntagged indicates a stored record without a valid change tag.
	ErrUntagged = errors.New("record has no valid change tag")

	// ErrMissingOriginal indicates an update without a pre-update value.
	ErrMissingOriginal = errors.New("update requires an original value")
)

// ChangeType is the kind of mutation that last wrote an entity.
type ChangeType string

const (
	Added   ChangeType = "Added"
	Updated ChangeType = "Updated"
	// Deleted is part of the tag vocabulary for sync peers; local deletes
	// remove the record instead of tagging it.
	Deleted ChangeType = "Deleted"
)

// Valid reports whether c is a known change type.
func (c ChangeType) Valid() bool {
	switch c {
	case Added, Updated, Deleted:
		return true
	}
	return false
}

// ParseChangeType parses s, which must match a change type exactly.
func ParseChangeType(s string) (ChangeType, error) {
	c := ChangeType(s)
	if !c.Valid() {
		return "", fmt.Errorf("unknown change type %q (want Added, Updated or Deleted)", s)
	}
	return c, nil
}

// Entity is an application record with its change tag.
//
// OriginalValue is set if and only if ChangeType is Updated. It is stored
// alongside the record, so reads return it with the entity.
type Entity struct {
	Value         record.Record
	ChangeType    ChangeType
	OriginalValue record.Record
}

// Flatten returns the stored form: Value with the tag fields merged in.
func (e Entity) Flatten() record.Record {
	out := e.Value.Without(FieldChangeType, FieldOriginalValue)
	out[FieldChangeType] = string(e.ChangeType)
	if e.OriginalValue != nil {
		out[FieldOriginalValue] = e.OriginalValue
	}
	return out
}

// MarshalJSON encodes the stored form canonically, strings unchanged.
func (e Entity) MarshalJSON() ([]byte, error) {
	return record.MarshalExact(e.Flatten())
}

// ParseEntity splits a stored record into value and tag.
func ParseEntity(r record.Record) (Entity, error) {
	raw, ok := r[FieldChangeType].(string)
	if !ok {
		return Entity{}, fmt.Errorf("%w: missing %s", ErrUntagged, FieldChangeType)
	}
	ct, err := ParseChangeType(raw)
	if err != nil {
		return Entity{}, fmt.Errorf("%w: %v", ErrUntagged, err)
	}

	e := Entity{
		Value:      r.Without(FieldChangeType, FieldOriginalValue),
		ChangeType: ct,
	}

	if ov, present := r[FieldOriginalValue]; present {
		orig, err := toRecord(ov)
		if err != nil {
			return Entity{}, fmt.Errorf("%w: %s: %v", ErrUntagged, FieldOriginalValue, err)
		}
		e.OriginalValue = orig
	}

	if (e.ChangeType == Updated) != (e.OriginalValue != nil) {
		return Entity{}, fmt.Errorf("%w: %s record with original value present=%t",
			ErrUntagged, e.ChangeType, e.OriginalValue != nil)
	}
	return e, nil
}

func toRecord(v any) (record.Record, error) {
	switch val := v.(type) {
	case record.Record:
		return val, nil
	case map[string]any:
		return record.Record(val), nil
	default:
		return nil, fmt.Errorf("expected an object, got %T", v)
	}
}

// Update is the input of an update: the new value and the value it
// replaces.
type Update struct {
	Value         record.Record
	OriginalValue record.Record
}

// UpdateOf splits a flat record carrying an originalValue field into an
// Update. Any changeType field is dropped.
func UpdateOf(r record.Record) (Update, error) {
	ov, ok := r[FieldOriginalValue]
	if !ok || ov == nil {
		return Update{}, ErrMissingOriginal
	}
	orig, err := toRecord(ov)
	if err != nil {
		return Update{}, fmt.Errorf("%s: %w", FieldOriginalValue, err)
	}
	return Update{
		Value:         r.Without(FieldChangeType, FieldOriginalValue),
		OriginalValue: orig,
	}, nil
}
