package schema

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/changestore/internal/record"
)

// domainDescriptor separates descriptor fingerprints from other hashes.
const domainDescriptor = "changestore/schema/v1"

// ErrInvalid is returned by Validate for malformed descriptors.
var ErrInvalid = errors.New("invalid schema")

// Collection declares one collection.
type Collection struct {
	// KeyPath names the entity field whose value keys the collection.
	KeyPath string `yaml:"keyPath" json:"keyPath"`
}

// Descriptor maps collection names to their declarations.
type Descriptor map[string]Collection

// Names returns the collection names in sorted order.
func (d Descriptor) Names() []string {
	names := make([]string, 0, len(d))
	for name := range d {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// KeyPath returns the key field declared for name.
func (d Descriptor) KeyPath(name string) (string, bool) {
	c, ok := d[name]
	if !ok {
		return "", false
	}
	return c.KeyPath, true
}

// Has reports whether the descriptor declares name.
func (d Descriptor) Has(name string) bool {
	_, ok := d[name]
	return ok
}

// Clone returns an independent copy of the descriptor.
func (d Descriptor) Clone() Descriptor {
	out := make(Descriptor, len(d))
	for name, c := range d {
		out[name] = c
	}
	return out
}

// Validate checks that every collection has a non-empty name and key path.
func (d Descriptor) Validate() error {
	if len(d) == 0 {
		return fmt.Errorf("%w: no collections declared", ErrInvalid)
	}
	for _, name := range d.Names() {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("%w: empty collection name", ErrInvalid)
		}
		if strings.TrimSpace(d[name].KeyPath) == "" {
			return fmt.Errorf("%w: collection %q has no keyPath", ErrInvalid, name)
		}
	}
	return nil
}

// Fingerprint returns a stable hex SHA-256 over the canonical JSON form of
// the descriptor. Equal descriptors have equal fingerprints regardless of
// map iteration order.
func (d Descriptor) Fingerprint() string {
	obj := make(map[string]any, len(d))
	for name, c := range d {
		obj[name] = map[string]any{"keyPath": c.KeyPath}
	}
	// Only strings are involved, so canonical marshaling cannot fail.
	data, _ := record.MarshalValue(obj)

	h := sha256.New()
	h.Write([]byte(domainDescriptor))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// String renders the descriptor as "Name(keyPath), ..." in name order.
func (d Descriptor) String() string {
	parts := make([]string, 0, len(d))
	for _, name := range d.Names() {
		parts = append(parts, fmt.Sprintf("%s(%s)", name, d[name].KeyPath))
	}
	return strings.Join(parts, ", ")
}
