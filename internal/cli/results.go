package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/roach88/changestore/internal/changes"
	"github.com/roach88/changestore/internal/record"
)

// entityList renders as one canonical JSON object per line.
type entityList []changes.Entity

func (l entityList) String() string {
	if len(l) == 0 {
		return "no entities"
	}
	lines := make([]string, len(l))
	for i, e := range l {
		data, err := e.MarshalJSON()
		if err != nil {
			lines[i] = fmt.Sprintf("<unencodable: %v>", err)
			continue
		}
		lines[i] = string(data)
	}
	return strings.Join(lines, "\n")
}

// MarshalJSON keeps an empty list as [] rather than null.
func (l entityList) MarshalJSON() ([]byte, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]changes.Entity(l))
}

// keyList renders deleted keys, one per line.
type keyList []any

func (l keyList) String() string {
	lines := make([]string, len(l))
	for i, k := range l {
		enc, err := record.EncodeKey(k)
		if err != nil {
			enc = fmt.Sprint(k)
		}
		lines[i] = "deleted " + enc
	}
	return strings.Join(lines, "\n")
}

// openResult describes an opened store.
type openResult struct {
	Store       string   `json:"store"`
	Version     int      `json:"version"`
	Connection  string   `json:"connection"`
	Collections []string `json:"collections"`
}

func (r openResult) String() string {
	return fmt.Sprintf("store %s at version %d\ncollections: %s",
		r.Store, r.Version, strings.Join(r.Collections, ", "))
}

// schemaResult is the configured schema.
type schemaResult struct {
	Store       string            `json:"store"`
	Version     int               `json:"version"`
	Fingerprint string            `json:"fingerprint"`
	Collections map[string]string `json:"collections"`
	text        string
}

func (r schemaResult) String() string {
	return fmt.Sprintf("store %s version %d\n%s", r.Store, r.Version, r.text)
}

// message is a plain text result.
type message struct {
	Message string `json:"message"`
}

func (m message) String() string {
	return m.Message
}
