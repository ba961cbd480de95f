package connection

import (
	"fmt"
	"strings"

	"github.com/roach88/changestore/internal/schema"
)

// Config identifies the store and schema a Manager opens by default.
// It is set once, when the Manager is created, and never mutated after.
type Config struct {
	Schema    schema.Descriptor
	StoreName string
	Version   int
}

// Validate checks the configuration before any open is attempted.
func (c Config) Validate() error {
	if strings.TrimSpace(c.StoreName) == "" {
		return fmt.Errorf("store name is required")
	}
	if c.Version < 1 {
		return fmt.Errorf("version %d must be at least 1", c.Version)
	}
	if err := c.Schema.Validate(); err != nil {
		return err
	}
	return nil
}
