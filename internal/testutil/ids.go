package testutil

// FixedIDGenerator returns the same connection ID every time.
//
// With it, log output and golden snapshots do not depend on UUID
// generation. Leases from different physical opens become
// indistinguishable by ID, so tests asserting on sharing should use
// connection.NewSequenceGenerator instead.
//
// Thread-safety: FixedIDGenerator is stateless and safe for concurrent use.
type FixedIDGenerator struct {
	id string
}

// NewFixedIDGenerator creates a generator returning id.
// If id is empty, Generate() returns "test-conn-default".
func NewFixedIDGenerator(id string) *FixedIDGenerator {
	if id == "" {
		id = "test-conn-default"
	}
	return &FixedIDGenerator{id: id}
}

// Generate returns the fixed ID.
//
// Implements connection.IDGenerator.
func (g *FixedIDGenerator) Generate() string {
	return g.id
}
