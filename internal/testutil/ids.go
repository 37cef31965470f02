package testutil

// FixedIDGenerator generates the same instance id every time.
//
// Scenario runs build one pipeline each, so a constant id keeps journals and
// golden traces byte-identical across runs. Unlike feature.FixedGenerator,
// which hands out a sequence and panics when exhausted, this generator never
// runs out.
//
// Thread-safety: stateless and safe for concurrent use.
type FixedIDGenerator struct {
	id string
}

// NewFixedIDGenerator creates a generator returning id.
// If id is empty, Generate returns "test-feature-default".
func NewFixedIDGenerator(id string) *FixedIDGenerator {
	if id == "" {
		id = "test-feature-default"
	}
	return &FixedIDGenerator{id: id}
}

// Generate returns the fixed id.
//
// Implements feature.IDGenerator.
func (g *FixedIDGenerator) Generate() string {
	return g.id
}
