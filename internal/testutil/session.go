package testutil

// FixedSessionGenerator returns the same session id every time, so a
// scenario journals under a known session and its trace is byte-stable.
type FixedSessionGenerator struct {
	id string
}

// NewFixedSessionGenerator creates a generator for id. An empty id becomes
// "test-session".
func NewFixedSessionGenerator(id string) *FixedSessionGenerator {
	if id == "" {
		id = "test-session"
	}
	return &FixedSessionGenerator{id: id}
}

// Generate returns the fixed id.
func (g *FixedSessionGenerator) Generate() string {
	return g.id
}
