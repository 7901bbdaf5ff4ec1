package trace

import (
	"sync"

	"github.com/google/uuid"
)

// IDGenerator produces identifiers for runs and flows.
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 identifiers, so runs list
// in creation order. It is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// SequenceGenerator returns predetermined identifiers in order, for tests
// that compare persisted output byte for byte.
type SequenceGenerator struct {
	mu  sync.Mutex
	ids []string
	idx int
}

func NewSequenceGenerator(ids ...string) *SequenceGenerator {
	return &SequenceGenerator{ids: ids}
}

// Generate returns the next identifier. It panics once the sequence is
// exhausted, which means a test produced more runs than it declared.
func (g *SequenceGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.idx >= len(g.ids) {
		panic("trace: identifier sequence exhausted")
	}
	id := g.ids[g.idx]
	g.idx++
	return id
}
