package testutil

// FixedFlowGenerator returns the same identifier every time. It satisfies
// trace.IDGenerator, so a scenario can pin its flow label or a test can pin
// the run id an audit log row is written under.
//
// Thread-safety: FixedFlowGenerator is stateless and safe for concurrent use.
type FixedFlowGenerator struct {
	token string
}

// NewFixedFlowGenerator creates a generator for token. An empty token
// yields "test-flow-default".
func NewFixedFlowGenerator(token string) *FixedFlowGenerator {
	if token == "" {
		token = "test-flow-default"
	}
	return &FixedFlowGenerator{token: token}
}

func (g *FixedFlowGenerator) Generate() string {
	return g.token
}
