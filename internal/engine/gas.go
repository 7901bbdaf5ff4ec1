package engine

import "github.com/roach88/txblock/internal/ir"

// Gas schedule. Costs are flat; the simulator does not meter bytecode.
const (
	// DefaultGasBudget is the per-block budget when none is configured.
	DefaultGasBudget uint64 = 50_000_000

	CommandCost     uint64 = 1_000
	InvokeCost      uint64 = 10_000
	ModuleByteCost  uint64 = 20
	StorageByteCost uint64 = 100
	ObjectBaseCost  uint64 = 2_000
)

// GasMeter tracks gas consumed by one block and enforces its budget.
//
// Each block gets its own meter. Charge is called before every command and
// once more for storage when effects are assembled.
type GasMeter struct {
	budget uint64
	used   uint64
}

// NewGasMeter creates a meter with the given budget.
func NewGasMeter(budget uint64) *GasMeter {
	return &GasMeter{budget: budget}
}

// Charge adds amount to the running total. It fails with OUT_OF_GAS once
// the total exceeds the budget; cmd is the command being charged, or -1
// for storage.
func (g *GasMeter) Charge(cmd int, amount uint64) *ir.ExecutionError {
	if amount > g.budget-g.used {
		g.used = g.budget
		return failf(ir.ErrKindOutOfGas, cmd, "gas budget %d exhausted", g.budget)
	}
	g.used += amount
	return nil
}

// Used returns the gas consumed so far.
func (g *GasMeter) Used() uint64 {
	return g.used
}

// Budget returns the configured limit.
func (g *GasMeter) Budget() uint64 {
	return g.budget
}
