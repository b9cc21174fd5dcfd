package models

// Strategy selects how a task batch is executed.
type Strategy string

const (
	// StrategySequential executes tasks one at a time in order.
	StrategySequential Strategy = "sequential"
	// StrategyParallel executes all tasks concurrently.
	StrategyParallel Strategy = "parallel"
	// StrategyHybrid executes dependency levels in order, tasks within
	// a level concurrently.
	StrategyHybrid Strategy = "hybrid"
)

// Valid returns true if the strategy is a known value.
func (s Strategy) Valid() bool {
	switch s {
	case StrategySequential, StrategyParallel, StrategyHybrid:
		return true
	default:
		return false
	}
}
