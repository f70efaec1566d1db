package savings

import (
	"fmt"
	"math/big"
)

// MaxPenaltyBps caps the configurable early-withdrawal penalty at 30%.
const MaxPenaltyBps = 3_000

const penaltyBpsDenominator = 10_000

// YieldStrategy identifies the optional yield-application hook configured for
// a plan. Strategies other than YieldNone cause the engine to invoke the
// yield router after every successful execution.
type YieldStrategy uint8

const (
	YieldNone YieldStrategy = iota
	YieldLending
	YieldStaking
)

// Valid reports whether the strategy value is within the supported range.
func (s YieldStrategy) Valid() bool {
	switch s {
	case YieldNone, YieldLending, YieldStaking:
		return true
	default:
		return false
	}
}

func (s YieldStrategy) String() string {
	switch s {
	case YieldNone:
		return "none"
	case YieldLending:
		return "lending"
	case YieldStaking:
		return "staking"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// PlanConfig captures the stored daily-savings configuration for one
// account×asset pair. Disabled plans remain as zeroed records; the enrolled
// asset set never shrinks.
type PlanConfig struct {
	Enabled           bool
	DailyAmount       *big.Int
	GoalAmount        *big.Int
	CurrentAmount     *big.Int
	PenaltyBps        uint32
	EndTime           int64
	LastExecutionTime int64
	StartTime         int64
	Strategy          YieldStrategy
}

// Clone returns a deep copy so callers can mutate the result without
// affecting the stored instance.
func (p *PlanConfig) Clone() *PlanConfig {
	if p == nil {
		return nil
	}
	clone := *p
	clone.DailyAmount = cloneBigInt(p.DailyAmount)
	clone.GoalAmount = cloneBigInt(p.GoalAmount)
	clone.CurrentAmount = cloneBigInt(p.CurrentAmount)
	return &clone
}

// SanitizePlan validates and normalises a plan definition, returning a cloned
// instance with non-nil amount fields. The original value is not mutated.
func SanitizePlan(p *PlanConfig) (*PlanConfig, error) {
	if p == nil {
		return nil, fmt.Errorf("savings: nil plan")
	}
	clone := p.Clone()
	if clone.DailyAmount.Sign() < 0 || clone.GoalAmount.Sign() < 0 || clone.CurrentAmount.Sign() < 0 {
		return nil, fmt.Errorf("savings: plan amounts must be non-negative")
	}
	if clone.PenaltyBps > MaxPenaltyBps {
		return nil, fmt.Errorf("savings: penalty bps out of range: %d", clone.PenaltyBps)
	}
	if !clone.Strategy.Valid() {
		return nil, fmt.Errorf("savings: invalid yield strategy: %d", clone.Strategy)
	}
	return clone, nil
}

// goalReached reports whether the plan has a goal and has met it.
func (p *PlanConfig) goalReached() bool {
	if p == nil || p.GoalAmount == nil || p.GoalAmount.Sign() <= 0 {
		return false
	}
	return cloneBigInt(p.CurrentAmount).Cmp(p.GoalAmount) >= 0
}

// ExecutionResult reports the outcome of settling a single asset. Skips are
// normal outcomes carrying a diagnostic reason, not faults.
type ExecutionResult struct {
	Account [20]byte
	Asset   [20]byte
	Amount  *big.Int
	Skipped bool
	Reason  string
}

// WithdrawalResult reports a settled withdrawal.
type WithdrawalResult struct {
	Amount      *big.Int
	Penalty     *big.Int
	NetAmount   *big.Int
	GoalReached bool
}

// BatchResult summarises one ExecuteAll pass.
type BatchResult struct {
	TotalSaved     *big.Int
	Processed      int
	SkippedCount   int
	BudgetConsumed uint64
	CostEstimate   uint64
	Results        []*ExecutionResult
}

// ExecutionStatus is the read-only answer to "can this plan execute now".
type ExecutionStatus struct {
	CanExecute        bool
	NextExecutionTime int64
	AmountDue         *big.Int
}

// FullStatus is the aggregate read-only view of one plan.
type FullStatus struct {
	Enabled                 bool
	DailyAmount             *big.Int
	GoalAmount              *big.Int
	CurrentAmount           *big.Int
	Remaining               *big.Int
	EstimatedPenalty        *big.Int
	EstimatedCompletionTime int64
	Strategy                YieldStrategy
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
