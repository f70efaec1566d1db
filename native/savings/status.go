package savings

import "math/big"

// oneDay is the execution cadence in unix seconds.
const oneDay int64 = 86_400

// Status is the pure snapshot of one plan's execution state at a point in
// time. DailyAmount is only populated when at least one full day has elapsed,
// so callers never pay for the read when nothing is due.
type Status struct {
	Enabled        bool
	GoalReached    bool
	DaysPassed     uint64
	DailyAmount    *big.Int
	ShouldConsider bool
}

// ComputeStatus derives the execution status of a plan at the given unix
// time. It has no side effects and is safe for unbounded read-only queries.
func ComputeStatus(plan *PlanConfig, now int64) Status {
	st := Status{DailyAmount: big.NewInt(0)}
	if plan == nil {
		return st
	}
	st.Enabled = plan.Enabled
	st.GoalReached = plan.goalReached()
	st.ShouldConsider = st.Enabled && !st.GoalReached
	if !st.ShouldConsider {
		return st
	}
	if now > plan.LastExecutionTime {
		st.DaysPassed = uint64((now - plan.LastExecutionTime) / oneDay)
	}
	if st.DaysPassed > 0 {
		st.DailyAmount = cloneBigInt(plan.DailyAmount)
	}
	return st
}

// ComputeDueAmount returns the amount owed for the elapsed days, capped so
// automatic execution never pushes the plan past a configured goal.
func ComputeDueAmount(st Status, plan *PlanConfig) *big.Int {
	if plan == nil || st.DaysPassed == 0 {
		return big.NewInt(0)
	}
	daily := cloneBigInt(st.DailyAmount)
	if daily.Sign() == 0 {
		return big.NewInt(0)
	}
	due := new(big.Int).Mul(daily, new(big.Int).SetUint64(st.DaysPassed))
	if plan.GoalAmount != nil && plan.GoalAmount.Sign() > 0 {
		headroom := new(big.Int).Sub(plan.GoalAmount, cloneBigInt(plan.CurrentAmount))
		if headroom.Sign() < 0 {
			headroom = big.NewInt(0)
		}
		if due.Cmp(headroom) > 0 {
			due = headroom
		}
	}
	return due
}

// penaltyFor computes floor(amount*bps/10000). Completed goals are handled by
// the caller and never reach this function with a non-zero result expected.
func penaltyFor(amount *big.Int, bps uint32) *big.Int {
	if amount == nil || amount.Sign() <= 0 || bps == 0 {
		return big.NewInt(0)
	}
	penalty := new(big.Int).Mul(amount, new(big.Int).SetUint64(uint64(bps)))
	return penalty.Quo(penalty, big.NewInt(penaltyBpsDenominator))
}
