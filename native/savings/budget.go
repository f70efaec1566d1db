package savings

// Batch scheduling constants. The budget is an abstract bounded resource
// granted per call, not a blockchain gas unit.
const (
	batchSize           = 5
	initialCostEstimate = 150_000
	budgetReserve       = 100_000
)

// DefaultCallBudget is granted when a caller does not supply a budget.
const DefaultCallBudget uint64 = 5_000_000

// Cost schedule charged by the settlement path. Budget exhaustion is only
// checked at call, batch and item boundaries, so worst-case overrun is
// bounded by roughly one item's cost.
const (
	costEnumerate = 2_500
	costPlanRead  = 5_000
	costDailyRead = 3_000
	costFundsRead = 6_000
	costAssetPull = 60_000
	costPlanWrite = 20_000
	costMint      = 25_000
	costYield     = 40_000
)

// Budget meters the execution allowance of a single call. Consume saturates
// instead of failing so an in-flight item always runs to completion; the
// scheduler's boundary checks are the only early-termination mechanism.
type Budget struct {
	remaining uint64
	consumed  uint64
}

// NewBudget returns a budget holding the given number of units.
func NewBudget(units uint64) *Budget {
	return &Budget{remaining: units}
}

// Remaining reports the unspent units.
func (b *Budget) Remaining() uint64 {
	if b == nil {
		return 0
	}
	return b.remaining
}

// Consumed reports the true cumulative cost charged, including any overrun
// past exhaustion. This feeds the scheduler's per-item cost measurement.
func (b *Budget) Consumed() uint64 {
	if b == nil {
		return 0
	}
	return b.consumed
}

// Consume charges units against the budget, flooring the remainder at zero.
func (b *Budget) Consume(units uint64) {
	if b == nil {
		return
	}
	b.consumed += units
	if units >= b.remaining {
		b.remaining = 0
		return
	}
	b.remaining -= units
}

// recalibrate folds one observed item cost into the running estimate.
// Upward corrections are damped to a quarter of the error so cost spikes do
// not starve later batches; clear over-provisioning (actual below 80% of the
// estimate) is corrected faster by averaging. Anything in between leaves the
// estimate untouched, which keeps the loop from oscillating.
func recalibrate(prev, actual uint64) uint64 {
	switch {
	case actual > prev:
		return prev + (actual-prev)/4
	case actual*5 < prev*4:
		return (prev + actual) / 2
	default:
		return prev
	}
}
