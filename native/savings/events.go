package savings

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"spendsave/core/types"
)

const (
	EventTypePlanConfigured     = "savings.plan.configured"
	EventTypePlanDisabled       = "savings.plan.disabled"
	EventTypeStrategyUpdated    = "savings.plan.strategy_updated"
	EventTypeExecuted           = "savings.execution.completed"
	EventTypeExecutionSkipped   = "savings.execution.skipped"
	EventTypeTransferError      = "savings.execution.transfer_error"
	EventTypeGoalReached        = "savings.goal.reached"
	EventTypeBatchSummary       = "savings.batch.summary"
	EventTypeWithdrawn          = "savings.withdrawal.completed"
	EventTypePenaltyUnrouted    = "savings.withdrawal.penalty_unrouted"
	EventTypeWithdrawalRollback = "savings.withdrawal.rolled_back"
)

func planAttributes(account, asset [20]byte) map[string]string {
	return map[string]string{
		"account": hex.EncodeToString(account[:]),
		"asset":   hex.EncodeToString(asset[:]),
	}
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// NewConfiguredEvent returns the canonical payload for a freshly stored plan.
func NewConfiguredEvent(account, asset [20]byte, plan *PlanConfig) *types.Event {
	attrs := planAttributes(account, asset)
	if plan != nil {
		attrs["dailyAmount"] = amountString(plan.DailyAmount)
		attrs["goalAmount"] = amountString(plan.GoalAmount)
		attrs["penaltyBps"] = strconv.FormatUint(uint64(plan.PenaltyBps), 10)
		attrs["endTime"] = strconv.FormatInt(plan.EndTime, 10)
	}
	return &types.Event{Type: EventTypePlanConfigured, Attributes: attrs}
}

// NewDisabledEvent returns the payload emitted when a plan is zeroed.
func NewDisabledEvent(account, asset [20]byte) *types.Event {
	return &types.Event{Type: EventTypePlanDisabled, Attributes: planAttributes(account, asset)}
}

// NewStrategyUpdatedEvent returns the payload for a yield strategy change.
func NewStrategyUpdatedEvent(account, asset [20]byte, strategy YieldStrategy) *types.Event {
	attrs := planAttributes(account, asset)
	attrs["strategy"] = strategy.String()
	return &types.Event{Type: EventTypeStrategyUpdated, Attributes: attrs}
}

// NewExecutedEvent returns the payload for one successful settlement.
func NewExecutedEvent(account, asset [20]byte, amount, current *big.Int) *types.Event {
	attrs := planAttributes(account, asset)
	attrs["amount"] = amountString(amount)
	attrs["currentAmount"] = amountString(current)
	return &types.Event{Type: EventTypeExecuted, Attributes: attrs}
}

// NewSkippedEvent returns the diagnostic payload for a non-error skip.
func NewSkippedEvent(account, asset [20]byte, reason string) *types.Event {
	attrs := planAttributes(account, asset)
	attrs["reason"] = reason
	return &types.Event{Type: EventTypeExecutionSkipped, Attributes: attrs}
}

// NewTransferErrorEvent reports a failed asset pull during execution. The
// failure stays a per-asset diagnostic and never aborts sibling work.
func NewTransferErrorEvent(account, asset [20]byte, amount *big.Int, err error) *types.Event {
	attrs := planAttributes(account, asset)
	attrs["amount"] = amountString(amount)
	if err != nil {
		attrs["error"] = err.Error()
	}
	return &types.Event{Type: EventTypeTransferError, Attributes: attrs}
}

// NewGoalReachedEvent signals that a plan newly met its goal.
func NewGoalReachedEvent(account, asset [20]byte, goal *big.Int) *types.Event {
	attrs := planAttributes(account, asset)
	attrs["goalAmount"] = amountString(goal)
	return &types.Event{Type: EventTypeGoalReached, Attributes: attrs}
}

// NewBatchSummaryEvent reports one ExecuteAll pass as an observability
// signal.
func NewBatchSummaryEvent(account [20]byte, res *BatchResult) *types.Event {
	attrs := map[string]string{
		"account": hex.EncodeToString(account[:]),
	}
	if res != nil {
		attrs["totalSaved"] = amountString(res.TotalSaved)
		attrs["processed"] = strconv.Itoa(res.Processed)
		attrs["skipped"] = strconv.Itoa(res.SkippedCount)
		attrs["budgetConsumed"] = strconv.FormatUint(res.BudgetConsumed, 10)
		attrs["costEstimate"] = strconv.FormatUint(res.CostEstimate, 10)
	}
	return &types.Event{Type: EventTypeBatchSummary, Attributes: attrs}
}

// NewWithdrawnEvent returns the payload for a settled withdrawal.
func NewWithdrawnEvent(account, asset [20]byte, res *WithdrawalResult) *types.Event {
	attrs := planAttributes(account, asset)
	if res != nil {
		attrs["amount"] = amountString(res.Amount)
		attrs["penalty"] = amountString(res.Penalty)
		attrs["netAmount"] = amountString(res.NetAmount)
		attrs["goalReached"] = strconv.FormatBool(res.GoalReached)
	}
	return &types.Event{Type: EventTypeWithdrawn, Attributes: attrs}
}

// NewPenaltyUnroutedEvent reports a tolerated failure moving the penalty to
// the treasury after the account already received its net amount.
func NewPenaltyUnroutedEvent(account, asset [20]byte, penalty *big.Int, err error) *types.Event {
	attrs := planAttributes(account, asset)
	attrs["penalty"] = amountString(penalty)
	if err != nil {
		attrs["error"] = err.Error()
	}
	return &types.Event{Type: EventTypePenaltyUnrouted, Attributes: attrs}
}

// NewWithdrawalRollbackEvent reports that a failed net transfer forced the
// burn and progress update to be restored.
func NewWithdrawalRollbackEvent(account, asset [20]byte, amount *big.Int, err error) *types.Event {
	attrs := planAttributes(account, asset)
	attrs["amount"] = amountString(amount)
	if err != nil {
		attrs["error"] = err.Error()
	}
	return &types.Event{Type: EventTypeWithdrawalRollback, Attributes: attrs}
}
