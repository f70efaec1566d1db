package savings

import (
	"math/big"

	"spendsave/observability"
)

// ExecuteAll makes exactly one forward pass over the account's enrolled
// assets in fixed batches, settling each under the remaining execution
// budget. Partial progress is kept on early termination; callers re-invoke
// later to continue unfinished assets. One asset's fault never aborts its
// siblings.
func (e *Engine) ExecuteAll(caller, account [20]byte, budget *Budget) (*BatchResult, error) {
	if err := e.enterMutating(caller, account); err != nil {
		return nil, err
	}
	defer e.latch.Release()

	if budget == nil {
		budget = NewBudget(DefaultCallBudget)
	}
	// Refuse to start work that cannot possibly complete one batch.
	if budget.Remaining() <= batchSize*initialCostEstimate+budgetReserve {
		return nil, ErrInsufficientBudget
	}

	budget.Consume(costEnumerate)
	assets, err := e.state.EnrolledAssets(account)
	if err != nil {
		return nil, err
	}

	res := &BatchResult{
		TotalSaved:   big.NewInt(0),
		CostEstimate: initialCostEstimate,
	}
	estimate := uint64(initialCostEstimate)

scan:
	for start := 0; start < len(assets); start += batchSize {
		if budget.Remaining() < estimate*batchSize+budgetReserve {
			break
		}
		end := start + batchSize
		if end > len(assets) {
			end = len(assets)
		}
		for _, asset := range assets[start:end] {
			if budget.Remaining() < estimate+budgetReserve {
				break scan
			}
			before := budget.Consumed()
			item := e.settleIsolated(account, asset, budget)
			actual := budget.Consumed() - before
			res.Results = append(res.Results, item)
			if item.Skipped {
				res.SkippedCount++
				continue
			}
			res.TotalSaved.Add(res.TotalSaved, item.Amount)
			res.Processed++
			estimate = recalibrate(estimate, actual)
		}
	}

	res.CostEstimate = estimate
	res.BudgetConsumed = budget.Consumed()
	e.emit(NewBatchSummaryEvent(account, res))
	metrics := observability.Savings()
	metrics.BatchBudget.Observe(float64(res.BudgetConsumed))
	metrics.BatchItems.Observe(float64(res.Processed))
	return res, nil
}

// settleIsolated runs one settlement inside a fault boundary. A panic or an
// unexpected error becomes a skip with the fault's message when available,
// so sibling assets in the batch keep processing.
func (e *Engine) settleIsolated(account, asset [20]byte, budget *Budget) (item *ExecutionResult) {
	defer func() {
		if r := recover(); r != nil {
			reason := reasonUnknownError
			switch v := r.(type) {
			case error:
				reason = v.Error()
			case string:
				if v != "" {
					reason = v
				}
			}
			item = &ExecutionResult{
				Account: account,
				Asset:   asset,
				Amount:  big.NewInt(0),
				Skipped: true,
				Reason:  reason,
			}
			e.emit(NewSkippedEvent(account, asset, reason))
			observability.Savings().Executions.WithLabelValues("fault").Inc()
		}
	}()
	item, err := e.settleOne(account, asset, budget)
	if err != nil {
		reason := reasonUnknownError
		if msg := err.Error(); msg != "" {
			reason = msg
		}
		item = &ExecutionResult{
			Account: account,
			Asset:   asset,
			Amount:  big.NewInt(0),
			Skipped: true,
			Reason:  reason,
		}
		e.emit(NewSkippedEvent(account, asset, reason))
		observability.Savings().Executions.WithLabelValues("fault").Inc()
	}
	return item
}

// EstimateBatchBudget returns the minimum budget ExecuteAll requires before
// it will start, which callers can use to size their grants.
func EstimateBatchBudget() uint64 {
	return batchSize*initialCostEstimate + budgetReserve + 1
}
