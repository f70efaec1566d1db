package savings

import (
	"fmt"
	"math/big"
	"time"

	"spendsave/core/events"
	"spendsave/core/types"
	nativecommon "spendsave/native/common"
	"spendsave/observability"
)

const moduleName = "savings"

// engineState is the ledger store consumed by the engine. Implementations
// are shared external resources; the engine re-reads fresh state inside each
// mutating path instead of caching across calls.
type engineState interface {
	PlanGet(account, asset [20]byte) (*PlanConfig, bool, error)
	PlanPut(account, asset [20]byte, plan *PlanConfig) error
	EnrolledAssets(account [20]byte) ([][20]byte, error)
	EnrollAsset(account, asset [20]byte) error
	RecordExecution(account, asset [20]byte, amount *big.Int, at int64) error
	TreasuryAddress() [20]byte
	ModuleAddress() [20]byte
	HookAddress() [20]byte
}

// AccountingToken mints and burns the balance tracking savings progress.
type AccountingToken interface {
	IDFor(asset [20]byte) [32]byte
	BalanceOf(account [20]byte, id [32]byte) (*big.Int, error)
	Mint(account, asset [20]byte, amount *big.Int) error
	Burn(account, asset [20]byte, amount *big.Int) error
}

// AssetLedger is the external asset-transfer primitive. Pull and push report
// success or failure through the error return; the engine decides per
// operation whether a failure is a soft skip or a hard fault.
type AssetLedger interface {
	Allowance(account, asset [20]byte) (*big.Int, error)
	BalanceOf(account, asset [20]byte) (*big.Int, error)
	PullFrom(account, asset [20]byte, amount *big.Int) error
	PushTo(recipient, asset [20]byte, amount *big.Int) error
}

// YieldRouter applies a configured strategy after a successful execution.
// Invocation is fire-and-forget: failure handling is the router's own
// concern.
type YieldRouter interface {
	Apply(account, asset [20]byte, strategy YieldStrategy)
}

type savingsEvent struct {
	evt *types.Event
}

func (e savingsEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e savingsEvent) Event() *types.Event { return e.evt }

// Engine wires the daily-savings business logic with external state, the
// accounting token, the asset ledger and an event emitter. All mutating entry
// points are serialised behind a single process-wide reentrancy latch.
type Engine struct {
	state   engineState
	token   AccountingToken
	assets  AssetLedger
	yield   YieldRouter
	emitter events.Emitter
	pauses  nativecommon.PauseView
	latch   nativecommon.ReentrancyLatch
	nowFn   func() int64
}

// NewEngine creates a savings engine with a no-op emitter. Callers can
// override the emitter via SetEmitter.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the ledger store backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetAccountingToken configures the savings-progress token service.
func (e *Engine) SetAccountingToken(token AccountingToken) { e.token = token }

// SetAssetLedger configures the external transfer primitive.
func (e *Engine) SetAssetLedger(ledger AssetLedger) { e.assets = ledger }

// SetYieldRouter configures the optional yield-application collaborator.
func (e *Engine) SetYieldRouter(router YieldRouter) { e.yield = router }

// SetPauses wires the administrative pause view checked on every mutating
// entry point.
func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(savingsEvent{evt: event})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) collaboratorsReady() error {
	switch {
	case e == nil || e.state == nil:
		return ErrNilState
	case e.token == nil:
		return ErrNilToken
	case e.assets == nil:
		return ErrNilAssets
	}
	return nil
}

// authorize permits a mutating call on behalf of account only when the caller
// is the account itself, the ledger store module, or the registered hook.
func (e *Engine) authorize(caller, account [20]byte) error {
	if caller == account {
		return nil
	}
	if module := e.state.ModuleAddress(); module != ([20]byte{}) && caller == module {
		return nil
	}
	if hook := e.state.HookAddress(); hook != ([20]byte{}) && caller == hook {
		return nil
	}
	return ErrUnauthorized
}

// enterMutating runs the shared preamble of every mutating entry point:
// collaborator checks, pause guard, reentrancy latch, caller authorization.
// On success the caller owns the latch and must release it on every exit
// path.
func (e *Engine) enterMutating(caller, account [20]byte) error {
	if err := e.collaboratorsReady(); err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if err := e.latch.Acquire(); err != nil {
		return err
	}
	if err := e.authorize(caller, account); err != nil {
		e.latch.Release()
		return err
	}
	return nil
}

// Configure validates and stores a fresh plan for the account×asset pair and
// registers the asset as enrolled. An existing plan is overwritten with zero
// progress.
func (e *Engine) Configure(caller, account, asset [20]byte, dailyAmount, goalAmount *big.Int, penaltyBps uint32, endTime int64) error {
	if err := e.enterMutating(caller, account); err != nil {
		return err
	}
	defer e.latch.Release()

	if dailyAmount == nil || dailyAmount.Sign() <= 0 {
		return ErrInvalidDailyAmount
	}
	goal := cloneBigInt(goalAmount)
	if goal.Sign() < 0 {
		return ErrInvalidGoalAmount
	}
	if penaltyBps > MaxPenaltyBps {
		return ErrPenaltyTooHigh
	}
	now := e.now()
	if endTime != 0 && endTime <= now {
		return ErrInvalidEndTime
	}
	plan := &PlanConfig{
		Enabled:           true,
		DailyAmount:       cloneBigInt(dailyAmount),
		GoalAmount:        goal,
		CurrentAmount:     big.NewInt(0),
		PenaltyBps:        penaltyBps,
		EndTime:           endTime,
		LastExecutionTime: now,
		StartTime:         now,
		Strategy:          YieldNone,
	}
	if err := e.state.PlanPut(account, asset, plan); err != nil {
		return err
	}
	if err := e.state.EnrollAsset(account, asset); err != nil {
		return err
	}
	e.emit(NewConfiguredEvent(account, asset, plan))
	return nil
}

// Disable zeroes the plan for the account×asset pair. The asset stays
// enrolled so subsequent scans see a disabled record and skip quickly.
func (e *Engine) Disable(caller, account, asset [20]byte) error {
	if err := e.enterMutating(caller, account); err != nil {
		return err
	}
	defer e.latch.Release()

	plan, ok, err := e.state.PlanGet(account, asset)
	if err != nil {
		return err
	}
	if !ok || plan == nil || !plan.Enabled {
		return ErrNoPlanConfigured
	}
	if err := e.state.PlanPut(account, asset, &PlanConfig{
		DailyAmount:   big.NewInt(0),
		GoalAmount:    big.NewInt(0),
		CurrentAmount: big.NewInt(0),
	}); err != nil {
		return err
	}
	e.emit(NewDisabledEvent(account, asset))
	return nil
}

// SetYieldStrategy updates the yield-application hook of an enabled plan.
func (e *Engine) SetYieldStrategy(caller, account, asset [20]byte, strategy YieldStrategy) error {
	if err := e.enterMutating(caller, account); err != nil {
		return err
	}
	defer e.latch.Release()

	if !strategy.Valid() {
		return ErrInvalidStrategy
	}
	plan, ok, err := e.state.PlanGet(account, asset)
	if err != nil {
		return err
	}
	if !ok || plan == nil || !plan.Enabled {
		return ErrNoPlanConfigured
	}
	plan.Strategy = strategy
	if err := e.state.PlanPut(account, asset, plan); err != nil {
		return err
	}
	e.emit(NewStrategyUpdatedEvent(account, asset, strategy))
	return nil
}

// ExecuteOne settles a single asset's due contribution. Every ineligibility
// is a normal outcome carrying a reason string and a zero amount; only
// infrastructure failures surface as errors.
func (e *Engine) ExecuteOne(caller, account, asset [20]byte, budget *Budget) (*ExecutionResult, error) {
	if err := e.enterMutating(caller, account); err != nil {
		return nil, err
	}
	defer e.latch.Release()

	if budget == nil {
		budget = NewBudget(DefaultCallBudget)
	}
	return e.settleOne(account, asset, budget)
}

func (e *Engine) skip(res *ExecutionResult, reason string) *ExecutionResult {
	res.Skipped = true
	res.Reason = reason
	e.emit(NewSkippedEvent(res.Account, res.Asset, reason))
	observability.Savings().Skips.WithLabelValues(reason).Inc()
	return res
}

// settleOne performs the state-changing sequence for one asset. Callers must
// hold the latch. Effects are ordered checks first, stored-state updates
// second, accounting mint third, yield hook last.
func (e *Engine) settleOne(account, asset [20]byte, budget *Budget) (*ExecutionResult, error) {
	res := &ExecutionResult{Account: account, Asset: asset, Amount: big.NewInt(0)}

	budget.Consume(costPlanRead)
	plan, ok, err := e.state.PlanGet(account, asset)
	if err != nil {
		return nil, err
	}
	now := e.now()
	var st Status
	if ok {
		st = ComputeStatus(plan, now)
	}
	switch {
	case !st.Enabled:
		return e.skip(res, reasonNotEnabled), nil
	case st.GoalReached:
		return e.skip(res, reasonGoalReached), nil
	case st.DaysPassed == 0:
		return e.skip(res, reasonNoTimePassed), nil
	}

	budget.Consume(costDailyRead)
	due := ComputeDueAmount(st, plan)
	if due.Sign() == 0 {
		return e.skip(res, reasonNothingDue), nil
	}

	budget.Consume(costFundsRead)
	if ok, reason := e.checkFunds(account, asset, due); !ok {
		return e.skip(res, reason), nil
	}

	budget.Consume(costAssetPull)
	if err := e.assets.PullFrom(account, asset, due); err != nil {
		e.emit(NewTransferErrorEvent(account, asset, due, err))
		observability.Savings().Executions.WithLabelValues("transfer_error").Inc()
		res.Skipped = true
		res.Reason = reasonTransferFailed
		return res, nil
	}

	wasReached := st.GoalReached
	plan.LastExecutionTime = now
	plan.CurrentAmount = new(big.Int).Add(cloneBigInt(plan.CurrentAmount), due)

	budget.Consume(costPlanWrite)
	if err := e.state.PlanPut(account, asset, plan); err != nil {
		return nil, err
	}
	if err := e.state.RecordExecution(account, asset, due, now); err != nil {
		return nil, err
	}

	budget.Consume(costMint)
	if err := e.token.Mint(account, asset, due); err != nil {
		return nil, err
	}

	if !wasReached && plan.goalReached() {
		e.emit(NewGoalReachedEvent(account, asset, plan.GoalAmount))
	}
	if plan.Strategy != YieldNone && e.yield != nil {
		budget.Consume(costYield)
		e.yield.Apply(account, asset, plan.Strategy)
	}

	res.Amount = due
	e.emit(NewExecutedEvent(account, asset, due, plan.CurrentAmount))
	observability.Savings().Executions.WithLabelValues("success").Inc()
	return res, nil
}

// Withdraw settles an early or goal-complete withdrawal. Completed goals are
// penalty-free; otherwise the configured basis points are deducted and routed
// to the treasury. The burn, progress update and net transfer are atomic: a
// failed net transfer restores the burned balance and stored progress before
// the call fails.
func (e *Engine) Withdraw(caller, account, asset [20]byte, amount *big.Int) (*WithdrawalResult, error) {
	if err := e.enterMutating(caller, account); err != nil {
		return nil, err
	}
	defer e.latch.Release()

	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidWithdrawal
	}
	plan, ok, err := e.state.PlanGet(account, asset)
	if err != nil {
		return nil, err
	}
	if !ok || plan == nil || !plan.Enabled {
		return nil, ErrNoPlanConfigured
	}
	balance, err := e.token.BalanceOf(account, e.token.IDFor(asset))
	if err != nil {
		return nil, err
	}
	if balance == nil || balance.Cmp(amount) < 0 {
		return nil, fmt.Errorf("%w: required %s, available %s", ErrInsufficientBalance, amount, amountString(balance))
	}

	goalReached := plan.goalReached()
	penalty := big.NewInt(0)
	if !goalReached {
		penalty = penaltyFor(amount, plan.PenaltyBps)
	}
	net := new(big.Int).Sub(cloneBigInt(amount), penalty)
	snapshot := plan.Clone()

	// Checks done; effects next, interaction last.
	if err := e.token.Burn(account, asset, amount); err != nil {
		return nil, err
	}
	reduce := cloneBigInt(amount)
	if reduce.Cmp(plan.CurrentAmount) > 0 {
		reduce = cloneBigInt(plan.CurrentAmount)
	}
	plan.CurrentAmount = new(big.Int).Sub(cloneBigInt(plan.CurrentAmount), reduce)
	if err := e.state.PlanPut(account, asset, plan); err != nil {
		e.restoreWithdrawal(account, asset, amount, snapshot, err)
		return nil, err
	}

	if err := e.assets.PushTo(account, asset, net); err != nil {
		e.restoreWithdrawal(account, asset, amount, snapshot, err)
		observability.Savings().Withdrawals.WithLabelValues("transfer_failed").Inc()
		return nil, fmt.Errorf("%w: %v", ErrWithdrawalFailed, err)
	}

	if penalty.Sign() > 0 {
		if err := e.assets.PushTo(e.state.TreasuryAddress(), asset, penalty); err != nil {
			// Tolerated: the account already received its net amount and
			// must not be penalised a second time by a revert.
			e.emit(NewPenaltyUnroutedEvent(account, asset, penalty, err))
			observability.Savings().PenaltyFailures.Inc()
		}
	}

	result := &WithdrawalResult{
		Amount:      cloneBigInt(amount),
		Penalty:     penalty,
		NetAmount:   net,
		GoalReached: goalReached,
	}
	e.emit(NewWithdrawnEvent(account, asset, result))
	observability.Savings().Withdrawals.WithLabelValues("success").Inc()
	return result, nil
}

// restoreWithdrawal undoes the burn and progress update after a failed net
// transfer so the account never loses tokens without receiving funds.
func (e *Engine) restoreWithdrawal(account, asset [20]byte, amount *big.Int, snapshot *PlanConfig, cause error) {
	if err := e.state.PlanPut(account, asset, snapshot); err != nil {
		e.emit(NewWithdrawalRollbackEvent(account, asset, amount, fmt.Errorf("restore plan: %v (cause: %v)", err, cause)))
		return
	}
	if err := e.token.Mint(account, asset, amount); err != nil {
		e.emit(NewWithdrawalRollbackEvent(account, asset, amount, fmt.Errorf("restore balance: %v (cause: %v)", err, cause)))
		return
	}
	e.emit(NewWithdrawalRollbackEvent(account, asset, amount, cause))
}

// HasPending reports whether any enrolled asset of the account has a positive
// due amount right now. Read-only; safe without the latch.
func (e *Engine) HasPending(account [20]byte) (bool, error) {
	if e == nil || e.state == nil {
		return false, ErrNilState
	}
	assets, err := e.state.EnrolledAssets(account)
	if err != nil {
		return false, err
	}
	now := e.now()
	for _, asset := range assets {
		plan, ok, err := e.state.PlanGet(account, asset)
		if err != nil {
			return false, err
		}
		if !ok {
			continue
		}
		st := ComputeStatus(plan, now)
		if st.DaysPassed == 0 {
			continue
		}
		if ComputeDueAmount(st, plan).Sign() > 0 {
			return true, nil
		}
	}
	return false, nil
}

// Status returns the execution snapshot of one plan.
func (e *Engine) Status(account, asset [20]byte) (*ExecutionStatus, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	plan, ok, err := e.state.PlanGet(account, asset)
	if err != nil {
		return nil, err
	}
	status := &ExecutionStatus{AmountDue: big.NewInt(0)}
	if !ok || plan == nil {
		return status, nil
	}
	st := ComputeStatus(plan, e.now())
	status.NextExecutionTime = plan.LastExecutionTime + oneDay
	status.AmountDue = ComputeDueAmount(st, plan)
	status.CanExecute = st.ShouldConsider && st.DaysPassed > 0 && status.AmountDue.Sign() > 0
	return status, nil
}

// FullStatus returns the aggregate read-only view of one plan, including the
// penalty an immediate full withdrawal would cost and the projected goal
// completion time.
func (e *Engine) FullStatus(account, asset [20]byte) (*FullStatus, error) {
	if err := e.collaboratorsReady(); err != nil {
		return nil, err
	}
	plan, ok, err := e.state.PlanGet(account, asset)
	if err != nil {
		return nil, err
	}
	full := &FullStatus{
		DailyAmount:      big.NewInt(0),
		GoalAmount:       big.NewInt(0),
		CurrentAmount:    big.NewInt(0),
		Remaining:        big.NewInt(0),
		EstimatedPenalty: big.NewInt(0),
	}
	if !ok || plan == nil {
		return full, nil
	}
	full.Enabled = plan.Enabled
	full.DailyAmount = cloneBigInt(plan.DailyAmount)
	full.GoalAmount = cloneBigInt(plan.GoalAmount)
	full.CurrentAmount = cloneBigInt(plan.CurrentAmount)
	full.Strategy = plan.Strategy
	if plan.GoalAmount.Sign() > 0 {
		remaining := new(big.Int).Sub(plan.GoalAmount, plan.CurrentAmount)
		if remaining.Sign() > 0 {
			full.Remaining = remaining
		}
	}
	if !plan.goalReached() {
		balance, err := e.token.BalanceOf(account, e.token.IDFor(asset))
		if err != nil {
			return nil, err
		}
		full.EstimatedPenalty = penaltyFor(balance, plan.PenaltyBps)
	}
	if plan.Enabled && full.Remaining.Sign() > 0 && plan.DailyAmount.Sign() > 0 {
		days := new(big.Int).Add(full.Remaining, new(big.Int).Sub(plan.DailyAmount, big.NewInt(1)))
		days.Quo(days, plan.DailyAmount)
		if days.IsInt64() {
			full.EstimatedCompletionTime = plan.LastExecutionTime + days.Int64()*oneDay
		}
	}
	return full, nil
}
