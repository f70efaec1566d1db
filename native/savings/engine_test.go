package savings

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"testing"

	"spendsave/core/events"
	nativecommon "spendsave/native/common"
)

const testBaseTime int64 = 1_700_000_000

func addrKey(account, asset [20]byte) [40]byte {
	var key [40]byte
	copy(key[:20], account[:])
	copy(key[20:], asset[:])
	return key
}

func newTestAddress(fill byte) [20]byte {
	var addr [20]byte
	copy(addr[:], bytes.Repeat([]byte{fill}, 20))
	return addr
}

type mockState struct {
	plans    map[[40]byte]*PlanConfig
	enrolled map[[20]byte][][20]byte
	executed map[[40]byte]uint64
	treasury [20]byte
	module   [20]byte
	hook     [20]byte
	putErr   error
}

func newMockState() *mockState {
	return &mockState{
		plans:    make(map[[40]byte]*PlanConfig),
		enrolled: make(map[[20]byte][][20]byte),
		executed: make(map[[40]byte]uint64),
		treasury: newTestAddress(0xFD),
	}
}

func (m *mockState) PlanGet(account, asset [20]byte) (*PlanConfig, bool, error) {
	plan, ok := m.plans[addrKey(account, asset)]
	if !ok {
		return nil, false, nil
	}
	return plan.Clone(), true, nil
}

func (m *mockState) PlanPut(account, asset [20]byte, plan *PlanConfig) error {
	if m.putErr != nil {
		return m.putErr
	}
	sanitized, err := SanitizePlan(plan)
	if err != nil {
		return err
	}
	m.plans[addrKey(account, asset)] = sanitized
	return nil
}

func (m *mockState) EnrolledAssets(account [20]byte) ([][20]byte, error) {
	return append([][20]byte(nil), m.enrolled[account]...), nil
}

func (m *mockState) EnrollAsset(account, asset [20]byte) error {
	for _, existing := range m.enrolled[account] {
		if existing == asset {
			return nil
		}
	}
	m.enrolled[account] = append(m.enrolled[account], asset)
	return nil
}

func (m *mockState) RecordExecution(account, asset [20]byte, amount *big.Int, at int64) error {
	m.executed[addrKey(account, asset)]++
	return nil
}

func (m *mockState) TreasuryAddress() [20]byte { return m.treasury }
func (m *mockState) ModuleAddress() [20]byte   { return m.module }
func (m *mockState) HookAddress() [20]byte     { return m.hook }

type mockToken struct {
	balances map[[20]byte]map[[32]byte]*big.Int
	mintErr  error
	burnErr  error
}

func newMockToken() *mockToken {
	return &mockToken{balances: make(map[[20]byte]map[[32]byte]*big.Int)}
}

func (m *mockToken) IDFor(asset [20]byte) [32]byte {
	var id [32]byte
	copy(id[:], asset[:])
	return id
}

func (m *mockToken) BalanceOf(account [20]byte, id [32]byte) (*big.Int, error) {
	if balances, ok := m.balances[account]; ok {
		if balance, ok := balances[id]; ok {
			return new(big.Int).Set(balance), nil
		}
	}
	return big.NewInt(0), nil
}

func (m *mockToken) Mint(account, asset [20]byte, amount *big.Int) error {
	if m.mintErr != nil {
		return m.mintErr
	}
	id := m.IDFor(asset)
	if m.balances[account] == nil {
		m.balances[account] = make(map[[32]byte]*big.Int)
	}
	balance, _ := m.BalanceOf(account, id)
	m.balances[account][id] = new(big.Int).Add(balance, amount)
	return nil
}

func (m *mockToken) Burn(account, asset [20]byte, amount *big.Int) error {
	if m.burnErr != nil {
		return m.burnErr
	}
	id := m.IDFor(asset)
	balance, _ := m.BalanceOf(account, id)
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("mock token: burn exceeds balance")
	}
	if m.balances[account] == nil {
		m.balances[account] = make(map[[32]byte]*big.Int)
	}
	m.balances[account][id] = new(big.Int).Sub(balance, amount)
	return nil
}

type mockAssets struct {
	balances   map[[40]byte]*big.Int
	allowances map[[40]byte]*big.Int
	pullErr    error
	pushErrFor map[[20]byte]error
	panicOn    map[[20]byte]bool
}

func newMockAssets() *mockAssets {
	return &mockAssets{
		balances:   make(map[[40]byte]*big.Int),
		allowances: make(map[[40]byte]*big.Int),
		pushErrFor: make(map[[20]byte]error),
		panicOn:    make(map[[20]byte]bool),
	}
}

func (m *mockAssets) value(store map[[40]byte]*big.Int, account, asset [20]byte) *big.Int {
	if v, ok := store[addrKey(account, asset)]; ok {
		return new(big.Int).Set(v)
	}
	return big.NewInt(0)
}

func (m *mockAssets) Allowance(account, asset [20]byte) (*big.Int, error) {
	return m.value(m.allowances, account, asset), nil
}

func (m *mockAssets) BalanceOf(account, asset [20]byte) (*big.Int, error) {
	return m.value(m.balances, account, asset), nil
}

func (m *mockAssets) fund(account, asset [20]byte, balance, allowance int64) {
	m.balances[addrKey(account, asset)] = big.NewInt(balance)
	m.allowances[addrKey(account, asset)] = big.NewInt(allowance)
}

func (m *mockAssets) PullFrom(account, asset [20]byte, amount *big.Int) error {
	if m.panicOn[asset] {
		panic("asset ledger corrupted")
	}
	if m.pullErr != nil {
		return m.pullErr
	}
	balance := m.value(m.balances, account, asset)
	allowance := m.value(m.allowances, account, asset)
	if allowance.Cmp(amount) < 0 || balance.Cmp(amount) < 0 {
		return fmt.Errorf("mock assets: pull exceeds funds")
	}
	m.balances[addrKey(account, asset)] = balance.Sub(balance, amount)
	m.allowances[addrKey(account, asset)] = allowance.Sub(allowance, amount)
	return nil
}

func (m *mockAssets) PushTo(recipient, asset [20]byte, amount *big.Int) error {
	if err := m.pushErrFor[recipient]; err != nil {
		return err
	}
	balance := m.value(m.balances, recipient, asset)
	m.balances[addrKey(recipient, asset)] = balance.Add(balance, amount)
	return nil
}

type mockYield struct {
	calls []YieldStrategy
}

func (m *mockYield) Apply(account, asset [20]byte, strategy YieldStrategy) {
	m.calls = append(m.calls, strategy)
}

type testHarness struct {
	engine  *Engine
	state   *mockState
	token   *mockToken
	assets  *mockAssets
	yield   *mockYield
	emitter *events.MemoryEmitter
	now     int64
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()
	h := &testHarness{
		state:   newMockState(),
		token:   newMockToken(),
		assets:  newMockAssets(),
		yield:   &mockYield{},
		emitter: events.NewMemoryEmitter(0),
		now:     testBaseTime,
	}
	h.engine = NewEngine()
	h.engine.SetState(h.state)
	h.engine.SetAccountingToken(h.token)
	h.engine.SetAssetLedger(h.assets)
	h.engine.SetYieldRouter(h.yield)
	h.engine.SetEmitter(h.emitter)
	h.engine.SetNowFunc(func() int64 { return h.now })
	return h
}

func (h *testHarness) advanceDays(days int64) {
	h.now += days * oneDay
}

func (h *testHarness) eventTypes() []string {
	var out []string
	for _, evt := range h.emitter.Events() {
		out = append(out, evt.EventType())
	}
	return out
}

func (h *testHarness) hasEvent(eventType string) bool {
	for _, evt := range h.emitter.Events() {
		if evt.EventType() == eventType {
			return true
		}
	}
	return false
}

var (
	alice  = newTestAddress(0x01)
	tokenA = newTestAddress(0xA1)
	tokenB = newTestAddress(0xB2)
	tokenC = newTestAddress(0xC3)
)

func TestConfigureValidation(t *testing.T) {
	h := newTestHarness(t)
	if err := h.engine.Configure(alice, alice, tokenA, big.NewInt(0), nil, 0, 0); !errors.Is(err, ErrInvalidDailyAmount) {
		t.Fatalf("zero daily amount: got %v", err)
	}
	if err := h.engine.Configure(alice, alice, tokenA, big.NewInt(100), nil, MaxPenaltyBps+1, 0); !errors.Is(err, ErrPenaltyTooHigh) {
		t.Fatalf("excess penalty: got %v", err)
	}
	if err := h.engine.Configure(alice, alice, tokenA, big.NewInt(100), nil, 0, h.now-1); !errors.Is(err, ErrInvalidEndTime) {
		t.Fatalf("past end time: got %v", err)
	}
	if err := h.engine.Configure(alice, alice, tokenA, big.NewInt(100), big.NewInt(250), 500, 0); err != nil {
		t.Fatalf("valid configure failed: %v", err)
	}
	plan, ok, err := h.state.PlanGet(alice, tokenA)
	if err != nil || !ok {
		t.Fatalf("stored plan missing: ok=%v err=%v", ok, err)
	}
	if !plan.Enabled || plan.CurrentAmount.Sign() != 0 || plan.LastExecutionTime != h.now {
		t.Fatalf("unexpected stored plan: %+v", plan)
	}
	if got := h.state.enrolled[alice]; len(got) != 1 || got[0] != tokenA {
		t.Fatalf("asset not enrolled: %v", got)
	}
	if !h.hasEvent(EventTypePlanConfigured) {
		t.Fatalf("missing configured event: %v", h.eventTypes())
	}
}

func TestConfigureAuthorization(t *testing.T) {
	h := newTestHarness(t)
	stranger := newTestAddress(0xEE)
	if err := h.engine.Configure(stranger, alice, tokenA, big.NewInt(100), nil, 0, 0); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("stranger caller: got %v", err)
	}
	h.state.hook = newTestAddress(0x99)
	if err := h.engine.Configure(h.state.hook, alice, tokenA, big.NewInt(100), nil, 0, 0); err != nil {
		t.Fatalf("hook caller rejected: %v", err)
	}
	h.state.module = newTestAddress(0x88)
	if err := h.engine.Configure(h.state.module, alice, tokenA, big.NewInt(100), nil, 0, 0); err != nil {
		t.Fatalf("module caller rejected: %v", err)
	}
}

func TestExecuteOneSuccessAndIdempotence(t *testing.T) {
	h := newTestHarness(t)
	if err := h.engine.Configure(alice, alice, tokenA, big.NewInt(100), nil, 0, 0); err != nil {
		t.Fatalf("configure: %v", err)
	}
	h.assets.fund(alice, tokenA, 1_000, 1_000)
	h.advanceDays(1)

	res, err := h.engine.ExecuteOne(alice, alice, tokenA, nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.Skipped || res.Amount.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
	plan, _, _ := h.state.PlanGet(alice, tokenA)
	if plan.CurrentAmount.Cmp(big.NewInt(100)) != 0 || plan.LastExecutionTime != h.now {
		t.Fatalf("plan not updated: %+v", plan)
	}
	minted, _ := h.token.BalanceOf(alice, h.token.IDFor(tokenA))
	if minted.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("minted balance: got %s, want 100", minted)
	}
	if h.state.executed[addrKey(alice, tokenA)] != 1 {
		t.Fatalf("execution not journaled")
	}

	// Same day: nothing due, normal skip.
	res, err = h.engine.ExecuteOne(alice, alice, tokenA, nil)
	if err != nil {
		t.Fatalf("second execute: %v", err)
	}
	if !res.Skipped || res.Reason != reasonNoTimePassed || res.Amount.Sign() != 0 {
		t.Fatalf("expected same-day skip, got %+v", res)
	}
}

func TestExecuteOneSkipReasons(t *testing.T) {
	h := newTestHarness(t)

	res, err := h.engine.ExecuteOne(alice, alice, tokenA, nil)
	if err != nil {
		t.Fatalf("execute without plan: %v", err)
	}
	if !res.Skipped || res.Reason != reasonNotEnabled {
		t.Fatalf("missing plan: got %+v", res)
	}

	if err := h.engine.Configure(alice, alice, tokenA, big.NewInt(100), nil, 0, 0); err != nil {
		t.Fatalf("configure: %v", err)
	}
	h.advanceDays(1)

	res, _ = h.engine.ExecuteOne(alice, alice, tokenA, nil)
	if !res.Skipped || res.Reason != reasonInsufficientAllowance {
		t.Fatalf("no allowance: got %+v", res)
	}

	h.assets.fund(alice, tokenA, 50, 1_000)
	res, _ = h.engine.ExecuteOne(alice, alice, tokenA, nil)
	if !res.Skipped || res.Reason != reasonInsufficientBalance {
		t.Fatalf("short balance: got %+v", res)
	}
}

func TestExecuteOneGoalScenario(t *testing.T) {
	// dailyAmount=100, goalAmount=250, 3 days elapsed: due = min(300, 250).
	h := newTestHarness(t)
	if err := h.engine.Configure(alice, alice, tokenA, big.NewInt(100), big.NewInt(250), 0, 0); err != nil {
		t.Fatalf("configure: %v", err)
	}
	h.assets.fund(alice, tokenA, 10_000, 10_000)
	h.advanceDays(3)

	res, err := h.engine.ExecuteOne(alice, alice, tokenA, nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.Amount.Cmp(big.NewInt(250)) != 0 {
		t.Fatalf("due: got %s, want 250", res.Amount)
	}
	plan, _, _ := h.state.PlanGet(alice, tokenA)
	if plan.CurrentAmount.Cmp(plan.GoalAmount) != 0 {
		t.Fatalf("goal not exactly met: %s vs %s", plan.CurrentAmount, plan.GoalAmount)
	}
	if !h.hasEvent(EventTypeGoalReached) {
		t.Fatalf("missing goal-reached event: %v", h.eventTypes())
	}

	h.advanceDays(5)
	res, _ = h.engine.ExecuteOne(alice, alice, tokenA, nil)
	if !res.Skipped || res.Reason != reasonGoalReached {
		t.Fatalf("post-goal execution: got %+v", res)
	}
}

func TestExecuteOneTransferFailure(t *testing.T) {
	h := newTestHarness(t)
	if err := h.engine.Configure(alice, alice, tokenA, big.NewInt(100), nil, 0, 0); err != nil {
		t.Fatalf("configure: %v", err)
	}
	h.assets.fund(alice, tokenA, 1_000, 1_000)
	h.assets.pullErr = fmt.Errorf("pipe burst")
	h.advanceDays(1)

	res, err := h.engine.ExecuteOne(alice, alice, tokenA, nil)
	if err != nil {
		t.Fatalf("transfer failure must not escalate: %v", err)
	}
	if !res.Skipped || res.Reason != reasonTransferFailed || res.Amount.Sign() != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if !h.hasEvent(EventTypeTransferError) {
		t.Fatalf("missing transfer-error event: %v", h.eventTypes())
	}
	plan, _, _ := h.state.PlanGet(alice, tokenA)
	if plan.CurrentAmount.Sign() != 0 {
		t.Fatalf("progress mutated despite failed pull: %s", plan.CurrentAmount)
	}
	minted, _ := h.token.BalanceOf(alice, h.token.IDFor(tokenA))
	if minted.Sign() != 0 {
		t.Fatalf("minted despite failed pull: %s", minted)
	}
}

func TestExecuteOneYieldInvocation(t *testing.T) {
	h := newTestHarness(t)
	if err := h.engine.Configure(alice, alice, tokenA, big.NewInt(100), nil, 0, 0); err != nil {
		t.Fatalf("configure: %v", err)
	}
	if err := h.engine.SetYieldStrategy(alice, alice, tokenA, YieldLending); err != nil {
		t.Fatalf("set strategy: %v", err)
	}
	h.assets.fund(alice, tokenA, 1_000, 1_000)
	h.advanceDays(1)
	if _, err := h.engine.ExecuteOne(alice, alice, tokenA, nil); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(h.yield.calls) != 1 || h.yield.calls[0] != YieldLending {
		t.Fatalf("yield router calls: %v", h.yield.calls)
	}
}

func (h *testHarness) saveUp(t *testing.T, asset [20]byte, daily, goal int64, days int64) {
	t.Helper()
	if err := h.engine.Configure(alice, alice, asset, big.NewInt(daily), big.NewInt(goal), 500, 0); err != nil {
		t.Fatalf("configure: %v", err)
	}
	h.assets.fund(alice, asset, 1_000_000, 1_000_000)
	h.advanceDays(days)
	if _, err := h.engine.ExecuteOne(alice, alice, asset, nil); err != nil {
		t.Fatalf("seed execution: %v", err)
	}
}

func TestWithdrawPenalty(t *testing.T) {
	h := newTestHarness(t)
	h.saveUp(t, tokenA, 100, 0, 1)

	res, err := h.engine.Withdraw(alice, alice, tokenA, big.NewInt(100))
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if res.Penalty.Cmp(big.NewInt(5)) != 0 || res.NetAmount.Cmp(big.NewInt(95)) != 0 {
		t.Fatalf("penalty/net: got %s/%s, want 5/95", res.Penalty, res.NetAmount)
	}
	if sum := new(big.Int).Add(res.NetAmount, res.Penalty); sum.Cmp(res.Amount) != 0 {
		t.Fatalf("net+penalty != amount: %s + %s != %s", res.NetAmount, res.Penalty, res.Amount)
	}
	balance, _ := h.token.BalanceOf(alice, h.token.IDFor(tokenA))
	if balance.Sign() != 0 {
		t.Fatalf("accounting balance not burned: %s", balance)
	}
	plan, _, _ := h.state.PlanGet(alice, tokenA)
	if plan.CurrentAmount.Sign() != 0 {
		t.Fatalf("progress not reduced: %s", plan.CurrentAmount)
	}
	treasuryBalance, _ := h.assets.BalanceOf(h.state.treasury, tokenA)
	if treasuryBalance.Cmp(big.NewInt(5)) != 0 {
		t.Fatalf("treasury balance: got %s, want 5", treasuryBalance)
	}
}

func TestWithdrawGoalReachedPenaltyFree(t *testing.T) {
	h := newTestHarness(t)
	h.saveUp(t, tokenA, 100, 100, 1)

	res, err := h.engine.Withdraw(alice, alice, tokenA, big.NewInt(100))
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if !res.GoalReached || res.Penalty.Sign() != 0 || res.NetAmount.Cmp(res.Amount) != 0 {
		t.Fatalf("completed goal must be penalty-free: %+v", res)
	}
}

func TestWithdrawValidation(t *testing.T) {
	h := newTestHarness(t)
	if _, err := h.engine.Withdraw(alice, alice, tokenA, big.NewInt(0)); !errors.Is(err, ErrInvalidWithdrawal) {
		t.Fatalf("zero amount: got %v", err)
	}
	if _, err := h.engine.Withdraw(alice, alice, tokenA, big.NewInt(10)); !errors.Is(err, ErrNoPlanConfigured) {
		t.Fatalf("missing plan: got %v", err)
	}
	h.saveUp(t, tokenA, 100, 0, 1)
	_, err := h.engine.Withdraw(alice, alice, tokenA, big.NewInt(500))
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("excess amount: got %v", err)
	}
	if want := "required 500, available 100"; !strings.Contains(err.Error(), want) {
		t.Fatalf("error %q missing %q", err, want)
	}
}

func TestWithdrawRollbackOnTransferFailure(t *testing.T) {
	h := newTestHarness(t)
	h.saveUp(t, tokenA, 100, 0, 1)
	h.assets.pushErrFor[alice] = fmt.Errorf("recipient frozen")

	_, err := h.engine.Withdraw(alice, alice, tokenA, big.NewInt(100))
	if !errors.Is(err, ErrWithdrawalFailed) {
		t.Fatalf("expected withdrawal failure, got %v", err)
	}
	balance, _ := h.token.BalanceOf(alice, h.token.IDFor(tokenA))
	if balance.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("burned balance not restored: %s", balance)
	}
	plan, _, _ := h.state.PlanGet(alice, tokenA)
	if plan.CurrentAmount.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("progress not restored: %s", plan.CurrentAmount)
	}
	if !h.hasEvent(EventTypeWithdrawalRollback) {
		t.Fatalf("missing rollback event: %v", h.eventTypes())
	}
}

func TestWithdrawPenaltyRoutingTolerated(t *testing.T) {
	h := newTestHarness(t)
	h.saveUp(t, tokenA, 100, 0, 1)
	h.assets.pushErrFor[h.state.treasury] = fmt.Errorf("treasury closed")

	res, err := h.engine.Withdraw(alice, alice, tokenA, big.NewInt(100))
	if err != nil {
		t.Fatalf("penalty routing failure must be tolerated: %v", err)
	}
	if res.NetAmount.Cmp(big.NewInt(95)) != 0 {
		t.Fatalf("net amount: got %s, want 95", res.NetAmount)
	}
	if !h.hasEvent(EventTypePenaltyUnrouted) {
		t.Fatalf("missing penalty-unrouted event: %v", h.eventTypes())
	}
}

func TestWithdrawProgressFloorsAtZero(t *testing.T) {
	h := newTestHarness(t)
	h.saveUp(t, tokenA, 100, 0, 1)
	// Simulate progress lowered out-of-band below the accounting balance.
	plan, _, _ := h.state.PlanGet(alice, tokenA)
	plan.CurrentAmount = big.NewInt(30)
	if err := h.state.PlanPut(alice, tokenA, plan); err != nil {
		t.Fatalf("seed plan: %v", err)
	}

	if _, err := h.engine.Withdraw(alice, alice, tokenA, big.NewInt(100)); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	plan, _, _ = h.state.PlanGet(alice, tokenA)
	if plan.CurrentAmount.Sign() != 0 {
		t.Fatalf("progress must floor at zero, got %s", plan.CurrentAmount)
	}
}

func TestDisableZeroesPlanAndKeepsEnrollment(t *testing.T) {
	h := newTestHarness(t)
	if err := h.engine.Configure(alice, alice, tokenA, big.NewInt(100), big.NewInt(250), 500, 0); err != nil {
		t.Fatalf("configure: %v", err)
	}
	if err := h.engine.Disable(alice, alice, tokenA); err != nil {
		t.Fatalf("disable: %v", err)
	}
	plan, ok, _ := h.state.PlanGet(alice, tokenA)
	if !ok {
		t.Fatalf("disabled plan record must remain")
	}
	if plan.Enabled || plan.DailyAmount.Sign() != 0 || plan.GoalAmount.Sign() != 0 || plan.PenaltyBps != 0 {
		t.Fatalf("plan not zeroed: %+v", plan)
	}
	if got := h.state.enrolled[alice]; len(got) != 1 {
		t.Fatalf("enrollment must survive disable: %v", got)
	}
	if err := h.engine.Disable(alice, alice, tokenA); !errors.Is(err, ErrNoPlanConfigured) {
		t.Fatalf("second disable: got %v", err)
	}
}

type reentrantYield struct {
	engine *Engine
	err    error
}

func (r *reentrantYield) Apply(account, asset [20]byte, strategy YieldStrategy) {
	r.err = r.engine.Disable(account, account, asset)
}

func TestReentrantCallRejected(t *testing.T) {
	h := newTestHarness(t)
	reentrant := &reentrantYield{engine: h.engine}
	h.engine.SetYieldRouter(reentrant)
	if err := h.engine.Configure(alice, alice, tokenA, big.NewInt(100), nil, 0, 0); err != nil {
		t.Fatalf("configure: %v", err)
	}
	if err := h.engine.SetYieldStrategy(alice, alice, tokenA, YieldStaking); err != nil {
		t.Fatalf("set strategy: %v", err)
	}
	h.assets.fund(alice, tokenA, 1_000, 1_000)
	h.advanceDays(1)

	res, err := h.engine.ExecuteOne(alice, alice, tokenA, nil)
	if err != nil || res.Skipped {
		t.Fatalf("outer call must succeed: res=%+v err=%v", res, err)
	}
	if !errors.Is(reentrant.err, nativecommon.ErrReentrantCall) {
		t.Fatalf("nested mutating call must trip the latch, got %v", reentrant.err)
	}
}

type pausedView struct{}

func (pausedView) IsPaused(module string) bool { return module == "savings" }

func TestPauseGuard(t *testing.T) {
	h := newTestHarness(t)
	h.engine.SetPauses(pausedView{})
	if err := h.engine.Configure(alice, alice, tokenA, big.NewInt(100), nil, 0, 0); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("paused module: got %v", err)
	}
}

func TestHasPendingAndStatus(t *testing.T) {
	h := newTestHarness(t)
	if err := h.engine.Configure(alice, alice, tokenA, big.NewInt(100), nil, 0, 0); err != nil {
		t.Fatalf("configure: %v", err)
	}
	pending, err := h.engine.HasPending(alice)
	if err != nil || pending {
		t.Fatalf("nothing due yet: pending=%v err=%v", pending, err)
	}
	status, err := h.engine.Status(alice, tokenA)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.CanExecute || status.NextExecutionTime != testBaseTime+oneDay {
		t.Fatalf("unexpected status: %+v", status)
	}

	h.advanceDays(2)
	pending, _ = h.engine.HasPending(alice)
	if !pending {
		t.Fatalf("expected pending work after two days")
	}
	status, _ = h.engine.Status(alice, tokenA)
	if !status.CanExecute || status.AmountDue.Cmp(big.NewInt(200)) != 0 {
		t.Fatalf("unexpected status: %+v", status)
	}
}

func TestFullStatus(t *testing.T) {
	h := newTestHarness(t)
	h.saveUp(t, tokenA, 100, 1_000, 1)

	full, err := h.engine.FullStatus(alice, tokenA)
	if err != nil {
		t.Fatalf("full status: %v", err)
	}
	if !full.Enabled || full.CurrentAmount.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("unexpected status: %+v", full)
	}
	if full.Remaining.Cmp(big.NewInt(900)) != 0 {
		t.Fatalf("remaining: got %s, want 900", full.Remaining)
	}
	// 5% of the 100 accounting balance.
	if full.EstimatedPenalty.Cmp(big.NewInt(5)) != 0 {
		t.Fatalf("estimated penalty: got %s, want 5", full.EstimatedPenalty)
	}
	// 900 remaining at 100/day: nine more days from the last execution.
	wantCompletion := testBaseTime + oneDay + 9*oneDay
	if full.EstimatedCompletionTime != wantCompletion {
		t.Fatalf("completion: got %d, want %d", full.EstimatedCompletionTime, wantCompletion)
	}
}
