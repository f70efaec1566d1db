package state

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"spendsave/native/savings"
	"spendsave/storage"
)

var (
	planPrefix    = []byte("savings/plan/")
	assetsPrefix  = []byte("savings/assets/")
	balancePrefix = []byte("savings/token/")
	execPrefix    = []byte("savings/exec/")

	tokenIDSalt = []byte("savings/token-id")
)

var errInsufficientBalance = errors.New("state: insufficient token balance")

// storedPlan is the RLP shape of a plan record. Timestamps are stored as
// unsigned seconds.
type storedPlan struct {
	Enabled           bool
	DailyAmount       *big.Int
	GoalAmount        *big.Int
	CurrentAmount     *big.Int
	PenaltyBps        uint32
	EndTime           uint64
	LastExecutionTime uint64
	StartTime         uint64
	Strategy          uint8
}

// storedExecutionLog accumulates per-plan execution history.
type storedExecutionLog struct {
	Count  uint64
	Total  *big.Int
	LastAt uint64
}

// Manager implements the engine's ledger store and accounting token over a
// key-value database. It serialises read-modify-write sequences with a
// single mutex; the engine's reentrancy latch already prevents interleaved
// mutating calls, so contention here only comes from read-only queries.
type Manager struct {
	mu       sync.RWMutex
	db       storage.Database
	treasury [20]byte
	module   [20]byte
	hook     [20]byte
}

// NewManager wires a manager to its database and the privileged addresses the
// engine consults for authorization and penalty routing.
func NewManager(db storage.Database, treasury, module, hook [20]byte) *Manager {
	return &Manager{db: db, treasury: treasury, module: module, hook: hook}
}

func planKey(account, asset [20]byte) []byte {
	key := append([]byte(nil), planPrefix...)
	key = append(key, account[:]...)
	return append(key, asset[:]...)
}

func assetsKey(account [20]byte) []byte {
	key := append([]byte(nil), assetsPrefix...)
	return append(key, account[:]...)
}

func balanceKey(account [20]byte, id [32]byte) []byte {
	key := append([]byte(nil), balancePrefix...)
	key = append(key, account[:]...)
	return append(key, id[:]...)
}

func execKey(account, asset [20]byte) []byte {
	key := append([]byte(nil), execPrefix...)
	key = append(key, account[:]...)
	return append(key, asset[:]...)
}

func (m *Manager) getRLP(key []byte, out interface{}) (bool, error) {
	raw, err := m.db.Get(key)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := rlp.DecodeBytes(raw, out); err != nil {
		return false, fmt.Errorf("state: decode %q: %w", key, err)
	}
	return true, nil
}

func (m *Manager) putRLP(key []byte, value interface{}) error {
	raw, err := rlp.EncodeToBytes(value)
	if err != nil {
		return fmt.Errorf("state: encode %q: %w", key, err)
	}
	return m.db.Put(key, raw)
}

// PlanGet loads the stored plan for the account×asset pair.
func (m *Manager) PlanGet(account, asset [20]byte) (*savings.PlanConfig, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var stored storedPlan
	ok, err := m.getRLP(planKey(account, asset), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	plan := &savings.PlanConfig{
		Enabled:           stored.Enabled,
		DailyAmount:       stored.DailyAmount,
		GoalAmount:        stored.GoalAmount,
		CurrentAmount:     stored.CurrentAmount,
		PenaltyBps:        stored.PenaltyBps,
		EndTime:           int64(stored.EndTime),
		LastExecutionTime: int64(stored.LastExecutionTime),
		StartTime:         int64(stored.StartTime),
		Strategy:          savings.YieldStrategy(stored.Strategy),
	}
	sanitized, err := savings.SanitizePlan(plan)
	if err != nil {
		return nil, false, err
	}
	return sanitized, true, nil
}

// PlanPut validates and persists a plan record.
func (m *Manager) PlanPut(account, asset [20]byte, plan *savings.PlanConfig) error {
	sanitized, err := savings.SanitizePlan(plan)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.putRLP(planKey(account, asset), &storedPlan{
		Enabled:           sanitized.Enabled,
		DailyAmount:       sanitized.DailyAmount,
		GoalAmount:        sanitized.GoalAmount,
		CurrentAmount:     sanitized.CurrentAmount,
		PenaltyBps:        sanitized.PenaltyBps,
		EndTime:           uint64(sanitized.EndTime),
		LastExecutionTime: uint64(sanitized.LastExecutionTime),
		StartTime:         uint64(sanitized.StartTime),
		Strategy:          uint8(sanitized.Strategy),
	})
}

// EnrolledAssets returns the account's asset set in enrollment order.
func (m *Manager) EnrolledAssets(account [20]byte) ([][20]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var assets [][20]byte
	if _, err := m.getRLP(assetsKey(account), &assets); err != nil {
		return nil, err
	}
	return assets, nil
}

// EnrollAsset appends the asset to the account's set when not yet present.
// Enrollment order is preserved; assets are never removed.
func (m *Manager) EnrollAsset(account, asset [20]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var assets [][20]byte
	if _, err := m.getRLP(assetsKey(account), &assets); err != nil {
		return err
	}
	for _, existing := range assets {
		if existing == asset {
			return nil
		}
	}
	assets = append(assets, asset)
	return m.putRLP(assetsKey(account), assets)
}

// RecordExecution folds one settled contribution into the per-plan journal.
func (m *Manager) RecordExecution(account, asset [20]byte, amount *big.Int, at int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	log := storedExecutionLog{Total: big.NewInt(0)}
	if _, err := m.getRLP(execKey(account, asset), &log); err != nil {
		return err
	}
	if log.Total == nil {
		log.Total = big.NewInt(0)
	}
	log.Count++
	log.Total = new(big.Int).Add(log.Total, amount)
	log.LastAt = uint64(at)
	return m.putRLP(execKey(account, asset), &log)
}

// ExecutionLog reports the accumulated execution history for a plan.
func (m *Manager) ExecutionLog(account, asset [20]byte) (count uint64, total *big.Int, lastAt int64, err error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	log := storedExecutionLog{Total: big.NewInt(0)}
	if _, err := m.getRLP(execKey(account, asset), &log); err != nil {
		return 0, nil, 0, err
	}
	if log.Total == nil {
		log.Total = big.NewInt(0)
	}
	return log.Count, log.Total, int64(log.LastAt), nil
}

// TreasuryAddress returns the penalty sink.
func (m *Manager) TreasuryAddress() [20]byte { return m.treasury }

// ModuleAddress returns the store's own privileged identity.
func (m *Manager) ModuleAddress() [20]byte { return m.module }

// HookAddress returns the additional privileged caller identity.
func (m *Manager) HookAddress() [20]byte { return m.hook }

// IDFor derives the deterministic accounting-token identifier of an asset.
func (m *Manager) IDFor(asset [20]byte) [32]byte {
	return ethcrypto.Keccak256Hash(tokenIDSalt, asset[:])
}

// BalanceOf reports the account's accounting-token balance for an id.
func (m *Manager) BalanceOf(account [20]byte, id [32]byte) (*big.Int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.balance(account, id)
}

func (m *Manager) balance(account [20]byte, id [32]byte) (*big.Int, error) {
	value := big.NewInt(0)
	if _, err := m.getRLP(balanceKey(account, id), &value); err != nil {
		return nil, err
	}
	return value, nil
}

// Mint credits accounting-token balance representing saved progress.
func (m *Manager) Mint(account, asset [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("state: mint amount must be non-negative")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.IDFor(asset)
	balance, err := m.balance(account, id)
	if err != nil {
		return err
	}
	return m.putRLP(balanceKey(account, id), new(big.Int).Add(balance, amount))
}

// Burn debits accounting-token balance, failing when the balance is short.
func (m *Manager) Burn(account, asset [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("state: burn amount must be non-negative")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.IDFor(asset)
	balance, err := m.balance(account, id)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return errInsufficientBalance
	}
	return m.putRLP(balanceKey(account, id), new(big.Int).Sub(balance, amount))
}
