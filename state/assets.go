package state

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"spendsave/storage"
)

var (
	assetBalancePrefix   = []byte("assets/balance/")
	assetAllowancePrefix = []byte("assets/allowance/")
)

var (
	ErrTransferBalance   = errors.New("assets: insufficient balance")
	ErrTransferAllowance = errors.New("assets: insufficient allowance")
)

// AssetLedger is an in-process implementation of the asset-transfer
// primitive: per-account balances plus allowances granted to the savings
// module. The engine only ever sees the collaborator interface, so a
// deployment can swap this for a bridge to an external ledger.
type AssetLedger struct {
	mu     sync.Mutex
	db     storage.Database
	module [20]byte
}

// NewAssetLedger wires the ledger to its database and the module address that
// pulled funds accrue to.
func NewAssetLedger(db storage.Database, module [20]byte) *AssetLedger {
	return &AssetLedger{db: db, module: module}
}

func assetBalanceKey(account, asset [20]byte) []byte {
	key := append([]byte(nil), assetBalancePrefix...)
	key = append(key, account[:]...)
	return append(key, asset[:]...)
}

func assetAllowanceKey(account, asset [20]byte) []byte {
	key := append([]byte(nil), assetAllowancePrefix...)
	key = append(key, account[:]...)
	return append(key, asset[:]...)
}

func (l *AssetLedger) read(key []byte) (*big.Int, error) {
	raw, err := l.db.Get(key)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return big.NewInt(0), nil
	}
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(raw), nil
}

func (l *AssetLedger) write(key []byte, value *big.Int) error {
	return l.db.Put(key, value.Bytes())
}

// Allowance reports how much the savings module may pull from the account.
func (l *AssetLedger) Allowance(account, asset [20]byte) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.read(assetAllowanceKey(account, asset))
}

// BalanceOf reports the account's spendable asset balance.
func (l *AssetLedger) BalanceOf(account, asset [20]byte) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.read(assetBalanceKey(account, asset))
}

// Approve grants the savings module an allowance over the account's funds.
func (l *AssetLedger) Approve(account, asset [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("assets: allowance must be non-negative")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.write(assetAllowanceKey(account, asset), amount)
}

// Credit adds funds to an account. Used by deposits and by tests.
func (l *AssetLedger) Credit(account, asset [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("assets: credit must be non-negative")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	balance, err := l.read(assetBalanceKey(account, asset))
	if err != nil {
		return err
	}
	return l.write(assetBalanceKey(account, asset), new(big.Int).Add(balance, amount))
}

// PullFrom moves funds from the account into the module pool, consuming
// allowance. Both the allowance and the balance must cover the amount.
func (l *AssetLedger) PullFrom(account, asset [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("assets: pull amount must be positive")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	allowance, err := l.read(assetAllowanceKey(account, asset))
	if err != nil {
		return err
	}
	if allowance.Cmp(amount) < 0 {
		return ErrTransferAllowance
	}
	balance, err := l.read(assetBalanceKey(account, asset))
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return ErrTransferBalance
	}
	pool, err := l.read(assetBalanceKey(l.module, asset))
	if err != nil {
		return err
	}
	if err := l.write(assetAllowanceKey(account, asset), new(big.Int).Sub(allowance, amount)); err != nil {
		return err
	}
	if err := l.write(assetBalanceKey(account, asset), new(big.Int).Sub(balance, amount)); err != nil {
		return err
	}
	return l.write(assetBalanceKey(l.module, asset), new(big.Int).Add(pool, amount))
}

// PushTo moves funds from the module pool to the recipient.
func (l *AssetLedger) PushTo(recipient, asset [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("assets: push amount must be non-negative")
	}
	if amount.Sign() == 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	pool, err := l.read(assetBalanceKey(l.module, asset))
	if err != nil {
		return err
	}
	if pool.Cmp(amount) < 0 {
		return ErrTransferBalance
	}
	balance, err := l.read(assetBalanceKey(recipient, asset))
	if err != nil {
		return err
	}
	if err := l.write(assetBalanceKey(l.module, asset), new(big.Int).Sub(pool, amount)); err != nil {
		return err
	}
	return l.write(assetBalanceKey(recipient, asset), new(big.Int).Add(balance, amount))
}
