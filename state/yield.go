package state

import (
	"sync"

	"github.com/ethereum/go-ethereum/rlp"

	"spendsave/native/savings"
	"spendsave/storage"
)

var yieldPrefix = []byte("savings/yield/")

// storedYieldRecord tracks yield-application invocations per plan.
type storedYieldRecord struct {
	Strategy     uint8
	Applications uint64
}

// YieldJournal is a yield router that records every application in the
// database. Failure handling is the router's own concern: write errors are
// swallowed after being counted, matching the fire-and-forget contract.
type YieldJournal struct {
	mu       sync.Mutex
	db       storage.Database
	failures uint64
}

// NewYieldJournal wires the journal to its database.
func NewYieldJournal(db storage.Database) *YieldJournal {
	return &YieldJournal{db: db}
}

func yieldKey(account, asset [20]byte) []byte {
	key := append([]byte(nil), yieldPrefix...)
	key = append(key, account[:]...)
	return append(key, asset[:]...)
}

// Apply implements savings.YieldRouter.
func (j *YieldJournal) Apply(account, asset [20]byte, strategy savings.YieldStrategy) {
	if j == nil || j.db == nil {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	record, err := j.load(account, asset)
	if err != nil {
		j.failures++
		return
	}
	record.Strategy = uint8(strategy)
	record.Applications++
	if err := j.store(account, asset, record); err != nil {
		j.failures++
	}
}

// Applications reports how often a strategy was applied for the plan.
func (j *YieldJournal) Applications(account, asset [20]byte) (uint64, savings.YieldStrategy, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	record, err := j.load(account, asset)
	if err != nil {
		return 0, savings.YieldNone, err
	}
	return record.Applications, savings.YieldStrategy(record.Strategy), nil
}

func (j *YieldJournal) load(account, asset [20]byte) (*storedYieldRecord, error) {
	record := &storedYieldRecord{}
	raw, err := j.db.Get(yieldKey(account, asset))
	if err != nil {
		if err == storage.ErrKeyNotFound {
			return record, nil
		}
		return nil, err
	}
	if err := rlp.DecodeBytes(raw, record); err != nil {
		return nil, err
	}
	return record, nil
}

func (j *YieldJournal) store(account, asset [20]byte, record *storedYieldRecord) error {
	raw, err := rlp.EncodeToBytes(record)
	if err != nil {
		return err
	}
	return j.db.Put(yieldKey(account, asset), raw)
}
