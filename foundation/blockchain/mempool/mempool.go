// Package mempool maintains the mempool for the blockchain.
package mempool

import (
	"fmt"
	"sort"
	"sync"

	"github.com/contentledger/blockchain/foundation/blockchain/database"
	"github.com/contentledger/blockchain/foundation/blockchain/mempool/selector"
)

// Mempool represents a cache of pending transactions keyed by transaction id.
// Every entry carries the sequence number it was submitted with.
type Mempool struct {
	pool     map[database.Hash]selector.Entry
	seq      uint64
	mu       sync.RWMutex
	selectFn selector.Func
}

// New constructs a new mempool using the default select strategy.
func New() (*Mempool, error) {
	return NewWithStrategy(selector.StrategyFIFO)
}

// NewWithStrategy constructs a new mempool with specified select strategy.
func NewWithStrategy(strategy string) (*Mempool, error) {
	selectFn, err := selector.Retrieve(strategy)
	if err != nil {
		return nil, err
	}

	mp := Mempool{
		pool:     make(map[database.Hash]selector.Entry),
		selectFn: selectFn,
	}

	return &mp, nil
}

// Count returns the current number of transaction in the pool.
func (mp *Mempool) Count() int {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	return len(mp.pool)
}

// Contains reports whether the transaction id is in the pool.
func (mp *Mempool) Contains(id database.Hash) bool {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	_, exists := mp.pool[id]
	return exists
}

// Submit validates the transaction and adds it to the pool. A transaction
// already pooled or reported confirmed by isConfirmed is rejected with
// ErrDuplicateTransaction. The size of the pool is returned.
func (mp *Mempool) Submit(tx database.SignedTx, isConfirmed func(database.Hash) bool) (int, error) {
	if mp.Contains(tx.ID) {
		return 0, fmt.Errorf("%w: %s is pending", database.ErrDuplicateTransaction, tx.ID)
	}

	if err := tx.Validate(); err != nil {
		return 0, err
	}

	mp.mu.Lock()
	defer mp.mu.Unlock()

	if _, exists := mp.pool[tx.ID]; exists {
		return 0, fmt.Errorf("%w: %s is pending", database.ErrDuplicateTransaction, tx.ID)
	}

	if isConfirmed != nil && isConfirmed(tx.ID) {
		return 0, fmt.Errorf("%w: %s is confirmed", database.ErrDuplicateTransaction, tx.ID)
	}

	mp.insert(tx)

	return len(mp.pool), nil
}

// Delete removed a transaction from the mempool.
func (mp *Mempool) Delete(id database.Hash) {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	delete(mp.pool, id)
}

// Truncate clears all the transactions from the pool.
func (mp *Mempool) Truncate() {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	mp.pool = make(map[database.Hash]selector.Entry)
}

// Copy returns every pooled transaction in submission order.
func (mp *Mempool) Copy() []database.SignedTx {
	entries := mp.entries()
	sort.Slice(entries, func(i, j int) bool { return entries[i].Seq < entries[j].Seq })

	txs := make([]database.SignedTx, len(entries))
	for i, entry := range entries {
		txs[i] = entry.Tx
	}

	return txs
}

// PickBest uses the configured select strategy to return the next set
// of transactions for the next block. Pass -1 for all the transactions.
// The transactions stay in the pool.
func (mp *Mempool) PickBest(howMany int) []database.SignedTx {
	return mp.selectFn(mp.entries(), howMany)
}

// Purge runs the commit function and, if it succeeds, removes the specified
// transactions from the pool. Both happen under the pool lock so no reader
// sees a block committed while its transactions are still pending.
func (mp *Mempool) Purge(txs []database.SignedTx, commit func() error) error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	if err := commit(); err != nil {
		return err
	}

	for _, tx := range txs {
		delete(mp.pool, tx.ID)
	}

	return nil
}

// Reconcile runs the commit function and, if it succeeds, removes the
// transaction ids in remove and inserts the reinsert transactions that are
// not already pooled, in the order given.
func (mp *Mempool) Reconcile(reinsert []database.SignedTx, remove []database.Hash, commit func() error) error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	if err := commit(); err != nil {
		return err
	}

	for _, id := range remove {
		delete(mp.pool, id)
	}

	for _, tx := range reinsert {
		if _, exists := mp.pool[tx.ID]; !exists {
			mp.insert(tx)
		}
	}

	return nil
}

// =============================================================================

// insert adds the transaction with the next sequence number. The caller
// must hold the write lock.
func (mp *Mempool) insert(tx database.SignedTx) {
	mp.seq++
	mp.pool[tx.ID] = selector.Entry{Seq: mp.seq, Tx: tx}
}

// entries returns a copy of the pool entries.
func (mp *Mempool) entries() []selector.Entry {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	entries := make([]selector.Entry, 0, len(mp.pool))
	for _, entry := range mp.pool {
		entries = append(entries, entry)
	}

	return entries
}
