// Package mempool maintains the set of signed transactions waiting to be
// mined into a block.
package mempool

import (
	"sort"
	"sync"

	"github.com/fractalchain/node/foundation/blockchain/amount"
	"github.com/fractalchain/node/foundation/blockchain/database"
)

// MaxSize is the maximum number of transactions the pool will hold at once.
// Once full, inserting a higher-fee transaction evicts the current
// lowest-fee entry.
const MaxSize = 10_000

// Mempool represents a cache of transactions keyed by transaction id. It
// enforces a bounded size with lowest-fee-first eviction and orders block
// assembly by highest fee first.
type Mempool struct {
	mu   sync.RWMutex
	pool map[string]database.BlockTx
}

// New constructs a mempool ready for use.
func New() *Mempool {
	return &Mempool{
		pool: make(map[string]database.BlockTx),
	}
}

// Count returns the current number of transactions in the pool.
func (mp *Mempool) Count() int {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	return len(mp.pool)
}

// Upsert adds or replaces a transaction in the mempool, keyed by its
// transaction id. When the pool is full and tx's fee beats the current
// lowest fee, the lowest-fee entry is evicted to make room; otherwise tx is
// rejected.
func (mp *Mempool) Upsert(tx database.BlockTx) (int, error) {
	id := tx.TxIDHex()

	mp.mu.Lock()
	defer mp.mu.Unlock()

	if _, exists := mp.pool[id]; !exists && len(mp.pool) >= MaxSize {
		lowestID, lowestFee := mp.lowestFeeLocked()
		if tx.Fee.Cmp(lowestFee) <= 0 {
			return len(mp.pool), nil
		}
		delete(mp.pool, lowestID)
	}

	mp.pool[id] = tx

	return len(mp.pool), nil
}

// Delete removes a transaction from the mempool.
func (mp *Mempool) Delete(tx database.BlockTx) {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	delete(mp.pool, tx.TxIDHex())
}

// DeleteAll removes every transaction in txs, used after a block is mined
// or accepted to drop everything it includes.
func (mp *Mempool) DeleteAll(txs []database.BlockTx) {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	for _, tx := range txs {
		delete(mp.pool, tx.TxIDHex())
	}
}

// Truncate clears all the transactions from the pool.
func (mp *Mempool) Truncate() {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	mp.pool = make(map[string]database.BlockTx)
}

// Exists reports whether a transaction with this id is already pooled.
func (mp *Mempool) Exists(txID string) bool {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	_, exists := mp.pool[txID]
	return exists
}

// Copy returns every transaction currently pooled, in no particular order.
func (mp *Mempool) Copy() []database.BlockTx {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	txs := make([]database.BlockTx, 0, len(mp.pool))
	for _, tx := range mp.pool {
		txs = append(txs, tx)
	}
	return txs
}

// PickBest returns up to howMany pooled transactions ordered by descending
// fee, the priority a miner assembling a candidate block uses. Pass -1 for
// every transaction in the pool.
func (mp *Mempool) PickBest(howMany int) []database.BlockTx {
	mp.mu.RLock()
	txs := make([]database.BlockTx, 0, len(mp.pool))
	for _, tx := range mp.pool {
		txs = append(txs, tx)
	}
	mp.mu.RUnlock()

	sort.Slice(txs, func(i, j int) bool {
		if c := txs[i].Fee.Cmp(txs[j].Fee); c != 0 {
			return c > 0
		}
		return txs[i].TimeStamp < txs[j].TimeStamp
	})

	if howMany < 0 || howMany > len(txs) {
		return txs
	}
	return txs[:howMany]
}

// lowestFeeLocked finds the pooled transaction with the smallest fee. The
// caller must hold mp.mu.
func (mp *Mempool) lowestFeeLocked() (string, amount.Amount) {
	var lowestID string
	var lowestFee amount.Amount
	first := true

	for id, tx := range mp.pool {
		if first || tx.Fee.Cmp(lowestFee) < 0 {
			lowestID = id
			lowestFee = tx.Fee
			first = false
		}
	}

	return lowestID, lowestFee
}
