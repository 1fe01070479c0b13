package state

import (
	"fmt"

	"github.com/fractalchain/node/foundation/blockchain/database"
)

// SubmitTransaction accepts a signed transaction for inclusion in the
// mempool, the RPC surface's sendTransaction. A transaction that fails
// structural or signature validation is rejected at the boundary; a
// transaction whose nonce or balance can't be reconciled against the
// current ledger is dropped by the mempool once it's actually mined, not
// here, since balance depends on whatever else lands in the same block.
func (s *State) SubmitTransaction(tx database.BlockTx) error {
	if err := s.validateTransaction(tx); err != nil {
		return fmt.Errorf("validate transaction: %w", err)
	}

	if _, err := s.mempool.Upsert(tx); err != nil {
		return fmt.Errorf("upsert mempool: %w", err)
	}

	if s.Worker != nil {
		s.Worker.SignalShareTx(tx)
		s.Worker.SignalStartMining()
	}

	return nil
}

// UpsertMempool accepts a transaction learned from a peer without
// re-broadcasting it, used by the sync path so gossip doesn't echo forever.
func (s *State) UpsertMempool(tx database.BlockTx) error {
	if err := s.validateTransaction(tx); err != nil {
		return fmt.Errorf("validate transaction: %w", err)
	}

	if _, err := s.mempool.Upsert(tx); err != nil {
		return fmt.Errorf("upsert mempool: %w", err)
	}

	return nil
}

// validateTransaction checks a transaction's structural invariants and
// signature. Balance and nonce ordering are enforced atomically when the
// transaction is actually applied to a block, since they depend on
// whatever else the block contains.
func (s *State) validateTransaction(tx database.BlockTx) error {
	if tx.IsCoinbase() {
		return fmt.Errorf("coinbase transactions are not accepted from the network")
	}

	return tx.Validate()
}
