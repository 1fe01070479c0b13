package state

import (
	"fmt"

	"github.com/fractalchain/node/foundation/blockchain/amount"
	"github.com/fractalchain/node/foundation/blockchain/database"
)

// ChainInfo is the shape returned by the RPC surface's
// getBlockchainInfo.
type ChainInfo struct {
	Height     uint64
	TipHash    string
	Difficulty uint
	Epsilon    float64
}

// GetChainInfo reports the chain's current tip and active PoW actuators.
func (s *State) GetChainInfo() ChainInfo {
	tip := s.db.LatestBlock()

	return ChainInfo{
		Height:     tip.Header.Index,
		TipHash:    tip.Hash(),
		Difficulty: s.db.CurrentDifficulty(),
		Epsilon:    s.db.CurrentEpsilon(),
	}
}

// Tip returns the current chain head.
func (s *State) Tip() database.Block {
	return s.db.LatestBlock()
}

// Height returns the index of the current chain head.
func (s *State) Height() uint64 {
	return s.db.Height()
}

// GetBlockByIndex looks up a block by its height.
func (s *State) GetBlockByIndex(index uint64) (database.Block, error) {
	return s.db.GetBlock(index)
}

// GetBlockByHash looks up a block by its hex-encoded hash.
func (s *State) GetBlockByHash(hash string) (database.Block, error) {
	return s.db.GetBlockByHash(hash)
}

// GetBalance reports the current ledger balance for an address.
func (s *State) GetBalance(accountID database.AccountID) amount.Amount {
	return s.db.Balance(accountID)
}

// GetTransaction searches the mempool first, then the persisted chain, for
// a transaction matching txID.
func (s *State) GetTransaction(txID string) (database.BlockTx, error) {
	for _, tx := range s.mempool.Copy() {
		if tx.TxIDHex() == txID {
			return tx, nil
		}
	}

	genesisBlock, err := s.db.GetBlock(0)
	if err != nil {
		return database.BlockTx{}, err
	}
	for _, tx := range genesisBlock.Trans.Values() {
		if tx.TxIDHex() == txID {
			return tx, nil
		}
	}

	iter := s.db.ForEach()
	for block, err := iter.Next(); !iter.Done(); block, err = iter.Next() {
		if err != nil {
			return database.BlockTx{}, err
		}

		for _, tx := range block.Trans.Values() {
			if tx.TxIDHex() == txID {
				return tx, nil
			}
		}
	}

	return database.BlockTx{}, fmt.Errorf("transaction %s not found", txID)
}
