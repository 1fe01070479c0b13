package state

import (
	"context"
	"fmt"

	"github.com/fractalchain/node/foundation/blockchain/amount"
	"github.com/fractalchain/node/foundation/blockchain/database"
	"github.com/fractalchain/node/foundation/blockchain/difficulty"
)

// EnableMining turns on continuous mining for beneficiaryID, the RPC
// surface's startMining(address).
func (s *State) EnableMining(beneficiaryID database.AccountID) {
	s.mu.Lock()
	s.beneficiaryID = beneficiaryID
	s.mu.Unlock()

	s.mining.Store(true)
}

// DisableMining turns off mining, the RPC surface's stopMining().
func (s *State) DisableMining() {
	s.mining.Store(false)
}

// IsMiningAllowed reports whether the node is currently configured to
// mine.
func (s *State) IsMiningAllowed() bool {
	return s.mining.Load()
}

// QueryMempoolLength reports how many transactions are waiting to be
// mined.
func (s *State) QueryMempoolLength() int {
	return s.mempool.Count()
}

// MineNewBlock assembles a candidate block from the best-fee transactions
// currently pooled, drives the two-stage FractalPoW search, and on success
// applies and persists the block locally. A block with zero pooled
// transactions is still valid: it contains only the coinbase reward.
func (s *State) MineNewBlock(ctx context.Context) (database.Block, error) {
	s.mu.Lock()
	beneficiaryID := s.beneficiaryID
	prevBlock := s.db.LatestBlock()
	difficultyVal := s.db.CurrentDifficulty()
	targetDimension := s.db.TargetDimension()
	epsilon := s.db.CurrentEpsilon()
	s.mu.Unlock()

	howMany := int(s.genesis.TransPerBlock) - 1
	if howMany < 0 {
		howMany = 0
	}
	picked := s.mempool.PickBest(howMany)

	var totalFees amount.Amount
	for _, tx := range picked {
		totalFees = totalFees.Add(tx.Fee)
	}

	height := prevBlock.Header.Index + 1
	trans := s.assembleTrans(beneficiaryID, height, picked, totalFees)

	block, err := database.POW(ctx, beneficiaryID, difficultyVal, targetDimension, epsilon, prevBlock, trans, s.evHandler)
	if err != nil {
		return database.Block{}, err
	}

	if err := s.AddBlock(block); err != nil {
		return database.Block{}, err
	}

	return block, nil
}

// assembleTrans builds the transaction list a candidate block carries:
// coinbase at position 0 with amount = block reward + total fees, followed
// by the picked transactions in fee-priority order.
func (s *State) assembleTrans(beneficiaryID database.AccountID, height uint64, picked []database.BlockTx, totalFees amount.Amount) []database.BlockTx {
	blockReward := rewardForHeight(height)
	coinbaseTx := database.NewCoinbaseTx(beneficiaryID, blockReward.Add(totalFees), height)
	coinbaseBlockTx := database.NewBlockTx(database.SignedTx{Tx: coinbaseTx})

	trans := make([]database.BlockTx, 0, len(picked)+1)
	trans = append(trans, coinbaseBlockTx)
	trans = append(trans, picked...)
	return trans
}

// rewardForHeight mirrors the halving schedule the database package applies
// when validating a block, so the coinbase amount this node proposes
// matches what ValidateBlock will independently re-derive.
func rewardForHeight(height uint64) amount.Amount {
	halvings := height / 210_000
	if halvings >= 64 {
		return amount.Zero
	}
	return amount.FromUnits(amount.FromWhole(50).Int64() >> halvings)
}

// AddBlock validates block against the current tip and, if valid, applies
// it to the ledger, persists it, drops its transactions from the mempool,
// and retargets the difficulty controller if this is the last block of an
// interval. It is the single entry point both locally mined and
// peer-received blocks go through.
func (s *State) AddBlock(block database.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prevBlock := s.db.LatestBlock()

	if err := block.ValidateBlock(prevBlock, s.db.TargetDimension(), s.db.CurrentEpsilon(), s.evHandler); err != nil {
		return fmt.Errorf("validate block: %w", err)
	}

	if err := s.db.ApplyBlock(block); err != nil {
		return fmt.Errorf("apply block: %w", err)
	}

	if err := s.db.Write(block); err != nil {
		return fmt.Errorf("persist block: %w", err)
	}

	s.mempool.DeleteAll(block.Trans.Values())

	if difficulty.ShouldRetarget(block.Header.Index, s.genesis.RetargetInterval) {
		s.retargetLocked(block)
	}

	return nil
}

// retargetLocked runs the difficulty controller over the interval that just
// closed at block. The caller must hold s.mu.
func (s *State) retargetLocked(block database.Block) {
	intervalStart, err := s.db.GetBlock(block.Header.Index - s.genesis.RetargetInterval + 1)
	if err != nil {
		s.evHandler("state: retarget: ERROR: could not load interval start: %s", err)
		return
	}

	actualSeconds := block.Header.TimeStamp - intervalStart.Header.TimeStamp

	result := difficulty.Retarget(s.db.CurrentDifficulty(), s.db.CurrentEpsilon(), actualSeconds, s.genesis.RetargetTargetSeconds)
	s.db.ApplyRetarget(result.Difficulty, result.Epsilon)

	s.evHandler("state: retarget: height[%d]: difficulty[%d] epsilon[%v]", block.Header.Index, result.Difficulty, result.Epsilon)
}
