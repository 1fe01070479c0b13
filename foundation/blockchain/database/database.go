// Package database handles all the lower level support for maintaining the
// blockchain on disk and maintaining an in-memory ledger of account
// balances. The ledger is a materialized aggregate, not a UTXO set: it must
// always be reconstructible by replaying every block's transactions and
// mining reward in order, which is exactly what New does on startup.
package database

import (
	"errors"
	"fmt"
	"sync"

	"github.com/fractalchain/node/foundation/blockchain/amount"
	"github.com/fractalchain/node/foundation/blockchain/genesis"
)

// Serializer is the behavior required by any package providing durable
// storage for the blockchain.
type Serializer interface {
	Write(blockData BlockData) error
	GetBlock(num uint64) (BlockData, error)
	ForEach() Iterator
	Close() error
	Reset() error
}

// Iterator walks over the blocks held by a Serializer.
type Iterator interface {
	Next() (BlockData, error)
	Done() bool
}

// =============================================================================

// DatabaseIterator decodes the raw BlockData a Serializer iterator yields
// back into Block values.
type DatabaseIterator struct {
	iterator Iterator
}

// Next retrieves the next block from disk.
func (di *DatabaseIterator) Next() (Block, error) {
	blockData, err := di.iterator.Next()
	if err != nil {
		return Block{}, err
	}

	return ToBlock(blockData)
}

// Done returns the end of chain value.
func (di *DatabaseIterator) Done() bool {
	return di.iterator.Done()
}

// =============================================================================

// Database manages the balance ledger and the persisted chain of blocks.
type Database struct {
	mu sync.RWMutex

	genesis        genesis.Genesis
	genesisMinerID AccountID
	latestBlock    Block
	accounts       map[AccountID]Account
	hashIndex      map[string]uint64 // block_hash (without 0x) -> index

	currentDifficulty uint
	currentEpsilon    float64

	serializer Serializer
}

// New constructs a database seeded from genesis, replays every block the
// serializer already holds to rebuild the balance ledger, and validates the
// chain of headers as it goes.
func New(gen genesis.Genesis, coinbaseID AccountID, serializer Serializer, evHandler func(v string, args ...any)) (*Database, error) {
	db := Database{
		genesis:           gen,
		genesisMinerID:    coinbaseID,
		accounts:          make(map[AccountID]Account),
		hashIndex:         make(map[string]uint64),
		currentDifficulty: gen.Difficulty,
		currentEpsilon:    gen.Epsilon,
		serializer:        serializer,
	}

	if err := db.applyGenesisBalances(); err != nil {
		return nil, err
	}

	genesisBlock, err := NewGenesisBlock(gen, coinbaseID)
	if err != nil {
		return nil, err
	}
	db.latestBlock = genesisBlock
	db.hashIndex[strip0x(genesisBlock.Hash())] = 0

	iter := db.serializer.ForEach()
	for blockData, err := iter.Next(); !iter.Done(); blockData, err = iter.Next() {
		if err != nil {
			return nil, err
		}

		block, err := ToBlock(blockData)
		if err != nil {
			return nil, err
		}

		if err := block.ValidateBlock(db.latestBlock, gen.TargetDimension, db.currentEpsilon, evHandler); err != nil {
			return nil, err
		}

		if err := db.applyBlock(block); err != nil {
			return nil, err
		}
	}

	return &db, nil
}

func (db *Database) applyGenesisBalances() error {
	for accountStr, balanceStr := range db.genesis.Balances {
		accountID, err := ToAccountID(accountStr)
		if err != nil {
			return err
		}

		balance, err := amount.Parse(balanceStr)
		if err != nil {
			return fmt.Errorf("genesis balance for %s: %w", accountStr, err)
		}

		db.accounts[accountID] = newAccount(accountID, balance)
	}

	return nil
}

// Close closes the open blocks database.
func (db *Database) Close() {
	db.serializer.Close()
}

// Reset re-initializes the database back to the genesis state.
func (db *Database) Reset() error {
	if err := db.serializer.Reset(); err != nil {
		return err
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	db.accounts = make(map[AccountID]Account)
	db.hashIndex = make(map[string]uint64)
	db.currentDifficulty = db.genesis.Difficulty
	db.currentEpsilon = db.genesis.Epsilon

	return db.applyGenesisBalances()
}

// CopyAccounts makes a copy of the current accounts in the database.
func (db *Database) CopyAccounts() map[AccountID]Account {
	db.mu.RLock()
	defer db.mu.RUnlock()

	accounts := make(map[AccountID]Account)
	for accountID, account := range db.accounts {
		accounts[accountID] = account
	}
	return accounts
}

// Balance returns the current ledger balance for an address.
func (db *Database) Balance(accountID AccountID) amount.Amount {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return db.accounts[accountID].Balance
}

// Nonce returns the next expected nonce for an address.
func (db *Database) Nonce(accountID AccountID) uint64 {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return db.accounts[accountID].Nonce
}

// =============================================================================

// ApplyBlock validates nothing; it performs the atomic ledger update for a
// block already known to be valid: apply every transaction in list order
// against the running post-state, then credit the coinbase. On any failure
// no partial balance changes from this block are retained.
func (db *Database) ApplyBlock(block Block) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	return db.applyBlockLocked(block)
}

func (db *Database) applyBlock(block Block) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	return db.applyBlockLocked(block)
}

func (db *Database) applyBlockLocked(block Block) error {
	snapshot := make(map[AccountID]Account, len(db.accounts))
	for id, acc := range db.accounts {
		snapshot[id] = acc
	}

	txs := block.Trans.Values()
	if len(txs) == 0 || !txs[0].IsCoinbase() {
		return errors.New("block has no coinbase at position 0")
	}

	var totalFees amount.Amount
	for i, tx := range txs {
		if i == 0 {
			continue
		}
		if err := db.applyTransactionLocked(tx); err != nil {
			db.accounts = snapshot
			return err
		}
		totalFees = totalFees.Add(tx.Fee)
	}

	expectedCoinbase := block.Header.MiningReward.Add(totalFees)
	if txs[0].Amount.Cmp(expectedCoinbase) != 0 {
		db.accounts = snapshot
		return fmt.Errorf("bad coinbase amount, got %s, exp %s", txs[0].Amount, expectedCoinbase)
	}

	bnfc := db.accounts[block.Header.BeneficiaryID]
	bnfc.Balance = bnfc.Balance.Add(txs[0].Amount)
	db.accounts[block.Header.BeneficiaryID] = bnfc

	db.latestBlock = block
	db.hashIndex[strip0x(block.Hash())] = block.Header.Index

	return nil
}

// applyTransactionLocked applies a single non-coinbase transaction against
// the ledger. The caller holds db.mu.
func (db *Database) applyTransactionLocked(tx BlockTx) error {
	if err := tx.Validate(); err != nil {
		return fmt.Errorf("invalid signature, %w", err)
	}

	fromID, err := tx.FromAccount()
	if err != nil {
		return fmt.Errorf("invalid signature, %w", err)
	}

	from := db.accounts[fromID]
	to := db.accounts[tx.ToID]

	if fromID == tx.ToID {
		return fmt.Errorf("transaction invalid, sending to yourself, from %s, to %s", fromID, tx.ToID)
	}

	if tx.Nonce != from.Nonce+1 {
		return fmt.Errorf("transaction invalid, nonce out of order, current %d, provided %d", from.Nonce, tx.Nonce)
	}

	total := tx.Amount.Add(tx.Fee)
	if from.Balance.Cmp(total) < 0 {
		return fmt.Errorf("transaction invalid, insufficient funds, bal %s, needed %s", from.Balance, total)
	}

	from.Balance = from.Balance.Sub(total)
	to.Balance = to.Balance.Add(tx.Amount)
	from.Nonce = tx.Nonce

	db.accounts[fromID] = from
	db.accounts[tx.ToID] = to

	return nil
}

// =============================================================================

// UpdateLatestBlock provides safe access to update the latest block without
// re-applying its transactions. Used when the caller has already applied
// the block's balance effects through ApplyBlock.
func (db *Database) UpdateLatestBlock(block Block) {
	db.mu.Lock()
	defer db.mu.Unlock()

	db.latestBlock = block
}

// LatestBlock returns the current tip of the chain.
func (db *Database) LatestBlock() Block {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return db.latestBlock
}

// Height returns the index of the current tip.
func (db *Database) Height() uint64 {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return db.latestBlock.Header.Index
}

// CurrentDifficulty returns the chain's current header-hash target.
func (db *Database) CurrentDifficulty() uint {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return db.currentDifficulty
}

// CurrentEpsilon returns the chain's current fractal-dimension tolerance.
func (db *Database) CurrentEpsilon() float64 {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return db.currentEpsilon
}

// TargetDimension returns the chain-wide, never-retargeted fractal target.
func (db *Database) TargetDimension() float64 {
	return db.genesis.TargetDimension
}

// ApplyRetarget installs a new header-hash difficulty and epsilon, called
// by the difficulty controller every RetargetInterval blocks.
func (db *Database) ApplyRetarget(difficulty uint, epsilon float64) {
	db.mu.Lock()
	defer db.mu.Unlock()

	db.currentDifficulty = difficulty
	db.currentEpsilon = epsilon
}

// Write adds a new block to the chain's durable storage.
func (db *Database) Write(block Block) error {
	return db.serializer.Write(NewBlockData(block))
}

// ForEach returns an iterator to walk through all the persisted blocks.
func (db *Database) ForEach() DatabaseIterator {
	return DatabaseIterator{iterator: db.serializer.ForEach()}
}

// GetBlock searches the blockchain on disk to locate and return the
// contents of the specified block by index.
func (db *Database) GetBlock(num uint64) (Block, error) {
	if num == 0 {
		return NewGenesisBlock(db.genesis, db.genesisMinerID)
	}

	blockData, err := db.serializer.GetBlock(num)
	if err != nil {
		return Block{}, err
	}
	return ToBlock(blockData)
}

// GetBlockByHash resolves a hex block hash (with or without 0x) to a block.
func (db *Database) GetBlockByHash(hash string) (Block, error) {
	db.mu.RLock()
	num, ok := db.hashIndex[strip0x(hash)]
	db.mu.RUnlock()

	if !ok {
		return Block{}, fmt.Errorf("block %s not found", hash)
	}

	return db.GetBlock(num)
}
