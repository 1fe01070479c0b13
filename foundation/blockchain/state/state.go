// Package state is the core API for the blockchain: it owns the database,
// the mempool, and the known peer set, and exposes the operations the RPC
// surface and the worker package drive the node with.
package state

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/fractalchain/node/foundation/blockchain/database"
	"github.com/fractalchain/node/foundation/blockchain/database/storage"
	"github.com/fractalchain/node/foundation/blockchain/genesis"
	"github.com/fractalchain/node/foundation/blockchain/mempool"
	"github.com/fractalchain/node/foundation/blockchain/p2p"
	"github.com/fractalchain/node/foundation/blockchain/peer"
)

// ErrNoTransactions is returned by MineNewBlock callers that require a
// non-empty mempool. Mining itself never requires this: a block containing
// only the coinbase transaction is valid.
var ErrNoTransactions = errors.New("no transactions in mempool")

// EventHandler defines a function that is called when events occur in the
// processing of persisting blocks.
type EventHandler func(v string, args ...any)

// Worker represents the behavior required to be implemented by any package
// providing support for mining, peer updates, and transaction sharing.
type Worker interface {
	Shutdown()
	SignalStartMining()
	SignalCancelMining()
	SignalShareTx(blockTx database.BlockTx)
}

// =============================================================================

// Config represents the configuration required to start the blockchain
// node.
type Config struct {
	BeneficiaryID database.AccountID
	Host          string
	DBPath        string
	GenesisPath   string
	KnownPeers    *peer.PeerSet
	EvHandler     EventHandler

	// Serializer overrides the disk-backed store New otherwise opens at
	// DBPath. Tests use this to run against an in-memory store instead of
	// the filesystem.
	Serializer database.Serializer
}

// State manages the blockchain database, mempool, and peer set, and serves
// as the single-writer chain-apply actor described by the concurrency
// model: every call that mutates the ledger or mempool takes s.mu.
type State struct {
	mu sync.Mutex

	beneficiaryID database.AccountID
	host          string
	evHandler     EventHandler
	mining        atomic.Bool

	genesis     genesis.Genesis
	db          *database.Database
	mempool     *mempool.Mempool
	knownPeers  *peer.PeerSet
	rateLimiter *p2p.RateLimiter

	Worker Worker
}

// New constructs a new blockchain state ready for use. The Worker field is
// left unset; worker.Run assigns itself once it starts the background
// goroutines.
func New(cfg Config) (*State, error) {
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	gen, err := genesis.Load(cfg.GenesisPath)
	if err != nil {
		return nil, err
	}

	serializer := cfg.Serializer
	if serializer == nil {
		disk, err := storage.NewDisk(cfg.DBPath)
		if err != nil {
			return nil, err
		}
		serializer = disk
	}

	db, err := database.New(gen, cfg.BeneficiaryID, serializer, ev)
	if err != nil {
		return nil, err
	}

	s := State{
		beneficiaryID: cfg.BeneficiaryID,
		host:          cfg.Host,
		evHandler:     ev,

		genesis:     gen,
		db:          db,
		mempool:     mempool.New(),
		knownPeers:  cfg.KnownPeers,
		rateLimiter: p2p.NewDefaultRateLimiter(),
	}

	return &s, nil
}

// Shutdown cleanly brings the node down.
func (s *State) Shutdown() error {
	defer s.db.Close()

	if s.Worker != nil {
		s.Worker.Shutdown()
	}

	return nil
}

// Truncate resets the chain both on disk and in memory. Used by
// administrative tooling to correct a database the node refuses to load.
func (s *State) Truncate() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.mempool.Truncate()
	return s.db.Reset()
}

// RetrieveHost reports the address this node advertises to peers.
func (s *State) RetrieveHost() string {
	return s.host
}

// Genesis exposes the chain-wide network constants loaded at startup.
func (s *State) Genesis() genesis.Genesis {
	return s.genesis
}
