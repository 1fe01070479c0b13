package state_test

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/fractalchain/node/foundation/blockchain/amount"
	"github.com/fractalchain/node/foundation/blockchain/database"
	"github.com/fractalchain/node/foundation/blockchain/database/storage"
	"github.com/fractalchain/node/foundation/blockchain/genesis"
	"github.com/fractalchain/node/foundation/blockchain/peer"
	"github.com/fractalchain/node/foundation/blockchain/state"
	"github.com/fractalchain/node/foundation/blockchain/worker"
	"github.com/fractalchain/node/foundation/logger"
)

func ifErrFailNow(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Error(err)
		t.FailNow()
	}
}

// writeTestGenesis drops a genesis file with a difficulty low enough that
// MineNewBlock finds a header hash quickly, crediting minerID with the
// balance tests need to move coins around.
func writeTestGenesis(t *testing.T, minerID database.AccountID) string {
	t.Helper()

	gen := genesis.Genesis{
		NetworkID:             1337,
		ChainID:               1,
		Difficulty:            1,
		TargetDimension:       1.5,
		Epsilon:               0.5,
		RetargetInterval:      2016,
		RetargetTargetSeconds: 2016 * 600,
		HalvingInterval:       210_000,
		TransPerBlock:         10,
		GenesisSeed:           "00",
		GenesisCRe:            -0.7,
		GenesisCIm:            0.27015,
		GenesisDimension:      1.5,
		GenesisTimeStamp:      1700000000,
		Balances: map[string]string{
			string(minerID): "1000.00000000",
		},
	}

	raw, err := json.Marshal(gen)
	ifErrFailNow(t, err)

	path := filepath.Join(t.TempDir(), "genesis.json")
	ifErrFailNow(t, os.WriteFile(path, raw, 0o600))

	return path
}

func newTestKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()

	key, err := crypto.GenerateKey()
	ifErrFailNow(t, err)
	return key
}

func newTestState(t *testing.T, key *ecdsa.PrivateKey, evHandler state.EventHandler) *state.State {
	t.Helper()

	minerID := database.PublicKeyToAccountID(key.PublicKey)
	genesisPath := writeTestGenesis(t, minerID)

	st, err := state.New(state.Config{
		BeneficiaryID: minerID,
		Host:          "test-node",
		GenesisPath:   genesisPath,
		Serializer:    storage.NewMemory(),
		KnownPeers:    peer.NewPeerSet(),
		EvHandler:     evHandler,
	})
	ifErrFailNow(t, err)
	t.Cleanup(func() { _ = st.Shutdown() })

	return st
}

func Test_GenesisOnlyBoot(t *testing.T) {
	log, err := logger.New("TEST")
	ifErrFailNow(t, err)
	defer log.Sync()

	key := newTestKey(t)
	st := newTestState(t, key, func(v string, args ...any) { log.Infow(v) })

	if st.Height() != 0 {
		t.Fatalf("expected height 0 at boot, got %d", st.Height())
	}

	tip := st.Tip()
	if tip.Header.Index != 0 {
		t.Fatalf("expected genesis block at index 0, got %d", tip.Header.Index)
	}
}

func Test_MineBlockWithEmptyMempool(t *testing.T) {
	log, err := logger.New("TEST")
	ifErrFailNow(t, err)
	defer log.Sync()

	key := newTestKey(t)
	minerID := database.PublicKeyToAccountID(key.PublicKey)
	st := newTestState(t, key, func(v string, args ...any) { log.Infow(v) })

	block, err := st.MineNewBlock(context.Background())
	ifErrFailNow(t, err)

	if got := len(block.Trans.Values()); got != 1 {
		t.Fatalf("expected a coinbase-only block, got %d transactions", got)
	}

	if st.Height() != 1 {
		t.Fatalf("expected height 1 after mining, got %d", st.Height())
	}

	want := "50.00000000"
	if got := st.GetBalance(minerID).String(); got != want {
		t.Fatalf("expected coinbase reward %s, got %s", want, got)
	}
}

func Test_SubmitTransactionFeeGoesToMiner(t *testing.T) {
	log, err := logger.New("TEST")
	ifErrFailNow(t, err)
	defer log.Sync()

	minerKey := newTestKey(t)
	minerID := database.PublicKeyToAccountID(minerKey.PublicKey)
	st := newTestState(t, minerKey, func(v string, args ...any) { log.Infow(v) })

	senderKey := newTestKey(t)
	senderID := database.PublicKeyToAccountID(senderKey.PublicKey)
	receiverKey := newTestKey(t)
	receiverID := database.PublicKeyToAccountID(receiverKey.PublicKey)

	// Fund the sender out of the already-funded miner account first.
	tenCoins, err := amount.Parse("10.00000000")
	ifErrFailNow(t, err)
	fundTx, err := database.NewTx(minerID, senderID, tenCoins, amount.Zero, 1)
	ifErrFailNow(t, err)
	signedFund, err := fundTx.Sign(minerKey)
	ifErrFailNow(t, err)
	ifErrFailNow(t, st.SubmitTransaction(database.NewBlockTx(signedFund)))
	_, err = st.MineNewBlock(context.Background())
	ifErrFailNow(t, err)

	oneCoin, err := amount.Parse("1.00000000")
	ifErrFailNow(t, err)
	fee, err := amount.Parse("0.01000000")
	ifErrFailNow(t, err)
	transferTx, err := database.NewTx(senderID, receiverID, oneCoin, fee, 1)
	ifErrFailNow(t, err)
	signedTransfer, err := transferTx.Sign(senderKey)
	ifErrFailNow(t, err)
	ifErrFailNow(t, st.SubmitTransaction(database.NewBlockTx(signedTransfer)))

	block, err := st.MineNewBlock(context.Background())
	ifErrFailNow(t, err)
	if got := len(block.Trans.Values()); got != 2 {
		t.Fatalf("expected coinbase + transfer, got %d transactions", got)
	}

	if got, want := st.GetBalance(receiverID).String(), "1.00000000"; got != want {
		t.Fatalf("expected receiver balance %s, got %s", want, got)
	}
	if got, want := st.GetBalance(senderID).String(), "8.99000000"; got != want {
		t.Fatalf("expected sender balance %s, got %s", want, got)
	}
}

func Test_WorkerRunStartsMiningOnSignal(t *testing.T) {
	log, err := logger.New("TEST")
	ifErrFailNow(t, err)
	defer log.Sync()

	key := newTestKey(t)
	st := newTestState(t, key, func(v string, args ...any) { log.Infow(v) })
	st.EnableMining(database.PublicKeyToAccountID(key.PublicKey))

	worker.Run(st, func(v string, args ...any) { log.Infow(v) })

	st.Worker.SignalStartMining()
}
