package mempool_test

import (
	"crypto/ecdsa"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/fractalchain/node/foundation/blockchain/amount"
	"github.com/fractalchain/node/foundation/blockchain/database"
	"github.com/fractalchain/node/foundation/blockchain/mempool"
	"github.com/fractalchain/node/foundation/blockchain/signature"
)

const toAddress = "0xbee6ace826ec3de1b6349888b9151b92522f7f76"

func newKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()

	pk, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generating key: %s", err)
	}
	return pk
}

func signedTx(t *testing.T, pk *ecdsa.PrivateKey, fee int64, nonce uint64) database.BlockTx {
	t.Helper()

	fromID := database.AccountID(signature.AddressFromPublicKey(&pk.PublicKey))

	tx, err := database.NewTx(fromID, toAddress, amount.FromWhole(1), amount.FromUnits(fee), nonce)
	if err != nil {
		t.Fatalf("constructing tx: %s", err)
	}

	signed, err := tx.Sign(pk)
	if err != nil {
		t.Fatalf("signing tx: %s", err)
	}

	return database.NewBlockTx(signed)
}

func TestUpsertAndCopy(t *testing.T) {
	mp := mempool.New()
	pk := newKey(t)

	tx := signedTx(t, pk, 100, 1)

	if _, err := mp.Upsert(tx); err != nil {
		t.Fatalf("upsert: %s", err)
	}

	if mp.Count() != 1 {
		t.Fatalf("expected 1 transaction, got %d", mp.Count())
	}

	if !mp.Exists(tx.TxIDHex()) {
		t.Fatal("expected transaction to exist in pool")
	}

	mp.Delete(tx)
	if mp.Count() != 0 {
		t.Fatalf("expected 0 transactions after delete, got %d", mp.Count())
	}
}

func TestPickBestOrdersByDescendingFee(t *testing.T) {
	mp := mempool.New()

	fees := []int64{10, 500, 100, 250}
	for i, fee := range fees {
		pk := newKey(t)
		tx := signedTx(t, pk, fee, uint64(i)+1)
		if _, err := mp.Upsert(tx); err != nil {
			t.Fatalf("upsert: %s", err)
		}
	}

	best := mp.PickBest(-1)
	if len(best) != len(fees) {
		t.Fatalf("expected %d transactions, got %d", len(fees), len(best))
	}

	for i := 1; i < len(best); i++ {
		if best[i-1].Fee.Cmp(best[i].Fee) < 0 {
			t.Fatalf("pool is not ordered by descending fee at position %d", i)
		}
	}

	top := mp.PickBest(2)
	if len(top) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(top))
	}
	if top[0].Fee.Cmp(amount.FromUnits(500)) != 0 {
		t.Fatalf("expected top fee 500, got %s", top[0].Fee)
	}
}

func TestTruncate(t *testing.T) {
	mp := mempool.New()
	pk := newKey(t)

	mp.Upsert(signedTx(t, pk, 1, 1))
	mp.Truncate()

	if mp.Count() != 0 {
		t.Fatalf("expected empty pool after truncate, got %d", mp.Count())
	}
}
