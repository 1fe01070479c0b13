// Copyright 2017 Cameron Bergoon
// https://github.com/cbergoon/merkletree
// Licensed under the MIT License, see LICENCE file for details.

package merkle_test

import (
	"bytes"
	"crypto/sha256"
	"testing"

	"github.com/fractalchain/node/foundation/blockchain/merkle"
)

// txid is a stand-in for a transaction id: the merkle package only ever
// sees raw hashable leaves, never a full BlockTx.
type txid struct {
	id string
}

func (t txid) Hash() ([]byte, error) {
	h := sha256.Sum256([]byte(t.id))
	h2 := sha256.Sum256(h[:])
	return h2[:], nil
}

func (t txid) Equals(other txid) bool {
	return t.id == other.id
}

func newLeaves(ids ...string) []txid {
	leaves := make([]txid, len(ids))
	for i, id := range ids {
		leaves[i] = txid{id: id}
	}
	return leaves
}

func Test_NewTreeOddCountDuplicatesLast(t *testing.T) {
	even, err := merkle.NewTree(newLeaves("a", "b"))
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	odd, err := merkle.NewTree(newLeaves("a", "b", "c"))
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	if bytes.Equal(even.MerkleRoot, odd.MerkleRoot) {
		t.Fatalf("odd and even trees should not collide on root")
	}

	if got := len(odd.Values()); got != 3 {
		t.Fatalf("Values should drop the duplicated leaf, got %d entries", got)
	}
}

func Test_NewTreeDeterministic(t *testing.T) {
	ids := []string{"tx1", "tx2", "tx3", "tx4", "tx5"}

	t1, err := merkle.NewTree(newLeaves(ids...))
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	t2, err := merkle.NewTree(newLeaves(ids...))
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	if !bytes.Equal(t1.MerkleRoot, t2.MerkleRoot) {
		t.Fatalf("same txid list should always produce the same root")
	}
}

func Test_Rebuild(t *testing.T) {
	tree, err := merkle.NewTree(newLeaves("a", "b", "c", "d"))
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	root := tree.MerkleRoot
	if err := tree.Rebuild(); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	if !bytes.Equal(root, tree.MerkleRoot) {
		t.Fatalf("rebuilding from the same leaves should not change the root")
	}
}

func Test_Verify(t *testing.T) {
	tree, err := merkle.NewTree(newLeaves("a", "b", "c", "d", "e"))
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	if err := tree.Verify(); err != nil {
		t.Fatalf("expected tree to verify, got %s", err)
	}

	tree.MerkleRoot = []byte{1, 2, 3}
	if err := tree.Verify(); err == nil {
		t.Fatalf("expected a tampered root to fail verification")
	}
}

func Test_ProveAndVerifyProof(t *testing.T) {
	ids := []string{"tx1", "tx2", "tx3", "tx4", "tx5", "tx6", "tx7"}
	leaves := newLeaves(ids...)

	tree, err := merkle.NewTree(leaves)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	for _, leaf := range leaves {
		proof, err := tree.Prove(leaf)
		if err != nil {
			t.Fatalf("unexpected error proving %s: %s", leaf.id, err)
		}

		leafHash, err := leaf.Hash()
		if err != nil {
			t.Fatalf("unexpected error hashing %s: %s", leaf.id, err)
		}

		if !merkle.VerifyProof(leafHash, proof, tree.MerkleRoot) {
			t.Fatalf("expected inclusion proof for %s to verify", leaf.id)
		}
	}
}

func Test_VerifyProofRejectsWrongLeaf(t *testing.T) {
	leaves := newLeaves("tx1", "tx2", "tx3", "tx4")

	tree, err := merkle.NewTree(leaves)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	proof, err := tree.Prove(leaves[0])
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	wrongHash, err := txid{id: "not-in-the-tree"}.Hash()
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	if merkle.VerifyProof(wrongHash, proof, tree.MerkleRoot) {
		t.Fatalf("expected a proof for the wrong leaf to fail verification")
	}
}

func Test_VerifyProofRejectsTamperedSibling(t *testing.T) {
	leaves := newLeaves("tx1", "tx2", "tx3", "tx4", "tx5")

	tree, err := merkle.NewTree(leaves)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	proof, err := tree.Prove(leaves[0])
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if len(proof) == 0 {
		t.Fatalf("expected a non-empty proof")
	}

	proof[0].SiblingHash = append([]byte{}, proof[0].SiblingHash...)
	proof[0].SiblingHash[0] ^= 0xff

	leafHash, err := leaves[0].Hash()
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	if merkle.VerifyProof(leafHash, proof, tree.MerkleRoot) {
		t.Fatalf("expected a tampered sibling hash to fail verification")
	}
}

func Test_ProveUnknownLeaf(t *testing.T) {
	tree, err := merkle.NewTree(newLeaves("a", "b", "c"))
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	if _, err := tree.Prove(txid{id: "not-present"}); err == nil {
		t.Fatalf("expected an error proving a leaf that isn't in the tree")
	}
}

func Test_EmptyTreeHasZeroRoot(t *testing.T) {
	tree, err := merkle.NewTree([]txid{})
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	if got := len(tree.MerkleRoot); got != sha256.Size {
		t.Fatalf("expected a %d-byte root, got %d bytes", sha256.Size, got)
	}

	if !bytes.Equal(tree.MerkleRoot, make([]byte, sha256.Size)) {
		t.Fatalf("expected the root of an empty leaf list to be all zero, got %x", tree.MerkleRoot)
	}

	if err := tree.Verify(); err != nil {
		t.Fatalf("expected an empty tree to verify, got %s", err)
	}
}

func Test_MerkleRootHex(t *testing.T) {
	tree, err := merkle.NewTree(newLeaves("a", "b"))
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	if got := tree.MerkleRootHex(); got == "" || got[:2] != "0x" {
		t.Fatalf("expected a 0x-prefixed hex root, got %q", got)
	}
}
