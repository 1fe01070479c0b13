package merkle

import (
	"crypto/sha256"
	"hash"
)

// doubleSHA256 implements hash.Hash by applying SHA-256 twice to the
// accumulated input on Sum, matching the network's sha256d convention used
// for the merkle tree. No domain separation or salting is applied.
type doubleSHA256 struct {
	h hash.Hash
}

// newDoubleSHA256 constructs the default hash strategy for a Tree.
func newDoubleSHA256() hash.Hash {
	return &doubleSHA256{h: sha256.New()}
}

func (d *doubleSHA256) Write(p []byte) (int, error) {
	return d.h.Write(p)
}

func (d *doubleSHA256) Sum(b []byte) []byte {
	first := sha256.Sum256(d.h.Sum(nil))
	second := sha256.Sum256(first[:])
	return append(b, second[:]...)
}

func (d *doubleSHA256) Reset() {
	d.h.Reset()
}

func (d *doubleSHA256) Size() int {
	return sha256.Size
}

func (d *doubleSHA256) BlockSize() int {
	return d.h.BlockSize()
}
