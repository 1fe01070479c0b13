package storage

import (
	"errors"
	"sync"

	"github.com/fractalchain/node/foundation/blockchain/database"
)

// Memory is an in-process database.Serializer backed by a slice instead of
// files on disk, used by tests that need a fresh chain without touching
// the filesystem.
type Memory struct {
	mu     sync.RWMutex
	blocks []database.BlockData
}

// NewMemory constructs an empty in-memory serializer.
func NewMemory() *Memory {
	return &Memory{}
}

// Close is a no-op: there is nothing to release.
func (m *Memory) Close() error {
	return nil
}

// Write appends blockData, indexed by its header's height.
func (m *Memory) Write(blockData database.BlockData) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := blockData.Header.Index
	for uint64(len(m.blocks)) < idx {
		m.blocks = append(m.blocks, database.BlockData{})
	}
	if uint64(len(m.blocks)) == idx {
		m.blocks = append(m.blocks, blockData)
		return nil
	}
	m.blocks[idx-1] = blockData
	return nil
}

// GetBlock returns the block stored at height num.
func (m *Memory) GetBlock(num uint64) (database.BlockData, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if num == 0 || num > uint64(len(m.blocks)) {
		return database.BlockData{}, errors.New("block not found")
	}
	return m.blocks[num-1], nil
}

// ForEach returns an iterator over every block held, starting at height 1.
func (m *Memory) ForEach() database.Iterator {
	return &MemoryIterator{mem: m}
}

// Reset clears every block held.
func (m *Memory) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.blocks = nil
	return nil
}

// MemoryIterator walks a Memory serializer's blocks in height order.
type MemoryIterator struct {
	mem     *Memory
	current uint64
	eoc     bool
}

// Next retrieves the next block held in memory.
func (mi *MemoryIterator) Next() (database.BlockData, error) {
	if mi.eoc {
		return database.BlockData{}, errors.New("end of chain")
	}

	mi.current++
	blockData, err := mi.mem.GetBlock(mi.current)
	if err != nil {
		mi.eoc = true
	}

	return blockData, err
}

// Done returns the end-of-chain value.
func (mi *MemoryIterator) Done() bool {
	return mi.eoc
}
