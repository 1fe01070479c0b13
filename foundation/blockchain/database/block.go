package database

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/bits"
	"time"

	"github.com/fractalchain/node/foundation/blockchain/amount"
	"github.com/fractalchain/node/foundation/blockchain/fractal"
	"github.com/fractalchain/node/foundation/blockchain/genesis"
	"github.com/fractalchain/node/foundation/blockchain/merkle"
)

// ErrChainForked is returned from ValidateBlock if another node's chain is
// two or more blocks ahead of ours. Forks are not resolved by this design;
// the node that observes this must trigger a resync, not a reorg.
var ErrChainForked = errors.New("blockchain forked, start resync")

// ZeroHash64 is the genesis block's prev_hash: 64 hex zero characters.
const ZeroHash64 = "0000000000000000000000000000000000000000000000000000000000000000"

// =============================================================================

// BlockHeader carries everything about a block except its transaction list.
type BlockHeader struct {
	Index            uint64        `json:"index"`
	PrevHash         string        `json:"prev_hash"`
	TimeStamp        uint64        `json:"timestamp"`
	MerkleRoot       string        `json:"merkle_root"`
	Nonce            uint64        `json:"nonce"`
	Difficulty       uint          `json:"difficulty"` // required leading zero bits of header_hash, 0-256
	BeneficiaryID    AccountID     `json:"beneficiary"`
	FractalCRe       float64       `json:"fractal_c_re"`
	FractalCIm       float64       `json:"fractal_c_im"`
	FractalDimension float64       `json:"fractal_dimension"`
	FractalSeed      string        `json:"fractal_seed"` // hex, 32 bytes
	MiningReward     amount.Amount `json:"mining_reward"`
}

// Block represents a group of transactions batched together under a header.
type Block struct {
	Header BlockHeader
	Trans  *merkle.Tree[BlockTx]
}

// =============================================================================

// headerHashFields isolates the seven pre-fractal fields the header-hash
// pre-filter is computed over, per the network's header_hash definition.
type headerHashFields struct {
	Index      uint64  `json:"index"`
	PrevHash   string  `json:"prev_hash"`
	TimeStamp  uint64  `json:"timestamp"`
	MerkleRoot string  `json:"merkle_root"`
	Nonce      uint64  `json:"nonce"`
	Difficulty uint    `json:"difficulty"`
	Seed       string  `json:"fractal_seed"`
}

// HeaderHash computes the cheap pre-filter digest over the header's
// pre-fractal fields.
func (h BlockHeader) HeaderHash() [32]byte {
	fields := headerHashFields{
		Index:      h.Index,
		PrevHash:   h.PrevHash,
		TimeStamp:  h.TimeStamp,
		MerkleRoot: h.MerkleRoot,
		Nonce:      h.Nonce,
		Difficulty: h.Difficulty,
		Seed:       h.FractalSeed,
	}

	data, err := json.Marshal(fields)
	if err != nil {
		return [32]byte{}
	}

	return sha256.Sum256(data)
}

// BlockHash computes the full canonical hash of the header, including the
// fractal fields, used to link blocks and identify them on the wire.
func (h BlockHeader) BlockHash() [32]byte {
	data, err := json.Marshal(h)
	if err != nil {
		return [32]byte{}
	}
	return sha256.Sum256(data)
}

// Hash returns the hex-encoded block_hash for the Block. Genesis (index 0)
// is a special case handled by callers via PrevHash, not by this function.
func (b Block) Hash() string {
	hash := b.Header.BlockHash()
	return "0x" + hex.EncodeToString(hash[:])
}

// leadingZeroBits counts the number of leading zero bits in a hash.
func leadingZeroBits(hash [32]byte) int {
	count := 0
	for _, b := range hash {
		if b == 0 {
			count += 8
			continue
		}
		count += bits.LeadingZeros8(b)
		break
	}
	return count
}

// reward implements reward(h) = 50 * 2^-floor(h/210000), floored at zero
// once the halving count exceeds 64.
func reward(height uint64) amount.Amount {
	halvings := height / 210000
	if halvings >= 64 {
		return amount.Zero
	}
	return amount.FromUnits(amount.FromWhole(50).Int64() >> halvings)
}

// =============================================================================

// POW assembles a candidate block from trans (coinbase first, per-fee
// ordered thereafter) and drives the two-stage FractalPoW search until a
// nonce is found that satisfies both the header-hash and fractal gates, or
// ctx is cancelled.
func POW(ctx context.Context, beneficiaryID AccountID, difficulty uint, targetDimension, epsilon float64, prevBlock Block, trans []BlockTx, evHandler func(v string, args ...any)) (Block, error) {
	prevHash := strip0x(prevBlock.Hash())
	height := prevBlock.Header.Index + 1

	tree, err := merkle.NewTree(trans)
	if err != nil {
		return Block{}, err
	}

	nb := Block{
		Header: BlockHeader{
			Index:         height,
			PrevHash:      prevHash,
			TimeStamp:     uint64(time.Now().UTC().Unix()),
			MerkleRoot:    tree.MerkleRootHex(),
			BeneficiaryID: beneficiaryID,
			Difficulty:    difficulty,
			MiningReward:  reward(height),
		},
		Trans: tree,
	}

	if err := nb.performPOW(ctx, targetDimension, epsilon, evHandler); err != nil {
		return Block{}, err
	}

	return nb, nil
}

// performPOW iterates nonce = 0, 1, 2, ... as the spec requires, checking
// the header-hash pre-filter before paying the fractal computation's much
// higher cost. The cancellation token is polled once per nonce, satisfying
// the bounded-shutdown-latency requirement.
func (b *Block) performPOW(ctx context.Context, targetDimension, epsilon float64, ev func(v string, args ...any)) error {
	ev("database: performPOW: MINING: started")
	defer ev("database: performPOW: MINING: completed")

	var attempts uint64
	for nonce := uint64(0); ; nonce++ {
		attempts++
		if attempts%1_000_000 == 0 {
			ev("database: performPOW: MINING: attempts[%d]", attempts)
		}

		if ctx.Err() != nil {
			ev("database: performPOW: MINING: CANCELLED")
			return ctx.Err()
		}

		b.Header.Nonce = nonce

		seed := fractal.Seed([]byte(b.Header.PrevHash), string(b.Header.BeneficiaryID), nonce)
		b.Header.FractalSeed = hex.EncodeToString(seed[:])

		headerHash := b.Header.HeaderHash()
		if leadingZeroBits(headerHash) < int(b.Header.Difficulty) {
			continue
		}

		if ctx.Err() != nil {
			ev("database: performPOW: MINING: CANCELLED")
			return ctx.Err()
		}

		params, dim := fractal.Compute(seed)
		if !fractal.Valid(dim, targetDimension, epsilon) {
			continue
		}

		b.Header.FractalCRe = params.CRe
		b.Header.FractalCIm = params.CIm
		b.Header.FractalDimension = dim

		ev("database: performPOW: MINING: SOLVED: blk[%s]: attempts[%d]", b.Hash(), attempts)

		return nil
	}
}

// =============================================================================

// ValidateBlock checks b against previousBlock and the chain-wide fractal
// targets. It re-derives every PoW-dependent quantity rather than trusting
// the values carried on the wire, per §4.7's four hard verification gates.
func (b Block) ValidateBlock(previousBlock Block, targetDimension, epsilon float64, evHandler func(v string, args ...any)) error {
	evHandler("database: ValidateBlock: blk[%d]: check: chain is not forked", b.Header.Index)

	nextIndex := previousBlock.Header.Index + 1
	if b.Header.Index >= nextIndex+2 {
		return ErrChainForked
	}
	if b.Header.Index != nextIndex {
		return fmt.Errorf("this block is not the next index, got %d, exp %d", b.Header.Index, nextIndex)
	}

	evHandler("database: ValidateBlock: blk[%d]: check: parent hash matches parent block", b.Header.Index)
	if b.Header.PrevHash != strip0x(previousBlock.Hash()) {
		return fmt.Errorf("parent hash doesn't match known parent, got %s, exp %s", b.Header.PrevHash, previousBlock.Hash())
	}

	evHandler("database: ValidateBlock: blk[%d]: check: timestamp is not before parent and not too far in the future", b.Header.Index)
	if b.Header.TimeStamp < previousBlock.Header.TimeStamp {
		return fmt.Errorf("block timestamp is before parent block, parent %d, block %d", previousBlock.Header.TimeStamp, b.Header.TimeStamp)
	}
	if b.Header.TimeStamp > uint64(time.Now().UTC().Unix())+7200 {
		return fmt.Errorf("block timestamp is too far in the future: %d", b.Header.TimeStamp)
	}

	evHandler("database: ValidateBlock: blk[%d]: check: merkle root matches transactions", b.Header.Index)
	if b.Header.MerkleRoot != b.Trans.MerkleRootHex() {
		return fmt.Errorf("merkle root does not match transactions, got %s, exp %s", b.Trans.MerkleRootHex(), b.Header.MerkleRoot)
	}

	evHandler("database: ValidateBlock: blk[%d]: check: header hash meets difficulty", b.Header.Index)
	if leadingZeroBits(b.Header.HeaderHash()) < int(b.Header.Difficulty) {
		return fmt.Errorf("header hash does not meet required difficulty %d", b.Header.Difficulty)
	}

	evHandler("database: ValidateBlock: blk[%d]: check: fractal seed, params and dimension re-derive correctly", b.Header.Index)
	seedBytes, err := hex.DecodeString(b.Header.FractalSeed)
	if err != nil || len(seedBytes) != 32 {
		return fmt.Errorf("malformed fractal seed")
	}
	expectedSeed := fractal.Seed([]byte(b.Header.PrevHash), string(b.Header.BeneficiaryID), b.Header.Nonce)
	if hex.EncodeToString(seedBytes) != hex.EncodeToString(expectedSeed[:]) {
		return fmt.Errorf("fractal seed does not match prev_hash, miner and nonce")
	}

	var seed [32]byte
	copy(seed[:], seedBytes)
	params, dim := fractal.Compute(seed)
	if params.CRe != b.Header.FractalCRe || params.CIm != b.Header.FractalCIm {
		return fmt.Errorf("fractal params do not match recomputation from seed")
	}
	if dim != b.Header.FractalDimension {
		return fmt.Errorf("fractal dimension does not match recomputation, got %v, exp %v", b.Header.FractalDimension, dim)
	}
	if !fractal.Valid(dim, targetDimension, epsilon) {
		return fmt.Errorf("fractal dimension %v outside target %v +/- %v", dim, targetDimension, epsilon)
	}

	return nil
}

func strip0x(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

// =============================================================================

// BlockData represents what is written to durable storage: the block hash
// alongside its header and transactions.
type BlockData struct {
	Hash   string      `json:"hash"`
	Header BlockHeader `json:"header"`
	Trans  []BlockTx   `json:"trans"`
}

// NewBlockData constructs the value to serialize to disk.
func NewBlockData(block Block) BlockData {
	return BlockData{
		Hash:   block.Hash(),
		Header: block.Header,
		Trans:  block.Trans.Values(),
	}
}

// ToBlock converts a BlockData back into a Block, rebuilding the merkle
// tree from the stored transaction list.
func ToBlock(blockData BlockData) (Block, error) {
	tree, err := merkle.NewTree(blockData.Trans)
	if err != nil {
		return Block{}, err
	}

	return Block{
		Header: blockData.Header,
		Trans:  tree,
	}, nil
}

// NewGenesisBlock constructs the canonical index-0 block from the genesis
// network parameters. Unlike every later block, genesis is not mined: its
// fractal fields are baked-in constants so every node arrives at the same
// block 0 without running POW.
func NewGenesisBlock(gen genesis.Genesis, coinbaseID AccountID) (Block, error) {
	coinbaseTx := NewCoinbaseTx(coinbaseID, amount.Zero, 0)
	coinbaseBlockTx := NewBlockTx(SignedTx{Tx: coinbaseTx})

	tree, err := merkle.NewTree([]BlockTx{coinbaseBlockTx})
	if err != nil {
		return Block{}, err
	}

	header := BlockHeader{
		Index:            0,
		PrevHash:         ZeroHash64,
		TimeStamp:        gen.GenesisTimeStamp,
		MerkleRoot:       tree.MerkleRootHex(),
		Nonce:            0,
		Difficulty:       gen.Difficulty,
		BeneficiaryID:    coinbaseID,
		FractalCRe:       gen.GenesisCRe,
		FractalCIm:       gen.GenesisCIm,
		FractalDimension: gen.GenesisDimension,
		FractalSeed:      gen.GenesisSeed,
		MiningReward:     amount.Zero,
	}

	return Block{Header: header, Trans: tree}, nil
}
