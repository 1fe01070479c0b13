// Package genesis maintains access to the genesis file and the network's
// chain-wide constants.
package genesis

import (
	"encoding/json"
	"os"
	"time"
)

// Genesis represents the genesis file and the network parameters that are
// fixed for the life of the chain.
type Genesis struct {
	Date time.Time `json:"date"`

	NetworkID uint16 `json:"network_id"` // Distinguishes mainnet/testnet/devnet.
	ChainID   uint16 `json:"chain_id"`

	// Difficulty is the initial header-hash leading-zero-bit target (D_h).
	Difficulty uint `json:"difficulty"`

	// TargetDimension and Epsilon are the chain-wide fractal-PoW targets.
	// TargetDimension never changes across retargets; Epsilon does.
	TargetDimension float64 `json:"target_dimension"`
	Epsilon         float64 `json:"epsilon"`

	// RetargetInterval is the number of blocks between difficulty
	// controller retargets (N in spec.md §4.8).
	RetargetInterval uint64 `json:"retarget_interval"`

	// RetargetTargetSeconds is the target wall-clock duration for
	// RetargetInterval blocks (N x 600s by default).
	RetargetTargetSeconds uint64 `json:"retarget_target_seconds"`

	// HalvingInterval is the block-height period between coinbase reward
	// halvings (210000 by default).
	HalvingInterval uint64 `json:"halving_interval"`

	// TransPerBlock caps the number of transactions assembled into a
	// candidate block by the miner.
	TransPerBlock uint16 `json:"trans_per_block"`

	// GenesisSeed, GenesisCRe, GenesisCIm and GenesisDimension pin the
	// deterministic fractal fields baked into the canonical genesis block,
	// so every node boots to the same block 0 without running POW.
	GenesisSeed      string  `json:"genesis_fractal_seed"`
	GenesisCRe       float64 `json:"genesis_fractal_c_re"`
	GenesisCIm       float64 `json:"genesis_fractal_c_im"`
	GenesisDimension float64 `json:"genesis_fractal_dimension"`
	GenesisTimeStamp uint64  `json:"genesis_timestamp"`

	Balances map[string]string `json:"balances"`
}

// =============================================================================

// Load opens and consumes the genesis file.
func Load(path string) (Genesis, error) {
	if path == "" {
		path = "zblock/genesis.json"
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return Genesis{}, err
	}

	var genesis Genesis
	if err := json.Unmarshal(content, &genesis); err != nil {
		return Genesis{}, err
	}

	return genesis, nil
}
