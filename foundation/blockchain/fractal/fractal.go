// Package fractal implements the deterministic Julia-set fractal engine
// that forms the second stage of FractalPoW. Everything here must produce
// bit-identical results across independent implementations for the same
// seed: fixed iteration order, fixed grid, closed-form regression.
package fractal

import (
	"crypto/sha256"
	"encoding/binary"
	"math"
)

// MaxIterations bounds the Julia-set iteration per sample.
const MaxIterations = 256

// EscapeRadius is the modulus threshold past which a sample is considered
// to have escaped the set.
const EscapeRadius = 2.0

// GridSize is the number of samples per side of the fixed evaluation grid.
const GridSize = 128

// escapeRadiusSquared avoids a sqrt per iteration.
const escapeRadiusSquared = EscapeRadius * EscapeRadius

// regionMin and regionMax bound the fixed complex square [-2,2] x [-2,2]
// over which the grid is always evaluated. The original Python
// implementation's multi-center search (find_fractal_solution's
// _generate_search_points) is not carried forward here: the spec's
// cross-implementation determinism requirement only holds if every node
// samples the same single grid.
const regionMin = -2.0
const regionMax = 2.0

// BoxSizes lists the box-counting scales, in grid units, in the exact order
// the regression must consume them.
var BoxSizes = [8]int{1, 2, 4, 8, 16, 32, 64, 128}

// Seed computes fractal_seed = sha256(prev_hash || miner_address || nonce_le).
func Seed(prevHash []byte, minerAddress string, nonce uint64) [32]byte {
	h := sha256.New()
	h.Write(prevHash)
	h.Write([]byte(minerAddress))

	var nonceLE [8]byte
	binary.LittleEndian.PutUint64(nonceLE[:], nonce)
	h.Write(nonceLE[:])

	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Params is the complex constant c = c_re + i*c_im derived from a seed.
type Params struct {
	CRe float64
	CIm float64
}

// DeriveParams maps the first 16 bytes of a seed to a complex constant, each
// half mapped from a big-endian uint64 into [-1.0, 1.0].
func DeriveParams(seed [32]byte) Params {
	a := binary.BigEndian.Uint64(seed[0:8])
	b := binary.BigEndian.Uint64(seed[8:16])

	return Params{
		CRe: toSignedUnit(a),
		CIm: toSignedUnit(b),
	}
}

// toSignedUnit maps x in [0, 2^64) to (x/2^64)*2 - 1 in [-1.0, 1.0).
func toSignedUnit(x uint64) float64 {
	return (float64(x)/math.Exp2(64))*2 - 1
}

// Bitmap is the GridSize x GridSize boolean mask of bounded (non-escaping)
// samples, stored row-major.
type Bitmap struct {
	rows [GridSize][GridSize]bool
}

// Bounded reports whether the sample at (row, col) never escaped.
func (b *Bitmap) Bounded(row, col int) bool {
	return b.rows[row][col]
}

// Generate iterates z <- z^2 + c for every grid sample in row-major order,
// exactly as the determinism requirement demands.
func Generate(p Params) *Bitmap {
	var bmp Bitmap

	step := (regionMax - regionMin) / float64(GridSize-1)

	for row := 0; row < GridSize; row++ {
		imag := regionMin + float64(row)*step
		for col := 0; col < GridSize; col++ {
			real := regionMin + float64(col)*step

			bmp.rows[row][col] = isBounded(real, imag, p.CRe, p.CIm)
		}
	}

	return &bmp
}

// isBounded iterates the Julia map starting from z0 = real + i*imag and
// reports whether the orbit stayed within the escape radius for the full
// iteration budget.
func isBounded(real, imag, cRe, cIm float64) bool {
	zr, zi := real, imag

	for i := 0; i < MaxIterations; i++ {
		zr2 := zr*zr - zi*zi + cRe
		zi2 := 2*zr*zi + cIm
		zr, zi = zr2, zi2

		if zr*zr+zi*zi > escapeRadiusSquared {
			return false
		}
	}

	return true
}

// CountBoxes counts the number of non-overlapping size x size boxes (in
// grid units) that contain at least one bounded sample.
func CountBoxes(bmp *Bitmap, size int) int {
	boxesPerSide := GridSize / size
	if boxesPerSide == 0 {
		return 0
	}

	count := 0
	for bi := 0; bi < boxesPerSide; bi++ {
		for bj := 0; bj < boxesPerSide; bj++ {
			if boxHasBoundedSample(bmp, bi*size, bj*size, size) {
				count++
			}
		}
	}

	return count
}

func boxHasBoundedSample(bmp *Bitmap, rowStart, colStart, size int) bool {
	for r := rowStart; r < rowStart+size; r++ {
		for c := colStart; c < colStart+size; c++ {
			if bmp.rows[r][c] {
				return true
			}
		}
	}
	return false
}

// Dimension estimates the box-counting fractal dimension of bmp by OLS
// regression of log N(s) against -log s over the sizes in BoxSizes, in
// listed order. Sizes with N(s) = 0 are discarded. The slope of the fit is
// the dimension, rounded to 6 decimal places for storage and comparison.
func Dimension(bmp *Bitmap) float64 {
	var xs, ys []float64

	for _, s := range BoxSizes {
		n := CountBoxes(bmp, s)
		if n == 0 {
			continue
		}

		xs = append(xs, -math.Log(float64(s)))
		ys = append(ys, math.Log(float64(n)))
	}

	if len(xs) < 2 {
		return 0
	}

	slope := olsSlope(xs, ys)

	return round6(slope)
}

// olsSlope computes the closed-form ordinary-least-squares slope of y on x.
func olsSlope(xs, ys []float64) float64 {
	n := float64(len(xs))

	var sumX, sumY, sumXY, sumXX float64
	for i := range xs {
		sumX += xs[i]
		sumY += ys[i]
		sumXY += xs[i] * ys[i]
		sumXX += xs[i] * xs[i]
	}

	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}

	return (n*sumXY - sumX*sumY) / denom
}

func round6(v float64) float64 {
	const factor = 1e6
	return math.Round(v*factor) / factor
}

// Valid reports whether a computed dimension is within epsilon of target,
// the chain-wide acceptance test for the fractal PoW stage.
func Valid(dim, target, epsilon float64) bool {
	return math.Abs(dim-target) <= epsilon
}

// Compute runs the full pipeline for a seed: derive c, generate the grid,
// and estimate the dimension. It is the single entry point both the miner
// and the verifier call so their results can never diverge.
func Compute(seed [32]byte) (Params, float64) {
	p := DeriveParams(seed)
	bmp := Generate(p)
	dim := Dimension(bmp)

	return p, dim
}
