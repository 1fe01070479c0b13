// Package difficulty implements the joint retarget of the header-hash
// target and the fractal-dimension tolerance that keeps average block time
// near the network's target.
package difficulty

import "math"

// MinDifficulty and MaxDifficulty bound the header-hash leading-zero-bit
// target D_h.
const (
	MinDifficulty uint = 1
	MaxDifficulty uint = 64
)

// MinEpsilon and MaxEpsilon bound the fractal-dimension acceptance window.
const (
	MinEpsilon = 1e-6
	MaxEpsilon = 0.5
)

// minRatio and maxRatio bound how far a single retarget can move either
// actuator in one step, matching a Bitcoin-style retarget clamp.
const (
	minRatio = 0.25
	maxRatio = 4.0
)

// Result carries the new actuator values a retarget produces.
type Result struct {
	Difficulty uint
	Epsilon    float64
}

// Retarget computes the next difficulty and epsilon from the actual time
// taken to mine the last interval blocks against targetSeconds, the time
// the network wants that interval to take.
func Retarget(currentDifficulty uint, currentEpsilon float64, actualSeconds, targetSeconds uint64) Result {
	if targetSeconds == 0 {
		targetSeconds = 1
	}

	ratio := float64(actualSeconds) / float64(targetSeconds)
	ratio = clamp(ratio, minRatio, maxRatio)

	delta := math.Round(math.Log2(1 / ratio))
	newDifficulty := clampUint(int64(currentDifficulty)+int64(delta), MinDifficulty, MaxDifficulty)

	newEpsilon := clamp(currentEpsilon*ratio, MinEpsilon, MaxEpsilon)

	return Result{
		Difficulty: newDifficulty,
		Epsilon:    newEpsilon,
	}
}

// ShouldRetarget reports whether height is the last block of a retarget
// interval, i.e. the block after which the controller runs.
func ShouldRetarget(height, interval uint64) bool {
	return interval > 0 && height > 0 && height%interval == 0
}

func clamp(v, lo, hi float64) float64 {
	switch {
	case v < lo:
		return lo
	case v > hi:
		return hi
	default:
		return v
	}
}

func clampUint(v int64, lo, hi uint) uint {
	switch {
	case v < int64(lo):
		return lo
	case v > int64(hi):
		return hi
	default:
		return uint(v)
	}
}
