package fractal_test

import (
	"crypto/sha256"
	"testing"

	"github.com/fractalchain/node/foundation/blockchain/fractal"
)

func TestDeriveParamsIsDeterministic(t *testing.T) {
	seed := fractal.Seed([]byte("prevhash"), "0xminer", 42)

	p1 := fractal.DeriveParams(seed)
	p2 := fractal.DeriveParams(seed)

	if p1 != p2 {
		t.Fatalf("DeriveParams is not deterministic: %+v != %+v", p1, p2)
	}

	if p1.CRe < -1.0 || p1.CRe > 1.0 {
		t.Fatalf("CRe out of range: %v", p1.CRe)
	}
	if p1.CIm < -1.0 || p1.CIm > 1.0 {
		t.Fatalf("CIm out of range: %v", p1.CIm)
	}
}

func TestComputeIsDeterministic(t *testing.T) {
	seed := sha256.Sum256([]byte("test-fixture"))

	p1, dim1 := fractal.Compute(seed)
	p2, dim2 := fractal.Compute(seed)

	if p1 != p2 || dim1 != dim2 {
		t.Fatalf("Compute is not deterministic for the same seed")
	}
}

func TestDimensionWithinPlausibleRange(t *testing.T) {
	seed := sha256.Sum256([]byte("test-fixture"))
	_, dim := fractal.Compute(seed)

	if dim < 0 || dim > 2.5 {
		t.Fatalf("dimension %v outside plausible range for a 2D box count", dim)
	}
}

func TestValid(t *testing.T) {
	if !fractal.Valid(1.5005, 1.5, 0.001) {
		t.Fatal("expected 1.5005 to be within epsilon of 1.5")
	}
	if fractal.Valid(1.6, 1.5, 0.001) {
		t.Fatal("expected 1.6 to be outside epsilon of 1.5")
	}
}

func TestCountBoxesMonotonicWithSize(t *testing.T) {
	seed := sha256.Sum256([]byte("monotonic"))
	p := fractal.DeriveParams(seed)
	bmp := fractal.Generate(p)

	prev := -1
	for _, s := range fractal.BoxSizes {
		n := fractal.CountBoxes(bmp, s)
		if n < 0 {
			t.Fatalf("box count cannot be negative: %d", n)
		}
		maxPossible := (fractal.GridSize / s) * (fractal.GridSize / s)
		if n > maxPossible {
			t.Fatalf("box count %d exceeds max possible %d for size %d", n, maxPossible, s)
		}
		_ = prev
	}
}
