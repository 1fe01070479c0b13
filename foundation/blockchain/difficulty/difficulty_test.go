package difficulty_test

import (
	"testing"

	"github.com/fractalchain/node/foundation/blockchain/difficulty"
)

func TestRetargetFasterThanTargetIncreasesDifficulty(t *testing.T) {
	// 2016 blocks mined in half the target time: ratio 0.5, r clamped to
	// [0.25, 4.0] stays 0.5, log2(1/0.5) = 1, so difficulty goes up by 1
	// and epsilon is halved.
	res := difficulty.Retarget(1, 0.5, 2016*300, 2016*600)

	if res.Difficulty != 2 {
		t.Fatalf("expected difficulty 2, got %d", res.Difficulty)
	}
	if res.Epsilon != 0.25 {
		t.Fatalf("expected epsilon 0.25, got %v", res.Epsilon)
	}
}

func TestRetargetSlowerThanTargetDecreasesDifficulty(t *testing.T) {
	res := difficulty.Retarget(3, 0.25, 2016*1200, 2016*600)

	if res.Difficulty != 2 {
		t.Fatalf("expected difficulty 2, got %d", res.Difficulty)
	}
	if res.Epsilon != 0.5 {
		t.Fatalf("expected epsilon to clamp at 0.5, got %v", res.Epsilon)
	}
}

func TestRetargetClampsDifficultyBounds(t *testing.T) {
	res := difficulty.Retarget(1, 0.1, 2016*6000, 2016*600)
	if res.Difficulty != difficulty.MinDifficulty {
		t.Fatalf("expected difficulty floor %d, got %d", difficulty.MinDifficulty, res.Difficulty)
	}

	res = difficulty.Retarget(64, 0.1, 1, 2016*600)
	if res.Difficulty != difficulty.MaxDifficulty {
		t.Fatalf("expected difficulty ceiling %d, got %d", difficulty.MaxDifficulty, res.Difficulty)
	}
}

func TestRetargetClampsEpsilonBounds(t *testing.T) {
	res := difficulty.Retarget(1, 1e-7, 2016*1200, 2016*600)
	if res.Epsilon < difficulty.MinEpsilon {
		t.Fatalf("expected epsilon floor %v, got %v", difficulty.MinEpsilon, res.Epsilon)
	}
}

func TestShouldRetarget(t *testing.T) {
	if !difficulty.ShouldRetarget(2016, 2016) {
		t.Fatal("expected block 2016 to trigger a retarget")
	}
	if difficulty.ShouldRetarget(2015, 2016) {
		t.Fatal("expected block 2015 not to trigger a retarget")
	}
	if difficulty.ShouldRetarget(0, 2016) {
		t.Fatal("expected genesis not to trigger a retarget")
	}
}
