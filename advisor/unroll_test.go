package advisor

import (
	"errors"
	"math/rand"
	"testing"
)

func TestDefaultDecision(t *testing.T) {
	cases := []struct {
		heuristic int64
		want      int
	}{
		{0, 1},
		{1, 1},
		{3, 3},
		{MaxUnrollFactor, MaxUnrollFactor},
		{MaxUnrollFactor + 3, MaxUnrollFactor},
		{100, MaxUnrollFactor},
	}
	for _, tc := range cases {
		if got := DefaultDecision(tc.heuristic); got != tc.want {
			t.Errorf("DefaultDecision(%d): expected %d, got %d", tc.heuristic, tc.want, got)
		}
	}
}

func TestAdviceRoundTrip(t *testing.T) {
	// Every factor at or above the offset must be recoverable by arg-max.
	for factor := UnrollFactorOffset; factor <= MaxUnrollFactor; factor++ {
		advice, err := AdviceForFactor(factor)
		if err != nil {
			t.Fatalf("AdviceForFactor(%d) failed: %v", factor, err)
		}
		if len(advice) != AdviceTensorLen {
			t.Fatalf("expected advice length %d, got %d", AdviceTensorLen, len(advice))
		}
		if got := FactorFromAdvice(advice); got != factor {
			t.Errorf("round trip for factor %d: got %d", factor, got)
		}
	}
}

func TestAdviceBelowOffsetIsNeutral(t *testing.T) {
	advice, err := AdviceForFactor(1)
	if err != nil {
		t.Fatalf("AdviceForFactor(1) failed: %v", err)
	}
	for i, w := range advice {
		if w != neutralWeight {
			t.Fatalf("expected all-neutral vector, slot %d is %v", i, w)
		}
	}
	if got := FactorFromAdvice(advice); got != 1 {
		t.Errorf("expected neutral vector to decode as 1, got %d", got)
	}
}

func TestAdviceIllegalFactor(t *testing.T) {
	for _, factor := range []int{0, -1, MaxUnrollFactor + 1} {
		if _, err := AdviceForFactor(factor); !errors.Is(err, ErrIllegalDecision) {
			t.Errorf("AdviceForFactor(%d): expected ErrIllegalDecision, got %v", factor, err)
		}
	}
}

func TestCheckUnrollSuccess(t *testing.T) {
	cases := []struct {
		action, inRollout bool
		lastDecision      int
		wantErr           bool
	}{
		{false, false, 4, true},  // ignored a mandatory unroll
		{false, false, 1, false}, // did not want to unroll
		{false, true, 4, false},  // rollouts may fail silently
		{true, false, 4, false},
		{true, true, 4, false},
		{true, false, 1, false},
	}
	for _, tc := range cases {
		err := CheckUnrollSuccess(tc.action, tc.inRollout, tc.lastDecision)
		if tc.wantErr && !errors.Is(err, ErrUnsuccessfulAction) {
			t.Errorf("(%v,%v,%d): expected ErrUnsuccessfulAction, got %v",
				tc.action, tc.inRollout, tc.lastDecision, err)
		}
		if !tc.wantErr && err != nil {
			t.Errorf("(%v,%v,%d): expected nil, got %v",
				tc.action, tc.inRollout, tc.lastDecision, err)
		}
	}
}

func TestRolloutDecisionLegal(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 100; i++ {
		d := RolloutDecision(rng)
		if d < 1 || d > MaxUnrollFactor {
			t.Fatalf("rollout decision %d outside 1..%d", d, MaxUnrollFactor)
		}
	}
}

func TestLegalFactors(t *testing.T) {
	factors := LegalFactors()
	if len(factors) != MaxUnrollFactor {
		t.Fatalf("expected %d factors, got %d", MaxUnrollFactor, len(factors))
	}
	for i, f := range factors {
		if f != i+1 {
			t.Errorf("expected factor %d at %d, got %d", i+1, i, f)
		}
	}
}
