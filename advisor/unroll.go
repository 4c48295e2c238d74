package advisor

import (
	"errors"
	"fmt"
	"math/rand"
)

// Loop-unroll decision space. A decision is the unroll factor; 1 means do
// not unroll.
const (
	MaxUnrollFactor    = 5
	UnrollFactorOffset = 2

	// AdviceTensorLen must stay in sync with the advice spec the compiler
	// declares (see its UnrollModelFeatureMaps.h).
	AdviceTensorLen = 1 + 32 - UnrollFactorOffset

	neutralWeight  = 0.5
	dominantWeight = 2.0
)

var (
	// ErrIllegalDecision reports an unroll factor outside 1..MaxUnrollFactor.
	ErrIllegalDecision = errors.New("unroll factor outside legal range")
	// ErrUnsuccessfulAction reports that the compiler ignored a mandatory
	// unroll decision outside rollout mode.
	ErrUnsuccessfulAction = errors.New("unsuccessful unrolling")
)

// LegalFactors returns the legal decisions 1..MaxUnrollFactor.
func LegalFactors() []int {
	factors := make([]int, MaxUnrollFactor)
	for i := range factors {
		factors[i] = i + 1
	}
	return factors
}

// AdviceForFactor encodes an unroll factor as the dense advice vector the
// compiler consumes: neutral weight everywhere, the chosen factor's slot
// dominant. Factors below the offset, including "don't unroll", map to the
// all-neutral vector.
func AdviceForFactor(factor int) ([]float64, error) {
	if factor < 1 || factor > MaxUnrollFactor {
		return nil, fmt.Errorf("%w: %d", ErrIllegalDecision, factor)
	}
	advice := make([]float64, AdviceTensorLen)
	for i := range advice {
		advice[i] = neutralWeight
	}
	if factor >= UnrollFactorOffset {
		advice[factor-UnrollFactorOffset] = dominantWeight
	}
	return advice, nil
}

// FactorFromAdvice recovers the dominant factor from an advice vector, or
// 1 when the vector is all-neutral.
func FactorFromAdvice(advice []float64) int {
	best, bestWeight := -1, neutralWeight
	for i, w := range advice {
		if w > bestWeight {
			best = i
			bestWeight = w
		}
	}
	if best < 0 {
		return 1
	}
	return best + UnrollFactorOffset
}

// DefaultDecision converts the compiler's own heuristic into a legal
// decision, used when no tree recommendation is active. The compiler
// reports 0 when it would not unroll.
func DefaultDecision(heuristic int64) int {
	switch {
	case heuristic == 0:
		return 1
	case heuristic > MaxUnrollFactor:
		return MaxUnrollFactor
	default:
		return int(heuristic)
	}
}

// RolloutDecision picks a uniformly random legal factor.
func RolloutDecision(rng *rand.Rand) int {
	return 1 + rng.Intn(MaxUnrollFactor)
}

// CheckUnrollSuccess validates the compiler's report of whether it applied
// the requested unrolling. Rollouts are exploratory and allowed to fail
// silently; outside rollout mode a mandatory unroll that was ignored
// aborts the compile.
func CheckUnrollSuccess(action bool, inRollout bool, lastDecision int) error {
	if !action && !inRollout && lastDecision != 1 {
		return ErrUnsuccessfulAction
	}
	return nil
}
