package meta2bseek

import (
	"math/rand"
	"testing"
)

func syntheticCovs(n int, lambda float64, r *rand.Rand) []uint32 {
	covs := make([]uint32, n)
	for i := range covs {
		covs[i] = uint32(r.ExpFloat64() * lambda)
	}
	return covs
}

func TestEstimateANIHighCoverageUsesNaive(t *testing.T) {
	c := &ContainmentResult{
		SharedCount: 100,
		MarkerTotal: 100,
		MedianCov:   50,
		NaiveANI:    0.97,
		FullCovs:    syntheticCovs(100, 50, rand.New(rand.NewSource(1))),
	}
	est := estimateANI(c, 21, EstimatorRatio)
	if est.Class != CoverageHigh {
		t.Errorf("expected CoverageHigh, got %v", est.Class)
	}
	if est.AdjustedANI != c.NaiveANI {
		t.Errorf("high-coverage path should fall back to naive ANI")
	}
}

func TestEstimateANIAdjustedWithinBounds(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	covs := make([]uint32, 1000)
	for i := range covs {
		if r.Float64() < 0.8 {
			covs[i] = uint32(r.ExpFloat64()*3) + 1
		}
	}
	shared := 0
	for _, c := range covs {
		if c > 0 {
			shared++
		}
	}
	c := &ContainmentResult{
		SharedCount: shared,
		MarkerTotal: len(covs),
		MedianCov:   medianUint32(sortedCopy(covs)),
		NaiveANI:    0.9,
		FullCovs:    covs,
	}
	for _, policy := range []EstimatorPolicy{EstimatorRatio, EstimatorMoments, EstimatorZIPMLE, EstimatorNegBinomial} {
		est := estimateANI(c, 21, policy)
		if est.AdjustedANI < 0 || est.AdjustedANI > 1 {
			t.Errorf("policy %v: adjusted ANI out of bounds: %v", policy, est.AdjustedANI)
		}
	}
}

func TestBootstrapANISuppressedWhenSparse(t *testing.T) {
	c := &ContainmentResult{SharedCount: 0, MarkerTotal: 0, FullCovs: nil}
	if _, _, ok := BootstrapANI(c, 21, EstimatorRatio, rand.New(rand.NewSource(1))); ok {
		t.Error("expected bootstrap to report not-ok for an empty containment result")
	}
}
