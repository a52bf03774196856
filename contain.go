package meta2bseek

import (
	"errors"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat/distuv"
)

// ErrKMismatch means two indices being compared were built at different k.
var ErrKMismatch = errors.New("meta2bseek: k mismatch")

// ErrSubsampleMismatch means the sample's subsampling denominator is
// coarser than the reference's, so containment cannot be evaluated
// (spec §4.H precondition: sample-c <= reference-c).
var ErrSubsampleMismatch = errors.New("meta2bseek: sample subsampling denominator exceeds reference")

// ContainmentResult is the per-(reference,sample) statistics computed by
// EvaluateContainment (§4.H).
type ContainmentResult struct {
	SharedCount       int
	MarkerTotal       int
	Covs              []uint32 // sorted, shared markers only
	FullCovs          []uint32 // Covs padded with zeros to MarkerTotal, outliers clipped
	MedianCov         float64
	MeanCovOverShared float64
	MeanCovWithZeros  float64
	NaiveANI          float64
}

// EvaluateContainment computes the containment statistics of one reference
// genome sketch against one sample's hash->count map.
func EvaluateContainment(ref *GenomeSketch, refK int, sampleCounts map[Hash]uint32, k int) (*ContainmentResult, error) {
	if refK != k {
		return nil, ErrKMismatch
	}

	markerTotal := len(ref.Entries)
	var covs []uint32
	var sumShared, sumAll uint64
	for _, e := range ref.Entries {
		count, ok := sampleCounts[e.Hash]
		if !ok || count == 0 {
			continue
		}
		covs = append(covs, count)
		sumShared += uint64(count)
	}
	sumAll = sumShared

	sort.Slice(covs, func(i, j int) bool { return covs[i] < covs[j] })

	result := &ContainmentResult{
		SharedCount: len(covs),
		MarkerTotal: markerTotal,
		Covs:        covs,
	}

	if markerTotal == 0 {
		return result, nil
	}

	result.NaiveANI = math.Pow(float64(len(covs))/float64(markerTotal), 1.0/float64(k))

	if len(covs) > 0 {
		result.MedianCov = medianUint32(covs)
		result.MeanCovOverShared = float64(sumShared) / float64(len(covs))
	}
	result.MeanCovWithZeros = float64(sumAll) / float64(markerTotal)

	// Poisson outlier clip (§4.H): extend an upper tail at median coverage
	// when the sample is shallow, and zero out counts beyond it — real
	// sequencing depth at a unique marker shouldn't spike past what a
	// Poisson(median) process would produce at α = 1-1e-10.
	full := make([]uint32, markerTotal)
	copy(full, covs)
	if result.MedianCov > 0 && result.MedianCov < 30 {
		threshold := distuv.Poisson{Lambda: result.MedianCov}.Quantile(1 - 1e-10)
		for i, c := range full {
			if float64(c) > threshold {
				full[i] = 0
			}
		}
	}
	result.FullCovs = full

	return result, nil
}

func medianUint32(sorted []uint32) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return float64(sorted[n/2])
	}
	return (float64(sorted[n/2-1]) + float64(sorted[n/2])) / 2
}
