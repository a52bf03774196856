package meta2bseek

import (
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/stat/distuv"
)

// EstimatorPolicy selects which of the four coverage estimators
// estimateLambda uses (spec §4.I).
type EstimatorPolicy int

const (
	// EstimatorRatio is the default: lambda from the ratio of successive
	// occupancy counts at low coverage.
	EstimatorRatio EstimatorPolicy = iota
	// EstimatorMoments equates the empirical mean/variance of the
	// truncated-at-zero coverage distribution.
	EstimatorMoments
	// EstimatorZIPMLE numerically solves the zero-inflated-Poisson
	// log-likelihood's derivative.
	EstimatorZIPMLE
	// EstimatorNegBinomial binary-searches a negative-binomial fit.
	EstimatorNegBinomial
)

// MedianANIThreshold is the median-coverage cutoff above which the sample
// is declared "High" coverage and no Poisson-rate adjustment is attempted
// (spec §4.I).
const MedianANIThreshold = 30.0

// CoverageClass records which branch of the §4.I classification an
// estimate took.
type CoverageClass int

const (
	// CoverageAdjusted means a usable lambda was found and containment was
	// adjusted by it.
	CoverageAdjusted CoverageClass = iota
	// CoverageHigh means median_cov exceeded MedianANIThreshold; naive ANI
	// is used as-is.
	CoverageHigh
	// CoverageLow means the chosen estimator failed to find a usable root;
	// naive ANI is used as a fallback.
	CoverageLow
)

// ANIEstimate is the result of estimateANI (§4.I).
type ANIEstimate struct {
	Class        CoverageClass
	Lambda       float64 // usable coverage estimate, see FinalCoverage
	AdjustedANI  float64
	FinalCoverage float64
}

// EstimateANI runs the full §4.I classification and adjustment pipeline
// given a containment result and estimator policy.
func EstimateANI(c *ContainmentResult, k int, policy EstimatorPolicy) ANIEstimate {
	return estimateANI(c, k, policy)
}

// estimateANI is the unexported implementation shared by EstimateANI and
// the profiler/bootstrap internals.
func estimateANI(c *ContainmentResult, k int, policy EstimatorPolicy) ANIEstimate {
	if c.MedianCov > MedianANIThreshold {
		return ANIEstimate{Class: CoverageHigh, AdjustedANI: c.NaiveANI, FinalCoverage: c.MedianCov}
	}

	lambda, ok := estimateLambda(c.FullCovs, policy)
	if !ok {
		cov := c.MeanCovOverShared
		if c.MedianCov > 0 {
			cov = c.MedianCov
		}
		return ANIEstimate{Class: CoverageLow, AdjustedANI: c.NaiveANI, FinalCoverage: cov}
	}

	containmentAdj := float64(c.SharedCount) / (1 - math.Exp(-lambda)) / float64(c.MarkerTotal)
	adjustedANI := math.Pow(containmentAdj, 1.0/float64(k))
	if adjustedANI > 1 {
		adjustedANI = 1
	}
	if adjustedANI < 0 {
		adjustedANI = 0
	}
	return ANIEstimate{Class: CoverageAdjusted, Lambda: lambda, AdjustedANI: adjustedANI, FinalCoverage: lambda}
}

// estimateLambda is the single entry point dispatching across the four
// selectable estimators (spec §9 "closed set of variants" dynamic
// dispatch). ok is false when the policy's method finds no usable
// positive root.
func estimateLambda(fullCovs []uint32, policy EstimatorPolicy) (lambda float64, ok bool) {
	switch policy {
	case EstimatorMoments:
		return estimateLambdaMoments(fullCovs)
	case EstimatorZIPMLE:
		return estimateLambdaZIPMLE(fullCovs)
	case EstimatorNegBinomial:
		return estimateLambdaNegBinomial(fullCovs)
	default:
		return estimateLambdaRatio(fullCovs)
	}
}

// minCountForRatio guards the ratio estimator against instability when too
// few markers have nonzero coverage to form a reliable occupancy ratio.
const minCountForRatio = 5

// estimateLambdaRatio estimates lambda from N_{i+1}/N_i, the ratio of
// occupancy counts at consecutive coverage levels, which for a Poisson(λ)
// process equals λ/(i+1).
func estimateLambdaRatio(fullCovs []uint32) (float64, bool) {
	hist := histogram(fullCovs)
	if len(hist) < 2 {
		return 0, false
	}
	var total, weighted float64
	for i := 0; i < len(hist)-1; i++ {
		ni, ni1 := hist[i], hist[i+1]
		if ni < minCountForRatio {
			continue
		}
		ratio := float64(ni1) / float64(ni)
		lambda := ratio * float64(i+1)
		if lambda <= 0 {
			continue
		}
		weighted += lambda * float64(ni)
		total += float64(ni)
	}
	if total == 0 {
		return 0, false
	}
	return weighted / total, true
}

// estimateLambdaMoments equates the empirical mean and variance of the
// coverage distribution truncated at zero (nonzero entries only).
func estimateLambdaMoments(fullCovs []uint32) (float64, bool) {
	var nonzero []float64
	for _, c := range fullCovs {
		if c > 0 {
			nonzero = append(nonzero, float64(c))
		}
	}
	if len(nonzero) < 2 {
		return 0, false
	}
	mean := meanFloat(nonzero)
	if mean <= 0 {
		return 0, false
	}
	// A zero-truncated Poisson(lambda) has variance mean*(1+lambda-mean).
	variance := varianceFloat(nonzero, mean)
	lambda := variance/mean + mean - 1
	if lambda <= 0 {
		return 0, false
	}
	return lambda, true
}

// estimateLambdaZIPMLE numerically solves for the Poisson rate component
// of a zero-inflated-Poisson fit via bisection on the log-likelihood
// derivative, avoiding a closed-form (the ZIP MLE has none).
func estimateLambdaZIPMLE(fullCovs []uint32) (float64, bool) {
	n := len(fullCovs)
	if n == 0 {
		return 0, false
	}
	var zeros int
	var sum float64
	for _, c := range fullCovs {
		if c == 0 {
			zeros++
		}
		sum += float64(c)
	}
	mean := sum / float64(n)
	if mean <= 0 {
		return 0, false
	}
	if zeros == n {
		return 0, false
	}
	meanNonzero := sum / float64(n-zeros)

	// With the zero-inflation weight profiled out, the score equation for
	// lambda is lambda / (1 - e^-lambda) = mean of the nonzero counts.
	ll := func(lambda float64) float64 {
		return lambda - meanNonzero*(1-math.Exp(-lambda))
	}

	lo, hi := 1e-6, 50.0
	flo, fhi := ll(lo), ll(hi)
	if flo*fhi > 0 {
		return 0, false
	}
	for i := 0; i < 60; i++ {
		mid := (lo + hi) / 2
		fmid := ll(mid)
		if fmid == 0 {
			return mid, true
		}
		if flo*fmid < 0 {
			hi = mid
			fhi = fmid
		} else {
			lo = mid
			flo = fmid
		}
	}
	return (lo + hi) / 2, true
}

// estimateLambdaNegBinomial binary-searches the negative-binomial rate
// parameter whose mean matches the observed mean coverage, holding
// dispersion fixed at the method-of-moments estimate — a scalar fit, not
// a full two-parameter MLE.
func estimateLambdaNegBinomial(fullCovs []uint32) (float64, bool) {
	if len(fullCovs) == 0 {
		return 0, false
	}
	vals := make([]float64, len(fullCovs))
	for i, c := range fullCovs {
		vals[i] = float64(c)
	}
	mean := meanFloat(vals)
	if mean <= 0 {
		return 0, false
	}
	variance := varianceFloat(vals, mean)
	if variance <= mean {
		// under-dispersed relative to NB; Poisson mean is the best estimate.
		return mean, true
	}

	target := mean
	lo, hi := 1e-6, mean*4+10
	eval := func(lambda float64) float64 {
		r := lambda * lambda / (variance - mean)
		if r <= 0 {
			return math.Inf(1)
		}
		nb := distuv.NegBinomial{R: r, P: r / (r + lambda)}
		return nb.Mean() - target
	}
	flo, fhi := eval(lo), eval(hi)
	if math.IsInf(flo, 0) || math.IsInf(fhi, 0) || flo*fhi > 0 {
		return mean, true
	}
	for i := 0; i < 60; i++ {
		mid := (lo + hi) / 2
		fmid := eval(mid)
		if flo*fmid <= 0 {
			hi = mid
			fhi = fmid
		} else {
			lo = mid
			flo = fmid
		}
	}
	return (lo + hi) / 2, true
}

func histogram(covs []uint32) []int {
	var max uint32
	for _, c := range covs {
		if c > max {
			max = c
		}
	}
	hist := make([]int, max+1)
	for _, c := range covs {
		hist[c]++
	}
	return hist
}

func meanFloat(v []float64) float64 {
	var sum float64
	for _, x := range v {
		sum += x
	}
	return sum / float64(len(v))
}

func varianceFloat(v []float64, mean float64) float64 {
	var sum float64
	for _, x := range v {
		d := x - mean
		sum += d * d
	}
	return sum / float64(len(v))
}

// BootstrapANI runs the 100-resample bootstrap CI described in §4.I,
// returning the 5th/95th percentile of the adjusted ANI across resamples.
// ok is false if fewer than 50 resamples produced a usable estimate.
func BootstrapANI(c *ContainmentResult, k int, policy EstimatorPolicy, rng *rand.Rand) (lo, hi float64, ok bool) {
	const resamples = 100
	const minSuccesses = 50

	n := len(c.FullCovs)
	if n == 0 {
		return 0, 0, false
	}

	var anis []float64
	resampled := make([]uint32, n)
	for i := 0; i < resamples; i++ {
		for j := range resampled {
			resampled[j] = c.FullCovs[rng.Intn(n)]
		}
		shared := 0
		for _, v := range resampled {
			if v > 0 {
				shared++
			}
		}
		sub := &ContainmentResult{
			SharedCount: shared,
			MarkerTotal: c.MarkerTotal,
			FullCovs:    append([]uint32(nil), resampled...),
		}
		sub.MedianCov = medianUint32(sortedCopy(resampled))
		if sub.MarkerTotal > 0 {
			sub.NaiveANI = math.Pow(float64(shared)/float64(sub.MarkerTotal), 1.0/float64(k))
		}
		est := estimateANI(sub, k, policy)
		if est.Class == CoverageAdjusted {
			anis = append(anis, est.AdjustedANI)
		}
	}

	if len(anis) < minSuccesses {
		return 0, 0, false
	}
	sort.Float64s(anis)
	lo = percentile(anis, 0.05)
	hi = percentile(anis, 0.95)
	return lo, hi, true
}

// BootstrapEstimate runs the same §4.I resampling as BootstrapANI but
// reports percentile confidence intervals for both adjusted ANI and
// effective coverage (lambda) from a single pass of resamples, for the
// query subcommand's ani_ci/lambda_ci columns (§6).
func BootstrapEstimate(c *ContainmentResult, k int, policy EstimatorPolicy, rng *rand.Rand) (aniLo, aniHi, lambdaLo, lambdaHi float64, ok bool) {
	const resamples = 100
	const minSuccesses = 50

	n := len(c.FullCovs)
	if n == 0 {
		return 0, 0, 0, 0, false
	}

	var anis, lambdas []float64
	resampled := make([]uint32, n)
	for i := 0; i < resamples; i++ {
		for j := range resampled {
			resampled[j] = c.FullCovs[rng.Intn(n)]
		}
		shared := 0
		for _, v := range resampled {
			if v > 0 {
				shared++
			}
		}
		sub := &ContainmentResult{
			SharedCount: shared,
			MarkerTotal: c.MarkerTotal,
			FullCovs:    append([]uint32(nil), resampled...),
		}
		sub.MedianCov = medianUint32(sortedCopy(resampled))
		if sub.MarkerTotal > 0 {
			sub.NaiveANI = math.Pow(float64(shared)/float64(sub.MarkerTotal), 1.0/float64(k))
		}
		est := estimateANI(sub, k, policy)
		if est.Class == CoverageAdjusted {
			anis = append(anis, est.AdjustedANI)
			lambdas = append(lambdas, est.Lambda)
		}
	}

	if len(anis) < minSuccesses {
		return 0, 0, 0, 0, false
	}
	sort.Float64s(anis)
	sort.Float64s(lambdas)
	return percentile(anis, 0.05), percentile(anis, 0.95),
		percentile(lambdas, 0.05), percentile(lambdas, 0.95), true
}

func sortedCopy(v []uint32) []uint32 {
	out := append([]uint32(nil), v...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(p * float64(len(sorted)-1))
	return sorted[idx]
}
