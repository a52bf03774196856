package meta2bseek

import (
	"math/rand"
	"sort"
)

// AniRedundancy is the default exponent base in the stability filter's
// lost-marker threshold (spec §4.J step 4).
const AniRedundancy = 0.99

// ProfileResult is one surviving reference's final profiler output row
// (spec §4.J / §6 output columns).
type ProfileResult struct {
	GenomeSource        string
	SharedCount         int
	OriginalSharedCount int // shared marker count before the winner-table reassignment pass
	MarkerTotal         int
	AdjustedANI         float64
	FinalCoverage       float64
	TaxonomicAbundance  float64
	SequenceAbundance   float64
}

// ReassignmentEdge is one (from, to) marker-ownership transfer recorded
// during the winner-table pass, for the optional reassignment-edge log
// (SPEC_FULL §4 supplemented feature).
type ReassignmentEdge struct {
	From, To string
	Count    int
}

// ProfileOptions configures one profiler run over a sample.
type ProfileOptions struct {
	K               int
	MinANI          float64
	MinNumberKmers  int
	Estimator       EstimatorPolicy
	EstimateUnknown bool
	LogReassignment bool
}

type candidateRef struct {
	sketch  *GenomeSketch
	genomeSize uint64
	contain *ContainmentResult
	est     ANIEstimate
}

// winnerEntry is one marker's current owner in the winner table (§4.J
// step 2): the best adjusted_ani seen so far and which reference earned
// it. Ties keep the first-seen reference (SPEC_FULL §5 Q1): replacement
// requires a strictly greater adjusted_ani.
type winnerEntry struct {
	bestANI float64
	genome  string
}

// RunProfiler executes the full six-step profiler state machine (§4.J)
// for one sample against a set of reference genome sketches.
func RunProfiler(refs []*GenomeSketch, genomeSizes map[string]uint64, sampleCounts map[Hash]uint32, opt ProfileOptions) ([]ProfileResult, []ReassignmentEdge) {
	// Step 1: initial pass.
	var candidates []*candidateRef
	for _, ref := range refs {
		if len(ref.Entries) < opt.MinNumberKmers {
			continue
		}
		contain, err := EvaluateContainment(ref, opt.K, sampleCounts, opt.K)
		if err != nil {
			continue
		}
		est := estimateANI(contain, opt.K, opt.Estimator)
		if est.AdjustedANI < opt.MinANI {
			continue
		}
		candidates = append(candidates, &candidateRef{sketch: ref, genomeSize: genomeSizes[ref.Name], contain: contain, est: est})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].est.AdjustedANI > candidates[j].est.AdjustedANI
	})

	// Step 2: winner table, exclusive-writer discipline (single pass here;
	// safe to parallelize per spec §5 provided writes are serialized).
	winners := make(map[Hash]winnerEntry)
	var edges []ReassignmentEdge
	edgeCounts := make(map[[2]string]int)

	for _, cand := range candidates {
		for _, entry := range cand.sketch.Entries {
			if _, inSample := sampleCounts[entry.Hash]; !inSample {
				continue
			}
			cur, exists := winners[entry.Hash]
			if !exists {
				winners[entry.Hash] = winnerEntry{bestANI: cand.est.AdjustedANI, genome: cand.sketch.Name}
				continue
			}
			if cand.est.AdjustedANI > cur.bestANI {
				if opt.LogReassignment && cur.genome != cand.sketch.Name {
					key := [2]string{cur.genome, cand.sketch.Name}
					edgeCounts[key]++
				}
				winners[entry.Hash] = winnerEntry{bestANI: cand.est.AdjustedANI, genome: cand.sketch.Name}
			}
		}
	}

	if opt.LogReassignment {
		const edgeThreshold = 2
		for k, count := range edgeCounts {
			if count >= edgeThreshold {
				edges = append(edges, ReassignmentEdge{From: k[0], To: k[1], Count: count})
			}
		}
	}

	// Step 3: reassigned pass.
	var reassignedList []reassignedCandidate
	for _, cand := range candidates {
		var reassignedCounts map[Hash]uint32
		shared := 0
		reassignedCounts = make(map[Hash]uint32, len(cand.sketch.Entries))
		for _, entry := range cand.sketch.Entries {
			count, inSample := sampleCounts[entry.Hash]
			if !inSample {
				continue
			}
			w := winners[entry.Hash]
			if w.genome != cand.sketch.Name {
				continue
			}
			reassignedCounts[entry.Hash] = count
			shared++
		}
		rc, err := EvaluateContainment(cand.sketch, opt.K, reassignedCounts, opt.K)
		if err != nil {
			continue
		}
		// The profiler computes no bootstrap CI in either pass; only the
		// reassigned pass's point estimate is recomputed fresh here (the
		// adjusted_ani used downstream).
		est := estimateANI(rc, opt.K, opt.Estimator)
		reassignedList = append(reassignedList, reassignedCandidate{cand: cand, sharedReassigned: shared, est: est})
	}

	// Step 4: stability filter.
	var survivors []reassignedCandidate
	for _, r := range reassignedList {
		lost := r.cand.contain.SharedCount - r.sharedReassigned
		threshold := float64(r.cand.contain.MarkerTotal) * pow(AniRedundancy, opt.K)
		if float64(lost) > threshold {
			continue
		}
		survivors = append(survivors, r)
	}

	// Step 5: abundance.
	var sumLambda, sumLambdaG float64
	for _, r := range survivors {
		sumLambda += r.est.FinalCoverage
		sumLambdaG += r.est.FinalCoverage * float64(r.cand.genomeSize)
	}

	basesExplained := 1.0
	if opt.EstimateUnknown {
		basesExplained = fractionExplained(survivors, winners, sampleCounts)
	}

	results := make([]ProfileResult, 0, len(survivors))
	for _, r := range survivors {
		var taxAbund, seqAbund float64
		if sumLambda > 0 {
			taxAbund = r.est.FinalCoverage / sumLambda * 100
		}
		if sumLambdaG > 0 {
			seqAbund = r.est.FinalCoverage * float64(r.cand.genomeSize) / sumLambdaG * 100 * basesExplained
		}
		results = append(results, ProfileResult{
			GenomeSource:        r.cand.sketch.Name,
			SharedCount:         r.sharedReassigned,
			OriginalSharedCount: r.cand.contain.SharedCount,
			MarkerTotal:         r.cand.contain.MarkerTotal,
			AdjustedANI:         r.est.AdjustedANI,
			FinalCoverage:       r.est.FinalCoverage,
			TaxonomicAbundance:  taxAbund,
			SequenceAbundance:   seqAbund,
		})
	}

	// Step 6: ordering.
	sort.Slice(results, func(i, j int) bool {
		if results[i].TaxonomicAbundance != results[j].TaxonomicAbundance {
			return results[i].TaxonomicAbundance > results[j].TaxonomicAbundance
		}
		if results[i].AdjustedANI != results[j].AdjustedANI {
			return results[i].AdjustedANI > results[j].AdjustedANI
		}
		return results[i].GenomeSource < results[j].GenomeSource
	})

	return results, edges
}

// reassignedCandidate is one reference after the reassigned pass (§4.J
// step 3): its recounted shared markers and recomputed estimate.
type reassignedCandidate struct {
	cand             *candidateRef
	sharedReassigned int
	est              ANIEstimate
}

// fractionExplained computes bases_explained: the fraction of sample
// k-mers that landed in any surviving reference's winner-owned marker
// set (SPEC_FULL §4 --estimate-unknown).
func fractionExplained(survivors []reassignedCandidate, winners map[Hash]winnerEntry, sampleCounts map[Hash]uint32) float64 {
	survivorNames := make(map[string]bool, len(survivors))
	for _, s := range survivors {
		survivorNames[s.cand.sketch.Name] = true
	}
	var explained, total int
	for h, count := range sampleCounts {
		total += int(count)
		if w, ok := winners[h]; ok && survivorNames[w.genome] {
			explained += int(count)
		}
	}
	if total == 0 {
		return 1.0
	}
	return float64(explained) / float64(total)
}

// pow is a tiny integer-exponent power helper avoiding a math.Pow import
// just for this one call site already covered elsewhere in the package.
func pow(base float64, exp int) float64 {
	result := 1.0
	for i := 0; i < exp; i++ {
		result *= base
	}
	return result
}

// randSource is the package-level bootstrap RNG source (§4.I); callers
// needing determinism should construct their own rand.Rand instead.
var randSource = rand.New(rand.NewSource(1))
