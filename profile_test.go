package meta2bseek

import "testing"

func buildTestGenome(name string, hashes ...Hash) *GenomeSketch {
	entries := make([]GenomeIndexEntry, len(hashes))
	for i, h := range hashes {
		entries[i] = GenomeIndexEntry{Hash: h, ContigIdx: 0, Position: uint32(i * 50)}
	}
	return &GenomeSketch{Name: name, Entries: entries}
}

func TestRunProfilerDropsBelowMinANI(t *testing.T) {
	refA := buildTestGenome("refA", 1, 2, 3, 4, 5)
	sampleCounts := map[Hash]uint32{100: 1, 200: 1}

	opt := ProfileOptions{K: 21, MinANI: 0.5, MinNumberKmers: 1, Estimator: EstimatorRatio}
	results, _ := RunProfiler([]*GenomeSketch{refA}, map[string]uint64{"refA": 1000}, sampleCounts, opt)
	if len(results) != 0 {
		t.Errorf("expected no survivors for disjoint sample, got %d", len(results))
	}
}

func TestRunProfilerSurvivesFullContainment(t *testing.T) {
	hashes := []Hash{}
	for i := Hash(1); i <= 50; i++ {
		hashes = append(hashes, i)
	}
	ref := buildTestGenome("refA", hashes...)

	sampleCounts := make(map[Hash]uint32, len(hashes))
	for _, h := range hashes {
		sampleCounts[h] = 10
	}

	opt := ProfileOptions{K: 21, MinANI: 0, MinNumberKmers: 1, Estimator: EstimatorRatio}
	results, _ := RunProfiler([]*GenomeSketch{ref}, map[string]uint64{"refA": 5_000_000}, sampleCounts, opt)
	if len(results) != 1 {
		t.Fatalf("expected 1 survivor, got %d", len(results))
	}
	if results[0].SharedCount != len(hashes) {
		t.Errorf("shared count = %d, want %d", results[0].SharedCount, len(hashes))
	}
	if results[0].TaxonomicAbundance != 100 {
		t.Errorf("single-reference taxonomic abundance = %v, want 100", results[0].TaxonomicAbundance)
	}
}

func TestWinnerTableTieBreakKeepsFirstSeen(t *testing.T) {
	shared := []Hash{1, 2, 3}
	refA := buildTestGenome("refA", shared...)
	refB := buildTestGenome("refB", shared...)

	sampleCounts := map[Hash]uint32{1: 5, 2: 5, 3: 5}
	opt := ProfileOptions{K: 21, MinANI: 0, MinNumberKmers: 1, Estimator: EstimatorRatio}

	resultsA, _ := RunProfiler([]*GenomeSketch{refA, refB}, map[string]uint64{"refA": 1, "refB": 1}, sampleCounts, opt)
	resultsB, _ := RunProfiler([]*GenomeSketch{refB, refA}, map[string]uint64{"refA": 1, "refB": 1}, sampleCounts, opt)
	if len(resultsA) == 0 || len(resultsB) == 0 {
		t.Fatal("expected at least one survivor in both orderings")
	}
	if len(resultsA) != 1 || resultsA[0].GenomeSource != "refA" {
		t.Errorf("refA listed first: want only refA to keep the tied markers, got %+v", resultsA)
	}
	if len(resultsB) != 1 || resultsB[0].GenomeSource != "refB" {
		t.Errorf("refB listed first: want only refB to keep the tied markers, got %+v", resultsB)
	}
}
