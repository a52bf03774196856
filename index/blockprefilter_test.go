package index

import (
	"bytes"
	"testing"
)

func TestBlockPrefilterRoundTrip(t *testing.T) {
	names := []string{"genomeA", "genomeB", "genomeC"}
	markers := [][]uint64{
		{10, 20, 30},
		{20, 40},
		{99},
	}
	bp := BuildBlockPrefilter(21, 16, names, markers)

	var buf bytes.Buffer
	if err := bp.WriteTo(&buf); err != nil {
		t.Fatal(err)
	}

	got, err := ReadBlockPrefilter(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if got.K != 21 || got.NumBlocks != 16 || len(got.Names) != 3 {
		t.Fatalf("unexpected header: K=%d NumBlocks=%d Names=%v", got.K, got.NumBlocks, got.Names)
	}
}

func TestCandidateGenomesSkipsDisjointGenomes(t *testing.T) {
	names := []string{"genomeA", "genomeB"}
	markers := [][]uint64{
		{10, 20, 30},
		{99},
	}
	bp := BuildBlockPrefilter(21, 8, names, markers)

	candidates := bp.CandidateGenomes([]uint64{20})
	found := false
	for _, gi := range candidates {
		if names[gi] == "genomeA" {
			found = true
		}
	}
	if !found {
		t.Error("expected genomeA to be a candidate since it owns hash 20")
	}
}

func TestBuildBlockPrefilterEmptyMarkers(t *testing.T) {
	bp := BuildBlockPrefilter(21, 4, []string{"onlyGenome"}, [][]uint64{nil})
	if cands := bp.CandidateGenomes([]uint64{1, 2, 3}); len(cands) != 0 {
		t.Errorf("genome with no markers should never be a candidate, got %v", cands)
	}
}
