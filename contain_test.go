package meta2bseek

import "testing"

func TestEvaluateContainmentFullMatch(t *testing.T) {
	ref := &GenomeSketch{Entries: []GenomeIndexEntry{
		{Hash: 1, ContigIdx: 0, Position: 0},
		{Hash: 2, ContigIdx: 0, Position: 100},
		{Hash: 3, ContigIdx: 0, Position: 200},
	}}
	counts := map[Hash]uint32{1: 4, 2: 5, 3: 6}

	result, err := EvaluateContainment(ref, 21, counts, 21)
	if err != nil {
		t.Fatal(err)
	}
	if result.SharedCount != 3 {
		t.Errorf("shared = %d, want 3", result.SharedCount)
	}
	if result.NaiveANI != 1.0 {
		t.Errorf("naive ANI = %v, want 1.0 for full containment", result.NaiveANI)
	}
}

func TestEvaluateContainmentKMismatch(t *testing.T) {
	ref := &GenomeSketch{}
	if _, err := EvaluateContainment(ref, 21, nil, 31); err != ErrKMismatch {
		t.Errorf("expected ErrKMismatch, got %v", err)
	}
}

func TestEvaluateContainmentPartialMatch(t *testing.T) {
	ref := &GenomeSketch{Entries: []GenomeIndexEntry{
		{Hash: 1}, {Hash: 2}, {Hash: 3}, {Hash: 4},
	}}
	counts := map[Hash]uint32{1: 1, 2: 1}
	result, err := EvaluateContainment(ref, 21, counts, 21)
	if err != nil {
		t.Fatal(err)
	}
	if result.SharedCount != 2 || result.MarkerTotal != 4 {
		t.Errorf("got shared=%d total=%d", result.SharedCount, result.MarkerTotal)
	}
	if result.NaiveANI <= 0 || result.NaiveANI >= 1 {
		t.Errorf("naive ANI out of (0,1): %v", result.NaiveANI)
	}
}
