package meta2bseek

import "testing"

func TestBuildSampleSketchSortsByHash(t *testing.T) {
	seq := &SequenceSketch{K: 21, C: 10, Counts: map[Hash]uint32{30: 1, 10: 5, 20: 2}}
	sketch := BuildSampleSketch("sample1", seq)
	if len(sketch.Entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(sketch.Entries))
	}
	for i := 1; i < len(sketch.Entries); i++ {
		if sketch.Entries[i].Hash < sketch.Entries[i-1].Hash {
			t.Fatalf("entries not sorted at %d", i)
		}
	}
}

func TestBuildSampleSketchCarriesBookkeepingFields(t *testing.T) {
	seq := &SequenceSketch{
		K: 21, C: 10, Paired: true, SampleName: "S1", MeanReadLength: 150.5,
		Counts: map[Hash]uint32{1: 1},
	}
	sketch := BuildSampleSketch("sample1", seq)
	if !sketch.Paired || sketch.SampleName != "S1" || sketch.MeanReadLength != 150.5 {
		t.Errorf("bookkeeping fields not carried through: %+v", sketch)
	}
}

func TestGroupFilesBySamplePaired(t *testing.T) {
	groups, err := GroupFilesBySample([]string{"a_R1.fq", "a_R2.fq", "b_R1.fq", "b_R2.fq"}, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(groups))
	}
	for _, g := range groups {
		if len(g.Files) != 2 {
			t.Errorf("expected pair of files, got %v", g.Files)
		}
	}
}

func TestGroupFilesBySampleSingle(t *testing.T) {
	groups, err := GroupFilesBySample([]string{"a.fq", "b.fq"}, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(groups))
	}
}

func TestMemoryGateNoLimitReturnsImmediately(t *testing.T) {
	g := NewMemoryGate(0)
	g.WaitIfOverBudget() // must not block
}
