package meta2bseek

import (
	"testing"

	"github.com/shenwei356/bio/seq"
)

func mustSeq(t *testing.T, name, s string) *seq.Seq {
	t.Helper()
	sq, err := seq.NewSeq(seq.DNA, []byte(s))
	if err != nil {
		t.Fatal(err)
	}
	sq.Name = []byte(name)
	return sq
}

func TestBuildGenomeSketchEnforcesSpacing(t *testing.T) {
	bases := make([]byte, 0, 400)
	for i := 0; i < 400; i++ {
		bases = append(bases, "ACGT"[i%4])
	}
	contig := mustSeq(t, "contig1", string(bases))

	sketches := BuildGenomeSketch("genome1", []*seq.Seq{contig}, 15, 1, 50, false)
	if len(sketches) != 1 {
		t.Fatalf("expected one sketch, got %d", len(sketches))
	}
	entries := sketches[0].Entries
	for i := 1; i < len(entries); i++ {
		if entries[i].ContigIdx == entries[i-1].ContigIdx &&
			entries[i].Position-entries[i-1].Position <= 50 {
			t.Errorf("markers %d,%d not strictly greater than min spacing: %d,%d", i-1, i, entries[i-1].Position, entries[i].Position)
		}
	}
}

func TestSpaceMarkersRejectsExactSpacing(t *testing.T) {
	unique := markerTriples{
		{hash: 1, contigIdx: 0, position: 0},
		{hash: 2, contigIdx: 0, position: 50},
		{hash: 3, contigIdx: 0, position: 101},
	}
	entries := spaceMarkers(unique, 50, -1)
	if len(entries) != 2 {
		t.Fatalf("expected marker at exactly min spacing to be rejected, got %d entries: %+v", len(entries), entries)
	}
	if entries[0].Position != 0 || entries[1].Position != 101 {
		t.Errorf("unexpected entries kept: %+v", entries)
	}
}

func TestBuildGenomeSketchIndividualPerContig(t *testing.T) {
	c1 := mustSeq(t, "c1", "ACGTACGTACGTACGTACGTACGTACGTACGTACGT")
	c2 := mustSeq(t, "c2", "TTTTGGGGCCCCAAAATTTTGGGGCCCCAAAATTTT")

	sketches := BuildGenomeSketch("genome1", []*seq.Seq{c1, c2}, 11, 1, 5, true)
	if len(sketches) == 0 {
		t.Fatal("expected at least one per-contig sketch")
	}
}

func TestMarkerTriplesSortOrder(t *testing.T) {
	triples := markerTriples{
		{hash: 5, contigIdx: 1, position: 3},
		{hash: 1, contigIdx: 0, position: 9},
		{hash: 1, contigIdx: 0, position: 1},
	}
	if !triples.Less(2, 1) {
		t.Error("same hash and contig: lower position should sort first")
	}
	if !triples.Less(1, 0) || triples.Less(0, 1) {
		t.Error("lower hash should sort first regardless of contig and position")
	}
}
