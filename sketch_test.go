package meta2bseek

import (
	"testing"

	"github.com/shenwei356/bio/seq"
)

func TestSketchSequenceNonEmptyAndSorted(t *testing.T) {
	bases := make([]byte, 2000)
	for i := range bases {
		bases[i] = "ACGT"[i%4]
	}
	s, err := seq.NewSeq(seq.DNA, bases)
	if err != nil {
		t.Fatal(err)
	}

	sketch, err := SketchSequence(s, 21, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(sketch.Counts) == 0 {
		t.Error("expected nonempty sketch at c=1")
	}
	hashes := sketch.SortedHashes()
	for i := 1; i < len(hashes); i++ {
		if hashes[i] < hashes[i-1] {
			t.Fatalf("hashes not sorted at index %d", i)
		}
	}
}

func TestSketchSequenceRejectsShort(t *testing.T) {
	s, err := seq.NewSeq(seq.DNA, []byte("ACGT"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := SketchSequence(s, 21, 1); err != ErrShortSeq {
		t.Errorf("expected ErrShortSeq, got %v", err)
	}
}

func TestPairAwareSketchDedupesReads(t *testing.T) {
	dedup := NewExactDeduplicator(10)
	acc := NewPairAwareSketch(15, 1, dedup, false, "sample1")

	read := []byte("ACGTACGTACGTACGTACGT")
	fp := FingerprintRead(read)
	acc.AddRead(fp, read)
	acc.AddRead(fp, read) // same fingerprint, but re-observes the same kmers

	sketch := acc.Finish()
	if len(sketch.Counts) == 0 {
		t.Error("expected some hashes from the first (non-duplicate) read")
	}
	for h, n := range sketch.Counts {
		if n != 1 {
			t.Errorf("hash %d: count = %d, want 1 (second read shares fp and kmers, so is a true duplicate)", h, n)
		}
	}
	if sketch.SampleName != "sample1" {
		t.Errorf("SampleName = %q, want %q", sketch.SampleName, "sample1")
	}
	if sketch.MeanReadLength != float64(len(read)) {
		t.Errorf("MeanReadLength = %v, want %v", sketch.MeanReadLength, len(read))
	}
}

func TestPairAwareSketchCountsDistinctKmersSharingFingerprint(t *testing.T) {
	dedup := NewExactDeduplicator(10)
	acc := NewPairAwareSketch(15, 1, dedup, false, "")

	readA := []byte("ACGTACGTACGTACGTACGT")
	readB := []byte("TTTTGGGGCCCCAAAATTTTG")
	// Force both reads onto the same fingerprint to exercise per-kmer
	// (not per-read) dedup granularity.
	fp := FingerprintRead(readA)
	acc.AddRead(fp, readA)
	acc.AddRead(fp, readB)

	sketch := acc.Finish()
	var direct int
	seen := make(map[Hash]bool)
	for _, r := range [][]byte{readA, readB} {
		KmerWindows(r, 15, func(_ int, h Hash) {
			if !seen[h] {
				seen[h] = true
				direct++
			}
		})
	}
	if len(sketch.Counts) != direct {
		t.Errorf("got %d distinct hashes, want %d: a read sharing a fingerprint with an earlier read must still contribute its own k-mers", len(sketch.Counts), direct)
	}
}
