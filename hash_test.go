package meta2bseek

import (
	"math/rand"
	"testing"
)

func randomMer(k int, r *rand.Rand) []byte {
	bases := []byte("ACGT")
	b := make([]byte, k)
	for i := range b {
		b[i] = bases[r.Intn(4)]
	}
	return b
}

func TestEncodeDecodeACGT(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 1000; i++ {
		k := 1 + r.Intn(32)
		mer := randomMer(k, r)
		code, err := EncodeACGT(mer)
		if err != nil {
			t.Fatal(err)
		}
		if got := DecodeACGT(code, k); string(got) != string(mer) {
			t.Errorf("roundtrip: got %s want %s", got, mer)
		}
	}
}

func TestEncodeACGTRejectsNonDNA(t *testing.T) {
	if _, err := EncodeACGT([]byte("ACGN")); err != ErrIllegalBase {
		t.Errorf("expected ErrIllegalBase, got %v", err)
	}
	if _, err := EncodeACGT(nil); err != ErrKOverflow {
		t.Errorf("expected ErrKOverflow for empty input, got %v", err)
	}
}

func TestCanonicalCodeIsStrandSymmetric(t *testing.T) {
	r := rand.New(rand.NewSource(2))
	for i := 0; i < 200; i++ {
		k := 1 + r.Intn(32)
		mer := randomMer(k, r)
		fwd, err := EncodeACGT(mer)
		if err != nil {
			t.Fatal(err)
		}
		rc := ReverseComplement2bit(fwd, k)
		if CanonicalCode(fwd, k) != CanonicalCode(rc, k) {
			t.Errorf("canonical code not strand-symmetric for %s", mer)
		}
	}
}

func TestHashCanonicalKmerSkipsInvalidWindows(t *testing.T) {
	if _, err := HashCanonicalKmer([]byte("ACGTN")); err == nil {
		t.Error("expected error for window containing N")
	}
}

func TestHashSelectedThreshold(t *testing.T) {
	if !HashSelected(0, 10) {
		t.Error("hash 0 should always be selected")
	}
	if !HashSelected(5, 1) {
		t.Error("c<=1 should always select")
	}
}

func TestKmerWindowsCount(t *testing.T) {
	seq := []byte("ACGTACGTACGT")
	k := 4
	var n int
	KmerWindows(seq, k, func(pos int, h Hash) { n++ })
	if want := len(seq) - k + 1; n != want {
		t.Errorf("got %d windows, want %d", n, want)
	}
}
