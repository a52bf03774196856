package meta2bseek

import "testing"

func TestExactDeduplicator(t *testing.T) {
	d := NewExactDeduplicator(4)
	fp := FingerprintRead([]byte("ACGTACGT"))
	var kmer Hash = 42
	if d.SeenOrAdd(kmer, fp) {
		t.Error("first sighting should not be reported as seen")
	}
	if !d.SeenOrAdd(kmer, fp) {
		t.Error("second sighting should be reported as seen")
	}
}

func TestExactDeduplicatorPerKmerGranularity(t *testing.T) {
	d := NewExactDeduplicator(4)
	fp := FingerprintRead([]byte("ACGTACGT"))
	if d.SeenOrAdd(Hash(1), fp) {
		t.Error("first sighting of kmer 1 under fp should not be reported as seen")
	}
	if d.SeenOrAdd(Hash(2), fp) {
		t.Error("a different kmer sharing the same fingerprint must still be counted")
	}
	if !d.SeenOrAdd(Hash(1), fp) {
		t.Error("repeat of (kmer 1, fp) should be reported as seen")
	}
	if !d.SeenOrAdd(Hash(2), fp) {
		t.Error("repeat of (kmer 2, fp) should be reported as seen")
	}
}

func TestFingerprintPairOrderIndependent(t *testing.T) {
	a, b := []byte("ACGTACGT"), []byte("TTTTGGGG")
	if FingerprintPair(a, b) != FingerprintPair(b, a) {
		t.Error("pair fingerprint should not depend on mate order")
	}
}

func TestCuckooDeduplicatorBasic(t *testing.T) {
	d := NewCuckooDeduplicator(1000, 0.01)
	fp := FingerprintRead([]byte("GGGGCCCCAAAATTTT"))
	var kmer Hash = 7
	if d.SeenOrAdd(kmer, fp) {
		t.Error("first sighting should not be reported as seen")
	}
	if !d.SeenOrAdd(kmer, fp) {
		t.Error("second sighting should be reported as seen")
	}
}
