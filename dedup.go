package meta2bseek

import (
	"github.com/cespare/xxhash"
	boom "github.com/tylertreat/BoomFilters"
)

// ReadFingerprint is a compact identity for one read (or read pair), used
// to detect PCR/optical duplicates before a read contributes k-mers to a
// sketch. A pair gets one fingerprint built from both mates' hashes, so a
// duplicate pair is only ever counted once, not once per mate.
type ReadFingerprint uint64

// FingerprintRead hashes a single read's sequence.
func FingerprintRead(seq []byte) ReadFingerprint {
	return ReadFingerprint(xxhash.Sum64(seq))
}

// FingerprintPair hashes a read pair as one unit, order-independent so
// (R1,R2) and (R2,R1) collide to the same fingerprint.
func FingerprintPair(seq1, seq2 []byte) ReadFingerprint {
	h1 := xxhash.Sum64(seq1)
	h2 := xxhash.Sum64(seq2)
	if h1 > h2 {
		h1, h2 = h2, h1
	}
	return ReadFingerprint(avalanche(h1 ^ (h2 * 0x9E3779B97F4A7C15)))
}

// Deduplicator reports whether a (kmer, fingerprint) pair has already been
// seen. Dedup is keyed on the pair rather than on the fingerprint alone: two
// reads that happen to share a fingerprint still each contribute any k-mer
// not already observed under that fingerprint (spec §4.D "the pair
// (kmer, fingerprint)"). Three implementations back it: an exact set, a
// memory-bounded Cuckoo filter (spec §4.D "Cuckoo filter" note), and a
// no-op for --no-dedup; the filter generalizes the ScalableBloomFilter
// dedup idiom from the FASTA/Q counting loop it is modeled on.
type Deduplicator interface {
	// SeenOrAdd returns true if (kmer, fp) was already recorded, else
	// records it and returns false.
	SeenOrAdd(kmer Hash, fp ReadFingerprint) bool
}

// dedupKey is the (kmer, fingerprint) pair a Deduplicator tracks.
type dedupKey struct {
	Kmer Hash
	Fp   ReadFingerprint
}

// exactDeduplicator is a plain Go set, exact but O(n) memory.
type exactDeduplicator struct {
	seen map[dedupKey]struct{}
}

// NewExactDeduplicator returns a Deduplicator with no false positives,
// sized to hold approximately n (kmer, fingerprint) pairs.
func NewExactDeduplicator(n int) Deduplicator {
	return &exactDeduplicator{seen: make(map[dedupKey]struct{}, n)}
}

func (d *exactDeduplicator) SeenOrAdd(kmer Hash, fp ReadFingerprint) bool {
	key := dedupKey{Kmer: kmer, Fp: fp}
	if _, ok := d.seen[key]; ok {
		return true
	}
	d.seen[key] = struct{}{}
	return false
}

// cuckooDeduplicator wraps a boom.CuckooFilter, bounding memory at the
// cost of a small false-positive rate: a false positive reports an unseen
// (kmer, fingerprint) pair as already seen, so that observation is not
// counted. The filter never misses a pair it has recorded.
type cuckooDeduplicator struct {
	cf  *boom.CuckooFilter
	buf [16]byte
}

// NewCuckooDeduplicator returns a memory-bounded Deduplicator sized for
// approximately capacity distinct (kmer, fingerprint) pairs at the given
// false-positive rate; the sketch subcommand uses it unless --no-dedup is
// set. A false positive suppresses one legitimate k-mer observation; a
// true duplicate is never counted twice.
func NewCuckooDeduplicator(capacity uint, fpr float64) Deduplicator {
	if fpr <= 0 {
		fpr = 0.01
	}
	return &cuckooDeduplicator{cf: boom.NewCuckooFilter(capacity, fpr)}
}

func (d *cuckooDeduplicator) SeenOrAdd(kmer Hash, fp ReadFingerprint) bool {
	for i := 0; i < 8; i++ {
		d.buf[i] = byte(kmer >> (8 * i))
		d.buf[8+i] = byte(fp >> (8 * i))
	}
	if d.cf.Test(d.buf[:]) {
		return true
	}
	d.cf.Add(d.buf[:])
	return false
}

// noDedup is a Deduplicator that never reports a pair as seen, for
// --no-dedup (spec §6 sketch options).
type noDedup struct{}

// NewNoDedup returns a Deduplicator that disables duplicate-read detection
// entirely; every read is folded into the sketch.
func NewNoDedup() Deduplicator { return noDedup{} }

func (noDedup) SeenOrAdd(Hash, ReadFingerprint) bool { return false }
