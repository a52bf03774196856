// Copyright © 2018-2020 Wei Shen <shenwei356@gmail.com>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package meta2bseek

import (
	"fmt"

	"github.com/shenwei356/bio/seq"
	"github.com/will-rowe/nthash"
)

// ErrInvalidK means k < 1 or k > 32.
var ErrInvalidK = fmt.Errorf("meta2bseek: invalid kmer size")

// ErrShortSeq means the sequence is shorter than k.
var ErrShortSeq = fmt.Errorf("meta2bseek: sequence shorter than k")

// MaxDedupCount is the saturation ceiling for SequenceSketch.counts: once a
// hash's observed count reaches this value, further observations of it stop
// incrementing the counter (spec §4.D "each count saturates at
// MAX_DEDUP_COUNT"; grounded on sketch.rs's MAX_DEDUP_COUNT = 10000, the
// constant actually wired into its dup_removal_exact call site).
const MaxDedupCount = 10000

// SequenceSketch is the in-memory per-sample sketch form (spec §3 "alternate
// sample form"): every hash that passed the FracMinHash threshold, paired
// with its observed read coverage count, plus the bookkeeping fields the
// profiler's coverage-adjustment pipeline needs.
type SequenceSketch struct {
	K, C int

	// Paired records whether this sketch was built from mate-paired reads.
	Paired bool
	// SampleName is an optional label distinct from the file-derived
	// sample_source (unset unless the caller supplies one).
	SampleName string
	// MeanReadLength is the streaming arithmetic mean of every read (or,
	// for a pair, both mates) folded into the sketch.
	MeanReadLength float64

	// Counts maps each selected hash to its saturating observation count.
	Counts map[Hash]uint32
}

// sortedHashKeys returns counts' keys sorted ascending.
func sortedHashKeys(counts map[Hash]uint32) []Hash {
	hashes := make([]Hash, 0, len(counts))
	for h := range counts {
		hashes = append(hashes, h)
	}
	sortHashes(hashes)
	return hashes
}

// SortedHashes returns the sketch's distinct hashes in ascending order.
func (s *SequenceSketch) SortedHashes() []Hash {
	return sortedHashKeys(s.Counts)
}

// SketchSequence builds a FracMinHash sketch of S at k-mer size k and
// subsampling denominator c, rolling a canonical ntHash across the
// sequence the way the teacher's minimizer/syncmer sketch rolls theirs,
// but selecting by the FracMinHash threshold test instead of a
// windowed-minimum rule. Every selected hash is counted once per
// occurrence within S, saturating at MaxDedupCount like the read-level
// accumulator below.
func SketchSequence(S *seq.Seq, k, c int) (*SequenceSketch, error) {
	if k < 1 || k > 32 {
		return nil, ErrInvalidK
	}
	if len(S.Seq) < k {
		return nil, ErrShortSeq
	}

	hasher, err := nthash.NewHasher(&S.Seq, uint(k))
	if err != nil {
		return nil, err
	}

	out := &SequenceSketch{K: k, C: c, Counts: make(map[Hash]uint32)}
	for {
		code, ok := hasher.Next(true) // canonical
		if !ok {
			break
		}
		h := avalanche(code)
		if !HashSelected(h, c) {
			continue
		}
		if out.Counts[h] < MaxDedupCount {
			out.Counts[h]++
		}
	}
	return out, nil
}

// sortHashes sorts a hash slice ascending with a plain in-package
// quicksort (insertion sort below 12 elements), since a per-sequence
// sketch is small relative to a whole
// genome's marker set (the bulk, parallel sort lives in genomeindex.go).
func sortHashes(h []Hash) {
	quickSortHashes(h, 0, len(h)-1)
}

func quickSortHashes(h []Hash, lo, hi int) {
	for lo < hi {
		if hi-lo < 12 {
			for i := lo + 1; i <= hi; i++ {
				for j := i; j > lo && h[j-1] > h[j]; j-- {
					h[j-1], h[j] = h[j], h[j-1]
				}
			}
			return
		}
		p := partitionHashes(h, lo, hi)
		if p-lo < hi-p {
			quickSortHashes(h, lo, p-1)
			lo = p + 1
		} else {
			quickSortHashes(h, p+1, hi)
			hi = p - 1
		}
	}
}

func partitionHashes(h []Hash, lo, hi int) int {
	pivot := h[(lo+hi)/2]
	h[(lo+hi)/2], h[hi] = h[hi], h[(lo+hi)/2]
	store := lo
	for i := lo; i < hi; i++ {
		if h[i] < pivot {
			h[i], h[store] = h[store], h[i]
			store++
		}
	}
	h[store], h[hi] = h[hi], h[store]
	return store
}

// PairAwareSketch accumulates FracMinHash hash counts across many reads (or
// read pairs). Deduplication happens per (kmer, fingerprint) pair, not per
// read: two reads that collide on the same whole-read fingerprint still
// each contribute any k-mer not already observed under that fingerprint
// (spec §4.D "the pair (kmer, fingerprint)").
type PairAwareSketch struct {
	K, C       int
	Paired     bool
	SampleName string

	dedup  Deduplicator
	counts map[Hash]uint32

	numReads uint64
	totalLen uint64
}

// NewPairAwareSketch returns a sketch accumulator backed by dedup, which
// the caller chooses (exact, Cuckoo-bounded, or the --no-dedup no-op).
// paired and sampleName are carried straight into the finished
// SequenceSketch's fields of the same name.
func NewPairAwareSketch(k, c int, dedup Deduplicator, paired bool, sampleName string) *PairAwareSketch {
	return &PairAwareSketch{
		K: k, C: c, Paired: paired, SampleName: sampleName,
		dedup: dedup, counts: make(map[Hash]uint32),
	}
}

// addHashes dedups and counts every hash yield delivers to it against fp,
// saturating at MaxDedupCount, then records seqLen as one more observation
// toward the streaming mean read length.
func (p *PairAwareSketch) addHashes(fp ReadFingerprint, seqLen int, emit func(yield func(Hash))) {
	emit(func(h Hash) {
		if p.dedup.SeenOrAdd(h, fp) {
			return
		}
		if p.counts[h] < MaxDedupCount {
			p.counts[h]++
		}
	})
	p.numReads++
	p.totalLen += uint64(seqLen)
}

// AddRead folds one read's selected k-mers into the sketch, deduplicating
// each (kmer, fp) pair independently and saturating at MaxDedupCount.
func (p *PairAwareSketch) AddRead(fp ReadFingerprint, seqBytes []byte) {
	p.addHashes(fp, len(seqBytes), func(yield func(Hash)) {
		KmerWindows(seqBytes, p.K, func(_ int, h Hash) {
			if HashSelected(h, p.C) {
				yield(h)
			}
		})
	})
}

// AddReadHashes folds a read's already-extracted, already-subsampled hashes
// (the 2bRAD tag-extraction path's analogue of AddRead's k-mer-window
// emission) into the sketch, under the same per-(hash, fp) dedup rule.
func (p *PairAwareSketch) AddReadHashes(fp ReadFingerprint, seqLen int, hashes []Hash) {
	p.addHashes(fp, seqLen, func(yield func(Hash)) {
		for _, h := range hashes {
			yield(h)
		}
	})
}

// AddPair folds a read pair's k-mers into the sketch, each mate
// deduplicated against the same pair fingerprint (spec §4.D "pair-aware").
func (p *PairAwareSketch) AddPair(fp ReadFingerprint, seq1, seq2 []byte) {
	p.AddRead(fp, seq1)
	p.AddRead(fp, seq2)
}

// Finish returns the accumulated sketch, including the streaming mean read
// length computed across every AddRead/AddPair call so far.
func (p *PairAwareSketch) Finish() *SequenceSketch {
	var meanLen float64
	if p.numReads > 0 {
		meanLen = float64(p.totalLen) / float64(p.numReads)
	}
	return &SequenceSketch{
		K: p.K, C: p.C,
		Paired:         p.Paired,
		SampleName:     p.SampleName,
		MeanReadLength: meanLen,
		Counts:         p.counts,
	}
}
