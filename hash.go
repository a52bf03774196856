// Copyright © 2018 Wei Shen <shenwei356@gmail.com>
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

// Package meta2bseek implements coverage-adjusted ANI estimation and
// species-level profiling of metagenomic samples from 2bRAD tags and/or
// FracMinHash k-mer sketches.
package meta2bseek

import (
	"bytes"
	"errors"
	"math"
)

// Hash is the canonical identifier of a 2bRAD tag or k-mer.
type Hash = uint64

// ErrIllegalBase means a byte outside {A,C,G,T} (upper or lower case) was
// seen in a window; the window is aborted rather than guessed at.
var ErrIllegalBase = errors.New("meta2bseek: illegal base")

// ErrKOverflow means the k-mer/tag length is 0 or exceeds 32, the limit of
// a 2-bit-packed uint64.
var ErrKOverflow = errors.New("meta2bseek: length (1-32) overflow")

// EncodeACGT 2-bit-packs a strict ACGT/acgt byte slice of length 1-32 into
// a uint64, most-significant base first. Any other byte aborts the window.
func EncodeACGT(s []byte) (code uint64, err error) {
	k := len(s)
	if k == 0 || k > 32 {
		return 0, ErrKOverflow
	}
	for i := range s {
		code <<= 2
		switch s[i] {
		case 'A', 'a':
			code |= 0
		case 'C', 'c':
			code |= 1
		case 'G', 'g':
			code |= 2
		case 'T', 't':
			code |= 3
		default:
			return 0, ErrIllegalBase
		}
	}
	return code, nil
}

var bit2base = [4]byte{'A', 'C', 'G', 'T'}

// DecodeACGT converts a 2-bit-packed code of length k back to bytes.
func DecodeACGT(code uint64, k int) []byte {
	out := make([]byte, k)
	for i := k - 1; i >= 0; i-- {
		out[i] = bit2base[code&3]
		code >>= 2
	}
	return out
}

// ReverseComplement2bit returns the code of the reverse-complement of a
// k-long 2-bit-packed sequence, in one pass (no separate Reverse/Complement
// needed for the canonicalization hot path).
func ReverseComplement2bit(code uint64, k int) (rc uint64) {
	for i := 0; i < k; i++ {
		rc <<= 2
		rc |= (code & 3) ^ 3
		code >>= 2
	}
	return
}

// CanonicalCode returns the numerically smaller of code and its
// reverse-complement, per spec §3 "canonicalization: min(forward,
// reverse-complement)".
func CanonicalCode(code uint64, k int) uint64 {
	rc := ReverseComplement2bit(code, k)
	if rc < code {
		return rc
	}
	return code
}

// avalanche is the fixed 64-bit integer mix (xor/shift/multiply) used to
// turn a 2-bit-packed canonical code into a well-distributed Hash.
// https://gist.github.com/badboy/6267743 (generalized from
// unikmer/cmd/util-hash.go's hash64).
func avalanche(key uint64) uint64 {
	key = (^key) + (key << 21)
	key = key ^ (key >> 24)
	key = (key + (key << 3)) + (key << 8)
	key = key ^ (key >> 14)
	key = (key + (key << 2)) + (key << 4)
	key = key ^ (key >> 28)
	key = key + (key << 31)
	return key
}

// HashCanonicalKmer encodes, canonicalizes and hashes one k-long ACGT
// window, the full §4.B pipeline for a single window.
func HashCanonicalKmer(window []byte) (Hash, error) {
	code, err := EncodeACGT(window)
	if err != nil {
		return 0, err
	}
	return avalanche(CanonicalCode(code, len(window))), nil
}

// HashSelected reports whether hash h is FracMinHash-selected at
// subsampling denominator c: h < MaxUint64/c. c<=1 always selects.
func HashSelected(h Hash, c int) bool {
	if c <= 1 {
		return true
	}
	return h < math.MaxUint64/uint64(c)
}

// KmerWindows slides a k-wide window over seq and calls fn(pos, hash) for
// every window whose bases are all valid DNA; invalid windows are skipped
// silently (spec §7 "Format" failures), not reported as an error.
func KmerWindows(seq []byte, k int, fn func(pos int, h Hash)) {
	if k <= 0 || k > 32 || len(seq) < k {
		return
	}
	for i := 0; i+k <= len(seq); i++ {
		h, err := HashCanonicalKmer(seq[i : i+k])
		if err != nil {
			continue
		}
		fn(i, h)
	}
}

// canonicalBytes returns the lexicographically smaller of b and its
// reverse complement, used by the tag extractor (§4.C) which canonicalizes
// on byte order before hashing rather than on the numeric 2-bit code
// (patterns may contain runs longer than 32bp is never true here, but the
// comparison is defined over raw bytes per spec wording).
func canonicalBytes(b []byte) []byte {
	rc := revcompBytes(b)
	if bytes.Compare(rc, b) < 0 {
		return rc
	}
	return b
}

var complement = [256]byte{}

func init() {
	for i := range complement {
		complement[i] = byte(i)
	}
	complement['A'], complement['a'] = 'T', 't'
	complement['T'], complement['t'] = 'A', 'a'
	complement['C'], complement['c'] = 'G', 'g'
	complement['G'], complement['g'] = 'C', 'c'
}

func revcompBytes(b []byte) []byte {
	out := make([]byte, len(b))
	n := len(b)
	for i, c := range b {
		out[n-1-i] = complement[c]
	}
	return out
}

func isACGT(b byte) bool {
	switch b {
	case 'A', 'a', 'C', 'c', 'G', 'g', 'T', 't':
		return true
	}
	return false
}
