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

// Package index stores a compact per-genome block signature next to a
// sylph-style reference collection, letting the containment evaluator and
// profiler skip an exact marker scan against a reference that provably
// shares nothing with a sample, before running the real pass.
//
// Hash space is partitioned into NumBlocks blocks; for each block the
// signature records, one bit per loaded genome, whether that genome owns
// at least one marker hashing into the block. A sample is scanned once to
// find which blocks any of its hashes touch; any reference with no bit set
// across those blocks cannot share a marker with the sample and is
// skipped outright.
package index

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Version is the version of the block-prefilter format.
const Version uint8 = 1

// Magic identifies a block-prefilter file.
var Magic = [8]byte{'.', 's', 'y', 'l', 'b', 'l', 'k', 0}

// ErrInvalidFormat means the magic number didn't match.
var ErrInvalidFormat = errors.New("meta2bseek/index: invalid block-prefilter format")

// ErrTruncated means the file ended before NumBlocks rows were read.
var ErrTruncated = errors.New("meta2bseek/index: truncated block-prefilter file")

// ErrWrongRowSize means a written row's width didn't match the genome count.
var ErrWrongRowSize = errors.New("meta2bseek/index: wrote row with wrong size")

var be = binary.BigEndian

// Header contains the prefilter's metadata: marker size, block count, and
// the ordered genome names each signature bit corresponds to.
type Header struct {
	Version   uint8
	K         int
	NumBlocks uint64
	Names     []string

	nRowBytes int // bytes per block row: one bit per genome
}

func (h Header) String() string {
	return fmt.Sprintf("meta2bseek block prefilter v%d, K=%d, NumBlocks=%d, genomes: %s",
		h.Version, h.K, h.NumBlocks, strings.Join(h.Names, ", "))
}

// Compatible reports whether two prefilters were built with the same k and
// block count, the precondition for comparing/merging them.
func (h Header) Compatible(b Header) bool {
	return h.Version == b.Version && h.K == b.K && h.NumBlocks == b.NumBlocks
}

// Reader reads block rows sequentially.
type Reader struct {
	Header
	r     io.Reader
	count uint64
}

// NewReader reads and validates a block-prefilter header.
func NewReader(r io.Reader) (*Reader, error) {
	reader := &Reader{r: r}
	if err := reader.readHeader(); err != nil {
		return nil, err
	}
	reader.nRowBytes = int((len(reader.Names) + 7) / 8)
	return reader, nil
}

func (reader *Reader) readHeader() error {
	var m [8]byte
	if err := binary.Read(reader.r, be, &m); err != nil {
		return err
	}
	if m != Magic {
		return ErrInvalidFormat
	}

	var meta [4]uint8
	if err := binary.Read(reader.r, be, &meta); err != nil {
		return err
	}
	if meta[0] != Version {
		return fmt.Errorf("meta2bseek/index: prefilter version mismatch, please rebuild")
	}
	reader.Version = meta[0]
	reader.K = int(meta[1])

	if err := binary.Read(reader.r, be, &reader.NumBlocks); err != nil {
		return err
	}

	var n uint32
	if err := binary.Read(reader.r, be, &n); err != nil {
		return err
	}
	namesData := make([]byte, n)
	if err := binary.Read(reader.r, be, &namesData); err != nil {
		return err
	}
	names := strings.Split(string(namesData), "\n")
	reader.Names = names[:len(names)-1]
	return nil
}

// ReadRow reads the bitset for the next block.
func (reader *Reader) ReadRow() ([]byte, error) {
	data := make([]byte, reader.nRowBytes)
	n, err := io.ReadFull(reader.r, data)
	if err != nil {
		if err == io.EOF && reader.count != reader.NumBlocks {
			return nil, ErrTruncated
		}
		return nil, err
	}
	if n < reader.nRowBytes {
		return nil, ErrTruncated
	}
	reader.count++
	return data, nil
}

// Writer writes block rows sequentially.
type Writer struct {
	Header
	w           io.Writer
	wroteHeader bool
	count       uint64
}

// NewWriter creates a Writer for numBlocks rows over the given genome names.
func NewWriter(w io.Writer, k int, numBlocks uint64, names []string) *Writer {
	writer := &Writer{
		Header: Header{Version: Version, K: k, NumBlocks: numBlocks, Names: names},
		w:      w,
	}
	writer.nRowBytes = int((len(names) + 7) / 8)
	return writer
}

// WriteHeader writes the file header, if not already written.
func (writer *Writer) WriteHeader() error {
	if writer.wroteHeader {
		return nil
	}
	if err := binary.Write(writer.w, be, Magic); err != nil {
		return err
	}
	if err := binary.Write(writer.w, be, [4]uint8{writer.Version, uint8(writer.K), 0, 0}); err != nil {
		return err
	}
	if err := binary.Write(writer.w, be, writer.NumBlocks); err != nil {
		return err
	}
	var n int
	for _, name := range writer.Names {
		n += len(name) + 1
	}
	if err := binary.Write(writer.w, be, uint32(n)); err != nil {
		return err
	}
	for _, name := range writer.Names {
		if err := binary.Write(writer.w, be, []byte(name+"\n")); err != nil {
			return err
		}
	}
	writer.wroteHeader = true
	return nil
}

// WriteRow appends one block's genome-membership bitset.
func (writer *Writer) WriteRow(data []byte) error {
	if len(data) != writer.nRowBytes {
		return ErrWrongRowSize
	}
	if err := writer.WriteHeader(); err != nil {
		return err
	}
	if _, err := writer.w.Write(data); err != nil {
		return err
	}
	writer.count++
	return nil
}

// BlockPrefilter is the in-memory form built during indexing and queried
// during containment/profiling, one bitset row per hash block.
type BlockPrefilter struct {
	K         int
	NumBlocks uint64
	Names     []string
	rows      [][]byte // len(rows) == NumBlocks, each len(Names+7)/8 bytes
}

// BuildBlockPrefilter builds an in-memory prefilter from a set of loaded
// genome sketches' marker hashes, hashing each marker into one of
// numBlocks blocks by hash modulo numBlocks.
func BuildBlockPrefilter(k int, numBlocks uint64, genomeNames []string, markerHashesPerGenome [][]uint64) *BlockPrefilter {
	rowBytes := (len(genomeNames) + 7) / 8
	bp := &BlockPrefilter{K: k, NumBlocks: numBlocks, Names: genomeNames, rows: make([][]byte, numBlocks)}
	for i := range bp.rows {
		bp.rows[i] = make([]byte, rowBytes)
	}
	for gi, hashes := range markerHashesPerGenome {
		byteIdx := gi / 8
		bit := byte(1) << uint(7-gi%8)
		for _, h := range hashes {
			block := blockOf(h, numBlocks)
			bp.rows[block][byteIdx] |= bit
		}
	}
	return bp
}

func blockOf(h uint64, numBlocks uint64) uint64 {
	if numBlocks == 0 {
		return 0
	}
	return h % numBlocks
}

// CandidateGenomes returns the indices (into Names) of genomes whose
// block signature overlaps at least one block touched by sampleHashes.
// Genomes not returned share provably zero markers with the sample.
func (bp *BlockPrefilter) CandidateGenomes(sampleHashes []uint64) []int {
	touched := make(map[uint64]bool)
	for _, h := range sampleHashes {
		touched[blockOf(h, bp.NumBlocks)] = true
	}

	seen := make(map[int]bool)
	var out []int
	for block := range touched {
		row := bp.rows[block]
		for gi := range bp.Names {
			byteIdx := gi / 8
			bit := byte(1) << uint(7-gi%8)
			if row[byteIdx]&bit != 0 && !seen[gi] {
				seen[gi] = true
				out = append(out, gi)
			}
		}
	}
	return out
}

// WriteTo serializes the prefilter.
func (bp *BlockPrefilter) WriteTo(w io.Writer) error {
	writer := NewWriter(w, bp.K, bp.NumBlocks, bp.Names)
	for _, row := range bp.rows {
		if err := writer.WriteRow(row); err != nil {
			return err
		}
	}
	return nil
}

// ReadBlockPrefilter deserializes a prefilter previously written by WriteTo.
func ReadBlockPrefilter(r io.Reader) (*BlockPrefilter, error) {
	reader, err := NewReader(r)
	if err != nil {
		return nil, err
	}
	bp := &BlockPrefilter{K: reader.K, NumBlocks: reader.NumBlocks, Names: reader.Names}
	for i := uint64(0); i < reader.NumBlocks; i++ {
		row, err := reader.ReadRow()
		if err != nil {
			return nil, err
		}
		bp.rows = append(bp.rows, row)
	}
	return bp, nil
}
