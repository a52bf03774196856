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

// This file implements the on-disk codec for *.syldb (reference/genome
// index) and *.sylsp (sample index) files, generalizing the teacher's
// length-prefixed, lazily-headered binary format to the spec's two index
// kinds (§4.G).
package meta2bseek

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// MainVersion is the main on-disk format version number.
const MainVersion uint8 = 1

// MinorVersion is the minor on-disk format version number.
const MinorVersion uint8 = 0

// MagicGenome identifies a *.syldb reference index file.
var MagicGenome = [8]byte{'.', 's', 'y', 'l', 'd', 'b', 0, 0}

// MagicSample identifies a *.sylsp sample index file.
var MagicSample = [8]byte{'.', 's', 'y', 'l', 's', 'p', 0, 0}

// ErrInvalidFileFormat means the magic number didn't match.
var ErrInvalidFileFormat = errors.New("meta2bseek: invalid binary format")

// ErrVersionMismatch means the file's MainVersion isn't supported by this
// build (spec §7 "compatibility" error class).
var ErrVersionMismatch = errors.New("meta2bseek: incompatible index version, please rebuild")

var be = binary.BigEndian

const (
	// FlagCanonical marks that markers were hashed from canonical k-mers
	// (always true in this build, kept as a flag bit for forward format
	// compatibility, as the teacher's UNIK_CANONICAL bit did).
	FlagCanonical uint32 = 1 << iota
)

// Header is the fixed-size preamble shared by both index kinds.
type Header struct {
	MainVersion  uint8
	MinorVersion uint8
	K            uint8
	C            uint32
	Flag         uint32
}

func (h Header) String() string {
	return fmt.Sprintf("meta2bseek index v%d.%d, k=%d, c=%d, flag=%#x",
		h.MainVersion, h.MinorVersion, h.K, h.C, h.Flag)
}

// GenomeIndexWriter serializes GenomeSketches to a *.syldb stream.
type GenomeIndexWriter struct {
	w           io.Writer
	header      Header
	wroteHeader bool
}

// NewGenomeIndexWriter returns a writer for a *.syldb file at the given k
// and subsampling denominator c.
func NewGenomeIndexWriter(w io.Writer, k int, c int) (*GenomeIndexWriter, error) {
	if k == 0 || k > 32 {
		return nil, ErrKOverflow
	}
	return &GenomeIndexWriter{
		w:      w,
		header: Header{MainVersion: MainVersion, MinorVersion: MinorVersion, K: uint8(k), C: uint32(c), Flag: FlagCanonical},
	}, nil
}

func (gw *GenomeIndexWriter) writeHeader() error {
	if err := binary.Write(gw.w, be, MagicGenome); err != nil {
		return err
	}
	if err := binary.Write(gw.w, be, gw.header); err != nil {
		return err
	}
	gw.wroteHeader = true
	return nil
}

// WriteSketch appends one GenomeSketch. Entries must already be sorted by
// (contig, position), as BuildGenomeSketch produces them.
func (gw *GenomeIndexWriter) WriteSketch(s *GenomeSketch) error {
	if !gw.wroteHeader {
		if err := gw.writeHeader(); err != nil {
			return err
		}
	}

	if err := writeString(gw.w, s.Name); err != nil {
		return err
	}

	groups := groupByContig(s.Entries)
	if err := binary.Write(gw.w, be, uint32(len(groups))); err != nil {
		return err
	}
	for _, g := range groups {
		if err := binary.Write(gw.w, be, uint32(g.contigIdx)); err != nil {
			return err
		}
		if err := binary.Write(gw.w, be, uint32(len(g.hashes))); err != nil {
			return err
		}
		for _, h := range g.hashes {
			if err := binary.Write(gw.w, be, h); err != nil {
				return err
			}
		}
		posBytes := encodePositionDeltas(g.positions)
		if err := binary.Write(gw.w, be, uint32(len(posBytes))); err != nil {
			return err
		}
		if _, err := gw.w.Write(posBytes); err != nil {
			return err
		}
	}
	return nil
}

type contigGroup struct {
	contigIdx int
	hashes    []Hash
	positions []uint32
}

func groupByContig(entries []GenomeIndexEntry) []contigGroup {
	var groups []contigGroup
	var cur *contigGroup
	for _, e := range entries {
		if cur == nil || cur.contigIdx != e.ContigIdx {
			groups = append(groups, contigGroup{contigIdx: e.ContigIdx})
			cur = &groups[len(groups)-1]
		}
		cur.hashes = append(cur.hashes, e.Hash)
		cur.positions = append(cur.positions, e.Position)
	}
	return groups
}

// GenomeIndexReader deserializes a *.syldb stream.
type GenomeIndexReader struct {
	r      io.Reader
	Header Header
}

// NewGenomeIndexReader reads and validates the header of a *.syldb stream.
func NewGenomeIndexReader(r io.Reader) (*GenomeIndexReader, error) {
	var m [8]byte
	if err := binary.Read(r, be, &m); err != nil {
		return nil, err
	}
	if m != MagicGenome {
		return nil, ErrInvalidFileFormat
	}
	var h Header
	if err := binary.Read(r, be, &h); err != nil {
		return nil, err
	}
	if h.MainVersion != MainVersion {
		return nil, ErrVersionMismatch
	}
	return &GenomeIndexReader{r: r, Header: h}, nil
}

// ReadSketch reads the next GenomeSketch, or io.EOF when the stream ends.
func (gr *GenomeIndexReader) ReadSketch() (*GenomeSketch, error) {
	name, err := readString(gr.r)
	if err != nil {
		return nil, err
	}

	var numGroups uint32
	if err := binary.Read(gr.r, be, &numGroups); err != nil {
		return nil, err
	}

	sketch := &GenomeSketch{Name: name}
	for i := uint32(0); i < numGroups; i++ {
		var contigIdx, count, posLen uint32
		if err := binary.Read(gr.r, be, &contigIdx); err != nil {
			return nil, err
		}
		if err := binary.Read(gr.r, be, &count); err != nil {
			return nil, err
		}
		hashes := make([]Hash, count)
		for j := range hashes {
			if err := binary.Read(gr.r, be, &hashes[j]); err != nil {
				return nil, err
			}
		}
		if err := binary.Read(gr.r, be, &posLen); err != nil {
			return nil, err
		}
		posBytes := make([]byte, posLen)
		if _, err := io.ReadFull(gr.r, posBytes); err != nil {
			return nil, err
		}
		positions := decodePositionDeltas(posBytes, int(count))
		for j := range hashes {
			sketch.Entries = append(sketch.Entries, GenomeIndexEntry{
				Hash: hashes[j], ContigIdx: int(contigIdx), Position: positions[j],
			})
		}
	}
	return sketch, nil
}

// SampleIndexWriter serializes SampleSketches to a *.sylsp stream.
type SampleIndexWriter struct {
	w           io.Writer
	header      Header
	wroteHeader bool
}

// NewSampleIndexWriter returns a writer for a *.sylsp file.
func NewSampleIndexWriter(w io.Writer, k, c int) (*SampleIndexWriter, error) {
	if k == 0 || k > 32 {
		return nil, ErrKOverflow
	}
	return &SampleIndexWriter{
		w:      w,
		header: Header{MainVersion: MainVersion, MinorVersion: MinorVersion, K: uint8(k), C: uint32(c), Flag: FlagCanonical},
	}, nil
}

// WriteSketch appends one SampleSketch (already hash-sorted).
func (sw *SampleIndexWriter) WriteSketch(s *SampleSketch) error {
	if !sw.wroteHeader {
		if err := binary.Write(sw.w, be, MagicSample); err != nil {
			return err
		}
		if err := binary.Write(sw.w, be, sw.header); err != nil {
			return err
		}
		sw.wroteHeader = true
	}

	if err := writeString(sw.w, s.SampleSource); err != nil {
		return err
	}
	if err := binary.Write(sw.w, be, s.Paired); err != nil {
		return err
	}
	if err := writeString(sw.w, s.SampleName); err != nil {
		return err
	}
	if err := binary.Write(sw.w, be, s.MeanReadLength); err != nil {
		return err
	}
	if err := binary.Write(sw.w, be, uint32(len(s.Entries))); err != nil {
		return err
	}
	for _, e := range s.Entries {
		if err := binary.Write(sw.w, be, e.Hash); err != nil {
			return err
		}
		if err := binary.Write(sw.w, be, e.Count); err != nil {
			return err
		}
	}
	return nil
}

// SampleIndexReader deserializes a *.sylsp stream.
type SampleIndexReader struct {
	r      io.Reader
	Header Header
}

// NewSampleIndexReader reads and validates the header of a *.sylsp stream.
func NewSampleIndexReader(r io.Reader) (*SampleIndexReader, error) {
	var m [8]byte
	if err := binary.Read(r, be, &m); err != nil {
		return nil, err
	}
	if m != MagicSample {
		return nil, ErrInvalidFileFormat
	}
	var h Header
	if err := binary.Read(r, be, &h); err != nil {
		return nil, err
	}
	if h.MainVersion != MainVersion {
		return nil, ErrVersionMismatch
	}
	return &SampleIndexReader{r: r, Header: h}, nil
}

// ReadSketch reads the next SampleSketch.
func (sr *SampleIndexReader) ReadSketch() (*SampleSketch, error) {
	source, err := readString(sr.r)
	if err != nil {
		return nil, err
	}
	var paired bool
	if err := binary.Read(sr.r, be, &paired); err != nil {
		return nil, err
	}
	sampleName, err := readString(sr.r)
	if err != nil {
		return nil, err
	}
	var meanReadLength float64
	if err := binary.Read(sr.r, be, &meanReadLength); err != nil {
		return nil, err
	}
	var n uint32
	if err := binary.Read(sr.r, be, &n); err != nil {
		return nil, err
	}
	entries := make([]SampleIndexEntry, n)
	for i := range entries {
		if err := binary.Read(sr.r, be, &entries[i].Hash); err != nil {
			return nil, err
		}
		if err := binary.Read(sr.r, be, &entries[i].Count); err != nil {
			return nil, err
		}
	}
	return &SampleSketch{
		SampleSource:   source,
		K:              int(sr.Header.K),
		C:              int(sr.Header.C),
		Paired:         paired,
		SampleName:     sampleName,
		MeanReadLength: meanReadLength,
		Entries:        entries,
	}, nil
}

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, be, uint32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readString(r io.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, be, &n); err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}
