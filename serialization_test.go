package meta2bseek

import (
	"bytes"
	"io"
	"testing"
)

func TestGenomeIndexRoundTrip(t *testing.T) {
	sketches := []*GenomeSketch{
		{
			Name: "genomeA",
			Entries: []GenomeIndexEntry{
				{Hash: 10, ContigIdx: 0, Position: 5},
				{Hash: 99, ContigIdx: 0, Position: 120},
				{Hash: 7, ContigIdx: 1, Position: 3},
			},
		},
		{Name: "genomeB"},
	}

	var buf bytes.Buffer
	w, err := NewGenomeIndexWriter(&buf, 21, 10)
	if err != nil {
		t.Fatal(err)
	}
	for _, s := range sketches {
		if err := w.WriteSketch(s); err != nil {
			t.Fatal(err)
		}
	}

	r, err := NewGenomeIndexReader(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if r.Header.K != 21 || r.Header.C != 10 {
		t.Fatalf("header mismatch: %+v", r.Header)
	}

	for _, want := range sketches {
		got, err := r.ReadSketch()
		if err != nil {
			t.Fatal(err)
		}
		if got.Name != want.Name {
			t.Errorf("name: got %q want %q", got.Name, want.Name)
		}
		if len(got.Entries) != len(want.Entries) {
			t.Fatalf("entries: got %d want %d", len(got.Entries), len(want.Entries))
		}
		for i := range want.Entries {
			if got.Entries[i] != want.Entries[i] {
				t.Errorf("entry %d: got %+v want %+v", i, got.Entries[i], want.Entries[i])
			}
		}
	}

	if _, err := r.ReadSketch(); err != io.EOF {
		t.Errorf("expected io.EOF at end of stream, got %v", err)
	}
}

func TestSampleIndexRoundTrip(t *testing.T) {
	sketch := &SampleSketch{
		SampleSource:   "sample1.fastq.gz",
		K:              21,
		C:              10,
		Paired:         true,
		SampleName:     "S1",
		MeanReadLength: 142.25,
		Entries: []SampleIndexEntry{
			{Hash: 1, Count: 3},
			{Hash: 2, Count: 1},
			{Hash: 1000, Count: 42},
		},
	}

	var buf bytes.Buffer
	w, err := NewSampleIndexWriter(&buf, 21, 10)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.WriteSketch(sketch); err != nil {
		t.Fatal(err)
	}

	r, err := NewSampleIndexReader(&buf)
	if err != nil {
		t.Fatal(err)
	}
	got, err := r.ReadSketch()
	if err != nil {
		t.Fatal(err)
	}
	if got.SampleSource != sketch.SampleSource {
		t.Errorf("source: got %q want %q", got.SampleSource, sketch.SampleSource)
	}
	if got.Paired != sketch.Paired || got.SampleName != sketch.SampleName || got.MeanReadLength != sketch.MeanReadLength {
		t.Errorf("bookkeeping fields: got %+v want %+v", got, sketch)
	}
	for i := range sketch.Entries {
		if got.Entries[i] != sketch.Entries[i] {
			t.Errorf("entry %d: got %+v want %+v", i, got.Entries[i], sketch.Entries[i])
		}
	}
}

func TestInvalidMagicRejected(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("garbage!")
	if _, err := NewGenomeIndexReader(&buf); err != ErrInvalidFileFormat {
		t.Errorf("expected ErrInvalidFileFormat, got %v", err)
	}
}
