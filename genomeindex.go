package meta2bseek

import (
	"github.com/shenwei356/bio/seq"
	"github.com/twotwotwo/sorts"
)

// GenomeIndexEntry is one unique marker retained for a reference genome:
// its canonical hash, the contig it came from, and its 0-based position on
// that contig, subject to the minimum inter-marker spacing invariant
// (§3 "no two entries of the same contig are closer than min_spacing").
type GenomeIndexEntry struct {
	Hash      Hash
	ContigIdx int
	Position  uint32
}

// GenomeSketch is the full marker set built for one genome (or, with
// --individual, for one contig of a genome).
type GenomeSketch struct {
	Name    string
	Entries []GenomeIndexEntry
}

// markerTriple is a (hash, contig, position) sort key, generalizing the
// teacher's single-field KmerCodeSlice sort type (which the teacher itself
// carried as two byte-identical copies, kmer_sort.go/kmer-sort.go) to the
// three-field tuple the genome index builder needs.
type markerTriple struct {
	hash      Hash
	contigIdx int
	position  uint32
}

type markerTriples []markerTriple

func (m markerTriples) Len() int { return len(m) }
func (m markerTriples) Less(i, j int) bool {
	if m[i].hash != m[j].hash {
		return m[i].hash < m[j].hash
	}
	if m[i].contigIdx != m[j].contigIdx {
		return m[i].contigIdx < m[j].contigIdx
	}
	return m[i].position < m[j].position
}
func (m markerTriples) Swap(i, j int) { m[i], m[j] = m[j], m[i] }

// BuildGenomeSketch runs the five-step genome index build (§4.E):
//  1. hash every k-mer window of every contig;
//  2. form (hash, contig, position) triples;
//  3. sort the triples (parallel, by hash then contig then position);
//  4. drop hashes that are not unique to this genome;
//  5. enforce the minimum inter-marker spacing per contig, keeping the
//     first marker in any run closer than minSpacing.
//
// When individual is true, one GenomeSketch is returned per contig instead
// of one for the whole genome (spec §4.E step 5 / SPEC_FULL §4), named from
// each contig's own seq.Seq.Name.
func BuildGenomeSketch(name string, contigs []*seq.Seq, k, c, minSpacing int, individual bool) []*GenomeSketch {
	var triples markerTriples
	for ci, contig := range contigs {
		KmerWindows(contig.Seq, k, func(pos int, h Hash) {
			if !HashSelected(h, c) {
				return
			}
			triples = append(triples, markerTriple{hash: h, contigIdx: ci, position: uint32(pos)})
		})
	}

	sorts.Quicksort(triples)

	unique := uniqueHashes(triples)

	if !individual {
		entries := spaceMarkers(unique, minSpacing, -1)
		return []*GenomeSketch{{Name: name, Entries: entries}}
	}

	sketches := make([]*GenomeSketch, 0, len(contigs))
	for ci, contig := range contigs {
		entries := spaceMarkers(unique, minSpacing, ci)
		if len(entries) == 0 {
			continue
		}
		sketches = append(sketches, &GenomeSketch{Name: string(contig.Name), Entries: entries})
	}
	if len(sketches) == 0 {
		return []*GenomeSketch{{Name: name}}
	}
	return sketches
}

// TagPosition is one 2bRAD tag hash located on a contig, the enzyme-path
// analogue of the (hash, contig, position) triples KmerWindows produces for
// the sketch path.
type TagPosition struct {
	Hash      Hash
	ContigIdx int
	Position  uint32
}

// BuildGenomeSketchFromTags runs the same uniqueness-then-spacing pipeline
// as BuildGenomeSketch (§4.E steps 3-5), but over pre-extracted 2bRAD tag
// hashes rather than hashing every k-mer window, for the `extract`
// subcommand (spec §6).
func BuildGenomeSketchFromTags(name string, tags []TagPosition, minSpacing int, individual bool, numContigs int, contigName func(int) string) []*GenomeSketch {
	triples := make(markerTriples, len(tags))
	for i, t := range tags {
		triples[i] = markerTriple{hash: t.Hash, contigIdx: t.ContigIdx, position: t.Position}
	}
	sorts.Quicksort(triples)

	unique := uniqueHashes(triples)

	if !individual {
		entries := spaceMarkers(unique, minSpacing, -1)
		return []*GenomeSketch{{Name: name, Entries: entries}}
	}

	sketches := make([]*GenomeSketch, 0, numContigs)
	for ci := 0; ci < numContigs; ci++ {
		entries := spaceMarkers(unique, minSpacing, ci)
		if len(entries) == 0 {
			continue
		}
		sketches = append(sketches, &GenomeSketch{Name: contigName(ci), Entries: entries})
	}
	if len(sketches) == 0 {
		return []*GenomeSketch{{Name: name}}
	}
	return sketches
}

// uniqueHashes filters a hash-sorted triple list down to hashes that occur
// exactly once across the whole genome (§4.E step 4).
func uniqueHashes(triples markerTriples) markerTriples {
	out := make(markerTriples, 0, len(triples))
	i := 0
	for i < len(triples) {
		j := i + 1
		for j < len(triples) && triples[j].hash == triples[i].hash {
			j++
		}
		if j-i == 1 {
			out = append(out, triples[i])
		}
		i = j
	}
	return out
}

// spaceMarkers walks unique markers in (contig, position) order and keeps
// a marker only if it is more than minSpacing bases from the last kept
// marker on the same contig. If contigFilter >= 0, only that contig's
// markers are considered.
func spaceMarkers(unique markerTriples, minSpacing int, contigFilter int) []GenomeIndexEntry {
	byContig := make(markerTriples, len(unique))
	copy(byContig, unique)
	sorts.Quicksort(byContigPosition(byContig))

	var entries []GenomeIndexEntry
	lastContig := -1
	var lastPos uint32
	first := true
	for _, t := range byContig {
		if contigFilter >= 0 && t.contigIdx != contigFilter {
			continue
		}
		if t.contigIdx != lastContig {
			first = true
		}
		if !first && int(t.position-lastPos) <= minSpacing {
			continue
		}
		entries = append(entries, GenomeIndexEntry{Hash: t.hash, ContigIdx: t.contigIdx, Position: t.position})
		lastContig = t.contigIdx
		lastPos = t.position
		first = false
	}
	return entries
}

// byContigPosition reorders markerTriples by (contig, position) for the
// spacing pass, distinct from markerTriples' own (hash, contig, position)
// ordering used for the uniqueness pass.
type byContigPosition markerTriples

func (m byContigPosition) Len() int { return len(m) }
func (m byContigPosition) Less(i, j int) bool {
	if m[i].contigIdx != m[j].contigIdx {
		return m[i].contigIdx < m[j].contigIdx
	}
	return m[i].position < m[j].position
}
func (m byContigPosition) Swap(i, j int) { m[i], m[j] = m[j], m[i] }
