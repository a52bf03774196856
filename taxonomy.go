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
	"math"
	"strings"

	"github.com/shenwei356/breader"
)

// gtdbRanks is the fixed rank order of a GTDB taxonomy string.
var gtdbRanks = [7]string{"d__", "p__", "c__", "o__", "f__", "g__", "s__"}

// TaxonomyRecord is one accession's parsed 7-rank GTDB lineage.
type TaxonomyRecord struct {
	Accession string
	Ranks     [7]string // domain, phylum, class, order, family, genus, species
}

// SpeciesKey is the concatenation of all seven ranks, used to group
// genomes into species for abundance rollup (§4.K).
func (r TaxonomyRecord) SpeciesKey() string {
	return strings.Join(r.Ranks[:], ";")
}

// Taxonomy maps reference accessions to their parsed GTDB lineage.
type Taxonomy struct {
	byAccession map[string]TaxonomyRecord
}

// NewGTDBTaxonomy loads a tab-separated accession -> GTDB taxonomy-string
// file, generalizing the buffered-TSV-reader idiom used for NCBI
// nodes.dmp parsing to GTDB's rank-string format. Each accession is
// registered twice: as given, and with a trailing "_genomic" suffix
// stripped or absent-added, absorbing the dataset-naming quirks
// reference FASTA filenames commonly carry.
func NewGTDBTaxonomy(file string) (*Taxonomy, error) {
	parseFunc := func(line string) (interface{}, bool, error) {
		items := strings.SplitN(line, "\t", 2)
		if len(items) != 2 {
			return nil, false, nil
		}
		rec, err := parseGTDBString(items[0], items[1])
		if err != nil {
			return nil, false, err
		}
		return rec, true, nil
	}

	reader, err := breader.NewBufferedReader(file, 8, 100, parseFunc)
	if err != nil {
		return nil, fmt.Errorf("meta2bseek: %w", err)
	}

	t := &Taxonomy{byAccession: make(map[string]TaxonomyRecord, 1024)}
	for chunk := range reader.Ch {
		if chunk.Err != nil {
			return nil, fmt.Errorf("meta2bseek: %w", chunk.Err)
		}
		for _, data := range chunk.Data {
			rec := data.(TaxonomyRecord)
			t.register(rec)
		}
	}
	return t, nil
}

func (t *Taxonomy) register(rec TaxonomyRecord) {
	t.byAccession[rec.Accession] = rec
	alt := accessionVariant(rec.Accession)
	if _, exists := t.byAccession[alt]; !exists {
		t.byAccession[alt] = rec
	}
}

// accessionVariant toggles a trailing "_genomic" suffix, so lookups work
// whether genome_source came from the raw accession or the FASTA filename
// stem NCBI/GTDB datasets commonly ship with.
func accessionVariant(accession string) string {
	if strings.HasSuffix(accession, "_genomic") {
		return strings.TrimSuffix(accession, "_genomic")
	}
	return accession + "_genomic"
}

// Lookup resolves a reference's genome_source to its TaxonomyRecord.
func (t *Taxonomy) Lookup(genomeSource string) (TaxonomyRecord, bool) {
	rec, ok := t.byAccession[genomeSource]
	return rec, ok
}

// parseGTDBString parses "d__Bacteria;p__...;...;s__Escherichia coli"
// into the fixed 7-rank array.
func parseGTDBString(accession, taxonomy string) (TaxonomyRecord, error) {
	parts := strings.Split(taxonomy, ";")
	var rec TaxonomyRecord
	rec.Accession = accession
	for _, p := range parts {
		p = strings.TrimSpace(p)
		for i, prefix := range gtdbRanks {
			if strings.HasPrefix(p, prefix) {
				rec.Ranks[i] = p
				break
			}
		}
	}
	return rec, nil
}

// SpeciesAbundance is one species-level row of the taxonomic aggregation
// in §4.K: per-sample genome abundances grouped by SpeciesKey.
type SpeciesAbundance struct {
	SpeciesKey        string
	TaxonomicAbundance float64
	SequenceAbundance  float64
	MarkerTotal        int
	ReadsProxy         int // sum of shared_count across member genomes
	GScore             float64
}

// AggregateSpecies groups per-genome profiler results by species key,
// summing abundances/marker totals/shared counts, and computes the
// G-score per species (§4.K: G = sqrt(reads_proxy * marker_total)).
func AggregateSpecies(results []ProfileResult, tax *Taxonomy) []SpeciesAbundance {
	type accum struct {
		taxAbund, seqAbund float64
		markerTotal        int
		readsProxy         int
	}
	bySpecies := make(map[string]*accum)
	order := make([]string, 0)

	for _, r := range results {
		rec, ok := tax.Lookup(r.GenomeSource)
		key := r.GenomeSource
		if ok {
			key = rec.SpeciesKey()
		}
		a, exists := bySpecies[key]
		if !exists {
			a = &accum{}
			bySpecies[key] = a
			order = append(order, key)
		}
		a.taxAbund += r.TaxonomicAbundance
		a.seqAbund += r.SequenceAbundance
		a.markerTotal += r.MarkerTotal
		a.readsProxy += r.SharedCount
	}

	out := make([]SpeciesAbundance, 0, len(order))
	for _, key := range order {
		a := bySpecies[key]
		out = append(out, SpeciesAbundance{
			SpeciesKey:         key,
			TaxonomicAbundance: a.taxAbund,
			SequenceAbundance:  a.seqAbund,
			MarkerTotal:        a.markerTotal,
			ReadsProxy:         a.readsProxy,
			GScore:             math.Sqrt(float64(a.readsProxy) * float64(a.markerTotal)),
		})
	}
	return out
}

// FilterByGScore removes species whose G-score falls below threshold,
// returning the retained (post-filter) slice in a new slice; the input
// slice is left unchanged.
func FilterByGScore(species []SpeciesAbundance, threshold float64) []SpeciesAbundance {
	out := make([]SpeciesAbundance, 0, len(species))
	for _, s := range species {
		if s.GScore >= threshold {
			out = append(out, s)
		}
	}
	return out
}
