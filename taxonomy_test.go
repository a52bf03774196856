package meta2bseek

import "testing"

func TestParseGTDBString(t *testing.T) {
	rec, err := parseGTDBString("GCF_000123.1",
		"d__Bacteria;p__Proteobacteria;c__Gammaproteobacteria;o__Enterobacterales;f__Enterobacteriaceae;g__Escherichia;s__Escherichia coli")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Ranks[0] != "d__Bacteria" || rec.Ranks[6] != "s__Escherichia coli" {
		t.Errorf("unexpected ranks: %+v", rec.Ranks)
	}
}

func TestAccessionVariantToggle(t *testing.T) {
	if accessionVariant("GCF_1_genomic") != "GCF_1" {
		t.Error("should strip _genomic suffix")
	}
	if accessionVariant("GCF_1") != "GCF_1_genomic" {
		t.Error("should add _genomic suffix")
	}
}

func TestAggregateAndFilterByGScore(t *testing.T) {
	tax := &Taxonomy{byAccession: map[string]TaxonomyRecord{
		"refA": {Accession: "refA", Ranks: [7]string{"d__Bacteria", "p__P", "c__C", "o__O", "f__F", "g__G", "s__Species1"}},
		"refB": {Accession: "refB", Ranks: [7]string{"d__Bacteria", "p__P", "c__C", "o__O", "f__F", "g__G", "s__Species1"}},
	}}

	results := []ProfileResult{
		{GenomeSource: "refA", SharedCount: 100, MarkerTotal: 200, TaxonomicAbundance: 60},
		{GenomeSource: "refB", SharedCount: 50, MarkerTotal: 100, TaxonomicAbundance: 40},
	}

	species := AggregateSpecies(results, tax)
	if len(species) != 1 {
		t.Fatalf("expected one species rollup, got %d", len(species))
	}
	if species[0].ReadsProxy != 150 || species[0].MarkerTotal != 300 {
		t.Errorf("unexpected rollup: %+v", species[0])
	}

	kept := FilterByGScore(species, 1e9)
	if len(kept) != 0 {
		t.Error("expected species filtered out at an unreachable threshold")
	}
	kept = FilterByGScore(species, 0)
	if len(kept) != 1 {
		t.Error("expected species retained at threshold 0")
	}
}
