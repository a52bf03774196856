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

package cmd

import (
	"fmt"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"

	"github.com/HuangShiLab/meta2bseek"
	"github.com/spf13/cobra"
)

var profileCmd = &cobra.Command{
	Use:   "profile [flags] {reference.syldb | sample.sylsp}...",
	Short: "taxonomic profiling via exclusive-writer marker reassignment",
	Long: `profile runs the exclusive-writer marker reassignment pipeline against
every loaded sample and reference, then rolls the surviving per-genome
estimates up to species level using an optional GTDB taxonomy file.
`,
	Run: func(cmd *cobra.Command, args []string) {
		opt := getOptions(cmd)
		runtime.GOMAXPROCS(opt.NumCPUs)

		minMarkers := getFlagNonNegativeInt(cmd, "min-markers")
		minANI := getFlagFloat64(cmd, "minimum-ani")
		estimateUnknown := getFlagBool(cmd, "estimate-unknown")
		logReassignment := getFlagBool(cmd, "log-reassignment")
		taxonomyFile := getFlagString(cmd, "taxonomy-file")
		gscoreThreshold := getFlagFloat64(cmd, "gscore-threshold")
		outFile := getFlagOutFile(cmd, "out-file")
		speciesOutFile := getFlagString(cmd, "species-out-file")

		files := getFileList(args)
		refs, refDirs, samples := loadProfileInputs(files)
		if len(refs) == 0 {
			checkError(fmt.Errorf("no reference *.syldb loaded"))
		}
		if len(samples) == 0 {
			checkError(fmt.Errorf("no sample *.sylsp loaded"))
		}

		k := refs[0].k
		var sketches []*meta2bseek.GenomeSketch
		for _, r := range refs {
			if r.k != k {
				log.Warningf("skipping %s: built at k=%d, this profile run is k=%d", r.sketch.Name, r.k, k)
				continue
			}
			sketches = append(sketches, r.sketch)
		}

		prefilter := buildBlockPrefilter(k, sketches)

		genomeSizes := make(map[string]uint64)
		for dir := range refDirs {
			for name, size := range loadGenomeSizes(dir) {
				genomeSizes[name] = size
			}
		}

		var tax *meta2bseek.Taxonomy
		if taxonomyFile != "" {
			t, err := meta2bseek.NewGTDBTaxonomy(expandHome(taxonomyFile))
			checkError(err)
			tax = t
		}

		bw, gw, fh, err := outStream(outFile, false, 6)
		checkError(err)
		defer func() { checkError(closeOutStream(bw, gw, fh)) }()
		fmt.Fprintln(bw, strings.Join([]string{
			"sample", "genome_source", "adjusted_ani", "eff_cov", "shared_count",
			"marker_total", "reassigned_count", "taxonomic_abundance", "sequence_abundance",
		}, "\t"))

		speciesBySample := make(map[string][]meta2bseek.SpeciesAbundance)
		var sampleOrder []string

		for _, sample := range samples {
			popt := meta2bseek.ProfileOptions{
				K:               k,
				MinANI:          minANI,
				MinNumberKmers:  minMarkers,
				Estimator:       meta2bseek.EstimatorRatio,
				EstimateUnknown: estimateUnknown,
				LogReassignment: logReassignment,
			}
			candidates := candidateRefs(prefilter, sample.counts)
			candidateSketches := make([]*meta2bseek.GenomeSketch, 0, len(candidates))
			for i, s := range sketches {
				if candidates[i] {
					candidateSketches = append(candidateSketches, s)
				}
			}
			results, edges := meta2bseek.RunProfiler(candidateSketches, genomeSizes, sample.counts, popt)

			for _, r := range results {
				fmt.Fprintf(bw, "%s\t%s\t%.4f\t%.4f\t%d\t%d\t%d\t%.4f\t%.4f\n",
					sample.source, r.GenomeSource, r.AdjustedANI*100, r.FinalCoverage,
					r.SharedCount, r.MarkerTotal, r.OriginalSharedCount-r.SharedCount,
					r.TaxonomicAbundance, r.SequenceAbundance)
			}
			for _, e := range edges {
				log.Debugf("%s: reassigned %d marker(s) from %s to %s", sample.source, e.Count, e.From, e.To)
			}

			if tax != nil {
				species := meta2bseek.AggregateSpecies(results, tax)
				species = meta2bseek.FilterByGScore(species, gscoreThreshold)
				sampleOrder = append(sampleOrder, sample.source)
				speciesBySample[sample.source] = species
			}
		}

		if tax != nil && speciesOutFile != "" {
			writeSpeciesTable(speciesOutFile, sampleOrder, speciesBySample)
		}
	},
}

func init() {
	RootCmd.AddCommand(profileCmd)

	profileCmd.Flags().IntP("min-markers", "M", 50, "minimum number of markers a reference must carry to be considered")
	profileCmd.Flags().Float64("minimum-ani", 0.80, "minimum adjusted ANI for a reference to enter the winner table")
	profileCmd.Flags().BoolP("estimate-unknown", "u", false, "estimate the fraction of sample bases left unexplained by any surviving reference")
	profileCmd.Flags().Bool("log-reassignment", false, "log marker-ownership reassignment edges seen at least twice")
	profileCmd.Flags().String("taxonomy-file", "", "GTDB-style accession -> taxonomy-string TSV for species-level rollup")
	profileCmd.Flags().Float64("gscore-threshold", 0, "minimum G-score a species must reach to survive the rollup")
	profileCmd.Flags().StringP("out-file", "o", "-", "per-genome output TSV file, or \"-\" for stdout")
	profileCmd.Flags().String("species-out-file", "", "species-level output TSV file (requires --taxonomy-file)")
}

// loadProfileInputs is loadQueryInputs plus the set of directories any
// reference *.syldb came from, since genome_sizes.tsv manifests live
// alongside the index files rather than inside them.
func loadProfileInputs(files []string) ([]refEntry, map[string]bool, []sampleEntry) {
	var refs []refEntry
	var samples []sampleEntry
	dirs := make(map[string]bool)
	for _, file := range files {
		before := len(refs)
		refs, samples = loadQueryFile(file, refs, samples)
		if len(refs) > before {
			dirs[filepath.Dir(file)] = true
		}
	}
	return refs, dirs, samples
}

// writeSpeciesTable emits the species-level rollup: seven GTDB rank
// columns followed by one relative-abundance column per sample, each to
// six decimals (spec §4.K).
func writeSpeciesTable(path string, sampleOrder []string, bySample map[string][]meta2bseek.SpeciesAbundance) {
	abundance := make(map[string]map[string]float64)
	for _, sample := range sampleOrder {
		for _, s := range bySample[sample] {
			if abundance[s.SpeciesKey] == nil {
				abundance[s.SpeciesKey] = make(map[string]float64)
			}
			abundance[s.SpeciesKey][sample] = s.TaxonomicAbundance / 100
		}
	}

	keys := make([]string, 0, len(abundance))
	for k := range abundance {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	bw, gw, fh, err := outStream(path, false, 6)
	checkError(err)
	defer func() { checkError(closeOutStream(bw, gw, fh)) }()

	header := append([]string{"domain", "phylum", "class", "order", "family", "genus", "species"}, sampleOrder...)
	fmt.Fprintln(bw, strings.Join(header, "\t"))

	for _, key := range keys {
		ranks := strings.Split(key, ";")
		for len(ranks) < 7 {
			ranks = append(ranks, "")
		}
		row := append([]string(nil), ranks[:7]...)
		for _, sample := range sampleOrder {
			row = append(row, strconv.FormatFloat(abundance[key][sample], 'f', 6, 64))
		}
		fmt.Fprintln(bw, strings.Join(row, "\t"))
	}
}
