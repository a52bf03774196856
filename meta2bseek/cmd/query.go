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
	"bufio"
	"fmt"
	"io"
	"math/rand"
	"runtime"
	"strings"

	"github.com/HuangShiLab/meta2bseek"
	"github.com/spf13/cobra"
)

var queryCmd = &cobra.Command{
	Use:   "query [flags] {reference.syldb | sample.sylsp}...",
	Short: "report coverage-adjusted ANI per (sample, reference) pair",
	Long: `query evaluates every loaded sample against every loaded reference genome
and reports the coverage-adjusted ANI of each pair clearing the minimum
marker count and ANI thresholds. Reference *.syldb and sample *.sylsp files
may be given in any order; each is classified by its magic header.
`,
	Run: func(cmd *cobra.Command, args []string) {
		opt := getOptions(cmd)
		runtime.GOMAXPROCS(opt.NumCPUs)

		minMarkers := getFlagNonNegativeInt(cmd, "min-markers")
		minANI := getFlagFloat64(cmd, "minimum-ani")
		minCountCorrect := getFlagNonNegativeInt(cmd, "min-count-correct")
		estimateUnknown := getFlagBool(cmd, "estimate-unknown")
		minReadSeqID := getFlagFloat64(cmd, "read-seq-id")
		bootstrap := getFlagBool(cmd, "bootstrap")
		outFile := getFlagOutFile(cmd, "out-file")

		files := getFileList(args)
		refs, samples := loadQueryInputs(files)
		if len(refs) == 0 {
			checkError(fmt.Errorf("no reference *.syldb loaded"))
		}
		if len(samples) == 0 {
			checkError(fmt.Errorf("no sample *.sylsp loaded"))
		}

		bw, gw, fh, err := outStream(outFile, false, 6)
		checkError(err)
		defer func() { checkError(closeOutStream(bw, gw, fh)) }()

		fmt.Fprintln(bw, strings.Join([]string{
			"sample", "reference", "adjusted_ani", "eff_cov", "ani_ci_low-high",
			"eff_lambda", "lambda_ci_low-high", "median_cov", "mean_cov_geq1",
			"containment", "naive_ani", "contig_name",
		}, "\t"))

		refSketches := make([]*meta2bseek.GenomeSketch, len(refs))
		for i, ref := range refs {
			refSketches[i] = ref.sketch
		}
		prefilter := buildBlockPrefilter(refs[0].k, refSketches)

		rng := rand.New(rand.NewSource(1))
		for _, sample := range samples {
			counts := sample.counts
			if minCountCorrect > 0 {
				counts = filterMinCount(counts, minCountCorrect)
			}

			candidates := candidateRefs(prefilter, counts)

			var explained, total int
			for refIdx, ref := range refs {
				if !candidates[refIdx] {
					continue
				}
				if len(ref.sketch.Entries) < minMarkers {
					continue
				}
				if sample.c > ref.c {
					log.Warningf("skipping %s vs %s: %s", sample.source, ref.sketch.Name, meta2bseek.ErrSubsampleMismatch)
					continue
				}

				contain, err := meta2bseek.EvaluateContainment(ref.sketch, ref.k, counts, sample.k)
				if err != nil {
					log.Warningf("skipping %s vs %s: %s", sample.source, ref.sketch.Name, err)
					continue
				}
				total += contain.MarkerTotal
				if contain.NaiveANI < minReadSeqID {
					continue
				}

				est := meta2bseek.EstimateANI(contain, ref.k, meta2bseek.EstimatorRatio)
				if est.AdjustedANI < minANI {
					continue
				}
				explained += contain.SharedCount

				aniLo, aniHi, lambdaLo, lambdaHi := "NA", "NA", "NA", "NA"
				if bootstrap {
					if alo, ahi, llo, lhi, ok := meta2bseek.BootstrapEstimate(contain, ref.k, meta2bseek.EstimatorRatio, rng); ok {
						aniLo, aniHi = fmt.Sprintf("%.4f", alo*100), fmt.Sprintf("%.4f", ahi*100)
						lambdaLo, lambdaHi = fmt.Sprintf("%.4f", llo), fmt.Sprintf("%.4f", lhi)
					}
				}

				containmentStr := fmt.Sprintf("%d/%d", contain.SharedCount, contain.MarkerTotal)
				fmt.Fprintf(bw, "%s\t%s\t%.4f\t%.4f\t%s-%s\t%.4f\t%s-%s\t%.4f\t%.4f\t%s\t%.4f\t%s\n",
					sample.source, ref.sketch.Name, est.AdjustedANI*100, est.FinalCoverage,
					aniLo, aniHi, est.Lambda, lambdaLo, lambdaHi,
					contain.MedianCov, contain.MeanCovOverShared,
					containmentStr, contain.NaiveANI*100, ref.sketch.Name)
			}

			if estimateUnknown && total > 0 {
				log.Infof("%s: %.2f%% of reference markers explained by reported references", sample.source, 100*float64(explained)/float64(total))
			}
		}
	},
}

func init() {
	RootCmd.AddCommand(queryCmd)

	queryCmd.Flags().IntP("min-markers", "M", 50, "minimum number of markers a reference must carry to be considered")
	queryCmd.Flags().Float64("minimum-ani", 0.80, "minimum adjusted ANI to report a pair")
	queryCmd.Flags().Int("min-count-correct", 0, "drop sample markers observed fewer than this many times before evaluating containment")
	queryCmd.Flags().BoolP("estimate-unknown", "u", false, "log, per sample, the fraction of evaluated reference markers shared with the reported references")
	queryCmd.Flags().Float64P("read-seq-id", "I", 0, "minimum naive (uncorrected) containment ANI required before attempting coverage adjustment")
	queryCmd.Flags().Bool("bootstrap", true, "compute bootstrap confidence intervals for adjusted ANI and effective coverage")
	queryCmd.Flags().StringP("out-file", "o", "-", "output TSV file, or \"-\" for stdout")
}

// refEntry is one loaded reference GenomeSketch and the k/c it was built at.
type refEntry struct {
	sketch *meta2bseek.GenomeSketch
	k, c   int
}

// sampleEntry is one loaded sample's hash->count map and the k/c it was
// built at.
type sampleEntry struct {
	source string
	k, c   int
	counts map[meta2bseek.Hash]uint32
}

const (
	indexKindUnknown = iota
	indexKindGenome
	indexKindSample
)

// peekIndexKind sniffs an index stream's 8-byte magic without consuming it,
// so the caller can then hand the same reader to the right constructor.
func peekIndexKind(br *bufio.Reader) (int, error) {
	m, err := br.Peek(8)
	if err != nil {
		return indexKindUnknown, err
	}
	var magic [8]byte
	copy(magic[:], m)
	switch magic {
	case meta2bseek.MagicGenome:
		return indexKindGenome, nil
	case meta2bseek.MagicSample:
		return indexKindSample, nil
	}
	return indexKindUnknown, nil
}

// loadQueryInputs reads every *.syldb/*.sylsp file given on the command
// line into refEntry/sampleEntry lists, classifying each by magic header.
func loadQueryInputs(files []string) ([]refEntry, []sampleEntry) {
	var refs []refEntry
	var samples []sampleEntry
	for _, file := range files {
		refs, samples = loadQueryFile(file, refs, samples)
	}
	return refs, samples
}

func loadQueryFile(file string, refs []refEntry, samples []sampleEntry) ([]refEntry, []sampleEntry) {
	br, fh, err := inStream(file)
	if err != nil {
		log.Warningf("skipping %s: %s", file, err)
		return refs, samples
	}
	defer fh.Close()

	kind, err := peekIndexKind(br)
	if err != nil {
		log.Warningf("skipping %s: %s", file, err)
		return refs, samples
	}

	switch kind {
	case indexKindGenome:
		reader, err := meta2bseek.NewGenomeIndexReader(br)
		if err != nil {
			log.Warningf("skipping %s: %s", file, err)
			return refs, samples
		}
		for {
			sketch, rerr := reader.ReadSketch()
			if rerr != nil {
				if rerr != io.EOF {
					log.Warningf("%s: %s", file, rerr)
				}
				break
			}
			refs = append(refs, refEntry{sketch: sketch, k: int(reader.Header.K), c: int(reader.Header.C)})
		}
	case indexKindSample:
		reader, err := meta2bseek.NewSampleIndexReader(br)
		if err != nil {
			log.Warningf("skipping %s: %s", file, err)
			return refs, samples
		}
		for {
			sketch, rerr := reader.ReadSketch()
			if rerr != nil {
				if rerr != io.EOF {
					log.Warningf("%s: %s", file, rerr)
				}
				break
			}
			counts := make(map[meta2bseek.Hash]uint32, len(sketch.Entries))
			for _, e := range sketch.Entries {
				counts[e.Hash] = e.Count
			}
			samples = append(samples, sampleEntry{source: sketch.SampleSource, k: sketch.K, c: sketch.C, counts: counts})
		}
	default:
		log.Warningf("skipping %s: unrecognized index format", file)
	}
	return refs, samples
}

// filterMinCount drops hash->count entries observed fewer than min times,
// per query's --min-count-correct (spec §6).
func filterMinCount(counts map[meta2bseek.Hash]uint32, min int) map[meta2bseek.Hash]uint32 {
	out := make(map[meta2bseek.Hash]uint32, len(counts))
	for h, c := range counts {
		if c >= uint32(min) {
			out[h] = c
		}
	}
	return out
}
