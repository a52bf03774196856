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
	"os"
	"path/filepath"
	"runtime"

	"github.com/HuangShiLab/meta2bseek"
	"github.com/shenwei356/bio/seq"
	"github.com/shenwei356/bio/seqio/fastx"
	"github.com/spf13/cobra"
	"github.com/vbauerster/mpb/v5"
	"github.com/vbauerster/mpb/v5/decor"
)

var sketchCmd = &cobra.Command{
	Use:   "sketch [flags] {genome.fasta | reads.fastq | @list.txt}...",
	Short: "build syldb/sylsp indices from FracMinHash k-mer sketches",
	Long: `sketch builds the same *.syldb/*.sylsp pair as extract, but from every
k-mer window of the input instead of 2bRAD enzyme tags, subsampled by a
FracMinHash threshold.
`,
	Run: func(cmd *cobra.Command, args []string) {
		opt := getOptions(cmd)
		runtime.GOMAXPROCS(opt.NumCPUs)

		k := getFlagPositiveInt(cmd, "k-size")
		if k > 32 {
			checkError(fmt.Errorf("k > 32 not supported"))
		}
		c := getFlagPositiveInt(cmd, "compression")
		minSpacing := getFlagNonNegativeInt(cmd, "min-spacing")
		noDedup := getFlagBool(cmd, "no-dedup")
		fpr := getFlagFloat64(cmd, "fpr")
		individual := getFlagBool(cmd, "individual")
		noPseudotax := getFlagBool(cmd, "no-pseudotax")
		paired := getFlagBool(cmd, "paired")
		outDir := getFlagString(cmd, "out-dir")
		merge := getFlagString(cmd, "merge")
		maxRAM := getFlagBytesize(cmd, "max-ram")

		files := getFileList(args)
		checkError(os.MkdirAll(outDir, 0755))

		genomeFiles, readFiles := classifyInputs(files)
		if len(genomeFiles) == 0 && len(readFiles) == 0 {
			checkError(fmt.Errorf("no readable input among %d file(s)", len(files)))
		}

		if len(genomeFiles) > 0 {
			sketchGenomes(genomeFiles, k, c, minSpacing, individual, outDir, merge, noPseudotax)
		}
		if len(readFiles) > 0 {
			groups, err := meta2bseek.GroupFilesBySample(readFiles, paired)
			checkError(err)
			gate := meta2bseek.NewMemoryGate(maxRAM)
			sketchSamples(groups, k, c, outDir, gate, noDedup, fpr)
		}
	},
}

func init() {
	RootCmd.AddCommand(sketchCmd)

	sketchCmd.Flags().IntP("compression", "c", 100, "FracMinHash subsampling denominator")
	sketchCmd.Flags().IntP("k-size", "k", 21, "k-mer size")
	sketchCmd.Flags().Int("min-spacing", 0, "minimum distance in bases between two markers on the same contig")
	sketchCmd.Flags().Bool("no-dedup", false, "disable read-level duplicate detection when building sample sketches")
	sketchCmd.Flags().Float64("fpr", 0.01, "false-positive rate of the Cuckoo-filter read deduplicator")
	sketchCmd.Flags().Bool("individual", false, "emit one GenomeSketch per contig instead of one per genome")
	sketchCmd.Flags().Bool("no-pseudotax", false, "skip recording genome sizes for the profiler's pseudo-taxonomy fallback")
	sketchCmd.Flags().Bool("paired", false, "treat consecutive FASTQ read inputs as mate pairs")
	sketchCmd.Flags().StringP("out-dir", "o", ".", "output directory for *.syldb/*.sylsp files")
	sketchCmd.Flags().String("merge", "", "merge every genome FASTA input into one *.syldb named by this value, instead of one file per genome")
	sketchCmd.Flags().String("max-ram", "", "soft memory budget (e.g. 4GiB) throttling sample sketching; unbounded if empty")
}

func sketchGenomes(files []string, k, c, minSpacing int, individual bool, outDir, merge string, noPseudotax bool) {
	progress := mpb.New(mpb.WithWidth(48))
	bar := progress.AddBar(int64(len(files)),
		mpb.PrependDecorators(decor.Name("sketch genomes ")),
		mpb.AppendDecorators(decor.CountersNoUnit("%d / %d")),
	)

	var mergedWriter *meta2bseek.GenomeIndexWriter
	var mergedBW *bufio.Writer
	var mergedGW io.WriteCloser
	var mergedFH *os.File
	if merge != "" {
		path := filepath.Join(outDir, ensureExt(merge, extGenomeIndex))
		bw, gw, fh, err := outStream(path, false, 6)
		checkError(err)
		mergedBW, mergedGW, mergedFH = bw, gw, fh
		mergedWriter, err = meta2bseek.NewGenomeIndexWriter(bw, k, c)
		checkError(err)
	}

	for _, file := range files {
		bar.Increment()

		seqs, err := readContigSeqs(file)
		if err != nil {
			log.Warningf("skipping %s: %s", file, err)
			continue
		}
		if len(seqs) == 0 {
			log.Warningf("skipping %s: no sequences", file)
			continue
		}

		name := genomeName(file)
		var totalLen uint64
		for _, s := range seqs {
			totalLen += uint64(len(s.Seq))
		}

		sketches := meta2bseek.BuildGenomeSketch(name, seqs, k, c, minSpacing, individual)

		writer := mergedWriter
		var bw *bufio.Writer
		var gw io.WriteCloser
		var fh *os.File
		if writer == nil {
			path := filepath.Join(outDir, name+extGenomeIndex)
			bw, gw, fh, err = outStream(path, false, 6)
			checkError(err)
			writer, err = meta2bseek.NewGenomeIndexWriter(bw, k, c)
			checkError(err)
		}

		for _, s := range sketches {
			checkError(writer.WriteSketch(s))
		}

		if mergedWriter == nil {
			checkError(closeOutStream(bw, gw, fh))
		}

		if !noPseudotax {
			checkError(appendGenomeSize(outDir, name, totalLen))
		}
	}

	if mergedWriter != nil {
		checkError(closeOutStream(mergedBW, mergedGW, mergedFH))
	}
	progress.Wait()
}

func sketchSamples(groups []meta2bseek.FileGroup, k, c int, outDir string, gate *meta2bseek.MemoryGate, noDedup bool, fpr float64) {
	progress := mpb.New(mpb.WithWidth(48))
	bar := progress.AddBar(int64(len(groups)),
		mpb.PrependDecorators(decor.Name("sketch samples ")),
		mpb.AppendDecorators(decor.CountersNoUnit("%d / %d")),
	)

	for _, group := range groups {
		bar.Increment()
		gate.WaitIfOverBudget()

		var dedup meta2bseek.Deduplicator
		if noDedup {
			dedup = meta2bseek.NewNoDedup()
		} else {
			dedup = meta2bseek.NewCuckooDeduplicator(uint(mapInitSize*4), fpr)
		}
		acc := meta2bseek.NewPairAwareSketch(k, c, dedup, len(group.Files) == 2, group.SampleSource)

		if err := countSampleKmers(group, acc, gate); err != nil {
			log.Warningf("skipping sample %s: %s", group.SampleSource, err)
			continue
		}

		sketch := meta2bseek.BuildSampleSketch(group.SampleSource, acc.Finish())
		path := filepath.Join(outDir, genomeName(group.SampleSource)+extSampleIndex)
		bw, gw, fh, err := outStream(path, false, 6)
		checkError(err)
		writer, err := meta2bseek.NewSampleIndexWriter(bw, k, c)
		checkError(err)
		checkError(writer.WriteSketch(sketch))
		checkError(closeOutStream(bw, gw, fh))
	}
	progress.Wait()
}

// readContigSeqs slurps every sequence record of a FASTA file into memory
// as standalone seq.Seq values, the same whole-genome-in-memory idiom
// extract's readContigs uses, but keeping the seq.Seq type BuildGenomeSketch
// expects.
func readContigSeqs(file string) (contigs []*seq.Seq, err error) {
	reader, err := fastx.NewDefaultReader(file)
	if err != nil {
		return nil, err
	}
	for {
		record, rerr := reader.Read()
		if rerr != nil {
			if rerr == io.EOF {
				break
			}
			return nil, rerr
		}
		contigs = append(contigs, &seq.Seq{
			Seq:  append([]byte(nil), record.Seq.Seq...),
			Name: append([]byte(nil), record.Name...),
		})
	}
	return contigs, nil
}

func countSampleKmers(group meta2bseek.FileGroup, acc *meta2bseek.PairAwareSketch, gate *meta2bseek.MemoryGate) error {
	if len(group.Files) == 2 {
		r1, err := fastx.NewDefaultReader(group.Files[0])
		if err != nil {
			return err
		}
		r2, err := fastx.NewDefaultReader(group.Files[1])
		if err != nil {
			return err
		}
		n := 0
		for {
			rec1, e1 := r1.Read()
			rec2, e2 := r2.Read()
			if e1 == io.EOF || e2 == io.EOF {
				break
			}
			if e1 != nil {
				return e1
			}
			if e2 != nil {
				return e2
			}
			n++
			if n%100000 == 0 {
				gate.WaitIfOverBudget()
			}
			fp := meta2bseek.FingerprintPair(rec1.Seq.Seq, rec2.Seq.Seq)
			acc.AddPair(fp, rec1.Seq.Seq, rec2.Seq.Seq)
		}
		return nil
	}

	reader, err := fastx.NewDefaultReader(group.Files[0])
	if err != nil {
		return err
	}
	n := 0
	for {
		record, rerr := reader.Read()
		if rerr != nil {
			if rerr == io.EOF {
				break
			}
			return rerr
		}
		n++
		if n%100000 == 0 {
			gate.WaitIfOverBudget()
		}
		fp := meta2bseek.FingerprintRead(record.Seq.Seq)
		acc.AddRead(fp, record.Seq.Seq)
	}
	return nil
}
