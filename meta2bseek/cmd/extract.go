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
	"github.com/shenwei356/bio/seqio/fastx"
	"github.com/spf13/cobra"
	"github.com/vbauerster/mpb/v5"
	"github.com/vbauerster/mpb/v5/decor"
)

var extractCmd = &cobra.Command{
	Use:   "extract [flags] {genome.fasta | reads.fastq | @list.txt}...",
	Short: "build syldb/sylsp indices from 2bRAD enzyme tags",
	Long: `extract builds a *.syldb reference index from FASTA genome inputs and a
*.sylsp sample index from FASTQ read inputs, both keyed on 2bRAD
restriction-site tags rather than every k-mer window of the sequence.

FASTA and FASTQ inputs may be freely mixed on one command line; each file is
classified by whether its first record carries quality scores.
`,
	Run: func(cmd *cobra.Command, args []string) {
		opt := getOptions(cmd)
		runtime.GOMAXPROCS(opt.NumCPUs)

		enzymeName := getFlagString(cmd, "enzyme")
		c := getFlagPositiveInt(cmd, "compression")
		minSpacing := getFlagNonNegativeInt(cmd, "min-spacing")
		paired := getFlagBool(cmd, "paired")
		outDir := getFlagString(cmd, "out-dir")
		merge := getFlagString(cmd, "merge")
		maxRAM := getFlagBytesize(cmd, "max-ram")

		registry := meta2bseek.NewEnzymeRegistry()
		spec, err := registry.Lookup(enzymeName)
		checkError(err)

		files := getFileList(args)
		checkError(os.MkdirAll(outDir, 0755))

		genomeFiles, readFiles := classifyInputs(files)
		if len(genomeFiles) == 0 && len(readFiles) == 0 {
			checkError(fmt.Errorf("no readable input among %d file(s)", len(files)))
		}

		if len(genomeFiles) > 0 {
			extractGenomeTags(genomeFiles, spec, c, minSpacing, outDir, merge)
		}
		if len(readFiles) > 0 {
			groups, err := meta2bseek.GroupFilesBySample(readFiles, paired)
			checkError(err)
			gate := meta2bseek.NewMemoryGate(maxRAM)
			extractSampleTags(groups, spec, c, outDir, gate)
		}
	},
}

func init() {
	RootCmd.AddCommand(extractCmd)

	extractCmd.Flags().StringP("enzyme", "e", "BcgI", "2bRAD restriction enzyme (BcgI, AlfI)")
	extractCmd.Flags().IntP("compression", "c", 1, "FracMinHash subsampling denominator applied to tag hashes")
	extractCmd.Flags().Int("min-spacing", 40, "minimum distance in bases between two markers on the same contig")
	extractCmd.Flags().Bool("paired", false, "treat consecutive FASTQ read inputs as mate pairs")
	extractCmd.Flags().StringP("out-dir", "o", ".", "output directory for *.syldb/*.sylsp files")
	extractCmd.Flags().String("merge", "", "merge every genome FASTA input into one *.syldb named by this value, instead of one file per genome")
	extractCmd.Flags().String("max-ram", "", "soft memory budget (e.g. 4GiB) throttling sample extraction; unbounded if empty")
}

// classifyInputs splits files into FASTA genome inputs and FASTQ read
// inputs by peeking their first record (spec §6 "detected by suffix" is
// generalized here to content, since a gzip-wrapped FASTA and FASTQ share
// the same suffix conventions).
func classifyInputs(files []string) (genomes, reads []string) {
	for _, f := range files {
		isFastq, err := classifyFastxFile(f)
		if err != nil {
			log.Warningf("skipping unreadable input %s: %s", f, err)
			continue
		}
		if isFastq {
			reads = append(reads, f)
		} else {
			genomes = append(genomes, f)
		}
	}
	return
}

// extractGenomeTags builds one GenomeSketch per contig-set of FASTA input
// via 2bRAD tags, writing either one *.syldb per input or all of them
// merged into a single stream named merge.
func extractGenomeTags(files []string, spec meta2bseek.EnzymeSpec, c, minSpacing int, outDir, merge string) {
	progress := mpb.New(mpb.WithWidth(48))
	bar := progress.AddBar(int64(len(files)),
		mpb.PrependDecorators(decor.Name("extract genomes ")),
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
		mergedWriter, err = meta2bseek.NewGenomeIndexWriter(bw, spec.TagLength, c)
		checkError(err)
	}

	for _, file := range files {
		bar.Increment()

		contigs, names, err := readContigs(file)
		if err != nil {
			log.Warningf("skipping %s: %s", file, err)
			continue
		}
		if len(contigs) == 0 {
			log.Warningf("skipping %s: no sequences", file)
			continue
		}

		var tags []meta2bseek.TagPosition
		var totalLen uint64
		for ci, contig := range contigs {
			totalLen += uint64(len(contig))
			for _, tag := range meta2bseek.ExtractTags(contig, spec) {
				h, err := meta2bseek.HashCanonicalKmer(tag.Bases)
				if err != nil || !meta2bseek.HashSelected(h, c) {
					continue
				}
				tags = append(tags, meta2bseek.TagPosition{Hash: h, ContigIdx: ci, Position: uint32(tag.Offset)})
			}
		}

		name := genomeName(file)
		sketches := meta2bseek.BuildGenomeSketchFromTags(name, tags, minSpacing, false, len(contigs), func(i int) string { return names[i] })

		writer := mergedWriter
		var bw *bufio.Writer
		var gw io.WriteCloser
		var fh *os.File
		if writer == nil {
			path := filepath.Join(outDir, genomeName(file)+extGenomeIndex)
			bw, gw, fh, err = outStream(path, false, 6)
			checkError(err)
			writer, err = meta2bseek.NewGenomeIndexWriter(bw, spec.TagLength, c)
			checkError(err)
		}

		for _, s := range sketches {
			checkError(writer.WriteSketch(s))
		}

		if mergedWriter == nil {
			checkError(closeOutStream(bw, gw, fh))
		}

		checkError(appendGenomeSize(outDir, name, totalLen))
	}

	if mergedWriter != nil {
		checkError(closeOutStream(mergedBW, mergedGW, mergedFH))
	}
	progress.Wait()
}

// readContigs slurps every sequence record of a FASTA file into memory,
// the same whole-genome-in-memory idiom the teacher's count/uniqs commands
// use for reference genomes.
func readContigs(file string) (contigs [][]byte, names []string, err error) {
	reader, err := fastx.NewDefaultReader(file)
	if err != nil {
		return nil, nil, err
	}
	for {
		record, rerr := reader.Read()
		if rerr != nil {
			if rerr == io.EOF {
				break
			}
			return nil, nil, rerr
		}
		seqCopy := append([]byte(nil), record.Seq.Seq...)
		contigs = append(contigs, seqCopy)
		names = append(names, string(record.Name))
	}
	return contigs, names, nil
}

// extractSampleTags counts 2bRAD tag occurrences per sample FileGroup and
// writes each sample's *.sylsp.
func extractSampleTags(groups []meta2bseek.FileGroup, spec meta2bseek.EnzymeSpec, c int, outDir string, gate *meta2bseek.MemoryGate) {
	progress := mpb.New(mpb.WithWidth(48))
	bar := progress.AddBar(int64(len(groups)),
		mpb.PrependDecorators(decor.Name("extract samples ")),
		mpb.AppendDecorators(decor.CountersNoUnit("%d / %d")),
	)

	for _, group := range groups {
		bar.Increment()
		gate.WaitIfOverBudget()

		dedup := meta2bseek.NewExactDeduplicator(mapInitSize)
		acc := meta2bseek.NewPairAwareSketch(spec.TagLength, c, dedup, len(group.Files) == 2, group.SampleSource)

		if err := countSampleTags(group, spec, acc, gate); err != nil {
			log.Warningf("skipping sample %s: %s", group.SampleSource, err)
			continue
		}

		sketch := meta2bseek.BuildSampleSketch(group.SampleSource, acc.Finish())
		path := filepath.Join(outDir, genomeName(group.SampleSource)+extSampleIndex)
		bw, gw, fh, err := outStream(path, false, 6)
		checkError(err)
		writer, err := meta2bseek.NewSampleIndexWriter(bw, spec.TagLength, c)
		checkError(err)
		checkError(writer.WriteSketch(sketch))
		checkError(closeOutStream(bw, gw, fh))
	}
	progress.Wait()
}

// tagHashes extracts 2bRAD tags from seqBytes and returns the canonical
// hashes of those passing the FracMinHash threshold.
func tagHashes(seqBytes []byte, spec meta2bseek.EnzymeSpec, c int) []meta2bseek.Hash {
	var hashes []meta2bseek.Hash
	for _, tag := range meta2bseek.ExtractTags(seqBytes, spec) {
		h, err := meta2bseek.HashCanonicalKmer(tag.Bases)
		if err != nil || !meta2bseek.HashSelected(h, c) {
			continue
		}
		hashes = append(hashes, h)
	}
	return hashes
}

// countSampleTags reads one FileGroup's FASTQ file(s) record by record,
// folding each record's 2bRAD tag hashes into acc, which dedups per
// (hash, fingerprint) pair rather than at the whole-read level.
func countSampleTags(group meta2bseek.FileGroup, spec meta2bseek.EnzymeSpec, acc *meta2bseek.PairAwareSketch, gate *meta2bseek.MemoryGate) error {
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
			acc.AddReadHashes(fp, len(rec1.Seq.Seq), tagHashes(rec1.Seq.Seq, spec, acc.C))
			acc.AddReadHashes(fp, len(rec2.Seq.Seq), tagHashes(rec2.Seq.Seq, spec, acc.C))
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
		acc.AddReadHashes(fp, len(record.Seq.Seq), tagHashes(record.Seq.Seq, spec, acc.C))
	}
	return nil
}
