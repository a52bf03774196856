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
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/HuangShiLab/meta2bseek"
	"github.com/HuangShiLab/meta2bseek/index"
	"github.com/mitchellh/go-homedir"
	"github.com/shenwei356/go-logging"
	"github.com/shenwei356/util/bytesize"
	"github.com/shenwei356/util/pathutil"
	"github.com/spf13/cobra"
)

var log = logging.MustGetLogger("meta2bseek")

const extGenomeIndex = ".syldb"
const extSampleIndex = ".sylsp"

var mapInitSize = 100000

// Options contains the global flags shared by every subcommand.
type Options struct {
	NumCPUs int
	Verbose bool
}

func getOptions(cmd *cobra.Command) *Options {
	return &Options{
		NumCPUs: getFlagPositiveInt(cmd, "threads"),
		Verbose: getFlagBool(cmd, "verbose"),
	}
}

// checkError logs a fatal configuration/input error and exits non-zero.
// Per-file errors inside a batch loop should be logged and skipped instead
// of routed through this helper.
func checkError(err error) {
	if err != nil {
		log.Error(err)
		os.Exit(1)
	}
}

func getFlagString(cmd *cobra.Command, flag string) string {
	value, err := cmd.Flags().GetString(flag)
	checkError(err)
	return value
}

func getFlagStringSlice(cmd *cobra.Command, flag string) []string {
	value, err := cmd.Flags().GetStringSlice(flag)
	checkError(err)
	return value
}

func getFlagBool(cmd *cobra.Command, flag string) bool {
	value, err := cmd.Flags().GetBool(flag)
	checkError(err)
	return value
}

func getFlagInt(cmd *cobra.Command, flag string) int {
	value, err := cmd.Flags().GetInt(flag)
	checkError(err)
	return value
}

func getFlagPositiveInt(cmd *cobra.Command, flag string) int {
	value := getFlagInt(cmd, flag)
	if value <= 0 {
		checkError(fmt.Errorf("value of --%s should be positive: %d", flag, value))
	}
	return value
}

func getFlagNonNegativeInt(cmd *cobra.Command, flag string) int {
	value := getFlagInt(cmd, flag)
	if value < 0 {
		checkError(fmt.Errorf("value of --%s should be non-negative: %d", flag, value))
	}
	return value
}

func getFlagFloat64(cmd *cobra.Command, flag string) float64 {
	value, err := cmd.Flags().GetFloat64(flag)
	checkError(err)
	return value
}

func getFlagBytesize(cmd *cobra.Command, flag string) uint64 {
	s := getFlagString(cmd, flag)
	if s == "" {
		return 0
	}
	size, err := bytesize.Parse([]byte(s))
	if err != nil {
		checkError(fmt.Errorf("invalid value of --%s: %s", flag, s))
	}
	return uint64(size)
}

func getFlagOutFile(cmd *cobra.Command, flag string) string {
	file := getFlagString(cmd, flag)
	if file == "" {
		return "-"
	}
	return file
}

func expandHome(path string) string {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return path
	}
	return expanded
}

func checkFiles(files ...string) {
	for _, file := range files {
		if isStdin(file) {
			continue
		}
		ok, err := pathutil.Exists(file)
		if err != nil {
			checkError(fmt.Errorf("fail to read file %s: %s", file, err))
		}
		if !ok {
			checkError(fmt.Errorf("file does not exist: %s", file))
		}
	}
}

func isStdin(file string) bool {
	return file == "-"
}

func isStdout(file string) bool {
	return file == "-" || file == ""
}

// getFileList expands any "@listfile" arguments and validates the result,
// mirroring the teacher's positional-argument handling across its cmd
// files (every one of which requires at least one input file or "-").
func getFileList(args []string) []string {
	if len(args) == 0 {
		checkError(fmt.Errorf("at least one input file (or \"-\" for stdin) is required"))
	}
	groups, err := meta2bseek.GroupFilesBySample(args, false)
	checkError(err)
	files := make([]string, 0, len(groups))
	for _, g := range groups {
		files = append(files, g.Files[0])
	}
	checkFiles(files...)
	return files
}

// fastaExts are stripped from a genome FASTA path, in order, to derive the
// genome_source label used throughout query/profile output.
var fastaExts = []string{".gz", ".fasta", ".fa", ".fna", ".fsa"}

// genomeName derives a genome_source label from its source FASTA path: the
// base filename with any compression and FASTA extension stripped.
func genomeName(file string) string {
	name := filepath.Base(file)
	for _, ext := range fastaExts {
		name = strings.TrimSuffix(name, ext)
	}
	return name
}

// ensureExt appends ext to name if name doesn't already end with it.
func ensureExt(name, ext string) string {
	if strings.HasSuffix(name, ext) {
		return name
	}
	return name + ext
}

// genomeSizesFile is the manifest of genome_source -> total sequence length
// written alongside *.syldb files (extract/sketch) and consulted by
// profile, since GenomeSketch itself carries no size field.
const genomeSizesFile = "genome_sizes.tsv"

// appendGenomeSize records one genome's total sequence length in outDir's
// manifest, creating it if needed.
func appendGenomeSize(outDir, name string, size uint64) error {
	path := filepath.Join(outDir, genomeSizesFile)
	fh, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer fh.Close()
	_, err = fmt.Fprintf(fh, "%s\t%d\n", name, size)
	return err
}

// blockPrefilterNumBlocks sizes the bit-block table buildBlockPrefilter
// hashes marker/sample hashes into. Fixed rather than flag-tunable: it only
// trades prefilter selectivity for memory, never correctness.
const blockPrefilterNumBlocks = 4096

// buildBlockPrefilter builds an in-memory block prefilter over sketches'
// marker hashes, letting query/profile skip references that provably share
// no marker block with a sample before running the real per-marker
// containment scan.
func buildBlockPrefilter(k int, sketches []*meta2bseek.GenomeSketch) *index.BlockPrefilter {
	names := make([]string, len(sketches))
	hashesPerGenome := make([][]uint64, len(sketches))
	for i, s := range sketches {
		names[i] = s.Name
		hs := make([]uint64, len(s.Entries))
		for j, e := range s.Entries {
			hs[j] = uint64(e.Hash)
		}
		hashesPerGenome[i] = hs
	}
	return index.BuildBlockPrefilter(k, blockPrefilterNumBlocks, names, hashesPerGenome)
}

// candidateRefs returns the set of indices into the sketches slice bp was
// built from that share at least one block with counts' hash set.
func candidateRefs(bp *index.BlockPrefilter, counts map[meta2bseek.Hash]uint32) map[int]bool {
	hashes := make([]uint64, 0, len(counts))
	for h := range counts {
		hashes = append(hashes, uint64(h))
	}
	set := make(map[int]bool, len(counts))
	for _, idx := range bp.CandidateGenomes(hashes) {
		set[idx] = true
	}
	return set
}

// loadGenomeSizes reads a genome_sizes.tsv manifest. A missing file yields
// an empty map rather than an error: genome size then falls back to the
// profiler's zero default, which only degrades the sequence_abundance
// column, not the core ANI estimate.
func loadGenomeSizes(outDir string) map[string]uint64 {
	path := filepath.Join(outDir, genomeSizesFile)
	fh, err := os.Open(path)
	if err != nil {
		return map[string]uint64{}
	}
	defer fh.Close()

	sizes := make(map[string]uint64)
	scanner := bufio.NewScanner(fh)
	for scanner.Scan() {
		fields := strings.SplitN(scanner.Text(), "\t", 2)
		if len(fields) != 2 {
			continue
		}
		n, err := strconv.ParseUint(strings.TrimSpace(fields[1]), 10, 64)
		if err != nil {
			continue
		}
		sizes[fields[0]] = n
	}
	return sizes
}
