package meta2bseek

import (
	"fmt"
	"regexp"
	"strings"
)

// EnzymeSpec describes a Type IIB restriction enzyme used for 2bRAD tag
// extraction: a degenerate IUPAC recognition motif plus the fixed-width tag
// window it carves out of the sequence surrounding each cut site.
type EnzymeSpec struct {
	Name       string // e.g. "BcgI"
	Motif      string // IUPAC-degenerate recognition sequence
	TagLength  int    // total extracted tag width
	re         *regexp.Regexp
}

// iupacRegex maps each IUPAC degenerate base to its regex character class,
// generalized from the restriction-enzyme digestion tables that express
// recognition sites the same way (cf. recogRegex in enzyme-digestion
// reference code).
var iupacRegex = map[byte]string{
	'A': "A", 'C': "C", 'G': "G", 'T': "T",
	'M': "[AC]", 'R': "[AG]", 'W': "[AT]",
	'Y': "[CT]", 'S': "[CG]", 'K': "[GT]",
	'H': "[ACT]", 'D': "[AGT]", 'V': "[ACG]", 'B': "[CGT]",
	'N': "[ACGT]", 'X': "[ACGT]",
}

// compileMotif turns an IUPAC motif into an anchored, case-insensitive
// regexp matching exactly len(motif) bases.
func compileMotif(motif string) (*regexp.Regexp, error) {
	var sb strings.Builder
	sb.WriteByte('^')
	for i := 0; i < len(motif); i++ {
		cls, ok := iupacRegex[motif[i]&^0x20] // uppercase
		if !ok {
			return nil, fmt.Errorf("meta2bseek: unsupported IUPAC base %q in motif %q", motif[i], motif)
		}
		sb.WriteString(cls)
	}
	return regexp.Compile("(?i)" + sb.String())
}

// builtinEnzymes seeds the registry with the two Type IIB enzymes 2bRAD
// libraries commonly use. Motif degenerate runs ('N's) stand in for the
// variable-length spacer between the two half-sites; TagLength is the
// window centered on the cut used by ExtractTags.
var builtinEnzymes = map[string]EnzymeSpec{
	"BcgI": {Name: "BcgI", Motif: "NNNNNNNNNNCGANNNNNNTGCNNNNNNNNNN", TagLength: 32},
	"AlfI": {Name: "AlfI", Motif: "NNNNNNNNNNGCANNNNNNTGCNNNNNNNNNN", TagLength: 32},
}

// EnzymeRegistry resolves enzyme names to compiled EnzymeSpecs. Build one
// with NewEnzymeRegistry, which seeds it with the built-ins; the zero value
// holds no enzymes.
type EnzymeRegistry struct {
	specs map[string]EnzymeSpec
}

// NewEnzymeRegistry returns a registry preloaded with BcgI and AlfI.
func NewEnzymeRegistry() *EnzymeRegistry {
	r := &EnzymeRegistry{specs: make(map[string]EnzymeSpec, len(builtinEnzymes))}
	for name, spec := range builtinEnzymes {
		r.specs[name] = spec
	}
	return r
}

// Register adds or overrides an enzyme by name, compiling its motif.
func (r *EnzymeRegistry) Register(spec EnzymeSpec) error {
	re, err := compileMotif(spec.Motif)
	if err != nil {
		return err
	}
	spec.re = re
	r.specs[spec.Name] = spec
	return nil
}

// ErrUnknownEnzyme is returned by Lookup for a name not in the registry;
// per spec §7 this is a configuration error and must fail fast, not
// silently skip the enzyme.
type ErrUnknownEnzyme string

func (e ErrUnknownEnzyme) Error() string {
	return fmt.Sprintf("meta2bseek: unknown enzyme %q", string(e))
}

// Lookup compiles (if needed) and returns the named enzyme spec.
func (r *EnzymeRegistry) Lookup(name string) (EnzymeSpec, error) {
	spec, ok := r.specs[name]
	if !ok {
		return EnzymeSpec{}, ErrUnknownEnzyme(name)
	}
	if spec.re == nil {
		re, err := compileMotif(spec.Motif)
		if err != nil {
			return EnzymeSpec{}, err
		}
		spec.re = re
		r.specs[name] = spec
	}
	return spec, nil
}

// Tag is one extracted, canonicalized 2bRAD tag and the offset it was
// found at in the forward strand of the source sequence.
type Tag struct {
	Bases  []byte
	Offset int
}

// ExtractTags scans seq on both strands for spec's recognition motif and
// returns the canonicalized TagLength-wide window at each match, deduped
// within this single sequence (a palindromic or repeated site yields the
// same canonical tag from both strands and is reported once).
func ExtractTags(seq []byte, spec EnzymeSpec) []Tag {
	if spec.re == nil {
		re, err := compileMotif(spec.Motif)
		if err != nil {
			return nil
		}
		spec.re = re
	}

	seen := make(map[string]bool)
	var tags []Tag

	scan := func(s []byte, strandOffset func(matchStart int) int) {
		for i := 0; i+len(spec.Motif) <= len(s); i++ {
			window := s[i : i+len(spec.Motif)]
			if !spec.re.Match(window) {
				continue
			}
			if len(window) < spec.TagLength {
				continue
			}
			// center the tag window on the match
			start := (len(window) - spec.TagLength) / 2
			candidate := window[start : start+spec.TagLength]
			canon := canonicalBytes(candidate)
			key := string(canon)
			if seen[key] {
				continue
			}
			seen[key] = true
			tags = append(tags, Tag{Bases: append([]byte(nil), canon...), Offset: strandOffset(i)})
		}
	}

	scan(seq, func(i int) int { return i })
	rc := revcompBytes(seq)
	n := len(seq)
	scan(rc, func(i int) int { return n - i - len(spec.Motif) })

	return tags
}
