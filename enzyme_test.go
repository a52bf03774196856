package meta2bseek

import "testing"

func TestEnzymeRegistryBuiltins(t *testing.T) {
	reg := NewEnzymeRegistry()
	for _, name := range []string{"BcgI", "AlfI"} {
		spec, err := reg.Lookup(name)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if len(spec.Motif) == 0 {
			t.Errorf("%s: empty motif", name)
		}
	}
}

func TestEnzymeRegistryTagLengths(t *testing.T) {
	reg := NewEnzymeRegistry()
	wantLen := map[string]int{"BcgI": 32, "AlfI": 32}
	for name, want := range wantLen {
		spec, err := reg.Lookup(name)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if spec.TagLength != want {
			t.Errorf("%s: TagLength = %d, want %d", name, spec.TagLength, want)
		}
		if len(spec.Motif) != spec.TagLength {
			t.Errorf("%s: motif length %d != TagLength %d", name, len(spec.Motif), spec.TagLength)
		}
	}
}

func TestEnzymeRegistryUnknownFailsFast(t *testing.T) {
	reg := NewEnzymeRegistry()
	if _, err := reg.Lookup("NotAnEnzyme"); err == nil {
		t.Error("expected error for unknown enzyme")
	} else if _, ok := err.(ErrUnknownEnzyme); !ok {
		t.Errorf("expected ErrUnknownEnzyme, got %T", err)
	}
}

func TestExtractTagsFindsMotifBothStrands(t *testing.T) {
	spec, err := NewEnzymeRegistry().Lookup("BcgI")
	if err != nil {
		t.Fatal(err)
	}

	// Build a sequence that matches BcgI's motif exactly once.
	seq := make([]byte, 0, len(spec.Motif)+20)
	seq = append(seq, []byte("TTTTTTTTTT")...)
	seq = append(seq, []byte("AAAAAAAAAACGAAAAAAATGCAAAAAAAAAA")...)
	seq = append(seq, []byte("GGGGGGGGGG")...)

	tags := ExtractTags(seq, spec)
	if len(tags) == 0 {
		t.Fatal("expected at least one tag")
	}

	// The reverse complement carries the motif only on its other strand;
	// it must yield the same canonical tags.
	rcTags := ExtractTags(revcompBytes(seq), spec)
	if len(rcTags) != len(tags) {
		t.Fatalf("reverse-complement input: got %d tags, want %d", len(rcTags), len(tags))
	}
	for i := range tags {
		if string(rcTags[i].Bases) != string(tags[i].Bases) {
			t.Errorf("reverse-complement tag %d = %s, want %s", i, rcTags[i].Bases, tags[i].Bases)
		}
	}
	for _, tag := range tags {
		if len(tag.Bases) != spec.TagLength {
			t.Errorf("tag length = %d, want %d", len(tag.Bases), spec.TagLength)
		}
	}
}

func TestExtractTagsDedupesWithinSequence(t *testing.T) {
	spec, err := NewEnzymeRegistry().Lookup("BcgI")
	if err != nil {
		t.Fatal(err)
	}
	unit := "AAAAAAAAAACGAAAAAAATGCAAAAAAAAAA"
	seq := []byte(unit + "TTT" + unit)
	tags := ExtractTags(seq, spec)
	seen := make(map[string]bool)
	for _, tag := range tags {
		key := string(tag.Bases)
		if seen[key] {
			t.Errorf("duplicate canonical tag %s returned", key)
		}
		seen[key] = true
	}
}
