package ariesk

import "testing"

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []string{"A", "ACGT", "acgtACGT", "TTTTTTTTTTTTTTTTTTTTTTTTTTTTTTT"}
	for _, s := range cases {
		km, err := EncodeKmer(s)
		if err != nil {
			t.Fatalf("EncodeKmer(%q): %v", s, err)
		}
		got := DecodeKmer(km)
		want := upper(s)
		if got != want {
			t.Fatalf("roundtrip %q: got %q want %q", s, got, want)
		}
	}
}

func upper(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			b[i] = c - 32
		}
	}
	return string(b)
}

func TestEncodeKmerRejectsInvalidBase(t *testing.T) {
	if _, err := EncodeKmer("ACGN"); err == nil {
		t.Fatal("expected error for N base")
	} else if !IsKind(err, InvalidInput) {
		t.Fatalf("expected InvalidInput, got %v", err)
	}
	if _, err := EncodeKmer(""); err == nil {
		t.Fatal("expected error for empty k-mer")
	}
}

func TestReverseComplementInvolution(t *testing.T) {
	for _, s := range []string{"ACGT", "AAAA", "GATTACA", "CCGGTTAA"} {
		km, err := EncodeKmer(s)
		if err != nil {
			t.Fatal(err)
		}
		rc := ReverseComplement(km)
		rc2 := ReverseComplement(rc)
		if DecodeKmer(rc2) != DecodeKmer(km) {
			t.Fatalf("ReverseComplement not an involution for %q", s)
		}
	}
}

func TestReverseComplementKnownValues(t *testing.T) {
	km, _ := EncodeKmer("ACGT")
	rc := ReverseComplement(km)
	if got := DecodeKmer(rc); got != "ACGT" {
		t.Fatalf("ACGT reverse complement = %q, want ACGT (palindrome)", got)
	}

	km2, _ := EncodeKmer("GATTACA")
	rc2 := ReverseComplement(km2)
	if got := DecodeKmer(rc2); got != "TGTAATC" {
		t.Fatalf("GATTACA reverse complement = %q, want TGTAATC", got)
	}
}

func TestCanonicalPicksLexSmaller(t *testing.T) {
	km, _ := EncodeKmer("TTTT")
	canon := Canonical(km)
	if DecodeKmer(canon) != "AAAA" {
		t.Fatalf("Canonical(TTTT) = %q, want AAAA", DecodeKmer(canon))
	}

	// A k-mer that is already its own reverse complement stays unchanged.
	km2, _ := EncodeKmer("ACGT")
	if DecodeKmer(Canonical(km2)) != "ACGT" {
		t.Fatalf("Canonical palindrome changed")
	}
}

func TestEnumerateKmersSkipsInvalidWindows(t *testing.T) {
	windows := EnumerateKmers("ACGTNACGT", 4)
	for _, w := range windows {
		s := DecodeKmer(w.Kmer)
		for _, c := range s {
			if c != 'A' && c != 'C' && c != 'G' && c != 'T' {
				t.Fatalf("window at offset %d contains invalid base: %q", w.Offset, s)
			}
		}
	}
	// ACGTNACGT has windows at offsets 0..5; offsets 1,2,3,4 touch the N at
	// index 4 and must be skipped, leaving offset 0 ("ACGT") and offset 5
	// ("ACGT").
	if len(windows) != 2 {
		t.Fatalf("expected 2 valid windows, got %d", len(windows))
	}
}

func TestEnumerateKmersTooShort(t *testing.T) {
	if windows := EnumerateKmers("AC", 4); windows != nil {
		t.Fatalf("expected nil for sequence shorter than k, got %v", windows)
	}
}
