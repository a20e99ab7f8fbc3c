package digestheader

import (
	"crypto/sha256"
	"testing"
)

func TestFormatParseRoundTrip(t *testing.T) {
	sum := sha256.Sum256([]byte("hello"))

	header := Format(sum[:])
	got, err := Parse(header)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(sum[:]) {
		t.Fatalf("round trip mismatch")
	}
}

func TestParseEmpty(t *testing.T) {
	got, err := Parse("")
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Fatalf("expected nil for empty header, got %v", got)
	}
}

func TestParseIgnoresOtherAlgorithms(t *testing.T) {
	got, err := Parse("md5=:deadbeef:")
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Fatalf("expected nil when no sha-256 entry present, got %v", got)
	}
}

func TestParseMultipleAlgorithms(t *testing.T) {
	sum := sha256.Sum256([]byte("multi"))
	header := "md5=:deadbeef:, " + Format(sum[:])

	got, err := Parse(header)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(sum[:]) {
		t.Fatal("expected sha-256 entry to be found among multiple algorithms")
	}
}

func TestParseHeadersAgree(t *testing.T) {
	sum := sha256.Sum256([]byte("agree"))
	header := Format(sum[:])

	got, err := ParseHeaders(header, header)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(sum[:]) {
		t.Fatal("expected agreeing headers to resolve to the shared digest")
	}
}

func TestParseHeadersDisagree(t *testing.T) {
	a := sha256.Sum256([]byte("a"))
	b := sha256.Sum256([]byte("b"))

	_, err := ParseHeaders(Format(a[:]), Format(b[:]))
	if err == nil {
		t.Fatal("expected an error when Repr-Digest and Content-Digest disagree")
	}
}

func TestParseHeadersOnlyOnePresent(t *testing.T) {
	sum := sha256.Sum256([]byte("only-one"))
	got, err := ParseHeaders(Format(sum[:]), "")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(sum[:]) {
		t.Fatal("expected the single present header's digest")
	}
}
