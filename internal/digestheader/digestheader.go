// Package digestheader implements the RFC 9530 structured-field encoding
// used by Repr-Digest and Content-Digest: a comma-separated list of
// algorithm=:base64: entries. Only sha-256 is recognized; other algorithm
// entries are ignored rather than rejected, matching the "first matching
// algorithm wins" rule in spec.md ("Key algorithms").
package digestheader

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// Algorithm is the only digest algorithm this codec understands.
const Algorithm = "sha-256"

// Format renders sum (a raw SHA-256 digest, 32 bytes) as a Repr-Digest /
// Content-Digest header value: sha-256=:<base64>:.
func Format(sum []byte) string {
	return fmt.Sprintf("%s=:%s:", Algorithm, base64.StdEncoding.EncodeToString(sum))
}

// Parse extracts the raw sha-256 digest from a single Repr-Digest or
// Content-Digest header value. It returns (nil, nil) if the header is
// empty or contains no sha-256 entry, and a non-nil error only if a
// sha-256 entry is present but malformed.
func Parse(value string) ([]byte, error) {
	if value == "" {
		return nil, nil
	}

	for _, field := range strings.Split(value, ",") {
		algo, rest, ok := strings.Cut(strings.TrimSpace(field), "=")
		if !ok || algo != Algorithm {
			continue
		}

		b64 := strings.Trim(rest, ":")
		sum, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			return nil, fmt.Errorf("digestheader: malformed sha-256 entry %q: %w", field, err)
		}
		return sum, nil
	}

	return nil, nil
}

// ParseHeaders reconciles the sha-256 digest carried by an optional
// Repr-Digest and an optional Content-Digest header value (either may be
// ""). It returns the digest both headers agree on, nil if neither
// carries one, and an error if both carry a sha-256 entry and they
// disagree — the conflicting-digest-headers case in spec.md §4.1 step 2.
func ParseHeaders(reprDigest, contentDigest string) ([]byte, error) {
	repr, err := Parse(reprDigest)
	if err != nil {
		return nil, err
	}
	content, err := Parse(contentDigest)
	if err != nil {
		return nil, err
	}

	switch {
	case repr == nil:
		return content, nil
	case content == nil:
		return repr, nil
	case string(repr) == string(content):
		return repr, nil
	default:
		return nil, fmt.Errorf("digestheader: Repr-Digest and Content-Digest disagree")
	}
}
