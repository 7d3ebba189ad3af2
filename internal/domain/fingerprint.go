package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// fingerprintVersion tags the canonical key scheme. v1 keyed location-less
// findings on title alone, which collapsed distinct findings sharing a
// title; v2 adds a content hash of the body for the fallback case.
const fingerprintVersion = "v2"

// Fingerprint derives the stable dedup key for a finding. Two findings with
// the same fingerprint are the same finding for lifecycle purposes, even if
// their free-text bodies differ.
//
// Located findings key on pass + normalized title + file + line. Findings
// without a location fall back to pass + normalized title + a short hash of
// the normalized body.
func Fingerprint(f Finding) string {
	title := normalize(f.Title)
	if f.File != "" {
		return fmt.Sprintf("%s:%s:%s:%s:%d", fingerprintVersion, f.Pass, title, f.File, f.Line)
	}
	return fmt.Sprintf("%s:%s:%s:h:%s", fingerprintVersion, f.Pass, title, shortHash(normalize(f.Body)))
}

// normalize lower-cases and collapses runs of whitespace so cosmetic
// reflowing of agent output does not change identity.
func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func shortHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:12]
}
