package domain

import (
	"strings"
	"testing"

	"pgregory.net/rapid"
)

func TestFingerprintLocated(t *testing.T) {
	f := Finding{Pass: PassSecurity, Title: "Token Logged In Plaintext", File: "auth/session.go", Line: 42}
	g := f
	g.Body = "completely different prose"

	if Fingerprint(f) != Fingerprint(g) {
		t.Error("located findings with differing bodies must share a fingerprint")
	}

	h := f
	h.Line = 43
	if Fingerprint(f) == Fingerprint(h) {
		t.Error("different lines must produce different fingerprints")
	}
}

func TestFingerprintTitleNormalization(t *testing.T) {
	f := Finding{Pass: PassQuality, Title: "Unchecked   Error Return", File: "x.go", Line: 1}
	g := Finding{Pass: PassQuality, Title: "unchecked error return", File: "x.go", Line: 1}
	if Fingerprint(f) != Fingerprint(g) {
		t.Error("whitespace and case differences in titles must not change identity")
	}
}

func TestFingerprintLocationlessUsesBodyHash(t *testing.T) {
	// Two distinct findings sharing a title must not collapse.
	a := Finding{Pass: PassGrowth, Title: "Missing next action", Body: "Signup funnel has no event for step 2."}
	b := Finding{Pass: PassGrowth, Title: "Missing next action", Body: "Checkout flow lacks an abandonment metric."}

	if Fingerprint(a) == Fingerprint(b) {
		t.Error("locationless findings with distinct bodies must have distinct fingerprints")
	}
	if Fingerprint(a) != Fingerprint(a) {
		t.Error("fingerprint must be deterministic")
	}
}

func TestFingerprintPassDistinguishes(t *testing.T) {
	a := Finding{Pass: PassSecurity, Title: "same title", File: "x.go", Line: 1}
	b := Finding{Pass: PassQuality, Title: "same title", File: "x.go", Line: 1}
	if Fingerprint(a) == Fingerprint(b) {
		t.Error("the same title in different passes is a different finding")
	}
}

func TestFingerprintProperties(t *testing.T) {
	passes := []Pass{PassImplementation, PassSecurity, PassQuality, PassUX, PassGrowth, PassOps}

	rapid.Check(t, func(t *rapid.T) {
		f := Finding{
			Pass:  passes[rapid.IntRange(0, len(passes)-1).Draw(t, "pass")],
			Title: rapid.StringN(1, 60, -1).Draw(t, "title"),
			Body:  rapid.StringN(0, 200, -1).Draw(t, "body"),
		}
		if rapid.Bool().Draw(t, "located") {
			f.File = "pkg/file.go"
			f.Line = rapid.IntRange(1, 5000).Draw(t, "line")
		}

		fp := Fingerprint(f)
		if fp != Fingerprint(f) {
			t.Fatal("fingerprint must be deterministic")
		}
		if !strings.HasPrefix(fp, "v2:") {
			t.Fatalf("fingerprint %q missing version prefix", fp)
		}

		// Cosmetic body reflow must not change identity.
		g := f
		g.Body = strings.Join(strings.Fields(strings.ToLower(f.Body)), "  ")
		if Fingerprint(g) != fp {
			t.Fatal("whitespace-only body changes must not change identity")
		}
	})
}
