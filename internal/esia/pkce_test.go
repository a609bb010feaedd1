// internal/esia/pkce_test.go
package esia

import (
	"crypto/sha256"
	"encoding/base64"
	"testing"
)

func TestNewPKCEPairChallengeMatchesVerifier(t *testing.T) {
	p := NewPKCEPair()

	if p.Verifier == "" || p.Challenge == "" {
		t.Fatalf("empty PKCE pair: %+v", p)
	}

	sum := sha256.Sum256([]byte(p.Verifier))
	want := base64.RawURLEncoding.EncodeToString(sum[:])
	if p.Challenge != want {
		t.Fatalf("challenge = %q, want %q", p.Challenge, want)
	}
}

func TestChallengeFromVerifierDeterministic(t *testing.T) {
	const v = "some-fixed-verifier-value-for-testing-purposes-ok"

	a := ChallengeFromVerifier(v)
	b := ChallengeFromVerifier(v)
	if a != b {
		t.Fatalf("challenge not deterministic: %q vs %q", a, b)
	}
}

func TestNewStateDistinct(t *testing.T) {
	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		s := NewState()
		if _, dup := seen[s]; dup {
			t.Fatalf("duplicate state after %d draws: %s", i, s)
		}
		seen[s] = struct{}{}
	}
}

func TestNewPKCEPairDistinctVerifiers(t *testing.T) {
	a := NewPKCEPair()
	b := NewPKCEPair()
	if a.Verifier == b.Verifier {
		t.Fatal("consecutive verifiers are identical")
	}
}
