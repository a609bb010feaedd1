// internal/esia/pkce.go
package esia

import (
	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// PKCEPair holds a freshly generated RFC 7636 verifier and its S256
// challenge.
type PKCEPair struct {
	Verifier  string
	Challenge string
}

// NewPKCEPair generates a code verifier and derives its S256 challenge.
func NewPKCEPair() PKCEPair {
	v := oauth2.GenerateVerifier()
	return PKCEPair{
		Verifier:  v,
		Challenge: ChallengeFromVerifier(v),
	}
}

// ChallengeFromVerifier derives the S256 challenge for an existing
// verifier. The derivation is deterministic.
func ChallengeFromVerifier(verifier string) string {
	return oauth2.S256ChallengeFromVerifier(verifier)
}

// NewState returns a fresh unguessable state value for an authorization
// request.
func NewState() string { return uuid.NewString() }

// NewNonce returns a fresh nonce for an OpenID Connect request.
func NewNonce() string { return uuid.NewString() }
