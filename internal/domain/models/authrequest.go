// internal/domain/models/authrequest.go
package models

import "time"

// AuthorizationRequest is one row of the authorization ledger.
//
// A row is created when an authorization URL is issued and completed
// exactly once by the provider callback, either with a code or with an
// error. Rows are never deleted; they are the audit trail of every
// authorization attempt.
type AuthorizationRequest struct {
	ID                int64      `json:"id"`
	ClientID          string     `json:"client_id"`
	ResponseType      string     `json:"response_type"`
	Provider          string     `json:"provider"`
	Scope             string     `json:"scope"` // space-separated
	RedirectURI       string     `json:"redirect_uri"`
	State             string     `json:"state"` // unique correlation token
	Nonce             *string    `json:"nonce,omitempty"`
	CodeVerifier      *string    `json:"-"` // PKCE verifier, redeemed at token exchange
	AuthorizationCode *string    `json:"authorization_code,omitempty"`
	Error             *string    `json:"error,omitempty"`
	ErrorDescription  *string    `json:"error_description,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
	IsCompleted       bool       `json:"is_completed"`
}
