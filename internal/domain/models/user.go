// internal/domain/models/user.go
package models

import (
	"encoding/json"
	"time"
)

// User is the local record for an ESIA subject.
//
// NOTE:
//   - ESIAUID is the provider's subject identifier and is unique;
//     the internal ID never changes across repeated logins.
type User struct {
	ID                int64           `json:"id"`
	ESIAUID           string          `json:"esia_uid"`
	FirstName         *string         `json:"first_name,omitempty"`
	LastName          *string         `json:"last_name,omitempty"`
	MiddleName        *string         `json:"middle_name,omitempty"`
	Trusted           bool            `json:"trusted"`
	Status            *string         `json:"status,omitempty"`
	Verifying         bool            `json:"verifying"`
	RIDDoc            *int64          `json:"r_id_doc,omitempty"`
	ContainsUpCfmCode bool            `json:"contains_up_cfm_code"`
	ETag              *string         `json:"e_tag,omitempty"`
	UpdatedOn         *int64          `json:"updated_on,omitempty"` // provider-side revision timestamp
	StateFacts        json.RawMessage `json:"state_facts,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UserToken holds an access/refresh token pair issued by ESIA.
// At most one token per user is active at any time.
type UserToken struct {
	ID                 int64   `json:"id"`
	UserID             int64   `json:"user_id"`
	AccessToken        string  `json:"access_token"`
	RefreshToken       *string `json:"refresh_token,omitempty"`
	TokenType          string  `json:"token_type"`
	ExpiresIn          *int64  `json:"expires_in,omitempty"`
	Scope              *string `json:"scope,omitempty"`
	IDToken            *string `json:"id_token,omitempty"`
	CreatedAtTimestamp *int64  `json:"created_at_timestamp,omitempty"` // provider-reported issue time

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	IsActive  bool      `json:"is_active"`
}
