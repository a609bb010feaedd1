// internal/esia/scopes.go
package esia

import (
	"strings"

	"github.com/dalemusser/esiagate/internal/app/system/gwerr"
)

// DefaultAllowedScopes is the allow-list of scopes the gateway accepts
// when the deployment does not override it.
var DefaultAllowedScopes = []string{
	"openid",
	"fullname",
	"birthdate",
	"gender",
	"citizenship",
	"id_doc",
	"email",
	"mobile",
	"addresses",
	"usr_org",
}

// ScopeDescriptions maps known scopes to short human-readable
// descriptions shown on the web surface.
var ScopeDescriptions = map[string]string{
	"openid":      "Basic subject identification",
	"fullname":    "Full name",
	"birthdate":   "Date of birth",
	"gender":      "Gender",
	"citizenship": "Citizenship",
	"id_doc":      "Identity document",
	"email":       "Email address",
	"mobile":      "Mobile phone number",
	"addresses":   "Registration and residence addresses",
	"usr_org":     "Organization memberships",
}

// ScopeSet is the configured scope allow-list.
type ScopeSet struct {
	ordered []string
	allowed map[string]struct{}
}

// NewScopeSet builds a ScopeSet from the configured allow-list. An
// empty list falls back to DefaultAllowedScopes.
func NewScopeSet(scopes []string) *ScopeSet {
	if len(scopes) == 0 {
		scopes = DefaultAllowedScopes
	}
	allowed := make(map[string]struct{}, len(scopes))
	for _, s := range scopes {
		allowed[s] = struct{}{}
	}
	return &ScopeSet{ordered: scopes, allowed: allowed}
}

// Allowed returns the allow-list in its configured order.
func (ss *ScopeSet) Allowed() []string { return ss.ordered }

// Validate splits a space-separated scope string and checks every token
// against the allow-list. All offending tokens are reported in a single
// validation error under the invalid_scopes detail.
func (ss *ScopeSet) Validate(scopes string) ([]string, error) {
	list := strings.Fields(scopes)

	var invalid []string
	for _, s := range list {
		if _, ok := ss.allowed[s]; !ok {
			invalid = append(invalid, s)
		}
	}

	if len(invalid) > 0 {
		return nil, gwerr.Validation(
			"disallowed scopes: "+strings.Join(invalid, ", "),
			map[string]any{
				"invalid_scopes": invalid,
				"allowed_scopes": ss.ordered,
			},
		)
	}

	return list, nil
}
