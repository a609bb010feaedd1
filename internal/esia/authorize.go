// internal/esia/authorize.go
package esia

// AuthorizeOptions are the caller-supplied knobs for starting an
// authorization flow. Empty fields are filled with generated values or
// configured defaults.
type AuthorizeOptions struct {
	Scope       string
	State       string
	Nonce       string
	RedirectURI string
	Provider    string
}

// Authorization is a prepared authorization flow. State, Nonce and
// CodeVerifier must be persisted so the callback and token exchange can
// be tied back to this request.
type Authorization struct {
	URL          string
	State        string
	Nonce        string
	RedirectURI  string
	CodeVerifier string
}

// DefaultProvider is the data provider requested when the caller does
// not name one.
const DefaultProvider = "esia_oauth"

// NewAuthorization validates the requested scopes, fills in state,
// nonce and PKCE material, and builds the redirect URL.
func (c *Client) NewAuthorization(scopes *ScopeSet, opts AuthorizeOptions) (*Authorization, error) {
	if _, err := scopes.Validate(opts.Scope); err != nil {
		return nil, err
	}

	if opts.State == "" {
		opts.State = NewState()
	}
	if opts.Nonce == "" {
		opts.Nonce = NewNonce()
	}
	if opts.RedirectURI == "" {
		opts.RedirectURI = c.cfg.RedirectURI
	}
	if opts.Provider == "" {
		opts.Provider = DefaultProvider
	}

	pkce := NewPKCEPair()

	u := c.AuthorizationURL(AuthorizeParams{
		ClientID:      c.cfg.ClientID,
		ResponseType:  "code",
		Provider:      opts.Provider,
		Scope:         opts.Scope,
		RedirectURI:   opts.RedirectURI,
		State:         opts.State,
		Nonce:         opts.Nonce,
		CodeChallenge: pkce.Challenge,
	})

	return &Authorization{
		URL:          u,
		State:        opts.State,
		Nonce:        opts.Nonce,
		RedirectURI:  opts.RedirectURI,
		CodeVerifier: pkce.Verifier,
	}, nil
}
