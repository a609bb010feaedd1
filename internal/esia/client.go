// internal/esia/client.go
package esia

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/dalemusser/esiagate/internal/app/system/gwerr"
	"github.com/dalemusser/esiagate/internal/app/system/timeouts"
)

const userAgent = "esiagate/1.0"

// Config holds the provider credentials and endpoints the client needs.
type Config struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	RedirectURI  string
}

// Client talks to the ESIA gateway over HTTP. It builds browser
// redirect URLs and performs the server-to-server token and userinfo
// calls.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *zap.Logger
}

// NewClient validates the provider configuration and returns a client.
// Missing credentials are reported together so an operator can fix a
// deployment in one pass.
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.RedirectURI == "" {
		return nil, gwerr.Validation(
			"required OAuth 2.0 parameters are not configured",
			map[string]any{
				"client_id":     cfg.ClientID != "",
				"client_secret": cfg.ClientSecret != "",
				"redirect_uri":  cfg.RedirectURI != "",
			},
		)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: timeouts.Long()},
		logger: logger,
	}, nil
}

// BaseURL returns the configured provider base URL.
func (c *Client) BaseURL() string { return c.cfg.BaseURL }

// RedirectURI returns the configured default redirect URI.
func (c *Client) RedirectURI() string { return c.cfg.RedirectURI }

// ClientID returns the configured OAuth client id.
func (c *Client) ClientID() string { return c.cfg.ClientID }

/*───────────────────────────────────────────────*
 |  Authorization and logout URLs                |
 *───────────────────────────────────────────────*/

// AuthorizeParams are the query parameters of an authorization
// redirect. Zero-valued optional fields are omitted from the URL.
type AuthorizeParams struct {
	ClientID      string
	ResponseType  string
	Provider      string
	Scope         string
	RedirectURI   string
	State         string
	Nonce         string
	CodeChallenge string
}

// AuthorizationURL builds the browser redirect target for an
// authorization request.
func (c *Client) AuthorizationURL(p AuthorizeParams) string {
	q := url.Values{}
	q.Set("client_id", p.ClientID)
	q.Set("response_type", p.ResponseType)
	q.Set("provider", p.Provider)
	q.Set("scope", p.Scope)
	q.Set("redirect_uri", p.RedirectURI)
	q.Set("state", p.State)
	if p.Nonce != "" {
		q.Set("nonce", p.Nonce)
	}
	if p.CodeChallenge != "" {
		q.Set("code_challenge", p.CodeChallenge)
		q.Set("code_challenge_method", "S256")
	}

	u := c.cfg.BaseURL + "/auth/authorize?" + q.Encode()
	c.logger.Info("built authorization URL",
		zap.String("client_id", p.ClientID),
		zap.String("state", p.State))
	return u
}

// LogoutURL builds the provider logout redirect target. An empty
// redirectURI falls back to the configured default.
func (c *Client) LogoutURL(redirectURI, state string) string {
	if redirectURI == "" {
		redirectURI = c.cfg.RedirectURI
	}

	q := url.Values{}
	q.Set("client_id", c.cfg.ClientID)
	q.Set("redirect_uri", redirectURI)
	if state != "" {
		q.Set("state", state)
	}

	return c.cfg.BaseURL + "/auth/logout?" + q.Encode()
}

/*───────────────────────────────────────────────*
 |  Token endpoint                               |
 *───────────────────────────────────────────────*/

// TokenParams is the form body of a token request. Exactly one of Code
// or RefreshToken must be set, matching GrantType.
type TokenParams struct {
	GrantType    string
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Code         string
	RefreshToken string
	CodeVerifier string
}

// Validate checks that the credential field matches the grant type.
func (p TokenParams) Validate() error {
	switch p.GrantType {
	case "authorization_code":
		if p.Code == "" {
			return gwerr.Validation(
				"code is required for grant_type authorization_code",
				map[string]any{"grant_type": p.GrantType},
			)
		}
	case "refresh_token":
		if p.RefreshToken == "" {
			return gwerr.Validation(
				"refresh_token is required for grant_type refresh_token",
				map[string]any{"grant_type": p.GrantType},
			)
		}
	default:
		return gwerr.Validation(
			fmt.Sprintf("unsupported grant_type %q", p.GrantType),
			map[string]any{"grant_type": p.GrantType},
		)
	}
	return nil
}

// TokenResponse is the provider's token payload. Raw carries the exact
// body so API responses can pass it through untouched.
type TokenResponse struct {
	AccessToken  string  `json:"access_token"`
	RefreshToken *string `json:"refresh_token"`
	TokenType    string  `json:"token_type"`
	ExpiresIn    *int64  `json:"expires_in"`
	Scope        *string `json:"scope"`
	IDToken      *string `json:"id_token"`
	CreatedAt    *int64  `json:"created_at"`

	Raw json.RawMessage `json:"-"`
}

// ExchangeCode posts a token request to the provider. Both the
// authorization_code and refresh_token grants go through here.
func (c *Client) ExchangeCode(ctx context.Context, p TokenParams) (*TokenResponse, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	c.logger.Info("requesting token from ESIA",
		zap.String("grant_type", p.GrantType),
		zap.String("client_id", p.ClientID))

	form := url.Values{}
	form.Set("grant_type", p.GrantType)
	form.Set("client_id", p.ClientID)
	form.Set("client_secret", p.ClientSecret)
	form.Set("redirect_uri", p.RedirectURI)
	switch p.GrantType {
	case "authorization_code":
		form.Set("code", p.Code)
		if p.CodeVerifier != "" {
			form.Set("code_verifier", p.CodeVerifier)
		}
	case "refresh_token":
		form.Set("refresh_token", p.RefreshToken)
	}

	body, err := c.postForm(ctx, "/auth/token", nil, form)
	if err != nil {
		return nil, err
	}

	var tok TokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return nil, gwerr.Provider(http.StatusOK, string(body), "malformed token response from ESIA")
	}
	tok.Raw = body

	c.logger.Info("token received from ESIA", zap.String("grant_type", p.GrantType))
	return &tok, nil
}

// ExchangeOwnCode redeems an authorization code using the client's own
// credentials.
func (c *Client) ExchangeOwnCode(ctx context.Context, code, redirectURI, verifier string) (*TokenResponse, error) {
	if redirectURI == "" {
		redirectURI = c.cfg.RedirectURI
	}
	return c.ExchangeCode(ctx, TokenParams{
		GrantType:    "authorization_code",
		ClientID:     c.cfg.ClientID,
		ClientSecret: c.cfg.ClientSecret,
		RedirectURI:  redirectURI,
		Code:         code,
		CodeVerifier: verifier,
	})
}

// RefreshToken exchanges a refresh token for a new token pair using the
// client's own credentials.
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	return c.ExchangeCode(ctx, TokenParams{
		GrantType:    "refresh_token",
		ClientID:     c.cfg.ClientID,
		ClientSecret: c.cfg.ClientSecret,
		RedirectURI:  c.cfg.RedirectURI,
		RefreshToken: refreshToken,
	})
}

/*───────────────────────────────────────────────*
 |  Userinfo endpoint                            |
 *───────────────────────────────────────────────*/

// UserInfo fetches the subject's claims. An optional scope string
// narrows the claim set; empty means the scopes granted at
// authorization time.
func (c *Client) UserInfo(ctx context.Context, accessToken, scope string) (map[string]any, error) {
	c.logger.Info("requesting userinfo from ESIA")

	headers := map[string]string{"Authorization": "Bearer " + accessToken}

	var form url.Values
	if scope != "" {
		form = url.Values{}
		form.Set("scope", scope)
	}

	body, err := c.postForm(ctx, "/auth/userinfo", headers, form)
	if err != nil {
		return nil, err
	}

	var claims map[string]any
	if err := json.Unmarshal(body, &claims); err != nil {
		return nil, gwerr.Provider(http.StatusOK, string(body), "malformed userinfo response from ESIA")
	}

	return claims, nil
}

// OrganizationInfo fetches organization claims by rewriting each scope
// into the provider's org-qualified URL form.
func (c *Client) OrganizationInfo(ctx context.Context, accessToken string, orgOID int64, scopes []string) (map[string]any, error) {
	qualified := make([]string, 0, len(scopes))
	for _, s := range scopes {
		qualified = append(qualified, fmt.Sprintf("http://esia.gosuslugi.ru/%s?org_oid=%d", s, orgOID))
	}

	c.logger.Info("requesting organization info from ESIA", zap.Int64("org_oid", orgOID))
	return c.UserInfo(ctx, accessToken, strings.Join(qualified, " "))
}

// GroupsInfo fetches the access-group and employee claims for an
// organization.
func (c *Client) GroupsInfo(ctx context.Context, accessToken string, orgOID int64) (map[string]any, error) {
	scopes := []string{
		fmt.Sprintf("http://esia.gosuslugi.ru/org_grps?org_oid=%d", orgOID),
		fmt.Sprintf("http://esia.gosuslugi.ru/org_emps?org_oid=%d", orgOID),
	}

	c.logger.Info("requesting group info from ESIA", zap.Int64("org_oid", orgOID))
	return c.UserInfo(ctx, accessToken, strings.Join(scopes, " "))
}

/*───────────────────────────────────────────────*
 |  Transport                                    |
 *───────────────────────────────────────────────*/

// postForm performs a form-encoded POST and returns the response body.
// Transport failures map to network errors, non-2xx statuses to
// provider errors carrying the upstream status and body.
func (c *Client) postForm(ctx context.Context, path string, headers map[string]string, form url.Values) ([]byte, error) {
	var reqBody io.Reader
	if form != nil {
		reqBody = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, reqBody)
	if err != nil {
		return nil, gwerr.Internal("building ESIA request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", userAgent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Error("ESIA request failed", zap.String("path", path), zap.Error(err))
		return nil, gwerr.Network("connection to ESIA failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.logger.Error("reading ESIA response failed", zap.String("path", path), zap.Error(err))
		return nil, gwerr.Network("connection to ESIA failed", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Error("ESIA rejected request",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode))
		return nil, gwerr.Provider(resp.StatusCode, string(body),
			fmt.Sprintf("ESIA request failed with status %d", resp.StatusCode))
	}

	return body, nil
}
