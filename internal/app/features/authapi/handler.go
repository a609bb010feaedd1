// internal/app/features/authapi/handler.go
//
// Package authapi exposes the OAuth 2.0 brokering surface: starting an
// authorization flow, receiving the provider callback, exchanging
// codes for tokens, and proxying userinfo with reconciliation.
package authapi

import (
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"github.com/dalemusser/esiagate/internal/app/reconcile"
	"github.com/dalemusser/esiagate/internal/app/store/authrequests"
	"github.com/dalemusser/esiagate/internal/app/system/gwerr"
	"github.com/dalemusser/esiagate/internal/app/system/httpjson"
	"github.com/dalemusser/esiagate/internal/app/system/timeouts"
	"github.com/dalemusser/esiagate/internal/domain/models"
	"github.com/dalemusser/esiagate/internal/esia"
)

// Handler holds the dependencies of the auth API.
type Handler struct {
	ESIA       *esia.Client
	Scopes     *esia.ScopeSet
	Ledger     *authrequests.Store
	Reconciler *reconcile.Engine
	Log        *zap.Logger
}

// NewHandler constructs an auth API handler.
func NewHandler(client *esia.Client, scopes *esia.ScopeSet, ledger *authrequests.Store, rec *reconcile.Engine, logger *zap.Logger) *Handler {
	return &Handler{
		ESIA:       client,
		Scopes:     scopes,
		Ledger:     ledger,
		Reconciler: rec,
		Log:        logger,
	}
}

/*───────────────────────────────*| GET /authorize |*───────────────────────────────*/

type authorizeResponse struct {
	AuthorizationURL string `json:"authorization_url"`
	State            string `json:"state"`
}

// ServeAuthorize starts an authorization flow: validates the requested
// scopes, builds the redirect URL, and persists a pending ledger row
// carrying the PKCE verifier.
func (h *Handler) ServeAuthorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	clientID := q.Get("client_id")
	if clientID == "" {
		httpjson.WriteError(w, h.Log, gwerr.Validation("client_id is required",
			map[string]any{"field": "client_id"}))
		return
	}

	responseType := q.Get("response_type")
	if responseType == "" {
		responseType = "code"
	}
	provider := q.Get("provider")
	if provider == "" {
		provider = esia.DefaultProvider
	}
	scope := q.Get("scope")
	if scope == "" {
		scope = "openid"
	}

	auth, err := h.ESIA.NewAuthorization(h.Scopes, esia.AuthorizeOptions{
		Scope:       scope,
		State:       q.Get("state"),
		Nonce:       q.Get("nonce"),
		RedirectURI: q.Get("redirect_uri"),
		Provider:    provider,
	})
	if err != nil {
		httpjson.WriteError(w, h.Log, err)
		return
	}
	if auth.RedirectURI == "" {
		httpjson.WriteError(w, h.Log, gwerr.Validation(
			"redirect_uri is neither supplied nor configured",
			map[string]any{"field": "redirect_uri"}))
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "create authorization request")
	defer cancel()

	if _, err := h.Ledger.Create(ctx, models.AuthorizationRequest{
		ClientID:     clientID,
		ResponseType: responseType,
		Provider:     provider,
		Scope:        scope,
		RedirectURI:  auth.RedirectURI,
		State:        auth.State,
		Nonce:        &auth.Nonce,
		CodeVerifier: &auth.CodeVerifier,
	}); err != nil {
		httpjson.WriteError(w, h.Log, err)
		return
	}

	h.Log.Info("authorization flow started",
		zap.String("client_id", clientID), zap.String("state", auth.State))

	httpjson.Write(w, http.StatusOK, authorizeResponse{
		AuthorizationURL: auth.URL,
		State:            auth.State,
	})
}

/*───────────────────────────────*| POST /token |*───────────────────────────────*/

// ServeToken exchanges an authorization code or refresh token for a
// token payload, which is passed through from the provider verbatim.
func (h *Handler) ServeToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		httpjson.WriteError(w, h.Log, gwerr.Validation("malformed form body", nil))
		return
	}

	params := esia.TokenParams{
		GrantType:    r.PostFormValue("grant_type"),
		ClientID:     r.PostFormValue("client_id"),
		ClientSecret: r.PostFormValue("client_secret"),
		RedirectURI:  r.PostFormValue("redirect_uri"),
		Code:         r.PostFormValue("code"),
		RefreshToken: r.PostFormValue("refresh_token"),
		CodeVerifier: r.PostFormValue("code_verifier"),
	}
	if err := params.Validate(); err != nil {
		httpjson.WriteError(w, h.Log, err)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Long(), h.Log, "token exchange")
	defer cancel()

	// Recover the PKCE verifier persisted when the flow began, unless
	// the caller already supplied one.
	if params.GrantType == "authorization_code" && params.CodeVerifier == "" {
		if ar, err := h.Ledger.GetByCode(ctx, params.Code); err == nil && ar.CodeVerifier != nil {
			params.CodeVerifier = *ar.CodeVerifier
		}
	}

	tok, err := h.ESIA.ExchangeCode(ctx, params)
	if err != nil {
		httpjson.WriteError(w, h.Log, err)
		return
	}

	h.Log.Info("token issued", zap.String("client_id", params.ClientID),
		zap.String("grant_type", params.GrantType))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(tok.Raw)
}

/*───────────────────────────────*| POST /userinfo |*───────────────────────────────*/

// ServeUserInfo proxies a userinfo request to the provider and
// reconciles the returned claims into local records. The claim payload
// is passed back to the caller unchanged.
func (h *Handler) ServeUserInfo(w http.ResponseWriter, r *http.Request) {
	const bearerPrefix = "Bearer "

	authz := r.Header.Get("Authorization")
	if len(authz) <= len(bearerPrefix) || authz[:len(bearerPrefix)] != bearerPrefix {
		httpjson.WriteError(w, h.Log, gwerr.Authentication(
			"authorization header must be of the form 'Bearer <token>'",
			map[string]any{"header": "Authorization"}))
		return
	}
	accessToken := authz[len(bearerPrefix):]

	_ = r.ParseForm()
	scope := r.PostFormValue("scope")

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Long(), h.Log, "userinfo fetch")
	defer cancel()

	claims, err := h.ESIA.UserInfo(ctx, accessToken, scope)
	if err != nil {
		httpjson.WriteError(w, h.Log, err)
		return
	}

	sub, _ := claims["sub"].(string)
	info, _ := claims["info"].(map[string]any)

	user, err := h.Reconciler.User(ctx, sub, info)
	if err != nil {
		httpjson.WriteError(w, h.Log, err)
		return
	}

	if _, ok := info["orgs"]; ok {
		h.Reconciler.Organizations(ctx, user.ID, info)
	}

	h.Log.Info("userinfo served", zap.String("esia_uid", user.ESIAUID))
	httpjson.Write(w, http.StatusOK, claims)
}

/*───────────────────────────────*| GET /logout |*───────────────────────────────*/

type logoutResponse struct {
	LogoutURL   string `json:"logout_url"`
	RedirectURI string `json:"redirect_uri"`
}

// ServeLogout builds the provider logout URL for the caller.
func (h *Handler) ServeLogout(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if q.Get("client_id") == "" {
		httpjson.WriteError(w, h.Log, gwerr.Validation("client_id is required",
			map[string]any{"field": "client_id"}))
		return
	}

	redirectURI := q.Get("redirect_uri")
	if redirectURI == "" {
		redirectURI = h.ESIA.RedirectURI()
		if redirectURI == "" {
			httpjson.WriteError(w, h.Log, gwerr.Validation(
				"redirect_uri is neither supplied nor configured",
				map[string]any{"field": "redirect_uri"}))
			return
		}
	}

	state := q.Get("state")
	if state == "" {
		state = esia.NewState()
	}

	httpjson.Write(w, http.StatusOK, logoutResponse{
		LogoutURL:   h.ESIA.LogoutURL(redirectURI, state),
		RedirectURI: redirectURI,
	})
}

/*───────────────────────────────*| GET /callback |*───────────────────────────────*/

// ServeCallback receives the provider redirect, completes the ledger
// row, and bounces the browser to the client's redirect URI with the
// code or error attached.
func (h *Handler) ServeCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	state := q.Get("state")
	code := q.Get("code")
	errCode := q.Get("error")
	errDescription := q.Get("error_description")

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "callback processing")
	defer cancel()

	ar, err := h.Ledger.GetByState(ctx, state)
	if err != nil {
		httpjson.WriteError(w, h.Log, err)
		return
	}

	switch {
	case errCode != "":
		h.Log.Warn("authorization failed at provider",
			zap.String("state", state), zap.String("error", errCode))

		var desc *string
		if errDescription != "" {
			desc = &errDescription
		}
		if err := h.Ledger.CompleteWithError(ctx, state, errCode, desc); err != nil {
			httpjson.WriteError(w, h.Log, err)
			return
		}

		v := url.Values{}
		v.Set("error", errCode)
		v.Set("error_description", errDescription)
		v.Set("state", state)
		http.Redirect(w, r, ar.RedirectURI+"?"+v.Encode(), http.StatusFound)

	case code != "":
		h.Log.Info("authorization completed", zap.String("state", state))

		if err := h.Ledger.CompleteWithCode(ctx, state, code); err != nil {
			httpjson.WriteError(w, h.Log, err)
			return
		}

		v := url.Values{}
		v.Set("code", code)
		v.Set("state", state)
		http.Redirect(w, r, ar.RedirectURI+"?"+v.Encode(), http.StatusFound)

	default:
		httpjson.WriteError(w, h.Log, gwerr.Validation(
			"callback must carry either an authorization code or an error", nil))
	}
}
