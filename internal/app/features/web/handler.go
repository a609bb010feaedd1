// internal/app/features/web/handler.go
//
// Package web serves the browser-facing pages: a landing page with a
// sign-in button, the login redirect, the callback that completes the
// flow end to end, a profile page and a scope reference page.
package web

import (
	"context"
	"net/http"

	"github.com/dalemusser/waffle/pantry/templates"
	"go.uber.org/zap"

	"github.com/dalemusser/esiagate/internal/app/reconcile"
	"github.com/dalemusser/esiagate/internal/app/store/authrequests"
	organizationstore "github.com/dalemusser/esiagate/internal/app/store/organizations"
	tokenstore "github.com/dalemusser/esiagate/internal/app/store/tokens"
	userstore "github.com/dalemusser/esiagate/internal/app/store/users"
	"github.com/dalemusser/esiagate/internal/app/system/auth"
	"github.com/dalemusser/esiagate/internal/app/system/htmlsanitize"
	"github.com/dalemusser/esiagate/internal/app/system/timeouts"
	"github.com/dalemusser/esiagate/internal/app/system/viewdata"
	"github.com/dalemusser/esiagate/internal/domain/models"
	"github.com/dalemusser/esiagate/internal/esia"
)

// defaultLoginScopes is requested when the login link carries no scopes.
const defaultLoginScopes = "openid fullname email"

// Handler holds the dependencies of the web surface.
type Handler struct {
	ESIA       *esia.Client
	Scopes     *esia.ScopeSet
	Ledger     *authrequests.Store
	Reconciler *reconcile.Engine
	Users      *userstore.Store
	Orgs       *organizationstore.Store
	Tokens     *tokenstore.Store
	Log        *zap.Logger
}

// NewHandler constructs a web handler.
func NewHandler(client *esia.Client, scopes *esia.ScopeSet, ledger *authrequests.Store,
	rec *reconcile.Engine, users *userstore.Store, orgs *organizationstore.Store,
	tokens *tokenstore.Store, logger *zap.Logger) *Handler {
	return &Handler{
		ESIA:       client,
		Scopes:     scopes,
		Ledger:     ledger,
		Reconciler: rec,
		Users:      users,
		Orgs:       orgs,
		Tokens:     tokens,
		Log:        logger,
	}
}

// scopeVM is one scope row on the home and scopes pages.
type scopeVM struct {
	Name        string
	Description string
	Default     bool
}

func (h *Handler) scopeVMs() []scopeVM {
	defaults := map[string]bool{"openid": true, "fullname": true, "email": true}

	vms := make([]scopeVM, 0, len(h.Scopes.Allowed()))
	for _, name := range h.Scopes.Allowed() {
		vms = append(vms, scopeVM{
			Name:        name,
			Description: esia.ScopeDescriptions[name],
			Default:     defaults[name],
		})
	}
	return vms
}

/*─────────────────────────────────────────────────────────────────────────────*
| GET / – landing                                                             |
*─────────────────────────────────────────────────────────────────────────────*/

func (h *Handler) ServeRoot(w http.ResponseWriter, r *http.Request) {
	data := struct {
		viewdata.BaseVM
		Scopes        []scopeVM
		DefaultScopes string
	}{
		BaseVM:        viewdata.NewBaseVM(r, "Sign in via Gosuslugi"),
		Scopes:        h.scopeVMs(),
		DefaultScopes: defaultLoginScopes,
	}

	templates.Render(w, r, "web_home", data)
}

/*─────────────────────────────────────────────────────────────────────────────*
| GET /login – start the flow and bounce to the provider                      |
*─────────────────────────────────────────────────────────────────────────────*/

func (h *Handler) ServeLogin(w http.ResponseWriter, r *http.Request) {
	scope := r.URL.Query().Get("scopes")
	if scope == "" {
		scope = defaultLoginScopes
	}

	authz, err := h.ESIA.NewAuthorization(h.Scopes, esia.AuthorizeOptions{Scope: scope})
	if err != nil {
		h.Log.Warn("web login rejected", zap.String("scopes", scope), zap.Error(err))
		h.renderError(w, r, "Authorization error", "Invalid scopes",
			"The requested access scopes are not allowed.")
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "create authorization request")
	defer cancel()

	if _, err := h.Ledger.Create(ctx, models.AuthorizationRequest{
		ClientID:     h.ESIA.ClientID(),
		ResponseType: "code",
		Provider:     esia.DefaultProvider,
		Scope:        scope,
		RedirectURI:  authz.RedirectURI,
		State:        authz.State,
		Nonce:        &authz.Nonce,
		CodeVerifier: &authz.CodeVerifier,
	}); err != nil {
		h.Log.Error("authorization request persist failed", zap.Error(err))
		h.renderError(w, r, "Authorization error", "Internal error",
			"Could not start the authorization flow.")
		return
	}

	h.Log.Info("web login started", zap.String("state", authz.State))
	http.Redirect(w, r, authz.URL, http.StatusFound)
}

/*─────────────────────────────────────────────────────────────────────────────*
| GET /callback – complete the flow end to end                                |
*─────────────────────────────────────────────────────────────────────────────*/

func (h *Handler) ServeCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	state := q.Get("state")
	code := q.Get("code")
	errCode := q.Get("error")
	errDescription := q.Get("error_description")

	// The code branch runs the full completion chain: two provider round
	// trips plus reconciliation and token persistence under one context.
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Batch(), h.Log, "web callback")
	defer cancel()

	ar, err := h.Ledger.GetByState(ctx, state)
	if err != nil {
		h.Log.Warn("callback with unknown state", zap.String("state", state))
		h.renderError(w, r, "Authorization error", "Request not found",
			"No pending authorization matches this callback.")
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
		if cerr := h.Ledger.CompleteWithError(ctx, state, errCode, desc); cerr != nil {
			h.Log.Error("ledger completion failed",
				zap.String("state", state), zap.Error(cerr))
		}

		// The description is provider-controlled text; strip any markup.
		msg := htmlsanitize.Sanitize(errDescription)
		if msg == "" {
			msg = "The identity provider reported an error."
		}
		h.renderError(w, r, "Authorization error", errCode, msg)

	case code != "":
		if err := h.Ledger.CompleteWithCode(ctx, state, code); err != nil {
			h.Log.Error("ledger completion failed", zap.Error(err))
			h.renderError(w, r, "Authorization error", "Internal error",
				"Could not record the authorization result.")
			return
		}
		h.finishLogin(ctx, w, r, ar, code)

	default:
		h.renderError(w, r, "Invalid callback", "Invalid parameters",
			"The callback must carry either an authorization code or an error.")
	}
}

// finishLogin exchanges the code, pulls claims, reconciles local records
// and signs the browser in.
func (h *Handler) finishLogin(ctx context.Context, w http.ResponseWriter, r *http.Request,
	ar *models.AuthorizationRequest, code string) {

	verifier := ""
	if ar.CodeVerifier != nil {
		verifier = *ar.CodeVerifier
	}

	tok, err := h.ESIA.ExchangeOwnCode(ctx, code, ar.RedirectURI, verifier)
	if err != nil {
		h.Log.Error("token exchange failed", zap.Error(err))
		h.renderError(w, r, "Data retrieval error", "API error",
			"Could not retrieve the token from the identity provider.")
		return
	}

	claims, err := h.ESIA.UserInfo(ctx, tok.AccessToken, "")
	if err != nil {
		h.Log.Error("userinfo failed", zap.Error(err))
		h.renderError(w, r, "Data retrieval error", "API error",
			"Could not retrieve user data from the identity provider.")
		return
	}

	sub, _ := claims["sub"].(string)
	info, _ := claims["info"].(map[string]any)

	user, err := h.Reconciler.User(ctx, sub, info)
	if err != nil {
		h.Log.Error("user reconciliation failed", zap.Error(err))
		h.renderError(w, r, "Data retrieval error", "API error",
			"Could not store the user data.")
		return
	}

	var orgs []models.Organization
	if _, ok := info["orgs"]; ok {
		orgs = h.Reconciler.Organizations(ctx, user.ID, info)
	}

	if _, err := h.Reconciler.Token(ctx, user.ID, tok); err != nil {
		h.Log.Error("token persist failed", zap.Int64("user_id", user.ID), zap.Error(err))
	}

	name := ""
	if user.FirstName != nil {
		name = *user.FirstName
	}
	if user.LastName != nil {
		if name != "" {
			name += " "
		}
		name += *user.LastName
	}
	if err := auth.SignIn(w, r, auth.SessionUser{
		ID: user.ID, Name: name, ESIAUID: user.ESIAUID,
	}); err != nil {
		h.Log.Error("session save failed", zap.Error(err))
	}

	h.Log.Info("web login completed",
		zap.Int64("user_id", user.ID), zap.String("esia_uid", user.ESIAUID))

	var expiresIn int64
	if tok.ExpiresIn != nil {
		expiresIn = *tok.ExpiresIn
	}

	data := struct {
		viewdata.BaseVM
		User           *models.User
		Organizations  []models.Organization
		TokenExpiresIn int64
	}{
		BaseVM:         viewdata.NewBaseVM(r, "Signed in"),
		User:           user,
		Organizations:  orgs,
		TokenExpiresIn: expiresIn,
	}
	templates.Render(w, r, "web_success", data)
}

/*─────────────────────────────────────────────────────────────────────────────*
| GET /profile – session-bound profile                                        |
*─────────────────────────────────────────────────────────────────────────────*/

func (h *Handler) ServeProfile(w http.ResponseWriter, r *http.Request) {
	su, ok := auth.CurrentUser(r)
	if !ok {
		h.renderError(w, r, "Profile", "Not signed in",
			"Sign in via Gosuslugi to see your profile.")
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "load profile")
	defer cancel()

	user, err := h.Users.GetByID(ctx, su.ID)
	if err != nil {
		h.Log.Warn("profile user lookup failed", zap.Int64("user_id", su.ID), zap.Error(err))
		h.renderError(w, r, "Profile error", "User not found",
			"Could not find the signed-in user.")
		return
	}

	var expiresIn int64
	hasToken := false
	if tok, err := h.Tokens.GetActive(ctx, su.ID); err == nil {
		hasToken = true
		if tok.ExpiresIn != nil {
			expiresIn = *tok.ExpiresIn
		}
	}

	orgs, err := h.Orgs.ListByUser(ctx, su.ID)
	if err != nil {
		h.Log.Warn("profile org lookup failed", zap.Int64("user_id", su.ID), zap.Error(err))
	}

	title := "Profile"
	if user.FirstName != nil {
		title = "Profile of " + *user.FirstName
		if user.LastName != nil {
			title += " " + *user.LastName
		}
	}

	data := struct {
		viewdata.BaseVM
		User           *models.User
		Organizations  []models.Organization
		HasActiveToken bool
		TokenExpiresIn int64
	}{
		BaseVM:         viewdata.NewBaseVM(r, title),
		User:           user,
		Organizations:  orgs,
		HasActiveToken: hasToken,
		TokenExpiresIn: expiresIn,
	}
	templates.Render(w, r, "web_profile", data)
}

/*─────────────────────────────────────────────────────────────────────────────*
| GET /scopes – scope reference                                               |
*─────────────────────────────────────────────────────────────────────────────*/

func (h *Handler) ServeScopes(w http.ResponseWriter, r *http.Request) {
	data := struct {
		viewdata.BaseVM
		Scopes []scopeVM
	}{
		BaseVM: viewdata.NewBaseVM(r, "ESIA access scopes"),
		Scopes: h.scopeVMs(),
	}
	templates.Render(w, r, "web_scopes", data)
}

/*─────────────────────────────────────────────────────────────────────────────*
| GET /logout – clear the session                                             |
*─────────────────────────────────────────────────────────────────────────────*/

func (h *Handler) ServeLogout(w http.ResponseWriter, r *http.Request) {
	if su, ok := auth.CurrentUser(r); ok {
		ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "deactivate tokens")
		defer cancel()

		if err := h.Tokens.DeactivateAll(ctx, su.ID); err != nil {
			h.Log.Warn("token deactivation failed", zap.Int64("user_id", su.ID), zap.Error(err))
		}
	}
	if err := auth.SignOut(w, r); err != nil {
		h.Log.Warn("sign-out failed", zap.Error(err))
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// renderError renders the shared HTML error page.
func (h *Handler) renderError(w http.ResponseWriter, r *http.Request, title, errName, message string) {
	data := struct {
		viewdata.BaseVM
		ErrorName string
		Message   string
	}{
		BaseVM:    viewdata.NewBaseVM(r, title),
		ErrorName: errName,
		Message:   message,
	}
	templates.Render(w, r, "web_error", data)
}
