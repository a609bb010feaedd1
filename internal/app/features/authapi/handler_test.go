// internal/app/features/authapi/handler_test.go
package authapi

import (
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"go.uber.org/zap"

	"github.com/dalemusser/esiagate/internal/app/reconcile"
	"github.com/dalemusser/esiagate/internal/app/store/authrequests"
	membershipstore "github.com/dalemusser/esiagate/internal/app/store/memberships"
	orggroupstore "github.com/dalemusser/esiagate/internal/app/store/orggroups"
	organizationstore "github.com/dalemusser/esiagate/internal/app/store/organizations"
	tokenstore "github.com/dalemusser/esiagate/internal/app/store/tokens"
	userstore "github.com/dalemusser/esiagate/internal/app/store/users"
	"github.com/dalemusser/esiagate/internal/esia"
)

func newTestHandler(t *testing.T, db *sql.DB, providerURL string) *Handler {
	t.Helper()

	client, err := esia.NewClient(esia.Config{
		BaseURL:      providerURL,
		ClientID:     "test-client",
		ClientSecret: "test-secret",
		RedirectURI:  "https://app.example.com/callback",
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	rec := reconcile.New(
		userstore.New(db),
		organizationstore.New(db),
		membershipstore.New(db),
		orggroupstore.New(db),
		tokenstore.New(db),
		zap.NewNop(),
	)

	return NewHandler(client, esia.NewScopeSet(nil), authrequests.New(db), rec, zap.NewNop())
}

func requestRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "client_id", "response_type", "provider", "scope", "redirect_uri",
		"state", "nonce", "code_verifier", "authorization_code", "error",
		"error_description", "created_at", "completed_at", "is_completed",
	})
}

func userRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "esia_uid", "first_name", "last_name", "middle_name", "trusted",
		"status", "verifying", "r_id_doc", "contains_up_cfm_code", "e_tag",
		"updated_on", "state_facts", "created_at", "updated_at",
	})
}

func TestAuthorizeStartsFlow(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	now := time.Now().UTC()
	mock.ExpectQuery("INSERT INTO authorization_requests").
		WithArgs("web-app", "code", "esia_oauth", "openid fullname",
			"https://app.example.com/callback",
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(requestRows().AddRow(
			int64(1), "web-app", "code", "esia_oauth", "openid fullname",
			"https://app.example.com/callback", "state-1", "nonce-1",
			"verifier-1", nil, nil, nil, now, nil, false,
		))

	h := newTestHandler(t, db, "https://esia.example.com")

	req := httptest.NewRequest(http.MethodGet,
		"/authorize?client_id=web-app&scope=openid+fullname", nil)
	w := httptest.NewRecorder()
	Routes(h).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	var resp authorizeResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.State == "" {
		t.Fatal("state is empty")
	}

	u, err := url.Parse(resp.AuthorizationURL)
	if err != nil {
		t.Fatalf("parse authorization url: %v", err)
	}
	q := u.Query()
	if q.Get("state") != resp.State {
		t.Fatalf("url state = %q, response state = %q", q.Get("state"), resp.State)
	}
	if q.Get("code_challenge") == "" || q.Get("code_challenge_method") != "S256" {
		t.Fatalf("missing PKCE challenge in %q", resp.AuthorizationURL)
	}
	if q.Get("scope") != "openid fullname" {
		t.Fatalf("scope = %q", q.Get("scope"))
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAuthorizeRequiresClientID(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	h := newTestHandler(t, db, "https://esia.example.com")

	req := httptest.NewRequest(http.MethodGet, "/authorize", nil)
	w := httptest.NewRecorder()
	Routes(h).ServeHTTP(w, req)

	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", w.Code)
	}
}

func TestAuthorizeRejectsUnknownScope(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	h := newTestHandler(t, db, "https://esia.example.com")

	req := httptest.NewRequest(http.MethodGet,
		"/authorize?client_id=web-app&scope=openid+bogus", nil)
	w := httptest.NewRecorder()
	Routes(h).ServeHTTP(w, req)

	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", w.Code)
	}
	if !strings.Contains(w.Body.String(), "bogus") {
		t.Fatalf("body does not name the invalid scope: %s", w.Body.String())
	}
}

func TestCallbackCodeRedirects(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	now := time.Now().UTC()
	mock.ExpectQuery("SELECT .* FROM authorization_requests WHERE state").
		WithArgs("state-1").
		WillReturnRows(requestRows().AddRow(
			int64(1), "web-app", "code", "esia_oauth", "openid",
			"https://app.example.com/callback", "state-1", nil, "verifier-1",
			nil, nil, nil, now, nil, false,
		))
	mock.ExpectExec("UPDATE authorization_requests").
		WithArgs("state-1", "code-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	h := newTestHandler(t, db, "https://esia.example.com")

	req := httptest.NewRequest(http.MethodGet,
		"/callback?state=state-1&code=code-1", nil)
	w := httptest.NewRecorder()
	Routes(h).ServeHTTP(w, req)

	if w.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", w.Code)
	}
	want := "https://app.example.com/callback?code=code-1&state=state-1"
	if loc := w.Header().Get("Location"); loc != want {
		t.Fatalf("location = %q, want %q", loc, want)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCallbackErrorRedirects(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	now := time.Now().UTC()
	mock.ExpectQuery("SELECT .* FROM authorization_requests WHERE state").
		WithArgs("state-1").
		WillReturnRows(requestRows().AddRow(
			int64(1), "web-app", "code", "esia_oauth", "openid",
			"https://app.example.com/callback", "state-1", nil, "verifier-1",
			nil, nil, nil, now, nil, false,
		))
	mock.ExpectExec("UPDATE authorization_requests").
		WithArgs("state-1", "access_denied", "user denied access", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	h := newTestHandler(t, db, "https://esia.example.com")

	req := httptest.NewRequest(http.MethodGet,
		"/callback?state=state-1&error=access_denied&error_description=user+denied+access", nil)
	w := httptest.NewRecorder()
	Routes(h).ServeHTTP(w, req)

	if w.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", w.Code)
	}
	want := "https://app.example.com/callback?error=access_denied&error_description=user+denied+access&state=state-1"
	if loc := w.Header().Get("Location"); loc != want {
		t.Fatalf("location = %q, want %q", loc, want)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCallbackUnknownState(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT .* FROM authorization_requests WHERE state").
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)

	h := newTestHandler(t, db, "https://esia.example.com")

	req := httptest.NewRequest(http.MethodGet, "/callback?state=ghost&code=code-1", nil)
	w := httptest.NewRecorder()
	Routes(h).ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestCallbackWithoutCodeOrError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	now := time.Now().UTC()
	mock.ExpectQuery("SELECT .* FROM authorization_requests WHERE state").
		WithArgs("state-1").
		WillReturnRows(requestRows().AddRow(
			int64(1), "web-app", "code", "esia_oauth", "openid",
			"https://app.example.com/callback", "state-1", nil, "verifier-1",
			nil, nil, nil, now, nil, false,
		))

	h := newTestHandler(t, db, "https://esia.example.com")

	req := httptest.NewRequest(http.MethodGet, "/callback?state=state-1", nil)
	w := httptest.NewRecorder()
	Routes(h).ServeHTTP(w, req)

	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", w.Code)
	}
}

func TestTokenRecoversStoredVerifier(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	tokenBody := `{"access_token":"at-1","token_type":"Bearer","expires_in":3600}`
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("provider parse form: %v", err)
		}
		if got := r.PostFormValue("code_verifier"); got != "verifier-1" {
			t.Errorf("code_verifier = %q, want verifier-1", got)
		}
		if got := r.PostFormValue("code"); got != "code-1" {
			t.Errorf("code = %q, want code-1", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, tokenBody)
	}))
	defer provider.Close()

	now := time.Now().UTC()
	mock.ExpectQuery("SELECT .* FROM authorization_requests WHERE authorization_code").
		WithArgs("code-1").
		WillReturnRows(requestRows().AddRow(
			int64(1), "web-app", "code", "esia_oauth", "openid",
			"https://app.example.com/callback", "state-1", nil, "verifier-1",
			"code-1", nil, nil, now, now, true,
		))

	h := newTestHandler(t, db, provider.URL)

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("client_id", "web-app")
	form.Set("client_secret", "secret")
	form.Set("redirect_uri", "https://app.example.com/callback")
	form.Set("code", "code-1")

	req := httptest.NewRequest(http.MethodPost, "/token",
		strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	Routes(h).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if w.Body.String() != tokenBody {
		t.Fatalf("body = %s, want provider payload verbatim", w.Body.String())
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestTokenRequiresCodeForCodeGrant(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	h := newTestHandler(t, db, "https://esia.example.com")

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("client_id", "web-app")

	req := httptest.NewRequest(http.MethodPost, "/token",
		strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	Routes(h).ServeHTTP(w, req)

	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", w.Code)
	}
}

func TestUserInfoRequiresBearer(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	h := newTestHandler(t, db, "https://esia.example.com")

	req := httptest.NewRequest(http.MethodPost, "/userinfo", nil)
	w := httptest.NewRecorder()
	Routes(h).ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestUserInfoReconcilesClaims(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer at-1" {
			t.Errorf("authorization header = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w,
			`{"sub":"sub-1","info":{"uid":"uid-1","firstName":"Ivan","lastName":"Petrov","trusted":true}}`)
	}))
	defer provider.Close()

	now := time.Now().UTC()
	mock.ExpectQuery("SELECT .* FROM users WHERE esia_uid").
		WithArgs("uid-1").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("INSERT INTO users").
		WillReturnRows(userRows().AddRow(
			int64(1), "uid-1", "Ivan", "Petrov", nil, true, nil, false, nil,
			false, nil, nil, nil, now, now))

	h := newTestHandler(t, db, provider.URL)

	req := httptest.NewRequest(http.MethodPost, "/userinfo", nil)
	req.Header.Set("Authorization", "Bearer at-1")
	w := httptest.NewRecorder()
	Routes(h).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	var claims map[string]any
	if err := json.NewDecoder(w.Body).Decode(&claims); err != nil {
		t.Fatalf("decode claims: %v", err)
	}
	if claims["sub"] != "sub-1" {
		t.Fatalf("claims not passed through: %+v", claims)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestLogoutBuildsURL(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	h := newTestHandler(t, db, "https://esia.example.com")

	req := httptest.NewRequest(http.MethodGet, "/logout?client_id=web-app", nil)
	w := httptest.NewRecorder()
	Routes(h).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	var resp logoutResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.RedirectURI != "https://app.example.com/callback" {
		t.Fatalf("redirect_uri = %q", resp.RedirectURI)
	}

	u, err := url.Parse(resp.LogoutURL)
	if err != nil {
		t.Fatalf("parse logout url: %v", err)
	}
	if u.Query().Get("client_id") != "test-client" {
		t.Fatalf("logout url missing client_id: %q", resp.LogoutURL)
	}
	if u.Query().Get("state") == "" {
		t.Fatal("logout url missing state")
	}
}
