package auth_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/dalemusser/esiagate/internal/app/system/auth"
)

func initStore(t *testing.T) {
	t.Helper()
	err := auth.InitSessionStore(
		"test-session-key-must-be-32-chars-long", "", false, zap.NewNop())
	if err != nil {
		t.Fatalf("InitSessionStore: %v", err)
	}
}

func TestInitSessionStoreGeneratesEphemeralKey(t *testing.T) {
	if err := auth.InitSessionStore("", "", false, zap.NewNop()); err != nil {
		t.Fatalf("InitSessionStore with empty key: %v", err)
	}
	if auth.Store == nil {
		t.Fatal("store not initialized")
	}
}

func TestSignInRoundTrip(t *testing.T) {
	initStore(t)

	// Sign in and capture the session cookie.
	signinRec := httptest.NewRecorder()
	signinReq := httptest.NewRequest(http.MethodGet, "/callback", nil)
	err := auth.SignIn(signinRec, signinReq, auth.SessionUser{
		ID: 7, Name: "Ivan Petrov", ESIAUID: "uid-7",
	})
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	cookies := signinRec.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatal("no session cookie set")
	}

	// Replay the cookie through the middleware.
	var got *auth.SessionUser
	handler := auth.LoadSessionUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if u, ok := auth.CurrentUser(r); ok {
			got = u
		}
	}))

	req := httptest.NewRequest(http.MethodGet, "/profile", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if got == nil {
		t.Fatal("no user loaded from session")
	}
	if got.ID != 7 || got.Name != "Ivan Petrov" || got.ESIAUID != "uid-7" {
		t.Fatalf("unexpected session user: %+v", got)
	}
}

func TestSignOutClearsSession(t *testing.T) {
	initStore(t)

	signinRec := httptest.NewRecorder()
	signinReq := httptest.NewRequest(http.MethodGet, "/callback", nil)
	if err := auth.SignIn(signinRec, signinReq, auth.SessionUser{ID: 7}); err != nil {
		t.Fatalf("SignIn: %v", err)
	}

	signoutReq := httptest.NewRequest(http.MethodGet, "/logout", nil)
	for _, c := range signinRec.Result().Cookies() {
		signoutReq.AddCookie(c)
	}
	signoutRec := httptest.NewRecorder()
	if err := auth.SignOut(signoutRec, signoutReq); err != nil {
		t.Fatalf("SignOut: %v", err)
	}

	found := false
	for _, c := range signoutRec.Result().Cookies() {
		if c.Name == auth.SessionName && c.MaxAge < 0 {
			found = true
		}
	}
	if !found {
		t.Fatal("session cookie not expired on sign-out")
	}
}

func TestRequireSignedIn_NoUser_API_Returns401(t *testing.T) {
	initStore(t)

	handler := auth.RequireSignedIn(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("protected content"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/profile", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestRequireSignedIn_NoUser_HTML_Redirects(t *testing.T) {
	initStore(t)

	handler := auth.RequireSignedIn(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("protected content"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/profile?tab=orgs", nil)
	req.Header.Set("Accept", "text/html")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303", rec.Code)
	}
	loc := rec.Header().Get("Location")
	if !strings.HasPrefix(loc, "/?return=") {
		t.Fatalf("location = %q", loc)
	}
}

func TestCurrentUser_NoUser(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if _, ok := auth.CurrentUser(req); ok {
		t.Fatal("CurrentUser reported a user on a bare request")
	}
}
