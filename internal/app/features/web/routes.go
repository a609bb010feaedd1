// internal/app/features/web/routes.go
package web

import "github.com/go-chi/chi/v5"

// Routes wires the browser-facing pages. The router is mounted at the
// site root.
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.ServeRoot)
	r.Get("/login", h.ServeLogin)
	r.Get("/callback", h.ServeCallback)
	r.Get("/profile", h.ServeProfile)
	r.Get("/scopes", h.ServeScopes)
	r.Get("/logout", h.ServeLogout)

	return r
}
