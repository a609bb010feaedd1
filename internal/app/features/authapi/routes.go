// internal/app/features/authapi/routes.go
package authapi

import (
	"github.com/go-chi/chi/v5"
)

// Routes wires the auth API endpoints onto a fresh router. The caller
// mounts the result under /api/v1/auth.
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()

	r.Get("/authorize", h.ServeAuthorize)
	r.Post("/token", h.ServeToken)
	r.Post("/userinfo", h.ServeUserInfo)
	r.Get("/logout", h.ServeLogout)
	r.Get("/callback", h.ServeCallback)

	return r
}
