// internal/app/features/usersapi/routes.go
package usersapi

import (
	"github.com/go-chi/chi/v5"
)

// Routes wires the users API endpoints onto a fresh router. The caller
// mounts the result under /api/v1/users.
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.ServeList)
	r.Post("/", h.ServeCreate)
	r.Get("/esia/{esia_uid}", h.ServeGetByESIAUID)
	r.Get("/{user_id}", h.ServeGet)
	r.Put("/{user_id}", h.ServeUpdate)
	r.Delete("/{user_id}", h.ServeDelete)

	return r
}
