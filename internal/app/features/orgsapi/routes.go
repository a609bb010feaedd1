// internal/app/features/orgsapi/routes.go
package orgsapi

import (
	"github.com/go-chi/chi/v5"
)

// Routes wires the organizations API endpoints onto a fresh router.
// The caller mounts the result under /api/v1/organizations.
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.ServeList)
	r.Post("/", h.ServeCreate)

	r.Get("/users/{user_id}", h.ServeListByUser)

	r.Get("/esia/{esia_oid}", h.ServeGetByESIAOID)
	r.Post("/esia/{org_oid}/info", h.ServeESIAInfo)
	r.Post("/esia/{org_oid}/groups", h.ServeESIAGroups)

	r.Get("/{org_id}", h.ServeGet)
	r.Put("/{org_id}", h.ServeUpdate)
	r.Delete("/{org_id}", h.ServeDelete)

	r.Post("/{org_id}/addresses", h.ServeCreateAddress)
	r.Get("/{org_id}/addresses", h.ServeListAddresses)
	r.Get("/{org_id}/groups", h.ServeListGroups)

	return r
}
