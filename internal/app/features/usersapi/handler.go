// internal/app/features/usersapi/handler.go
//
// Package usersapi exposes CRUD over the local user records that the
// reconciliation engine maintains from provider claims.
package usersapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	userstore "github.com/dalemusser/esiagate/internal/app/store/users"
	"github.com/dalemusser/esiagate/internal/app/system/gwerr"
	"github.com/dalemusser/esiagate/internal/app/system/httpjson"
	"github.com/dalemusser/esiagate/internal/app/system/paging"
	"github.com/dalemusser/esiagate/internal/app/system/timeouts"
	"github.com/dalemusser/esiagate/internal/domain/models"
)

// Handler holds the dependencies of the users API.
type Handler struct {
	Users *userstore.Store
	Log   *zap.Logger
}

// NewHandler constructs a users API handler.
func NewHandler(users *userstore.Store, logger *zap.Logger) *Handler {
	return &Handler{Users: users, Log: logger}
}

// createRequest is the JSON body for user creation. Only esia_uid is
// required.
type createRequest struct {
	ESIAUID           string          `json:"esia_uid"`
	FirstName         *string         `json:"first_name"`
	LastName          *string         `json:"last_name"`
	MiddleName        *string         `json:"middle_name"`
	Trusted           bool            `json:"trusted"`
	Status            *string         `json:"status"`
	Verifying         bool            `json:"verifying"`
	RIDDoc            *int64          `json:"r_id_doc"`
	ContainsUpCfmCode bool            `json:"contains_up_cfm_code"`
	ETag              *string         `json:"e_tag"`
	UpdatedOn         *int64          `json:"updated_on"`
	StateFacts        json.RawMessage `json:"state_facts"`
}

// updateRequest is the JSON body for partial updates. Absent fields
// keep their stored values.
type updateRequest struct {
	FirstName         *string         `json:"first_name"`
	LastName          *string         `json:"last_name"`
	MiddleName        *string         `json:"middle_name"`
	Trusted           *bool           `json:"trusted"`
	Status            *string         `json:"status"`
	Verifying         *bool           `json:"verifying"`
	RIDDoc            *int64          `json:"r_id_doc"`
	ContainsUpCfmCode *bool           `json:"contains_up_cfm_code"`
	ETag              *string         `json:"e_tag"`
	UpdatedOn         *int64          `json:"updated_on"`
	StateFacts        json.RawMessage `json:"state_facts"`
}

func (h *Handler) ServeList(w http.ResponseWriter, r *http.Request) {
	page := paging.Parse(r)

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "list users")
	defer cancel()

	users, err := h.Users.List(ctx, page.Skip, page.Limit)
	if err != nil {
		httpjson.WriteError(w, h.Log, err)
		return
	}
	httpjson.Write(w, http.StatusOK, users)
}

func (h *Handler) ServeGet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "user_id")
	if err != nil {
		httpjson.WriteError(w, h.Log, err)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "get user")
	defer cancel()

	u, err := h.Users.GetByID(ctx, id)
	if err != nil {
		httpjson.WriteError(w, h.Log, err)
		return
	}
	httpjson.Write(w, http.StatusOK, u)
}

func (h *Handler) ServeGetByESIAUID(w http.ResponseWriter, r *http.Request) {
	esiaUID := chi.URLParam(r, "esia_uid")

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "get user by esia_uid")
	defer cancel()

	u, err := h.Users.GetByESIAUID(ctx, esiaUID)
	if err != nil {
		httpjson.WriteError(w, h.Log, err)
		return
	}
	httpjson.Write(w, http.StatusOK, u)
}

func (h *Handler) ServeCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpjson.WriteError(w, h.Log, gwerr.Validation("malformed JSON body", nil))
		return
	}
	if req.ESIAUID == "" {
		httpjson.WriteError(w, h.Log, gwerr.Validation("esia_uid is required",
			map[string]any{"field": "esia_uid"}))
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "create user")
	defer cancel()

	u, err := h.Users.Create(ctx, models.User{
		ESIAUID:           req.ESIAUID,
		FirstName:         req.FirstName,
		LastName:          req.LastName,
		MiddleName:        req.MiddleName,
		Trusted:           req.Trusted,
		Status:            req.Status,
		Verifying:         req.Verifying,
		RIDDoc:            req.RIDDoc,
		ContainsUpCfmCode: req.ContainsUpCfmCode,
		ETag:              req.ETag,
		UpdatedOn:         req.UpdatedOn,
		StateFacts:        req.StateFacts,
	})
	if err != nil {
		httpjson.WriteError(w, h.Log, err)
		return
	}

	h.Log.Info("user created", zap.Int64("user_id", u.ID), zap.String("esia_uid", u.ESIAUID))
	httpjson.Write(w, http.StatusOK, u)
}

func (h *Handler) ServeUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "user_id")
	if err != nil {
		httpjson.WriteError(w, h.Log, err)
		return
	}

	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpjson.WriteError(w, h.Log, gwerr.Validation("malformed JSON body", nil))
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "update user")
	defer cancel()

	u, err := h.Users.Update(ctx, id, userstore.Patch{
		FirstName:         req.FirstName,
		LastName:          req.LastName,
		MiddleName:        req.MiddleName,
		Trusted:           req.Trusted,
		Status:            req.Status,
		Verifying:         req.Verifying,
		RIDDoc:            req.RIDDoc,
		ContainsUpCfmCode: req.ContainsUpCfmCode,
		ETag:              req.ETag,
		UpdatedOn:         req.UpdatedOn,
		StateFacts:        req.StateFacts,
	})
	if err != nil {
		httpjson.WriteError(w, h.Log, err)
		return
	}

	h.Log.Info("user updated", zap.Int64("user_id", u.ID))
	httpjson.Write(w, http.StatusOK, u)
}

func (h *Handler) ServeDelete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "user_id")
	if err != nil {
		httpjson.WriteError(w, h.Log, err)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "delete user")
	defer cancel()

	if err := h.Users.Delete(ctx, id); err != nil {
		httpjson.WriteError(w, h.Log, err)
		return
	}

	h.Log.Info("user deleted", zap.Int64("user_id", id))
	httpjson.Write(w, http.StatusOK, map[string]string{"message": "user deleted"})
}

// pathID parses a numeric chi path parameter.
func pathID(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, gwerr.Validation(name+" must be an integer",
			map[string]any{"field": name, "value": raw})
	}
	return id, nil
}
