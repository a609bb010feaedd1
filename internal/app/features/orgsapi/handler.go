// internal/app/features/orgsapi/handler.go
//
// Package orgsapi exposes CRUD over local organization records together
// with their addresses and access groups, plus two Bearer-authenticated
// passthrough queries against ESIA.
package orgsapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/dalemusser/esiagate/internal/app/reconcile"
	addressstore "github.com/dalemusser/esiagate/internal/app/store/orgaddresses"
	orggroupstore "github.com/dalemusser/esiagate/internal/app/store/orggroups"
	organizationstore "github.com/dalemusser/esiagate/internal/app/store/organizations"
	"github.com/dalemusser/esiagate/internal/app/system/gwerr"
	"github.com/dalemusser/esiagate/internal/app/system/httpjson"
	"github.com/dalemusser/esiagate/internal/app/system/paging"
	"github.com/dalemusser/esiagate/internal/app/system/timeouts"
	"github.com/dalemusser/esiagate/internal/domain/models"
	"github.com/dalemusser/esiagate/internal/esia"
)

// Handler holds the dependencies of the organizations API.
type Handler struct {
	Orgs       *organizationstore.Store
	Addresses  *addressstore.Store
	Groups     *orggroupstore.Store
	ESIA       *esia.Client
	Reconciler *reconcile.Engine
	Log        *zap.Logger
}

// NewHandler constructs an organizations API handler.
func NewHandler(orgs *organizationstore.Store, addresses *addressstore.Store,
	groups *orggroupstore.Store, client *esia.Client, rec *reconcile.Engine,
	logger *zap.Logger) *Handler {
	return &Handler{
		Orgs:       orgs,
		Addresses:  addresses,
		Groups:     groups,
		ESIA:       client,
		Reconciler: rec,
		Log:        logger,
	}
}

// orgBody is shared by create and update requests. On create esia_oid
// is required; on update absent fields keep their stored values.
type orgBody struct {
	ESIAOID                *int64  `json:"esia_oid"`
	PrnOID                 *int64  `json:"prn_oid"`
	FullName               *string `json:"full_name"`
	ShortName              *string `json:"short_name"`
	OGRN                   *string `json:"ogrn"`
	INN                    *string `json:"inn"`
	KPP                    *string `json:"kpp"`
	OrgType                *string `json:"org_type"`
	Leg                    *string `json:"leg"`
	OKTMO                  *string `json:"oktmo"`
	Phone                  *string `json:"phone"`
	Email                  *string `json:"email"`
	IsChief                *bool   `json:"is_chief"`
	IsAdmin                *bool   `json:"is_admin"`
	IsActive               *bool   `json:"is_active"`
	HasRightOfSubstitution *bool   `json:"has_right_of_substitution"`
	HasApprovalTabAccess   *bool   `json:"has_approval_tab_access"`
	IsLiquidated           *bool   `json:"is_liquidated"`
	StaffCount             *int64  `json:"staff_count"`
	AgencyTerRange         *string `json:"agency_ter_range"`
	AgencyType             *string `json:"agency_type"`
	ETag                   *string `json:"e_tag"`
}

func (b orgBody) patch() organizationstore.Patch {
	return organizationstore.Patch{
		PrnOID:                 b.PrnOID,
		FullName:               b.FullName,
		ShortName:              b.ShortName,
		OGRN:                   b.OGRN,
		INN:                    b.INN,
		KPP:                    b.KPP,
		OrgType:                b.OrgType,
		Leg:                    b.Leg,
		OKTMO:                  b.OKTMO,
		Phone:                  b.Phone,
		Email:                  b.Email,
		IsChief:                b.IsChief,
		IsAdmin:                b.IsAdmin,
		IsActive:               b.IsActive,
		HasRightOfSubstitution: b.HasRightOfSubstitution,
		HasApprovalTabAccess:   b.HasApprovalTabAccess,
		IsLiquidated:           b.IsLiquidated,
		StaffCount:             b.StaffCount,
		AgencyTerRange:         b.AgencyTerRange,
		AgencyType:             b.AgencyType,
		ETag:                   b.ETag,
	}
}

/*───────────────────────────────*| CRUD |*───────────────────────────────*/

func (h *Handler) ServeList(w http.ResponseWriter, r *http.Request) {
	page := paging.Parse(r)

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "list organizations")
	defer cancel()

	orgs, err := h.Orgs.List(ctx, page.Skip, page.Limit)
	if err != nil {
		httpjson.WriteError(w, h.Log, err)
		return
	}
	httpjson.Write(w, http.StatusOK, orgs)
}

func (h *Handler) ServeGet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "org_id")
	if err != nil {
		httpjson.WriteError(w, h.Log, err)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "get organization")
	defer cancel()

	o, err := h.Orgs.GetByID(ctx, id)
	if err != nil {
		httpjson.WriteError(w, h.Log, err)
		return
	}
	httpjson.Write(w, http.StatusOK, o)
}

func (h *Handler) ServeGetByESIAOID(w http.ResponseWriter, r *http.Request) {
	oid, err := pathID(r, "esia_oid")
	if err != nil {
		httpjson.WriteError(w, h.Log, err)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "get organization by esia_oid")
	defer cancel()

	o, err := h.Orgs.GetByESIAOID(ctx, oid)
	if err != nil {
		httpjson.WriteError(w, h.Log, err)
		return
	}
	httpjson.Write(w, http.StatusOK, o)
}

func (h *Handler) ServeCreate(w http.ResponseWriter, r *http.Request) {
	var req orgBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpjson.WriteError(w, h.Log, gwerr.Validation("malformed JSON body", nil))
		return
	}
	if req.ESIAOID == nil {
		httpjson.WriteError(w, h.Log, gwerr.Validation("esia_oid is required",
			map[string]any{"field": "esia_oid"}))
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "create organization")
	defer cancel()

	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}

	o, err := h.Orgs.Create(ctx, models.Organization{
		ESIAOID:                *req.ESIAOID,
		PrnOID:                 req.PrnOID,
		FullName:               req.FullName,
		ShortName:              req.ShortName,
		OGRN:                   req.OGRN,
		INN:                    req.INN,
		KPP:                    req.KPP,
		OrgType:                req.OrgType,
		Leg:                    req.Leg,
		OKTMO:                  req.OKTMO,
		Phone:                  req.Phone,
		Email:                  req.Email,
		IsChief:                boolVal(req.IsChief),
		IsAdmin:                boolVal(req.IsAdmin),
		IsActive:               active,
		HasRightOfSubstitution: boolVal(req.HasRightOfSubstitution),
		HasApprovalTabAccess:   boolVal(req.HasApprovalTabAccess),
		IsLiquidated:           boolVal(req.IsLiquidated),
		StaffCount:             req.StaffCount,
		AgencyTerRange:         req.AgencyTerRange,
		AgencyType:             req.AgencyType,
		ETag:                   req.ETag,
	})
	if err != nil {
		httpjson.WriteError(w, h.Log, err)
		return
	}

	h.Log.Info("organization created",
		zap.Int64("organization_id", o.ID), zap.Int64("esia_oid", o.ESIAOID))
	httpjson.Write(w, http.StatusOK, o)
}

func (h *Handler) ServeUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "org_id")
	if err != nil {
		httpjson.WriteError(w, h.Log, err)
		return
	}

	var req orgBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpjson.WriteError(w, h.Log, gwerr.Validation("malformed JSON body", nil))
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "update organization")
	defer cancel()

	o, err := h.Orgs.Update(ctx, id, req.patch())
	if err != nil {
		httpjson.WriteError(w, h.Log, err)
		return
	}

	h.Log.Info("organization updated", zap.Int64("organization_id", o.ID))
	httpjson.Write(w, http.StatusOK, o)
}

func (h *Handler) ServeDelete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "org_id")
	if err != nil {
		httpjson.WriteError(w, h.Log, err)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "delete organization")
	defer cancel()

	if err := h.Orgs.Delete(ctx, id); err != nil {
		httpjson.WriteError(w, h.Log, err)
		return
	}

	h.Log.Info("organization deleted", zap.Int64("organization_id", id))
	httpjson.Write(w, http.StatusOK, map[string]string{"message": "organization deleted"})
}

func (h *Handler) ServeListByUser(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "user_id")
	if err != nil {
		httpjson.WriteError(w, h.Log, err)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "list organizations of user")
	defer cancel()

	orgs, err := h.Orgs.ListByUser(ctx, userID)
	if err != nil {
		httpjson.WriteError(w, h.Log, err)
		return
	}
	httpjson.Write(w, http.StatusOK, orgs)
}

/*───────────────────────────────*| Addresses and groups |*───────────────────────────────*/

// addressBody is the JSON body for address creation.
type addressBody struct {
	AddressType               string  `json:"address_type"`
	PostalCode                *string `json:"postal_code"`
	CountryID                 *string `json:"country_id"`
	AddressStr                *string `json:"address_str"`
	Building                  *string `json:"building"`
	Corpus                    *string `json:"corpus"`
	House                     *string `json:"house"`
	Apartment                 *string `json:"apartment"`
	FiasCode                  *string `json:"fias_code"`
	Region                    *string `json:"region"`
	City                      *string `json:"city"`
	InnerCityDistrict         *string `json:"inner_city_district"`
	District                  *string `json:"district"`
	Settlement                *string `json:"settlement"`
	AdditionalTerritory       *string `json:"additional_territory"`
	AdditionalTerritoryStreet *string `json:"additional_territory_street"`
	Street                    *string `json:"street"`
}

func (h *Handler) ServeCreateAddress(w http.ResponseWriter, r *http.Request) {
	orgID, err := pathID(r, "org_id")
	if err != nil {
		httpjson.WriteError(w, h.Log, err)
		return
	}

	var req addressBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpjson.WriteError(w, h.Log, gwerr.Validation("malformed JSON body", nil))
		return
	}
	if req.AddressType == "" {
		httpjson.WriteError(w, h.Log, gwerr.Validation("address_type is required",
			map[string]any{"field": "address_type"}))
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "create organization address")
	defer cancel()

	a, err := h.Addresses.Create(ctx, models.OrganizationAddress{
		OrganizationID:            orgID,
		AddressType:               req.AddressType,
		PostalCode:                req.PostalCode,
		CountryID:                 req.CountryID,
		AddressStr:                req.AddressStr,
		Building:                  req.Building,
		Corpus:                    req.Corpus,
		House:                     req.House,
		Apartment:                 req.Apartment,
		FiasCode:                  req.FiasCode,
		Region:                    req.Region,
		City:                      req.City,
		InnerCityDistrict:         req.InnerCityDistrict,
		District:                  req.District,
		Settlement:                req.Settlement,
		AdditionalTerritory:       req.AdditionalTerritory,
		AdditionalTerritoryStreet: req.AdditionalTerritoryStreet,
		Street:                    req.Street,
	})
	if err != nil {
		httpjson.WriteError(w, h.Log, err)
		return
	}

	httpjson.Write(w, http.StatusOK, a)
}

func (h *Handler) ServeListAddresses(w http.ResponseWriter, r *http.Request) {
	orgID, err := pathID(r, "org_id")
	if err != nil {
		httpjson.WriteError(w, h.Log, err)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "list organization addresses")
	defer cancel()

	addrs, err := h.Addresses.ListByOrganization(ctx, orgID)
	if err != nil {
		httpjson.WriteError(w, h.Log, err)
		return
	}
	httpjson.Write(w, http.StatusOK, addrs)
}

func (h *Handler) ServeListGroups(w http.ResponseWriter, r *http.Request) {
	orgID, err := pathID(r, "org_id")
	if err != nil {
		httpjson.WriteError(w, h.Log, err)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "list organization groups")
	defer cancel()

	groups, err := h.Groups.ListByOrganization(ctx, orgID)
	if err != nil {
		httpjson.WriteError(w, h.Log, err)
		return
	}
	httpjson.Write(w, http.StatusOK, groups)
}

/*───────────────────────────────*| ESIA passthrough |*───────────────────────────────*/

// ServeESIAInfo queries ESIA for organization data under the caller's
// access token. The requested scopes come from the repeated "scopes"
// query parameter.
func (h *Handler) ServeESIAInfo(w http.ResponseWriter, r *http.Request) {
	oid, err := pathID(r, "org_oid")
	if err != nil {
		httpjson.WriteError(w, h.Log, err)
		return
	}

	accessToken, err := bearerToken(r)
	if err != nil {
		httpjson.WriteError(w, h.Log, err)
		return
	}

	scopes := r.URL.Query()["scopes"]
	if len(scopes) == 0 {
		httpjson.WriteError(w, h.Log, gwerr.Validation("scopes query parameter is required",
			map[string]any{"field": "scopes"}))
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Long(), h.Log, "organization info from ESIA")
	defer cancel()

	info, err := h.ESIA.OrganizationInfo(ctx, accessToken, oid, scopes)
	if err != nil {
		httpjson.WriteError(w, h.Log, err)
		return
	}
	httpjson.Write(w, http.StatusOK, info)
}

// ServeESIAGroups queries ESIA for the organization's access groups and
// ingests any groups not yet known locally.
func (h *Handler) ServeESIAGroups(w http.ResponseWriter, r *http.Request) {
	oid, err := pathID(r, "org_oid")
	if err != nil {
		httpjson.WriteError(w, h.Log, err)
		return
	}

	accessToken, err := bearerToken(r)
	if err != nil {
		httpjson.WriteError(w, h.Log, err)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Long(), h.Log, "groups info from ESIA")
	defer cancel()

	info, err := h.ESIA.GroupsInfo(ctx, accessToken, oid)
	if err != nil {
		httpjson.WriteError(w, h.Log, err)
		return
	}

	// Claims from the groups query carry the oid the reconciler needs.
	if _, ok := info["oid"]; !ok {
		info["oid"] = oid
	}
	if err := h.Reconciler.Groups(ctx, info); err != nil {
		h.Log.Error("group reconciliation failed", zap.Int64("org_oid", oid), zap.Error(err))
	}

	httpjson.Write(w, http.StatusOK, info)
}

func bearerToken(r *http.Request) (string, error) {
	const bearerPrefix = "Bearer "

	authz := r.Header.Get("Authorization")
	if !strings.HasPrefix(authz, bearerPrefix) || len(authz) == len(bearerPrefix) {
		return "", gwerr.Authentication(
			"authorization header must be of the form 'Bearer <token>'",
			map[string]any{"header": "Authorization"})
	}
	return authz[len(bearerPrefix):], nil
}

func boolVal(b *bool) bool { return b != nil && *b }

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
