// internal/domain/models/organization.go
package models

import "time"

// Organization is the local record for an ESIA organization.
// ESIAOID is the provider's organization identifier and is unique.
type Organization struct {
	ID        int64   `json:"id"`
	ESIAOID   int64   `json:"esia_oid"`
	PrnOID    *int64  `json:"prn_oid,omitempty"` // parent organization OID
	FullName  *string `json:"full_name,omitempty"`
	ShortName *string `json:"short_name,omitempty"`
	OGRN      *string `json:"ogrn,omitempty"`
	INN       *string `json:"inn,omitempty"`
	KPP       *string `json:"kpp,omitempty"`
	OrgType   *string `json:"org_type,omitempty"`
	Leg       *string `json:"leg,omitempty"`
	OKTMO     *string `json:"oktmo,omitempty"`

	Phone *string `json:"phone,omitempty"`
	Email *string `json:"email,omitempty"`

	IsChief                bool `json:"is_chief"`
	IsAdmin                bool `json:"is_admin"`
	IsActive               bool `json:"is_active"`
	HasRightOfSubstitution bool `json:"has_right_of_substitution"`
	HasApprovalTabAccess   bool `json:"has_approval_tab_access"`
	IsLiquidated           bool `json:"is_liquidated"`

	StaffCount     *int64  `json:"staff_count,omitempty"`
	AgencyTerRange *string `json:"agency_ter_range,omitempty"`
	AgencyType     *string `json:"agency_type,omitempty"`
	ETag           *string `json:"e_tag,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// OrganizationAddress is a postal or legal address of an organization.
type OrganizationAddress struct {
	ID             int64  `json:"id"`
	OrganizationID int64  `json:"organization_id"`
	AddressType    string `json:"address_type"` // postal | legal

	PostalCode               *string `json:"postal_code,omitempty"`
	CountryID                *string `json:"country_id,omitempty"`
	AddressStr               *string `json:"address_str,omitempty"`
	Building                 *string `json:"building,omitempty"`
	Corpus                   *string `json:"corpus,omitempty"`
	House                    *string `json:"house,omitempty"`
	Apartment                *string `json:"apartment,omitempty"`
	FiasCode                 *string `json:"fias_code,omitempty"`
	Region                   *string `json:"region,omitempty"`
	City                     *string `json:"city,omitempty"`
	InnerCityDistrict        *string `json:"inner_city_district,omitempty"`
	District                 *string `json:"district,omitempty"`
	Settlement               *string `json:"settlement,omitempty"`
	AdditionalTerritory      *string `json:"additional_territory,omitempty"`
	AdditionalTerritoryStreet *string `json:"additional_territory_street,omitempty"`
	Street                   *string `json:"street,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// OrganizationGroup is an access group of an organization.
// Groups ingested from ESIA are create-only: a re-sync never rewrites
// the fields of an existing (organization_id, group_id) row.
type OrganizationGroup struct {
	ID             int64   `json:"id"`
	OrganizationID int64   `json:"organization_id"`
	GroupID        string  `json:"group_id"` // group mnemonic
	Name           *string `json:"name,omitempty"`
	Description    *string `json:"description,omitempty"`
	IsSystem       bool    `json:"is_system"`
	ITSystem       *string `json:"it_system,omitempty"` // owning system mnemonic
	ESIAURL        *string `json:"esia_url,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UserOrganization links a user to an organization with role flags.
// The (user_id, organization_id) pair is unique; reprocessing the same
// membership refreshes the flags and reactivates the link.
type UserOrganization struct {
	ID             int64 `json:"id"`
	UserID         int64 `json:"user_id"`
	OrganizationID int64 `json:"organization_id"`

	IsChief                bool `json:"is_chief"`
	IsAdmin                bool `json:"is_admin"`
	HasRightOfSubstitution bool `json:"has_right_of_substitution"`
	HasApprovalTabAccess   bool `json:"has_approval_tab_access"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	IsActive  bool      `json:"is_active"`
}
