// internal/app/store/organizations/organizationstore.go
package organizationstore

import (
	"context"
	"database/sql"
	"errors"

	"github.com/dalemusser/esiagate/internal/app/store"
	"github.com/dalemusser/esiagate/internal/app/system/gwerr"
	"github.com/dalemusser/esiagate/internal/domain/models"
)

// Store manages organization rows and their explicit delete cascade.
type Store struct {
	db *sql.DB
}

// New creates an organization store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

const columns = `id, esia_oid, prn_oid, full_name, short_name, ogrn, inn, kpp,
	org_type, leg, oktmo, phone, email, is_chief, is_admin, is_active,
	has_right_of_substitution, has_approval_tab_access, is_liquidated,
	staff_count, agency_ter_range, agency_type, e_tag, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrg(row rowScanner) (*models.Organization, error) {
	var o models.Organization
	err := row.Scan(
		&o.ID, &o.ESIAOID, &o.PrnOID, &o.FullName, &o.ShortName, &o.OGRN,
		&o.INN, &o.KPP, &o.OrgType, &o.Leg, &o.OKTMO, &o.Phone, &o.Email,
		&o.IsChief, &o.IsAdmin, &o.IsActive, &o.HasRightOfSubstitution,
		&o.HasApprovalTabAccess, &o.IsLiquidated, &o.StaffCount,
		&o.AgencyTerRange, &o.AgencyType, &o.ETag, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// Patch carries partial organization updates. Nil fields keep the
// stored value.
type Patch struct {
	PrnOID                 *int64
	FullName               *string
	ShortName              *string
	OGRN                   *string
	INN                    *string
	KPP                    *string
	OrgType                *string
	Leg                    *string
	OKTMO                  *string
	Phone                  *string
	Email                  *string
	IsChief                *bool
	IsAdmin                *bool
	IsActive               *bool
	HasRightOfSubstitution *bool
	HasApprovalTabAccess   *bool
	IsLiquidated           *bool
	StaffCount             *int64
	AgencyTerRange         *string
	AgencyType             *string
	ETag                   *string
}

// GetByID loads an organization by internal id.
func (s *Store) GetByID(ctx context.Context, id int64) (*models.Organization, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+columns+` FROM organizations WHERE id = $1`, id)

	o, err := scanOrg(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, gwerr.NotFound("organization not found",
			map[string]any{"organization_id": id})
	}
	if err != nil {
		return nil, err
	}
	return o, nil
}

// GetByESIAOID loads an organization by its external identifier.
func (s *Store) GetByESIAOID(ctx context.Context, esiaOID int64) (*models.Organization, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+columns+` FROM organizations WHERE esia_oid = $1`, esiaOID)

	o, err := scanOrg(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, gwerr.NotFound("organization not found",
			map[string]any{"esia_oid": esiaOID})
	}
	if err != nil {
		return nil, err
	}
	return o, nil
}

// Create inserts a new organization. A duplicate esia_oid is reported
// as a validation error.
func (s *Store) Create(ctx context.Context, o models.Organization) (*models.Organization, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO organizations
			(esia_oid, prn_oid, full_name, short_name, ogrn, inn, kpp, org_type,
			 leg, oktmo, phone, email, is_chief, is_admin, is_active,
			 has_right_of_substitution, has_approval_tab_access, is_liquidated,
			 staff_count, agency_ter_range, agency_type, e_tag)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			 $15, $16, $17, $18, $19, $20, $21, $22)
		RETURNING `+columns,
		o.ESIAOID, o.PrnOID, o.FullName, o.ShortName, o.OGRN, o.INN, o.KPP,
		o.OrgType, o.Leg, o.OKTMO, o.Phone, o.Email, o.IsChief, o.IsAdmin,
		o.IsActive, o.HasRightOfSubstitution, o.HasApprovalTabAccess,
		o.IsLiquidated, o.StaffCount, o.AgencyTerRange, o.AgencyType, o.ETag,
	)

	created, err := scanOrg(row)
	if err != nil {
		if store.IsUniqueViolation(err) {
			return nil, gwerr.Validation("organization with this esia_oid already exists",
				map[string]any{"esia_oid": o.ESIAOID})
		}
		return nil, err
	}
	return created, nil
}

// Update applies a partial patch to an organization. Nil patch fields
// leave the stored values unchanged.
func (s *Store) Update(ctx context.Context, id int64, p Patch) (*models.Organization, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE organizations SET
			prn_oid                   = COALESCE($2, prn_oid),
			full_name                 = COALESCE($3, full_name),
			short_name                = COALESCE($4, short_name),
			ogrn                      = COALESCE($5, ogrn),
			inn                       = COALESCE($6, inn),
			kpp                       = COALESCE($7, kpp),
			org_type                  = COALESCE($8, org_type),
			leg                       = COALESCE($9, leg),
			oktmo                     = COALESCE($10, oktmo),
			phone                     = COALESCE($11, phone),
			email                     = COALESCE($12, email),
			is_chief                  = COALESCE($13, is_chief),
			is_admin                  = COALESCE($14, is_admin),
			is_active                 = COALESCE($15, is_active),
			has_right_of_substitution = COALESCE($16, has_right_of_substitution),
			has_approval_tab_access   = COALESCE($17, has_approval_tab_access),
			is_liquidated             = COALESCE($18, is_liquidated),
			staff_count               = COALESCE($19, staff_count),
			agency_ter_range          = COALESCE($20, agency_ter_range),
			agency_type               = COALESCE($21, agency_type),
			e_tag                     = COALESCE($22, e_tag),
			updated_at                = now()
		WHERE id = $1
		RETURNING `+columns,
		id, p.PrnOID, p.FullName, p.ShortName, p.OGRN, p.INN, p.KPP,
		p.OrgType, p.Leg, p.OKTMO, p.Phone, p.Email, p.IsChief, p.IsAdmin,
		p.IsActive, p.HasRightOfSubstitution, p.HasApprovalTabAccess,
		p.IsLiquidated, p.StaffCount, p.AgencyTerRange, p.AgencyType, p.ETag,
	)

	o, err := scanOrg(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, gwerr.NotFound("organization not found",
			map[string]any{"organization_id": id})
	}
	if err != nil {
		return nil, err
	}
	return o, nil
}

// Upsert creates the organization if esia_oid is unknown, otherwise
// applies the patch. The returned flag reports whether a create
// occurred.
func (s *Store) Upsert(ctx context.Context, esiaOID int64, p Patch) (*models.Organization, bool, error) {
	existing, err := s.GetByESIAOID(ctx, esiaOID)
	switch {
	case err == nil:
		o, uerr := s.Update(ctx, existing.ID, p)
		return o, false, uerr
	case gwerr.KindOf(err) == gwerr.KindNotFound:
		active := true
		if p.IsActive != nil {
			active = *p.IsActive
		}
		o, cerr := s.Create(ctx, models.Organization{
			ESIAOID:                esiaOID,
			PrnOID:                 p.PrnOID,
			FullName:               p.FullName,
			ShortName:              p.ShortName,
			OGRN:                   p.OGRN,
			INN:                    p.INN,
			KPP:                    p.KPP,
			OrgType:                p.OrgType,
			Leg:                    p.Leg,
			OKTMO:                  p.OKTMO,
			Phone:                  p.Phone,
			Email:                  p.Email,
			IsChief:                boolVal(p.IsChief),
			IsAdmin:                boolVal(p.IsAdmin),
			IsActive:               active,
			HasRightOfSubstitution: boolVal(p.HasRightOfSubstitution),
			HasApprovalTabAccess:   boolVal(p.HasApprovalTabAccess),
			IsLiquidated:           boolVal(p.IsLiquidated),
			StaffCount:             p.StaffCount,
			AgencyTerRange:         p.AgencyTerRange,
			AgencyType:             p.AgencyType,
			ETag:                   p.ETag,
		})
		return o, true, cerr
	default:
		return nil, false, err
	}
}

// Delete removes an organization together with its addresses, groups
// and memberships in a single transaction.
func (s *Store) Delete(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM organization_addresses WHERE organization_id = $1`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM organization_groups WHERE organization_id = $1`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM user_organizations WHERE organization_id = $1`, id); err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM organizations WHERE id = $1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return gwerr.NotFound("organization not found",
			map[string]any{"organization_id": id})
	}

	return tx.Commit()
}

// List returns organizations ordered by id with skip/limit pagination.
func (s *Store) List(ctx context.Context, skip, limit int) ([]models.Organization, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+columns+` FROM organizations ORDER BY id OFFSET $1 LIMIT $2`, skip, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orgs := []models.Organization{}
	for rows.Next() {
		o, err := scanOrg(rows)
		if err != nil {
			return nil, err
		}
		orgs = append(orgs, *o)
	}
	return orgs, rows.Err()
}

// ListByUser returns the organizations a user actively belongs to.
func (s *Store) ListByUser(ctx context.Context, userID int64) ([]models.Organization, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT o.id, o.esia_oid, o.prn_oid, o.full_name, o.short_name, o.ogrn,
			o.inn, o.kpp, o.org_type, o.leg, o.oktmo, o.phone, o.email,
			o.is_chief, o.is_admin, o.is_active, o.has_right_of_substitution,
			o.has_approval_tab_access, o.is_liquidated, o.staff_count,
			o.agency_ter_range, o.agency_type, o.e_tag, o.created_at, o.updated_at
		FROM organizations o
		JOIN user_organizations uo ON uo.organization_id = o.id
		WHERE uo.user_id = $1 AND uo.is_active = TRUE
		ORDER BY o.id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orgs := []models.Organization{}
	for rows.Next() {
		o, err := scanOrg(rows)
		if err != nil {
			return nil, err
		}
		orgs = append(orgs, *o)
	}
	return orgs, rows.Err()
}

func boolVal(b *bool) bool { return b != nil && *b }
