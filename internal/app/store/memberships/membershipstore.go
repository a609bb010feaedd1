// internal/app/store/memberships/membershipstore.go
package membershipstore

import (
	"context"
	"database/sql"
	"errors"

	"github.com/dalemusser/esiagate/internal/app/system/gwerr"
	"github.com/dalemusser/esiagate/internal/domain/models"
)

// Store manages user-organization membership rows. Memberships are
// unique per (user_id, organization_id) pair.
type Store struct {
	db *sql.DB
}

// New creates a membership store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

const columns = `id, user_id, organization_id, is_chief, is_admin,
	has_right_of_substitution, has_approval_tab_access, created_at,
	updated_at, is_active`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMembership(row rowScanner) (*models.UserOrganization, error) {
	var m models.UserOrganization
	err := row.Scan(
		&m.ID, &m.UserID, &m.OrganizationID, &m.IsChief, &m.IsAdmin,
		&m.HasRightOfSubstitution, &m.HasApprovalTabAccess,
		&m.CreatedAt, &m.UpdatedAt, &m.IsActive,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// Flags are the role flags carried on a membership.
type Flags struct {
	IsChief                bool
	IsAdmin                bool
	HasRightOfSubstitution bool
	HasApprovalTabAccess   bool
}

// Upsert creates the membership or refreshes its flags. An existing
// row is always reactivated, whatever its previous is_active value.
func (s *Store) Upsert(ctx context.Context, userID, orgID int64, f Flags) (*models.UserOrganization, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+columns+` FROM user_organizations
		WHERE user_id = $1 AND organization_id = $2`, userID, orgID)

	existing, err := scanMembership(row)
	switch {
	case err == nil:
		updated := s.db.QueryRowContext(ctx, `
			UPDATE user_organizations SET
				is_chief = $2, is_admin = $3, has_right_of_substitution = $4,
				has_approval_tab_access = $5, is_active = TRUE, updated_at = now()
			WHERE id = $1
			RETURNING `+columns,
			existing.ID, f.IsChief, f.IsAdmin,
			f.HasRightOfSubstitution, f.HasApprovalTabAccess)
		m, uerr := scanMembership(updated)
		return m, false, uerr
	case errors.Is(err, sql.ErrNoRows):
		inserted := s.db.QueryRowContext(ctx, `
			INSERT INTO user_organizations
				(user_id, organization_id, is_chief, is_admin,
				 has_right_of_substitution, has_approval_tab_access)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING `+columns,
			userID, orgID, f.IsChief, f.IsAdmin,
			f.HasRightOfSubstitution, f.HasApprovalTabAccess)
		m, cerr := scanMembership(inserted)
		return m, true, cerr
	default:
		return nil, false, err
	}
}

// Get loads a membership by its unique pair.
func (s *Store) Get(ctx context.Context, userID, orgID int64) (*models.UserOrganization, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+columns+` FROM user_organizations
		WHERE user_id = $1 AND organization_id = $2`, userID, orgID)

	m, err := scanMembership(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, gwerr.NotFound("membership not found",
			map[string]any{"user_id": userID, "organization_id": orgID})
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// ListByUser returns the user's active memberships.
func (s *Store) ListByUser(ctx context.Context, userID int64) ([]models.UserOrganization, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+columns+` FROM user_organizations
		WHERE user_id = $1 AND is_active = TRUE
		ORDER BY id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := []models.UserOrganization{}
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *m)
	}
	return list, rows.Err()
}
