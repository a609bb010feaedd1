// internal/app/store/orggroups/groupstore.go
package orggroupstore

import (
	"context"
	"database/sql"
	"errors"

	"github.com/dalemusser/esiagate/internal/app/store"
	"github.com/dalemusser/esiagate/internal/app/system/gwerr"
	"github.com/dalemusser/esiagate/internal/domain/models"
)

// Store manages organization access-group rows. Groups are created
// once per (organization_id, group_id) and never updated afterwards.
type Store struct {
	db *sql.DB
}

// New creates a group store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

const columns = `id, organization_id, group_id, name, description, is_system,
	it_system, esia_url, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGroup(row rowScanner) (*models.OrganizationGroup, error) {
	var g models.OrganizationGroup
	err := row.Scan(
		&g.ID, &g.OrganizationID, &g.GroupID, &g.Name, &g.Description,
		&g.IsSystem, &g.ITSystem, &g.ESIAURL, &g.CreatedAt, &g.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// Create inserts a group row. A duplicate (organization_id, group_id)
// pair is reported as a validation error.
func (s *Store) Create(ctx context.Context, g models.OrganizationGroup) (*models.OrganizationGroup, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO organization_groups
			(organization_id, group_id, name, description, is_system, it_system, esia_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+columns,
		g.OrganizationID, g.GroupID, g.Name, g.Description, g.IsSystem,
		g.ITSystem, g.ESIAURL,
	)

	created, err := scanGroup(row)
	if err != nil {
		if store.IsUniqueViolation(err) {
			return nil, gwerr.Validation("group already exists for this organization",
				map[string]any{"organization_id": g.OrganizationID, "group_id": g.GroupID})
		}
		return nil, err
	}
	return created, nil
}

// GetByGroupID loads a group by its mnemonic within an organization.
func (s *Store) GetByGroupID(ctx context.Context, orgID int64, groupID string) (*models.OrganizationGroup, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+columns+` FROM organization_groups
		WHERE organization_id = $1 AND group_id = $2`, orgID, groupID)

	g, err := scanGroup(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, gwerr.NotFound("group not found",
			map[string]any{"organization_id": orgID, "group_id": groupID})
	}
	if err != nil {
		return nil, err
	}
	return g, nil
}

// ListByOrganization returns all groups of an organization.
func (s *Store) ListByOrganization(ctx context.Context, orgID int64) ([]models.OrganizationGroup, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+columns+` FROM organization_groups
		WHERE organization_id = $1
		ORDER BY id`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := []models.OrganizationGroup{}
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *g)
	}
	return list, rows.Err()
}
