// internal/app/store/orgaddresses/addressstore.go
package addressstore

import (
	"context"
	"database/sql"

	"github.com/dalemusser/esiagate/internal/app/store"
	"github.com/dalemusser/esiagate/internal/app/system/gwerr"
	"github.com/dalemusser/esiagate/internal/domain/models"
)

// Store manages organization address rows. Addresses are simple
// create/list satellites with no merge logic.
type Store struct {
	db *sql.DB
}

// New creates an address store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

const columns = `id, organization_id, address_type, postal_code, country_id,
	address_str, building, corpus, house, apartment, fias_code, region, city,
	inner_city_district, district, settlement, additional_territory,
	additional_territory_street, street, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAddress(row rowScanner) (*models.OrganizationAddress, error) {
	var a models.OrganizationAddress
	err := row.Scan(
		&a.ID, &a.OrganizationID, &a.AddressType, &a.PostalCode, &a.CountryID,
		&a.AddressStr, &a.Building, &a.Corpus, &a.House, &a.Apartment,
		&a.FiasCode, &a.Region, &a.City, &a.InnerCityDistrict, &a.District,
		&a.Settlement, &a.AdditionalTerritory, &a.AdditionalTerritoryStreet,
		&a.Street, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// Create inserts an address for an organization. An unknown
// organization id surfaces as a validation error.
func (s *Store) Create(ctx context.Context, a models.OrganizationAddress) (*models.OrganizationAddress, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO organization_addresses
			(organization_id, address_type, postal_code, country_id, address_str,
			 building, corpus, house, apartment, fias_code, region, city,
			 inner_city_district, district, settlement, additional_territory,
			 additional_territory_street, street)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			 $15, $16, $17, $18)
		RETURNING `+columns,
		a.OrganizationID, a.AddressType, a.PostalCode, a.CountryID,
		a.AddressStr, a.Building, a.Corpus, a.House, a.Apartment, a.FiasCode,
		a.Region, a.City, a.InnerCityDistrict, a.District, a.Settlement,
		a.AdditionalTerritory, a.AdditionalTerritoryStreet, a.Street,
	)

	created, err := scanAddress(row)
	if err != nil {
		if store.IsForeignKeyViolation(err) {
			return nil, gwerr.Validation("organization does not exist",
				map[string]any{"organization_id": a.OrganizationID})
		}
		return nil, err
	}
	return created, nil
}

// ListByOrganization returns all addresses of an organization.
func (s *Store) ListByOrganization(ctx context.Context, orgID int64) ([]models.OrganizationAddress, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+columns+` FROM organization_addresses
		WHERE organization_id = $1
		ORDER BY id`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := []models.OrganizationAddress{}
	for rows.Next() {
		a, err := scanAddress(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *a)
	}
	return list, rows.Err()
}
