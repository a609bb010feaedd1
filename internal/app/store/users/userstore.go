// internal/app/store/users/userstore.go
package userstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/dalemusser/esiagate/internal/app/store"
	"github.com/dalemusser/esiagate/internal/app/system/gwerr"
	"github.com/dalemusser/esiagate/internal/domain/models"
)

// Store manages user rows and their explicit delete cascade.
type Store struct {
	db *sql.DB
}

// New creates a user store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

const columns = `id, esia_uid, first_name, last_name, middle_name, trusted,
	status, verifying, r_id_doc, contains_up_cfm_code, e_tag, updated_on,
	state_facts, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var u models.User
	err := row.Scan(
		&u.ID, &u.ESIAUID, &u.FirstName, &u.LastName, &u.MiddleName,
		&u.Trusted, &u.Status, &u.Verifying, &u.RIDDoc, &u.ContainsUpCfmCode,
		&u.ETag, &u.UpdatedOn, &u.StateFacts, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Patch carries partial user updates. Nil fields keep the stored value.
type Patch struct {
	FirstName         *string
	LastName          *string
	MiddleName        *string
	Trusted           *bool
	Status            *string
	Verifying         *bool
	RIDDoc            *int64
	ContainsUpCfmCode *bool
	ETag              *string
	UpdatedOn         *int64
	StateFacts        json.RawMessage
}

// GetByID loads a user by internal id.
func (s *Store) GetByID(ctx context.Context, id int64) (*models.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+columns+` FROM users WHERE id = $1`, id)

	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, gwerr.NotFound("user not found", map[string]any{"user_id": id})
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

// GetByESIAUID loads a user by its external subject identifier.
func (s *Store) GetByESIAUID(ctx context.Context, esiaUID string) (*models.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+columns+` FROM users WHERE esia_uid = $1`, esiaUID)

	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, gwerr.NotFound("user not found", map[string]any{"esia_uid": esiaUID})
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

// Create inserts a new user. A duplicate esia_uid is reported as a
// validation error.
func (s *Store) Create(ctx context.Context, u models.User) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO users
			(esia_uid, first_name, last_name, middle_name, trusted, status,
			 verifying, r_id_doc, contains_up_cfm_code, e_tag, updated_on, state_facts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING `+columns,
		u.ESIAUID, u.FirstName, u.LastName, u.MiddleName, u.Trusted, u.Status,
		u.Verifying, u.RIDDoc, u.ContainsUpCfmCode, u.ETag, u.UpdatedOn, u.StateFacts,
	)

	created, err := scanUser(row)
	if err != nil {
		if store.IsUniqueViolation(err) {
			return nil, gwerr.Validation("user with this esia_uid already exists",
				map[string]any{"esia_uid": u.ESIAUID})
		}
		return nil, err
	}
	return created, nil
}

// Update applies a partial patch to a user. Nil patch fields leave the
// stored values unchanged.
func (s *Store) Update(ctx context.Context, id int64, p Patch) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE users SET
			first_name           = COALESCE($2, first_name),
			last_name            = COALESCE($3, last_name),
			middle_name          = COALESCE($4, middle_name),
			trusted              = COALESCE($5, trusted),
			status               = COALESCE($6, status),
			verifying            = COALESCE($7, verifying),
			r_id_doc             = COALESCE($8, r_id_doc),
			contains_up_cfm_code = COALESCE($9, contains_up_cfm_code),
			e_tag                = COALESCE($10, e_tag),
			updated_on           = COALESCE($11, updated_on),
			state_facts          = COALESCE($12, state_facts),
			updated_at           = now()
		WHERE id = $1
		RETURNING `+columns,
		id, p.FirstName, p.LastName, p.MiddleName, p.Trusted, p.Status,
		p.Verifying, p.RIDDoc, p.ContainsUpCfmCode, p.ETag, p.UpdatedOn, p.StateFacts,
	)

	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, gwerr.NotFound("user not found", map[string]any{"user_id": id})
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

// Upsert creates the user if esia_uid is unknown, otherwise applies the
// patch to the existing row. The returned flag reports whether a create
// occurred, which the reconciliation engine uses for logging.
func (s *Store) Upsert(ctx context.Context, esiaUID string, p Patch) (*models.User, bool, error) {
	existing, err := s.GetByESIAUID(ctx, esiaUID)
	switch {
	case err == nil:
		u, uerr := s.Update(ctx, existing.ID, p)
		return u, false, uerr
	case gwerr.KindOf(err) == gwerr.KindNotFound:
		u, cerr := s.Create(ctx, models.User{
			ESIAUID:           esiaUID,
			FirstName:         p.FirstName,
			LastName:          p.LastName,
			MiddleName:        p.MiddleName,
			Trusted:           boolVal(p.Trusted),
			Status:            p.Status,
			Verifying:         boolVal(p.Verifying),
			RIDDoc:            p.RIDDoc,
			ContainsUpCfmCode: boolVal(p.ContainsUpCfmCode),
			ETag:              p.ETag,
			UpdatedOn:         p.UpdatedOn,
			StateFacts:        p.StateFacts,
		})
		return u, true, cerr
	default:
		return nil, false, err
	}
}

// Delete removes a user together with its tokens and organization
// memberships in a single transaction.
func (s *Store) Delete(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM user_tokens WHERE user_id = $1`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM user_organizations WHERE user_id = $1`, id); err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return gwerr.NotFound("user not found", map[string]any{"user_id": id})
	}

	return tx.Commit()
}

// List returns users ordered by id with skip/limit pagination.
func (s *Store) List(ctx context.Context, skip, limit int) ([]models.User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+columns+` FROM users ORDER BY id OFFSET $1 LIMIT $2`, skip, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

func boolVal(b *bool) bool { return b != nil && *b }
