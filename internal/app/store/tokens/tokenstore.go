// internal/app/store/tokens/tokenstore.go
package tokenstore

import (
	"context"
	"database/sql"
	"errors"

	"github.com/dalemusser/esiagate/internal/app/system/gwerr"
	"github.com/dalemusser/esiagate/internal/domain/models"
)

// Store manages user tokens. At most one token per user is active at
// any time.
type Store struct {
	db *sql.DB
}

// New creates a token store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

const columns = `id, user_id, access_token, refresh_token, token_type,
	expires_in, scope, id_token, created_at_timestamp, created_at, updated_at,
	is_active`

func scanToken(row *sql.Row) (*models.UserToken, error) {
	var t models.UserToken
	err := row.Scan(
		&t.ID, &t.UserID, &t.AccessToken, &t.RefreshToken, &t.TokenType,
		&t.ExpiresIn, &t.Scope, &t.IDToken, &t.CreatedAtTimestamp,
		&t.CreatedAt, &t.UpdatedAt, &t.IsActive,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Create stores a new active token, deactivating all prior active
// tokens for the user in the same transaction.
func (s *Store) Create(ctx context.Context, t models.UserToken) (*models.UserToken, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		UPDATE user_tokens SET is_active = FALSE, updated_at = now()
		WHERE user_id = $1 AND is_active = TRUE`, t.UserID); err != nil {
		return nil, err
	}

	row := tx.QueryRowContext(ctx, `
		INSERT INTO user_tokens
			(user_id, access_token, refresh_token, token_type, expires_in,
			 scope, id_token, created_at_timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+columns,
		t.UserID, t.AccessToken, t.RefreshToken, t.TokenType, t.ExpiresIn,
		t.Scope, t.IDToken, t.CreatedAtTimestamp,
	)

	created, err := scanToken(row)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return created, nil
}

// GetActive returns the user's currently active token.
func (s *Store) GetActive(ctx context.Context, userID int64) (*models.UserToken, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+columns+` FROM user_tokens
		WHERE user_id = $1 AND is_active = TRUE
		ORDER BY id DESC LIMIT 1`, userID)

	t, err := scanToken(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, gwerr.NotFound("no active token for user",
			map[string]any{"user_id": userID})
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// DeactivateAll marks every token of the user inactive. Used on logout;
// user deletion removes the rows outright instead.
func (s *Store) DeactivateAll(ctx context.Context, userID int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE user_tokens SET is_active = FALSE, updated_at = now()
		WHERE user_id = $1`, userID)
	return err
}
