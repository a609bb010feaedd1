// internal/app/store/authrequests/store.go
package authrequests

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/dalemusser/esiagate/internal/app/store"
	"github.com/dalemusser/esiagate/internal/app/system/gwerr"
	"github.com/dalemusser/esiagate/internal/domain/models"
)

// Store is the authorization-request ledger. Every authorization
// attempt gets a row keyed by its unique state, completed exactly once
// by the provider callback.
type Store struct {
	db *sql.DB
}

// New creates the ledger store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

const columns = `id, client_id, response_type, provider, scope, redirect_uri,
	state, nonce, code_verifier, authorization_code, error, error_description,
	created_at, completed_at, is_completed`

func scanRequest(row *sql.Row) (*models.AuthorizationRequest, error) {
	var ar models.AuthorizationRequest
	err := row.Scan(
		&ar.ID, &ar.ClientID, &ar.ResponseType, &ar.Provider, &ar.Scope,
		&ar.RedirectURI, &ar.State, &ar.Nonce, &ar.CodeVerifier,
		&ar.AuthorizationCode, &ar.Error, &ar.ErrorDescription,
		&ar.CreatedAt, &ar.CompletedAt, &ar.IsCompleted,
	)
	if err != nil {
		return nil, err
	}
	return &ar, nil
}

// Create inserts a pending ledger row. State must be unique; a
// collision is reported as a validation error.
func (s *Store) Create(ctx context.Context, ar models.AuthorizationRequest) (*models.AuthorizationRequest, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO authorization_requests
			(client_id, response_type, provider, scope, redirect_uri, state, nonce, code_verifier)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+columns,
		ar.ClientID, ar.ResponseType, ar.Provider, ar.Scope, ar.RedirectURI,
		ar.State, ar.Nonce, ar.CodeVerifier,
	)

	created, err := scanRequest(row)
	if err != nil {
		if store.IsUniqueViolation(err) {
			return nil, gwerr.Validation("authorization request with this state already exists",
				map[string]any{"state": ar.State})
		}
		return nil, err
	}
	return created, nil
}

// GetByState loads a ledger row by its unique state.
func (s *Store) GetByState(ctx context.Context, state string) (*models.AuthorizationRequest, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+columns+` FROM authorization_requests WHERE state = $1`, state)

	ar, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, gwerr.NotFound("authorization request not found",
			map[string]any{"state": state})
	}
	if err != nil {
		return nil, err
	}
	return ar, nil
}

// GetByCode loads a completed ledger row by the authorization code the
// provider issued. Used at token exchange to recover the PKCE verifier
// stored when the flow began.
func (s *Store) GetByCode(ctx context.Context, code string) (*models.AuthorizationRequest, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+columns+` FROM authorization_requests WHERE authorization_code = $1`, code)

	ar, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, gwerr.NotFound("authorization request not found", nil)
	}
	if err != nil {
		return nil, err
	}
	return ar, nil
}

// CompleteWithCode marks a ledger row completed with an authorization
// code. A repeated completion overwrites the code and timestamp; this
// is lenient on purpose and gives no replay protection.
func (s *Store) CompleteWithCode(ctx context.Context, state, code string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE authorization_requests
		SET authorization_code = $2, is_completed = TRUE, completed_at = $3
		WHERE state = $1`,
		state, code, time.Now().UTC())
	if err != nil {
		return err
	}
	return requireRow(res, state)
}

// CompleteWithError marks a ledger row completed with a provider error.
func (s *Store) CompleteWithError(ctx context.Context, state, errCode string, description *string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE authorization_requests
		SET error = $2, error_description = $3, is_completed = TRUE, completed_at = $4
		WHERE state = $1`,
		state, errCode, description, time.Now().UTC())
	if err != nil {
		return err
	}
	return requireRow(res, state)
}

func requireRow(res sql.Result, state string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return gwerr.NotFound("authorization request not found",
			map[string]any{"state": state})
	}
	return nil
}
