// Package pgcredentials implements the self-hosted backend's identity store on PostgreSQL.
package pgcredentials

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sigea-app/sigea/auth/local"
	apperrors "github.com/sigea-app/sigea/internal/errors"
	"github.com/sigea-app/sigea/internal/utils"
)

var _ local.CredentialRepo = (*CredentialRepo)(nil)

const (
	selectCredentialSQL = `
		SELECT id, email, COALESCE(password_hash, ''), provider, created_at
		FROM credentials
		WHERE email = $1`

	insertCredentialSQL = `
		INSERT INTO credentials (id, email, password_hash, provider, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT DO NOTHING`

	createCredentialsTableSQL = `
		CREATE TABLE IF NOT EXISTS credentials (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			password_hash TEXT,
			provider TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`
)

// DatabaseIface is the subset of pgxpool.Pool the repository needs, so tests can use pgxmock
type DatabaseIface interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// CredentialRepo keeps identities in the credentials table.
type CredentialRepo struct {
	db DatabaseIface
}

func NewCredentialRepo(db DatabaseIface) *CredentialRepo {
	return &CredentialRepo{db: db}
}

// Migrate creates the credentials table if it does not exist.
func (r *CredentialRepo) Migrate(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, createCredentialsTableSQL); err != nil {
		return fmt.Errorf("migrate credentials: %w", err)
	}
	return nil
}

func (r *CredentialRepo) GetByEmail(ctx context.Context, email string) (*local.Credential, error) {
	var c local.Credential
	err := r.db.QueryRow(ctx, selectCredentialSQL, normalizeEmail(email)).Scan(
		&c.ID,
		&c.Email,
		&c.PasswordHash,
		&c.Provider,
		&c.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrIdentityNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get credential: %w", err)
	}
	return &c, nil
}

func (r *CredentialRepo) Create(ctx context.Context, credential *local.Credential) error {
	if credential == nil || credential.ID == "" || credential.Email == "" {
		return apperrors.Wrapf(apperrors.ErrInvalidRequest, "credential id and email are required")
	}

	tag, err := r.db.Exec(ctx, insertCredentialSQL,
		credential.ID,
		normalizeEmail(credential.Email),
		utils.NilIfZero(credential.PasswordHash),
		credential.Provider,
		credential.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create credential: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrIdentityExists
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
