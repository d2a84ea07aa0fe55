// Package pgrepo implements the profile store on PostgreSQL.
package pgrepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	apperrors "github.com/sigea-app/sigea/internal/errors"
	"github.com/sigea-app/sigea/internal/utils"
	"github.com/sigea-app/sigea/users"
)

var _ users.ProfileRepo = (*ProfileRepo)(nil)

const (
	selectProfileSQL = `
		SELECT id, full_name, COALESCE(avatar_url, ''), COALESCE(user_type, ''),
			COALESCE(institution, ''), COALESCE(registration_number, ''), updated_at
		FROM profiles
		WHERE id = $1`

	updateProfileSQL = `
		UPDATE profiles SET
			full_name = COALESCE($2, full_name),
			avatar_url = COALESCE($3, avatar_url),
			institution = COALESCE($4, institution),
			registration_number = COALESCE($5, registration_number),
			updated_at = $6
		WHERE id = $1`

	upsertProfileSQL = `
		INSERT INTO profiles (id, full_name, avatar_url, user_type, institution, registration_number, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			full_name = EXCLUDED.full_name,
			avatar_url = EXCLUDED.avatar_url,
			user_type = EXCLUDED.user_type,
			institution = EXCLUDED.institution,
			registration_number = EXCLUDED.registration_number,
			updated_at = EXCLUDED.updated_at`

	createProfilesTableSQL = `
		CREATE TABLE IF NOT EXISTS profiles (
			id TEXT PRIMARY KEY,
			full_name TEXT NOT NULL DEFAULT '',
			avatar_url TEXT,
			user_type TEXT CHECK (user_type IN ('aluno','servidor','comunidade_externa','gestor','admin')),
			institution TEXT,
			registration_number TEXT,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`
)

// ProfileRepo reads and updates profile rows.
type ProfileRepo struct {
	db      DatabaseIface
	nowTime func() time.Time
}

// NewProfileRepo wraps a pool (or a pgxmock pool in tests).
func NewProfileRepo(db DatabaseIface) *ProfileRepo {
	return &ProfileRepo{db: db, nowTime: time.Now}
}

// Open connects a pgx pool and pings it.
func Open(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MaxConnLifetime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// Migrate creates the profiles table if it does not exist.
func (r *ProfileRepo) Migrate(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, createProfilesTableSQL); err != nil {
		return fmt.Errorf("migrate profiles: %w", err)
	}
	return nil
}

func (r *ProfileRepo) GetByID(ctx context.Context, id string) (*users.UserProfile, error) {
	var p users.UserProfile
	var userType string
	err := r.db.QueryRow(ctx, selectProfileSQL, id).Scan(
		&p.ID,
		&p.FullName,
		&p.AvatarURL,
		&userType,
		&p.Institution,
		&p.RegistrationNumber,
		&p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	p.UserType = users.UserType(userType)
	return &p, nil
}

func (r *ProfileRepo) Update(ctx context.Context, id string, update users.ProfileUpdate) error {
	tag, err := r.db.Exec(ctx, updateProfileSQL,
		id,
		update.FullName,
		update.AvatarURL,
		update.Institution,
		update.RegistrationNumber,
		r.nowTime(),
	)
	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.Wrapf(apperrors.ErrNotFound, "profile %s", id)
	}
	return nil
}

func (r *ProfileRepo) Upsert(ctx context.Context, profile *users.UserProfile) error {
	if profile.ID == "" {
		return apperrors.Wrapf(apperrors.ErrInvalidRequest, "profile id is required")
	}
	updatedAt := profile.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = r.nowTime()
	}
	_, err := r.db.Exec(ctx, upsertProfileSQL,
		profile.ID,
		profile.FullName,
		utils.NilIfZero(profile.AvatarURL),
		utils.NilIfZero(string(profile.UserType)),
		utils.NilIfZero(profile.Institution),
		utils.NilIfZero(profile.RegistrationNumber),
		updatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert profile: %w", err)
	}
	return nil
}
