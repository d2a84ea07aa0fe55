// Package redisrepo stores sessions in Redis so they survive restarts and can
// be shared between instances.
package redisrepo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	apperrors "github.com/sigea-app/sigea/internal/errors"
	"github.com/sigea-app/sigea/sessions"
)

var _ sessions.Repo = (*SessionRepo)(nil)

const (
	DefaultKeyPrefix = "sigea:"
	recordKey        = "session:"
	bindingKey       = "visitor:"
)

// SessionRepo keeps each record as JSON under sigea:session:<token> and each
// visitor binding under sigea:visitor:<id>. Keys expire with the session, so
// DeleteExpired has nothing to do.
type SessionRepo struct {
	rdb     redis.UniversalClient
	prefix  string
	nowTime func() time.Time
}

type Option func(*SessionRepo)

// WithKeyPrefix overrides the default "sigea:" key prefix
func WithKeyPrefix(prefix string) Option {
	return func(r *SessionRepo) {
		r.prefix = prefix
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(r *SessionRepo) {
		r.nowTime = nowFunc
	}
}

func New(rdb redis.UniversalClient, options ...Option) *SessionRepo {
	r := &SessionRepo{rdb: rdb, prefix: DefaultKeyPrefix, nowTime: time.Now}
	for _, opt := range options {
		opt(r)
	}
	return r
}

// Connect creates a client and pings it with a short timeout.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return client, nil
}

func (r *SessionRepo) Upsert(ctx context.Context, record *sessions.Record) error {
	if record == nil || record.Token == "" {
		return apperrors.Wrapf(apperrors.ErrInvalidRequest, "session token is required")
	}
	ttl := record.ExpiresAt.Sub(r.nowTime())
	if ttl <= 0 {
		return apperrors.ErrSessionExpired
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := r.rdb.Set(ctx, r.key(recordKey, record.Token), payload, ttl).Err(); err != nil {
		return apperrors.Wrapf(apperrors.ErrConnectivity, "redis set session: %v", err)
	}
	return nil
}

func (r *SessionRepo) Get(ctx context.Context, token string) (*sessions.Record, error) {
	payload, err := r.rdb.Get(ctx, r.key(recordKey, token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, apperrors.ErrSessionNotFound
	}
	if err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrConnectivity, "redis get session: %v", err)
	}
	var record sessions.Record
	if err := json.Unmarshal(payload, &record); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &record, nil
}

func (r *SessionRepo) Delete(ctx context.Context, token string) error {
	if err := r.rdb.Del(ctx, r.key(recordKey, token)).Err(); err != nil {
		return apperrors.Wrapf(apperrors.ErrConnectivity, "redis delete session: %v", err)
	}
	return nil
}

func (r *SessionRepo) Bind(ctx context.Context, visitorID, token string, expiresAt time.Time) error {
	if visitorID == "" {
		return apperrors.Wrapf(apperrors.ErrInvalidRequest, "visitorID is required")
	}
	ttl := expiresAt.Sub(r.nowTime())
	if ttl <= 0 {
		return apperrors.ErrSessionExpired
	}
	if err := r.rdb.Set(ctx, r.key(bindingKey, visitorID), token, ttl).Err(); err != nil {
		return apperrors.Wrapf(apperrors.ErrConnectivity, "redis bind visitor: %v", err)
	}
	return nil
}

func (r *SessionRepo) Bound(ctx context.Context, visitorID string) (string, error) {
	token, err := r.rdb.Get(ctx, r.key(bindingKey, visitorID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", apperrors.Wrapf(apperrors.ErrConnectivity, "redis get binding: %v", err)
	}
	return token, nil
}

func (r *SessionRepo) Unbind(ctx context.Context, visitorID string) error {
	if err := r.rdb.Del(ctx, r.key(bindingKey, visitorID)).Err(); err != nil {
		return apperrors.Wrapf(apperrors.ErrConnectivity, "redis unbind visitor: %v", err)
	}
	return nil
}

func (r *SessionRepo) DeleteExpired(ctx context.Context, before time.Time) error {
	return nil
}

func (r *SessionRepo) key(kind, id string) string {
	return r.prefix + kind + id
}
