package redisrepo_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	apperrors "github.com/sigea-app/sigea/internal/errors"
	"github.com/sigea-app/sigea/sessions"
	"github.com/sigea-app/sigea/sessions/redisrepo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedisRepo(t *testing.T) (*redisrepo.SessionRepo, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return redisrepo.New(client), mr
}

func TestSessionRepo_RecordRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo, mr := setupRedisRepo(t)

	expires := time.Now().Add(time.Hour).Truncate(time.Second)
	record := &sessions.Record{
		Token:      "tok-1",
		IdentityID: "U1",
		Email:      "ana@example.edu",
		Provider:   "password",
		CreatedAt:  time.Now().Truncate(time.Second),
		ExpiresAt:  expires,
	}
	require.NoError(t, repo.Upsert(ctx, record))
	assert.True(t, mr.Exists("sigea:session:tok-1"))

	got, err := repo.Get(ctx, "tok-1")
	require.NoError(t, err)
	assert.Equal(t, "U1", got.IdentityID)
	assert.Equal(t, "ana@example.edu", got.Email)
	assert.True(t, got.ExpiresAt.Equal(expires))

	require.NoError(t, repo.Delete(ctx, "tok-1"))
	_, err = repo.Get(ctx, "tok-1")
	assert.ErrorIs(t, err, apperrors.ErrSessionNotFound)
}

func TestSessionRepo_RecordsExpireWithTTL(t *testing.T) {
	ctx := context.Background()
	repo, mr := setupRedisRepo(t)

	require.NoError(t, repo.Upsert(ctx, &sessions.Record{Token: "tok-1", ExpiresAt: time.Now().Add(time.Minute)}))
	require.NoError(t, repo.Bind(ctx, "visitor-1", "tok-1", time.Now().Add(time.Minute)))

	mr.FastForward(2 * time.Minute)

	_, err := repo.Get(ctx, "tok-1")
	assert.ErrorIs(t, err, apperrors.ErrSessionNotFound)
	token, err := repo.Bound(ctx, "visitor-1")
	require.NoError(t, err)
	assert.Empty(t, token)
}

func TestSessionRepo_Bindings(t *testing.T) {
	ctx := context.Background()
	repo, _ := setupRedisRepo(t)

	token, err := repo.Bound(ctx, "visitor-1")
	require.NoError(t, err)
	assert.Empty(t, token)

	require.NoError(t, repo.Bind(ctx, "visitor-1", "tok-1", time.Now().Add(time.Hour)))
	token, err = repo.Bound(ctx, "visitor-1")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", token)

	require.NoError(t, repo.Unbind(ctx, "visitor-1"))
	token, err = repo.Bound(ctx, "visitor-1")
	require.NoError(t, err)
	assert.Empty(t, token)
}

func TestSessionRepo_RejectsExpiredRecords(t *testing.T) {
	repo, _ := setupRedisRepo(t)
	err := repo.Upsert(context.Background(), &sessions.Record{Token: "tok", ExpiresAt: time.Now().Add(-time.Second)})
	assert.ErrorIs(t, err, apperrors.ErrSessionExpired)
}

func TestSessionRepo_ConnectivityErrors(t *testing.T) {
	repo, mr := setupRedisRepo(t)
	mr.Close()

	_, err := repo.Get(context.Background(), "tok-1")
	assert.ErrorIs(t, err, apperrors.ErrConnectivity)
}

func TestSessionRepo_KeyPrefix(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	repo := redisrepo.New(client, redisrepo.WithKeyPrefix("test:"))
	require.NoError(t, repo.Bind(context.Background(), "v", "tok", time.Now().Add(time.Hour)))
	assert.True(t, mr.Exists("test:visitor:v"))
}
