package authflow_test

import (
	"testing"
	"time"

	"github.com/sigea-app/sigea/auth/authflow"
	apperrors "github.com/sigea-app/sigea/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryRepoTakeIsSingleUse(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := authflow.NewInMemoryRepo(10*time.Minute, authflow.WithNowTime(func() time.Time { return now }))

	require.NoError(t, repo.Upsert("state-1", &authflow.AuthFlowState{
		VisitorID:    "visitor-1",
		Provider:     "google",
		CodeVerifier: "verifier",
		Nonce:        "nonce",
		ReturnURL:    "/app",
		CreatedAt:    now,
	}))

	flow, err := repo.Take("state-1")
	require.NoError(t, err)
	assert.Equal(t, "visitor-1", flow.VisitorID)
	assert.Equal(t, "/app", flow.ReturnURL)

	_, err = repo.Take("state-1")
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)
}

func TestInMemoryRepoExpiry(t *testing.T) {
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := start
	repo := authflow.NewInMemoryRepo(10*time.Minute, authflow.WithNowTime(func() time.Time { return clock }))

	require.NoError(t, repo.Upsert("state-1", &authflow.AuthFlowState{VisitorID: "v", CreatedAt: start}))

	_, err := repo.Get("state-1")
	require.NoError(t, err)

	clock = start.Add(11 * time.Minute)
	_, err = repo.Get("state-1")
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)
}

func TestInMemoryRepoReturnsCopies(t *testing.T) {
	repo := authflow.NewInMemoryRepo(0)
	require.NoError(t, repo.Upsert("s", &authflow.AuthFlowState{ReturnURL: "/app", CreatedAt: time.Now()}))

	flow, err := repo.Get("s")
	require.NoError(t, err)
	flow.ReturnURL = "/elsewhere"

	again, err := repo.Get("s")
	require.NoError(t, err)
	assert.Equal(t, "/app", again.ReturnURL)
}

func TestInMemoryRepoValidation(t *testing.T) {
	repo := authflow.NewInMemoryRepo(time.Minute)

	assert.Error(t, repo.Upsert("", &authflow.AuthFlowState{}))
	assert.Error(t, repo.Upsert("s", nil))
	assert.Error(t, repo.Delete(""))

	_, err := repo.Get("")
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)
}
