package pgcredentials_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/sigea-app/sigea/auth"
	"github.com/sigea-app/sigea/auth/local"
	"github.com/sigea-app/sigea/auth/local/pgcredentials"
	apperrors "github.com/sigea-app/sigea/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var credentialColumns = []string{"id", "email", "password_hash", "provider", "created_at"}

func createTestCredentialRepo(t *testing.T) (*pgcredentials.CredentialRepo, pgxmock.PgxPoolIface) {
	t.Helper()

	mockDB, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mockDB.Close)

	return pgcredentials.NewCredentialRepo(mockDB), mockDB
}

func TestCredentialRepo_GetByEmail(t *testing.T) {
	createdAt := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		setupDB func(pgxmock.PgxPoolIface)
		want    *local.Credential
		wantErr error
	}{
		{
			name: "credential found",
			setupDB: func(mockDB pgxmock.PgxPoolIface) {
				mockDB.ExpectQuery("(?s)SELECT (.+)FROM credentials").
					WithArgs("ana@example.edu").
					WillReturnRows(pgxmock.NewRows(credentialColumns).
						AddRow("U1", "ana@example.edu", "$2a$hash", auth.ProviderPassword, createdAt))
			},
			want: &local.Credential{
				ID:           "U1",
				Email:        "ana@example.edu",
				PasswordHash: "$2a$hash",
				Provider:     auth.ProviderPassword,
				CreatedAt:    createdAt,
			},
		},
		{
			name: "unknown email",
			setupDB: func(mockDB pgxmock.PgxPoolIface) {
				mockDB.ExpectQuery("(?s)SELECT (.+)FROM credentials").
					WithArgs("ana@example.edu").
					WillReturnRows(pgxmock.NewRows(credentialColumns))
			},
			wantErr: apperrors.ErrIdentityNotFound,
		},
		{
			name: "database error",
			setupDB: func(mockDB pgxmock.PgxPoolIface) {
				mockDB.ExpectQuery("(?s)SELECT (.+)FROM credentials").
					WithArgs("ana@example.edu").
					WillReturnError(errors.New("connection reset"))
			},
			wantErr: errors.New("connection reset"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mockDB := createTestCredentialRepo(t)
			tt.setupDB(mockDB)

			got, err := repo.GetByEmail(context.Background(), "  Ana@Example.edu ")
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr.Error())
				assert.Nil(t, got)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}
			assert.NoError(t, mockDB.ExpectationsWereMet())
		})
	}
}

func TestCredentialRepo_Create(t *testing.T) {
	credential := &local.Credential{
		ID:       local.IdentityID("ana@example.edu"),
		Email:    "Ana@Example.edu",
		Provider: auth.ProviderGoogle,
	}

	t.Run("inserts new identity", func(t *testing.T) {
		repo, mockDB := createTestCredentialRepo(t)
		mockDB.ExpectExec("INSERT INTO credentials").
			WithArgs(credential.ID, "ana@example.edu", pgxmock.AnyArg(), auth.ProviderGoogle, pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		require.NoError(t, repo.Create(context.Background(), credential))
		assert.NoError(t, mockDB.ExpectationsWereMet())
	})

	t.Run("email already taken", func(t *testing.T) {
		repo, mockDB := createTestCredentialRepo(t)
		mockDB.ExpectExec("INSERT INTO credentials").
			WithArgs(credential.ID, "ana@example.edu", pgxmock.AnyArg(), auth.ProviderGoogle, pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 0))

		err := repo.Create(context.Background(), credential)
		assert.ErrorIs(t, err, apperrors.ErrIdentityExists)
		assert.NoError(t, mockDB.ExpectationsWereMet())
	})

	t.Run("missing fields", func(t *testing.T) {
		repo, _ := createTestCredentialRepo(t)
		err := repo.Create(context.Background(), &local.Credential{Email: "ana@example.edu"})
		assert.ErrorIs(t, err, apperrors.ErrInvalidRequest)
	})
}

func TestCredentialRepo_Migrate(t *testing.T) {
	repo, mockDB := createTestCredentialRepo(t)
	mockDB.ExpectExec("CREATE TABLE IF NOT EXISTS credentials").
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))

	require.NoError(t, repo.Migrate(context.Background()))
	assert.NoError(t, mockDB.ExpectationsWereMet())
}
