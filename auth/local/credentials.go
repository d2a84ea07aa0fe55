package local

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/sigea-app/sigea/internal/errors"
)

// Credential is an identity known to the self-hosted backend. PasswordHash is
// empty for identities that only ever signed in through an OAuth provider.
type Credential struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"password_hash,omitempty"`
	Provider     string    `json:"provider"`
	CreatedAt    time.Time `json:"created_at"`
}

// CredentialRepo stores identities keyed by id and by email.
type CredentialRepo interface {
	// GetByEmail returns ErrIdentityNotFound when no identity uses email.
	GetByEmail(ctx context.Context, email string) (*Credential, error)

	// Create returns ErrIdentityExists when the email is taken.
	Create(ctx context.Context, credential *Credential) error
}

var _ CredentialRepo = (*InMemoryCredentialRepo)(nil)

type InMemoryCredentialRepo struct {
	mu      sync.RWMutex
	byEmail map[string]Credential
}

func NewInMemoryCredentialRepo() *InMemoryCredentialRepo {
	return &InMemoryCredentialRepo{
		byEmail: make(map[string]Credential),
	}
}

func (r *InMemoryCredentialRepo) GetByEmail(ctx context.Context, email string) (*Credential, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	credential, exists := r.byEmail[normalizeEmail(email)]
	if !exists {
		return nil, apperrors.ErrIdentityNotFound
	}
	return &credential, nil
}

func (r *InMemoryCredentialRepo) Create(ctx context.Context, credential *Credential) error {
	if credential == nil || credential.ID == "" || credential.Email == "" {
		return apperrors.Wrapf(apperrors.ErrInvalidRequest, "credential id and email are required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := normalizeEmail(credential.Email)
	if _, exists := r.byEmail[key]; exists {
		return apperrors.ErrIdentityExists
	}
	stored := *credential
	stored.Email = key
	r.byEmail[key] = stored
	return nil
}

// identityNamespace scopes the name based identity ids.
var identityNamespace = uuid.MustParse("5b0f8a2e-6a7c-4d1e-9f3b-2c8e7d4a9b10")

// IdentityID is the stable identity id for email. Profiles are keyed by it,
// so the same address maps to the same id across restarts and stores.
func IdentityID(email string) string {
	return uuid.NewSHA1(identityNamespace, []byte(normalizeEmail(email))).String()
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
