package seed

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/sigea-app/sigea/auth"
	apperrors "github.com/sigea-app/sigea/internal/errors"
	"github.com/sigea-app/sigea/users"
)

// User is one seeded account. Profile is optional so unprovisioned accounts
// can be seeded too.
type User struct {
	Email    string             `json:"email"`
	Password string             `json:"password"`
	Profile  *users.UserProfile `json:"profile,omitempty"`
}

// File is the JSON seed document.
type File struct {
	Users []User `json:"users"`
}

// Registrar creates password identities.
type Registrar interface {
	Register(ctx context.Context, email, password string) (*auth.Identity, error)
}

// Load reads a seed file from path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("[seed Load] read %s: %w", path, err)
	}
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("[seed Load] decode %s: %w", path, err)
	}
	return &f, nil
}

// Apply registers every user in f and stores their profiles. Accounts that
// already exist are left untouched, so Apply can run on every start.
func Apply(ctx context.Context, f *File, registrar Registrar, profiles users.ProfileRepo) (created int, err error) {
	for _, u := range f.Users {
		identity, err := registrar.Register(ctx, u.Email, u.Password)
		if apperrors.Is(err, apperrors.ErrIdentityExists) {
			log.Debug().Str("email", u.Email).Msg("seed user already exists")
			continue
		}
		if err != nil {
			return created, fmt.Errorf("[seed Apply] register %s: %w", u.Email, err)
		}
		created++

		if u.Profile == nil {
			continue
		}
		profile := *u.Profile
		profile.ID = identity.ID
		if err := profiles.Upsert(ctx, &profile); err != nil {
			return created, fmt.Errorf("[seed Apply] profile for %s: %w", u.Email, err)
		}
	}
	log.Info().Int("created", created).Int("total", len(f.Users)).Msg("seed applied")
	return created, nil
}
