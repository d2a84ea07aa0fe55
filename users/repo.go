package users

import "context"

// ProfileRepo is the profile store.
type ProfileRepo interface {
	// GetByID returns the profile for an identity id, or nil with no error
	// when the row does not exist.
	GetByID(ctx context.Context, id string) (*UserProfile, error)

	// Update changes the editable fields of an existing profile.
	Update(ctx context.Context, id string, update ProfileUpdate) error

	// Upsert creates or replaces a profile row.
	Upsert(ctx context.Context, profile *UserProfile) error
}
