package sessions

import (
	"time"

	"github.com/sigea-app/sigea/auth"
)

// Record is a persisted authenticated session. Records live from sign-in until
// sign-out or expiry and are looked up by their access token.
type Record struct {
	Token      string    `json:"token"`       // Signed access token (JWT)
	IdentityID string    `json:"identity_id"` // Identity the session belongs to
	Email      string    `json:"email,omitempty"`
	Provider   string    `json:"provider"`   // password or an OAuth provider name
	CreatedAt  time.Time `json:"created_at"` // When the session was issued
	ExpiresAt  time.Time `json:"expires_at"` // When the session expires
}

// Expired reports whether the record is past its expiry at now.
func (r *Record) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// Session converts the record to the handle exposed on the backend contract.
func (r *Record) Session() *auth.Session {
	return &auth.Session{
		AccessToken: r.Token,
		ExpiresAt:   r.ExpiresAt,
		Identity:    auth.Identity{ID: r.IdentityID, Email: r.Email},
		Provider:    r.Provider,
	}
}
