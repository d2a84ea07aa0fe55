package session

import (
	"github.com/sigea-app/sigea/auth"
	"github.com/sigea-app/sigea/users"
)

// Snapshot is a read-only copy of a controller's state. User is set only
// while Session is set and its profile was found.
type Snapshot struct {
	State   State
	Loading bool

	Session *auth.Session
	User    *users.ResolvedUser

	// Resolving is true while the profile for Session is being looked up.
	Resolving bool

	// ConfigError is set for the life of a controller that has no backend.
	ConfigError error

	// ProfileError is the failure of the last profile lookup, if it failed.
	ProfileError error

	// Version increases on every change.
	Version uint64
}

// HasSession reports whether an authentication session is present.
func (s Snapshot) HasSession() bool {
	return s.Session != nil
}

// Unprovisioned reports a session whose profile lookup finished without a user.
func (s Snapshot) Unprovisioned() bool {
	return s.Session != nil && s.User == nil && !s.Resolving
}
