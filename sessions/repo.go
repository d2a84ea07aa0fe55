package sessions

import (
	"context"
	"time"
)

// Repo defines the interface for persisted session storage.
// Besides the records themselves it keeps the binding between a visitor and
// its current token, which is what lets a visitor resume a session on load.
type Repo interface {
	// Upsert creates or updates a session record
	Upsert(ctx context.Context, record *Record) error

	// Get retrieves a record by token. Returns ErrSessionNotFound when missing.
	Get(ctx context.Context, token string) (*Record, error)

	// Delete removes a record by token
	Delete(ctx context.Context, token string) error

	// Bind makes token the current session of visitorID until expiresAt
	Bind(ctx context.Context, visitorID, token string, expiresAt time.Time) error

	// Bound returns the token bound to visitorID, or "" when there is none
	Bound(ctx context.Context, visitorID string) (string, error)

	// Unbind clears the binding for visitorID
	Unbind(ctx context.Context, visitorID string) error

	// DeleteExpired removes records that expired before the given time
	DeleteExpired(ctx context.Context, before time.Time) error
}
