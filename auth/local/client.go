package local

import (
	"context"
	"time"

	"github.com/sigea-app/sigea/auth"
	apperrors "github.com/sigea-app/sigea/internal/errors"
)

// initialSessionTimeout bounds the session read behind INITIAL_SESSION.
const initialSessionTimeout = 5 * time.Second

// Client is the Service seen through one visitor, the way a browser SDK sees
// the backend through its own local storage.
type Client struct {
	service   *Service
	visitorID string
}

var _ auth.Backend = (*Client)(nil)

func (c *Client) GetSession(ctx context.Context) (*auth.Session, error) {
	return c.service.currentSession(ctx, c.visitorID)
}

func (c *Client) OnAuthStateChange(fn auth.Listener) func() {
	current := func() *auth.Session {
		ctx, cancel := context.WithTimeout(context.Background(), initialSessionTimeout)
		defer cancel()
		session, err := c.service.currentSession(ctx, c.visitorID)
		if err != nil {
			return nil
		}
		return session
	}
	return c.service.hub.subscribe(c.visitorID, current, fn)
}

func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*auth.Session, error) {
	return c.service.signInWithPassword(ctx, c.visitorID, email, password)
}

func (c *Client) SignInWithOAuth(ctx context.Context, provider, redirectTo string) (string, error) {
	return c.service.signInWithOAuth(ctx, c.visitorID, provider, redirectTo)
}

func (c *Client) SignOut(ctx context.Context) error {
	return c.service.signOut(ctx, c.visitorID)
}

func (c *Client) GetUser(ctx context.Context) (*auth.Identity, error) {
	session, err := c.service.currentSession(ctx, c.visitorID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, apperrors.ErrSessionNotFound
	}
	identity := session.Identity
	return &identity, nil
}
