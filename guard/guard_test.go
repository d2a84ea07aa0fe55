package guard_test

import (
	"testing"

	"github.com/sigea-app/sigea/auth"
	"github.com/sigea-app/sigea/guard"
	"github.com/sigea-app/sigea/session"
	"github.com/sigea-app/sigea/users"
	"github.com/stretchr/testify/assert"
)

var (
	testSession = &auth.Session{AccessToken: "t", Identity: auth.Identity{ID: "U1"}}
	student     = &users.ResolvedUser{ID: "U1", Profile: users.ProfileExternalCommunity}
	manager     = &users.ResolvedUser{ID: "U1", Profile: users.ProfileManager}
)

func TestSessionGate(t *testing.T) {
	tests := []struct {
		name     string
		snap     session.Snapshot
		expected guard.Decision
	}{
		{
			name:     "loading shows placeholder",
			snap:     session.Snapshot{State: session.Initializing, Loading: true},
			expected: guard.Decision{Outcome: guard.Placeholder},
		},
		{
			name:     "loading wins over a present session",
			snap:     session.Snapshot{Loading: true, Session: testSession},
			expected: guard.Decision{Outcome: guard.Placeholder},
		},
		{
			name:     "no session redirects with next",
			snap:     session.Snapshot{State: session.Anonymous},
			expected: guard.Decision{Outcome: guard.Redirect, Location: "/login?next=%2Fapp%3Ftab%3D2"},
		},
		{
			name:     "session without user is allowed",
			snap:     session.Snapshot{State: session.Anonymous, Session: testSession},
			expected: guard.Decision{Outcome: guard.Allow},
		},
		{
			name:     "authenticated is allowed",
			snap:     session.Snapshot{State: session.Authenticated, Session: testSession, User: student},
			expected: guard.Decision{Outcome: guard.Allow},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, guard.SessionGate(tt.snap, "/app?tab=2"))
		})
	}
}

func TestProfileGate(t *testing.T) {
	tests := []struct {
		name     string
		snap     session.Snapshot
		profiles []users.Profile
		expected guard.Outcome
	}{
		{"loading", session.Snapshot{Loading: true}, nil, guard.Placeholder},
		{"no session", session.Snapshot{State: session.Anonymous}, nil, guard.Redirect},
		{"profile still resolving", session.Snapshot{State: session.Authenticating, Session: testSession, Resolving: true}, nil, guard.Wait},
		{"profile missing", session.Snapshot{State: session.Anonymous, Session: testSession}, nil, guard.Unprovisioned},
		{"any profile allowed", session.Snapshot{State: session.Authenticated, Session: testSession, User: student}, nil, guard.Allow},
		{"role matches", session.Snapshot{State: session.Authenticated, Session: testSession, User: manager}, []users.Profile{users.ProfileManager, users.ProfileAdmin}, guard.Allow},
		{"role does not match", session.Snapshot{State: session.Authenticated, Session: testSession, User: student}, []users.Profile{users.ProfileManager, users.ProfileAdmin}, guard.Forbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, guard.ProfileGate(tt.snap, "/gestor", tt.profiles...).Outcome)
		})
	}
}

func TestLoginURL(t *testing.T) {
	assert.Equal(t, "/login", guard.LoginURL(""))
	assert.Equal(t, "/login?next=%2Fgestor", guard.LoginURL("/gestor"))
	assert.Equal(t, "/login", guard.LoginURL("https://evil.example/"))
	assert.Equal(t, "/login", guard.LoginURL("//evil.example/"))
}

func TestSafeNext(t *testing.T) {
	tests := []struct {
		next string
		safe bool
	}{
		{"/app", true},
		{"/gestor?x=1", true},
		{"", false},
		{"app", false},
		{"//evil.example", false},
		{"/\\evil.example", false},
		{"https://evil.example", false},
	}
	for _, tt := range tests {
		t.Run(tt.next, func(t *testing.T) {
			assert.Equal(t, tt.safe, guard.SafeNext(tt.next))
		})
	}
}
