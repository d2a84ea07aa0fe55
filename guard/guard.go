// Package guard decides whether a visitor may see a protected route. The
// decisions are pure functions of a session snapshot.
package guard

import (
	"net/url"

	"github.com/sigea-app/sigea/session"
	"github.com/sigea-app/sigea/users"
)

// LoginPath is where unauthenticated visitors are sent.
const LoginPath = "/login"

// Outcome of a gate.
type Outcome int

const (
	Allow Outcome = iota
	Placeholder
	Redirect
	Wait
	Unprovisioned
	Forbidden
)

func (o Outcome) String() string {
	switch o {
	case Allow:
		return "allow"
	case Placeholder:
		return "placeholder"
	case Redirect:
		return "redirect"
	case Wait:
		return "wait"
	case Unprovisioned:
		return "unprovisioned"
	case Forbidden:
		return "forbidden"
	default:
		return "unknown"
	}
}

// Decision is the result of a gate. Location is set for Redirect.
type Decision struct {
	Outcome  Outcome
	Location string
}

// SessionGate allows any visitor with a session. requested is the location
// to return to after login.
func SessionGate(snap session.Snapshot, requested string) Decision {
	switch {
	case snap.Loading:
		return Decision{Outcome: Placeholder}
	case snap.Session == nil:
		return Decision{Outcome: Redirect, Location: LoginURL(requested)}
	default:
		return Decision{Outcome: Allow}
	}
}

// ProfileGate additionally requires a resolved user and, when profiles are
// given, that the user's profile is one of them.
func ProfileGate(snap session.Snapshot, requested string, profiles ...users.Profile) Decision {
	if d := SessionGate(snap, requested); d.Outcome != Allow {
		return d
	}
	switch {
	case snap.User == nil && snap.Resolving:
		return Decision{Outcome: Wait}
	case snap.User == nil:
		return Decision{Outcome: Unprovisioned}
	case !snap.User.HasProfile(profiles...):
		return Decision{Outcome: Forbidden}
	default:
		return Decision{Outcome: Allow}
	}
}

// LoginURL returns the login location preserving requested in ?next=.
func LoginURL(requested string) string {
	if requested == "" || !SafeNext(requested) {
		return LoginPath
	}
	return LoginPath + "?next=" + url.QueryEscape(requested)
}

// SafeNext reports whether next is a local path that is safe to redirect to.
func SafeNext(next string) bool {
	if len(next) == 0 || next[0] != '/' {
		return false
	}
	// protocol-relative and backslash tricks
	if len(next) > 1 && (next[1] == '/' || next[1] == '\\') {
		return false
	}
	u, err := url.Parse(next)
	return err == nil && u.Scheme == "" && u.Host == ""
}
