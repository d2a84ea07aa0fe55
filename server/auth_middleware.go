package server

import (
	"context"
	"net/http"
	"strconv"

	"github.com/sigea-app/sigea/guard"
	"github.com/sigea-app/sigea/session"
	"github.com/sigea-app/sigea/users"
)

const retryAfterSeconds = 1

// VisitorMiddleware identifies the visitor by cookie, issuing one when
// missing, and attaches the visitor's session controller to the request.
func (s *Server) VisitorMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		visitorID, isNew := visitorFromCookie(r)
		if isNew {
			setVisitorCookie(w, r, visitorID)
		}
		c := s.visitors.Get(visitorID)
		next(w, r.WithContext(withVisitor(r.Context(), visitorID, c)))
	}
}

// settledSnapshot waits up to the gate settle time for loading and profile
// resolution to finish, then returns whatever state the controller is in.
func (s *Server) settledSnapshot(r *http.Request) session.Snapshot {
	c := Controller(r.Context())
	if s.gateSettle <= 0 {
		return c.Snapshot()
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.gateSettle)
	defer cancel()
	snap, _ := c.WaitFor(ctx, func(cur session.Snapshot) bool { return !cur.Loading && !cur.Resolving })
	return snap
}

// RequireSession guards an HTML page with the session gate.
func (s *Server) RequireSession(pages *pageTemplates) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			snap := s.settledSnapshot(r)
			s.applyHTMLDecision(w, r, pages, guard.SessionGate(snap, r.URL.RequestURI()), snap, next)
		}
	}
}

// RequireProfile guards an HTML page with the profile gate.
func (s *Server) RequireProfile(pages *pageTemplates, profiles ...users.Profile) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			snap := s.settledSnapshot(r)
			s.applyHTMLDecision(w, r, pages, guard.ProfileGate(snap, r.URL.RequestURI(), profiles...), snap, next)
		}
	}
}

func (s *Server) applyHTMLDecision(w http.ResponseWriter, r *http.Request, pages *pageTemplates, d guard.Decision, snap session.Snapshot, next http.HandlerFunc) {
	switch d.Outcome {
	case guard.Allow:
		next(w, r)
	case guard.Redirect:
		redirectSuccess(w, r, d.Location)
	case guard.Placeholder, guard.Wait:
		data := s.pageData(r, snap)
		data.Refresh = retryAfterSeconds
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
		pages.render(w, http.StatusServiceUnavailable, pagePlaceholder, data)
	case guard.Unprovisioned:
		pages.render(w, http.StatusForbidden, pageUnprovisioned, s.pageData(r, snap))
	case guard.Forbidden:
		pages.render(w, http.StatusForbidden, pageForbidden, s.pageData(r, snap))
	}
}

// RequireSessionAPI guards a JSON endpoint with the session gate.
func (s *Server) RequireSessionAPI() func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			snap := s.settledSnapshot(r)
			applyAPIDecision(w, r, guard.SessionGate(snap, r.URL.RequestURI()), next)
		}
	}
}

// RequireProfileAPI guards a JSON endpoint with the profile gate.
func (s *Server) RequireProfileAPI(profiles ...users.Profile) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			snap := s.settledSnapshot(r)
			applyAPIDecision(w, r, guard.ProfileGate(snap, r.URL.RequestURI(), profiles...), next)
		}
	}
}

func applyAPIDecision(w http.ResponseWriter, r *http.Request, d guard.Decision, next http.HandlerFunc) {
	switch d.Outcome {
	case guard.Allow:
		next(w, r)
	case guard.Redirect:
		w.Header().Set("Location", d.Location)
		writeJSONError(w, http.StatusUnauthorized, "not authenticated")
	case guard.Placeholder, guard.Wait:
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
		writeJSONError(w, http.StatusServiceUnavailable, "session is loading")
	case guard.Unprovisioned:
		writeJSONError(w, http.StatusForbidden, "profile not provisioned")
	case guard.Forbidden:
		writeJSONError(w, http.StatusForbidden, "forbidden")
	}
}
