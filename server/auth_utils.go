package server

import (
	"context"
	"net/http"
	"net/url"

	"github.com/google/uuid"
	"github.com/sigea-app/sigea/guard"
	"github.com/sigea-app/sigea/session"
)

const (
	// visitorCookieName identifies the browser across requests
	visitorCookieName = "sigea_visitor"
	visitorCookieAge  = 365 * 24 * 60 * 60
)

type contextKey int

const (
	visitorKey contextKey = iota
	controllerKey
)

func withVisitor(ctx context.Context, visitorID string, c *session.Controller) context.Context {
	ctx = context.WithValue(ctx, visitorKey, visitorID)
	return context.WithValue(ctx, controllerKey, c)
}

// VisitorID returns the visitor id stored by VisitorMiddleware.
func VisitorID(ctx context.Context) string {
	id, _ := ctx.Value(visitorKey).(string)
	return id
}

// Controller returns the visitor's session controller stored by VisitorMiddleware.
func Controller(ctx context.Context) *session.Controller {
	c, _ := ctx.Value(controllerKey).(*session.Controller)
	return c
}

// visitorFromCookie returns the visitor id from the request, or a new one.
func visitorFromCookie(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(visitorCookieName)
	if err == nil {
		if _, err := uuid.Parse(cookie.Value); err == nil {
			return cookie.Value, false
		}
	}
	return uuid.New().String(), true
}

func setVisitorCookie(w http.ResponseWriter, r *http.Request, visitorID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     visitorCookieName,
		Value:    visitorID,
		Path:     "/",
		HttpOnly: true,
		Secure:   getScheme(r) == "https",
		SameSite: http.SameSiteLaxMode,
		MaxAge:   visitorCookieAge,
	})
}

// nextOrDefault returns next when it is a safe local path, RouteDefault otherwise.
func nextOrDefault(next string) string {
	if guard.SafeNext(next) {
		return next
	}
	return RouteDefault
}

// redirectSuccess helper for htmx-aware success redirects
func redirectSuccess(w http.ResponseWriter, r *http.Request, path string) {
	if isHTMXRequest(r) {
		w.Header().Set("HX-Redirect", path)
		w.WriteHeader(http.StatusNoContent) // 204 - no content, just redirect instruction
		return
	}
	http.Redirect(w, r, path, http.StatusSeeOther)
}

// redirectToLogin sends the visitor back to the login page with an inline error.
func redirectToLogin(w http.ResponseWriter, r *http.Request, errorMsg, email, next string) {
	q := url.Values{}
	if errorMsg != "" {
		q.Set("error", errorMsg)
	}
	if email != "" {
		q.Set("email", email)
	}
	if guard.SafeNext(next) {
		q.Set("next", next)
	}
	path := RouteLogin
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	redirectSuccess(w, r, path)
}

// isHTMXRequest checks if the request was initiated by HTMX
func isHTMXRequest(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}
