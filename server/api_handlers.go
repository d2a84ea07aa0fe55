package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sigea-app/sigea/auth"
	apperrors "github.com/sigea-app/sigea/internal/errors"
	"github.com/sigea-app/sigea/session"
	"github.com/sigea-app/sigea/users"
)

const (
	contentTypeJSON   = "application/json"
	sseKeepAlive      = 25 * time.Second
	maxProfileBodyLen = 16 << 10
)

// sessionView is the JSON form of auth.Session. The access token never leaves the server.
type sessionView struct {
	ExpiresAt time.Time     `json:"expires_at"`
	Provider  string        `json:"provider"`
	Identity  auth.Identity `json:"identity"`
}

// SnapshotView is the JSON form of a session snapshot
type SnapshotView struct {
	State         session.State       `json:"state"`
	Loading       bool                `json:"loading"`
	Session       *sessionView        `json:"session,omitempty"`
	User          *users.ResolvedUser `json:"user"`
	Resolving     bool                `json:"resolving"`
	Unprovisioned bool                `json:"unprovisioned"`
	ConfigError   string              `json:"config_error,omitempty"`
	ProfileError  bool                `json:"profile_error,omitempty"`
	Version       uint64              `json:"version"`
}

func newSnapshotView(snap session.Snapshot) SnapshotView {
	view := SnapshotView{
		State:         snap.State,
		Loading:       snap.Loading,
		User:          snap.User,
		Resolving:     snap.Resolving,
		Unprovisioned: snap.Unprovisioned(),
		ProfileError:  snap.ProfileError != nil,
		Version:       snap.Version,
	}
	if snap.Session != nil {
		view.Session = &sessionView{
			ExpiresAt: snap.Session.ExpiresAt,
			Provider:  snap.Session.Provider,
			Identity:  snap.Session.Identity,
		}
	}
	if snap.ConfigError != nil {
		view.ConfigError = snap.ConfigError.Error()
	}
	return view
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Err(err).Msg("failed to encode response")
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// MeHandler returns the visitor's session snapshot (GET /api/me)
func (s *Server) MeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, newSnapshotView(Controller(r.Context()).Snapshot()))
	}
}

// RefreshMeHandler re-resolves the visitor's profile (POST /api/me/refresh)
func (s *Server) RefreshMeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := Controller(r.Context())
		c.RefreshUser(r.Context())
		writeJSON(w, http.StatusOK, newSnapshotView(c.Snapshot()))
	}
}

// UpdateMeHandler edits the visitor's own profile (PATCH /api/me)
func (s *Server) UpdateMeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.profiles == nil {
			writeJSONError(w, http.StatusServiceUnavailable, "profile store not configured")
			return
		}

		var update users.ProfileUpdate
		decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxProfileBodyLen))
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&update); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid profile update")
			return
		}
		if update.Empty() {
			writeJSONError(w, http.StatusBadRequest, "nothing to update")
			return
		}

		c := Controller(r.Context())
		user := c.Snapshot().User
		if user == nil {
			writeJSONError(w, http.StatusForbidden, "profile not provisioned")
			return
		}

		if err := s.profiles.Update(r.Context(), user.ID, update); err != nil {
			if apperrors.Is(err, apperrors.ErrNotFound) {
				writeJSONError(w, http.StatusNotFound, "profile not found")
				return
			}
			log.Err(err).Str("identity", user.ID).Msg("failed to update profile")
			writeJSONError(w, http.StatusBadGateway, "failed to update profile")
			return
		}

		c.RefreshUser(r.Context())
		writeJSON(w, http.StatusOK, newSnapshotView(c.Snapshot()))
	}
}

// SessionEventsHandler streams snapshots as server-sent events (GET /api/session/events)
func (s *Server) SessionEventsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			writeJSONError(w, http.StatusInternalServerError, "streaming unsupported")
			return
		}

		c := Controller(r.Context())

		// capacity one: a newer snapshot replaces an unsent older one
		latest := make(chan session.Snapshot, 1)
		unsubscribe := c.Subscribe(func(snap session.Snapshot) {
			select {
			case latest <- snap:
			default:
				select {
				case <-latest:
				default:
				}
				select {
				case latest <- snap:
				default:
				}
			}
		})
		defer unsubscribe()

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)

		var lastVersion uint64
		send := func(snap session.Snapshot) bool {
			if snap.Version != 0 && snap.Version <= lastVersion {
				return true
			}
			lastVersion = snap.Version
			data, err := json.Marshal(newSnapshotView(snap))
			if err != nil {
				log.Err(err).Msg("failed to encode snapshot")
				return false
			}
			if _, err := fmt.Fprintf(w, "id: %d\nevent: snapshot\ndata: %s\n\n", snap.Version, data); err != nil {
				return false
			}
			flusher.Flush()
			return true
		}

		if !send(c.Snapshot()) {
			return
		}

		keepAlive := time.NewTicker(sseKeepAlive)
		defer keepAlive.Stop()

		for {
			select {
			case <-r.Context().Done():
				return
			case snap := <-latest:
				if !send(snap) {
					return
				}
			case <-keepAlive.C:
				if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
					return
				}
				flusher.Flush()
			}
		}
	}
}

// HealthHandler reports liveness (GET /healthz)
func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":   "ok",
			"visitors": s.visitors.Len(),
		})
	}
}
