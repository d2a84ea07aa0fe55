package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/sigea-app/sigea/guard"
	apperrors "github.com/sigea-app/sigea/internal/errors"
	"github.com/sigea-app/sigea/session"
	"github.com/sigea-app/sigea/users"
)

// Messages shown inline on the login page
const (
	msgMissingCredentials = "Informe e-mail e senha."
	msgInvalidCredentials = "E-mail ou senha inválidos."
	msgConnectivity       = "Não foi possível conectar ao serviço de autenticação. Tente novamente."
	msgConfiguration      = "O serviço de autenticação não está configurado."
	msgOAuthFailed        = "Não foi possível concluir o login com Google."
)

// OAuthCompleter finishes a provider redirect and returns the return URL.
type OAuthCompleter interface {
	CompleteOAuth(ctx context.Context, state, code string) (string, error)
}

// PageData contains data for rendering every page
type PageData struct {
	AppName       string
	User          *users.ResolvedUser
	SignedIn      bool
	Email         string // Preserve email on error
	Error         string
	Next          string
	ConfigError   bool
	GoogleEnabled bool
	Refresh       int // Seconds before the page reloads itself, 0 for never
}

func (s *Server) pageData(r *http.Request, snap session.Snapshot) PageData {
	return PageData{
		AppName:       s.config.GetAppName(),
		User:          snap.User,
		SignedIn:      snap.Session != nil,
		ConfigError:   snap.ConfigError != nil,
		GoogleEnabled: s.oauth != nil && s.config.GetGoogleClientID() != "",
	}
}

// loginErrorMessage classifies a sign-in failure for display.
func loginErrorMessage(err error) string {
	switch apperrors.Classify(err) {
	case apperrors.ErrConfiguration:
		return msgConfiguration
	case apperrors.ErrInvalidCredentials:
		return msgInvalidCredentials
	default:
		return msgConnectivity
	}
}

// waitForSession gives the auth event of a just completed sign-in a moment
// to reach the controller, so the next page is not rendered as signed out.
func (s *Server) waitForSession(r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.loginSettle)
	defer cancel()
	_, err := Controller(r.Context()).WaitFor(ctx, func(snap session.Snapshot) bool {
		return snap.Session != nil && !snap.Resolving
	})
	if err != nil {
		log.Debug().Str("visitor", VisitorID(r.Context())).Msg("sign-in event not observed before redirect")
	}
}

// HomeHandler sends visitors to the application
func (s *Server) HomeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, RouteDefault, http.StatusSeeOther)
	}
}

// LoginPageHandler displays the login page (GET /login)
func (s *Server) LoginPageHandler(pages *pageTemplates) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := Controller(r.Context()).Snapshot()
		next := r.URL.Query().Get("next")

		if !snap.Loading && snap.Session != nil {
			redirectSuccess(w, r, nextOrDefault(next))
			return
		}

		data := s.pageData(r, snap)
		data.Email = r.URL.Query().Get("email")
		data.Error = r.URL.Query().Get("error")
		if guard.SafeNext(next) {
			data.Next = next
		}
		pages.render(w, http.StatusOK, pageLogin, data)
	}
}

// LoginSubmissionHandler processes the login form submission (POST /auth/login)
func (s *Server) LoginSubmissionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form data", http.StatusBadRequest)
			return
		}

		email := strings.TrimSpace(r.FormValue("email"))
		password := r.FormValue("password")
		next := r.FormValue("next")

		if email == "" || password == "" {
			redirectToLogin(w, r, msgMissingCredentials, email, next)
			return
		}

		if err := Controller(r.Context()).Login(r.Context(), email, password); err != nil {
			log.Info().Err(err).Str("visitor", VisitorID(r.Context())).Msg("sign-in rejected")
			redirectToLogin(w, r, loginErrorMessage(err), email, next)
			return
		}

		s.waitForSession(r)
		redirectSuccess(w, r, nextOrDefault(next))
	}
}

// GoogleLoginHandler starts the Google redirect (GET /auth/google)
func (s *Server) GoogleLoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		next := nextOrDefault(r.URL.Query().Get("next"))

		providerURL, err := Controller(r.Context()).LoginWithGoogle(r.Context(), next)
		if err != nil {
			log.Warn().Err(err).Msg("failed to start Google sign-in")
			redirectToLogin(w, r, loginErrorMessage(err), "", next)
			return
		}
		http.Redirect(w, r, providerURL, http.StatusSeeOther)
	}
}

// OAuthCallbackHandler completes the provider redirect (GET /auth/callback)
func (s *Server) OAuthCallbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if errorParam := r.FormValue("error"); errorParam != "" {
			log.Info().Str("error", errorParam).Str("description", r.FormValue("error_description")).Msg("provider returned an error")
			redirectToLogin(w, r, msgOAuthFailed, "", "")
			return
		}

		if s.oauth == nil {
			redirectToLogin(w, r, msgConfiguration, "", "")
			return
		}

		state := r.FormValue("state")
		code := r.FormValue("code")
		if code == "" || state == "" {
			http.Error(w, "Missing code or state parameter", http.StatusBadRequest)
			return
		}

		returnURL, err := s.oauth.CompleteOAuth(r.Context(), state, code)
		if err != nil {
			log.Warn().Err(err).Msg("failed to complete OAuth sign-in")
			redirectToLogin(w, r, msgOAuthFailed, "", "")
			return
		}

		s.waitForSession(r)
		redirectSuccess(w, r, nextOrDefault(returnURL))
	}
}

// LogoutHandler signs the visitor out (POST /auth/logout)
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := Controller(r.Context()).Logout(r.Context()); err != nil {
			log.Warn().Err(err).Str("visitor", VisitorID(r.Context())).Msg("remote sign-out failed")
		}
		redirectSuccess(w, r, RouteLogin)
	}
}

// AppHandler renders the home page of a signed in visitor (GET /app)
func (s *Server) AppHandler(pages *pageTemplates) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pages.render(w, http.StatusOK, pageApp, s.pageData(r, Controller(r.Context()).Snapshot()))
	}
}

// GestorHandler renders the manager area (GET /gestor)
func (s *Server) GestorHandler(pages *pageTemplates) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := Controller(r.Context()).Snapshot()
		if snap.User == nil {
			// signed out between the gate and here
			redirectSuccess(w, r, guard.LoginURL(r.URL.RequestURI()))
			return
		}
		pages.render(w, http.StatusOK, pageGestor, s.pageData(r, snap))
	}
}
