package server

import (
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sigea-app/sigea/users"
)

// managerProfiles may enter the manager area.
var managerProfiles = []users.Profile{users.ProfileManager, users.ProfileAdmin}

func (s *Server) initRoutes() error {
	pages, err := parsePages()
	if err != nil {
		return err
	}

	s.RegisterRouteFunc("GET "+RouteHome+"{$}", ChainMiddleware(s.HomeHandler(), s.HTMLMiddleWare()...))

	// LOGIN
	s.RegisterRouteFunc("GET "+RouteLogin, ChainMiddleware(s.LoginPageHandler(pages), s.HTMLMiddleWare()...))
	s.RegisterRouteFunc("POST "+RouteAuthLogin, ChainMiddleware(s.LoginSubmissionHandler(), s.HTMLMiddleWare(s.loginLimiter.Middleware)...))
	s.RegisterRouteFunc("GET "+RouteAuthGoogle, ChainMiddleware(s.GoogleLoginHandler(), s.HTMLMiddleWare()...))
	s.RegisterRouteFunc("GET "+RouteAuthCallback, ChainMiddleware(s.OAuthCallbackHandler(), s.HTMLMiddleWare()...))
	s.RegisterRouteFunc("POST "+RouteAuthLogout, ChainMiddleware(s.LogoutHandler(), s.HTMLMiddleWare()...))

	// Guarded pages
	s.RegisterRouteFunc("GET "+RouteApp, ChainMiddleware(s.AppHandler(pages), s.HTMLMiddleWare(s.RequireSession(pages))...))
	s.RegisterRouteFunc("GET "+RouteGestor, ChainMiddleware(s.GestorHandler(pages), s.HTMLMiddleWare(s.RequireProfile(pages, managerProfiles...))...))

	// Session API
	s.RegisterRouteFunc("GET "+RouteAPIMe, ChainMiddleware(s.MeHandler(), s.APIMiddleware(s.RequireSessionAPI())...))
	s.RegisterRouteFunc("POST "+RouteAPIMeRefresh, ChainMiddleware(s.RefreshMeHandler(), s.APIMiddleware(s.RequireSessionAPI())...))
	s.RegisterRouteFunc("PATCH "+RouteAPIMe, ChainMiddleware(s.UpdateMeHandler(), s.APIMiddleware(s.RequireProfileAPI())...))
	s.RegisterRouteFunc("OPTIONS "+RouteAPIMe, ChainMiddleware(s.MeHandler(), s.APIMiddleware()...))
	s.RegisterRouteFunc("GET "+RouteAPISessionEvents, ChainMiddleware(s.SessionEventsHandler(), s.APIMiddleware(s.RequireSessionAPI())...))

	// Operations
	s.RegisterRouteHandler("GET "+RouteMetrics, promhttp.Handler())
	s.RegisterRouteFunc("GET "+RouteHealthz, s.HealthHandler())

	return nil
}
