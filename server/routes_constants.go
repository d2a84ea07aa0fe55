package server

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	RouteHome = "/"

	// Auth Routes - Login & Logout
	RouteLogin        = "/login"
	RouteAuthLogin    = "/auth/login"
	RouteAuthGoogle   = "/auth/google"
	RouteAuthCallback = "/auth/callback"
	RouteAuthLogout   = "/auth/logout"

	// Guarded pages
	RouteApp     = "/app"
	RouteGestor  = "/gestor"
	RouteDefault = RouteApp

	// API Routes
	RouteAPIMe            = "/api/me"
	RouteAPIMeRefresh     = "/api/me/refresh"
	RouteAPISessionEvents = "/api/session/events"

	// Operations
	RouteMetrics = "/metrics"
	RouteHealthz = "/healthz"
)
