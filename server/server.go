package server

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sigea-app/sigea/internal/config"
	"github.com/sigea-app/sigea/users"
	"golang.org/x/time/rate"
)

const defaultGateSettle = 2 * time.Second

// Server serves the SIGEA pages and session API for many visitors, each with
// its own session controller.
type Server struct {
	env      string // Environment (e.g., "DEV", "PROD")
	mux      *http.ServeMux
	routes   []string
	config   config.Config
	visitors *Visitors
	profiles users.ProfileRepo
	oauth    OAuthCompleter

	loginLimiter *RateLimiter
	loginRate    rate.Limit
	loginBurst   int
	gateSettle   time.Duration
	loginSettle  time.Duration
}

// ServerOption defines a function type to modify the Server instance.
type ServerOption func(*Server)

// WithOAuthCompleter enables the OAuth callback route.
func WithOAuthCompleter(completer OAuthCompleter) ServerOption {
	return func(s *Server) {
		s.oauth = completer
	}
}

// WithGateSettle sets how long a guarded route waits for a loading session
// before showing the placeholder.
func WithGateSettle(d time.Duration) ServerOption {
	return func(s *Server) {
		s.gateSettle = d
	}
}

// WithLoginRateLimit overrides the per client login rate limit.
func WithLoginRateLimit(r rate.Limit, burst int) ServerOption {
	return func(s *Server) {
		s.loginRate = r
		s.loginBurst = burst
	}
}

func New(cfg config.Config, visitors *Visitors, profiles users.ProfileRepo, options ...ServerOption) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("[Server New] config is required")
	}
	if visitors == nil {
		return nil, fmt.Errorf("[Server New] visitors registry is required")
	}

	s := &Server{
		env:         cfg.GetEnv(),
		mux:         http.NewServeMux(),
		config:      cfg,
		visitors:    visitors,
		profiles:    profiles,
		gateSettle:  defaultGateSettle,
		loginSettle: cfg.GetLoginSettleTimeout(),
		loginRate:   rate.Limit(cfg.GetLoginRateLimit()),
		loginBurst:  cfg.GetLoginRateBurst(),
	}
	for _, opt := range options {
		opt(s)
	}
	var limiterOpts []RateLimiterOption
	if cfg.GetTrustProxyHeaders() {
		limiterOpts = append(limiterOpts, TrustForwardedFor())
	}
	s.loginLimiter = NewRateLimiter(s.loginRate, s.loginBurst, limiterOpts...)

	if err := s.initRoutes(); err != nil {
		return nil, fmt.Errorf("[Server New] failed to register routes: %w", err)
	}
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Close stops background work owned by the server.
func (s *Server) Close() {
	s.loginLimiter.Stop()
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			logRoute(parts[0], parts[1])
		} else {
			logRoute("", parts[0])
		}
	}
}

func logRoute(method, path string) {
	var displayMethod string
	paddedMethod := fmt.Sprintf(" %-7s", method)
	if color, ok := methodColors[method]; ok {
		displayMethod = color + paddedMethod + ResetColor
	} else {
		displayMethod = Gray + paddedMethod + ResetColor
	}
	log.Printf("[%-19s] %s", displayMethod, path)
}

// Helper function to determine the scheme (http/https)
func getScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if scheme := r.Header.Get("X-Forwarded-Proto"); scheme != "" {
		return scheme
	}
	return "http"
}
