package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/rs/zerolog/log"
	"github.com/sigea-app/sigea/auth"
	"github.com/sigea-app/sigea/auth/authflow"
	"github.com/sigea-app/sigea/auth/local"
	"github.com/sigea-app/sigea/auth/local/pgcredentials"
	"github.com/sigea-app/sigea/internal/config"
	"github.com/sigea-app/sigea/internal/logging"
	"github.com/sigea-app/sigea/internal/seed"
	"github.com/sigea-app/sigea/server"
	"github.com/sigea-app/sigea/sessions"
	"github.com/sigea-app/sigea/sessions/redisrepo"
	fakesessionrepo "github.com/sigea-app/sigea/sessions/repofakes"
	"github.com/sigea-app/sigea/token"
	"github.com/sigea-app/sigea/users"
	"github.com/sigea-app/sigea/users/pgrepo"
	fakeprofilerepo "github.com/sigea-app/sigea/users/repofake"
)

const cleanupInterval = 10 * time.Minute

func main() {
	for {
		if err := run(); err != nil {
			log.Error().Err(err).Msg("error running server")
			time.Sleep(1 * time.Second)
		} else {
			break
		}
	}
	log.Info().Msg("server stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("recovered from panic")
			returnError = errors.New("panic recovered")
		}
	}()

	c := config.New()
	logging.Setup(c.GetEnv(), c.GetLogLevel())
	displayAppname(c.GetAppName())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	profiles, credentials, closeDatabase, err := openDatabase(ctx, c)
	if err != nil {
		return err
	}
	defer closeDatabase()

	sessionRepo, closeSessions, err := openSessionRepo(ctx, c)
	if err != nil {
		return err
	}
	defer closeSessions()

	var (
		visitors    *server.Visitors
		serverOpts  []server.ServerOption
		visitorOpts = []server.VisitorsOption{
			server.WithStartupTimeout(c.GetStartupTimeout()),
			server.WithIdleTimeout(c.GetVisitorIdleTimeout()),
		}
	)

	if err := c.ValidateBackend(); err != nil {
		// Pages still render, every visitor settles as anonymous with a configuration banner
		log.Error().Err(err).Msg("auth backend not configured")
		visitors = server.NewVisitors(nil, profiles, append(visitorOpts, server.WithConfigError(err))...)
	} else {
		service, err := authService(ctx, c, credentials, sessionRepo)
		if err != nil {
			return err
		}
		if err := applySeed(ctx, c, service, profiles); err != nil {
			return err
		}
		go cleanupLoop(ctx, service)

		visitors = server.NewVisitors(func(visitorID string) auth.Backend {
			return service.Client(visitorID)
		}, profiles, visitorOpts...)
		serverOpts = append(serverOpts, server.WithOAuthCompleter(service))
	}
	defer visitors.Close()
	go visitors.Run(ctx)

	handler, err := server.New(c, visitors, profiles, serverOpts...)
	if err != nil {
		return fmt.Errorf("server.New: %w", err)
	}
	defer handler.Close()

	httpServer := &http.Server{Addr: c.GetPort(), Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	go listenAndServe(httpServer)
	waitForStopSignal()
	returnError = shutdown(httpServer)
	return returnError
}

func openDatabase(ctx context.Context, c config.Config) (users.ProfileRepo, local.CredentialRepo, func(), error) {
	if c.GetDatabaseURL() == "" {
		log.Warn().Msg("DATABASE_URL not set, profiles and identities are kept in memory")
		return fakeprofilerepo.NewFakeProfileRepo(), local.NewInMemoryCredentialRepo(), func() {}, nil
	}
	pool, err := pgrepo.Open(ctx, c.GetDatabaseURL())
	if err != nil {
		return nil, nil, nil, fmt.Errorf("pgrepo.Open: %w", err)
	}
	profiles := pgrepo.NewProfileRepo(pool)
	if err := profiles.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, nil, fmt.Errorf("pgrepo.Migrate: %w", err)
	}
	credentials := pgcredentials.NewCredentialRepo(pool)
	if err := credentials.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, nil, fmt.Errorf("pgcredentials.Migrate: %w", err)
	}
	return profiles, credentials, pool.Close, nil
}

func openSessionRepo(ctx context.Context, c config.Config) (sessions.Repo, func(), error) {
	if c.GetRedisAddr() == "" {
		log.Warn().Msg("REDIS_ADDR not set, sessions are kept in memory")
		return fakesessionrepo.NewFakeSessionRepo(), func() {}, nil
	}
	client, err := redisrepo.Connect(ctx, c.GetRedisAddr(), c.GetRedisPassword(), c.GetRedisDB())
	if err != nil {
		return nil, nil, fmt.Errorf("redisrepo.Connect: %w", err)
	}
	return redisrepo.New(client), func() { _ = client.Close() }, nil
}

func authService(ctx context.Context, c config.Config, credentials local.CredentialRepo, sessionRepo sessions.Repo) (*local.Service, error) {
	issuer, err := token.NewIssuer([]byte(c.GetBackendKey()), c.GetBackendURL(), c.GetSessionTTL())
	if err != nil {
		return nil, fmt.Errorf("token.NewIssuer: %w", err)
	}

	var opts []local.ServiceOption
	if c.GetGoogleClientID() != "" {
		google, err := local.NewGoogleProvider(ctx, c.GetGoogleClientID(), c.GetGoogleClientSecret(), c.GetBaseURL()+server.RouteAuthCallback)
		if err != nil {
			// Password sign-in keeps working without the provider
			log.Error().Err(err).Msg("Google provider unavailable")
		} else {
			opts = append(opts, local.WithProvider(google))
		}
	}

	service, err := local.NewService(local.Repos{
		Credentials: credentials,
		Sessions:    sessionRepo,
		Flows:       authflow.NewInMemoryRepo(c.GetOAuthFlowTimeout()),
	}, issuer, opts...)
	if err != nil {
		return nil, fmt.Errorf("local.NewService: %w", err)
	}
	return service, nil
}

func applySeed(ctx context.Context, c config.Config, service *local.Service, profiles users.ProfileRepo) error {
	path := c.GetSeedFile()
	if path == "" {
		return nil
	}
	f, err := seed.Load(path)
	if err != nil {
		return err
	}
	_, err = seed.Apply(ctx, f, service, profiles)
	return err
}

func cleanupLoop(ctx context.Context, service *local.Service) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := service.CleanupExpired(ctx); err != nil {
				log.Warn().Err(err).Msg("failed to clean up expired sessions")
			}
		}
	}
}

func listenAndServe(server *http.Server) {
	log.Info().Str("addr", server.Addr).Msg("server listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Msg("server.ListenAndServe")
	}
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
