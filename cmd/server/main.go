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
	"github.com/jrsteele09/go-cookie-auth/auth"
	"github.com/jrsteele09/go-cookie-auth/internal/config"
	"github.com/jrsteele09/go-cookie-auth/internal/logging"
	"github.com/jrsteele09/go-cookie-auth/server"
	"github.com/jrsteele09/go-cookie-auth/token"
	"github.com/jrsteele09/go-cookie-auth/users"
	"github.com/jrsteele09/go-cookie-auth/users/postgres"
	"github.com/jrsteele09/go-cookie-auth/users/rediscache"
	fakeuserrepo "github.com/jrsteele09/go-cookie-auth/users/repofake"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	c := config.New()
	logger := logging.New(c.GetAppName(), c.GetEnv(), c.GetLogLevel())

	if err := run(c, logger); err != nil {
		logger.Fatal().Err(err).Msg("Error running server")
	}
	logger.Info().Msg("Server stopped")
}

func run(c config.Config, logger zerolog.Logger) (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("Recovered from panic")
			returnError = errors.New("panic recovered")
		}
	}()

	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	displayAppname(c.GetAppName())

	ctx := context.Background()
	repo, closeRepo, err := newUserRepo(ctx, c, logger)
	if err != nil {
		return err
	}
	defer closeRepo()

	tokens, err := token.New(c.GetAccessTokenSecret(), c.GetRefreshTokenSecret(),
		token.WithTokenExpiry(c.GetAccessTokenTTL(), c.GetRefreshTokenTTL()))
	if err != nil {
		return fmt.Errorf("token.New: %w", err)
	}

	authService, err := auth.NewService(repo, tokens,
		auth.WithRefreshRotation(c.GetRotateRefreshToken()),
		auth.WithBcryptCost(c.GetBcryptCost()))
	if err != nil {
		return err
	}

	handler, err := server.New(c, authService, logger)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              c.GetPort(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- listenAndServe(httpServer, logger) }()

	select {
	case err := <-errCh:
		return err
	case <-waitForStopSignal():
	}
	return shutdown(httpServer)
}

// newUserRepo selects the credential store and, when REDIS_ADDR is set, puts the read
// through cache in front of it.
func newUserRepo(ctx context.Context, c config.Config, logger zerolog.Logger) (users.UserRepo, func(), error) {
	var (
		repo    users.UserRepo
		closers []func()
	)
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	switch c.GetStoreDriver() {
	case config.StoreDriverMemory:
		logger.Warn().Msg("using the in-memory user store, users are lost on restart")
		repo = fakeuserrepo.NewFakeUserRepo()
	case config.StoreDriverPostgres:
		pool, err := postgres.Connect(ctx, c.GetDatabaseURL())
		if err != nil {
			return nil, nil, fmt.Errorf("postgres: %w", err)
		}
		closers = append(closers, pool.Close)
		pgRepo := postgres.NewUserRepo(pool)
		if err := pgRepo.EnsureSchema(ctx); err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("postgres schema: %w", err)
		}
		repo = pgRepo
	default:
		return nil, nil, fmt.Errorf("unknown STORE_DRIVER %q", c.GetStoreDriver())
	}

	if addr := c.GetRedisAddr(); addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: addr})
		closers = append(closers, func() { _ = rdb.Close() })
		if err := rediscache.Ping(ctx, rdb); err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("redis: %w", err)
		}
		repo = rediscache.New(repo, rdb, c.GetUserCacheTTL(), logger)
		logger.Info().Str("addr", addr).Dur("ttl", c.GetUserCacheTTL()).Msg("user cache enabled")
	}

	return repo, closeAll, nil
}

func listenAndServe(server *http.Server, logger zerolog.Logger) error {
	logger.Info().Str("addr", server.Addr).Msg("Server listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() <-chan os.Signal {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	return stop
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
