// Package app initializes and runs the authentication server: configuration,
// logging, database connection with startup retry, schema migrations, and the
// background sweep of expired one-time tokens.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rustproof/rustproof/internal/config"
	"github.com/rustproof/rustproof/internal/logging"
	"github.com/rustproof/rustproof/internal/mailer"
	"github.com/rustproof/rustproof/internal/repositories/repomanager"
	"github.com/rustproof/rustproof/internal/services"
	"github.com/rustproof/rustproof/internal/tokens"
	"github.com/sethvargo/go-retry"
)

type App struct {
	config *config.Config
	logger logging.Logger
	db     *sql.DB
	repos  repomanager.RepositoryManager
	auth   *services.AuthService
}

// NewApp wires the application together: opens the database (retrying while
// it comes up), runs migrations, and constructs the auth service.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	db, err := openDB(ctx, cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm, err := repomanager.NewPostgresRepositoryManager(db)
	if err != nil {
		return nil, fmt.Errorf("repository manager init error: %w", err)
	}
	if err := rm.RunMigrations(ctx, db); err != nil {
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	ring := tokens.NewKeyRing(tokens.SigningKey{
		KID:    cfg.JWTKeyID,
		Alg:    "HS256",
		Secret: []byte(cfg.JWTSecret),
	})
	ts := tokens.NewService(tokens.Config{
		Issuer:          cfg.JWTIssuer,
		Audience:        cfg.JWTAudience,
		AccessTokenTTL:  cfg.AccessTokenValidityDuration,
		RefreshTokenTTL: cfg.RefreshTokenValidityDuration,
		Leeway:          cfg.JWTLeeway,
	}, ring)

	auth := services.NewAuthService(db, rm, cfg, ts, mailer.NewLogMailer(logger), logger)

	return &App{config: cfg, logger: logger, db: db, repos: rm, auth: auth}, nil
}

// openDB connects and pings with exponential backoff, so the server survives
// starting before its database does.
func openDB(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}

	backoff := retry.WithMaxRetries(5, retry.NewExponential(time.Second))
	if err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := db.PingContext(ctx); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Auth exposes the auth service to transport layers built on top of the core.
func (app *App) Auth() *services.AuthService {
	return app.auth
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// runTokenSweeper periodically deletes expired one-time tokens.
func (app *App) runTokenSweeper(ctx context.Context) {
	ticker := time.NewTicker(app.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := app.repos.OneTimeTokens(app.db).DeleteExpired(ctx)
			if err != nil {
				app.logger.Error(ctx, "sweeping expired tokens", "error", err)
				continue
			}
			if n > 0 {
				app.logger.Info(ctx, "swept expired tokens", "count", n)
			}
		}
	}
}

// Run blocks until the context is cancelled or a termination signal arrives.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "starting app")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		app.runTokenSweeper(ctx)
	}()

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "closing db", "error", err)
	}
	app.logger.Info(ctx, "app stopped")
}
