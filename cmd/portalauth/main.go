// Command portalauth runs the authentication server.
//
//	portalauth                     serve HTTP
//	portalauth create-principal    add an identity to the database
//
// Configuration is read from PORTALAUTH_CONFIG and PORTALAUTH_* variables.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrEthical07/portalauth"
	"github.com/MrEthical07/portalauth/internal/config"
	"github.com/MrEthical07/portalauth/internal/httpapi"
	"github.com/MrEthical07/portalauth/internal/pgstore"
	"github.com/MrEthical07/portalauth/middleware"
	"github.com/MrEthical07/portalauth/password"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	logger := newLogger(cfg.Log, os.Stdout)
	slog.SetDefault(logger)

	args := os.Args[1:]
	cmd := "serve"
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	switch cmd {
	case "serve":
		err = serve(cfg, logger)
	case "create-principal":
		err = createPrincipal(cfg, logger, args)
	default:
		err = fmt.Errorf("unknown command %q", cmd)
	}
	if err != nil {
		logger.Error("portalauth failed", slog.String("command", cmd), slog.Any("error", err))
		os.Exit(1)
	}
}

func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	level, _ := cfg.SlogLevel()
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler = slog.NewJSONHandler(w, opts)
	if cfg.Format == "text" {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h).With(slog.String("app", "portalauth"))
}

func serve(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	startupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	db, err := openDatabase(startupCtx, cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Warn("redis close failed", slog.Any("error", err))
		}
	}()
	if err := rdb.Ping(startupCtx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}

	engineCfg, err := cfg.Engine()
	if err != nil {
		return err
	}
	store := pgstore.New(db)
	builder := portalauth.New().
		WithConfig(engineCfg).
		WithRedis(rdb).
		WithPrincipalStore(store).
		WithLogger(logger)
	switch cfg.Auth.AuditSink {
	case "slog":
		builder = builder.WithAuditSink(portalauth.NewSlogSink(logger.With(slog.String("stream", "audit"))))
	case "json":
		builder = builder.WithAuditSink(portalauth.NewJSONWriterSink(os.Stdout))
	}
	engine, err := builder.Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	proxies, err := cfg.Server.Proxies()
	if err != nil {
		return err
	}
	router := httpapi.NewRouter(ctx, httpapi.Options{
		Engine: engine,
		Logger: logger,
		LoginRateLimit: middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		},
		TrustedProxies: proxies,
		Readiness:      store.Ping,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", slog.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("server stopped cleanly")
	return nil
}

func openDatabase(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*sql.DB, error) {
	if cfg.Database.MigrateOnStart {
		if err := pgstore.Migrate(cfg.Database.URL, logger); err != nil {
			return nil, err
		}
	}
	return pgstore.Open(ctx, cfg.Database.URL)
}

func createPrincipal(cfg *config.Config, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("create-principal", flag.ContinueOnError)
	var (
		identifier = fs.String("identifier", "", "login identifier (email)")
		secret     = fs.String("password", "", "initial password; PORTALAUTH_INITIAL_PASSWORD if empty")
		role       = fs.String("role", "member", "role")
		admin      = fs.Bool("admin", false, "grant admin")
		firstName  = fs.String("first-name", "", "first name")
		lastName   = fs.String("last-name", "", "last name")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *secret == "" {
		*secret = os.Getenv("PORTALAUTH_INITIAL_PASSWORD")
	}
	if *identifier == "" || *secret == "" {
		return errors.New("identifier and password are required")
	}

	engineCfg, err := cfg.Engine()
	if err != nil {
		return err
	}
	hasher, err := password.NewHasher(password.Config{
		Memory:           engineCfg.Password.Memory,
		Time:             engineCfg.Password.Time,
		Parallelism:      engineCfg.Password.Parallelism,
		SaltLength:       engineCfg.Password.SaltLength,
		KeyLength:        engineCfg.Password.KeyLength,
		MaxPasswordBytes: engineCfg.Password.MaxPasswordBytes,
	})
	if err != nil {
		return err
	}
	hash, err := hasher.Hash(*secret)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	db, err := openDatabase(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	err = pgstore.New(db).Create(ctx, portalauth.Principal{
		Identifier:   *identifier,
		PasswordHash: hash,
		Role:         *role,
		Admin:        *admin,
		Active:       true,
		FirstName:    *firstName,
		LastName:     *lastName,
	})
	if err != nil {
		return err
	}
	logger.Info("principal created", slog.String("identifier", *identifier))
	return nil
}
