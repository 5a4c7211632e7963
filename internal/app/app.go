package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/wayfarer/backend/internal/config"
	"github.com/wayfarer/backend/internal/db"
	"github.com/wayfarer/backend/internal/handlers"
	"github.com/wayfarer/backend/internal/httpserver"
	"github.com/wayfarer/backend/internal/logging"
	"github.com/wayfarer/backend/internal/middleware"
)

// Run bootstraps the Wayfarer backend application.
func Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("expected command: serve or migrate")
	}

	switch args[0] {
	case "serve":
		return serve(ctx)
	case "migrate":
		return runMigrations(ctx, args[1:])
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func serve(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := logging.New(os.Stdout, cfg.LogLevel)
	logger = logger.With("env", cfg.Env)
	ctx = logging.WithLogger(ctx, logger)

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	deps, err := buildDependencies(ctx, pool, cfg)
	if err != nil {
		return err
	}
	deps.DB = pool

	mux := http.NewServeMux()
	handlers.RegisterRoutes(mux, deps)

	handler := middleware.Chain(mux,
		middleware.CORS(cfg.CORSOrigins),
		middleware.RequestLogger(logger),
	)

	srv := httpserver.New(cfg.AppPort, handler)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting http server", "port", cfg.AppPort)
	if err := srv.RunUntilDone(ctx, srv.Start); err != nil {
		return err
	}
	logger.Info("http server stopped")
	return nil
}

func runMigrations(ctx context.Context, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	command := "up"
	if len(args) > 0 {
		command = args[0]
	}

	sqlDB, err := db.OpenSQL(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	return db.Migrate(ctx, sqlDB, cfg.MigrationDir, command)
}
