package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"github.com/sethvargo/go-retry"
)

const (
	migrationMaxRetries  = 2
	migrationBaseBackoff = 100 * time.Millisecond
	migrationMaxBackoff  = 3 * time.Second
)

var retryablePgErrorCodes = map[pq.ErrorCode]struct{}{
	"40001": {}, // serialization_failure
	"40P01": {}, // deadlock_detected
	"55P03": {}, // lock_not_available
}

// Migrate runs a goose command ("up", "status" or "down") against dir.
func Migrate(ctx context.Context, sqlDB *sql.DB, dir, command string) error {
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}

	switch command {
	case "", "up":
		return migrateUpWithRetry(ctx, sqlDB, dir)
	case "status":
		return goose.StatusContext(ctx, sqlDB, dir)
	case "down":
		return goose.DownContext(ctx, sqlDB, dir)
	default:
		return fmt.Errorf("unknown migrate command %q", command)
	}
}

func migrateUpWithRetry(ctx context.Context, sqlDB *sql.DB, dir string) error {
	backoff := retry.NewExponential(migrationBaseBackoff)
	backoff = retry.WithCappedDuration(migrationMaxBackoff, backoff)
	backoff = retry.WithMaxRetries(migrationMaxRetries, backoff)

	attempt := 0
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		err := goose.UpContext(ctx, sqlDB, dir)
		if err == nil {
			return nil
		}
		if shouldRetryMigration(err) {
			slog.Warn("transient error applying migrations", "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		return fmt.Errorf("apply migrations: %w", err)
	})
}

func shouldRetryMigration(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		_, ok := retryablePgErrorCodes[pqErr.Code]
		return ok
	}
	return false
}
