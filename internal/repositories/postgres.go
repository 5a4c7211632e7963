package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/wayfarer/backend/internal/db"
	"github.com/wayfarer/backend/internal/models"
)

const userColumns = `id, email, display_name, bio, home_base, socials, created_at, last_sign_in_at, updated_at`

// PostgresUserRepository provides PostgreSQL-backed persistence for users keyed by email.
type PostgresUserRepository struct {
	pool db.Pool
}

// NewPostgresUserRepository constructs a user repository backed by PostgreSQL.
func NewPostgresUserRepository(pool db.Pool) *PostgresUserRepository {
	return &PostgresUserRepository{pool: pool}
}

// RecordSignIn inserts the user on first sign-in or bumps last_sign_in_at, returning
// the stored row.
func (r *PostgresUserRepository) RecordSignIn(ctx context.Context, user models.SessionUser) (models.User, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.User{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	now := time.Now().UTC()
	createdAt := user.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	lastSignIn := user.LastSignInAt
	if lastSignIn.IsZero() {
		lastSignIn = now
	}

	row := conn.QueryRow(ctx, `
        INSERT INTO users (id, email, created_at, last_sign_in_at, updated_at)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (email)
        DO UPDATE SET last_sign_in_at = EXCLUDED.last_sign_in_at, updated_at = EXCLUDED.updated_at
        RETURNING `+userColumns, user.ID, user.Email, createdAt, lastSignIn, now)

	stored, err := scanUser(row)
	if err != nil {
		return models.User{}, fmt.Errorf("upsert user sign-in: %w", err)
	}
	return stored, nil
}

// FindByEmail fetches a user by their email address.
func (r *PostgresUserRepository) FindByEmail(ctx context.Context, email string) (models.User, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.User{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)

	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, ErrNotFound
		}
		return models.User{}, fmt.Errorf("select user by email: %w", err)
	}
	return user, nil
}

// UpdateProfile replaces the editable profile fields of the user with the given email.
func (r *PostgresUserRepository) UpdateProfile(ctx context.Context, user models.User) (models.User, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.User{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	socials, err := json.Marshal(user.Socials)
	if err != nil {
		return models.User{}, fmt.Errorf("encode socials: %w", err)
	}

	row := conn.QueryRow(ctx, `
        UPDATE users
        SET display_name = $2, bio = $3, home_base = $4, socials = $5, updated_at = $6
        WHERE email = $1
        RETURNING `+userColumns, user.Email, user.DisplayName, user.Bio, user.HomeBase, socials, user.UpdatedAt)

	updated, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, ErrNotFound
		}
		return models.User{}, fmt.Errorf("update user profile: %w", err)
	}
	return updated, nil
}

func scanUser(row pgx.Row) (models.User, error) {
	var (
		user    models.User
		socials []byte
	)
	if err := row.Scan(&user.ID, &user.Email, &user.DisplayName, &user.Bio, &user.HomeBase, &socials, &user.CreatedAt, &user.LastSignInAt, &user.UpdatedAt); err != nil {
		return models.User{}, err
	}
	if len(socials) > 0 {
		if err := json.Unmarshal(socials, &user.Socials); err != nil {
			return models.User{}, fmt.Errorf("decode socials: %w", err)
		}
	}
	user.CreatedAt = user.CreatedAt.UTC()
	user.LastSignInAt = user.LastSignInAt.UTC()
	user.UpdatedAt = user.UpdatedAt.UTC()
	return user, nil
}

// PostgresSourceRepository persists submitted source records. Each write is a single
// row statement; concurrent writers for one id resolve as last write wins.
type PostgresSourceRepository struct {
	pool db.Pool
}

// NewPostgresSourceRepository constructs a source repository backed by PostgreSQL.
func NewPostgresSourceRepository(pool db.Pool) *PostgresSourceRepository {
	return &PostgresSourceRepository{pool: pool}
}

// Create stores a new source record.
func (r *PostgresSourceRepository) Create(ctx context.Context, record models.SourceRecord) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	status := record.Status
	if status == "" {
		status = models.SourceStatusPending
	}

	_, err = conn.Exec(ctx, `
        INSERT INTO sources (id, url, platform, status, submitted_by, scraped_content, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
    `, record.ID, record.URL, record.Platform, string(status), record.SubmittedBy, nullableJSON(record.ScrapedContent), record.CreatedAt, record.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrConflict
		}
		return fmt.Errorf("insert source: %w", err)
	}
	return nil
}

// Find loads a source record by id.
func (r *PostgresSourceRepository) Find(ctx context.Context, id string) (models.SourceRecord, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.SourceRecord{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT id, url, platform, status, submitted_by, scraped_content, created_at, updated_at
        FROM sources
        WHERE id = $1
    `, id)

	var (
		record  models.SourceRecord
		status  string
		content []byte
	)
	if err := row.Scan(&record.ID, &record.URL, &record.Platform, &status, &record.SubmittedBy, &content, &record.CreatedAt, &record.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.SourceRecord{}, ErrNotFound
		}
		return models.SourceRecord{}, fmt.Errorf("select source: %w", err)
	}

	record.Status = models.SourceStatus(status)
	if len(content) > 0 {
		record.ScrapedContent = json.RawMessage(content)
	}
	record.CreatedAt = record.CreatedAt.UTC()
	record.UpdatedAt = record.UpdatedAt.UTC()
	return record, nil
}

// Update overwrites status and scraped content of an existing source record.
func (r *PostgresSourceRepository) Update(ctx context.Context, id string, status models.SourceStatus, content json.RawMessage) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE sources
        SET status = $2,
            scraped_content = COALESCE($3, scraped_content),
            updated_at = $4
        WHERE id = $1
    `, id, string(status), nullableJSON(content), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update source: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// nullableJSON keeps empty payloads as SQL NULL instead of invalid JSON.
func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
