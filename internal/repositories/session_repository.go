package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/wayfarer/backend/internal/auth"
	"github.com/wayfarer/backend/internal/db"
)

// PostgresSessionStore keeps the single active session of each client context.
type PostgresSessionStore struct {
	pool db.Pool
}

// NewPostgresSessionStore constructs a session store backed by PostgreSQL.
func NewPostgresSessionStore(pool db.Pool) *PostgresSessionStore {
	return &PostgresSessionStore{pool: pool}
}

// Save stores the client's session, replacing whatever session it held before.
func (s *PostgresSessionStore) Save(ctx context.Context, session auth.ClientSession) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO client_sessions (client_id, user_id, email, access_token, refresh_token, expires_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, NOW())
        ON CONFLICT (client_id)
        DO UPDATE SET user_id = EXCLUDED.user_id,
                      email = EXCLUDED.email,
                      access_token = EXCLUDED.access_token,
                      refresh_token = EXCLUDED.refresh_token,
                      expires_at = EXCLUDED.expires_at,
                      updated_at = NOW()
    `, session.ClientID, session.UserID, session.Email, session.AccessToken, session.RefreshToken, session.ExpiresAt.UTC())
	if err != nil {
		return fmt.Errorf("upsert client session: %w", err)
	}
	return nil
}

// Find loads the session held by a client context.
func (s *PostgresSessionStore) Find(ctx context.Context, clientID string) (auth.ClientSession, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return auth.ClientSession{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT client_id, user_id, email, access_token, refresh_token, expires_at
        FROM client_sessions
        WHERE client_id = $1
    `, clientID)

	var session auth.ClientSession
	if err := row.Scan(&session.ClientID, &session.UserID, &session.Email, &session.AccessToken, &session.RefreshToken, &session.ExpiresAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return auth.ClientSession{}, auth.ErrSessionNotFound
		}
		return auth.ClientSession{}, fmt.Errorf("select client session: %w", err)
	}

	session.ExpiresAt = session.ExpiresAt.UTC()
	return session, nil
}

// Delete removes the client's session.
func (s *PostgresSessionStore) Delete(ctx context.Context, clientID string) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `DELETE FROM client_sessions WHERE client_id = $1`, clientID)
	if err != nil {
		return fmt.Errorf("delete client session: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return auth.ErrSessionNotFound
	}
	return nil
}

var _ auth.SessionStore = (*PostgresSessionStore)(nil)
