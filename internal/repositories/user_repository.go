package repositories

import (
	"context"
	"encoding/json"

	"github.com/wayfarer/backend/internal/models"
)

// UserRepository defines the data access contract for users.
type UserRepository interface {
	RecordSignIn(ctx context.Context, user models.SessionUser) (models.User, error)
	FindByEmail(ctx context.Context, email string) (models.User, error)
	UpdateProfile(ctx context.Context, user models.User) (models.User, error)
}

// SourceRepository defines data access for submitted source records.
type SourceRepository interface {
	Create(ctx context.Context, record models.SourceRecord) error
	Find(ctx context.Context, id string) (models.SourceRecord, error)
	Update(ctx context.Context, id string, status models.SourceStatus, content json.RawMessage) error
}

var (
	_ UserRepository   = (*PostgresUserRepository)(nil)
	_ SourceRepository = (*PostgresSourceRepository)(nil)
)
