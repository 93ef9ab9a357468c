package profile

import (
	"context"

	"github.com/google/uuid"
)

type ProfileRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Profile, error)
	UpdateDisplayName(ctx context.Context, id uuid.UUID, displayName string) error
	// Upsert creates the row when the auth provider has not done so yet.
	Upsert(ctx context.Context, p *Profile) error
}

// AuthUserRepository writes to the auth provider's user record.
type AuthUserRepository interface {
	UpdateDisplayName(ctx context.Context, userID uuid.UUID, displayName string) error
}
