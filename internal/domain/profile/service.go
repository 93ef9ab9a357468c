package profile

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ErrInvalid marks rejected profile edits.
var ErrInvalid = errors.New("invalid profile")

const maxDisplayNameLen = 120

type Service struct {
	repo   ProfileRepository
	syncer *Syncer
}

func NewService(repo ProfileRepository, syncer *Syncer) *Service {
	return &Service{repo: repo, syncer: syncer}
}

func (s *Service) GetProfile(ctx context.Context, id uuid.UUID) (*Profile, error) {
	return s.repo.GetByID(ctx, id)
}

// Sync reconciles the display name for the caller. A nil profile means the
// profile could not be read.
func (s *Service) Sync(ctx context.Context, id uuid.UUID, meta AuthMetadata) *Profile {
	return s.syncer.Sync(ctx, id, meta)
}

// UpdateDisplayName stores an explicit edit and then syncs it to the auth
// user, whose copy in meta is now stale.
func (s *Service) UpdateDisplayName(ctx context.Context, id uuid.UUID, email *string, displayName string, meta AuthMetadata) (*Profile, error) {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return nil, fmt.Errorf("%w: display_name is required", ErrInvalid)
	}
	if len([]rune(displayName)) > maxDisplayNameLen {
		return nil, fmt.Errorf("%w: display_name must be at most %d characters", ErrInvalid, maxDisplayNameLen)
	}

	p := &Profile{ID: id, DisplayName: &displayName, Email: email}
	if err := s.repo.Upsert(ctx, p); err != nil {
		return nil, err
	}
	if synced := s.syncer.Sync(ctx, id, meta); synced != nil {
		return synced, nil
	}
	return p, nil
}
