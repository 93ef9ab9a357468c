package profile

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medintake/intake/internal/platform/db"
	"github.com/medintake/intake/internal/platform/websocket"
)

// Action is the corrective write chosen by Reconcile.
type Action int

const (
	ActionNone Action = iota
	ActionUpdateProfile
	ActionUpdateAuth
)

func (a Action) String() string {
	switch a {
	case ActionUpdateProfile:
		return "auth_to_profile"
	case ActionUpdateAuth:
		return "profile_to_auth"
	default:
		return "none"
	}
}

// Reconcile decides which copy of the display name is corrected. The
// profile wins whenever it has a name; the auth copy only fills a profile
// that has none. Blank names count as absent; present names are compared
// exactly, so copies differing only in whitespace are still corrected.
func Reconcile(profileName, authName *string) Action {
	hasProfile := present(profileName)
	hasAuth := present(authName)
	switch {
	case !hasProfile && hasAuth:
		return ActionUpdateProfile
	case hasProfile && (!hasAuth || *profileName != *authName):
		return ActionUpdateAuth
	default:
		return ActionNone
	}
}

// Syncer keeps the profile's display name and the auth provider's copy in
// step. It runs when a session loads; concurrent syncs for one user are not
// coordinated and the last write wins.
type Syncer struct {
	profiles ProfileRepository
	auth     AuthUserRepository
	events   websocket.Publisher
	logger   zerolog.Logger
}

// NewSyncer builds a Syncer. events may be nil.
func NewSyncer(profiles ProfileRepository, auth AuthUserRepository, events websocket.Publisher, logger zerolog.Logger) *Syncer {
	return &Syncer{
		profiles: profiles,
		auth:     auth,
		events:   events,
		logger:   logger.With().Str("component", "profile_sync").Logger(),
	}
}

// Sync fetches the user's profile and applies the write chosen by Reconcile.
// It returns nil when the profile cannot be read. Write failures are logged
// and never returned; the profile is patched locally only when the profile
// write succeeded.
func (s *Syncer) Sync(ctx context.Context, userID uuid.UUID, meta AuthMetadata) *Profile {
	log := s.logger.With().Str("user_id", userID.String()).Logger()

	p, err := s.profiles.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			log.Info().Msg("no profile to sync")
		} else {
			log.Error().Err(err).Msg("fetch profile")
		}
		return nil
	}

	action := Reconcile(p.DisplayName, meta.DisplayName)
	switch action {
	case ActionUpdateProfile:
		authName := *meta.DisplayName
		if err := s.profiles.UpdateDisplayName(ctx, userID, authName); err != nil {
			log.Error().Err(err).Msg("copy display name to profile")
			return p
		}
		p.DisplayName = &authName
	case ActionUpdateAuth:
		profileName := *p.DisplayName
		if err := s.auth.UpdateDisplayName(ctx, userID, profileName); err != nil {
			log.Error().Err(err).Msg("copy display name to auth user")
			return p
		}
	default:
		return p
	}

	log.Info().Stringer("action", action).Msg("display name synced")
	s.publish(ctx, p, action)
	return p
}

func (s *Syncer) publish(ctx context.Context, p *Profile, action Action) {
	if s.events == nil {
		return
	}
	data, _ := json.Marshal(map[string]interface{}{
		"display_name": p.DisplayName,
		"action":       action.String(),
	})
	err := s.events.Publish(ctx, websocket.Event{
		Type:      websocket.EventProfileSynced,
		Topic:     websocket.TopicProfiles,
		SubjectID: p.ID.String(),
		Data:      data,
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("publish profile event")
	}
}
