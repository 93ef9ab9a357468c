package profile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medintake/intake/internal/platform/db"
	"github.com/medintake/intake/internal/platform/websocket"
)

func str(s string) *string { return &s }

// -- Mock repositories --

type mockProfileRepo struct {
	profiles  map[uuid.UUID]*Profile
	getErr    error
	updateErr error
	writes    int
}

func newMockProfileRepo() *mockProfileRepo {
	return &mockProfileRepo{profiles: make(map[uuid.UUID]*Profile)}
}

func (m *mockProfileRepo) GetByID(_ context.Context, id uuid.UUID) (*Profile, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	p, ok := m.profiles[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *mockProfileRepo) UpdateDisplayName(_ context.Context, id uuid.UUID, displayName string) error {
	m.writes++
	if m.updateErr != nil {
		return m.updateErr
	}
	p, ok := m.profiles[id]
	if !ok {
		return db.ErrNotFound
	}
	p.DisplayName = &displayName
	return nil
}

func (m *mockProfileRepo) Upsert(_ context.Context, p *Profile) error {
	m.writes++
	if m.updateErr != nil {
		return m.updateErr
	}
	p.UpdatedAt = time.Now()
	cp := *p
	m.profiles[p.ID] = &cp
	return nil
}

type mockAuthRepo struct {
	names  map[uuid.UUID]string
	err    error
	writes int
}

func newMockAuthRepo() *mockAuthRepo {
	return &mockAuthRepo{names: make(map[uuid.UUID]string)}
}

func (m *mockAuthRepo) UpdateDisplayName(_ context.Context, userID uuid.UUID, displayName string) error {
	m.writes++
	if m.err != nil {
		return m.err
	}
	m.names[userID] = displayName
	return nil
}

type recordingPublisher struct {
	events []websocket.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e websocket.Event) error {
	p.events = append(p.events, e)
	return nil
}

func newTestSyncer() (*Syncer, *mockProfileRepo, *mockAuthRepo, *recordingPublisher) {
	profiles := newMockProfileRepo()
	authUsers := newMockAuthRepo()
	pub := &recordingPublisher{}
	return NewSyncer(profiles, authUsers, pub, zerolog.Nop()), profiles, authUsers, pub
}

func TestReconcile(t *testing.T) {
	tests := []struct {
		name    string
		profile *string
		auth    *string
		want    Action
	}{
		{"profile missing, auth present", nil, str("Ana"), ActionUpdateProfile},
		{"profile blank, auth present", str("  "), str("Ana"), ActionUpdateProfile},
		{"profile present, auth missing", str("Ana"), nil, ActionUpdateAuth},
		{"profile present, auth blank", str("Ana"), str(""), ActionUpdateAuth},
		{"names differ", str("Ana María"), str("Ana"), ActionUpdateAuth},
		{"names equal", str("Ana"), str("Ana"), ActionNone},
		{"names differ only in whitespace", str("Ana "), str("Ana"), ActionUpdateAuth},
		{"both missing", nil, nil, ActionNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Reconcile(tt.profile, tt.auth); got != tt.want {
				t.Errorf("Reconcile = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSync_AuthToProfile(t *testing.T) {
	s, profiles, authUsers, pub := newTestSyncer()
	id := uuid.New()
	profiles.profiles[id] = &Profile{ID: id, DisplayName: nil}

	p := s.Sync(context.Background(), id, AuthMetadata{DisplayName: str("Ana")})
	if p == nil || p.DisplayName == nil || *p.DisplayName != "Ana" {
		t.Fatalf("expected locally patched profile, got %+v", p)
	}
	if profiles.writes != 1 || authUsers.writes != 0 {
		t.Errorf("expected exactly one profile write, got profile=%d auth=%d", profiles.writes, authUsers.writes)
	}
	if *profiles.profiles[id].DisplayName != "Ana" {
		t.Error("profile row not updated")
	}
	if len(pub.events) != 1 || pub.events[0].Type != websocket.EventProfileSynced {
		t.Errorf("expected one profile.synced event, got %+v", pub.events)
	}
}

func TestSync_ProfileToAuth(t *testing.T) {
	s, profiles, authUsers, _ := newTestSyncer()
	id := uuid.New()
	profiles.profiles[id] = &Profile{ID: id, DisplayName: str("Ana María")}

	p := s.Sync(context.Background(), id, AuthMetadata{DisplayName: str("Ana")})
	if p == nil || *p.DisplayName != "Ana María" {
		t.Fatalf("unexpected profile %+v", p)
	}
	if profiles.writes != 0 || authUsers.writes != 1 {
		t.Errorf("expected exactly one auth write, got profile=%d auth=%d", profiles.writes, authUsers.writes)
	}
	if authUsers.names[id] != "Ana María" {
		t.Errorf("auth name = %q", authUsers.names[id])
	}
}

func TestSync_WhitespaceDifferenceConverges(t *testing.T) {
	s, profiles, authUsers, _ := newTestSyncer()
	id := uuid.New()
	profiles.profiles[id] = &Profile{ID: id, DisplayName: str("Ana ")}

	s.Sync(context.Background(), id, AuthMetadata{DisplayName: str("Ana")})
	if authUsers.writes != 1 || authUsers.names[id] != "Ana " {
		t.Fatalf("expected profile name copied verbatim, got writes=%d name=%q", authUsers.writes, authUsers.names[id])
	}

	s.Sync(context.Background(), id, AuthMetadata{DisplayName: str(authUsers.names[id])})
	if authUsers.writes != 1 || profiles.writes != 0 {
		t.Errorf("second sync should be a no-op, got profile=%d auth=%d", profiles.writes, authUsers.writes)
	}
}

func TestSync_NoWritesWhenNamesMatch(t *testing.T) {
	s, profiles, authUsers, pub := newTestSyncer()
	id := uuid.New()
	profiles.profiles[id] = &Profile{ID: id, DisplayName: str("Ana")}

	if p := s.Sync(context.Background(), id, AuthMetadata{DisplayName: str("Ana")}); p == nil {
		t.Fatal("expected profile")
	}
	if profiles.writes != 0 || authUsers.writes != 0 || len(pub.events) != 0 {
		t.Errorf("expected no writes, got profile=%d auth=%d events=%d", profiles.writes, authUsers.writes, len(pub.events))
	}
}

func TestSync_FetchFailureReturnsNil(t *testing.T) {
	s, profiles, authUsers, _ := newTestSyncer()

	if p := s.Sync(context.Background(), uuid.New(), AuthMetadata{DisplayName: str("Ana")}); p != nil {
		t.Errorf("expected nil for missing profile, got %+v", p)
	}

	profiles.getErr = errors.New("connection refused")
	if p := s.Sync(context.Background(), uuid.New(), AuthMetadata{DisplayName: str("Ana")}); p != nil {
		t.Errorf("expected nil on fetch error, got %+v", p)
	}
	if profiles.writes != 0 || authUsers.writes != 0 {
		t.Error("no writes expected after a failed fetch")
	}
}

func TestSync_WriteFailureIsSwallowed(t *testing.T) {
	s, profiles, authUsers, pub := newTestSyncer()
	id := uuid.New()
	profiles.profiles[id] = &Profile{ID: id}
	profiles.updateErr = errors.New("permission denied")

	p := s.Sync(context.Background(), id, AuthMetadata{DisplayName: str("Ana")})
	if p == nil {
		t.Fatal("write failure must still return the fetched profile")
	}
	if p.DisplayName != nil {
		t.Errorf("profile must not be patched when the write failed, got %q", *p.DisplayName)
	}
	if len(pub.events) != 0 {
		t.Error("no event expected after a failed write")
	}

	other := uuid.New()
	profiles.updateErr = nil
	profiles.profiles[other] = &Profile{ID: other, DisplayName: str("Luis")}
	authUsers.err = errors.New("auth.users not writable")
	if p := s.Sync(context.Background(), other, AuthMetadata{}); p == nil || *p.DisplayName != "Luis" {
		t.Errorf("auth write failure must return the profile unchanged, got %+v", p)
	}
}

func TestSync_NilPublisher(t *testing.T) {
	profiles := newMockProfileRepo()
	id := uuid.New()
	profiles.profiles[id] = &Profile{ID: id, DisplayName: str("Ana")}
	s := NewSyncer(profiles, newMockAuthRepo(), nil, zerolog.Nop())

	if p := s.Sync(context.Background(), id, AuthMetadata{}); p == nil {
		t.Fatal("expected profile")
	}
}
