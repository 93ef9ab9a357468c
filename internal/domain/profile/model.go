package profile

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Profile is the user-facing identity row in the profiles table.
type Profile struct {
	ID          uuid.UUID `json:"id"`
	DisplayName *string   `json:"display_name"`
	Email       *string   `json:"email"`
	AvatarURL   *string   `json:"avatar_url"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// AuthMetadata is the part of the auth provider's user_metadata that the
// profile mirrors.
type AuthMetadata struct {
	DisplayName *string `json:"display_name"`
}

// present reports whether p holds a non-blank name.
func present(p *string) bool {
	return p != nil && strings.TrimSpace(*p) != ""
}
