package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

type contextKey string

const identityKey contextKey = "identity"

// DevUserID is the user injected by DevAuthMiddleware.
const DevUserID = "00000000-0000-0000-0000-000000000001"

// Claims mirrors the access tokens issued by Supabase Auth.
type Claims struct {
	jwt.RegisteredClaims
	Email        string                 `json:"email"`
	Role         string                 `json:"role"`
	AppMetadata  AppMetadata            `json:"app_metadata"`
	UserMetadata map[string]interface{} `json:"user_metadata"`
}

// AppMetadata is the server-controlled part of the token. Application roles
// live here so users cannot grant them to themselves.
type AppMetadata struct {
	Provider string   `json:"provider,omitempty"`
	Roles    []string `json:"roles,omitempty"`
}

// Identity is the authenticated caller as seen by handlers.
type Identity struct {
	UserID      string
	Email       string
	Roles       []string
	DisplayName *string
}

// HasRole reports whether the identity carries role.
func (id Identity) HasRole(role string) bool {
	for _, r := range id.Roles {
		if r == role {
			return true
		}
	}
	return false
}

type JWTConfig struct {
	// Secret is the project's JWT secret (HS256).
	Secret   []byte
	Issuer   string
	Audience string
}

// IdentityFromClaims extracts the caller identity from verified claims.
func IdentityFromClaims(claims *Claims) Identity {
	id := Identity{
		UserID: claims.Subject,
		Email:  claims.Email,
		Roles:  claims.AppMetadata.Roles,
	}
	if name, ok := claims.UserMetadata["display_name"].(string); ok && name != "" {
		id.DisplayName = &name
	}
	return id
}

func JWTMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	parser := jwt.NewParser(opts...)
	keyFunc := func(*jwt.Token) (interface{}, error) { return cfg.Secret, nil }

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}

			scheme, tokenStr, ok := strings.Cut(authHeader, " ")
			if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(tokenStr) == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
			}

			claims := &Claims{}
			token, err := parser.ParseWithClaims(strings.TrimSpace(tokenStr), claims, keyFunc)
			if err != nil || !token.Valid || claims.Subject == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			setIdentity(c, IdentityFromClaims(claims))
			return next(c)
		}
	}
}

// DevAuthMiddleware runs every request as a fixed admin user. Only wired
// when ENV=development and no JWT secret is configured.
func DevAuthMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			setIdentity(c, Identity{
				UserID: DevUserID,
				Email:  "dev@localhost",
				Roles:  []string{"admin"},
			})
			return next(c)
		}
	}
}

func setIdentity(c echo.Context, id Identity) {
	ctx := WithIdentity(c.Request().Context(), id)
	c.SetRequest(c.Request().WithContext(ctx))
	c.Set("user_id", id.UserID)
}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}

func UserIDFromContext(ctx context.Context) string {
	id, _ := IdentityFromContext(ctx)
	return id.UserID
}

func RolesFromContext(ctx context.Context) []string {
	id, _ := IdentityFromContext(ctx)
	return id.Roles
}
