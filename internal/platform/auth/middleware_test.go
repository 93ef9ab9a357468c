package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

var testSecret = []byte("test-secret-key-for-unit-tests-only")

func createTestToken(t *testing.T, claims Claims, method jwt.SigningMethod, key interface{}) string {
	t.Helper()
	token := jwt.NewWithClaims(method, claims)
	tokenStr, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return tokenStr
}

func validClaims() Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "9b2f1c7e-0d1a-4a8e-9a43-2b8f6b1f4c11",
			Audience:  jwt.ClaimStrings{"authenticated"},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		Email:        "ana@lab.example",
		Role:         "authenticated",
		AppMetadata:  AppMetadata{Roles: []string{RoleReception}},
		UserMetadata: map[string]interface{}{"display_name": "Ana"},
	}
}

func runJWT(t *testing.T, header string) (Identity, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var got Identity
	handler := func(c echo.Context) error {
		got, _ = IdentityFromContext(c.Request().Context())
		return c.String(http.StatusOK, "ok")
	}

	mw := JWTMiddleware(JWTConfig{Secret: testSecret, Audience: "authenticated"})
	return got, mw(handler)(c)
}

func assertStatus(t *testing.T, err error, code int) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected HTTP %d error, got nil", code)
	}
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != code {
		t.Errorf("expected %d, got %d", code, httpErr.Code)
	}
}

func TestJWTMiddleware_MissingHeader(t *testing.T) {
	_, err := runJWT(t, "")
	assertStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_InvalidFormat(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"no bearer prefix", "Token abc123"},
		{"missing token", "Bearer"},
		{"empty value", "Bearer "},
		{"basic auth", "Basic dXNlcjpwYXNz"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runJWT(t, tt.header)
			assertStatus(t, err, http.StatusUnauthorized)
		})
	}
}

func TestJWTMiddleware_ValidToken(t *testing.T) {
	token := createTestToken(t, validClaims(), jwt.SigningMethodHS256, testSecret)

	id, err := runJWT(t, "Bearer "+token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id.UserID != "9b2f1c7e-0d1a-4a8e-9a43-2b8f6b1f4c11" {
		t.Errorf("unexpected user id %q", id.UserID)
	}
	if id.Email != "ana@lab.example" {
		t.Errorf("unexpected email %q", id.Email)
	}
	if id.DisplayName == nil || *id.DisplayName != "Ana" {
		t.Errorf("expected display name Ana, got %v", id.DisplayName)
	}
	if len(id.Roles) != 1 || id.Roles[0] != RoleReception {
		t.Errorf("unexpected roles %v", id.Roles)
	}
}

func TestJWTMiddleware_WrongSecret(t *testing.T) {
	token := createTestToken(t, validClaims(), jwt.SigningMethodHS256, []byte("another-secret"))
	_, err := runJWT(t, "Bearer "+token)
	assertStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_Expired(t *testing.T) {
	claims := validClaims()
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	token := createTestToken(t, claims, jwt.SigningMethodHS256, testSecret)
	_, err := runJWT(t, "Bearer "+token)
	assertStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_WrongAudience(t *testing.T) {
	claims := validClaims()
	claims.Audience = jwt.ClaimStrings{"anon"}
	token := createTestToken(t, claims, jwt.SigningMethodHS256, testSecret)
	_, err := runJWT(t, "Bearer "+token)
	assertStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_MissingSubject(t *testing.T) {
	claims := validClaims()
	claims.Subject = ""
	token := createTestToken(t, claims, jwt.SigningMethodHS256, testSecret)
	_, err := runJWT(t, "Bearer "+token)
	assertStatus(t, err, http.StatusUnauthorized)
}

func TestIdentityFromClaims_NoDisplayName(t *testing.T) {
	claims := validClaims()
	claims.UserMetadata = map[string]interface{}{"display_name": ""}
	if id := IdentityFromClaims(&claims); id.DisplayName != nil {
		t.Errorf("expected nil display name, got %q", *id.DisplayName)
	}
	claims.UserMetadata = nil
	if id := IdentityFromClaims(&claims); id.DisplayName != nil {
		t.Errorf("expected nil display name, got %q", *id.DisplayName)
	}
}

func TestDevAuthMiddleware(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var got Identity
	handler := func(c echo.Context) error {
		got, _ = IdentityFromContext(c.Request().Context())
		return nil
	}
	if err := DevAuthMiddleware()(handler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.UserID != DevUserID {
		t.Errorf("expected dev user, got %q", got.UserID)
	}
	if c.Get("user_id") != DevUserID {
		t.Errorf("expected user_id on echo context, got %v", c.Get("user_id"))
	}
}

func TestUserIDFromContext_Empty(t *testing.T) {
	if uid := UserIDFromContext(context.Background()); uid != "" {
		t.Errorf("expected empty user id, got %q", uid)
	}
	if roles := RolesFromContext(context.Background()); roles != nil {
		t.Errorf("expected nil roles, got %v", roles)
	}
}
