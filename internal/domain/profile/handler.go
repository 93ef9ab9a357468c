package profile

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medintake/intake/internal/platform/auth"
	"github.com/medintake/intake/internal/platform/db"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/profile", h.GetProfile)
	api.PUT("/profile", h.UpdateProfile)
	api.POST("/profile/sync", h.SyncProfile)
}

type updateRequest struct {
	DisplayName string `json:"display_name"`
}

// caller returns the authenticated user and the display name carried in
// the token's user_metadata.
func caller(c echo.Context) (uuid.UUID, auth.Identity, error) {
	id, ok := auth.IdentityFromContext(c.Request().Context())
	if !ok {
		return uuid.Nil, id, echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
	}
	uid, err := uuid.Parse(id.UserID)
	if err != nil {
		return uuid.Nil, id, echo.NewHTTPError(http.StatusBadRequest, "user id is not a uuid")
	}
	return uid, id, nil
}

func (h *Handler) GetProfile(c echo.Context) error {
	uid, _, err := caller(c)
	if err != nil {
		return err
	}
	p, err := h.svc.GetProfile(c.Request().Context(), uid)
	if errors.Is(err, db.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "profile not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) UpdateProfile(c echo.Context) error {
	uid, id, err := caller(c)
	if err != nil {
		return err
	}
	var req updateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	var email *string
	if id.Email != "" {
		email = &id.Email
	}
	p, err := h.svc.UpdateDisplayName(c.Request().Context(), uid, email, req.DisplayName, AuthMetadata{DisplayName: id.DisplayName})
	if errors.Is(err, ErrInvalid) {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, p)
}

// SyncProfile reconciles the display name using the caller's token claims.
func (h *Handler) SyncProfile(c echo.Context) error {
	uid, id, err := caller(c)
	if err != nil {
		return err
	}
	p := h.svc.Sync(c.Request().Context(), uid, AuthMetadata{DisplayName: id.DisplayName})
	if p == nil {
		return echo.NewHTTPError(http.StatusNotFound, "profile not available")
	}
	return c.JSON(http.StatusOK, p)
}
