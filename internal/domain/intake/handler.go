package intake

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medintake/intake/internal/platform/auth"
	"github.com/medintake/intake/internal/platform/db"
	"github.com/medintake/intake/pkg/pagination"
	"github.com/medintake/intake/pkg/phone"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole(auth.RoleReception, auth.RoleAnalyst))
	read.GET("/records", h.ListRecords)
	read.GET("/records/calendar", h.Calendar)
	read.GET("/records/:id", h.GetRecord)

	write := api.Group("", auth.RequireRole(auth.RoleReception))
	write.POST("/records", h.CreateRecord)
	write.POST("/records/preview", h.PreviewRecord)
}

// recordView adds the display form of the phone number.
type recordView struct {
	*Record
	PhoneDisplay string `json:"phone_display"`
}

func newRecordView(r *Record) recordView {
	return recordView{Record: r, PhoneDisplay: phone.FormatForDisplay(r.Phone)}
}

func serviceError(err error) error {
	switch {
	case errors.Is(err, ErrInvalid):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, db.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "record not found")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

func (h *Handler) CreateRecord(c echo.Context) error {
	var v FormValues
	if err := c.Bind(&v); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	rec, err := h.svc.Submit(c.Request().Context(), v, auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(http.StatusCreated, newRecordView(rec))
}

func (h *Handler) PreviewRecord(c echo.Context) error {
	var v FormValues
	if err := c.Bind(&v); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.svc.Preview(c.Request().Context(), v)
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) GetRecord(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	rec, err := h.svc.GetRecord(c.Request().Context(), id)
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(http.StatusOK, newRecordView(rec))
}

func (h *Handler) ListRecords(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := ListFilter{
		Branch:        c.QueryParam("branch"),
		PaymentStatus: c.QueryParam("payment_status"),
		Query:         c.QueryParam("q"),
	}
	var err error
	if f.From, err = parseDay(c.QueryParam("from"), false); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "from must be YYYY-MM-DD")
	}
	if f.To, err = parseDay(c.QueryParam("to"), true); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "to must be YYYY-MM-DD")
	}

	items, total, err := h.svc.ListRecords(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return serviceError(err)
	}
	views := make([]recordView, len(items))
	for i, rec := range items {
		views[i] = newRecordView(rec)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(views, total, pg.Limit, pg.Offset))
}

func (h *Handler) Calendar(c echo.Context) error {
	month, days, err := h.svc.Calendar(c.Request().Context(), c.QueryParam("month"))
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"month": month,
		"days":  days,
	})
}

// parseDay parses a YYYY-MM-DD query value. Upper bounds are moved to the
// start of the next day so the whole day is included.
func parseDay(s string, upper bool) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, err
	}
	if upper {
		t = t.AddDate(0, 0, 1)
	}
	return &t, nil
}
