package exchange

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

// QuoteSource is implemented by *Client.
type QuoteSource interface {
	Quote(ctx context.Context) (Quote, error)
}

type Handler struct {
	src QuoteSource
}

func NewHandler(src QuoteSource) *Handler {
	return &Handler{src: src}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/exchange-rate", h.GetRate)
	api.GET("/exchange-rate/convert", h.Convert)
}

func (h *Handler) GetRate(c echo.Context) error {
	q, err := h.src.Quote(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "exchange rate unavailable")
	}
	return c.JSON(http.StatusOK, q)
}

// Convert answers ?amount=<usd> with the bolívar equivalent.
func (h *Handler) Convert(c echo.Context) error {
	amount, err := strconv.ParseFloat(c.QueryParam("amount"), 64)
	if err != nil || amount < 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "amount must be a non-negative number")
	}
	q, err := h.src.Quote(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "exchange rate unavailable")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"amount_usd": amount,
		"amount_ves": Convert(amount, q.Rate),
		"rate":       q.Rate,
		"fetched_at": q.FetchedAt,
	})
}
