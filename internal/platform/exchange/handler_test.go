package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

type stubSource struct {
	q   Quote
	err error
}

func (s stubSource) Quote(context.Context) (Quote, error) { return s.q, s.err }

func TestHandler_GetRate(t *testing.T) {
	h := NewHandler(stubSource{q: Quote{Base: "USD", Currency: "VES", Rate: 36.5, FetchedAt: time.Now()}})
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()

	if err := h.GetRate(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var q Quote
	if err := json.Unmarshal(rec.Body.Bytes(), &q); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if q.Rate != 36.5 {
		t.Errorf("expected 36.5, got %v", q.Rate)
	}
}

func TestHandler_GetRate_Unavailable(t *testing.T) {
	h := NewHandler(stubSource{err: errors.New("down")})
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()

	err := h.GetRate(e.NewContext(req, rec))
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %v", err)
	}
}

func TestHandler_Convert(t *testing.T) {
	h := NewHandler(stubSource{q: Quote{Rate: 40}})
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/?amount=12.5", nil)
	rec := httptest.NewRecorder()

	if err := h.Convert(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body["amount_ves"] != float64(500) {
		t.Errorf("expected 500, got %v", body["amount_ves"])
	}
}

func TestHandler_Convert_BadAmount(t *testing.T) {
	h := NewHandler(stubSource{q: Quote{Rate: 40}})
	e := echo.New()
	for _, q := range []string{"", "?amount=abc", "?amount=-1"} {
		req := httptest.NewRequest(http.MethodGet, "/"+q, nil)
		rec := httptest.NewRecorder()
		err := h.Convert(e.NewContext(req, rec))
		httpErr, ok := err.(*echo.HTTPError)
		if !ok || httpErr.Code != http.StatusBadRequest {
			t.Errorf("%q: expected 400, got %v", q, err)
		}
	}
}
