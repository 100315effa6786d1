package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap/zaptest"

	"github.com/iliyamo/bookify-reservation/internal/model"
	"github.com/iliyamo/bookify-reservation/internal/repository"
	"github.com/iliyamo/bookify-reservation/internal/reservation"
)

func TestWriteError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantCode   int
		retryAfter string
	}{
		{"capacity", &reservation.Error{Kind: reservation.ErrCapacityExceeded, Reason: reservation.ReasonNoRooms}, http.StatusConflict, ""},
		{"insufficient inventory", repository.ErrInsufficientInventory, http.StatusConflict, ""},
		{"not found", repository.ErrBookingNotFound, http.StatusNotFound, ""},
		{"validation", &reservation.Error{Kind: reservation.ErrValidation, Reason: "num_guests must be positive"}, http.StatusBadRequest, ""},
		{"invalid model", fmt.Errorf("%w: title required", model.ErrInvalid), http.StatusBadRequest, ""},
		{"forbidden", repository.ErrForbidden, http.StatusForbidden, ""},
		{"conflict after retries", repository.ErrConflict, http.StatusServiceUnavailable, "1"},
		{"unexpected", errors.New("disk on fire"), http.StatusInternalServerError, ""},
	}
	e := echo.New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
			if err := writeError(c, zaptest.NewLogger(t), tt.err); err != nil {
				t.Fatalf("writeError: %v", err)
			}
			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if got := rec.Header().Get("Retry-After"); got != tt.retryAfter {
				t.Errorf("Retry-After = %q, want %q", got, tt.retryAfter)
			}
		})
	}
}

func TestParseDay(t *testing.T) {
	for in, wantNil := range map[string]bool{"": true, " 2025-06-01 ": false, "2025-06-01T14:00:00Z": false} {
		got, err := parseDay(in)
		if err != nil || (got == nil) != wantNil {
			t.Errorf("parseDay(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := parseDay("01/06/2025"); err == nil {
		t.Error("parseDay accepted a non ISO date")
	}
}

func TestHealthReportsFailingChecks(t *testing.T) {
	h := NewHealthHandler(map[string]Check{
		"mysql": func(context.Context) error { return nil },
		"redis": func(context.Context) error { return errors.New("dial tcp: refused") },
	})
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(httptest.NewRequest(http.MethodGet, "/healthz", nil), rec)
	if err := h.Health(c); err != nil {
		t.Fatalf("Health: %v", err)
	}
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}
