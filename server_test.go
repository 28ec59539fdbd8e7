package main

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"edgecamd/camera"
)

func TestHTTPStatusForError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"invalid argument", fmt.Errorf("bad: %w", camera.ErrInvalidArgument), http.StatusBadRequest},
		{"not found", fmt.Errorf("missing: %w", camera.ErrNotFound), http.StatusNotFound},
		{"device not found", fmt.Errorf("missing: %w", camera.ErrDeviceNotFound), http.StatusNotFound},
		{"illegal state", fmt.Errorf("bad state: %w", camera.ErrState), http.StatusConflict},
		{"device busy", fmt.Errorf("busy: %w", camera.ErrDeviceBusy), http.StatusConflict},
		{"admission denied", fmt.Errorf("full: %w", camera.ErrAdmissionDenied), http.StatusServiceUnavailable},
		{"unmapped", fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := httpStatusForError(tt.err); got != tt.want {
				t.Errorf("httpStatusForError(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestCORSPreflightShortCircuits(t *testing.T) {
	s := &APIServer{corsOrigin: "*"}
	called := false
	handler := s.cors(func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	req := httptest.NewRequest(http.MethodOptions, "/api/camera/status", nil)
	rec := httptest.NewRecorder()
	handler(rec, req)

	if called {
		t.Fatal("expected OPTIONS preflight to short-circuit before reaching next handler")
	}
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("expected CORS origin header *, got %q", got)
	}
}

func TestHandleHealth(t *testing.T) {
	s := &APIServer{}
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.handleHealth(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
