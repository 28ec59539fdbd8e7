package main

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAuthMiddlewareDisabledWhenNoAPIKey(t *testing.T) {
	am := NewAuthMiddleware("", "secret")
	if am.Enabled() {
		t.Fatal("expected middleware to be disabled with empty API key")
	}

	called := false
	handler := am.Check(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	req := httptest.NewRequest(http.MethodGet, "/api/camera/status", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if !called {
		t.Fatal("expected next handler to run when auth is disabled")
	}
}

func TestAuthMiddlewareRejectsMissingKey(t *testing.T) {
	am := NewAuthMiddleware("s3cr3t", "secret")
	handler := am.Check(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("next handler should not run without a valid key")
	}))
	req := httptest.NewRequest(http.MethodGet, "/api/camera/status", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestAuthMiddlewareAcceptsHeaderOrQueryParam(t *testing.T) {
	am := NewAuthMiddleware("s3cr3t", "secret")
	handler := am.Check(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	header := httptest.NewRequest(http.MethodGet, "/api/camera/status", nil)
	header.Header.Set("X-API-Key", "s3cr3t")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, header)
	if rec.Code != http.StatusOK {
		t.Fatalf("header auth: expected 200, got %d", rec.Code)
	}

	query := httptest.NewRequest(http.MethodGet, "/api/stream?api_key=s3cr3t", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, query)
	if rec.Code != http.StatusOK {
		t.Fatalf("query auth: expected 200, got %d", rec.Code)
	}
}

func TestAuthMiddlewareSkipsOptionsAndHealth(t *testing.T) {
	am := NewAuthMiddleware("s3cr3t", "secret")
	handler := am.Check(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	opts := httptest.NewRequest(http.MethodOptions, "/api/camera/status", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, opts)
	if rec.Code != http.StatusOK {
		t.Fatalf("OPTIONS: expected 200, got %d", rec.Code)
	}

	health := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, health)
	if rec.Code != http.StatusOK {
		t.Fatalf("/health: expected 200, got %d", rec.Code)
	}
}

func TestStreamTokenRoundTrip(t *testing.T) {
	am := NewAuthMiddleware("s3cr3t", "signing-secret")
	token, err := am.GenerateStreamToken("cam-0")
	if err != nil {
		t.Fatalf("GenerateStreamToken: %v", err)
	}

	cameraID, err := am.VerifyStreamToken(token)
	if err != nil {
		t.Fatalf("VerifyStreamToken: %v", err)
	}
	if cameraID != "cam-0" {
		t.Fatalf("expected camera ID cam-0, got %q", cameraID)
	}
}

func TestStreamTokenRejectsWrongSecret(t *testing.T) {
	minter := NewAuthMiddleware("s3cr3t", "signing-secret-a")
	token, err := minter.GenerateStreamToken("cam-0")
	if err != nil {
		t.Fatalf("GenerateStreamToken: %v", err)
	}

	verifier := NewAuthMiddleware("s3cr3t", "signing-secret-b")
	if _, err := verifier.VerifyStreamToken(token); err == nil {
		t.Fatal("expected verification to fail with a mismatched signing secret")
	}
}

func TestAuthorizedForStreamAcceptsTokenWithoutAPIKey(t *testing.T) {
	am := NewAuthMiddleware("s3cr3t", "secret")
	token, err := am.GenerateStreamToken("cam-0")
	if err != nil {
		t.Fatalf("GenerateStreamToken: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/ws/video?camera_id=cam-0&token="+token, nil)
	if !am.AuthorizedForStream(req, "cam-0") {
		t.Fatal("expected a valid stream token to authorize without an API key")
	}

	wrongCamera := httptest.NewRequest(http.MethodGet, "/ws/video?camera_id=cam-1&token="+token, nil)
	if am.AuthorizedForStream(wrongCamera, "cam-1") {
		t.Fatal("expected a token scoped to cam-0 to be rejected for cam-1")
	}
}
