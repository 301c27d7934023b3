package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/taskrun/taskrun-api/internal/middleware"
	"github.com/taskrun/taskrun-api/internal/pkg/jwt"
)

func TestAuthMiddleware(t *testing.T) {
	jwtSvc := jwt.NewService("auth-test-secret", time.Hour)
	userID := uuid.New()

	var gotUserID uuid.UUID
	var gotRole string
	handler := middleware.Auth(jwtSvc)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserID = middleware.GetUserID(r.Context())
		gotRole = middleware.GetRole(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("missing header", func(t *testing.T) {
		resp := performAuthRequest(t, handler, "")
		if resp.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", resp.Code)
		}
	})

	t.Run("malformed header", func(t *testing.T) {
		resp := performAuthRequest(t, handler, "Token abc")
		if resp.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", resp.Code)
		}
	})

	t.Run("garbage token", func(t *testing.T) {
		resp := performAuthRequest(t, handler, "Bearer not-a-jwt")
		if resp.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", resp.Code)
		}
	})

	t.Run("wrong secret", func(t *testing.T) {
		otherSvc := jwt.NewService("other-secret", time.Hour)
		token, err := otherSvc.GenerateAccessToken(userID, "client", false)
		if err != nil {
			t.Fatalf("generate token failed: %v", err)
		}
		resp := performAuthRequest(t, handler, "Bearer "+token)
		if resp.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", resp.Code)
		}
	})

	t.Run("banned user", func(t *testing.T) {
		token, err := jwtSvc.GenerateAccessToken(userID, "client", true)
		if err != nil {
			t.Fatalf("generate token failed: %v", err)
		}
		resp := performAuthRequest(t, handler, "Bearer "+token)
		if resp.Code != http.StatusForbidden {
			t.Fatalf("expected 403, got %d", resp.Code)
		}
	})

	t.Run("valid token", func(t *testing.T) {
		token, err := jwtSvc.GenerateAccessToken(userID, "runner", false)
		if err != nil {
			t.Fatalf("generate token failed: %v", err)
		}
		resp := performAuthRequest(t, handler, "Bearer "+token)
		if resp.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.Code)
		}
		if gotUserID != userID {
			t.Fatalf("expected user id %s in context, got %s", userID, gotUserID)
		}
		if gotRole != "runner" {
			t.Fatalf("expected role runner in context, got %q", gotRole)
		}
	})
}

func TestRequireAdmin(t *testing.T) {
	jwtSvc := jwt.NewService("auth-test-secret", time.Hour)

	handler := middleware.Auth(jwtSvc)(middleware.RequireAdmin()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))

	t.Run("non-admin rejected", func(t *testing.T) {
		token, err := jwtSvc.GenerateAccessToken(uuid.New(), "client", false)
		if err != nil {
			t.Fatalf("generate token failed: %v", err)
		}
		resp := performAuthRequest(t, handler, "Bearer "+token)
		if resp.Code != http.StatusForbidden {
			t.Fatalf("expected 403, got %d", resp.Code)
		}
	})

	t.Run("admin allowed", func(t *testing.T) {
		token, err := jwtSvc.GenerateAccessToken(uuid.New(), "admin", false)
		if err != nil {
			t.Fatalf("generate token failed: %v", err)
		}
		resp := performAuthRequest(t, handler, "Bearer "+token)
		if resp.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.Code)
		}
	})
}

func performAuthRequest(t *testing.T, handler http.Handler, authHeader string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	return resp
}
