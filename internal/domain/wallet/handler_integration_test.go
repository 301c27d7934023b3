package wallet_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/taskrun/taskrun-api/internal/domain/user"
	"github.com/taskrun/taskrun-api/internal/domain/wallet"
	"github.com/taskrun/taskrun-api/internal/middleware"
	"github.com/taskrun/taskrun-api/internal/pkg/jwt"
)

type walletAPIResponse struct {
	Success bool `json:"success"`
	Data    struct {
		Balance        int64  `json:"balance"`
		PendingBalance int64  `json:"pending_balance"`
		Amount         int64  `json:"amount"`
		Type           string `json:"type"`
	} `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func TestWalletEndpointsIntegration(t *testing.T) {
	db := setupTestDB(t)
	defer cleanupTestDB(db)

	userID := createTestUser(t, db, "client")

	repo := wallet.NewRepository(db)
	svc := wallet.NewService(repo, user.NewRepository(db))
	h := wallet.NewHandler(svc)

	jwtSvc := jwt.NewService("wallet-integration-secret", time.Hour)
	token, err := jwtSvc.GenerateAccessToken(userID, "client", false)
	if err != nil {
		t.Fatalf("generate token failed: %v", err)
	}

	r := chi.NewRouter()
	r.Mount("/api/v1/wallet", h.Routes(middleware.Auth(jwtSvc)))

	t.Run("GET / initial balance", func(t *testing.T) {
		resp := performWalletRequest(t, r, token, http.MethodGet, "/api/v1/wallet/", nil)
		if resp.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.Code)
		}
		body := decodeWalletResponse(t, resp)
		if !body.Success || body.Data.Balance != 0 {
			t.Fatalf("expected success=true balance=0, got success=%v balance=%d", body.Success, body.Data.Balance)
		}
	})

	t.Run("POST /topup", func(t *testing.T) {
		resp := performWalletRequest(t, r, token, http.MethodPost, "/api/v1/wallet/topup", map[string]interface{}{
			"amount":       int64(1000),
			"reference_id": "topup_http_1",
		})
		if resp.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d", resp.Code)
		}
		body := decodeWalletResponse(t, resp)
		if !body.Success || body.Data.Amount != 1000 || body.Data.Type != "topup" {
			t.Fatalf("expected topup entry of 1000, got success=%v amount=%d type=%s",
				body.Success, body.Data.Amount, body.Data.Type)
		}
	})

	t.Run("GET / after topup", func(t *testing.T) {
		resp := performWalletRequest(t, r, token, http.MethodGet, "/api/v1/wallet/", nil)
		if resp.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.Code)
		}
		body := decodeWalletResponse(t, resp)
		if body.Data.Balance != 1000 || body.Data.PendingBalance != 0 {
			t.Fatalf("expected balance=1000 pending=0, got %d/%d", body.Data.Balance, body.Data.PendingBalance)
		}
	})

	t.Run("POST /topup invalid amount", func(t *testing.T) {
		resp := performWalletRequest(t, r, token, http.MethodPost, "/api/v1/wallet/topup", map[string]interface{}{
			"amount": int64(0),
		})
		if resp.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", resp.Code)
		}
	})

	t.Run("unauthenticated request", func(t *testing.T) {
		resp := performWalletRequest(t, r, "", http.MethodGet, "/api/v1/wallet/", nil)
		if resp.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", resp.Code)
		}
	})
}

func performWalletRequest(t *testing.T, handler http.Handler, token, method, path string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var body *bytes.Buffer
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload failed: %v", err)
		}
		body = bytes.NewBuffer(raw)
	} else {
		body = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	return resp
}

func decodeWalletResponse(t *testing.T, resp *httptest.ResponseRecorder) walletAPIResponse {
	t.Helper()
	var body walletAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response failed: %v", err)
	}
	return body
}
