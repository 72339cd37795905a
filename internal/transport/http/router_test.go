package httptransport

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veriflow/internal/platform/middleware"
	"veriflow/internal/verification/handler"
	"veriflow/internal/verification/provider"
	"veriflow/internal/verification/service"
	"veriflow/internal/verification/signature"
	sessionstore "veriflow/internal/verification/store/session"
	"veriflow/pkg/secrets"
	"veriflow/pkg/testutil"
)

const (
	testSigningKey = "router-test-signing-key"
	testAPIKey     = "router-test-api-key"
)

func newRouter(t *testing.T, ready func(ctx context.Context) error) (http.Handler, *provider.MockClient) {
	t.Helper()

	mock := &provider.MockClient{
		SessionID: "didit-" + uuid.NewString(),
		URL:       "https://verify.example.com/s/abc",
		ExpiresAt: time.Now().Add(24 * time.Hour),
	}
	svc := service.New(sessionstore.NewInMemory(), mock, service.Config{
		HighValueThresholdCents: 5_000_000,
	})

	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	hash, err := secrets.Hash(testAPIKey)
	require.NoError(t, err)

	h := handler.New(svc, signature.NewVerifier("router-test-secret"), logger, nil)
	return NewRouter(Dependencies{
		Verification: h,
		Auth:         middleware.NewAuth(testSigningKey, []string{hash}, logger),
		Ready:        ready,
	}), mock
}

func bearerToken(t *testing.T) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "ops-console",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testSigningKey))
	require.NoError(t, err)
	return signed
}

func TestRouterAuthBoundary(t *testing.T) {
	router, mock := newRouter(t, nil)

	createBody := map[string]any{
		"request_id":   uuid.NewString(),
		"subject_type": "consumer",
	}

	t.Run("session api rejects anonymous callers", func(t *testing.T) {
		req := testutil.NewJSONRequest(t, http.MethodPost, "/verification/sessions", createBody)
		rr := testutil.DoRequest(router, req)
		testutil.AssertStatus(t, rr, http.StatusUnauthorized)
	})

	t.Run("session api accepts a signed bearer token", func(t *testing.T) {
		mock.SessionID = "didit-" + uuid.NewString()
		req := testutil.NewJSONRequest(t, http.MethodPost, "/verification/sessions", createBody)
		req.Header.Set("Authorization", "Bearer "+bearerToken(t))
		rr := testutil.DoRequest(router, req)
		testutil.AssertStatus(t, rr, http.StatusCreated)
	})

	t.Run("session api accepts a configured api key", func(t *testing.T) {
		mock.SessionID = "didit-" + uuid.NewString()
		req := testutil.NewJSONRequest(t, http.MethodPost, "/verification/sessions", map[string]any{
			"request_id":   uuid.NewString(),
			"subject_type": "consumer",
		})
		req.Header.Set("X-API-Key", testAPIKey)
		rr := testutil.DoRequest(router, req)
		testutil.AssertStatus(t, rr, http.StatusCreated)
	})

	t.Run("unknown api key is rejected", func(t *testing.T) {
		req := testutil.NewJSONRequest(t, http.MethodPost, "/verification/sessions", createBody)
		req.Header.Set("X-API-Key", "guessed")
		rr := testutil.DoRequest(router, req)
		testutil.AssertStatus(t, rr, http.StatusUnauthorized)
	})

	t.Run("webhook route is outside the auth group", func(t *testing.T) {
		req := testutil.NewRawRequest(t, http.MethodPost, "/verification/webhook", []byte(`{}`))
		rr := testutil.DoRequest(router, req)
		// 401 for the missing HMAC signature, not for missing internal auth.
		testutil.AssertStatus(t, rr, http.StatusUnauthorized)
		testutil.AssertErrorCode(t, rr, "unauthorized")
	})
}

func TestRouterHealth(t *testing.T) {
	t.Run("healthz is always ok", func(t *testing.T) {
		router, _ := newRouter(t, nil)
		rr := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodGet, "/healthz", nil))
		testutil.AssertStatus(t, rr, http.StatusOK)
	})

	t.Run("readyz reflects the readiness probe", func(t *testing.T) {
		router, _ := newRouter(t, func(context.Context) error {
			return errors.New("postgres down")
		})
		rr := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodGet, "/readyz", nil))
		testutil.AssertStatus(t, rr, http.StatusServiceUnavailable)
	})

	t.Run("metrics endpoint is mounted", func(t *testing.T) {
		router, _ := newRouter(t, nil)
		rr := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodGet, "/metrics", nil))
		testutil.AssertStatus(t, rr, http.StatusOK)
		assert.Contains(t, rr.Body.String(), "go_goroutines")
	})
}
