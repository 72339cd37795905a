package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	dErrors "veriflow/pkg/domain-errors"
	"veriflow/pkg/platform/httputil"
	"veriflow/pkg/secrets"
)

// Auth guards the internal session API. Callers present either a bearer JWT
// signed with the shared key or a static API key matched against the
// configured bcrypt hashes. The webhook endpoint is NOT behind this
// middleware; it authenticates with the HMAC signature instead.
type Auth struct {
	signingKey   []byte
	apiKeyHashes []string
	logger       *slog.Logger
}

// NewAuth constructs the auth middleware.
func NewAuth(signingKey string, apiKeyHashes []string, logger *slog.Logger) *Auth {
	return &Auth{
		signingKey:   []byte(signingKey),
		apiKeyHashes: apiKeyHashes,
		logger:       logger,
	}
}

// Require wraps a handler so only authenticated callers pass.
func (a *Auth) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.authorize(r) {
			next.ServeHTTP(w, r)
			return
		}
		a.logger.WarnContext(r.Context(), "unauthenticated request rejected",
			"path", r.URL.Path,
			"method", r.Method,
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
	})
}

func (a *Auth) authorize(r *http.Request) bool {
	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
		return a.validToken(strings.TrimPrefix(header, "Bearer "))
	}
	if key := r.Header.Get("X-API-Key"); key != "" {
		return a.validAPIKey(key)
	}
	return false
}

func (a *Auth) validToken(tokenString string) bool {
	if len(a.signingKey) == 0 {
		return false
	}
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return a.signingKey, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithExpirationRequired())
	return err == nil && token.Valid
}

func (a *Auth) validAPIKey(key string) bool {
	for _, hash := range a.apiKeyHashes {
		if secrets.Verify(key, hash) == nil {
			return true
		}
	}
	return false
}
