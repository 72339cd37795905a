// Package httptransport assembles the public HTTP surface. Route wiring and
// middleware ordering live here so main stays small and handlers stay
// transport-agnostic.
package httptransport

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"veriflow/internal/platform/middleware"
	verificationhandler "veriflow/internal/verification/handler"
	"veriflow/pkg/platform/httputil"
)

// Dependencies carries everything the router mounts.
type Dependencies struct {
	Verification *verificationhandler.Handler
	Auth         *middleware.Auth

	// Ready reports whether backing stores are reachable. Nil means always
	// ready.
	Ready func(ctx context.Context) error
}

// NewRouter wires all endpoints.
//
// The webhook route sits outside the auth group: the provider authenticates
// with the HMAC signature, not with internal credentials. Everything under
// /verification/sessions requires internal auth.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestMeta)

	r.Get("/healthz", handleHealthz)
	r.Get("/readyz", handleReadyz(deps.Ready))
	r.Handle("/metrics", promhttp.Handler())

	deps.Verification.RegisterWebhook(r)

	r.Group(func(g chi.Router) {
		if deps.Auth != nil {
			g.Use(deps.Auth.Require)
		}
		deps.Verification.Register(g)
	})

	return r
}

func handleHealthz(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func handleReadyz(ready func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ready != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := ready(ctx); err != nil {
				httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{
					"status": "unavailable",
					"reason": err.Error(),
				})
				return
			}
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}
