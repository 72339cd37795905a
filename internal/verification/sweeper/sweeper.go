// Package sweeper closes out verification sessions the provider never
// finalized. A session left open past the configured maximum age is marked
// abandoned so it stops counting as in-flight work and becomes retryable.
package sweeper

import (
	"context"
	"log/slog"
	"time"

	"veriflow/internal/audit"
	"veriflow/internal/verification/metrics"
	"veriflow/internal/verification/models"
)

// SessionStore is the persistence the sweeper needs.
type SessionStore interface {
	ListInProgressBefore(ctx context.Context, cutoff time.Time) ([]*models.Session, error)
	Update(ctx context.Context, session *models.Session) error
}

// AuditPublisher records swept sessions.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Sweeper periodically abandons sessions that outlived the maximum age.
type Sweeper struct {
	sessions SessionStore
	maxAge   time.Duration
	interval time.Duration

	logger  *slog.Logger
	metrics *metrics.Metrics
	audit   AuditPublisher
}

type Option func(*Sweeper)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Sweeper) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Sweeper) {
		s.metrics = m
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Sweeper) {
		s.audit = publisher
	}
}

// New constructs a Sweeper.
func New(sessions SessionStore, maxAge, interval time.Duration, opts ...Option) *Sweeper {
	s := &Sweeper{
		sessions: sessions,
		maxAge:   maxAge,
		interval: interval,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Run sweeps on the configured interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.SweepAt(ctx, time.Now().UTC()); err != nil {
				s.logger.ErrorContext(ctx, "sweep stale sessions", "error", err)
			}
		}
	}
}

// SweepAt abandons every open session created before now minus the maximum
// age. Exported for testability; Run passes wall-clock time.
func (s *Sweeper) SweepAt(ctx context.Context, now time.Time) error {
	stale, err := s.sessions.ListInProgressBefore(ctx, now.Add(-s.maxAge))
	if err != nil {
		return err
	}

	swept := 0
	for _, session := range stale {
		if err := session.ApplyAbandoned(nil, now); err != nil {
			// Another writer finalized it between list and apply.
			continue
		}
		if err := s.sessions.Update(ctx, session); err != nil {
			s.logger.WarnContext(ctx, "persist swept session",
				"session_id", session.ID.String(),
				"error", err,
			)
			continue
		}
		swept++
		s.logger.InfoContext(ctx, "stale session abandoned",
			"session_id", session.ID.String(),
			"request_id", session.RequestID.String(),
			"created_at", session.CreatedAt,
		)
		if s.audit != nil {
			_ = s.audit.Emit(ctx, audit.Event{
				Action:            audit.ActionSessionSwept,
				SessionID:         session.ID,
				RequestID:         session.RequestID,
				ProviderSessionID: session.ProviderSessionID,
				ToStatus:          string(models.StatusAbandoned),
				Reason:            "open past maximum age",
			})
		}
	}
	s.metrics.IncrementSessionsSwept(swept)
	return nil
}
