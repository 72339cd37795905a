// Package notification delivers verification outcome notices to interested
// parties. The service invokes it fire-and-forget after the durable update;
// a delivery failure never affects webhook acknowledgement.
package notification

import (
	"context"
	"log/slog"

	"veriflow/internal/verification/models"
)

// Notifier receives verification outcome notices.
type Notifier interface {
	SessionCompleted(ctx context.Context, session *models.Session)
	SessionDeclined(ctx context.Context, session *models.Session)
	SessionAbandoned(ctx context.Context, session *models.Session)
}

// LogNotifier writes notices to the structured log. Stands in for the mail
// and ops-channel integrations that consume these notices downstream.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier constructs a log-backed notifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) SessionCompleted(ctx context.Context, session *models.Session) {
	n.logger.InfoContext(ctx, "verification completed",
		"session_id", session.ID.String(),
		"request_id", session.RequestID.String(),
		"result", string(session.VerificationResult),
		"risk_tier", string(session.RiskTier),
	)
}

func (n *LogNotifier) SessionDeclined(ctx context.Context, session *models.Session) {
	n.logger.InfoContext(ctx, "verification declined",
		"session_id", session.ID.String(),
		"request_id", session.RequestID.String(),
	)
}

func (n *LogNotifier) SessionAbandoned(ctx context.Context, session *models.Session) {
	n.logger.InfoContext(ctx, "verification abandoned",
		"session_id", session.ID.String(),
		"request_id", session.RequestID.String(),
	)
}
