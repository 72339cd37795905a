package service

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veriflow/internal/audit"
	subjectmodels "veriflow/internal/subject/models"
	"veriflow/internal/verification/models"
	id "veriflow/pkg/domain"
	dErrors "veriflow/pkg/domain-errors"
)

// payloadOpts builds a webhook body the way the provider sends it.
type payloadOpts struct {
	event      string
	sessionID  string
	timestamp  string
	status     string
	data       *models.ExtractedIdentityData
	vendorData string
}

func buildPayload(t *testing.T, opts payloadOpts) *models.WebhookPayload {
	t.Helper()
	body := map[string]any{
		"event":     opts.event,
		"sessionId": opts.sessionID,
		"timestamp": opts.timestamp,
	}
	if opts.status != "" {
		body["status"] = opts.status
	}
	if opts.data != nil {
		body["data"] = opts.data
	}
	if opts.vendorData != "" {
		body["vendor_data"] = opts.vendorData
	}
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	payload, err := models.ParseWebhookPayload(raw)
	require.NoError(t, err)
	return payload
}

func cleanData() *models.ExtractedIdentityData {
	return &models.ExtractedIdentityData{
		FullName:             "Ada Root",
		LivenessScore:        0.92,
		DocumentAuthenticity: models.DocumentValid,
	}
}

func (f *fixture) createSession(t *testing.T) *models.Session {
	t.Helper()
	session, err := f.svc.CreateSession(f.ctx(), CreateSessionInput{
		RequestID:   id.RequestID(uuid.New()),
		SubjectType: models.SubjectBusiness,
	})
	require.NoError(t, err)
	return session
}

func TestProcessWebhook_Completion(t *testing.T) {
	t.Run("clean data auto-approves", func(t *testing.T) {
		f := newFixture(t)
		session := f.createSession(t)

		err := f.svc.ProcessWebhook(f.ctx(), buildPayload(t, payloadOpts{
			event:     "verification.completed",
			sessionID: session.ProviderSessionID,
			timestamp: "2026-01-10T13:00:00Z",
			data:      cleanData(),
		}))
		require.NoError(t, err)

		stored, err := f.sessions.FindByID(f.ctx(), session.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusCompleted, stored.Status)
		assert.Equal(t, models.ResultApproved, stored.VerificationResult)
		assert.Equal(t, models.TierLow, stored.RiskTier)
		require.NotNil(t, stored.ExtractedData)
		assert.Equal(t, "Ada Root", stored.ExtractedData.FullName)
		require.NotNil(t, stored.CompletedAt)
		assert.True(t, stored.IsDuplicate("verification.completed", "2026-01-10T13:00:00Z"))

		assert.Equal(t, []id.SessionID{session.ID}, f.notifier.completed)
	})

	t.Run("sanctions match can never auto-approve", func(t *testing.T) {
		f := newFixture(t)
		session := f.createSession(t)

		data := cleanData()
		data.SanctionsMatch = true
		err := f.svc.ProcessWebhook(f.ctx(), buildPayload(t, payloadOpts{
			event:     "verification.completed",
			sessionID: session.ProviderSessionID,
			timestamp: "2026-01-10T13:00:00Z",
			data:      data,
		}))
		require.NoError(t, err)

		stored, err := f.sessions.FindByID(f.ctx(), session.ID)
		require.NoError(t, err)
		assert.Equal(t, models.ResultPendingReview, stored.VerificationResult)
		assert.Equal(t, models.TierMedium, stored.RiskTier)
	})

	t.Run("missing data is a validation error", func(t *testing.T) {
		f := newFixture(t)
		session := f.createSession(t)

		err := f.svc.ProcessWebhook(f.ctx(), buildPayload(t, payloadOpts{
			event:     "verification.completed",
			sessionID: session.ProviderSessionID,
			timestamp: "2026-01-10T13:00:00Z",
		}))
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

		stored, err := f.sessions.FindByID(f.ctx(), session.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusNotStarted, stored.Status)
	})
}

func TestProcessWebhook_TerminalEvents(t *testing.T) {
	cases := []struct {
		event      string
		wantStatus models.Status
	}{
		{"verification.failed", models.StatusDeclined},
		{"session.abandoned", models.StatusAbandoned},
		{"session.expired", models.StatusAbandoned},
	}
	for _, tc := range cases {
		t.Run(tc.event, func(t *testing.T) {
			f := newFixture(t)
			session := f.createSession(t)

			err := f.svc.ProcessWebhook(f.ctx(), buildPayload(t, payloadOpts{
				event:     tc.event,
				sessionID: session.ProviderSessionID,
				timestamp: "2026-01-10T13:00:00Z",
			}))
			require.NoError(t, err)

			stored, err := f.sessions.FindByID(f.ctx(), session.ID)
			require.NoError(t, err)
			assert.Equal(t, tc.wantStatus, stored.Status)
		})
	}

	t.Run("failed sets declined outcome with high tier", func(t *testing.T) {
		f := newFixture(t)
		session := f.createSession(t)

		err := f.svc.ProcessWebhook(f.ctx(), buildPayload(t, payloadOpts{
			event:     "verification.failed",
			sessionID: session.ProviderSessionID,
			timestamp: "2026-01-10T13:00:00Z",
		}))
		require.NoError(t, err)

		stored, err := f.sessions.FindByID(f.ctx(), session.ID)
		require.NoError(t, err)
		assert.Equal(t, models.ResultDeclined, stored.VerificationResult)
		assert.Equal(t, models.TierHigh, stored.RiskTier)
		assert.Equal(t, []id.SessionID{session.ID}, f.notifier.declined)
	})
}

func TestProcessWebhook_StatusUpdated(t *testing.T) {
	t.Run("in review keeps the session open without outcome", func(t *testing.T) {
		f := newFixture(t)
		session := f.createSession(t)

		err := f.svc.ProcessWebhook(f.ctx(), buildPayload(t, payloadOpts{
			event:     "status.updated",
			sessionID: session.ProviderSessionID,
			timestamp: "2026-01-10T12:30:00Z",
			status:    "In Review",
		}))
		require.NoError(t, err)

		stored, err := f.sessions.FindByID(f.ctx(), session.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusInProgress, stored.Status)
		assert.Empty(t, stored.VerificationResult)
		assert.Empty(t, stored.RiskTier)
	})

	t.Run("approved status completes the session as approved", func(t *testing.T) {
		f := newFixture(t)
		session := f.createSession(t)

		err := f.svc.ProcessWebhook(f.ctx(), buildPayload(t, payloadOpts{
			event:     "status.updated",
			sessionID: session.ProviderSessionID,
			timestamp: "2026-01-10T12:30:00Z",
			status:    "Approved",
		}))
		require.NoError(t, err)

		stored, err := f.sessions.FindByID(f.ctx(), session.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusCompleted, stored.Status)
		assert.Equal(t, models.ResultApproved, stored.VerificationResult)
		assert.Equal(t, models.TierLow, stored.RiskTier)
		require.NotNil(t, stored.CompletedAt)
		assert.Equal(t, []id.SessionID{session.ID}, f.notifier.completed)
	})

	t.Run("declined statuses complete the session as declined", func(t *testing.T) {
		for _, status := range []string{"Declined", "Rejected"} {
			t.Run(status, func(t *testing.T) {
				f := newFixture(t)
				session := f.createSession(t)

				err := f.svc.ProcessWebhook(f.ctx(), buildPayload(t, payloadOpts{
					event:     "status.updated",
					sessionID: session.ProviderSessionID,
					timestamp: "2026-01-10T12:30:00Z",
					status:    status,
				}))
				require.NoError(t, err)

				stored, err := f.sessions.FindByID(f.ctx(), session.ID)
				require.NoError(t, err)
				assert.Equal(t, models.StatusCompleted, stored.Status)
				assert.Equal(t, models.ResultDeclined, stored.VerificationResult)
				assert.Equal(t, models.TierHigh, stored.RiskTier)
			})
		}
	})

	t.Run("expiry statuses abandon the session", func(t *testing.T) {
		for _, status := range []string{"Expired", "KYC Expired", "Abandoned"} {
			t.Run(status, func(t *testing.T) {
				f := newFixture(t)
				session := f.createSession(t)

				err := f.svc.ProcessWebhook(f.ctx(), buildPayload(t, payloadOpts{
					event:     "status.updated",
					sessionID: session.ProviderSessionID,
					timestamp: "2026-01-10T12:30:00Z",
					status:    status,
				}))
				require.NoError(t, err)

				stored, err := f.sessions.FindByID(f.ctx(), session.ID)
				require.NoError(t, err)
				assert.Equal(t, models.StatusAbandoned, stored.Status)
				assert.Empty(t, stored.VerificationResult)
			})
		}
	})

	t.Run("not started push is a no-op", func(t *testing.T) {
		f := newFixture(t)
		session := f.createSession(t)

		err := f.svc.ProcessWebhook(f.ctx(), buildPayload(t, payloadOpts{
			event:     "status.updated",
			sessionID: session.ProviderSessionID,
			timestamp: "2026-01-10T12:30:00Z",
			status:    "Not Started",
		}))
		require.NoError(t, err)

		stored, err := f.sessions.FindByID(f.ctx(), session.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusNotStarted, stored.Status)
	})
}

func TestProcessWebhook_Idempotency(t *testing.T) {
	f := newFixture(t)
	session := f.createSession(t)

	payload := buildPayload(t, payloadOpts{
		event:     "verification.completed",
		sessionID: session.ProviderSessionID,
		timestamp: "2026-01-10T13:00:00Z",
		data:      cleanData(),
	})
	require.NoError(t, f.svc.ProcessWebhook(f.ctx(), payload))

	// Exact replay is acknowledged without re-processing.
	require.NoError(t, f.svc.ProcessWebhook(f.ctx(), payload))
	assert.Len(t, f.notifier.completed, 1, "replay must not re-notify")

	events, err := f.auditLog.ListBySession(f.ctx(), session.ID)
	require.NoError(t, err)
	var duplicates int
	for _, event := range events {
		if event.Action == audit.ActionWebhookDuplicate {
			duplicates++
		}
	}
	assert.Equal(t, 1, duplicates)

	// Same event type, later timestamp: not a duplicate, hits the terminal guard.
	err = f.svc.ProcessWebhook(f.ctx(), buildPayload(t, payloadOpts{
		event:     "verification.completed",
		sessionID: session.ProviderSessionID,
		timestamp: "2026-01-10T14:00:00Z",
		data:      cleanData(),
	}))
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
}

func TestProcessWebhook_TerminalGuard(t *testing.T) {
	f := newFixture(t)
	session := f.createSession(t)

	require.NoError(t, f.svc.ProcessWebhook(f.ctx(), buildPayload(t, payloadOpts{
		event:     "session.abandoned",
		sessionID: session.ProviderSessionID,
		timestamp: "2026-01-10T13:00:00Z",
	})))

	err := f.svc.ProcessWebhook(f.ctx(), buildPayload(t, payloadOpts{
		event:     "status.updated",
		sessionID: session.ProviderSessionID,
		timestamp: "2026-01-10T13:05:00Z",
		status:    "In Review",
	}))
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))

	events, err := f.auditLog.ListBySession(f.ctx(), session.ID)
	require.NoError(t, err)
	var anomalies int
	for _, event := range events {
		if event.Action == audit.ActionWebhookAnomaly {
			anomalies++
		}
	}
	assert.Equal(t, 1, anomalies)
}

func TestProcessWebhook_Validation(t *testing.T) {
	f := newFixture(t)

	t.Run("unknown event type", func(t *testing.T) {
		err := f.svc.ProcessWebhook(f.ctx(), buildPayload(t, payloadOpts{
			event:     "verification.paused",
			sessionID: "didit-x",
			timestamp: "2026-01-10T13:00:00Z",
		}))
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("missing session id", func(t *testing.T) {
		err := f.svc.ProcessWebhook(f.ctx(), buildPayload(t, payloadOpts{
			event:     "verification.completed",
			timestamp: "2026-01-10T13:00:00Z",
		}))
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("unknown provider session", func(t *testing.T) {
		err := f.svc.ProcessWebhook(f.ctx(), buildPayload(t, payloadOpts{
			event:     "verification.completed",
			sessionID: "didit-unknown",
			timestamp: "2026-01-10T13:00:00Z",
			data:      cleanData(),
		}))
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func TestProcessWebhook_SubjectPropagation(t *testing.T) {
	t.Run("approved outcome marks subject verified", func(t *testing.T) {
		f := newFixture(t)
		subject := &subjectmodels.Subject{
			ID:                 id.SubjectID(uuid.New()),
			FullName:           "Ada Root",
			VerificationStatus: subjectmodels.StatusUnverified,
			CreatedAt:          f.now,
			UpdatedAt:          f.now,
		}
		require.NoError(t, f.subjects.Insert(f.ctx(), subject))

		session := f.createSession(t)
		vendorData := fmt.Sprintf(`{"kyb_subject_id":%q}`, subject.ID.String())

		err := f.svc.ProcessWebhook(f.ctx(), buildPayload(t, payloadOpts{
			event:      "verification.completed",
			sessionID:  session.ProviderSessionID,
			timestamp:  "2026-01-10T13:00:00Z",
			data:       cleanData(),
			vendorData: vendorData,
		}))
		require.NoError(t, err)

		updated, err := f.subjects.FindByID(f.ctx(), subject.ID)
		require.NoError(t, err)
		assert.Equal(t, subjectmodels.StatusVerified, updated.VerificationStatus)
		assert.Equal(t, "low", updated.RiskTier)
		require.NotNil(t, updated.LastSessionID)
		assert.Equal(t, session.ID, *updated.LastSessionID)
	})

	t.Run("declined outcome marks subject declined", func(t *testing.T) {
		f := newFixture(t)
		subject := &subjectmodels.Subject{
			ID:                 id.SubjectID(uuid.New()),
			FullName:           "Ada Root",
			VerificationStatus: subjectmodels.StatusUnverified,
			CreatedAt:          f.now,
			UpdatedAt:          f.now,
		}
		require.NoError(t, f.subjects.Insert(f.ctx(), subject))

		session := f.createSession(t)
		err := f.svc.ProcessWebhook(f.ctx(), buildPayload(t, payloadOpts{
			event:      "verification.failed",
			sessionID:  session.ProviderSessionID,
			timestamp:  "2026-01-10T13:00:00Z",
			vendorData: fmt.Sprintf(`{"kyb_subject_id":%q}`, subject.ID.String()),
		}))
		require.NoError(t, err)

		updated, err := f.subjects.FindByID(f.ctx(), subject.ID)
		require.NoError(t, err)
		assert.Equal(t, subjectmodels.StatusDeclined, updated.VerificationStatus)
	})

	t.Run("abandonment leaves an earlier subject outcome intact", func(t *testing.T) {
		f := newFixture(t)
		subject := &subjectmodels.Subject{
			ID:                 id.SubjectID(uuid.New()),
			FullName:           "Ada Root",
			VerificationStatus: subjectmodels.StatusVerified,
			RiskTier:           "low",
			CreatedAt:          f.now,
			UpdatedAt:          f.now,
		}
		require.NoError(t, f.subjects.Insert(f.ctx(), subject))

		session := f.createSession(t)
		err := f.svc.ProcessWebhook(f.ctx(), buildPayload(t, payloadOpts{
			event:      "session.abandoned",
			sessionID:  session.ProviderSessionID,
			timestamp:  "2026-01-10T13:00:00Z",
			vendorData: fmt.Sprintf(`{"kyb_subject_id":%q}`, subject.ID.String()),
		}))
		require.NoError(t, err)

		updated, err := f.subjects.FindByID(f.ctx(), subject.ID)
		require.NoError(t, err)
		assert.Equal(t, subjectmodels.StatusVerified, updated.VerificationStatus)
		assert.Equal(t, "low", updated.RiskTier)
	})

	t.Run("unknown subject never fails the webhook", func(t *testing.T) {
		f := newFixture(t)
		session := f.createSession(t)

		err := f.svc.ProcessWebhook(f.ctx(), buildPayload(t, payloadOpts{
			event:      "verification.completed",
			sessionID:  session.ProviderSessionID,
			timestamp:  "2026-01-10T13:00:00Z",
			data:       cleanData(),
			vendorData: fmt.Sprintf(`{"kyb_subject_id":%q}`, uuid.NewString()),
		}))
		require.NoError(t, err)
	})

	t.Run("unreadable vendor data never fails the webhook", func(t *testing.T) {
		f := newFixture(t)
		session := f.createSession(t)

		err := f.svc.ProcessWebhook(f.ctx(), buildPayload(t, payloadOpts{
			event:      "verification.completed",
			sessionID:  session.ProviderSessionID,
			timestamp:  "2026-01-10T13:00:00Z",
			data:       cleanData(),
			vendorData: "order-ref-1234",
		}))
		require.NoError(t, err)
	})
}
