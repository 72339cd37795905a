package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "veriflow/pkg/domain-errors"
)

func TestParseEventType(t *testing.T) {
	valid := []string{
		"verification.completed",
		"verification.failed",
		"session.abandoned",
		"session.expired",
		"status.updated",
	}
	for _, name := range valid {
		t.Run(name, func(t *testing.T) {
			et, err := ParseEventType(name)
			require.NoError(t, err)
			assert.Equal(t, EventType(name), et)
		})
	}

	t.Run("empty", func(t *testing.T) {
		_, err := ParseEventType("")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := ParseEventType("verification.paused")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func TestParseWebhookPayload(t *testing.T) {
	t.Run("retains raw bytes verbatim", func(t *testing.T) {
		raw := []byte(`{"event":"verification.completed","sessionId":"sess-1","timestamp":"t1"}`)
		p, err := ParseWebhookPayload(raw)
		require.NoError(t, err)
		assert.Equal(t, raw, []byte(p.Raw()))
	})

	t.Run("rejects malformed JSON", func(t *testing.T) {
		_, err := ParseWebhookPayload([]byte(`{"event":`))
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("normalizes event field aliases", func(t *testing.T) {
		p, err := ParseWebhookPayload([]byte(`{"webhook_type":"session.expired","session_id":"sess-2","timestamp":"t2"}`))
		require.NoError(t, err)
		assert.Equal(t, "session.expired", p.EventName())
		assert.Equal(t, "sess-2", p.ProviderSessionID())

		et, err := p.EventType()
		require.NoError(t, err)
		assert.Equal(t, EventSessionExpired, et)
	})

	t.Run("sessionId wins over session_id", func(t *testing.T) {
		p, err := ParseWebhookPayload([]byte(`{"event":"status.updated","sessionId":"a","session_id":"b","timestamp":"t"}`))
		require.NoError(t, err)
		assert.Equal(t, "a", p.ProviderSessionID())
	})
}

func TestNormalizedStatus(t *testing.T) {
	cases := map[string]string{
		"In Review":   "in_review",
		"APPROVED":    "approved",
		"kyc expired": "kyc_expired",
		"":            "",
	}
	for in, want := range cases {
		p := &WebhookPayload{Status: in}
		assert.Equal(t, want, p.NormalizedStatus())
	}
}

func TestSubjectRef(t *testing.T) {
	t.Run("empty vendor_data", func(t *testing.T) {
		p := &WebhookPayload{}
		ref, err := p.SubjectRef()
		require.NoError(t, err)
		assert.Nil(t, ref)
	})

	t.Run("valid subject reference", func(t *testing.T) {
		p := &WebhookPayload{VendorData: `{"kyb_subject_id":"f3b5c8f2-0000-4000-8000-000000000001"}`}
		ref, err := p.SubjectRef()
		require.NoError(t, err)
		require.NotNil(t, ref)
		assert.Equal(t, "f3b5c8f2-0000-4000-8000-000000000001", ref.KYBSubjectID)
	})

	t.Run("JSON without subject id", func(t *testing.T) {
		p := &WebhookPayload{VendorData: `{"campaign":"q3"}`}
		ref, err := p.SubjectRef()
		require.NoError(t, err)
		assert.Nil(t, ref)
	})

	t.Run("undecodable vendor_data errors without aborting callers", func(t *testing.T) {
		p := &WebhookPayload{VendorData: `not-json`}
		ref, err := p.SubjectRef()
		require.Error(t, err)
		assert.Nil(t, ref)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})
}
