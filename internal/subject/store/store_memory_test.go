package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veriflow/internal/subject/models"
	id "veriflow/pkg/domain"
	"veriflow/pkg/platform/sentinel"
)

func TestInMemoryStore(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

	newSubject := func(name string) *models.Subject {
		return &models.Subject{
			ID:                 id.SubjectID(uuid.New()),
			FullName:           name,
			Role:               "director",
			VerificationStatus: models.StatusUnverified,
			CreatedAt:          now,
			UpdatedAt:          now,
		}
	}

	t.Run("insert and find", func(t *testing.T) {
		store := NewInMemory()
		subject := newSubject("Ada Root")
		require.NoError(t, store.Insert(ctx, subject))

		found, err := store.FindByID(ctx, subject.ID)
		require.NoError(t, err)
		assert.Equal(t, "Ada Root", found.FullName)
		assert.Equal(t, models.StatusUnverified, found.VerificationStatus)
	})

	t.Run("duplicate insert conflicts", func(t *testing.T) {
		store := NewInMemory()
		subject := newSubject("Ada Root")
		require.NoError(t, store.Insert(ctx, subject))
		assert.ErrorIs(t, store.Insert(ctx, subject), sentinel.ErrConflict)
	})

	t.Run("apply outcome marks subject verified", func(t *testing.T) {
		store := NewInMemory()
		subject := newSubject("Ada Root")
		require.NoError(t, store.Insert(ctx, subject))

		sessionID := id.NewSessionID()
		err := store.ApplyOutcome(ctx, subject.ID, models.Outcome{
			Status:    models.StatusVerified,
			RiskTier:  "low",
			SessionID: sessionID,
			At:        now.Add(time.Hour),
		})
		require.NoError(t, err)

		found, err := store.FindByID(ctx, subject.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusVerified, found.VerificationStatus)
		assert.Equal(t, "low", found.RiskTier)
		require.NotNil(t, found.LastSessionID)
		assert.Equal(t, sessionID, *found.LastSessionID)
		require.NotNil(t, found.VerifiedAt)
	})

	t.Run("apply outcome for unknown subject", func(t *testing.T) {
		store := NewInMemory()
		err := store.ApplyOutcome(ctx, id.SubjectID(uuid.New()), models.Outcome{
			Status: models.StatusDeclined,
			At:     now,
		})
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})
}
