package sweeper

//go:generate mockgen -source=sweeper.go -destination=mocks/mocks.go -package=mocks SessionStore,AuditPublisher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"veriflow/internal/verification/models"
	"veriflow/internal/verification/sweeper/mocks"
	id "veriflow/pkg/domain"
)

// Failure paths need a store that errors on demand, which the in-memory
// store cannot do.
func TestSweepAtErrors(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	maxAge := 7 * 24 * time.Hour

	staleSession := func(t *testing.T) *models.Session {
		t.Helper()
		session, err := models.NewSession(
			id.NewSessionID(),
			"didit-"+uuid.NewString(),
			id.RequestID(uuid.New()),
			models.FlowLightConsumer,
			models.SubjectConsumer,
			now.Add(-maxAge-time.Hour),
		)
		require.NoError(t, err)
		return session
	}

	t.Run("list failure aborts the sweep", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		store := mocks.NewMockSessionStore(ctrl)
		store.EXPECT().
			ListInProgressBefore(gomock.Any(), now.Add(-maxAge)).
			Return(nil, errors.New("connection reset"))

		s := New(store, maxAge, time.Hour)
		err := s.SweepAt(ctx, now)
		assert.ErrorContains(t, err, "connection reset")
	})

	t.Run("update failure skips the session and keeps sweeping", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		store := mocks.NewMockSessionStore(ctrl)
		broken := staleSession(t)
		healthy := staleSession(t)

		store.EXPECT().
			ListInProgressBefore(gomock.Any(), gomock.Any()).
			Return([]*models.Session{broken, healthy}, nil)
		store.EXPECT().
			Update(gomock.Any(), broken).
			Return(errors.New("write timeout"))
		store.EXPECT().
			Update(gomock.Any(), healthy).
			Return(nil)

		audit := mocks.NewMockAuditPublisher(ctrl)
		audit.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(nil).Times(1)

		s := New(store, maxAge, time.Hour, WithAuditPublisher(audit))
		require.NoError(t, s.SweepAt(ctx, now))
		assert.Equal(t, models.StatusAbandoned, healthy.Status)
	})
}
