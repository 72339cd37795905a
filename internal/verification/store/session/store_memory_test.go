package session

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"veriflow/internal/verification/models"
	id "veriflow/pkg/domain"
	"veriflow/pkg/platform/sentinel"
)

type SessionStoreSuite struct {
	suite.Suite
	store *InMemoryStore
	ctx   context.Context
	now   time.Time
}

func (s *SessionStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
	s.now = time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
}

func TestSessionStoreSuite(t *testing.T) {
	suite.Run(t, new(SessionStoreSuite))
}

func (s *SessionStoreSuite) newSession(providerSessionID string) *models.Session {
	session, err := models.NewSession(
		id.NewSessionID(),
		providerSessionID,
		id.RequestID(uuid.New()),
		models.FlowFullBusiness,
		models.SubjectBusiness,
		s.now,
	)
	s.Require().NoError(err)
	return session
}

func (s *SessionStoreSuite) TestInsertAndLookups() {
	s.Run("inserts and finds by id", func() {
		session := s.newSession("didit-100")
		s.Require().NoError(s.store.Insert(s.ctx, session))

		found, err := s.store.FindByID(s.ctx, session.ID)
		s.Require().NoError(err)
		s.Equal("didit-100", found.ProviderSessionID)
		s.Equal(models.StatusNotStarted, found.Status)
	})

	s.Run("finds by provider session id", func() {
		session := s.newSession("didit-101")
		s.Require().NoError(s.store.Insert(s.ctx, session))

		found, err := s.store.FindByProviderSessionID(s.ctx, "didit-101")
		s.Require().NoError(err)
		s.Equal(session.ID, found.ID)
	})

	s.Run("returns ErrNotFound for unknown id", func() {
		_, err := s.store.FindByID(s.ctx, id.NewSessionID())
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("returns ErrNotFound for unknown provider id", func() {
		_, err := s.store.FindByProviderSessionID(s.ctx, "didit-missing")
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *SessionStoreSuite) TestUniqueness() {
	s.Run("rejects duplicate session id", func() {
		session := s.newSession("didit-200")
		s.Require().NoError(s.store.Insert(s.ctx, session))

		dup := *session
		dup.ProviderSessionID = "didit-201"
		s.ErrorIs(s.store.Insert(s.ctx, &dup), sentinel.ErrConflict)
	})

	s.Run("rejects duplicate provider session id", func() {
		session := s.newSession("didit-202")
		s.Require().NoError(s.store.Insert(s.ctx, session))

		dup := s.newSession("didit-202")
		s.ErrorIs(s.store.Insert(s.ctx, dup), sentinel.ErrConflict)
	})
}

func (s *SessionStoreSuite) TestUpdate() {
	s.Run("persists status changes", func() {
		session := s.newSession("didit-300")
		s.Require().NoError(s.store.Insert(s.ctx, session))

		s.Require().NoError(session.ApplyProgress(nil, s.now.Add(time.Minute)))
		s.Require().NoError(s.store.Update(s.ctx, session))

		found, err := s.store.FindByID(s.ctx, session.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusInProgress, found.Status)
	})

	s.Run("rejects update for unknown session", func() {
		session := s.newSession("didit-301")
		s.ErrorIs(s.store.Update(s.ctx, session), sentinel.ErrNotFound)
	})

	s.Run("stored state is isolated from caller mutation", func() {
		session := s.newSession("didit-302")
		s.Require().NoError(s.store.Insert(s.ctx, session))

		session.Status = models.StatusCompleted

		found, err := s.store.FindByID(s.ctx, session.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusNotStarted, found.Status)
	})
}

func (s *SessionStoreSuite) TestFindLatestByRequestID() {
	requestID := id.RequestID(uuid.New())

	first := s.newSession("didit-400")
	first.RequestID = requestID
	s.Require().NoError(s.store.Insert(s.ctx, first))

	second := s.newSession("didit-401")
	second.RequestID = requestID
	second.CreatedAt = s.now.Add(time.Hour)
	s.Require().NoError(s.store.Insert(s.ctx, second))

	found, err := s.store.FindLatestByRequestID(s.ctx, requestID)
	s.Require().NoError(err)
	s.Equal(second.ID, found.ID)

	_, err = s.store.FindLatestByRequestID(s.ctx, id.RequestID(uuid.New()))
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *SessionStoreSuite) TestListPendingReview() {
	pending := s.newSession("didit-500")
	s.Require().NoError(s.store.Insert(s.ctx, pending))
	s.Require().NoError(pending.ApplyProgress(nil, s.now))
	s.Require().NoError(pending.ApplyCompletion(
		models.ResultPendingReview, models.TierMedium, nil, nil, s.now.Add(time.Minute)))
	s.Require().NoError(s.store.Update(s.ctx, pending))

	approved := s.newSession("didit-501")
	s.Require().NoError(s.store.Insert(s.ctx, approved))
	s.Require().NoError(approved.ApplyProgress(nil, s.now))
	s.Require().NoError(approved.ApplyCompletion(
		models.ResultApproved, models.TierLow, nil, nil, s.now.Add(time.Minute)))
	s.Require().NoError(s.store.Update(s.ctx, approved))

	open := s.newSession("didit-502")
	s.Require().NoError(s.store.Insert(s.ctx, open))

	out, err := s.store.ListPendingReview(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(out, 1)
	s.Equal(pending.ID, out[0].ID)
}

func (s *SessionStoreSuite) TestListInProgressBefore() {
	stale := s.newSession("didit-600")
	stale.CreatedAt = s.now.Add(-8 * 24 * time.Hour)
	s.Require().NoError(s.store.Insert(s.ctx, stale))

	fresh := s.newSession("didit-601")
	s.Require().NoError(s.store.Insert(s.ctx, fresh))

	terminal := s.newSession("didit-602")
	terminal.CreatedAt = s.now.Add(-8 * 24 * time.Hour)
	s.Require().NoError(s.store.Insert(s.ctx, terminal))
	s.Require().NoError(terminal.ApplyAbandoned(nil, s.now))
	s.Require().NoError(s.store.Update(s.ctx, terminal))

	out, err := s.store.ListInProgressBefore(s.ctx, s.now.Add(-7*24*time.Hour))
	s.Require().NoError(err)
	s.Require().Len(out, 1)
	s.Equal(stale.ID, out[0].ID)
}
