package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"veriflow/internal/verification/models"
	id "veriflow/pkg/domain"
	"veriflow/pkg/platform/sentinel"
)

// InMemoryStore keeps sessions in process memory. Suitable for tests and
// single-instance development runs.
type InMemoryStore struct {
	mu         sync.RWMutex
	sessions   map[id.SessionID]*models.Session
	byProvider map[string]id.SessionID
}

// NewInMemory constructs an empty in-memory session store.
func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		sessions:   make(map[id.SessionID]*models.Session),
		byProvider: make(map[string]id.SessionID),
	}
}

func (s *InMemoryStore) Insert(_ context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[session.ID]; exists {
		return sentinel.ErrConflict
	}
	if _, exists := s.byProvider[session.ProviderSessionID]; exists {
		return sentinel.ErrConflict
	}
	s.sessions[session.ID] = clone(session)
	s.byProvider[session.ProviderSessionID] = session.ID
	return nil
}

func (s *InMemoryStore) Update(_ context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[session.ID]; !exists {
		return sentinel.ErrNotFound
	}
	s.sessions[session.ID] = clone(session)
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, sessionID id.SessionID) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, exists := s.sessions[sessionID]
	if !exists {
		return nil, sentinel.ErrNotFound
	}
	return clone(session), nil
}

func (s *InMemoryStore) FindByProviderSessionID(_ context.Context, providerSessionID string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sessionID, exists := s.byProvider[providerSessionID]
	if !exists {
		return nil, sentinel.ErrNotFound
	}
	return clone(s.sessions[sessionID]), nil
}

func (s *InMemoryStore) FindLatestByRequestID(_ context.Context, requestID id.RequestID) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *models.Session
	for _, session := range s.sessions {
		if session.RequestID != requestID {
			continue
		}
		if latest == nil || session.CreatedAt.After(latest.CreatedAt) {
			latest = session
		}
	}
	if latest == nil {
		return nil, sentinel.ErrNotFound
	}
	return clone(latest), nil
}

func (s *InMemoryStore) ListPendingReview(_ context.Context) ([]*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Session
	for _, session := range s.sessions {
		if session.Status == models.StatusCompleted && session.VerificationResult == models.ResultPendingReview {
			out = append(out, clone(session))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *InMemoryStore) ListInProgressBefore(_ context.Context, cutoff time.Time) ([]*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Session
	for _, session := range s.sessions {
		if session.Status.IsTerminal() {
			continue
		}
		if session.CreatedAt.Before(cutoff) {
			out = append(out, clone(session))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// clone shields stored state from caller mutation.
func clone(session *models.Session) *models.Session {
	copied := *session
	if session.ExtractedData != nil {
		data := *session.ExtractedData
		copied.ExtractedData = &data
	}
	if len(session.RawWebhookPayload) > 0 {
		copied.RawWebhookPayload = append([]byte(nil), session.RawWebhookPayload...)
	}
	return &copied
}
