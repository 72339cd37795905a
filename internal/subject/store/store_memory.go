package store

import (
	"context"
	"sync"

	"veriflow/internal/subject/models"
	id "veriflow/pkg/domain"
	"veriflow/pkg/platform/sentinel"
)

// InMemoryStore keeps subjects in process memory.
type InMemoryStore struct {
	mu       sync.RWMutex
	subjects map[id.SubjectID]*models.Subject
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{subjects: make(map[id.SubjectID]*models.Subject)}
}

func (s *InMemoryStore) Insert(_ context.Context, subject *models.Subject) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.subjects[subject.ID]; exists {
		return sentinel.ErrConflict
	}
	copied := *subject
	s.subjects[subject.ID] = &copied
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, subjectID id.SubjectID) (*models.Subject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	subject, exists := s.subjects[subjectID]
	if !exists {
		return nil, sentinel.ErrNotFound
	}
	copied := *subject
	return &copied, nil
}

func (s *InMemoryStore) ApplyOutcome(_ context.Context, subjectID id.SubjectID, outcome models.Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	subject, exists := s.subjects[subjectID]
	if !exists {
		return sentinel.ErrNotFound
	}
	subject.Apply(outcome)
	return nil
}
