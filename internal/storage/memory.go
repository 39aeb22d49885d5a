package storage

import (
	"context"
	"sync"

	"github.com/physioconnect/consult/backend/internal/model/consultation"
	"github.com/physioconnect/consult/backend/internal/model/contact"
)

// MemoryStore keeps everything in process memory; contents are lost on restart.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]consultation.Session
	messages map[string][]consultation.Message
	contacts []contact.Submission
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]consultation.Session),
		messages: make(map[string][]consultation.Message),
	}
}

func (s *MemoryStore) SaveSession(_ context.Context, session consultation.Session) error {
	s.mu.Lock()
	s.sessions[session.SessionID] = session
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) GetSession(_ context.Context, sessionID string) (consultation.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return consultation.Session{}, ErrNotFound
	}
	return session, nil
}

func (s *MemoryStore) AppendMessage(_ context.Context, message consultation.Message) error {
	s.mu.Lock()
	s.messages[message.SessionID] = append(s.messages[message.SessionID], message)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) ListMessages(_ context.Context, sessionID string) ([]consultation.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	messages := s.messages[sessionID]
	copied := make([]consultation.Message, len(messages))
	copy(copied, messages)
	return copied, nil
}

func (s *MemoryStore) SaveContact(_ context.Context, submission contact.Submission) error {
	s.mu.Lock()
	s.contacts = append(s.contacts, submission)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) ListContacts(_ context.Context) ([]contact.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	copied := make([]contact.Submission, len(s.contacts))
	copy(copied, s.contacts)
	return copied, nil
}

func (s *MemoryStore) Close() error { return nil }
