package consultation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/physioconnect/consult/backend/internal/model/consultation"
	"github.com/physioconnect/consult/backend/internal/storage"
	"github.com/physioconnect/consult/backend/internal/validation"
)

// Service is the session registry and chat message log.
type Service struct {
	store    storage.Store
	validate *validator.Validate
	now      func() time.Time

	// mu serialises registry writes and message stamping so that stored
	// order and timestamp order agree within a session.
	mu        sync.Mutex
	lastStamp map[string]time.Time
}

// NewService wires the registry and log to a store.
func NewService(store storage.Store) *Service {
	return &Service{
		store:     store,
		validate:  validation.New(),
		now:       func() time.Time { return time.Now().UTC() },
		lastStamp: make(map[string]time.Time),
	}
}

// CreateSessionInput is the payload accepted by CreateSession.
type CreateSessionInput struct {
	SessionID   string
	DoctorName  string
	PatientName string
}

// CreateSession registers a new active session. A blank SessionID gets a
// generated one.
func (s *Service) CreateSession(ctx context.Context, in CreateSessionInput) (consultation.Session, error) {
	doctor := strings.TrimSpace(in.DoctorName)
	if doctor == "" {
		return consultation.Session{}, &ValidationError{Field: "doctorName", Reason: "is required"}
	}

	sessionID := strings.TrimSpace(in.SessionID)
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	var patient *string
	if name := strings.TrimSpace(in.PatientName); name != "" {
		patient = &name
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.store.GetSession(ctx, sessionID); err == nil {
		return consultation.Session{}, fmt.Errorf("%w: %s", ErrSessionExists, sessionID)
	} else if !errors.Is(err, storage.ErrNotFound) {
		return consultation.Session{}, err
	}

	session := consultation.Session{
		ID:          uuid.NewString(),
		SessionID:   sessionID,
		DoctorName:  doctor,
		PatientName: patient,
		IsActive:    true,
		CreatedAt:   s.now(),
	}
	if err := s.store.SaveSession(ctx, session); err != nil {
		return consultation.Session{}, fmt.Errorf("save session: %w", err)
	}
	return session, nil
}

// GetSession retrieves a session by its session identifier.
func (s *Service) GetSession(ctx context.Context, sessionID string) (consultation.Session, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if errors.Is(err, storage.ErrNotFound) {
		return consultation.Session{}, ErrSessionNotFound
	}
	if err != nil {
		return consultation.Session{}, err
	}
	return session, nil
}

// EndSession marks a session inactive. Unknown and already ended sessions
// are left untouched and do not produce an error.
func (s *Service) EndSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.store.GetSession(ctx, sessionID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !session.IsActive {
		return nil
	}

	ended := s.now()
	session.IsActive = false
	session.EndedAt = &ended
	if err := s.store.SaveSession(ctx, session); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// AppendMessageInput is a chat line before it is stamped and stored.
type AppendMessageInput struct {
	SessionID  string `json:"sessionId" validate:"required"`
	SenderName string `json:"senderName" validate:"required"`
	SenderType string `json:"senderType" validate:"required,oneof=doctor patient"`
	Message    string `json:"message" validate:"required"`
}

// AppendMessage validates, stamps and stores a chat message. The session id
// is not checked against the registry.
func (s *Service) AppendMessage(ctx context.Context, in AppendMessageInput) (consultation.Message, error) {
	body := in.Message
	in.SessionID = strings.TrimSpace(in.SessionID)
	in.SenderName = strings.TrimSpace(in.SenderName)
	in.SenderType = strings.TrimSpace(in.SenderType)
	in.Message = strings.TrimSpace(in.Message)
	if err := s.validate.Struct(in); err != nil {
		return consultation.Message{}, fromValidator(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	message := consultation.Message{
		ID:         uuid.NewString(),
		SessionID:  in.SessionID,
		SenderName: in.SenderName,
		SenderType: consultation.SenderRole(in.SenderType),
		Message:    body,
		Timestamp:  s.stamp(in.SessionID),
	}
	if err := s.store.AppendMessage(ctx, message); err != nil {
		return consultation.Message{}, fmt.Errorf("append message: %w", err)
	}
	s.lastStamp[in.SessionID] = message.Timestamp
	return message, nil
}

// stamp returns a timestamp strictly after the previous one in the session.
// Caller holds s.mu.
func (s *Service) stamp(sessionID string) time.Time {
	at := s.now()
	if last, ok := s.lastStamp[sessionID]; ok && !at.After(last) {
		at = last.Add(time.Nanosecond)
	}
	return at
}

// ListMessages returns the transcript of a session in chronological order.
func (s *Service) ListMessages(ctx context.Context, sessionID string) ([]consultation.Message, error) {
	messages, err := s.store.ListMessages(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	if messages == nil {
		messages = []consultation.Message{}
	}
	return messages, nil
}
