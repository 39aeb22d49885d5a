// Package storage persists consultation sessions, chat transcripts and
// contact submissions.
package storage

import (
	"context"
	"errors"

	"github.com/physioconnect/consult/backend/internal/model/consultation"
	"github.com/physioconnect/consult/backend/internal/model/contact"
)

var ErrNotFound = errors.New("record not found")

// Store is implemented by MemoryStore, BadgerStore and PostgresStore.
type Store interface {
	// SaveSession inserts or replaces a session keyed by its SessionID.
	SaveSession(ctx context.Context, session consultation.Session) error
	// GetSession returns ErrNotFound for unknown ids.
	GetSession(ctx context.Context, sessionID string) (consultation.Session, error)

	AppendMessage(ctx context.Context, message consultation.Message) error
	// ListMessages returns messages in append order; never nil.
	ListMessages(ctx context.Context, sessionID string) ([]consultation.Message, error)

	SaveContact(ctx context.Context, submission contact.Submission) error
	ListContacts(ctx context.Context) ([]contact.Submission, error)

	Close() error
}
