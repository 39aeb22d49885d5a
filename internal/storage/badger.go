package storage

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"github.com/physioconnect/consult/backend/internal/model/consultation"
	"github.com/physioconnect/consult/backend/internal/model/contact"
)

// BadgerStore persists records as JSON values in BadgerDB.
//
// Keys:
//
//	session:{hex(sessionId)}
//	msg:{hex(sessionId)}:{unix nanos, 19 digits}:{message id}
//	contact:{unix nanos, 19 digits}:{submission id}
//
// Session ids are hex encoded so an id containing ':' cannot bleed into the
// prefix of another session. Zero padding keeps lexicographic order equal to
// chronological order for prefix scans.
type BadgerStore struct {
	db  *badger.DB
	log logrus.FieldLogger
}

// OpenBadger opens (or creates) a BadgerDB at path.
func OpenBadger(path string, log *logrus.Logger) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).
		WithLogger(log).
		WithLoggingLevel(badger.WARNING)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %s: %w", path, err)
	}
	return &BadgerStore{db: db, log: log.WithField("component", "badger")}, nil
}

func sessionKey(sessionID string) []byte {
	return []byte("session:" + hex.EncodeToString([]byte(sessionID)))
}

func messagePrefix(sessionID string) []byte {
	return []byte("msg:" + hex.EncodeToString([]byte(sessionID)) + ":")
}

func messageKey(message consultation.Message) []byte {
	return append(messagePrefix(message.SessionID),
		fmt.Sprintf("%019d:%s", message.Timestamp.UnixNano(), message.ID)...)
}

var contactPrefix = []byte("contact:")

func contactKey(submission contact.Submission) []byte {
	return append(append([]byte{}, contactPrefix...),
		fmt.Sprintf("%019d:%s", submission.CreatedAt.UnixNano(), submission.ID)...)
}

func (s *BadgerStore) put(key []byte, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	})
}

func (s *BadgerStore) SaveSession(_ context.Context, session consultation.Session) error {
	return s.put(sessionKey(session.SessionID), session)
}

func (s *BadgerStore) GetSession(_ context.Context, sessionID string) (consultation.Session, error) {
	var session consultation.Session
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(sessionKey(sessionID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &session)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return consultation.Session{}, ErrNotFound
	}
	if err != nil {
		return consultation.Session{}, fmt.Errorf("get session %s: %w", sessionID, err)
	}
	return session, nil
}

func (s *BadgerStore) AppendMessage(_ context.Context, message consultation.Message) error {
	return s.put(messageKey(message), message)
}

func (s *BadgerStore) ListMessages(_ context.Context, sessionID string) ([]consultation.Message, error) {
	messages := make([]consultation.Message, 0)
	err := scanPrefix(s.db, messagePrefix(sessionID), func(val []byte) error {
		var message consultation.Message
		if err := json.Unmarshal(val, &message); err != nil {
			return err
		}
		messages = append(messages, message)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list messages %s: %w", sessionID, err)
	}
	return messages, nil
}

func (s *BadgerStore) SaveContact(_ context.Context, submission contact.Submission) error {
	return s.put(contactKey(submission), submission)
}

func (s *BadgerStore) ListContacts(_ context.Context) ([]contact.Submission, error) {
	submissions := make([]contact.Submission, 0)
	err := scanPrefix(s.db, contactPrefix, func(val []byte) error {
		var submission contact.Submission
		if err := json.Unmarshal(val, &submission); err != nil {
			return err
		}
		submissions = append(submissions, submission)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	return submissions, nil
}

func (s *BadgerStore) Close() error {
	s.log.Info("closing badger")
	return s.db.Close()
}

// scanPrefix visits every value under prefix in key order.
func scanPrefix(db *badger.DB, prefix []byte, visit func(val []byte) error) error {
	return db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := it.Item().Value(visit); err != nil {
				return err
			}
		}
		return nil
	})
}
