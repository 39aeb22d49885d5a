package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/physioconnect/consult/backend/internal/model/consultation"
	"github.com/physioconnect/consult/backend/internal/model/contact"
)

//go:embed schema.sql
var schemaSQL string

// PostgresStore keeps sessions, messages and contact submissions in
// PostgreSQL. Messages and submissions are listed by insertion sequence,
// not by timestamp, so equal timestamps keep append order.
type PostgresStore struct {
	db  *sql.DB
	log logrus.FieldLogger
}

// OpenPostgres connects with lib/pq, verifies the connection and creates
// the tables when missing.
func OpenPostgres(ctx context.Context, dsn string, log logrus.FieldLogger) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrateCtx, cancelMigrate := context.WithTimeout(ctx, 30*time.Second)
	defer cancelMigrate()
	if _, err := db.ExecContext(migrateCtx, schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	log = log.WithField("component", "postgres")
	log.Info("connected to postgres, schema verified")
	return &PostgresStore{db: db, log: log}, nil
}

func (s *PostgresStore) SaveSession(ctx context.Context, session consultation.Session) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, session_id, doctor_name, patient_name, is_active, created_at, ended_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (session_id) DO UPDATE SET
			doctor_name  = EXCLUDED.doctor_name,
			patient_name = EXCLUDED.patient_name,
			is_active    = EXCLUDED.is_active,
			ended_at     = EXCLUDED.ended_at`,
		session.ID, session.SessionID, session.DoctorName, nullString(session.PatientName),
		session.IsActive, session.CreatedAt, nullTime(session.EndedAt),
	)
	if err != nil {
		return fmt.Errorf("save session %s: %w", session.SessionID, err)
	}
	return nil
}

func (s *PostgresStore) GetSession(ctx context.Context, sessionID string) (consultation.Session, error) {
	var (
		session     consultation.Session
		patientName sql.NullString
		endedAt     sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, doctor_name, patient_name, is_active, created_at, ended_at
		FROM sessions WHERE session_id = $1`, sessionID,
	).Scan(&session.ID, &session.SessionID, &session.DoctorName, &patientName,
		&session.IsActive, &session.CreatedAt, &endedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return consultation.Session{}, ErrNotFound
	}
	if err != nil {
		return consultation.Session{}, fmt.Errorf("get session %s: %w", sessionID, err)
	}

	if patientName.Valid {
		session.PatientName = &patientName.String
	}
	if endedAt.Valid {
		session.EndedAt = &endedAt.Time
	}
	return session, nil
}

func (s *PostgresStore) AppendMessage(ctx context.Context, message consultation.Message) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, session_id, sender_name, sender_type, message, "timestamp")
		VALUES ($1, $2, $3, $4, $5, $6)`,
		message.ID, message.SessionID, message.SenderName, string(message.SenderType),
		message.Message, message.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("append message to %s: %w", message.SessionID, err)
	}
	return nil
}

func (s *PostgresStore) ListMessages(ctx context.Context, sessionID string) ([]consultation.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, sender_name, sender_type, message, "timestamp"
		FROM messages WHERE session_id = $1 ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list messages %s: %w", sessionID, err)
	}
	defer rows.Close()

	messages := make([]consultation.Message, 0)
	for rows.Next() {
		var (
			message    consultation.Message
			senderType string
		)
		if err := rows.Scan(&message.ID, &message.SessionID, &message.SenderName,
			&senderType, &message.Message, &message.Timestamp); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		message.SenderType = consultation.SenderRole(senderType)
		messages = append(messages, message)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list messages %s: %w", sessionID, err)
	}
	return messages, nil
}

func (s *PostgresStore) SaveContact(ctx context.Context, submission contact.Submission) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO contact_submissions (id, name, email, phone, message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		submission.ID, submission.Name, submission.Email, nullString(submission.Phone),
		submission.Message, submission.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save contact: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListContacts(ctx context.Context) ([]contact.Submission, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, email, phone, message, created_at
		FROM contact_submissions ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	defer rows.Close()

	submissions := make([]contact.Submission, 0)
	for rows.Next() {
		var (
			submission contact.Submission
			phone      sql.NullString
		)
		if err := rows.Scan(&submission.ID, &submission.Name, &submission.Email,
			&phone, &submission.Message, &submission.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan contact: %w", err)
		}
		if phone.Valid {
			submission.Phone = &phone.String
		}
		submissions = append(submissions, submission)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	return submissions, nil
}

func (s *PostgresStore) Close() error {
	s.log.Info("closing postgres")
	return s.db.Close()
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

func nullTime(v *time.Time) sql.NullTime {
	if v == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *v, Valid: true}
}
