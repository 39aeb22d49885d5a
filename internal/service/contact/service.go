package contact

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/physioconnect/consult/backend/internal/model/contact"
	"github.com/physioconnect/consult/backend/internal/storage"
	"github.com/physioconnect/consult/backend/internal/validation"
)

// InvalidError carries every field that failed validation.
type InvalidError struct {
	Fields []validation.FieldError
}

func (e *InvalidError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+" "+f.Reason)
	}
	return "invalid contact submission: " + strings.Join(parts, "; ")
}

// SubmitInput mirrors the landing page contact form.
type SubmitInput struct {
	Name    string `json:"name" validate:"required,min=2,max=100"`
	Email   string `json:"email" validate:"required,email"`
	Phone   string `json:"phone" validate:"omitempty,max=32"`
	Message string `json:"message" validate:"required,min=10,max=5000"`
}

// Service records contact-form submissions for the practice.
type Service struct {
	store    storage.Store
	validate *validator.Validate
	log      logrus.FieldLogger
}

func NewService(store storage.Store, log logrus.FieldLogger) *Service {
	return &Service{
		store:    store,
		validate: validation.New(),
		log:      log.WithField("component", "contact"),
	}
}

// Submit validates and stores a submission.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (contact.Submission, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	in.Phone = strings.TrimSpace(in.Phone)
	in.Message = strings.TrimSpace(in.Message)

	if err := s.validate.Struct(in); err != nil {
		if fields, ok := validation.Fields(err); ok {
			return contact.Submission{}, &InvalidError{Fields: fields}
		}
		return contact.Submission{}, err
	}

	var phone *string
	if in.Phone != "" {
		phone = &in.Phone
	}

	submission := contact.Submission{
		ID:        uuid.NewString(),
		Name:      in.Name,
		Email:     in.Email,
		Phone:     phone,
		Message:   in.Message,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.SaveContact(ctx, submission); err != nil {
		return contact.Submission{}, fmt.Errorf("save contact: %w", err)
	}

	s.log.WithFields(logrus.Fields{"id": submission.ID, "email": submission.Email}).Info("new contact submission")
	return submission, nil
}

// List returns all submissions, oldest first.
func (s *Service) List(ctx context.Context) ([]contact.Submission, error) {
	submissions, err := s.store.ListContacts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	return submissions, nil
}
