package contact_test

import (
	"context"
	"errors"
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"

	"github.com/physioconnect/consult/backend/internal/logger"
	"github.com/physioconnect/consult/backend/internal/service/contact"
	"github.com/physioconnect/consult/backend/internal/storage"
	"github.com/physioconnect/consult/backend/internal/validation"
)

func TestSubmitStoresValidSubmission(t *testing.T) {
	req := require.New(t)
	svc := contact.NewService(storage.NewMemoryStore(), logger.Discard())
	ctx := context.Background()

	got, err := svc.Submit(ctx, contact.SubmitInput{
		Name:    " Alice ",
		Email:   "alice@example.com",
		Message: "I would like to book a shoulder assessment.",
	})
	req.NoError(err)
	req.NotEmpty(got.ID)
	req.Equal("Alice", got.Name)
	req.Nil(got.Phone)

	all, err := svc.List(ctx)
	req.NoError(err)
	req.Len(all, 1)
	req.Equal(got.ID, all[0].ID)
}

func TestSubmitReportsEveryInvalidField(t *testing.T) {
	req := require.New(t)
	svc := contact.NewService(storage.NewMemoryStore(), logger.Discard())

	_, err := svc.Submit(context.Background(), contact.SubmitInput{
		Name:    "A",
		Email:   "not-an-email",
		Message: "short",
	})

	var invalid *contact.InvalidError
	req.True(errors.As(err, &invalid))
	fields := lo.Map(invalid.Fields, func(f validation.FieldError, _ int) string { return f.Field })
	req.ElementsMatch([]string{"name", "email", "message"}, fields)
}
