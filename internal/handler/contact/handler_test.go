package contact

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/physioconnect/consult/backend/internal/logger"
	contactService "github.com/physioconnect/consult/backend/internal/service/contact"
	"github.com/physioconnect/consult/backend/internal/storage"
)

func setupRouter() *chi.Mux {
	log := logger.Discard()
	handler := New(contactService.NewService(storage.NewMemoryStore(), log), log)

	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	return r
}

func post(r http.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/contact", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestSubmitContact(t *testing.T) {
	req := require.New(t)
	r := setupRouter()

	resp := post(r, `{"name":"Alice","email":"alice@example.com","phone":"+44 20 7946 0000","message":"Do you offer home visits?"}`)
	req.Equal(http.StatusCreated, resp.Code)

	var body submitResponse
	req.NoError(json.Unmarshal(resp.Body.Bytes(), &body))
	req.True(body.Success)
	req.NotEmpty(body.ID)

	list := httptest.NewRecorder()
	r.ServeHTTP(list, httptest.NewRequest(http.MethodGet, "/contact", nil))
	req.Equal(http.StatusOK, list.Code)

	var submissions []map[string]any
	req.NoError(json.Unmarshal(list.Body.Bytes(), &submissions))
	req.Len(submissions, 1)
	req.Equal(body.ID, submissions[0]["id"])
	req.Equal("+44 20 7946 0000", submissions[0]["phone"])
}

func TestSubmitContactInvalid(t *testing.T) {
	req := require.New(t)
	r := setupRouter()

	resp := post(r, `{"name":"Alice","email":"nope","message":"Do you offer home visits?"}`)
	req.Equal(http.StatusBadRequest, resp.Code)

	var body submitResponse
	req.NoError(json.Unmarshal(resp.Body.Bytes(), &body))
	req.False(body.Success)
	req.NotEmpty(body.Message)
	req.Len(body.Errors, 1)
	req.Equal("email", body.Errors[0].Field)

	resp = post(r, `[]`)
	req.Equal(http.StatusBadRequest, resp.Code)
}
