package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/physioconnect/consult/backend/internal/logger"
	model "github.com/physioconnect/consult/backend/internal/model/consultation"
	"github.com/physioconnect/consult/backend/internal/service/consultation"
	"github.com/physioconnect/consult/backend/internal/storage"
)

func setupRouter(store storage.Store) (*chi.Mux, *consultation.Service) {
	svc := consultation.NewService(store)
	handler := New(svc, logger.Discard())

	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	return r, svc
}

func do(r http.Handler, method, path string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func decode[T any](t *testing.T, resp *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &v))
	return v
}

func TestCreateSessionThenGet(t *testing.T) {
	req := require.New(t)
	r, _ := setupRouter(storage.NewMemoryStore())

	resp := do(r, http.MethodPost, "/sessions", []byte(`{"doctorName":"Dr. A"}`))
	req.Equal(http.StatusCreated, resp.Code)
	created := decode[model.Session](t, resp)
	req.NotEmpty(created.SessionID)

	resp = do(r, http.MethodGet, "/sessions/"+created.SessionID, nil)
	req.Equal(http.StatusOK, resp.Code)

	raw := decode[map[string]any](t, resp)
	req.Equal(true, raw["isActive"])
	req.Contains(raw, "endedAt")
	req.Nil(raw["endedAt"])
	req.Nil(raw["patientName"])
	req.Equal("Dr. A", raw["doctorName"])
}

func TestCreateSessionMissingDoctorName(t *testing.T) {
	req := require.New(t)
	r, _ := setupRouter(storage.NewMemoryStore())

	resp := do(r, http.MethodPost, "/sessions", []byte(`{"patientName":"Bob"}`))
	req.Equal(http.StatusBadRequest, resp.Code)
	req.NotEmpty(decode[map[string]string](t, resp)["message"])

	resp = do(r, http.MethodPost, "/sessions", []byte(`{not json`))
	req.Equal(http.StatusBadRequest, resp.Code)
}

func TestCreateSessionDuplicateID(t *testing.T) {
	r, _ := setupRouter(storage.NewMemoryStore())

	body := []byte(`{"sessionId":"PHY-1","doctorName":"Dr. A"}`)
	require.Equal(t, http.StatusCreated, do(r, http.MethodPost, "/sessions", body).Code)
	require.Equal(t, http.StatusConflict, do(r, http.MethodPost, "/sessions", body).Code)
}

func TestGetSessionNotFound(t *testing.T) {
	r, _ := setupRouter(storage.NewMemoryStore())

	resp := do(r, http.MethodGet, "/sessions/missing", nil)
	require.Equal(t, http.StatusNotFound, resp.Code)
	require.Equal(t, "Session not found", decode[map[string]string](t, resp)["message"])
}

func TestEndSessionIsIdempotent(t *testing.T) {
	req := require.New(t)
	r, svc := setupRouter(storage.NewMemoryStore())
	_, err := svc.CreateSession(context.Background(), consultation.CreateSessionInput{SessionID: "PHY-1", DoctorName: "Dr. A"})
	req.NoError(err)

	for i := 0; i < 2; i++ {
		resp := do(r, http.MethodPost, "/sessions/PHY-1/end", nil)
		req.Equal(http.StatusOK, resp.Code)
		req.JSONEq(`{"success":true}`, resp.Body.String())
	}

	resp := do(r, http.MethodPost, "/sessions/unknown/end", nil)
	req.Equal(http.StatusOK, resp.Code)

	session, err := svc.GetSession(context.Background(), "PHY-1")
	req.NoError(err)
	req.False(session.IsActive)
}

func TestListMessages(t *testing.T) {
	req := require.New(t)
	r, svc := setupRouter(storage.NewMemoryStore())

	resp := do(r, http.MethodGet, "/sessions/PHY-1/messages", nil)
	req.Equal(http.StatusOK, resp.Code)
	req.JSONEq(`[]`, resp.Body.String())

	for _, body := range []string{"hello", "how is the knee?"} {
		_, err := svc.AppendMessage(context.Background(), consultation.AppendMessageInput{
			SessionID: "PHY-1", SenderName: "Dr. A", SenderType: "doctor", Message: body,
		})
		req.NoError(err)
	}

	resp = do(r, http.MethodGet, "/sessions/PHY-1/messages", nil)
	req.Equal(http.StatusOK, resp.Code)
	messages := decode[[]model.Message](t, resp)
	req.Len(messages, 2)
	req.Equal("hello", messages[0].Message)
	req.Equal("how is the knee?", messages[1].Message)
}

type brokenStore struct {
	*storage.MemoryStore
}

var errDiskGone = errors.New("disk gone")

func (brokenStore) GetSession(context.Context, string) (model.Session, error) {
	return model.Session{}, errDiskGone
}

func (brokenStore) ListMessages(context.Context, string) ([]model.Message, error) {
	return nil, errDiskGone
}

func TestStoreFailuresAreInternalErrors(t *testing.T) {
	r, _ := setupRouter(brokenStore{storage.NewMemoryStore()})

	for _, path := range []string{"/sessions/PHY-1", "/sessions/PHY-1/messages"} {
		resp := do(r, http.MethodGet, path, nil)
		require.Equal(t, http.StatusInternalServerError, resp.Code, path)
		require.Equal(t, "internal server error", decode[map[string]string](t, resp)["message"])
	}
}
