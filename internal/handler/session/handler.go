package session

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/physioconnect/consult/backend/internal/service/consultation"
	"github.com/physioconnect/consult/backend/pkg/utils"
)

// Handler 会话与聊天记录的HTTP处理器
type Handler struct {
	svc *consultation.Service
	log logrus.FieldLogger
}

// New 创建会话处理器
func New(svc *consultation.Service, log logrus.FieldLogger) *Handler {
	return &Handler{
		svc: svc,
		log: log.WithField("component", "session-api"),
	}
}

// RegisterRoutes 注册会话相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/sessions", h.handleCreateSession)
	r.Get("/sessions/{sessionID}", h.handleGetSession)
	r.Post("/sessions/{sessionID}/end", h.handleEndSession)
	r.Get("/sessions/{sessionID}/messages", h.handleListMessages)
}

// handleCreateSession 创建会话
func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		SessionID   string `json:"sessionId"`
		DoctorName  string `json:"doctorName"`
		PatientName string `json:"patientName"`
	}

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session, err := h.svc.CreateSession(r.Context(), consultation.CreateSessionInput{
		SessionID:   payload.SessionID,
		DoctorName:  payload.DoctorName,
		PatientName: payload.PatientName,
	})
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.log.WithFields(logrus.Fields{"session": session.SessionID, "doctor": session.DoctorName}).Info("session created")
	utils.RespondJSON(w, http.StatusCreated, session)
}

// handleGetSession 查询会话
func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.svc.GetSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, session)
}

// handleEndSession 结束会话，重复调用不会报错
func (h *Handler) handleEndSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if err := h.svc.EndSession(r.Context(), sessionID); err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.log.WithField("session", sessionID).Info("session ended")
	utils.RespondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// handleListMessages 按时间顺序返回聊天记录
func (h *Handler) handleListMessages(w http.ResponseWriter, r *http.Request) {
	messages, err := h.svc.ListMessages(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, messages)
}

func (h *Handler) respondServiceError(w http.ResponseWriter, err error) {
	var verr *consultation.ValidationError
	switch {
	case errors.As(err, &verr):
		utils.RespondError(w, http.StatusBadRequest, verr.Error())
	case errors.Is(err, consultation.ErrSessionNotFound):
		utils.RespondError(w, http.StatusNotFound, "Session not found")
	case errors.Is(err, consultation.ErrSessionExists):
		utils.RespondError(w, http.StatusConflict, err.Error())
	default:
		h.log.Errorf("request failed: %v", err)
		utils.RespondError(w, http.StatusInternalServerError, "internal server error")
	}
}
