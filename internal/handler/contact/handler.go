package contact

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	contactService "github.com/physioconnect/consult/backend/internal/service/contact"
	"github.com/physioconnect/consult/backend/internal/validation"
	"github.com/physioconnect/consult/backend/pkg/utils"
)

// Handler 官网联系表单的HTTP处理器
type Handler struct {
	svc *contactService.Service
	log logrus.FieldLogger
}

// New 创建联系表单处理器
func New(svc *contactService.Service, log logrus.FieldLogger) *Handler {
	return &Handler{svc: svc, log: log.WithField("component", "contact-api")}
}

// RegisterRoutes 注册联系表单路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/contact", h.handleSubmit)
	r.Get("/contact", h.handleList)
}

type submitResponse struct {
	Success bool                    `json:"success"`
	Message string                  `json:"message"`
	ID      string                  `json:"id,omitempty"`
	Errors  []validation.FieldError `json:"errors,omitempty"`
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var payload contactService.SubmitInput
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondJSON(w, http.StatusBadRequest, submitResponse{Message: "Please check your form data"})
		return
	}

	submission, err := h.svc.Submit(r.Context(), payload)
	if err != nil {
		var invalid *contactService.InvalidError
		if errors.As(err, &invalid) {
			utils.RespondJSON(w, http.StatusBadRequest, submitResponse{
				Message: "Please check your form data",
				Errors:  invalid.Fields,
			})
			return
		}
		h.log.Errorf("contact submission failed: %v", err)
		utils.RespondJSON(w, http.StatusInternalServerError, submitResponse{
			Message: "Sorry, something went wrong. Please try again later.",
		})
		return
	}

	utils.RespondJSON(w, http.StatusCreated, submitResponse{
		Success: true,
		Message: "Thank you for your message! We'll get back to you soon.",
		ID:      submission.ID,
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	submissions, err := h.svc.List(r.Context())
	if err != nil {
		h.log.Errorf("list contact submissions: %v", err)
		utils.RespondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	utils.RespondJSON(w, http.StatusOK, submissions)
}
