package handlers

import (
	"encoding/json"
	"io"
	"log"
	"net/http"

	"github.com/barangaylink/backend/internal/mail"
	"github.com/barangaylink/backend/internal/services"
)

// NotificationHandler exposes fire-and-forget notification endpoints.
type NotificationHandler struct {
	mailer    mail.Mailer
	validator *services.ValidationHelper
}

func NewNotificationHandler(mailer mail.Mailer) *NotificationHandler {
	if mailer == nil {
		mailer = mail.LogMailer{}
	}
	return &NotificationHandler{
		mailer:    mailer,
		validator: services.NewValidationHelper(),
	}
}

// Welcome queues the onboarding email for an approved official
// @Summary Send a welcome email
// @Tags notifications
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body mail.WelcomeEmail true "Welcome email payload"
// @Success 200 {object} map[string]any
// @Failure 400 {object} services.ErrorResponse
// @Router /notifications/welcome [post]
func (h *NotificationHandler) Welcome(w http.ResponseWriter, r *http.Request) {
	var req mail.WelcomeEmail

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		services.SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	// Delivery is decoupled from the response; a failure is logged, never
	// surfaced, and never rolls anything back.
	go func() {
		if err := h.mailer.SendWelcome(req); err != nil {
			log.Printf("[MAIL] Welcome email for %s failed: %v", req.Email, err)
		}
	}()

	services.SendJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Welcome email queued",
	})
}
