package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/barangaylink/backend/internal/services"
)

// OTPHandler exposes one-time-code issue and verification endpoints.
type OTPHandler struct {
	service   *services.OTPService
	validator *services.ValidationHelper
}

func NewOTPHandler(service *services.OTPService) *OTPHandler {
	return &OTPHandler{
		service:   service,
		validator: services.NewValidationHelper(),
	}
}

// Send issues a fresh OTP for a phone number
// @Summary Send an OTP
// @Tags auth
// @Accept json
// @Produce json
// @Param request body object{phoneNumber=string,userRole=string} true "OTP request"
// @Success 200 {object} map[string]any
// @Failure 400 {object} services.ErrorResponse
// @Failure 429 {object} services.ErrorResponse
// @Router /auth/otp/send [post]
func (h *OTPHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PhoneNumber string `json:"phoneNumber" validate:"required"`
		UserRole    string `json:"userRole,omitempty" validate:"omitempty,oneof=resident official admin"`
	}

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

	expiresIn, err := h.service.Issue(r.Context(), req.PhoneNumber, req.UserRole)
	if err != nil {
		if errors.Is(err, services.ErrOTPRateLimited) {
			services.SendErrorResponse(w, "Too many OTP requests, try again later", http.StatusTooManyRequests, nil)
			return
		}
		log.Printf("[OTP] Issue failed for %s: %v", req.PhoneNumber, err)
		services.SendErrorResponse(w, "Failed to send OTP", http.StatusInternalServerError, nil)
		return
	}

	services.SendJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"message":   "OTP sent successfully",
		"expiresIn": int(expiresIn.Seconds()),
	})
}

// Verify checks a submitted OTP
// @Summary Verify an OTP
// @Tags auth
// @Accept json
// @Produce json
// @Param request body object{phoneNumber=string,otpCode=string} true "OTP verification"
// @Success 200 {object} map[string]any
// @Failure 400 {object} services.ErrorResponse
// @Failure 401 {object} services.ErrorResponse
// @Router /auth/otp/verify [post]
func (h *OTPHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PhoneNumber string `json:"phoneNumber" validate:"required"`
		OTPCode     string `json:"otpCode" validate:"required,numeric"`
	}

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

	result, err := h.service.Verify(r.Context(), req.PhoneNumber, req.OTPCode)
	if err != nil {
		h.writeVerifyError(w, req.PhoneNumber, err)
		return
	}

	services.SendJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"message":     "OTP verified successfully",
		"phoneNumber": result.PhoneNumber,
		"userRole":    result.UserRole,
	})
}

func (h *OTPHandler) writeVerifyError(w http.ResponseWriter, phoneNumber string, err error) {
	var invalid *services.InvalidOTPError

	switch {
	case errors.As(err, &invalid):
		services.SendJSON(w, http.StatusUnauthorized, map[string]any{
			"success":           false,
			"error":             "invalid_code",
			"remainingAttempts": invalid.RemainingAttempts,
		})
	case errors.Is(err, services.ErrOTPExpired):
		services.SendJSON(w, http.StatusUnauthorized, map[string]any{
			"success": false,
			"error":   "expired",
		})
	case errors.Is(err, services.ErrOTPAttemptsExceeded):
		services.SendJSON(w, http.StatusUnauthorized, map[string]any{
			"success": false,
			"error":   "attempts_exceeded",
		})
	case errors.Is(err, services.ErrOTPNotFound):
		services.SendJSON(w, http.StatusUnauthorized, map[string]any{
			"success": false,
			"error":   "invalid_or_expired",
		})
	default:
		log.Printf("[OTP] Verify failed for %s: %v", phoneNumber, err)
		services.SendErrorResponse(w, "An Internal Error Occurred", http.StatusInternalServerError, nil)
	}
}
