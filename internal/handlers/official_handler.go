package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/barangaylink/backend/internal/identity"
	"github.com/barangaylink/backend/internal/services"
)

// OfficialHandler exposes the registration/approval orchestrator and the
// verification badge over HTTP.
type OfficialHandler struct {
	registration *services.RegistrationService
	badges       *services.BadgeService
	validator    *services.ValidationHelper
}

func NewOfficialHandler(registration *services.RegistrationService, badges *services.BadgeService) *OfficialHandler {
	return &OfficialHandler{
		registration: registration,
		badges:       badges,
		validator:    services.NewValidationHelper(),
	}
}

// Register handles self-service official registration
// @Summary Register a region-level official
// @Tags officials
// @Accept json
// @Produce json
// @Param request body services.RegisterRequest true "Registration payload"
// @Success 200 {object} map[string]any
// @Failure 400 {object} services.ErrorResponse
// @Router /officials/register [post]
func (h *OfficialHandler) Register(w http.ResponseWriter, r *http.Request) {
	log.Printf("[REG] Registration attempt from IP: %s", r.RemoteAddr)

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req services.RegisterRequest
	if err := dec.Decode(&req); err != nil {
		services.SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if missing, err := h.registration.ValidateRegisterRequest(&req); err != nil {
		if missing != "" {
			services.SendErrorResponse(w, "Missing required field: "+missing, http.StatusBadRequest, nil)
			return
		}
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	if err := h.registration.Register(r.Context(), &req); err != nil {
		if errors.Is(err, identity.ErrDuplicateEmail) {
			log.Printf("[REG] Duplicate email on registration: %s", req.Email)
			services.SendErrorResponse(w, "Email already registered", http.StatusBadRequest, nil)
			return
		}
		log.Printf("[REG] Registration pipeline failed for %s: %v", req.Email, err)
		services.SendErrorResponse(w, "Registration failed", http.StatusBadRequest, nil)
		return
	}

	log.Printf("[REG] Official registered: %s (%s)", req.Email, req.Position)
	services.SendJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Official registered successfully",
	})
}

// Approve handles admin approval of a pending official
// @Summary Approve a pending official registration
// @Tags officials
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{official_id=string} true "Approval payload"
// @Success 200 {object} map[string]any
// @Failure 400 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /officials/approve [post]
func (h *OfficialHandler) Approve(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OfficialID string `json:"official_id" validate:"required"`
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

	official, err := h.registration.Approve(r.Context(), req.OfficialID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrOfficialNotFound):
			services.SendErrorResponse(w, "Official not found", http.StatusNotFound, nil)
		case errors.Is(err, services.ErrAlreadyApproved):
			services.SendErrorResponse(w, "Official is already approved", http.StatusBadRequest, nil)
		case errors.Is(err, services.ErrNoStagedPassword):
			services.SendErrorResponse(w, "No staged password for this official", http.StatusBadRequest, nil)
		default:
			log.Printf("[REG] Approval pipeline failed for %s: %v", req.OfficialID, err)
			services.SendErrorResponse(w, "Approval failed", http.StatusBadRequest, nil)
		}
		return
	}

	log.Printf("[REG] Official approved: %s (%s)", official.Email, official.ID)
	services.SendJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Official approved and account provisioned",
	})
}

// Badge serves the official's verification QR
// @Summary Verification QR badge for an approved official
// @Tags officials
// @Produce png
// @Security BearerAuth
// @Param officialId path string true "Official ID"
// @Success 200 {file} binary
// @Failure 404 {object} services.ErrorResponse
// @Router /officials/{officialId}/qr [get]
func (h *OfficialHandler) Badge(w http.ResponseWriter, r *http.Request) {
	officialID := chi.URLParam(r, "officialId")
	if officialID == "" {
		services.SendErrorResponse(w, "Official ID required", http.StatusBadRequest, nil)
		return
	}

	png, err := h.badges.GenerateBadge(r.Context(), officialID)
	if err != nil {
		if errors.Is(err, services.ErrOfficialNotFound) {
			services.SendErrorResponse(w, "Official not found", http.StatusNotFound, nil)
			return
		}
		log.Printf("[REG] Badge generation failed for %s: %v", officialID, err)
		services.SendErrorResponse(w, "An Internal Error Occurred", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "private, max-age=300")
	w.Write(png)
}
