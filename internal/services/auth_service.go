package services

import (
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/barangaylink/backend/internal/identity"
	"github.com/barangaylink/backend/internal/models"
	"github.com/barangaylink/backend/internal/vault"
)

// AuthService handles full credential login and logout. MPIN quick login
// lives in MPINService; this is the path that seeds the device vault the
// quick login later depends on.
type AuthService struct {
	db        *sql.DB
	provider  identity.Provider
	sessions  *SessionService
	resolver  *RoleResolver
	store     vault.Store
	validator *ValidationHelper
}

func NewAuthService(db *sql.DB, provider identity.Provider, sessions *SessionService, resolver *RoleResolver, store vault.Store) *AuthService {
	return &AuthService{
		db:        db,
		provider:  provider,
		sessions:  sessions,
		resolver:  resolver,
		store:     store,
		validator: NewValidationHelper(),
	}
}

// LoginRequest is the full-credential login payload. Device attributes are
// optional; when present, the credential bundle for MPIN quick login is
// stored under the device fingerprint.
type LoginRequest struct {
	Email    string            `json:"email" validate:"required,email"`
	Password string            `json:"password" validate:"required,min=6"`
	Device   *vault.DeviceInfo `json:"device,omitempty"`
}

// AuthUserInfo is the identity block in login responses.
type AuthUserInfo struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Role      string `json:"role"`
	Barangay  string `json:"barangay,omitempty"`
}

// Login authenticates with email and password and issues a session
// @Summary Login with full credentials
// @Tags auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Login request"
// @Success 200 {object} map[string]any "Session and user"
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Router /auth/login [post]
func (s *AuthService) Login(w http.ResponseWriter, r *http.Request) {
	log.Printf("[AUTH] Login attempt from IP: %s", r.RemoteAddr)

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req LoginRequest
	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}
	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	authUser, err := s.provider.VerifyPassword(r.Context(), req.Email, req.Password)
	if errors.Is(err, identity.ErrInvalidCredentials) {
		log.Printf("[AUTH] Invalid credentials for %s", req.Email)
		SendErrorResponse(w, "Invalid credentials", http.StatusUnauthorized, nil)
		return
	}
	if err != nil {
		log.Printf("[AUTH] Password verification failed for %s: %v", req.Email, err)
		SendErrorResponse(w, "An Internal Error Occurred", http.StatusInternalServerError, nil)
		return
	}

	user, err := s.loadProfile(r, authUser.ID)
	if err != nil {
		log.Printf("[AUTH] Profile lookup failed for %s: %v", req.Email, err)
		SendErrorResponse(w, "Profile not found", http.StatusNotFound, nil)
		return
	}

	// Session load is the one point where role reconciliation runs.
	user.Role = s.resolver.Resolve(r.Context(), user.Email, user.Role)

	session, err := s.sessions.Issue(r.Context(), user.ID, user.Email, user.Role)
	if err != nil {
		log.Printf("[AUTH] Session issue failed for %s: %v", req.Email, err)
		SendErrorResponse(w, "Failed to create session", http.StatusInternalServerError, nil)
		return
	}

	if req.Device != nil {
		deviceVault := vault.New(s.store, *req.Device)
		if err := deviceVault.Store(r.Context(), user.Email, user.ID, req.Password, session.RefreshToken); err != nil {
			// Quick login is a convenience; its storage never fails a login.
			log.Printf("[AUTH] Credential bundle store failed for %s: %v", req.Email, err)
		}
	}

	log.Printf("[AUTH] Login successful for %s (role %s)", user.Email, user.Role)
	SendJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"session": session,
		"user":    user,
	})
}

// Logout revokes the session's tokens
// @Summary Logout and invalidate tokens
// @Tags auth
// @Accept json
// @Produce json
// @Success 200 {object} map[string]string
// @Router /auth/logout [post]
func (s *AuthService) Logout(w http.ResponseWriter, r *http.Request) {
	if token := r.Header.Get("Authorization"); len(token) > 7 {
		s.sessions.BlacklistAccessToken(r.Context(), token[7:])
	}

	var req struct {
		RefreshToken string `json:"refresh_token,omitempty"`
	}
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req)
	}
	if req.RefreshToken != "" {
		if err := s.sessions.Revoke(r.Context(), req.RefreshToken); err != nil {
			log.Printf("[AUTH] Refresh token revoke failed: %v", err)
		}
	}

	SendJSON(w, http.StatusOK, map[string]string{"message": "Logout successful"})
}

func (s *AuthService) loadProfile(r *http.Request, userID string) (*AuthUserInfo, error) {
	var user AuthUserInfo
	var barangay sql.NullString
	err := s.db.QueryRowContext(r.Context(), `
		SELECT id, email, first_name, last_name, role, barangay
		FROM profiles
		WHERE id = $1
	`, userID).Scan(&user.ID, &user.Email, &user.FirstName, &user.LastName, &user.Role, &barangay)
	if err != nil {
		return nil, err
	}
	user.Barangay = barangay.String
	if user.Role == "" {
		user.Role = models.RoleResident
	}
	return &user, nil
}
