package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/barangaylink/backend/internal/config"
	"github.com/barangaylink/backend/internal/vault"
)

var (
	ErrMPINNotSet      = errors.New("no MPIN set for this account")
	ErrNoCredentials   = errors.New("no stored credentials on this device")
	ErrNoRefreshToken  = errors.New("no stored refresh token on this device")
	ErrSessionExpired  = errors.New("stored session expired, full login required")
	ErrProfileNotFound = errors.New("profile not found")
	ErrMPINTooShort    = errors.New("MPIN is too short")
)

// MPINLockedError reports an account in its lockout window.
type MPINLockedError struct {
	Until time.Time
}

func (e *MPINLockedError) Error() string {
	return fmt.Sprintf("MPIN locked until %s", e.Until.Format(time.RFC3339))
}

// InvalidMPINError reports a PIN mismatch; the attempt has already been
// recorded server-side when this is returned.
type InvalidMPINError struct {
	RemainingAttempts int
}

func (e *InvalidMPINError) Error() string {
	return fmt.Sprintf("invalid MPIN, %d attempts remaining", e.RemainingAttempts)
}

// MPINIdentity is the profile identity confirmed by a successful PIN check.
type MPINIdentity struct {
	UserID string
	Email  string
	Role   string
}

// MPINService verifies the short numeric PIN against the profile's argon2id
// hash. Attempt counting and lockout live in the profiles table, so the
// bookkeeping is authoritative no matter how many devices try the account.
type MPINService struct {
	db        *sql.DB
	sessions  *SessionService
	config    *config.MPINConfig
	validator *ValidationHelper
}

func NewMPINService(db *sql.DB, sessions *SessionService) *MPINService {
	return &MPINService{
		db:        db,
		sessions:  sessions,
		config:    config.LoadMPINConfig(),
		validator: NewValidationHelper(),
	}
}

// VerifyMPIN runs the authoritative server-side check. Lock state is
// evaluated first, then the hash presence, then the slow-hash comparison. A
// mismatch increments the attempt counter and arms the lock at the threshold,
// committed before the caller sees the error.
func (s *MPINService) VerifyMPIN(ctx context.Context, email, mpin string) (*MPINIdentity, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin MPIN verify: %w", err)
	}
	defer tx.Rollback()

	var (
		userID      string
		role        string
		mpinHash    sql.NullString
		attempts    int
		lockedUntil sql.NullTime
	)
	err = tx.QueryRowContext(ctx, `
		SELECT id, role, mpin_hash, mpin_attempts, mpin_locked_until
		FROM profiles
		WHERE email = $1
		FOR UPDATE
	`, email).Scan(&userID, &role, &mpinHash, &attempts, &lockedUntil)

	if err == sql.ErrNoRows {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}

	if lockedUntil.Valid && lockedUntil.Time.After(time.Now()) {
		return nil, &MPINLockedError{Until: lockedUntil.Time}
	}

	if !mpinHash.Valid || mpinHash.String == "" {
		return nil, ErrMPINNotSet
	}

	if !verifySecret(mpin, mpinHash.String) {
		newAttempts := attempts + 1
		var newLock *time.Time
		if newAttempts >= s.config.MaxAttempts {
			until := time.Now().Add(s.config.LockDuration)
			newLock = &until
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE profiles SET mpin_attempts = $1, mpin_locked_until = $2 WHERE id = $3
		`, newAttempts, newLock, userID); err != nil {
			return nil, fmt.Errorf("record failed MPIN attempt: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("commit failed MPIN attempt: %w", err)
		}

		remaining := s.config.MaxAttempts - newAttempts
		if remaining < 0 {
			remaining = 0
		}
		log.Printf("[MPIN] Failed attempt %d for %s", newAttempts, email)
		return nil, &InvalidMPINError{RemainingAttempts: remaining}
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE profiles SET mpin_attempts = 0, mpin_locked_until = NULL WHERE id = $1
	`, userID); err != nil {
		return nil, fmt.Errorf("reset MPIN attempts: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit MPIN verify: %w", err)
	}

	return &MPINIdentity{UserID: userID, Email: email, Role: role}, nil
}

// SetMPIN hashes and stores a new PIN, resetting attempt state. Only callable
// with an authenticated session; the handler enforces that.
func (s *MPINService) SetMPIN(ctx context.Context, userID, mpin string) error {
	if len(mpin) < s.config.MinLength {
		return ErrMPINTooShort
	}

	hash, err := hashSecret(mpin)
	if err != nil {
		return fmt.Errorf("hash MPIN: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE profiles SET mpin_hash = $1, mpin_attempts = 0, mpin_locked_until = NULL, updated_at = $2
		WHERE id = $3
	`, hash, time.Now(), userID)
	if err != nil {
		return fmt.Errorf("store MPIN: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrProfileNotFound
	}
	return nil
}

// VerifyAndLogin is the device-side quick-login flow: stored credentials and
// refresh token gate the attempt, the server check gates the PIN, and the
// refresh exchange mints the session. A rejected refresh token purges bundle
// and token together before failing.
func (s *MPINService) VerifyAndLogin(ctx context.Context, v *vault.Vault, mpin string) (*Session, error) {
	bundle := v.Retrieve(ctx)
	if bundle == nil {
		return nil, ErrNoCredentials
	}

	refreshToken := v.RefreshToken(ctx, bundle.UserID)
	if refreshToken == "" {
		return nil, ErrNoRefreshToken
	}

	if _, err := s.VerifyMPIN(ctx, bundle.Email, mpin); err != nil {
		return nil, err
	}

	session, err := s.sessions.Exchange(ctx, refreshToken)
	if errors.Is(err, ErrRefreshRejected) {
		if purgeErr := v.PurgeAll(ctx, bundle.UserID); purgeErr != nil {
			log.Printf("[MPIN] Failed to purge local credentials: %v", purgeErr)
		}
		return nil, ErrSessionExpired
	}
	if err != nil {
		return nil, err
	}

	// Keep the rotated refresh token and refresh the bundle's activity clock.
	password, err := v.Password(bundle)
	if err == nil {
		if err := v.Store(ctx, bundle.Email, bundle.UserID, password, session.RefreshToken); err != nil {
			log.Printf("[MPIN] Failed to refresh credential bundle: %v", err)
		}
	} else {
		if err := v.StoreRefreshToken(ctx, bundle.UserID, session.RefreshToken); err != nil {
			log.Printf("[MPIN] Failed to store rotated refresh token: %v", err)
		}
	}

	return session, nil
}

// MPINVerifyRequest is the wire payload of the verification endpoint.
type MPINVerifyRequest struct {
	Email        string `json:"email" validate:"required,email"`
	MPIN         string `json:"mpin" validate:"required,numeric,min=4"`
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// HandleVerify verifies the PIN and exchanges the presented refresh token for
// a new session
// @Summary Verify MPIN and mint a session
// @Tags auth
// @Accept json
// @Produce json
// @Param request body MPINVerifyRequest true "MPIN verification request"
// @Success 200 {object} map[string]any "New session"
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Router /auth/mpin/verify [post]
func (s *MPINService) HandleVerify(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req MPINVerifyRequest
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

	_, err := s.VerifyMPIN(r.Context(), req.Email, req.MPIN)
	if err != nil {
		s.writeVerifyError(w, req.Email, err)
		return
	}

	session, err := s.sessions.Exchange(r.Context(), req.RefreshToken)
	if errors.Is(err, ErrRefreshRejected) {
		log.Printf("[MPIN] Refresh token rejected for %s", req.Email)
		SendJSON(w, http.StatusUnauthorized, map[string]any{
			"success": false,
			"error":   "session_expired",
		})
		return
	}
	if err != nil {
		log.Printf("[MPIN] Session exchange failed for %s: %v", req.Email, err)
		SendErrorResponse(w, "An Internal Error Occurred", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[MPIN] Quick login successful for %s", req.Email)
	SendJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"session": session,
	})
}

func (s *MPINService) writeVerifyError(w http.ResponseWriter, email string, err error) {
	var locked *MPINLockedError
	var invalid *InvalidMPINError

	switch {
	case errors.As(err, &locked):
		log.Printf("[MPIN] Locked account %s until %v", email, locked.Until)
		SendJSON(w, http.StatusUnauthorized, map[string]any{
			"success":    false,
			"error":      "locked",
			"lockExpiry": locked.Until,
		})
	case errors.As(err, &invalid):
		SendJSON(w, http.StatusUnauthorized, map[string]any{
			"success":           false,
			"error":             "invalid",
			"attemptsRemaining": invalid.RemainingAttempts,
		})
	case errors.Is(err, ErrMPINNotSet):
		SendJSON(w, http.StatusUnauthorized, map[string]any{
			"success": false,
			"error":   "not_set",
		})
	case errors.Is(err, ErrProfileNotFound):
		// Same shape as a bad PIN; account existence is not revealed.
		SendJSON(w, http.StatusUnauthorized, map[string]any{
			"success": false,
			"error":   "invalid",
		})
	default:
		log.Printf("[MPIN] Verify failed for %s: %v", email, err)
		SendErrorResponse(w, "An Internal Error Occurred", http.StatusInternalServerError, nil)
	}
}

// HandleSet stores a new MPIN for the authenticated user
// @Summary Set MPIN for the current session's user
// @Tags auth
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{mpin=string} true "MPIN payload"
// @Success 200 {object} map[string]any
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Router /auth/mpin/set [post]
func (s *MPINService) HandleSet(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req struct {
		MPIN string `json:"mpin" validate:"required,numeric,min=4"`
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

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

	if err := s.SetMPIN(r.Context(), userID, req.MPIN); err != nil {
		switch {
		case errors.Is(err, ErrMPINTooShort):
			SendErrorResponse(w, "MPIN must be at least 4 digits", http.StatusBadRequest, nil)
		case errors.Is(err, ErrProfileNotFound):
			SendErrorResponse(w, "Profile not found", http.StatusNotFound, nil)
		default:
			log.Printf("[MPIN] SetMPIN failed for user %s: %v", userID, err)
			SendErrorResponse(w, "An Internal Error Occurred", http.StatusInternalServerError, nil)
		}
		return
	}

	log.Printf("[MPIN] MPIN set for user %s", userID)
	SendJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "MPIN set successfully",
	})
}
