package services

import (
	"context"
	"database/sql"
	"log"
	"time"

	"github.com/barangaylink/backend/internal/models"
)

// RoleResolver repairs the historical inconsistency where an Official is
// approved but the Profile's role still says resident. The approval pipeline
// now writes the role at the source, so this is defense in depth for legacy
// rows. It runs once per session load, never per request.
type RoleResolver struct {
	db *sql.DB
	// onRoleChange republishes the corrected identity to auth-context
	// consumers instead of forcing a full reload.
	onRoleChange func(userID, role string)
}

func NewRoleResolver(db *sql.DB, onRoleChange func(userID, role string)) *RoleResolver {
	return &RoleResolver{db: db, onRoleChange: onRoleChange}
}

// Resolve returns the user's effective role, correcting the profile when an
// approved Official record disagrees with it. Every failure is logged and
// swallowed: reconciliation is best-effort and must never block login.
func (rr *RoleResolver) Resolve(ctx context.Context, email, currentRole string) string {
	if currentRole == models.RoleOfficial {
		return currentRole
	}

	var exists bool
	err := rr.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM officials
			WHERE email = $1 AND status = $2 AND is_approved = true
		)
	`, email, models.OfficialStatusApproved).Scan(&exists)
	if err != nil {
		log.Printf("[ROLE] Official lookup failed for %s: %v", email, err)
		return currentRole
	}
	if !exists {
		return currentRole
	}

	var userID string
	err = rr.db.QueryRowContext(ctx, `
		UPDATE profiles SET role = $1, updated_at = $2 WHERE email = $3
		RETURNING id
	`, models.RoleOfficial, time.Now(), email).Scan(&userID)
	if err != nil {
		log.Printf("[ROLE] Role correction failed for %s: %v", email, err)
		return currentRole
	}

	log.Printf("[ROLE] Corrected role to official for %s", email)
	if rr.onRoleChange != nil {
		rr.onRoleChange(userID, models.RoleOfficial)
	}
	return models.RoleOfficial
}
