package services

import (
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/skip2/go-qrcode"
)

// BadgeService renders a scannable verification badge for an approved
// official's digital ID.
type BadgeService struct {
	db *sql.DB
}

func NewBadgeService(db *sql.DB) *BadgeService {
	return &BadgeService{db: db}
}

// GenerateBadge returns a PNG QR of the official's verification payload.
// Only approved officials have badges.
func (s *BadgeService) GenerateBadge(ctx context.Context, officialID string) ([]byte, error) {
	var (
		firstName  string
		lastName   string
		position   string
		barangay   string
		approvedAt time.Time
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT first_name, last_name, position, barangay, approved_at
		FROM officials
		WHERE id = $1 AND is_approved = true
	`, officialID).Scan(&firstName, &lastName, &position, &barangay, &approvedAt)
	if err == sql.ErrNoRows {
		return nil, ErrOfficialNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load official for badge: %w", err)
	}

	payload := map[string]any{
		"officialId": officialID,
		"name":       fmt.Sprintf("%s %s", firstName, lastName),
		"position":   position,
		"barangay":   barangay,
		"approvedAt": approvedAt.Unix(),
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	png, err := qrcode.Encode(base64.URLEncoding.EncodeToString(raw), qrcode.Medium, 256)
	if err != nil {
		return nil, fmt.Errorf("encode badge QR: %w", err)
	}
	return png, nil
}
