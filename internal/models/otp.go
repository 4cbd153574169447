package models

import "time"

// OTPRecord is a server-stored one-time code tied to a phone number. A record
// is never reused after verification or expiry; a fresh one must be issued.
type OTPRecord struct {
	ID          string    `json:"id"`
	PhoneNumber string    `json:"phoneNumber"`
	Code        string    `json:"-"`
	ExpiresAt   time.Time `json:"expiresAt"`
	Attempts    int       `json:"attempts"`
	MaxAttempts int       `json:"maxAttempts"`
	IsVerified  bool      `json:"isVerified"`
	UserRole    string    `json:"userRole"`
	CreatedAt   time.Time `json:"createdAt"`
}
