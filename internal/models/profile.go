package models

import "time"

// Profile roles
const (
	RoleResident   = "resident"
	RoleOfficial   = "official"
	RoleAdmin      = "admin"
	RoleSuperAdmin = "superadmin"
)

// Profile is the canonical per-user record holding role and identity
// attributes. Profile.ID equals the auth identity id.
type Profile struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	FirstName    string `json:"firstName"`
	MiddleName   string `json:"middleName,omitempty"`
	LastName     string `json:"lastName"`
	Role         string `json:"role"`
	PhoneNumber  string `json:"phoneNumber,omitempty"`
	Barangay     string `json:"barangay,omitempty"`
	Municipality string `json:"municipality,omitempty"`
	Province     string `json:"province,omitempty"`
	Region       string `json:"region,omitempty"`
	IsApproved   bool   `json:"isApproved"`

	// MPIN bookkeeping. Attempt counting and lockout are authoritative here,
	// never on the client.
	MPINHash        *string    `json:"-"`
	MPINAttempts    int        `json:"-"`
	MPINLockedUntil *time.Time `json:"-"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
