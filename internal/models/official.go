package models

import "time"

// Official status lifecycle
const (
	OfficialStatusPending  = "pending"
	OfficialStatusApproved = "approved"
	OfficialStatusRejected = "rejected"
	OfficialStatusActive   = "active"
	OfficialStatusInactive = "inactive"
)

// Official represents a barangay official's registration record, staged or
// approved, distinct from the general user Profile.
type Official struct {
	ID           string     `json:"id"`
	UserID       *string    `json:"userId"` // auth identity id, set on approval
	Email        string     `json:"email"`
	FirstName    string     `json:"firstName"`
	MiddleName   string     `json:"middleName,omitempty"`
	LastName     string     `json:"lastName"`
	Suffix       string     `json:"suffix,omitempty"`
	PhoneNumber  string     `json:"phoneNumber"`
	Position     string     `json:"position"`
	Barangay     string     `json:"barangay"`
	Municipality string     `json:"municipality"`
	Province     string     `json:"province"`
	Region       string     `json:"region"`
	Status       string     `json:"status"`
	IsApproved   bool       `json:"isApproved"`
	// OriginalPassword stages the plaintext password until the auth identity
	// is provisioned; nulled exactly once at approval time.
	OriginalPassword *string    `json:"-"`
	ApprovedAt       *time.Time `json:"approvedAt,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
}
