package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/barangaylink/backend/internal/identity"
	"github.com/barangaylink/backend/internal/mail"
	"github.com/barangaylink/backend/internal/models"
	"github.com/barangaylink/backend/internal/saga"
)

var (
	ErrOfficialNotFound = errors.New("official record not found")
	ErrAlreadyApproved  = errors.New("official is already approved")
	ErrNoStagedPassword = errors.New("official has no staged password")
)

// RegistrationService orchestrates the multi-table account-provisioning
// pipelines: identity in the auth platform, Official record, Profile record.
// No distributed transaction spans the platform and the database, so each
// pipeline unwinds its completed steps in reverse order when a later step
// fails. A caller never observes a half-provisioned identity.
type RegistrationService struct {
	db        *sql.DB
	provider  identity.Provider
	mailer    mail.Mailer
	validator *ValidationHelper
	baseURL   string
}

func NewRegistrationService(db *sql.DB, provider identity.Provider, mailer mail.Mailer, baseURL string) *RegistrationService {
	if mailer == nil {
		mailer = mail.LogMailer{}
	}
	return &RegistrationService{
		db:        db,
		provider:  provider,
		mailer:    mailer,
		validator: NewValidationHelper(),
		baseURL:   baseURL,
	}
}

// RegisterRequest is the flat self-registration body for a region-level
// official. These accounts start pre-approved; admin-reviewed flows stage a
// pending Official instead.
type RegisterRequest struct {
	FirstName    string `json:"firstName" validate:"required"`
	MiddleName   string `json:"middleName,omitempty"`
	LastName     string `json:"lastName" validate:"required"`
	Suffix       string `json:"suffix,omitempty"`
	Email        string `json:"email" validate:"required,email"`
	Password     string `json:"password" validate:"required,min=6"`
	PhoneNumber  string `json:"phoneNumber" validate:"required"`
	Position     string `json:"position" validate:"required"`
	Barangay     string `json:"barangay" validate:"required"`
	Municipality string `json:"municipality" validate:"required"`
	Province     string `json:"province" validate:"required"`
	Region       string `json:"region" validate:"required"`
}

// requiredFields drives the "first missing field" validation message, in the
// order the fields appear on the form.
var requiredFields = []struct {
	name  string
	value func(*RegisterRequest) string
}{
	{"firstName", func(r *RegisterRequest) string { return r.FirstName }},
	{"lastName", func(r *RegisterRequest) string { return r.LastName }},
	{"email", func(r *RegisterRequest) string { return r.Email }},
	{"password", func(r *RegisterRequest) string { return r.Password }},
	{"phoneNumber", func(r *RegisterRequest) string { return r.PhoneNumber }},
	{"position", func(r *RegisterRequest) string { return r.Position }},
	{"barangay", func(r *RegisterRequest) string { return r.Barangay }},
	{"municipality", func(r *RegisterRequest) string { return r.Municipality }},
	{"province", func(r *RegisterRequest) string { return r.Province }},
	{"region", func(r *RegisterRequest) string { return r.Region }},
}

// Register handles self-service official registration. The pipeline is:
// create identity, insert Official (approved), insert Profile. Any failure
// after identity creation rolls the earlier steps back in reverse order.
func (s *RegistrationService) Register(ctx context.Context, req *RegisterRequest) error {
	var authUser *identity.AuthUser
	officialID := uuid.NewString()
	now := time.Now()

	pipeline := saga.New("official-registration")

	pipeline.AddStep(saga.Step{
		Name: "create-identity",
		Run: func(ctx context.Context) error {
			user, err := s.provider.CreateUser(ctx, identity.CreateUserParams{
				Email:          req.Email,
				Password:       req.Password,
				EmailConfirmed: true,
				Metadata: map[string]any{
					"first_name": req.FirstName,
					"last_name":  req.LastName,
					"phone":      req.PhoneNumber,
					"barangay":   req.Barangay,
					"position":   req.Position,
					"role":       models.RoleResident,
				},
			})
			if err != nil {
				return err
			}
			authUser = user
			return nil
		},
		Compensate: func(ctx context.Context) error {
			return s.provider.DeleteUser(ctx, authUser.ID)
		},
	})

	pipeline.AddStep(saga.Step{
		Name: "insert-official",
		Run: func(ctx context.Context) error {
			_, err := s.db.ExecContext(ctx, `
				INSERT INTO officials (id, user_id, email, first_name, middle_name, last_name, suffix, phone_number, position,
					barangay, municipality, province, region, status, is_approved, approved_at, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, true, $15, $16)
			`, officialID, authUser.ID, req.Email, req.FirstName, req.MiddleName, req.LastName, req.Suffix,
				req.PhoneNumber, req.Position, req.Barangay, req.Municipality, req.Province, req.Region,
				models.OfficialStatusApproved, now, now)
			return err
		},
		Compensate: func(ctx context.Context) error {
			_, err := s.db.ExecContext(ctx, `DELETE FROM officials WHERE id = $1`, officialID)
			return err
		},
	})

	pipeline.AddStep(saga.Step{
		Name: "insert-profile",
		Run: func(ctx context.Context) error {
			_, err := s.db.ExecContext(ctx, `
				INSERT INTO profiles (id, email, first_name, middle_name, last_name, role, phone_number,
					barangay, municipality, province, region, is_approved, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, true, $12, $12)
			`, authUser.ID, req.Email, req.FirstName, req.MiddleName, req.LastName, models.RoleResident,
				req.PhoneNumber, req.Barangay, req.Municipality, req.Province, req.Region, now)
			return err
		},
		Compensate: func(ctx context.Context) error {
			_, err := s.db.ExecContext(ctx, `DELETE FROM profiles WHERE id = $1`, authUser.ID)
			return err
		},
	})

	return pipeline.Execute(ctx)
}

// Approve provisions the identity for a pending Official and promotes the
// matching Profile to the official role. The staged plaintext password is
// nulled exactly once, in the same statement that marks the record approved.
func (s *RegistrationService) Approve(ctx context.Context, officialID string) (*models.Official, error) {
	official, err := s.loadOfficial(ctx, officialID)
	if err != nil {
		return nil, err
	}
	if official.Status == models.OfficialStatusApproved {
		return nil, ErrAlreadyApproved
	}
	if official.OriginalPassword == nil || *official.OriginalPassword == "" {
		return nil, ErrNoStagedPassword
	}

	var (
		authUser        *identity.AuthUser
		createdIdentity bool
	)

	pipeline := saga.New("official-approval")

	pipeline.AddStep(saga.Step{
		Name: "ensure-identity",
		Run: func(ctx context.Context) error {
			metadata := map[string]any{
				"first_name": official.FirstName,
				"last_name":  official.LastName,
				"role":       models.RoleOfficial,
			}

			existing, err := s.provider.GetUserByEmail(ctx, official.Email)
			if err == nil {
				authUser, err = s.provider.UpdateUser(ctx, existing.ID, identity.UpdateUserParams{
					Password: official.OriginalPassword,
					Metadata: metadata,
				})
				return err
			}
			if !errors.Is(err, identity.ErrUserNotFound) {
				return err
			}

			authUser, err = s.provider.CreateUser(ctx, identity.CreateUserParams{
				Email:          official.Email,
				Password:       *official.OriginalPassword,
				EmailConfirmed: true,
				Metadata:       metadata,
			})
			if err != nil {
				return err
			}
			createdIdentity = true
			return nil
		},
		Compensate: func(ctx context.Context) error {
			// An updated pre-existing identity cannot be restored; only a
			// freshly created one is undone.
			if !createdIdentity {
				return nil
			}
			return s.provider.DeleteUser(ctx, authUser.ID)
		},
	})

	pipeline.AddStep(saga.Step{
		Name: "persist-records",
		Run: func(ctx context.Context) error {
			return s.persistApproval(ctx, official, authUser.ID)
		},
	})

	if err := pipeline.Execute(ctx); err != nil {
		return nil, err
	}

	s.sendWelcomeEmail(official)
	return official, nil
}

// persistApproval writes the Profile upsert and the Official update in one
// database transaction, so the two tables move together.
func (s *RegistrationService) persistApproval(ctx context.Context, official *models.Official, authUserID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin approval: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()

	// Writing the official role here eliminates the role lag at the source;
	// the RoleResolver only repairs rows approved before this change.
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO profiles (id, email, first_name, middle_name, last_name, role, phone_number,
			barangay, municipality, province, region, is_approved, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, true, $12, $12)
		ON CONFLICT (id) DO UPDATE
		SET role = EXCLUDED.role, is_approved = true, updated_at = EXCLUDED.updated_at
	`, authUserID, official.Email, official.FirstName, official.MiddleName, official.LastName,
		models.RoleOfficial, official.PhoneNumber, official.Barangay, official.Municipality,
		official.Province, official.Region, now); err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE officials
		SET status = $1, is_approved = true, user_id = $2, original_password = NULL, approved_at = $3
		WHERE id = $4
	`, models.OfficialStatusApproved, authUserID, now, official.ID); err != nil {
		return fmt.Errorf("update official: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit approval: %w", err)
	}

	official.Status = models.OfficialStatusApproved
	official.IsApproved = true
	official.UserID = &authUserID
	official.OriginalPassword = nil
	official.ApprovedAt = &now
	return nil
}

// sendWelcomeEmail runs outside the rollback chain; a delivery failure never
// undoes an approval.
func (s *RegistrationService) sendWelcomeEmail(official *models.Official) {
	payload := mail.WelcomeEmail{
		OfficialName: fmt.Sprintf("%s %s", official.FirstName, official.LastName),
		Email:        official.Email,
		Position:     official.Position,
		Barangay:     official.Barangay,
		ResetURL:     fmt.Sprintf("%s/reset-password?email=%s", s.baseURL, official.Email),
	}
	go func() {
		if err := s.mailer.SendWelcome(payload); err != nil {
			log.Printf("[REG] Welcome email for %s failed: %v", official.Email, err)
		}
	}()
}

func (s *RegistrationService) loadOfficial(ctx context.Context, officialID string) (*models.Official, error) {
	var official models.Official
	var (
		userID           sql.NullString
		middleName       sql.NullString
		suffix           sql.NullString
		originalPassword sql.NullString
		approvedAt       sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, email, first_name, middle_name, last_name, suffix, phone_number, position,
			barangay, municipality, province, region, status, is_approved, original_password, approved_at, created_at
		FROM officials
		WHERE id = $1
	`, officialID).Scan(&official.ID, &userID, &official.Email, &official.FirstName, &middleName,
		&official.LastName, &suffix, &official.PhoneNumber, &official.Position, &official.Barangay,
		&official.Municipality, &official.Province, &official.Region, &official.Status,
		&official.IsApproved, &originalPassword, &approvedAt, &official.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, ErrOfficialNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load official: %w", err)
	}

	if userID.Valid {
		official.UserID = &userID.String
	}
	official.MiddleName = middleName.String
	official.Suffix = suffix.String
	if originalPassword.Valid {
		official.OriginalPassword = &originalPassword.String
	}
	if approvedAt.Valid {
		official.ApprovedAt = &approvedAt.Time
	}
	return &official, nil
}

// ValidateRegisterRequest applies the ordered required-field check before the
// tag-based validation, so the response names the first omitted field.
func (s *RegistrationService) ValidateRegisterRequest(req *RegisterRequest) (string, error) {
	for _, field := range requiredFields {
		if field.value(req) == "" {
			return field.name, fmt.Errorf("missing required field: %s", field.name)
		}
	}
	return "", s.validator.ValidateStruct(req)
}
