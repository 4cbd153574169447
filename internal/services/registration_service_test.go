package services

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/barangaylink/backend/internal/identity"
	"github.com/barangaylink/backend/internal/models"
)

func validRegisterRequest() *RegisterRequest {
	return &RegisterRequest{
		FirstName:    "Juan",
		LastName:     "Dela Cruz",
		Email:        "juan.delacruz@barangay.gov.ph",
		Password:     "secret123",
		PhoneNumber:  "+639171234567",
		Position:     "Barangay Captain",
		Barangay:     "San Isidro",
		Municipality: "Quezon City",
		Province:     "Metro Manila",
		Region:       "NCR",
	}
}

func pendingOfficialRows(password interface{}) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "user_id", "email", "first_name", "middle_name", "last_name", "suffix",
		"phone_number", "position", "barangay", "municipality", "province", "region",
		"status", "is_approved", "original_password", "approved_at", "created_at",
	}).AddRow(
		"off-1", nil, "juan.delacruz@barangay.gov.ph", "Juan", nil, "Dela Cruz", nil,
		"+639171234567", "Barangay Captain", "San Isidro", "Quezon City", "Metro Manila", "NCR",
		models.OfficialStatusPending, false, password, nil, time.Now(),
	)
}

func TestRegistrationService_Register(t *testing.T) {
	ctx := context.Background()

	t.Run("provisions identity, official and profile in order", func(t *testing.T) {
		db, dbMock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		provider := new(MockIdentityProvider)
		provider.On("CreateUser", mock.Anything, mock.MatchedBy(func(p identity.CreateUserParams) bool {
			return p.Email == "juan.delacruz@barangay.gov.ph" && p.EmailConfirmed
		})).Return(&identity.AuthUser{ID: "auth-1", Email: "juan.delacruz@barangay.gov.ph"}, nil)

		dbMock.ExpectExec("INSERT INTO officials").
			WillReturnResult(sqlmock.NewResult(0, 1))
		dbMock.ExpectExec("INSERT INTO profiles").
			WillReturnResult(sqlmock.NewResult(0, 1))

		service := NewRegistrationService(db, provider, nil, "https://portal.barangaylink.ph")
		assert.NoError(t, service.Register(ctx, validRegisterRequest()))

		provider.AssertExpectations(t)
		provider.AssertNotCalled(t, "DeleteUser", mock.Anything, mock.Anything)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("profile failure unwinds the official row and the identity", func(t *testing.T) {
		db, dbMock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		provider := new(MockIdentityProvider)
		provider.On("CreateUser", mock.Anything, mock.Anything).
			Return(&identity.AuthUser{ID: "auth-1"}, nil)
		provider.On("DeleteUser", mock.Anything, "auth-1").Return(nil)

		dbMock.ExpectExec("INSERT INTO officials").
			WillReturnResult(sqlmock.NewResult(0, 1))
		dbMock.ExpectExec("INSERT INTO profiles").
			WillReturnError(errors.New("duplicate key value violates unique constraint"))
		// Unwind runs newest-first: officials row first, then the identity.
		dbMock.ExpectExec("DELETE FROM officials").
			WillReturnResult(sqlmock.NewResult(0, 1))

		service := NewRegistrationService(db, provider, nil, "https://portal.barangaylink.ph")
		err = service.Register(ctx, validRegisterRequest())
		assert.Error(t, err)

		provider.AssertCalled(t, "DeleteUser", mock.Anything, "auth-1")
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("duplicate identity fails before any database write", func(t *testing.T) {
		db, dbMock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		provider := new(MockIdentityProvider)
		provider.On("CreateUser", mock.Anything, mock.Anything).
			Return(nil, identity.ErrDuplicateEmail)

		service := NewRegistrationService(db, provider, nil, "https://portal.barangaylink.ph")
		err = service.Register(ctx, validRegisterRequest())
		assert.ErrorIs(t, err, identity.ErrDuplicateEmail)

		provider.AssertNotCalled(t, "DeleteUser", mock.Anything, mock.Anything)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})
}

func TestRegistrationService_ValidateRegisterRequest(t *testing.T) {
	service := NewRegistrationService(nil, nil, nil, "")

	t.Run("names the first missing field in form order", func(t *testing.T) {
		req := validRegisterRequest()
		req.Email = ""
		req.Password = ""

		field, err := service.ValidateRegisterRequest(req)
		assert.Error(t, err)
		assert.Equal(t, "email", field)
	})

	t.Run("malformed email fails tag validation", func(t *testing.T) {
		req := validRegisterRequest()
		req.Email = "not-an-email"

		field, err := service.ValidateRegisterRequest(req)
		assert.Error(t, err)
		assert.Empty(t, field)
	})

	t.Run("complete request passes", func(t *testing.T) {
		field, err := service.ValidateRegisterRequest(validRegisterRequest())
		assert.NoError(t, err)
		assert.Empty(t, field)
	})
}

func TestRegistrationService_Approve(t *testing.T) {
	ctx := context.Background()

	expectLoadOfficial := func(mockDB sqlmock.Sqlmock, rows *sqlmock.Rows) {
		mockDB.ExpectQuery("SELECT id, user_id, email, first_name, middle_name, last_name").
			WithArgs("off-1").
			WillReturnRows(rows)
	}

	expectPersist := func(mockDB sqlmock.Sqlmock) {
		mockDB.ExpectBegin()
		mockDB.ExpectExec("INSERT INTO profiles").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mockDB.ExpectExec("UPDATE officials").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mockDB.ExpectCommit()
	}

	t.Run("creates a new identity when none exists", func(t *testing.T) {
		db, dbMock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		provider := new(MockIdentityProvider)
		provider.On("GetUserByEmail", mock.Anything, "juan.delacruz@barangay.gov.ph").
			Return(nil, identity.ErrUserNotFound)
		provider.On("CreateUser", mock.Anything, mock.MatchedBy(func(p identity.CreateUserParams) bool {
			return p.Password == "staged-pass" && p.Metadata["role"] == models.RoleOfficial
		})).Return(&identity.AuthUser{ID: "auth-9"}, nil)

		expectLoadOfficial(dbMock, pendingOfficialRows("staged-pass"))
		expectPersist(dbMock)

		mailer := newChanMailer()
		service := NewRegistrationService(db, provider, mailer, "https://portal.barangaylink.ph")

		official, err := service.Approve(ctx, "off-1")
		assert.NoError(t, err)
		assert.Equal(t, models.OfficialStatusApproved, official.Status)
		assert.True(t, official.IsApproved)
		assert.Nil(t, official.OriginalPassword)
		assert.Equal(t, "auth-9", *official.UserID)

		payload, delivered := mailer.wait(2 * time.Second)
		assert.True(t, delivered)
		assert.Equal(t, "Juan Dela Cruz", payload.OfficialName)
		assert.Contains(t, payload.ResetURL, "reset-password")

		provider.AssertExpectations(t)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("reuses an existing identity via update", func(t *testing.T) {
		db, dbMock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		provider := new(MockIdentityProvider)
		provider.On("GetUserByEmail", mock.Anything, "juan.delacruz@barangay.gov.ph").
			Return(&identity.AuthUser{ID: "auth-old"}, nil)
		provider.On("UpdateUser", mock.Anything, "auth-old", mock.Anything).
			Return(&identity.AuthUser{ID: "auth-old"}, nil)

		expectLoadOfficial(dbMock, pendingOfficialRows("staged-pass"))
		expectPersist(dbMock)

		service := NewRegistrationService(db, provider, newChanMailer(), "https://portal.barangaylink.ph")

		official, err := service.Approve(ctx, "off-1")
		assert.NoError(t, err)
		assert.Equal(t, "auth-old", *official.UserID)

		provider.AssertNotCalled(t, "CreateUser", mock.Anything, mock.Anything)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("persist failure deletes only a freshly created identity", func(t *testing.T) {
		db, dbMock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		provider := new(MockIdentityProvider)
		provider.On("GetUserByEmail", mock.Anything, mock.Anything).
			Return(nil, identity.ErrUserNotFound)
		provider.On("CreateUser", mock.Anything, mock.Anything).
			Return(&identity.AuthUser{ID: "auth-9"}, nil)
		provider.On("DeleteUser", mock.Anything, "auth-9").Return(nil)

		expectLoadOfficial(dbMock, pendingOfficialRows("staged-pass"))
		dbMock.ExpectBegin()
		dbMock.ExpectExec("INSERT INTO profiles").
			WillReturnError(errors.New("connection reset"))
		dbMock.ExpectRollback()

		mailer := newChanMailer()
		service := NewRegistrationService(db, provider, mailer, "https://portal.barangaylink.ph")

		_, err = service.Approve(ctx, "off-1")
		assert.Error(t, err)

		provider.AssertCalled(t, "DeleteUser", mock.Anything, "auth-9")
		_, delivered := mailer.wait(100 * time.Millisecond)
		assert.False(t, delivered, "no welcome email on a failed approval")
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("persist failure leaves a pre-existing identity alone", func(t *testing.T) {
		db, dbMock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		provider := new(MockIdentityProvider)
		provider.On("GetUserByEmail", mock.Anything, mock.Anything).
			Return(&identity.AuthUser{ID: "auth-old"}, nil)
		provider.On("UpdateUser", mock.Anything, "auth-old", mock.Anything).
			Return(&identity.AuthUser{ID: "auth-old"}, nil)

		expectLoadOfficial(dbMock, pendingOfficialRows("staged-pass"))
		dbMock.ExpectBegin()
		dbMock.ExpectExec("INSERT INTO profiles").
			WillReturnError(errors.New("connection reset"))
		dbMock.ExpectRollback()

		service := NewRegistrationService(db, provider, newChanMailer(), "https://portal.barangaylink.ph")

		_, err = service.Approve(ctx, "off-1")
		assert.Error(t, err)

		provider.AssertNotCalled(t, "DeleteUser", mock.Anything, mock.Anything)
	})

	t.Run("unknown official", func(t *testing.T) {
		db, dbMock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		dbMock.ExpectQuery("SELECT id, user_id, email, first_name, middle_name, last_name").
			WithArgs("ghost").
			WillReturnError(sql.ErrNoRows)

		service := NewRegistrationService(db, new(MockIdentityProvider), nil, "")
		_, err = service.Approve(ctx, "ghost")
		assert.ErrorIs(t, err, ErrOfficialNotFound)
	})

	t.Run("re-approval is rejected", func(t *testing.T) {
		db, dbMock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		rows := sqlmock.NewRows([]string{
			"id", "user_id", "email", "first_name", "middle_name", "last_name", "suffix",
			"phone_number", "position", "barangay", "municipality", "province", "region",
			"status", "is_approved", "original_password", "approved_at", "created_at",
		}).AddRow(
			"off-1", "auth-9", "juan.delacruz@barangay.gov.ph", "Juan", nil, "Dela Cruz", nil,
			"+639171234567", "Barangay Captain", "San Isidro", "Quezon City", "Metro Manila", "NCR",
			models.OfficialStatusApproved, true, nil, time.Now(), time.Now(),
		)
		expectLoadOfficial(dbMock, rows)

		provider := new(MockIdentityProvider)
		service := NewRegistrationService(db, provider, nil, "")

		_, err = service.Approve(ctx, "off-1")
		assert.ErrorIs(t, err, ErrAlreadyApproved)
		provider.AssertNotCalled(t, "CreateUser", mock.Anything, mock.Anything)
	})

	t.Run("missing staged password is rejected", func(t *testing.T) {
		db, dbMock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		expectLoadOfficial(dbMock, pendingOfficialRows(nil))

		service := NewRegistrationService(db, new(MockIdentityProvider), nil, "")
		_, err = service.Approve(ctx, "off-1")
		assert.ErrorIs(t, err, ErrNoStagedPassword)
	})
}
