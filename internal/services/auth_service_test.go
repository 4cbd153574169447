package services

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-redis/redismock/v8"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/barangaylink/backend/internal/identity"
	"github.com/barangaylink/backend/internal/vault"
)

func profileLookupRows(role string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "email", "first_name", "last_name", "role", "barangay"}).
		AddRow("user-1", testEmail, "Juan", "Dela Cruz", role, "San Isidro")
}

func loginBody(t *testing.T, device *vault.DeviceInfo) *bytes.Reader {
	t.Helper()
	body, err := json.Marshal(LoginRequest{
		Email:    testEmail,
		Password: "hunter2secret",
		Device:   device,
	})
	assert.NoError(t, err)
	return bytes.NewReader(body)
}

func TestAuthService_Login(t *testing.T) {
	t.Run("valid credentials mint a session", func(t *testing.T) {
		db, dbMock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		redisClient, redisMock := redismock.NewClientMock()

		provider := new(MockIdentityProvider)
		provider.On("VerifyPassword", mock.Anything, testEmail, "hunter2secret").
			Return(&identity.AuthUser{ID: "user-1", Email: testEmail}, nil)

		dbMock.ExpectQuery("SELECT id, email, first_name, last_name, role, barangay").
			WithArgs("user-1").
			WillReturnRows(profileLookupRows("official"))

		redisMock.Regexp().ExpectSet(`session:refresh:.+`, `.+`, 30*24*time.Hour).SetVal("OK")

		sessions := NewSessionService(redisClient)
		resolver := NewRoleResolver(db, nil)
		service := NewAuthService(db, provider, sessions, resolver, vault.NewMemoryStore())

		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", loginBody(t, nil))
		rec := httptest.NewRecorder()
		service.Login(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		var resp struct {
			Success bool         `json:"success"`
			Session Session      `json:"session"`
			User    AuthUserInfo `json:"user"`
		}
		assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.True(t, resp.Success)
		assert.NotEmpty(t, resp.Session.AccessToken)
		assert.NotEmpty(t, resp.Session.RefreshToken)
		assert.Equal(t, "official", resp.User.Role)
		assert.Equal(t, "San Isidro", resp.User.Barangay)
	})

	t.Run("device attributes seed the credential vault", func(t *testing.T) {
		db, dbMock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		redisClient, redisMock := redismock.NewClientMock()

		provider := new(MockIdentityProvider)
		provider.On("VerifyPassword", mock.Anything, testEmail, "hunter2secret").
			Return(&identity.AuthUser{ID: "user-1", Email: testEmail}, nil)

		dbMock.ExpectQuery("SELECT id, email, first_name, last_name, role, barangay").
			WillReturnRows(profileLookupRows("official"))
		redisMock.Regexp().ExpectSet(`session:refresh:.+`, `.+`, 30*24*time.Hour).SetVal("OK")

		store := vault.NewMemoryStore()
		device := vault.DeviceInfo{
			UserAgent:      "Mozilla/5.0 (Linux; Android 14)",
			Language:       "fil-PH",
			ScreenSize:     "412x915",
			TimezoneOffset: -480,
		}
		sessions := NewSessionService(redisClient)
		service := NewAuthService(db, provider, sessions, NewRoleResolver(db, nil), store)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", loginBody(t, &device))
		rec := httptest.NewRecorder()
		service.Login(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)

		v := vault.New(store, device)
		bundle := v.Retrieve(context.Background())
		assert.NotNil(t, bundle)
		assert.Equal(t, testEmail, bundle.Email)
		password, err := v.Password(bundle)
		assert.NoError(t, err)
		assert.Equal(t, "hunter2secret", password)
		assert.NotEmpty(t, v.RefreshToken(context.Background(), "user-1"))
	})

	t.Run("login reconciles a stale resident role", func(t *testing.T) {
		db, dbMock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		redisClient, redisMock := redismock.NewClientMock()

		provider := new(MockIdentityProvider)
		provider.On("VerifyPassword", mock.Anything, testEmail, "hunter2secret").
			Return(&identity.AuthUser{ID: "user-1", Email: testEmail}, nil)

		dbMock.ExpectQuery("SELECT id, email, first_name, last_name, role, barangay").
			WillReturnRows(profileLookupRows("resident"))
		dbMock.ExpectQuery("SELECT EXISTS").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
		dbMock.ExpectQuery("UPDATE profiles SET role = \\$1").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("user-1"))

		redisMock.Regexp().ExpectSet(`session:refresh:.+`, `.+`, 30*24*time.Hour).SetVal("OK")

		sessions := NewSessionService(redisClient)
		service := NewAuthService(db, provider, sessions, NewRoleResolver(db, nil), vault.NewMemoryStore())

		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", loginBody(t, nil))
		rec := httptest.NewRecorder()
		service.Login(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		var resp struct {
			User AuthUserInfo `json:"user"`
		}
		assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "official", resp.User.Role)
	})

	t.Run("invalid credentials yield a 401", func(t *testing.T) {
		db, _, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		provider := new(MockIdentityProvider)
		provider.On("VerifyPassword", mock.Anything, testEmail, "hunter2secret").
			Return(nil, identity.ErrInvalidCredentials)

		service := NewAuthService(db, provider, NewSessionService(nil), NewRoleResolver(db, nil), vault.NewMemoryStore())

		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", loginBody(t, nil))
		rec := httptest.NewRecorder()
		service.Login(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("validation failure names the offending fields", func(t *testing.T) {
		db, _, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := NewAuthService(db, new(MockIdentityProvider), NewSessionService(nil), NewRoleResolver(db, nil), vault.NewMemoryStore())

		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login",
			bytes.NewReader([]byte(`{"email":"not-an-email","password":"short"}`)))
		rec := httptest.NewRecorder()
		service.Login(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		var resp ErrorResponse
		assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.False(t, resp.Success)
		assert.NotEmpty(t, resp.Details)
	})
}

func TestAuthService_Logout(t *testing.T) {
	db, _, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	viper.Set("jwt.expiry_hours", 24)

	redisClient, redisMock := redismock.NewClientMock()
	sessions := NewSessionService(redisClient)
	service := NewAuthService(db, new(MockIdentityProvider), sessions, NewRoleResolver(db, nil), vault.NewMemoryStore())

	redisMock.ExpectSet("blacklist:access-jwt", "1", 24*time.Hour).SetVal("OK")
	redisMock.ExpectDel("session:refresh:refresh-tok").SetVal(1)

	body := bytes.NewReader([]byte(`{"refresh_token":"refresh-tok"}`))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", body)
	req.Header.Set("Authorization", "Bearer access-jwt")
	rec := httptest.NewRecorder()

	service.Logout(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NoError(t, redisMock.ExpectationsWereMet())
}
