package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"

	"github.com/barangaylink/backend/internal/services"
)

const testPhone = "+639171234567"

func postJSON(t *testing.T, handler http.HandlerFunc, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	assert.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestOTPHandler_Send(t *testing.T) {
	t.Run("issues a code and reports its lifetime", func(t *testing.T) {
		db, dbMock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		redisClient, redisMock := redismock.NewClientMock()
		handler := NewOTPHandler(services.NewOTPService(db, redisClient, nil))

		redisMock.ExpectGet("otp:ratelimit:" + testPhone).RedisNil()
		dbMock.ExpectBegin()
		dbMock.ExpectExec("DELETE FROM otp_records").WillReturnResult(sqlmock.NewResult(0, 0))
		dbMock.ExpectExec("INSERT INTO otp_records").WillReturnResult(sqlmock.NewResult(0, 1))
		dbMock.ExpectCommit()
		redisMock.ExpectIncr("otp:ratelimit:" + testPhone).SetVal(1)
		redisMock.ExpectExpire("otp:ratelimit:"+testPhone, time.Hour).SetVal(true)

		rec := postJSON(t, handler.Send, "/api/v1/auth/otp/send", map[string]string{
			"phoneNumber": testPhone,
			"userRole":    "resident",
		})

		assert.Equal(t, http.StatusOK, rec.Code)
		var resp map[string]any
		assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, true, resp["success"])
		assert.EqualValues(t, 300, resp["expiresIn"])
	})

	t.Run("rate limited number gets a 429", func(t *testing.T) {
		db, _, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		redisClient, redisMock := redismock.NewClientMock()
		handler := NewOTPHandler(services.NewOTPService(db, redisClient, nil))

		redisMock.ExpectGet("otp:ratelimit:" + testPhone).SetVal("5")

		rec := postJSON(t, handler.Send, "/api/v1/auth/otp/send", map[string]string{
			"phoneNumber": testPhone,
		})
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	})

	t.Run("unknown role is rejected", func(t *testing.T) {
		db, _, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		handler := NewOTPHandler(services.NewOTPService(db, nil, nil))

		rec := postJSON(t, handler.Send, "/api/v1/auth/otp/send", map[string]string{
			"phoneNumber": testPhone,
			"userRole":    "mayor",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestOTPHandler_Verify(t *testing.T) {
	verifyColumns := []string{"id", "otp_code", "expires_at", "attempts", "max_attempts", "user_role"}

	t.Run("wrong code reports the remaining attempts", func(t *testing.T) {
		db, dbMock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		handler := NewOTPHandler(services.NewOTPService(db, nil, nil))

		dbMock.ExpectBegin()
		dbMock.ExpectQuery("SELECT id, otp_code, expires_at, attempts, max_attempts, user_role").
			WillReturnRows(sqlmock.NewRows(verifyColumns).
				AddRow("otp-1", "123456", time.Now().Add(5*time.Minute), 0, 3, "resident"))
		dbMock.ExpectExec("UPDATE otp_records SET attempts = attempts \\+ 1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		dbMock.ExpectCommit()

		rec := postJSON(t, handler.Verify, "/api/v1/auth/otp/verify", map[string]string{
			"phoneNumber": testPhone,
			"otpCode":     "000000",
		})

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		var resp map[string]any
		assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "invalid_code", resp["error"])
		assert.EqualValues(t, 2, resp["remainingAttempts"])
	})

	t.Run("expired code", func(t *testing.T) {
		db, dbMock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		handler := NewOTPHandler(services.NewOTPService(db, nil, nil))

		dbMock.ExpectBegin()
		dbMock.ExpectQuery("SELECT id, otp_code, expires_at, attempts, max_attempts, user_role").
			WillReturnRows(sqlmock.NewRows(verifyColumns).
				AddRow("otp-1", "123456", time.Now().Add(-time.Minute), 0, 3, "resident"))
		dbMock.ExpectRollback()

		rec := postJSON(t, handler.Verify, "/api/v1/auth/otp/verify", map[string]string{
			"phoneNumber": testPhone,
			"otpCode":     "123456",
		})

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		var resp map[string]any
		assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "expired", resp["error"])
	})

	t.Run("successful verification echoes the stored role", func(t *testing.T) {
		db, dbMock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		handler := NewOTPHandler(services.NewOTPService(db, nil, nil))

		dbMock.ExpectBegin()
		dbMock.ExpectQuery("SELECT id, otp_code, expires_at, attempts, max_attempts, user_role").
			WillReturnRows(sqlmock.NewRows(verifyColumns).
				AddRow("otp-1", "123456", time.Now().Add(5*time.Minute), 0, 3, "official"))
		dbMock.ExpectExec("UPDATE otp_records SET is_verified = true").
			WillReturnResult(sqlmock.NewResult(0, 1))
		dbMock.ExpectCommit()

		rec := postJSON(t, handler.Verify, "/api/v1/auth/otp/verify", map[string]string{
			"phoneNumber": testPhone,
			"otpCode":     "123456",
		})

		assert.Equal(t, http.StatusOK, rec.Code)
		var resp map[string]any
		assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, true, resp["success"])
		assert.Equal(t, "official", resp["userRole"])
		assert.Equal(t, testPhone, resp["phoneNumber"])
	})

	t.Run("non-numeric code fails validation", func(t *testing.T) {
		db, _, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		handler := NewOTPHandler(services.NewOTPService(db, nil, nil))

		rec := postJSON(t, handler.Verify, "/api/v1/auth/otp/verify", map[string]string{
			"phoneNumber": testPhone,
			"otpCode":     "abcdef",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
