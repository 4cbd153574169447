package services

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"math/big"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/barangaylink/backend/internal/config"
)

var (
	// ErrOTPNotFound covers both "never issued" and "already consumed"; the
	// caller cannot distinguish the two.
	ErrOTPNotFound         = errors.New("invalid or expired OTP")
	ErrOTPExpired          = errors.New("OTP has expired")
	ErrOTPAttemptsExceeded = errors.New("maximum verification attempts exceeded")
	ErrOTPRateLimited      = errors.New("too many OTP requests for this number")
)

// InvalidOTPError reports a code mismatch along with how many attempts remain.
// The failed attempt is durably recorded before this error is returned.
type InvalidOTPError struct {
	RemainingAttempts int
}

func (e *InvalidOTPError) Error() string {
	return fmt.Sprintf("invalid OTP code, %d attempts remaining", e.RemainingAttempts)
}

// SMSSender dispatches the one-time code out of band.
type SMSSender interface {
	SendOTP(ctx context.Context, phoneNumber, code string) error
}

// LogSMSSender is the fallback when no SMS gateway is configured.
type LogSMSSender struct{}

func (LogSMSSender) SendOTP(_ context.Context, phoneNumber, code string) error {
	log.Printf("[OTP] SMS gateway not configured; code for %s: %s", phoneNumber, code)
	return nil
}

// OTPVerification is the successful outcome of a verification check.
type OTPVerification struct {
	PhoneNumber string
	UserRole    string
}

type OTPService struct {
	db     *sql.DB
	redis  *redis.Client
	config *config.OTPConfig
	sender SMSSender
}

func NewOTPService(db *sql.DB, redisClient *redis.Client, sender SMSSender) *OTPService {
	if sender == nil {
		sender = LogSMSSender{}
	}
	return &OTPService{
		db:     db,
		redis:  redisClient,
		config: config.LoadOTPConfig(),
		sender: sender,
	}
}

// Issue creates and dispatches a fresh OTP for the phone number, invalidating
// any previous unverified code for the same number.
func (s *OTPService) Issue(ctx context.Context, phoneNumber, userRole string) (time.Duration, error) {
	phoneNumber = normalizePhone(phoneNumber)

	if err := s.checkRateLimit(ctx, phoneNumber); err != nil {
		return 0, err
	}

	code := s.generateCode()
	expiresAt := time.Now().Add(s.config.CodeTimeout)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin OTP issue: %w", err)
	}
	defer tx.Rollback()

	// A number has at most one live unverified code.
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM otp_records
		WHERE phone_number = $1 AND is_verified = false
	`, phoneNumber); err != nil {
		return 0, fmt.Errorf("invalidate previous OTP: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO otp_records (id, phone_number, otp_code, expires_at, attempts, max_attempts, is_verified, user_role, created_at)
		VALUES ($1, $2, $3, $4, 0, $5, false, $6, $7)
	`, uuid.NewString(), phoneNumber, code, expiresAt, s.config.MaxAttempts, userRole, time.Now()); err != nil {
		return 0, fmt.Errorf("store OTP: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit OTP issue: %w", err)
	}

	s.incrementRateLimit(ctx, phoneNumber)

	if err := s.sender.SendOTP(ctx, phoneNumber, code); err != nil {
		return 0, fmt.Errorf("dispatch OTP: %w", err)
	}

	log.Printf("[OTP] Code issued for %s, expires %v", phoneNumber, expiresAt)
	return s.config.CodeTimeout, nil
}

// Verify checks a submitted code against the live record for the number.
// Expiry and the attempt limit are always evaluated before the code itself,
// and every failed comparison is recorded before the response goes out.
func (s *OTPService) Verify(ctx context.Context, phoneNumber, code string) (*OTPVerification, error) {
	phoneNumber = normalizePhone(phoneNumber)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin OTP verify: %w", err)
	}
	defer tx.Rollback()

	var (
		id          string
		storedCode  string
		expiresAt   time.Time
		attempts    int
		maxAttempts int
		userRole    string
	)
	err = tx.QueryRowContext(ctx, `
		SELECT id, otp_code, expires_at, attempts, max_attempts, user_role
		FROM otp_records
		WHERE phone_number = $1 AND is_verified = false
		ORDER BY created_at DESC
		LIMIT 1
		FOR UPDATE
	`, phoneNumber).Scan(&id, &storedCode, &expiresAt, &attempts, &maxAttempts, &userRole)

	if err == sql.ErrNoRows {
		return nil, ErrOTPNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load OTP record: %w", err)
	}

	if time.Now().After(expiresAt) {
		// Record left as-is; a fresh OTP must be issued.
		return nil, ErrOTPExpired
	}

	if attempts >= maxAttempts {
		return nil, ErrOTPAttemptsExceeded
	}

	if code != storedCode {
		if _, err := tx.ExecContext(ctx, `
			UPDATE otp_records SET attempts = attempts + 1 WHERE id = $1
		`, id); err != nil {
			return nil, fmt.Errorf("record failed attempt: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("commit failed attempt: %w", err)
		}
		return nil, &InvalidOTPError{RemainingAttempts: maxAttempts - attempts - 1}
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE otp_records SET is_verified = true WHERE id = $1
	`, id); err != nil {
		return nil, fmt.Errorf("mark OTP verified: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit OTP verify: %w", err)
	}

	log.Printf("[OTP] Verified successfully for %s", phoneNumber)
	return &OTPVerification{PhoneNumber: phoneNumber, UserRole: userRole}, nil
}

func (s *OTPService) generateCode() string {
	const charset = "0123456789"
	code := make([]byte, s.config.CodeLength)
	charsetLen := big.NewInt(int64(len(charset)))
	for i := range code {
		n, _ := rand.Int(rand.Reader, charsetLen)
		code[i] = charset[n.Int64()]
	}
	return string(code)
}

func (s *OTPService) checkRateLimit(ctx context.Context, phoneNumber string) error {
	if s.redis == nil {
		return nil
	}
	key := fmt.Sprintf("otp:ratelimit:%s", phoneNumber)
	count, err := s.redis.Get(ctx, key).Int()
	if err != nil && err != redis.Nil {
		return err
	}
	if count >= s.config.MaxSendPerPhone {
		return ErrOTPRateLimited
	}
	return nil
}

func (s *OTPService) incrementRateLimit(ctx context.Context, phoneNumber string) {
	if s.redis == nil {
		return
	}
	key := fmt.Sprintf("otp:ratelimit:%s", phoneNumber)
	pipe := s.redis.Pipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, s.config.RateLimitWindow)
	pipe.Exec(ctx)
}

func normalizePhone(phoneNumber string) string {
	return strings.Join(strings.Fields(phoneNumber), "")
}
