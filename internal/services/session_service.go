package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	cryptorand "crypto/rand"

	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/viper"
)

// ErrRefreshRejected is returned when a refresh token is unknown, expired or
// already consumed. Callers must treat the whole local credential state as
// invalid and force a full login.
var ErrRefreshRejected = errors.New("refresh token rejected")

const refreshKeyPrefix = "session:refresh:"

// Session is the token pair handed to clients after authentication.
type Session struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	TokenType    string `json:"tokenType"`
	ExpiresIn    int64  `json:"expiresIn"` // access token lifetime in seconds
}

type sessionSubject struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	Role   string `json:"role"`
}

// SessionService mints JWT access tokens and manages the server-side refresh
// token chain in Redis. Refresh tokens are opaque and single-use: every
// exchange rotates the token.
type SessionService struct {
	redis *redis.Client
}

func NewSessionService(redisClient *redis.Client) *SessionService {
	return &SessionService{redis: redisClient}
}

// Issue creates a fresh session for the user.
func (s *SessionService) Issue(ctx context.Context, userID, email, role string) (*Session, error) {
	accessToken, expiresIn, err := generateAccessToken(userID, email, role)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	refreshToken, err := s.storeRefreshToken(ctx, sessionSubject{UserID: userID, Email: email, Role: role})
	if err != nil {
		return nil, err
	}

	return &Session{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "bearer",
		ExpiresIn:    expiresIn,
	}, nil
}

// Exchange consumes a refresh token and returns a new session. The presented
// token is deleted before the replacement is issued, so a revoked or replayed
// token always fails with ErrRefreshRejected.
func (s *SessionService) Exchange(ctx context.Context, refreshToken string) (*Session, error) {
	if s.redis == nil {
		return nil, ErrRefreshRejected
	}

	key := refreshKeyPrefix + refreshToken
	raw, err := s.redis.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, ErrRefreshRejected
	}
	if err != nil {
		return nil, fmt.Errorf("load refresh token: %w", err)
	}

	if err := s.redis.Del(ctx, key).Err(); err != nil {
		return nil, fmt.Errorf("rotate refresh token: %w", err)
	}

	var subject sessionSubject
	if err := json.Unmarshal([]byte(raw), &subject); err != nil {
		log.Printf("[AUTH] Discarding undecodable refresh token record: %v", err)
		return nil, ErrRefreshRejected
	}

	return s.Issue(ctx, subject.UserID, subject.Email, subject.Role)
}

// Revoke invalidates a refresh token, e.g. on logout.
func (s *SessionService) Revoke(ctx context.Context, refreshToken string) error {
	if s.redis == nil || refreshToken == "" {
		return nil
	}
	return s.redis.Del(ctx, refreshKeyPrefix+refreshToken).Err()
}

// BlacklistAccessToken blocks an access token until its natural expiry.
func (s *SessionService) BlacklistAccessToken(ctx context.Context, token string) {
	if s.redis == nil || token == "" {
		return
	}
	key := fmt.Sprintf("blacklist:%s", token)
	expiry := time.Duration(viper.GetInt("jwt.expiry_hours")) * time.Hour
	if err := s.redis.Set(ctx, key, "1", expiry).Err(); err != nil {
		log.Printf("[AUTH] Failed to blacklist token: %v", err)
	}
}

func (s *SessionService) storeRefreshToken(ctx context.Context, subject sessionSubject) (string, error) {
	if s.redis == nil {
		return "", errors.New("session store unavailable")
	}

	viper.SetDefault("jwt.refresh_expiry_days", 30)

	token := generateOpaqueToken()
	raw, err := json.Marshal(subject)
	if err != nil {
		return "", fmt.Errorf("encode refresh record: %w", err)
	}

	ttl := time.Duration(viper.GetInt("jwt.refresh_expiry_days")) * 24 * time.Hour
	if err := s.redis.Set(ctx, refreshKeyPrefix+token, raw, ttl).Err(); err != nil {
		return "", fmt.Errorf("store refresh token: %w", err)
	}
	return token, nil
}

func generateAccessToken(userID, email, role string) (string, int64, error) {
	viper.SetDefault("jwt.expiry_hours", 24)

	expiry := time.Duration(viper.GetInt("jwt.expiry_hours")) * time.Hour
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"email":   email,
		"role":    role,
		"exp":     time.Now().Add(expiry).Unix(),
	})

	signed, err := token.SignedString([]byte(viper.GetString("jwt.secret_key")))
	if err != nil {
		return "", 0, err
	}
	return signed, int64(expiry.Seconds()), nil
}

func generateOpaqueToken() string {
	b := make([]byte, 32)
	cryptorand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}
