package config

import (
	"os"
	"strconv"
	"time"
)

type OTPConfig struct {
	CodeLength      int
	CodeTimeout     time.Duration
	MaxAttempts     int
	MaxSendPerPhone int
	RateLimitWindow time.Duration
}

type MPINConfig struct {
	MinLength    int
	MaxAttempts  int
	LockDuration time.Duration
}

type VaultConfig struct {
	BundleTTL         time.Duration
	FingerprintLength int
}

func LoadOTPConfig() *OTPConfig {
	return &OTPConfig{
		CodeLength:      getEnvAsInt("OTP_CODE_LENGTH", 6),
		CodeTimeout:     getEnvAsDuration("OTP_CODE_TIMEOUT", 5*time.Minute),
		MaxAttempts:     getEnvAsInt("OTP_MAX_ATTEMPTS", 3),
		MaxSendPerPhone: getEnvAsInt("OTP_MAX_SEND_PER_PHONE", 5),
		RateLimitWindow: getEnvAsDuration("OTP_RATE_LIMIT_WINDOW", 1*time.Hour),
	}
}

func LoadMPINConfig() *MPINConfig {
	return &MPINConfig{
		MinLength:    getEnvAsInt("MPIN_MIN_LENGTH", 4),
		MaxAttempts:  getEnvAsInt("MPIN_MAX_ATTEMPTS", 5),
		LockDuration: getEnvAsDuration("MPIN_LOCK_DURATION", 30*time.Minute),
	}
}

func LoadVaultConfig() *VaultConfig {
	return &VaultConfig{
		BundleTTL:         getEnvAsDuration("VAULT_BUNDLE_TTL", 7*24*time.Hour),
		FingerprintLength: getEnvAsInt("VAULT_FINGERPRINT_LENGTH", 32),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			return duration
		}
	}
	return defaultVal
}
