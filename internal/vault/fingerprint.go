package vault

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// DeviceInfo carries the client-reported environment attributes a device
// fingerprint is derived from.
type DeviceInfo struct {
	UserAgent      string `json:"userAgent"`
	Language       string `json:"language"`
	ScreenSize     string `json:"screenSize"` // e.g. "1920x1080"
	TimezoneOffset int    `json:"timezoneOffset"`
	CanvasHash     string `json:"canvasHash"` // empty when canvas rendering failed
}

// ComputeFingerprint derives a stable per-device identifier, truncated to
// maxLen hex characters. When the canvas hash is unavailable it falls back to
// a shorter hash of the user agent alone. It never fails.
func ComputeFingerprint(info DeviceInfo, maxLen int) string {
	if info.CanvasHash == "" {
		sum := sha256.Sum256([]byte(info.UserAgent))
		return truncate(hex.EncodeToString(sum[:]), 16)
	}

	seed := fmt.Sprintf("%s|%s|%s|%d|%s",
		info.UserAgent, info.Language, info.ScreenSize, info.TimezoneOffset, info.CanvasHash)
	sum := sha256.Sum256([]byte(seed))
	return truncate(hex.EncodeToString(sum[:]), maxLen)
}

func truncate(s string, n int) string {
	if n <= 0 || n >= len(s) {
		return s
	}
	return s[:n]
}
