package vault

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/barangaylink/backend/internal/config"
)

const (
	credsKeyPrefix        = "mpin_creds_"
	refreshTokenKeyPrefix = "refresh_token_"
)

// CredentialBundle is the per-device credential shortcut that lets MPIN login
// re-authenticate without the full password prompt.
type CredentialBundle struct {
	Email             string    `json:"email"`
	UserID            string    `json:"userId"`
	EncryptedPassword string    `json:"encryptedPassword"`
	LastLoginTime     time.Time `json:"lastLoginTime"`
}

// Vault stores one credential bundle per device fingerprint plus the refresh
// token needed to mint a new session. The password transform is reversible
// obfuscation keyed by the fingerprint, not cryptographic protection; the
// secret that actually gates login is the server-verified MPIN.
type Vault struct {
	store       Store
	fingerprint string
	bundleTTL   time.Duration
}

func New(store Store, device DeviceInfo) *Vault {
	cfg := config.LoadVaultConfig()
	return &Vault{
		store:       store,
		fingerprint: ComputeFingerprint(device, cfg.FingerprintLength),
		bundleTTL:   cfg.BundleTTL,
	}
}

// Fingerprint returns the device fingerprint this vault is scoped to.
func (v *Vault) Fingerprint() string {
	return v.fingerprint
}

// Store writes the credential bundle for this device, overwriting any prior
// bundle, and records the refresh token when one is provided.
func (v *Vault) Store(ctx context.Context, email, userID, password, refreshToken string) error {
	bundle := CredentialBundle{
		Email:             email,
		UserID:            userID,
		EncryptedPassword: v.obfuscate(password),
		LastLoginTime:     time.Now(),
	}

	raw, err := json.Marshal(bundle)
	if err != nil {
		return fmt.Errorf("encode credential bundle: %w", err)
	}

	if err := v.store.Set(ctx, credsKeyPrefix+v.fingerprint, string(raw)); err != nil {
		return fmt.Errorf("store credential bundle: %w", err)
	}

	if refreshToken != "" {
		if err := v.store.Set(ctx, refreshTokenKeyPrefix+userID, refreshToken); err != nil {
			return fmt.Errorf("store refresh token: %w", err)
		}
	}

	return nil
}

// Retrieve returns the bundle for this device, or nil when absent, corrupt or
// older than the bundle TTL. Stale bundles are left in place (lazy expiry).
func (v *Vault) Retrieve(ctx context.Context) *CredentialBundle {
	raw, err := v.store.Get(ctx, credsKeyPrefix+v.fingerprint)
	if err != nil {
		return nil
	}

	var bundle CredentialBundle
	if err := json.Unmarshal([]byte(raw), &bundle); err != nil {
		log.Printf("[VAULT] Discarding undecodable credential bundle: %v", err)
		return nil
	}

	if time.Since(bundle.LastLoginTime) >= v.bundleTTL {
		return nil
	}

	return &bundle
}

// Password reverses the bundle's obfuscated password.
func (v *Vault) Password(bundle *CredentialBundle) (string, error) {
	return v.deobfuscate(bundle.EncryptedPassword)
}

// RefreshToken returns the stored refresh token for the user, or "" when none.
func (v *Vault) RefreshToken(ctx context.Context, userID string) string {
	token, err := v.store.Get(ctx, refreshTokenKeyPrefix+userID)
	if err != nil {
		return ""
	}
	return token
}

// StoreRefreshToken records a rotated refresh token for the user.
func (v *Vault) StoreRefreshToken(ctx context.Context, userID, token string) error {
	return v.store.Set(ctx, refreshTokenKeyPrefix+userID, token)
}

// Clear deletes the bundle for this device. The refresh token is left alone;
// call PurgeAll when fully logging the user out.
func (v *Vault) Clear(ctx context.Context) error {
	return v.store.Delete(ctx, credsKeyPrefix+v.fingerprint)
}

// PurgeAll removes the bundle and the refresh token together. Required when
// the server rejects the refresh token: neither half may survive alone.
func (v *Vault) PurgeAll(ctx context.Context, userID string) error {
	if err := v.store.Delete(ctx, credsKeyPrefix+v.fingerprint); err != nil {
		return err
	}
	return v.store.Delete(ctx, refreshTokenKeyPrefix+userID)
}

func (v *Vault) keystream(n int) []byte {
	key := make([]byte, 0, n)
	block := sha256.Sum256([]byte(v.fingerprint))
	for len(key) < n {
		key = append(key, block[:]...)
		block = sha256.Sum256(block[:])
	}
	return key[:n]
}

func (v *Vault) obfuscate(plaintext string) string {
	data := []byte(plaintext)
	key := v.keystream(len(data))
	for i := range data {
		data[i] ^= key[i]
	}
	return base64.StdEncoding.EncodeToString(data)
}

func (v *Vault) deobfuscate(encoded string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("decode stored password: %w", err)
	}
	key := v.keystream(len(data))
	for i := range data {
		data[i] ^= key[i]
	}
	return string(data), nil
}
