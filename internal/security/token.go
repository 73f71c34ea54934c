package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Actions that require a token on the admin API.
const (
	ActionClear     = "clear"
	ActionRetention = "retention"
)

// GenerateToken creates a short-lived token authorizing action.
// expirationDuration should be a positive duration.
func GenerateToken(secret, action string, expirationDuration time.Duration) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("secret cannot be empty")
	}
	if expirationDuration <= 0 {
		return "", fmt.Errorf("expirationDuration must be positive")
	}

	expiresAt := time.Now().Add(expirationDuration).Unix()

	// Return the token as expiresAt:signature
	return fmt.Sprintf("%d:%s", expiresAt, sign(secret, action, expiresAt)), nil
}

// ValidateToken checks that token was issued for action and has not expired.
func ValidateToken(secret, action, token string) (bool, error) {
	if secret == "" {
		return false, fmt.Errorf("secret cannot be empty")
	}

	var expiresAt int64
	var signature string
	_, err := fmt.Sscanf(token, "%d:%s", &expiresAt, &signature)
	if err != nil {
		return false, fmt.Errorf("invalid token format: %w", err)
	}

	expirationTime := time.Unix(expiresAt, 0)
	if time.Now().After(expirationTime) {
		return false, fmt.Errorf("token has expired (expired at %s)", expirationTime.Format(time.RFC3339))
	}

	if !hmac.Equal([]byte(signature), []byte(sign(secret, action, expiresAt))) {
		return false, nil
	}
	return true, nil
}

// sign binds the action and the expiry to the secret.
func sign(secret, action string, expiresAt int64) string {
	h := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(h, "%s:%d", action, expiresAt)
	return hex.EncodeToString(h.Sum(nil))
}
