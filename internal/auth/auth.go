package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Token format: cf_<keyid>_<secret>. The key ID is stored in clear for
// lookup; only a bcrypt hash of the secret is persisted.
const tokenPrefix = "cf"

// GenerateKey produces a new API key: its lookup ID, the plaintext secret,
// and the full token handed to the user exactly once.
func GenerateKey() (keyID, secret, token string, err error) {
	idBytes := make([]byte, 6)
	if _, err := rand.Read(idBytes); err != nil {
		return "", "", "", fmt.Errorf("generate key id: %w", err)
	}
	secretBytes := make([]byte, 24)
	if _, err := rand.Read(secretBytes); err != nil {
		return "", "", "", fmt.Errorf("generate key secret: %w", err)
	}

	keyID = hex.EncodeToString(idBytes)
	secret = hex.EncodeToString(secretBytes)
	return keyID, secret, tokenPrefix + "_" + keyID + "_" + secret, nil
}

// ParseToken splits a presented token into its key ID and secret.
func ParseToken(token string) (keyID, secret string, err error) {
	parts := strings.SplitN(strings.TrimSpace(token), "_", 3)
	if len(parts) != 3 || parts[0] != tokenPrefix || parts[1] == "" || parts[2] == "" {
		return "", "", fmt.Errorf("malformed API token")
	}
	return parts[1], parts[2], nil
}

// HashSecret hashes an API key secret using bcrypt with the default cost.
func HashSecret(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash secret: %w", err)
	}
	return string(hash), nil
}

// CheckSecret compares a bcrypt hash with a presented plaintext secret.
func CheckSecret(hash, secret string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret))
}
