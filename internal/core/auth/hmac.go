package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// keyPrefix versions the key format: qk-v1-<64 hex chars>.
const keyPrefix = "qk-v1-"

// MinSecretBytes is the shortest accepted HMAC secret.
const MinSecretBytes = 32

// ParseAPIKey validates the key format and returns its random part.
func ParseAPIKey(key string) (string, error) {
	random, ok := strings.CutPrefix(key, keyPrefix)
	if !ok || len(random) != 64 {
		return "", ErrInvalidKeyFormat
	}
	for _, c := range random {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return "", ErrInvalidKeyFormat
		}
	}
	return random, nil
}

// GenerateAPIKey returns a new random key. It is shown once and only its
// HMAC is stored.
func GenerateAPIKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate api key: %w", err)
	}
	return FormatAPIKey(hex.EncodeToString(buf)), nil
}

// FormatAPIKey constructs a key from its random part.
func FormatAPIKey(random string) string {
	return keyPrefix + random
}

// ParseSecret decodes a hex HMAC secret of at least MinSecretBytes.
func ParseSecret(s string) ([]byte, error) {
	secret, err := hex.DecodeString(s)
	if err != nil || len(secret) < MinSecretBytes {
		return nil, ErrWeakSecret
	}
	return secret, nil
}

// ComputeHMAC computes the HMAC-SHA256 of apiKey using secret.
func ComputeHMAC(secret []byte, apiKey string) []byte {
	h := hmac.New(sha256.New, secret)
	h.Write([]byte(apiKey))
	return h.Sum(nil)
}

// HashKey is the hex HMAC stored for apiKey.
func HashKey(secret []byte, apiKey string) string {
	return hex.EncodeToString(ComputeHMAC(secret, apiKey))
}
