package types

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewBundleID generates a UUIDv7 bundle identifier.
// Time-ordered IDs keep stored bundles clustered by creation time.
// Panics on clock regression (uuid.Must); acceptable for ID generation.
func NewBundleID() BundleID {
	return BundleID(uuid.Must(uuid.NewV7()).String())
}

// NewAPIKeyID generates a UUIDv7 API key identifier.
func NewAPIKeyID() APIKeyID {
	return APIKeyID(uuid.Must(uuid.NewV7()).String())
}

// ParseBundleID validates and converts a string to BundleID.
func ParseBundleID(s string) (BundleID, error) {
	_, err := uuid.Parse(s)
	if err != nil {
		return "", err
	}
	return BundleID(s), nil
}

// BundleIDTime extracts the timestamp embedded in a UUIDv7 ID.
// Returns zero time for invalid UUIDs; caller should check IsZero().
func BundleIDTime(id BundleID) time.Time {
	u, err := uuid.Parse(string(id))
	if err != nil {
		return time.Time{}
	}
	sec, nsec := u.Time().UnixTime()
	return time.Unix(sec, nsec)
}

// ParseResourceID validates a dotted hierarchical resource key.
// Segments are non-empty runs of letters, digits, '_' or '-'.
func ParseResourceID(s string) (ResourceID, error) {
	if s == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidResourceID)
	}
	if len(s) > MaxResourceIDLength {
		return "", fmt.Errorf("%w: %q longer than %d", ErrInvalidResourceID, s, MaxResourceIDLength)
	}
	segments := strings.Split(s, ".")
	if len(segments) > MaxResourceIDDepth {
		return "", fmt.Errorf("%w: %q deeper than %d", ErrInvalidResourceID, s, MaxResourceIDDepth)
	}
	for _, seg := range segments {
		if seg == "" {
			return "", fmt.Errorf("%w: %q has an empty segment", ErrInvalidResourceID, s)
		}
		for _, c := range seg {
			if !isIDChar(c) {
				return "", fmt.Errorf("%w: %q contains %q", ErrInvalidResourceID, s, c)
			}
		}
	}
	return ResourceID(s), nil
}

func isIDChar(c rune) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' || c == '-'
}
