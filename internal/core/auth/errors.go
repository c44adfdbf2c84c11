package auth

import "errors"

// Authentication errors map to gRPC codes in UnaryInterceptor.
// Unauthenticated for missing or invalid keys, so key existence is not
// confirmed; PermissionDenied for revoked keys.
var (
	ErrMissingKey       = errors.New("API key required in x-api-key metadata")
	ErrInvalidKeyFormat = errors.New("invalid API key format")
	ErrInvalidKey       = errors.New("invalid API key")
	ErrKeyRevoked       = errors.New("API key has been revoked")
	ErrKeyStore         = errors.New("api key store unavailable")
	ErrWeakSecret       = errors.New("auth secret must be at least 32 bytes of hex")
)
