// Package auth provides HMAC-based API key authentication for the
// resolution service.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/solatis/qualify/internal/core/db"
	"github.com/solatis/qualify/internal/types"
)

// KeyStore is the lookup the authenticator needs. Implemented by
// *db.APIKeyStore.
type KeyStore interface {
	ByHash(ctx context.Context, keyHash string) (db.APIKey, error)
	Touch(ctx context.Context, id types.APIKeyID, at time.Time) error
}

// Authenticator validates API keys against their stored HMAC.
type Authenticator struct {
	secret []byte
	keys   KeyStore
	logger *slog.Logger
	clock  func() time.Time
}

// NewAuthenticator creates an authenticator with an HMAC secret.
func NewAuthenticator(secret []byte, keys KeyStore, logger *slog.Logger) (*Authenticator, error) {
	if len(secret) < MinSecretBytes {
		return nil, ErrWeakSecret
	}
	if keys == nil {
		return nil, fmt.Errorf("key store cannot be nil")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Authenticator{secret: secret, keys: keys, logger: logger, clock: time.Now}, nil
}

// Hash is the stored form of apiKey under this authenticator's secret.
func (a *Authenticator) Hash(apiKey string) string {
	return HashKey(a.secret, apiKey)
}

// Authenticate validates apiKey and returns the stored key.
func (a *Authenticator) Authenticate(ctx context.Context, apiKey string) (db.APIKey, error) {
	if _, err := ParseAPIKey(apiKey); err != nil {
		return db.APIKey{}, err
	}

	// key_hash is unique, so a hit identifies the key
	key, err := a.keys.ByHash(ctx, a.Hash(apiKey))
	if errors.Is(err, types.ErrAPIKeyNotFound) {
		return db.APIKey{}, ErrInvalidKey
	}
	if err != nil {
		return db.APIKey{}, fmt.Errorf("%w: %w", ErrKeyStore, err)
	}
	if key.Revoked() {
		return db.APIKey{}, ErrKeyRevoked
	}

	// Throttled to one write a minute per key
	now := a.clock()
	if shouldUpdateLastUsed(key.LastUsed(), now) {
		if err := a.keys.Touch(ctx, key.ID, now); err != nil {
			a.logger.Warn("failed to record api key use", "api_key_id", key.ID, "error", err)
		}
	}
	return key, nil
}

func shouldUpdateLastUsed(lastUsed, now time.Time) bool {
	return lastUsed.IsZero() || now.Sub(lastUsed) > time.Minute
}

// UnaryInterceptor returns a gRPC interceptor that authenticates every
// request except health checks.
func (a *Authenticator) UnaryInterceptor() grpc.UnaryServerInterceptor {
	healthPrefix := "/" + grpc_health_v1.Health_ServiceDesc.ServiceName + "/"
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if strings.HasPrefix(info.FullMethod, healthPrefix) {
			return handler(ctx, req)
		}

		md, _ := metadata.FromIncomingContext(ctx)
		apiKeys := md.Get("x-api-key")
		if len(apiKeys) == 0 {
			return nil, status.Error(codes.Unauthenticated, ErrMissingKey.Error())
		}

		key, err := a.Authenticate(ctx, apiKeys[0])
		switch {
		case err == nil:
		case errors.Is(err, ErrKeyRevoked):
			return nil, status.Error(codes.PermissionDenied, err.Error())
		case errors.Is(err, ErrKeyStore):
			a.logger.Error("api key lookup failed", "method", info.FullMethod, "error", err)
			return nil, status.Error(codes.Unavailable, ErrKeyStore.Error())
		default:
			return nil, status.Error(codes.Unauthenticated, err.Error())
		}

		a.logger.Debug("request authenticated", "method", info.FullMethod, "api_key", key.Name)
		return handler(ctx, req)
	}
}
