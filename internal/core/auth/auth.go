// Package auth provides HMAC-based API key authentication for the privileged
// decision endpoints (HTTP and gRPC).
package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// APIKeyHeader carries the key on both transports.
const APIKeyHeader = "x-api-key"

// contextKey is a typed key for context values to avoid collisions.
type contextKey string

// siteIDKey is the context key for storing the authenticated site ID.
const siteIDKey = contextKey("site_id")

// lastUsedThrottle limits last_used_at writes for busy integrations.
const lastUsedThrottle = time.Minute

// Queries interface defines database operations needed for authentication.
// Implemented by *db.Queries.
type Queries interface {
	GetContext(ctx context.Context, name string, dest interface{}, args ...interface{}) error
	ExecContext(ctx context.Context, name string, args ...interface{}) (sql.Result, error)
}

// Authenticator validates API keys using HMAC-SHA256 signatures.
// Holds in-memory secret map for O(1) lookup and queries for key verification.
type Authenticator struct {
	secrets map[string][]byte
	queries Queries
	now     func() time.Time
}

// NewAuthenticator creates an authenticator with HMAC secrets and query interface.
func NewAuthenticator(secrets map[string][]byte, queries Queries) *Authenticator {
	return &Authenticator{
		secrets: secrets,
		queries: queries,
		now:     time.Now,
	}
}

// Authenticate validates API key and returns site_id on success.
func (a *Authenticator) Authenticate(ctx context.Context, apiKey string) (string, error) {
	if apiKey == "" {
		return "", ErrMissingKey
	}
	secretID, _, err := ParseAPIKey(apiKey)
	if err != nil {
		return "", err
	}

	secret, ok := a.secrets[secretID]
	if !ok {
		return "", ErrUnknownKey
	}

	var row struct {
		APIKeyID   string       `db:"api_key_id"`
		SiteID     string       `db:"site_id"`
		RevokedAt  sql.NullTime `db:"revoked_at"`
		LastUsedAt sql.NullTime `db:"last_used_at"`
	}

	// key_hash is unique, so at most one row
	err = a.queries.GetContext(ctx, "get-api-key-by-hash", &row, ComputeHMAC(secret, apiKey))
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrInvalidKey
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if row.RevokedAt.Valid {
		return "", ErrKeyRevoked
	}

	now := a.now().UTC()
	if !row.LastUsedAt.Valid || now.Sub(row.LastUsedAt.Time) > lastUsedThrottle {
		_, _ = a.queries.ExecContext(ctx, "update-last-used", now, row.APIKeyID)
	}

	return row.SiteID, nil
}

// Issue creates and stores a new key for siteID signed with secretID.
// Returns the plaintext key; only its hash is stored.
func (a *Authenticator) Issue(ctx context.Context, siteID, secretID string) (string, error) {
	if siteID == "" {
		return "", fmt.Errorf("site id required")
	}
	secret, ok := a.secrets[secretID]
	if !ok {
		return "", ErrUnknownKey
	}

	key, hash, err := GenerateAPIKey(secretID, secret)
	if err != nil {
		return "", err
	}
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("failed to generate key id: %w", err)
	}
	if _, err := a.queries.ExecContext(ctx, "insert-api-key", id.String(), siteID, hash, a.now().UTC()); err != nil {
		return "", fmt.Errorf("failed to store api key: %w", err)
	}
	return key, nil
}

// HTTPStatus maps an authentication error to a response status.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrKeyRevoked):
		return http.StatusForbidden
	case errors.Is(err, ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusUnauthorized
	}
}

// GRPCCode maps an authentication error to a gRPC status code.
func GRPCCode(err error) codes.Code {
	switch {
	case errors.Is(err, ErrKeyRevoked):
		return codes.PermissionDenied
	case errors.Is(err, ErrStoreUnavailable):
		return codes.Unavailable
	default:
		return codes.Unauthenticated
	}
}

// Middleware authenticates HTTP requests by x-api-key header. Failures are
// written as JSON errors and never reach next.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		siteID, err := a.Authenticate(r.Context(), r.Header.Get(APIKeyHeader))
		if err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(HTTPStatus(err))
			fmt.Fprintf(w, "{\"error\":%q}\n", publicMessage(err))
			return
		}
		next.ServeHTTP(w, r.WithContext(WithSiteID(r.Context(), siteID)))
	})
}

// UnaryInterceptor returns gRPC interceptor that authenticates requests.
// Health checks pass without a key.
func (a *Authenticator) UnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if info != nil && isHealthMethod(info.FullMethod) {
			return handler(ctx, req)
		}

		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "missing metadata")
		}

		apiKeys := md.Get(APIKeyHeader)
		if len(apiKeys) == 0 {
			return nil, status.Error(codes.Unauthenticated, ErrMissingKey.Error())
		}

		siteID, err := a.Authenticate(ctx, apiKeys[0])
		if err != nil {
			return nil, status.Error(GRPCCode(err), publicMessage(err))
		}

		return handler(WithSiteID(ctx, siteID), req)
	}
}

func isHealthMethod(fullMethod string) bool {
	return fullMethod == "/grpc.health.v1.Health/Check" || fullMethod == "/grpc.health.v1.Health/Watch"
}

// publicMessage hides store details from callers.
func publicMessage(err error) string {
	if errors.Is(err, ErrStoreUnavailable) {
		return ErrStoreUnavailable.Error()
	}
	return err.Error()
}

// WithSiteID marks ctx as authenticated for siteID.
func WithSiteID(ctx context.Context, siteID string) context.Context {
	return context.WithValue(ctx, siteIDKey, siteID)
}

// SiteIDFromContext extracts site ID from context.
// Returns empty string if not found.
func SiteIDFromContext(ctx context.Context) string {
	if siteID, ok := ctx.Value(siteIDKey).(string); ok {
		return siteID
	}
	return ""
}

// IsPrivileged reports whether ctx carries an authenticated site.
func IsPrivileged(ctx context.Context) bool {
	return SiteIDFromContext(ctx) != ""
}
