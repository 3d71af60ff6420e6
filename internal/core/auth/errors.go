package auth

import "errors"

// Authentication errors map onto transport status:
// missing/invalid -> UNAUTHENTICATED / 401 (doesn't confirm key existence),
// revoked -> PERMISSION_DENIED / 403, store failure -> UNAVAILABLE / 503.
var (
	ErrMissingKey       = errors.New("API key required in x-api-key header")
	ErrInvalidKeyFormat = errors.New("invalid API key format")
	ErrUnknownKey       = errors.New("unknown secret ID")
	ErrInvalidKey       = errors.New("invalid API key")
	ErrKeyRevoked       = errors.New("API key has been revoked")
	ErrStoreUnavailable = errors.New("key store unavailable")
)
