package types

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewDecisionID generates a UUIDv7 decision identifier.
// Panics on clock regression (uuid.Must); acceptable for ID generation.
func NewDecisionID() DecisionID {
	return DecisionID(uuid.Must(uuid.NewV7()).String())
}

// NewSecretID generates a UUIDv7 rendered as 32 hex chars without hyphens,
// the format used for HMAC secret IDs and API key prefixes.
func NewSecretID() string {
	return strings.ReplaceAll(uuid.Must(uuid.NewV7()).String(), "-", "")
}

// DecisionIDTime extracts the timestamp embedded in a UUIDv7 ID.
// Returns zero time for invalid UUIDs; caller should check IsZero().
func DecisionIDTime(id DecisionID) time.Time {
	u, err := uuid.Parse(string(id))
	if err != nil {
		return time.Time{}
	}
	sec, nsec := u.Time().UnixTime()
	return time.Unix(sec, nsec)
}
