package types

import "errors"

// Sentinel errors for tidegate operations.
var (
	// ErrRuleNotObject indicates a raw rule entry is not a JSON object.
	ErrRuleNotObject = errors.New("rule entry is not an object")

	// ErrInvalidRule indicates a rule object has structurally invalid fields.
	ErrInvalidRule = errors.New("rule is structurally invalid")

	// ErrMissingCredentials indicates signing credentials are absent or undecodable.
	ErrMissingCredentials = errors.New("missing signing credentials")

	// ErrMissingActionField indicates an action lacks a required data field.
	ErrMissingActionField = errors.New("action is missing a required field")

	// ErrUnknownActionType indicates an action type the resolver does not handle.
	ErrUnknownActionType = errors.New("unknown action type")

	// ErrIPLookupFailed indicates the IP intelligence provider could not classify an address.
	ErrIPLookupFailed = errors.New("ip lookup failed")

	// ErrCacheMiss indicates no cached IP intelligence record exists.
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidDecisionInput indicates a malformed decision request.
	ErrInvalidDecisionInput = errors.New("invalid decision input")
)
