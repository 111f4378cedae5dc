package auth

import "errors"

// Sentinel errors for the entitlement gate and PIN handling.
var (
	ErrTokenMissing = errors.New("auth: bearer token missing")
	ErrTokenInvalid = errors.New("auth: invalid token")
	ErrNotEntitled  = errors.New("auth: subscription does not include remote control")
	ErrInvalidHash  = errors.New("auth: invalid secret hash")
)
