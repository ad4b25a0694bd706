package auth

import "errors"

// Typed failures surfaced by the codec, ledger, and engine. The gate maps
// these onto the 401/403 boundary classes.
var (
	ErrMalformedToken     = errors.New("auth: malformed token")
	ErrBadSignature       = errors.New("auth: bad token signature")
	ErrExpired            = errors.New("auth: token expired")
	ErrWrongKind          = errors.New("auth: wrong token kind")
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrUserNotFound       = errors.New("auth: user not found")
	ErrUnknownFeature     = errors.New("auth: unknown feature")
)
