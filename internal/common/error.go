// Package common defines shared constants and sentinel errors used across
// the repository, service and transport layers. Callers should use errors.Is
// to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound    = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")

	// Validation errors.
	ErrValidation      = errors.New("validation error")
	ErrSelfRequest     = errors.New("cannot send a friend request to yourself")
	ErrPayloadTooLarge = errors.New("payload too large")

	// Wallet authentication errors.
	ErrInvalidSignature = errors.New("invalid signature")
	ErrNonceInvalid     = errors.New("nonce is unknown, expired or already used")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")

	// Token lifecycle errors.
	ErrTokenExpired = errors.New("token expired")

	// At-rest credential errors.
	ErrDecrypt = errors.New("cannot decrypt stored credential")
)
