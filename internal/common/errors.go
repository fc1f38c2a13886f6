// Package common defines sentinel errors shared by the presence, collaboration,
// storage and transport layers of OfficeChat. Callers should match them with
// errors.Is; components wrap them with context using %w.
package common

import "errors"

var (
	// Session errors.
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrSessionClosed   = errors.New("session closed")

	// Access errors.
	ErrPermissionDenied     = errors.New("permission denied")
	ErrEditCapacityExceeded = errors.New("edit capacity exceeded")

	// Repository-level errors.
	ErrNotFound           = errors.New("not found")
	ErrPersistenceFailure = errors.New("persistence failure")

	// Decoding errors for inbound real-time events.
	ErrMalformedEvent = errors.New("malformed event")

	// Auth errors.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNotApproved        = errors.New("account awaiting approval")
	ErrInvalidToken       = errors.New("invalid token")
	ErrTokenExpired       = errors.New("token expired")
)
