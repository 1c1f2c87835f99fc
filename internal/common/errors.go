// Package common defines shared constants and sentinel errors used across
// the sync engine. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Store-level errors.
	ErrNotFound = errors.New("not found")

	// Reconnect supervisor errors.
	ErrRetryCeiling = errors.New("reconnect attempt ceiling reached")

	// Session / token errors.
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")

	// Conflict resolution errors.
	ErrUnknownResolution = errors.New("unknown conflict resolution")
)
