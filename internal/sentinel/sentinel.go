package sentinel

import "errors"

// Sentinel dependency errors. Dependencies should return these (optionally wrapped)
// so services can translate them into domain errors exactly once.
var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrExpired            = errors.New("expired")
	ErrLocked             = errors.New("locked")
	ErrVerificationFailed = errors.New("verification failed")
	ErrNotVerified        = errors.New("not verified")
	ErrAlreadyUsed        = errors.New("already used")
	ErrInvalidState       = errors.New("invalid state")
)
