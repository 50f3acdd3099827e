// Package common contains shared constants and sentinel errors used across
// wordledger components. Callers should use errors.Is to match these values.
package common

import (
	"errors"
	"fmt"
)

var (
	// Input validation errors.
	ErrInvalidInput = errors.New("invalid input")

	// Account errors.
	ErrUsernameTaken       = errors.New("username already taken")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrUserNotFound        = errors.New("user not found")
	ErrInsufficientBalance = errors.New("insufficient balance")

	// Redemption code errors.
	ErrCodeInvalid     = errors.New("redemption code not found")
	ErrCodeAlreadyUsed = errors.New("redemption code already used")
	ErrCodeTaken       = errors.New("redemption code already exists")

	// Infrastructure errors. Unlike the business outcomes above, this
	// category is retryable by the caller.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// Unavailable wraps an infrastructure failure so that both the original error
// chain and ErrStoreUnavailable remain matchable with errors.Is.
func Unavailable(err error) error {
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}
