package storage

import "errors"

var (
	// ErrAPIKeyNotFound is returned when an API key is not found
	ErrAPIKeyNotFound = errors.New("API key not found")

	// ErrAccountNotFound is returned when a credit account is not found
	ErrAccountNotFound = errors.New("credit account not found")

	// ErrInsufficientCredit is returned when a debit exceeds the balance
	ErrInsufficientCredit = errors.New("insufficient credit")

	// ErrJobNotFound is returned when a conversion job is not found
	ErrJobNotFound = errors.New("conversion job not found")

	// ErrAdminUserNotFound is returned when an admin user is not found
	ErrAdminUserNotFound = errors.New("admin user not found")
)
