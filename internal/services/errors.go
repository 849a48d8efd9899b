package services

import "errors"

// Expected, user-facing outcomes. Anything else returned by this package is a
// wrapped persistence failure and fatal to the current operation.
var (
	ErrInvalidCredentials      = errors.New("invalid username or password")
	ErrInvalidOTPCode          = errors.New("invalid one-time code")
	ErrSessionExpiredOrMissing = errors.New("second-factor session expired or missing")
)
