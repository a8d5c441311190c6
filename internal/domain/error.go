package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound        = errors.New("entity not found")
	ErrAlreadyExists   = errors.New("entity already exists")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrSessionExpired  = errors.New("session expired")
	ErrNotAllowed      = errors.New("not allowed")
	ErrPolicyViolation = errors.New("prompt blocked by content policy")
	ErrBindFailed      = errors.New("workflow bind failed")
)
