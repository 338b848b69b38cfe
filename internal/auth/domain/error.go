package domain

import "errors"

var (
	ErrInvalidCredentials       = errors.New("invalid email or password")
	ErrUserNotFound             = errors.New("user not found")
	ErrUserExists               = errors.New("an account with this email already exists")
	ErrSignUpDisabled           = errors.New("sign up is disabled")
	ErrSessionNotFound          = errors.New("session not found")
	ErrSessionExpired           = errors.New("session expired")
	ErrSessionRevoked           = errors.New("session revoked")
	ErrInvalidSession           = errors.New("invalid session")
	ErrInvalidEmail             = errors.New("invalid_email")
	ErrInvalidPassword          = errors.New("invalid_password")
	ErrInvalidName              = errors.New("invalid_name")
	ErrEmailNotVerified         = errors.New("email address is not verified")
	ErrInvalidVerificationToken = errors.New("verification link is invalid or has expired")
)
