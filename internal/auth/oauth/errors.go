package oauth

import "errors"

var (
	ErrProviderNotFound = errors.New("sign-in provider is not available")
	ErrInvalidProvider  = errors.New("sign-in provider is misconfigured")
	ErrInvalidRequest   = errors.New("invalid_request")
	ErrUnauthorized     = errors.New("sign-in with the provider failed")
	ErrUnverifiedEmail  = errors.New("the provider has not verified this email address")
)
