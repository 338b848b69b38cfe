package domain

import (
	"errors"

	membershipdomain "github.com/smallbiznis/taskhub/internal/membership/domain"
)

var (
	ErrInvalidEmail = errors.New("invalid_email")
	ErrInvalidRole  = errors.New("invalid_role")

	// ErrInvitationNotFound also covers expired and mismatched invitations
	// so the accept page cannot be used to probe them.
	ErrInvitationNotFound = errors.New("invitation not found")
	ErrAlreadyProcessed   = errors.New("invitation has already been processed")
	ErrAlreadyAccepted    = errors.New("invitation has already been accepted")
	ErrAlreadyMember      = membershipdomain.ErrAlreadyMember
	ErrAlreadyInvited     = errors.New("an invitation is already pending for this email")
	ErrRateLimited        = errors.New("too many invitations, try again later")
	ErrInvitationInFlight = errors.New("an invitation for this email is being processed")
)
