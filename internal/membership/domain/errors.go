package domain

import "errors"

var (
	ErrInvalidRole    = errors.New("invalid_role")
	ErrMemberNotFound = errors.New("member not found")
	ErrAlreadyMember  = errors.New("user is already a member of this organization")
	ErrLastOwner      = errors.New("an organization must keep at least one owner")
)
