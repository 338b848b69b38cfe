package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	membershipdomain "github.com/smallbiznis/taskhub/internal/membership/domain"
)

const (
	MaxNameLength = 100
	MaxSlugLength = 50
)

type Service interface {
	// Create inserts the organization and the creator's owner membership
	// in one transaction.
	Create(ctx context.Context, userID snowflake.ID, req CreateOrganizationRequest) (*Organization, error)
	CheckSlug(ctx context.Context, slug string) (*SlugCheck, error)
	GetByID(ctx context.Context, id snowflake.ID) (*Organization, error)
	ListOrganizationsByUser(ctx context.Context, userID snowflake.ID) ([]membershipdomain.OrganizationRef, error)
}

type CreateOrganizationRequest struct {
	Name    string
	Slug    string
	LogoKey string
}

type SlugCheck struct {
	Slug      string `json:"slug"`
	Available bool   `json:"available"`
}

var (
	ErrInvalidName          = errors.New("invalid_name")
	ErrInvalidSlug          = errors.New("invalid_slug")
	ErrInvalidLogo          = errors.New("invalid_logo")
	ErrInvalidUser          = errors.New("invalid_user")
	ErrSlugTaken            = errors.New("slug already used")
	ErrOrganizationNotFound = errors.New("organization not found")
)
