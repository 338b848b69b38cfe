package seed

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	authdomain "github.com/smallbiznis/taskhub/internal/auth/domain"
	"github.com/smallbiznis/taskhub/internal/auth/password"
	"github.com/smallbiznis/taskhub/internal/clock"
	"github.com/smallbiznis/taskhub/internal/config"
	membershipdomain "github.com/smallbiznis/taskhub/internal/membership/domain"
	orgdomain "github.com/smallbiznis/taskhub/internal/organization/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultOrgName = "Main"
	defaultOrgSlug = "main"
	defaultLogoKey = "building-2"
)

type Params struct {
	Bootstrap config.BootstrapConfig
	GenID     *snowflake.Node
	Clock     clock.Clock
	Log       *zap.Logger
}

// EnsureAdmin creates the bootstrap admin account for local sign-in together
// with a default organization it owns. Existing rows are left untouched.
func EnsureAdmin(ctx context.Context, db *gorm.DB, p Params) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}
	email := strings.ToLower(strings.TrimSpace(p.Bootstrap.AdminEmail))
	if email == "" {
		return errors.New("seed admin email is required")
	}
	if p.Bootstrap.AdminPassword == "" {
		return errors.New("seed admin password is required")
	}

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, created, err := ensureUserTx(ctx, tx, p, email)
		if err != nil {
			return err
		}

		var memberships int64
		if err := tx.WithContext(ctx).Model(&membershipdomain.Member{}).
			Where("user_id = ?", user.ID).
			Count(&memberships).Error; err != nil {
			return err
		}
		if memberships > 0 {
			return nil
		}

		org, err := ensureMainOrgTx(ctx, tx, p)
		if err != nil {
			return err
		}
		now := p.Clock.Now()
		member := membershipdomain.Member{
			ID:        p.GenID.Generate(),
			OrgID:     org.ID,
			UserID:    user.ID,
			Role:      membershipdomain.RoleOwner,
			CreatedAt: now,
		}
		if err := tx.WithContext(ctx).Create(&member).Error; err != nil {
			return err
		}

		if p.Log != nil {
			p.Log.Named("seed").Info("bootstrap admin ready",
				zap.String("user_id", user.ID.String()),
				zap.String("org_id", org.ID.String()),
				zap.Bool("user_created", created),
			)
		}
		return nil
	})
}

func ensureUserTx(ctx context.Context, tx *gorm.DB, p Params, email string) (*authdomain.User, bool, error) {
	var user authdomain.User
	err := tx.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if err == nil {
		return &user, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	hashed, err := password.Hash(p.Bootstrap.AdminPassword)
	if err != nil {
		return nil, false, err
	}
	name := strings.TrimSpace(p.Bootstrap.AdminName)
	if name == "" {
		name = "Admin"
	}
	now := p.Clock.Now()
	user = authdomain.User{
		ID:                  p.GenID.Generate(),
		ExternalID:          uuid.NewString(),
		Provider:            authdomain.ProviderLocal,
		Email:               email,
		EmailVerified:       true,
		Name:                name,
		PasswordHash:        &hashed,
		LastPasswordChanged: &now,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := tx.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, false, err
	}
	return &user, true, nil
}

func ensureMainOrgTx(ctx context.Context, tx *gorm.DB, p Params) (*orgdomain.Organization, error) {
	var org orgdomain.Organization
	err := tx.WithContext(ctx).Where("slug = ?", defaultOrgSlug).First(&org).Error
	if err == nil {
		return &org, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	now := p.Clock.Now()
	org = orgdomain.Organization{
		ID:        p.GenID.Generate(),
		Name:      defaultOrgName,
		Slug:      defaultOrgSlug,
		LogoKey:   defaultLogoKey,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := tx.WithContext(ctx).Create(&org).Error; err != nil {
		return nil, err
	}
	return &org, nil
}
