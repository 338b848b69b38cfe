package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/taskhub/internal/invitation/domain"
	membershipdomain "github.com/smallbiznis/taskhub/internal/membership/domain"
	"gorm.io/gorm"
)

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) domain.Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) domain.Repository {
	return &repository{db: tx}
}

func (r *repository) Insert(ctx context.Context, invitation *domain.Invitation) error {
	return r.db.WithContext(ctx).Create(invitation).Error
}

func (r *repository) GetByID(ctx context.Context, id snowflake.ID) (*domain.Invitation, error) {
	var invitation domain.Invitation
	err := r.db.WithContext(ctx).First(&invitation, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrInvitationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &invitation, nil
}

func (r *repository) GetForOrg(ctx context.Context, orgID, id snowflake.ID) (*domain.Invitation, error) {
	var invitation domain.Invitation
	err := r.db.WithContext(ctx).
		Where("id = ? AND org_id = ?", id, orgID).
		First(&invitation).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrInvitationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &invitation, nil
}

func (r *repository) HasLivePending(ctx context.Context, orgID snowflake.ID, email string, now time.Time) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&domain.Invitation{}).
		Where("org_id = ? AND email = ? AND status = ? AND expires_at > ?", orgID, email, domain.StatusPending, now).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repository) ListPending(ctx context.Context, orgID snowflake.ID) ([]domain.Invitation, error) {
	var invitations []domain.Invitation
	err := r.db.WithContext(ctx).
		Where("org_id = ? AND status = ?", orgID, domain.StatusPending).
		Order("expires_at DESC").
		Order("id DESC").
		Find(&invitations).Error
	if err != nil {
		return nil, err
	}
	return invitations, nil
}

func (r *repository) CountPending(ctx context.Context, now time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&domain.Invitation{}).
		Where("status = ? AND expires_at > ?", domain.StatusPending, now).
		Count(&count).Error
	return count, err
}

func (r *repository) Transition(ctx context.Context, id snowflake.ID, status domain.Status, at time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&domain.Invitation{}).
		Where("id = ? AND status = ?", id, domain.StatusPending).
		Updates(map[string]any{
			"status":     status,
			"updated_at": at,
		})
	return result.RowsAffected, result.Error
}

type detailsRow struct {
	ID               snowflake.ID
	OrgID            snowflake.ID
	Email            string
	Role             string
	Status           string
	ExpiresAt        time.Time
	InviterID        snowflake.ID
	CreatedAt        time.Time
	UpdatedAt        time.Time
	OrganizationName string
	OrganizationSlug string
	OrganizationLogo string
	InviterName      string
	InviterEmail     string
}

func (r *repository) Details(ctx context.Context, id snowflake.ID) (*domain.InvitationDetails, error) {
	var rows []detailsRow
	err := r.db.WithContext(ctx).Raw(
		`SELECT i.id, i.org_id, i.email, i.role, i.status, i.expires_at, i.inviter_id, i.created_at, i.updated_at,
		        o.name AS organization_name, o.slug AS organization_slug, o.logo_key AS organization_logo,
		        COALESCE(u.name, '') AS inviter_name, COALESCE(u.email, '') AS inviter_email
		 FROM invitations i
		 JOIN organizations o ON o.id = i.org_id
		 LEFT JOIN users u ON u.id = i.inviter_id
		 WHERE i.id = ?
		 LIMIT 1`,
		id,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, domain.ErrInvitationNotFound
	}

	row := rows[0]
	return &domain.InvitationDetails{
		Invitation: domain.Invitation{
			ID:        row.ID,
			OrgID:     row.OrgID,
			Email:     row.Email,
			Role:      membershipdomain.Role(row.Role),
			Status:    domain.Status(row.Status),
			ExpiresAt: row.ExpiresAt,
			InviterID: row.InviterID,
			CreatedAt: row.CreatedAt,
			UpdatedAt: row.UpdatedAt,
		},
		OrganizationName: row.OrganizationName,
		OrganizationSlug: row.OrganizationSlug,
		OrganizationLogo: row.OrganizationLogo,
		InviterName:      row.InviterName,
		InviterEmail:     row.InviterEmail,
	}, nil
}
