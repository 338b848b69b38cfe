package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/taskhub/internal/membership/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
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

func (r *repository) IsMember(ctx context.Context, orgID, userID snowflake.ID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&domain.Member{}).
		Where("org_id = ? AND user_id = ?", orgID, userID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repository) Get(ctx context.Context, orgID, userID snowflake.ID) (*domain.Member, error) {
	var member domain.Member
	err := r.db.WithContext(ctx).
		Where("org_id = ? AND user_id = ?", orgID, userID).
		First(&member).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrMemberNotFound
	}
	if err != nil {
		return nil, err
	}
	return &member, nil
}

func (r *repository) GetByID(ctx context.Context, orgID, memberID snowflake.ID) (*domain.Member, error) {
	var member domain.Member
	err := r.db.WithContext(ctx).
		Where("id = ? AND org_id = ?", memberID, orgID).
		First(&member).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrMemberNotFound
	}
	if err != nil {
		return nil, err
	}
	return &member, nil
}

func (r *repository) Insert(ctx context.Context, member *domain.Member) error {
	return r.db.WithContext(ctx).Exec(
		`INSERT INTO organization_members (id, org_id, user_id, role, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		member.ID,
		member.OrgID,
		member.UserID,
		member.Role,
		member.CreatedAt,
	).Error
}

func (r *repository) Delete(ctx context.Context, orgID, memberID snowflake.ID) (int64, error) {
	tx := r.db.WithContext(ctx).Exec(
		`DELETE FROM organization_members WHERE id = ? AND org_id = ?`,
		memberID,
		orgID,
	)
	return tx.RowsAffected, tx.Error
}

// LockByRole returns the member ids holding role and locks those rows until
// the surrounding transaction ends. SQLite has no row locks and skips the clause.
func (r *repository) LockByRole(ctx context.Context, orgID snowflake.ID, role domain.Role) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := r.db.WithContext(ctx).
		Model(&domain.Member{}).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("org_id = ? AND role = ?", orgID, role).
		Order("id").
		Pluck("id", &ids).Error
	return ids, err
}

// ListOrganizationsByUser orders by join time so the first entry is stable.
func (r *repository) ListOrganizationsByUser(ctx context.Context, userID snowflake.ID) ([]domain.OrganizationRef, error) {
	var items []domain.OrganizationRef
	err := r.db.WithContext(ctx).Raw(
		`SELECT o.id, o.name, o.slug, o.logo_key, m.role, m.created_at AS joined_at
		 FROM organization_members m
		 JOIN organizations o ON o.id = m.org_id
		 WHERE m.user_id = ?
		 ORDER BY m.created_at ASC, m.id ASC`,
		userID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) LatestOrganizationID(ctx context.Context, userID snowflake.ID) (*snowflake.ID, error) {
	var member domain.Member
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc, id desc").
		First(&member).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	orgID := member.OrgID
	return &orgID, nil
}

func (r *repository) ListMembers(ctx context.Context, orgID snowflake.ID) ([]domain.MemberView, error) {
	var items []domain.MemberView
	err := r.db.WithContext(ctx).Raw(
		`SELECT m.id, m.user_id, u.name, u.email, u.avatar_url, m.role, m.created_at
		 FROM organization_members m
		 JOIN users u ON u.id = m.user_id
		 WHERE m.org_id = ?
		 ORDER BY m.created_at DESC, m.id DESC`,
		orgID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) IsEmailMember(ctx context.Context, orgID snowflake.ID, email string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Raw(
		`SELECT COUNT(1)
		 FROM organization_members m
		 JOIN users u ON u.id = m.user_id
		 WHERE m.org_id = ? AND u.email = ?`,
		orgID,
		strings.TrimSpace(email),
	).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
