package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/smallbiznis/taskhub/internal/auth/domain"
	"github.com/smallbiznis/taskhub/internal/auth/password"
	"github.com/smallbiznis/taskhub/internal/clock"
	"github.com/smallbiznis/taskhub/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	sessionTokenBytes = 32
	sessionTTL        = 7 * 24 * time.Hour
	verificationTTL   = 24 * time.Hour
	maxNameLength     = 100
)

// MembershipLookup is the slice of the membership store used when issuing sessions.
type MembershipLookup interface {
	LatestOrganizationID(ctx context.Context, userID snowflake.ID) (*snowflake.ID, error)
}

type Params struct {
	fx.In

	Log         *zap.Logger
	Repo        domain.Repository
	SessionRepo domain.SessionRepository
	Memberships MembershipLookup
	GenID       *snowflake.Node
	Clock       clock.Clock
}

type Service struct {
	log         *zap.Logger
	repo        domain.Repository
	sessionRepo domain.SessionRepository
	memberships MembershipLookup
	genID       *snowflake.Node
	clock       clock.Clock
}

func New(p Params) domain.Service {
	return &Service{
		log:         p.Log.Named("auth.service"),
		repo:        p.Repo,
		sessionRepo: p.SessionRepo,
		memberships: p.Memberships,
		genID:       p.GenID,
		clock:       p.Clock,
	}
}

func (s *Service) CreateUser(ctx context.Context, req domain.CreateUserRequest) (*domain.User, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, domain.ErrInvalidEmail
	}
	if err := password.Validate(req.Password); err != nil {
		return nil, domain.ErrInvalidPassword
	}
	name := strings.TrimSpace(req.Name)
	if len(name) > maxNameLength {
		return nil, domain.ErrInvalidName
	}
	if name == "" {
		name = defaultDisplayName(email)
	}

	if _, err := s.repo.FindByEmail(ctx, email); err == nil {
		return nil, domain.ErrUserExists
	} else if !errors.Is(err, domain.ErrUserNotFound) {
		return nil, err
	}

	hashed, err := password.Hash(req.Password)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	user := &domain.User{
		ID:                  s.genID.Generate(),
		ExternalID:          uuid.NewString(),
		Provider:            domain.ProviderLocal,
		Email:               email,
		Name:                name,
		PasswordHash:        &hashed,
		LastPasswordChanged: &now,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrUserExists
		}
		return nil, err
	}
	return user, nil
}

// FindOrCreateExternalUser maps a provider identity onto a local user.
// An existing account with the same email is reused only when the provider
// verified the address. An unverified local account is taken over: its
// password is dropped so whoever registered it first loses access.
func (s *Service) FindOrCreateExternalUser(ctx context.Context, identity domain.ExternalIdentity) (*domain.User, error) {
	provider := strings.ToLower(strings.TrimSpace(identity.Provider))
	externalID := strings.TrimSpace(identity.ExternalID)
	if provider == "" || externalID == "" {
		return nil, domain.ErrInvalidCredentials
	}
	email, err := normalizeEmail(identity.Email)
	if err != nil {
		return nil, domain.ErrInvalidEmail
	}

	user, err := s.repo.FindByExternalID(ctx, provider, externalID)
	if err == nil {
		s.refreshProfile(ctx, user, identity, email)
		return user, nil
	}
	if !errors.Is(err, domain.ErrUserNotFound) {
		return nil, err
	}

	existing, err := s.repo.FindByEmail(ctx, email)
	switch {
	case err == nil:
		return s.linkByEmail(ctx, existing, identity.EmailVerified, provider)
	case !errors.Is(err, domain.ErrUserNotFound):
		return nil, err
	}

	name := strings.TrimSpace(identity.Name)
	if name == "" {
		name = defaultDisplayName(email)
	}
	now := s.clock.Now()
	user = &domain.User{
		ID:            s.genID.Generate(),
		ExternalID:    externalID,
		Provider:      provider,
		Email:         email,
		EmailVerified: identity.EmailVerified,
		Name:          name,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if avatar := strings.TrimSpace(identity.AvatarURL); avatar != "" {
		user.AvatarURL = &avatar
	}
	if err := s.repo.Create(ctx, user); err != nil {
		if db.IsDuplicateKeyErr(err) {
			existing, err := s.repo.FindByEmail(ctx, email)
			if err != nil {
				return nil, err
			}
			return s.linkByEmail(ctx, existing, identity.EmailVerified, provider)
		}
		return nil, err
	}
	s.log.Info("user created from identity provider", zap.String("user_id", user.ID.String()), zap.String("provider", provider))
	return user, nil
}

func (s *Service) linkByEmail(ctx context.Context, existing *domain.User, verified bool, provider string) (*domain.User, error) {
	if !verified {
		return nil, domain.ErrEmailNotVerified
	}
	if existing.EmailVerified {
		return existing, nil
	}

	now := s.clock.Now()
	err := s.repo.UpdateFields(ctx, existing.ID, map[string]any{
		"email_verified":          true,
		"password_hash":           nil,
		"verification_token_hash": nil,
		"verification_expires_at": nil,
		"updated_at":              now,
	})
	if err != nil {
		return nil, err
	}
	existing.EmailVerified = true
	existing.PasswordHash = nil
	existing.VerificationTokenHash = nil
	existing.VerificationExpiresAt = nil
	existing.UpdatedAt = now

	s.log.Warn("unverified account claimed by identity provider",
		zap.String("user_id", existing.ID.String()),
		zap.String("provider", provider),
	)
	return existing, nil
}

func (s *Service) refreshProfile(ctx context.Context, user *domain.User, identity domain.ExternalIdentity, email string) {
	fields := map[string]any{}
	if identity.EmailVerified && !user.EmailVerified && email == user.Email {
		fields["email_verified"] = true
		user.EmailVerified = true
	}
	if name := strings.TrimSpace(identity.Name); name != "" && name != user.Name {
		fields["name"] = name
		user.Name = name
	}
	if avatar := strings.TrimSpace(identity.AvatarURL); avatar != "" && (user.AvatarURL == nil || *user.AvatarURL != avatar) {
		fields["avatar_url"] = avatar
		user.AvatarURL = &avatar
	}
	if len(fields) == 0 {
		return
	}
	fields["updated_at"] = s.clock.Now()
	if err := s.repo.UpdateFields(ctx, user.ID, fields); err != nil {
		s.log.Warn("failed to refresh user profile", zap.String("user_id", user.ID.String()), zap.Error(err))
	}
}

func (s *Service) GetUser(ctx context.Context, id snowflake.ID) (*domain.User, error) {
	return s.repo.FindByID(ctx, id)
}

// IssueEmailVerification replaces any outstanding verification token and
// returns the raw value for the link. Already verified users get "".
func (s *Service) IssueEmailVerification(ctx context.Context, userID snowflake.ID) (string, error) {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return "", err
	}
	if user.EmailVerified {
		return "", nil
	}

	rawToken, err := newSessionToken()
	if err != nil {
		return "", err
	}
	now := s.clock.Now()
	err = s.repo.UpdateFields(ctx, user.ID, map[string]any{
		"verification_token_hash": hashToken(rawToken),
		"verification_expires_at": now.Add(verificationTTL),
		"updated_at":              now,
	})
	if err != nil {
		return "", err
	}
	return rawToken, nil
}

// VerifyEmail consumes a verification token. Tokens are single use.
func (s *Service) VerifyEmail(ctx context.Context, rawToken string) (*domain.User, error) {
	token := strings.TrimSpace(rawToken)
	if token == "" {
		return nil, domain.ErrInvalidVerificationToken
	}
	user, err := s.repo.FindByVerificationTokenHash(ctx, hashToken(token))
	if errors.Is(err, domain.ErrUserNotFound) {
		return nil, domain.ErrInvalidVerificationToken
	}
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	if user.VerificationExpiresAt == nil || !now.Before(*user.VerificationExpiresAt) {
		return nil, domain.ErrInvalidVerificationToken
	}

	err = s.repo.UpdateFields(ctx, user.ID, map[string]any{
		"email_verified":          true,
		"verification_token_hash": nil,
		"verification_expires_at": nil,
		"updated_at":              now,
	})
	if err != nil {
		return nil, err
	}
	user.EmailVerified = true
	user.VerificationTokenHash = nil
	user.VerificationExpiresAt = nil

	s.log.Info("email verified", zap.String("user_id", user.ID.String()))
	return user, nil
}

func (s *Service) Login(ctx context.Context, req domain.LoginRequest) (*domain.LoginResult, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, domain.ErrInvalidCredentials
	}
	if strings.TrimSpace(req.Password) == "" {
		return nil, domain.ErrInvalidCredentials
	}

	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}
	if user.PasswordHash == nil || !password.Verify(req.Password, *user.PasswordHash) {
		return nil, domain.ErrInvalidCredentials
	}

	return s.CreateSession(ctx, user, req.SessionMeta)
}

// CreateSession issues a new session token. The active organization is
// pre-populated from the user's most recent membership when one exists.
func (s *Service) CreateSession(ctx context.Context, user *domain.User, meta domain.SessionMeta) (*domain.LoginResult, error) {
	if user == nil || user.ID == 0 {
		return nil, domain.ErrUserNotFound
	}

	rawToken, err := newSessionToken()
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	session := &domain.Session{
		ID:               s.genID.Generate(),
		UserID:           user.ID,
		SessionTokenHash: hashToken(rawToken),
		ActiveOrgID:      s.initialOrganization(ctx, user.ID),
		UserAgent:        strings.TrimSpace(meta.UserAgent),
		IPAddress:        strings.TrimSpace(meta.IPAddress),
		ExpiresAt:        now.Add(sessionTTL),
		CreatedAt:        now,
		LastSeenAt:       now,
	}
	if err := s.sessionRepo.CreateSession(ctx, session); err != nil {
		return nil, err
	}

	return &domain.LoginResult{
		User:      user,
		Session:   session,
		RawToken:  rawToken,
		ExpiresAt: session.ExpiresAt,
	}, nil
}

func (s *Service) initialOrganization(ctx context.Context, userID snowflake.ID) *snowflake.ID {
	if s.memberships == nil {
		return nil
	}
	orgID, err := s.memberships.LatestOrganizationID(ctx, userID)
	if err != nil {
		s.log.Warn("could not preselect organization for new session", zap.String("user_id", userID.String()), zap.Error(err))
		return nil
	}
	return orgID
}

func (s *Service) Authenticate(ctx context.Context, rawToken string) (*domain.Session, error) {
	token := strings.TrimSpace(rawToken)
	if token == "" {
		return nil, domain.ErrInvalidSession
	}

	session, err := s.sessionRepo.GetSessionByTokenHash(ctx, hashToken(token))
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return nil, domain.ErrInvalidSession
		}
		return nil, err
	}

	now := s.clock.Now()
	if session.RevokedAt != nil {
		return nil, domain.ErrSessionRevoked
	}
	if !now.Before(session.ExpiresAt) {
		return nil, domain.ErrSessionExpired
	}

	if err := s.sessionRepo.UpdateLastSeen(ctx, session.ID, now); err != nil {
		return nil, err
	}
	session.LastSeenAt = now

	return session, nil
}

// SetActiveOrganization moves the session pointer without checking
// membership. Callers validate access before calling it.
func (s *Service) SetActiveOrganization(ctx context.Context, session *domain.Session, orgID *snowflake.ID) (*domain.Session, error) {
	if session == nil || session.ID == 0 {
		return nil, domain.ErrInvalidSession
	}
	if orgID != nil && *orgID == 0 {
		orgID = nil
	}
	if err := s.sessionRepo.UpdateActiveOrganization(ctx, session.ID, orgID); err != nil {
		return nil, err
	}

	updated := *session
	if orgID != nil {
		id := *orgID
		updated.ActiveOrgID = &id
	} else {
		updated.ActiveOrgID = nil
	}
	return &updated, nil
}

func (s *Service) Logout(ctx context.Context, rawToken string) error {
	token := strings.TrimSpace(rawToken)
	if token == "" {
		return domain.ErrInvalidSession
	}

	session, err := s.sessionRepo.GetSessionByTokenHash(ctx, hashToken(token))
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return domain.ErrInvalidSession
		}
		return err
	}
	if session.RevokedAt != nil {
		return nil
	}
	return s.sessionRepo.RevokeSession(ctx, session.ID, s.clock.Now())
}

func normalizeEmail(raw string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	return strings.ToLower(strings.TrimSpace(addr.Address)), nil
}

func defaultDisplayName(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) > 0 && strings.TrimSpace(parts[0]) != "" {
		return strings.TrimSpace(parts[0])
	}
	return email
}

func newSessionToken() (string, error) {
	buf := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
