package orgcontext

import (
	"context"
	"net/url"

	"github.com/bwmarrin/snowflake"
	authdomain "github.com/smallbiznis/taskhub/internal/auth/domain"
	membershipdomain "github.com/smallbiznis/taskhub/internal/membership/domain"
	"github.com/smallbiznis/taskhub/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	PathSignIn             = "/sign-in"
	PathTasks              = "/tasks"
	PathCreateOrganization = "/organizations/new"
)

// Outcome labels what the resolver decided for a request.
type Outcome string

const (
	OutcomeProceed         Outcome = "proceed"
	OutcomeUnauthenticated Outcome = "unauthenticated"
	// OutcomeHealed: the pointer referenced an organization the user left.
	OutcomeHealed Outcome = "healed"
	// OutcomeCleared: the pointer was stale and no organization remains.
	OutcomeCleared  Outcome = "cleared"
	OutcomeSelected Outcome = "selected"
	// OutcomeOnboarding: no pointer and no organizations; nothing is written.
	OutcomeOnboarding Outcome = "onboarding"
)

// Result is the resolver decision for one request.
type Result struct {
	Outcome       Outcome
	Redirect      string
	Session       *authdomain.Session
	Organizations []membershipdomain.OrganizationRef
	Active        *membershipdomain.OrganizationRef
}

// Proceed reports whether the request may render organization data.
func (r *Result) Proceed() bool {
	return r != nil && r.Outcome == OutcomeProceed
}

// Mutated reports whether the session pointer was written.
func (r *Result) Mutated() bool {
	if r == nil {
		return false
	}
	switch r.Outcome {
	case OutcomeHealed, OutcomeCleared, OutcomeSelected:
		return true
	}
	return false
}

type SessionStore interface {
	SetActiveOrganization(ctx context.Context, session *authdomain.Session, orgID *snowflake.ID) (*authdomain.Session, error)
}

type MembershipLister interface {
	ListOrganizationsByUser(ctx context.Context, userID snowflake.ID) ([]membershipdomain.OrganizationRef, error)
}

type Params struct {
	fx.In

	Log         *zap.Logger
	Sessions    SessionStore
	Memberships MembershipLister
	Metrics     *metrics.Metrics `optional:"true"`
}

// Resolver reconciles a session's active organization with the membership
// store before organization-scoped pages render.
type Resolver struct {
	log         *zap.Logger
	sessions    SessionStore
	memberships MembershipLister
	metrics     *metrics.Metrics
}

func NewResolver(p Params) *Resolver {
	return &Resolver{
		log:         p.Log.Named("orgcontext.resolver"),
		sessions:    p.Sessions,
		memberships: p.Memberships,
		metrics:     p.Metrics,
	}
}

// Resolve never fails on a stale pointer; it repairs it and asks for a
// redirect instead. Errors are store failures only.
func (r *Resolver) Resolve(ctx context.Context, session *authdomain.Session, requestPath string) (*Result, error) {
	if session == nil {
		return r.finish(ctx, &Result{
			Outcome:  OutcomeUnauthenticated,
			Redirect: SignInPath(requestPath),
		}), nil
	}

	orgs, err := r.memberships.ListOrganizationsByUser(ctx, session.UserID)
	if err != nil {
		return nil, err
	}

	result := &Result{Session: session, Organizations: orgs}

	if session.HasActiveOrganization() {
		for i := range orgs {
			if orgs[i].ID == *session.ActiveOrgID {
				result.Outcome = OutcomeProceed
				result.Active = &orgs[i]
				return r.finish(ctx, result), nil
			}
		}

		if len(orgs) == 0 {
			updated, err := r.sessions.SetActiveOrganization(ctx, session, nil)
			if err != nil {
				return nil, err
			}
			r.log.Info("cleared stale active organization",
				zap.String("user_id", session.UserID.String()),
				zap.String("stale_org_id", session.ActiveOrgID.String()),
			)
			result.Session = updated
			result.Outcome = OutcomeCleared
			result.Redirect = PathCreateOrganization
			return r.finish(ctx, result), nil
		}

		updated, err := r.selectFirst(ctx, session, orgs)
		if err != nil {
			return nil, err
		}
		r.log.Info("healed stale active organization",
			zap.String("user_id", session.UserID.String()),
			zap.String("stale_org_id", session.ActiveOrgID.String()),
			zap.String("org_id", orgs[0].ID.String()),
		)
		result.Session = updated
		result.Active = &orgs[0]
		result.Outcome = OutcomeHealed
		result.Redirect = PathTasks
		return r.finish(ctx, result), nil
	}

	if len(orgs) == 0 {
		result.Outcome = OutcomeOnboarding
		result.Redirect = PathCreateOrganization
		return r.finish(ctx, result), nil
	}

	updated, err := r.selectFirst(ctx, session, orgs)
	if err != nil {
		return nil, err
	}
	result.Session = updated
	result.Active = &orgs[0]
	result.Outcome = OutcomeSelected
	result.Redirect = PathTasks
	return r.finish(ctx, result), nil
}

func (r *Resolver) selectFirst(ctx context.Context, session *authdomain.Session, orgs []membershipdomain.OrganizationRef) (*authdomain.Session, error) {
	orgID := orgs[0].ID
	return r.sessions.SetActiveOrganization(ctx, session, &orgID)
}

func (r *Resolver) finish(ctx context.Context, result *Result) *Result {
	r.metrics.RecordReconciliation(ctx, string(result.Outcome))
	return result
}

// SignInPath builds the sign-in redirect that returns to requestPath.
func SignInPath(requestPath string) string {
	if requestPath == "" || requestPath == "/" {
		return PathSignIn
	}
	return PathSignIn + "?redirect_to=" + url.QueryEscape(requestPath)
}
