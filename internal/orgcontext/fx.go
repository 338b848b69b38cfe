package orgcontext

import (
	authdomain "github.com/smallbiznis/taskhub/internal/auth/domain"
	membershipdomain "github.com/smallbiznis/taskhub/internal/membership/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("orgcontext",
	fx.Provide(
		func(s authdomain.Service) SessionStore { return s },
		func(s membershipdomain.Service) MembershipLister { return s },
		NewResolver,
	),
)
