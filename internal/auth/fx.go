package auth

import (
	authconfig "github.com/smallbiznis/taskhub/internal/auth/config"
	"github.com/smallbiznis/taskhub/internal/auth/oauth"
	"github.com/smallbiznis/taskhub/internal/auth/repository"
	"github.com/smallbiznis/taskhub/internal/auth/service"
	membershipdomain "github.com/smallbiznis/taskhub/internal/membership/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("auth.service",
	fx.Provide(repository.New),
	fx.Provide(service.New),
	fx.Provide(func(s membershipdomain.Service) service.MembershipLookup { return s }),
	fx.Provide(authconfig.ParseAuthProvidersFromEnv),
	fx.Provide(authconfig.BuildAuthProviderRegistry),
	fx.Provide(oauth.NewService),
	fx.Invoke(ensureAuthProviderRegistry),
)

func ensureAuthProviderRegistry(_ authconfig.AuthProviderRegistry) {}
