package invitation

import (
	authdomain "github.com/smallbiznis/taskhub/internal/auth/domain"
	"github.com/smallbiznis/taskhub/internal/invitation/repository"
	"github.com/smallbiznis/taskhub/internal/invitation/service"
	"go.uber.org/fx"
)

var Module = fx.Module("invitation.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(func(s authdomain.Service) service.UserLookup { return s }),
	fx.Provide(service.NewService),
)
