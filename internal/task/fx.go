package task

import (
	authdomain "github.com/smallbiznis/taskhub/internal/auth/domain"
	"github.com/smallbiznis/taskhub/internal/task/repository"
	"github.com/smallbiznis/taskhub/internal/task/service"
	"go.uber.org/fx"
)

var Module = fx.Module("task.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(func(s authdomain.Service) service.UserLookup { return s }),
	fx.Provide(service.NewService),
)
