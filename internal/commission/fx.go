package commission

import (
	"github.com/kormohq/kormo/internal/commission/repository"
	"github.com/kormohq/kormo/internal/commission/service"
	"go.uber.org/fx"
)

var Module = fx.Module("commission.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
