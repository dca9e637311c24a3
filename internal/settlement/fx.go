package settlement

import (
	"github.com/kormohq/kormo/internal/settlement/repository"
	"github.com/kormohq/kormo/internal/settlement/service"
	"go.uber.org/fx"
)

var Module = fx.Module("settlement.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
