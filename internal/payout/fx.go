package payout

import (
	"github.com/kormohq/kormo/internal/payout/repository"
	"github.com/kormohq/kormo/internal/payout/service"
	"go.uber.org/fx"
)

var Module = fx.Module("payout.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
