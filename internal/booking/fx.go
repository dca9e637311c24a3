package booking

import (
	"github.com/kormohq/kormo/internal/booking/repository"
	"github.com/kormohq/kormo/internal/booking/service"
	"go.uber.org/fx"
)

var Module = fx.Module("booking.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
