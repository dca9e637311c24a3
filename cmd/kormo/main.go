package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/kormohq/kormo/internal/booking"
	"github.com/kormohq/kormo/internal/clock"
	"github.com/kormohq/kormo/internal/commission"
	"github.com/kormohq/kormo/internal/config"
	"github.com/kormohq/kormo/internal/migration"
	"github.com/kormohq/kormo/internal/notification"
	"github.com/kormohq/kormo/internal/observability"
	"github.com/kormohq/kormo/internal/outbox"
	"github.com/kormohq/kormo/internal/payment"
	"github.com/kormohq/kormo/internal/payout"
	"github.com/kormohq/kormo/internal/providers"
	"github.com/kormohq/kormo/internal/ratelimit"
	"github.com/kormohq/kormo/internal/scheduler"
	"github.com/kormohq/kormo/internal/server"
	"github.com/kormohq/kormo/internal/settlement"
	"github.com/kormohq/kormo/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		providers.Module,
		commission.Module,
		booking.Module,
		settlement.Module,
		payment.Module,
		payout.Module,
		notification.Module,
		outbox.Module,
		ratelimit.Module,
		scheduler.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
