package payment

import (
	"github.com/kormohq/kormo/internal/config"
	"github.com/kormohq/kormo/internal/payment/adapters"
	"github.com/kormohq/kormo/internal/payment/adapters/bkash"
	"github.com/kormohq/kormo/internal/payment/adapters/nagad"
	"github.com/kormohq/kormo/internal/payment/domain"
	"github.com/kormohq/kormo/internal/payment/repository"
	paymentservice "github.com/kormohq/kormo/internal/payment/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(newRegistry),
	fx.Provide(paymentservice.NewService),
)

// newRegistry wires every adapter whose credentials are configured. Missing
// credentials just leave that provider unavailable.
func newRegistry(cfg config.Config, log *zap.Logger) *adapters.Registry {
	registry := adapters.NewRegistry(
		bkash.NewFactory(),
		nagad.NewFactory(),
	)

	providers := map[string]domain.AdapterConfig{
		"bkash": {
			BaseURL:       cfg.BkashBaseURL,
			Key:           cfg.BkashAppKey,
			Secret:        cfg.BkashAppSecret,
			WebhookSecret: cfg.BkashWebhookSecret,
		},
		"nagad": {
			BaseURL:       cfg.NagadBaseURL,
			Key:           cfg.NagadMerchantID,
			Secret:        cfg.NagadMerchantKey,
			WebhookSecret: cfg.NagadWebhookSecret,
		},
	}
	for provider, adapterCfg := range providers {
		if err := registry.Configure(provider, adapterCfg); err != nil {
			log.Warn("payment provider not configured",
				zap.String("provider", provider),
				zap.Error(err),
			)
		}
	}
	return registry
}
