package adapters

import (
	"strings"

	"github.com/kormohq/kormo/internal/payment/domain"
)

// Registry resolves a payment method discriminator to a configured gateway.
// Adapters are built once at wiring time, not per request.
type Registry struct {
	factories map[string]domain.GatewayFactory
	gateways  map[string]domain.Gateway
}

func NewRegistry(factories ...domain.GatewayFactory) *Registry {
	registry := &Registry{
		factories: map[string]domain.GatewayFactory{},
		gateways:  map[string]domain.Gateway{},
	}
	for _, factory := range factories {
		if factory == nil {
			continue
		}
		provider := strings.ToLower(strings.TrimSpace(factory.Provider()))
		if provider == "" {
			continue
		}
		registry.factories[provider] = factory
	}
	return registry
}

func (r *Registry) ProviderExists(provider string) bool {
	if r == nil {
		return false
	}
	provider = strings.ToLower(strings.TrimSpace(provider))
	if _, ok := r.gateways[provider]; ok {
		return true
	}
	_, ok := r.factories[provider]
	return ok
}

// Configure builds and caches the gateway for provider. Called once per
// provider during startup.
func (r *Registry) Configure(provider string, cfg domain.AdapterConfig) error {
	if r == nil {
		return domain.ErrProviderNotFound
	}
	provider = strings.ToLower(strings.TrimSpace(provider))
	factory, ok := r.factories[provider]
	if !ok {
		return domain.ErrProviderNotFound
	}
	gateway, err := factory.New(cfg)
	if err != nil {
		return err
	}
	r.gateways[provider] = gateway
	return nil
}

func (r *Registry) Gateway(provider string) (domain.Gateway, error) {
	if r == nil {
		return nil, domain.ErrProviderNotFound
	}
	provider = strings.ToLower(strings.TrimSpace(provider))
	gateway, ok := r.gateways[provider]
	if !ok {
		return nil, domain.ErrProviderNotFound
	}
	return gateway, nil
}
