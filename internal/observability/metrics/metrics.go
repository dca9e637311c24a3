package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	bookingTransitions metric.Int64Counter
	paymentEvents      metric.Int64Counter
	settlementRecords  metric.Int64Counter
	outboxDispatches   metric.Int64Counter
	payoutBatches      metric.Int64Counter
	gatewayLatency     metric.Float64Histogram
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "kormo"
	}
	meter := provider.Meter(name)

	bookingTransitions, err := meter.Int64Counter("kormo_booking_transitions_total")
	if err != nil {
		return nil, err
	}
	paymentEvents, err := meter.Int64Counter("kormo_payment_events_total")
	if err != nil {
		return nil, err
	}
	settlementRecords, err := meter.Int64Counter("kormo_settlement_records_total")
	if err != nil {
		return nil, err
	}
	outboxDispatches, err := meter.Int64Counter("kormo_outbox_dispatches_total")
	if err != nil {
		return nil, err
	}
	payoutBatches, err := meter.Int64Counter("kormo_payout_batches_total")
	if err != nil {
		return nil, err
	}
	gatewayLatency, err := meter.Float64Histogram("kormo_gateway_latency_seconds")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		bookingTransitions: bookingTransitions,
		paymentEvents:      paymentEvents,
		settlementRecords:  settlementRecords,
		outboxDispatches:   outboxDispatches,
		payoutBatches:      payoutBatches,
		gatewayLatency:     gatewayLatency,
	}, nil
}

func (m *Metrics) RecordBookingTransition(ctx context.Context, from, to string) {
	if m == nil {
		return
	}
	m.bookingTransitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("from", from),
			attribute.String("to", to),
		),
	)
}

func (m *Metrics) RecordPaymentEvent(ctx context.Context, provider, eventType string) {
	if m == nil {
		return
	}
	m.paymentEvents.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("event_type", eventType),
		),
	)
}

func (m *Metrics) RecordSettlement(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.settlementRecords.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", outcome)),
	)
}

func (m *Metrics) RecordOutboxDispatch(ctx context.Context, kind, outcome string) {
	if m == nil {
		return
	}
	m.outboxDispatches.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("kind", kind),
			attribute.String("outcome", outcome),
		),
	)
}

func (m *Metrics) RecordPayoutBatch(ctx context.Context, created int64) {
	if m == nil {
		return
	}
	m.payoutBatches.Add(ctx, created)
}

func (m *Metrics) ObserveGatewayLatency(ctx context.Context, provider, op string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.gatewayLatency.Record(ctx, elapsed.Seconds(),
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("op", op),
		),
	)
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	ctx := context.Background()
	switch strings.ToLower(strings.TrimSpace(protocol)) {
	case "http", "http/protobuf":
		return otlpmetrichttp.New(ctx,
			otlpmetrichttp.WithEndpoint(endpoint),
			otlpmetrichttp.WithInsecure(),
		)
	case "", "grpc":
		return otlpmetricgrpc.New(ctx,
			otlpmetricgrpc.WithEndpoint(endpoint),
			otlpmetricgrpc.WithInsecure(),
		)
	default:
		return nil, fmt.Errorf("unsupported otlp metrics protocol %q", protocol)
	}
}
