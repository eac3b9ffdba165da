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

// Metrics exposes billing instruments. A nil *Metrics is a valid no-op.
type Metrics struct {
	billsGenerated   metric.Int64Counter
	billSkips        metric.Int64Counter
	paymentsRecorded metric.Int64Counter
	billsPaid        metric.Int64Counter
	sequenceRetries  metric.Int64Counter
	dispatchFailures metric.Int64Counter
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
				log.Info("shutting down meter provider")
				return provider.Shutdown(ctx)
			},
		})
	}

	log.Info("metrics initialized",
		zap.String("endpoint", cfg.ExporterEndpoint),
		zap.String("protocol", cfg.ExporterProtocol),
	)

	return provider, nil
}

// New creates the billing instruments on provider.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "aquabill"
	}
	meter := provider.Meter(name)

	billsGenerated, err := meter.Int64Counter("aquabill_bills_generated_total")
	if err != nil {
		return nil, err
	}
	billSkips, err := meter.Int64Counter("aquabill_bill_generation_skipped_total")
	if err != nil {
		return nil, err
	}
	paymentsRecorded, err := meter.Int64Counter("aquabill_payments_recorded_total")
	if err != nil {
		return nil, err
	}
	billsPaid, err := meter.Int64Counter("aquabill_bills_paid_total")
	if err != nil {
		return nil, err
	}
	sequenceRetries, err := meter.Int64Counter("aquabill_sequence_retries_total")
	if err != nil {
		return nil, err
	}
	dispatchFailures, err := meter.Int64Counter("aquabill_dispatch_failures_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		billsGenerated:   billsGenerated,
		billSkips:        billSkips,
		paymentsRecorded: paymentsRecorded,
		billsPaid:        billsPaid,
		sequenceRetries:  sequenceRetries,
		dispatchFailures: dispatchFailures,
	}, nil
}

func (m *Metrics) RecordBillGenerated(ctx context.Context) {
	if m == nil {
		return
	}
	m.billsGenerated.Add(ctx, 1)
}

// RecordBillSkipped counts a household skipped by batch generation.
func (m *Metrics) RecordBillSkipped(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("reason", strings.TrimSpace(reason)))
	m.billSkips.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordPayment(ctx context.Context, method string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("method", strings.TrimSpace(method)))
	m.paymentsRecorded.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordBillPaid(ctx context.Context) {
	if m == nil {
		return
	}
	m.billsPaid.Add(ctx, 1)
}

// RecordSequenceRetry counts a transaction replayed after an identifier conflict.
func (m *Metrics) RecordSequenceRetry(ctx context.Context, prefix string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("prefix", strings.TrimSpace(prefix)))
	m.sequenceRetries.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordDispatchFailure(ctx context.Context, eventType string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("event_type", strings.TrimSpace(eventType)))
	m.dispatchFailures.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"reason":     {},
	"method":     {},
	"prefix":     {},
	"event_type": {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
