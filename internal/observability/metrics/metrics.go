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
	quoteTransitions     metric.Int64Counter
	signatureEvents      metric.Int64Counter
	salesforceSyncs      metric.Int64Counter
	notificationFailures metric.Int64Counter
	externalCalls        metric.Int64Counter
	rateLimited          metric.Int64Counter
	jobRuns              metric.Int64Counter
	jobDuration          metric.Float64Histogram
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

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "pricedesk"
	}
	meter := provider.Meter(name)

	quoteTransitions, err := meter.Int64Counter("pricedesk_quote_transitions_total")
	if err != nil {
		return nil, err
	}
	signatureEvents, err := meter.Int64Counter("pricedesk_signature_events_total")
	if err != nil {
		return nil, err
	}
	salesforceSyncs, err := meter.Int64Counter("pricedesk_salesforce_syncs_total")
	if err != nil {
		return nil, err
	}
	notificationFailures, err := meter.Int64Counter("pricedesk_notification_failures_total")
	if err != nil {
		return nil, err
	}
	externalCalls, err := meter.Int64Counter("pricedesk_external_calls_total")
	if err != nil {
		return nil, err
	}
	rateLimited, err := meter.Int64Counter("pricedesk_rate_limited_total")
	if err != nil {
		return nil, err
	}
	jobRuns, err := meter.Int64Counter("pricedesk_sweep_job_runs_total")
	if err != nil {
		return nil, err
	}
	jobDuration, err := meter.Float64Histogram("pricedesk_sweep_job_duration_seconds", metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		quoteTransitions:     quoteTransitions,
		signatureEvents:      signatureEvents,
		salesforceSyncs:      salesforceSyncs,
		notificationFailures: notificationFailures,
		externalCalls:        externalCalls,
		rateLimited:          rateLimited,
		jobRuns:              jobRuns,
		jobDuration:          jobDuration,
	}, nil
}

// RecordQuoteTransition counts quote status changes.
func (m *Metrics) RecordQuoteTransition(ctx context.Context, tenantID, from, to string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("tenant_id", strings.TrimSpace(tenantID)),
		attribute.String("from_status", strings.TrimSpace(from)),
		attribute.String("to_status", strings.TrimSpace(to)),
	)
	m.quoteTransitions.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordSignatureEvent counts e-sign webhook events by type.
func (m *Metrics) RecordSignatureEvent(ctx context.Context, tenantID, eventType string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("tenant_id", strings.TrimSpace(tenantID)),
		attribute.String("event_type", strings.TrimSpace(eventType)),
	)
	m.signatureEvents.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordSalesforceSync counts sync runs by direction and outcome.
func (m *Metrics) RecordSalesforceSync(ctx context.Context, tenantID, direction, status string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("tenant_id", strings.TrimSpace(tenantID)),
		attribute.String("direction", strings.TrimSpace(direction)),
		attribute.String("status", strings.TrimSpace(status)),
	)
	m.salesforceSyncs.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordNotificationFailure counts emails that could not be delivered.
func (m *Metrics) RecordNotificationFailure(ctx context.Context, template string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("template", strings.TrimSpace(template)))
	m.notificationFailures.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordExternalCall counts calls to third-party providers.
func (m *Metrics) RecordExternalCall(ctx context.Context, provider, operation, status string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("provider", strings.TrimSpace(provider)),
		attribute.String("operation", strings.TrimSpace(operation)),
		attribute.String("status", strings.TrimSpace(status)),
	)
	m.externalCalls.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRateLimited counts requests rejected by a rate limiter.
func (m *Metrics) RecordRateLimited(ctx context.Context, endpoint, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("endpoint", strings.TrimSpace(endpoint)),
		attribute.String("reason", strings.TrimSpace(reason)),
	)
	m.rateLimited.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordJobRun counts one sweep job run and its duration. status is
// success, error, timeout or skipped.
func (m *Metrics) RecordJobRun(ctx context.Context, job, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("job", strings.TrimSpace(job)),
		attribute.String("status", strings.TrimSpace(status)),
	)
	m.jobRuns.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.jobDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attrs...))
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
	"tenant_id":   {},
	"from_status": {},
	"to_status":   {},
	"event_type":  {},
	"direction":   {},
	"status":      {},
	"template":    {},
	"provider":    {},
	"operation":   {},
	"endpoint":    {},
	"reason":      {},
	"job":         {},
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
