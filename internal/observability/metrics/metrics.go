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
	itemStatusChanges  metric.Int64Counter
	commissionUpdates  metric.Int64Counter
	summariesGenerated metric.Int64Counter
	summarySubmissions metric.Int64Counter
	authzDenied        metric.Int64Counter
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

// New configures the settlement instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "wasteflow"
	}
	meter := provider.Meter(name)

	itemStatusChanges, err := meter.Int64Counter("wasteflow_item_status_changes_total")
	if err != nil {
		return nil, err
	}
	commissionUpdates, err := meter.Int64Counter("wasteflow_commission_updates_total")
	if err != nil {
		return nil, err
	}
	summariesGenerated, err := meter.Int64Counter("wasteflow_summaries_generated_total")
	if err != nil {
		return nil, err
	}
	summarySubmissions, err := meter.Int64Counter("wasteflow_summary_submissions_total")
	if err != nil {
		return nil, err
	}
	authzDenied, err := meter.Int64Counter("wasteflow_authz_denied_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		itemStatusChanges:  itemStatusChanges,
		commissionUpdates:  commissionUpdates,
		summariesGenerated: summariesGenerated,
		summarySubmissions: summarySubmissions,
		authzDenied:        authzDenied,
	}, nil
}

// RecordItemStatusChange increments item transition counts.
func (m *Metrics) RecordItemStatusChange(ctx context.Context, status string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("status", strings.TrimSpace(status)))
	m.itemStatusChanges.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordCommissionUpdate increments commission annotation counts.
func (m *Metrics) RecordCommissionUpdate(ctx context.Context, commissionType string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("commission_type", strings.TrimSpace(commissionType)))
	m.commissionUpdates.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordSummaryGenerated increments summary generation counts.
func (m *Metrics) RecordSummaryGenerated(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("outcome", strings.TrimSpace(outcome)))
	m.summariesGenerated.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordSummarySubmission increments summary workflow counts.
func (m *Metrics) RecordSummarySubmission(ctx context.Context, status string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("status", strings.TrimSpace(status)))
	m.summarySubmissions.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordAuthzDenied increments authorization denial counts.
func (m *Metrics) RecordAuthzDenied(ctx context.Context, orgID, object, action string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("org_id", strings.TrimSpace(orgID)),
		attribute.String("object", strings.TrimSpace(object)),
		attribute.String("action", strings.TrimSpace(action)),
	)
	m.authzDenied.Add(ctx, 1, metric.WithAttributes(attrs...))
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
	"org_id":          {},
	"endpoint":        {},
	"status":          {},
	"status_code":     {},
	"commission_type": {},
	"outcome":         {},
	"object":          {},
	"action":          {},
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
