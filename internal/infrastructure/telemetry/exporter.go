package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"

	"UsageSync/internal/config"
	"UsageSync/internal/domain"
	"UsageSync/internal/ports"
)

const (
	serviceName    = "usagesync"
	serviceVersion = "1.0.0"
)

var _ ports.RunMetrics = (*Exporter)(nil)

// Exporter exports sync and harvest outcomes to an OTEL Collector.
type Exporter struct {
	provider     *sdkmetric.MeterProvider
	pairsTotal   metric.Int64Counter
	assetsTotal  metric.Int64Counter
	runsTotal    metric.Int64Counter
	durationHist metric.Float64Histogram
	itemsTotal   metric.Int64Counter
}

// NewExporter creates an OTLP/gRPC metrics exporter.
func NewExporter(ctx context.Context, cfg config.TelemetryConfig) (*Exporter, error) {
	if !cfg.Enabled || cfg.Endpoint == "" {
		return nil, fmt.Errorf("OTEL exporter is disabled or endpoint not configured")
	}

	opts := []otlpmetricgrpc.Option{
		otlpmetricgrpc.WithEndpoint(cfg.Endpoint),
	}
	if cfg.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}

	exp, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating OTLP exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	e, err := newExporter(sdkmetric.NewPeriodicReader(exp), res)
	if err != nil {
		return nil, err
	}
	otel.SetMeterProvider(e.provider)
	return e, nil
}

func newExporter(reader sdkmetric.Reader, res *resource.Resource) (*Exporter, error) {
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(reader),
		sdkmetric.WithResource(res),
	)
	meter := provider.Meter(serviceName)

	pairsTotal, err := meter.Int64Counter(
		"usagesync_pairs_total",
		metric.WithDescription("Asset/day pairs processed, by outcome"),
		metric.WithUnit("{pair}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating pairs counter: %w", err)
	}

	assetsTotal, err := meter.Int64Counter(
		"usagesync_assets_total",
		metric.WithDescription("Assets processed per run, by status"),
		metric.WithUnit("{asset}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating assets counter: %w", err)
	}

	runsTotal, err := meter.Int64Counter(
		"usagesync_runs_total",
		metric.WithDescription("Completed sync runs"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating runs counter: %w", err)
	}

	durationHist, err := meter.Float64Histogram(
		"usagesync_run_duration_seconds",
		metric.WithDescription("Run duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating duration histogram: %w", err)
	}

	itemsTotal, err := meter.Int64Counter(
		"usagesync_catalog_items_total",
		metric.WithDescription("Catalog items seen by harvests, by result"),
		metric.WithUnit("{item}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating items counter: %w", err)
	}

	return &Exporter{
		provider:     provider,
		pairsTotal:   pairsTotal,
		assetsTotal:  assetsTotal,
		runsTotal:    runsTotal,
		durationHist: durationHist,
		itemsTotal:   itemsTotal,
	}, nil
}

// RecordSync records pair outcomes, asset statuses and duration of a run.
func (e *Exporter) RecordSync(ctx context.Context, report domain.RunReport) error {
	base := []attribute.KeyValue{
		attribute.String("source", report.Source),
		attribute.String("mode", string(report.Mode)),
		attribute.String("concurrency", string(report.Concurrency)),
	}
	opt := metric.WithAttributes(base...)

	outcomes := []struct {
		outcome domain.PairOutcome
		n       int
	}{
		{domain.OutcomeStored, report.Totals.Stored},
		{domain.OutcomeExisting, report.Totals.Existing},
		{domain.OutcomeRaced, report.Totals.Raced},
		{domain.OutcomeBeforeCreation, report.Totals.BeforeCreation},
		{domain.OutcomeFetchFailed, report.Totals.FetchFailed},
		{domain.OutcomeStoreFailed, report.Totals.StoreFailed},
	}
	for _, o := range outcomes {
		if o.n == 0 {
			continue
		}
		e.pairsTotal.Add(ctx, int64(o.n), metric.WithAttributes(append(base, attribute.String("outcome", string(o.outcome)))...))
	}

	failed := report.FailedAssets()
	e.assetsTotal.Add(ctx, int64(len(report.Assets)-failed), metric.WithAttributes(append(base, attribute.String("status", "ok"))...))
	if failed > 0 {
		e.assetsTotal.Add(ctx, int64(failed), metric.WithAttributes(append(base, attribute.String("status", "failed"))...))
	}

	e.durationHist.Record(ctx, report.Duration().Seconds(), opt)
	e.runsTotal.Add(ctx, 1, opt)

	return nil
}

// RecordHarvest records the catalog item counts of a harvest by result.
func (e *Exporter) RecordHarvest(ctx context.Context, report domain.HarvestReport) error {
	source := attribute.String("source", report.Source)
	for result, n := range map[string]int64{
		"upserted": int64(report.Upserted),
		"failed":   int64(report.Failed),
		"archived": report.Archived,
	} {
		if n == 0 {
			continue
		}
		e.itemsTotal.Add(ctx, n, metric.WithAttributes(source, attribute.String("result", result)))
	}
	return nil
}

// Close shuts down the exporter and flushes any pending metrics.
func (e *Exporter) Close(ctx context.Context) error {
	return e.provider.Shutdown(ctx)
}
