package telemetry

import (
	"context"

	"UsageSync/internal/domain"
	"UsageSync/internal/ports"
)

var _ ports.RunMetrics = (*NoOpExporter)(nil)

// NoOpExporter is a metrics exporter that does nothing.
type NoOpExporter struct{}

// NewNoOpExporter creates a new no-op exporter for graceful degradation.
func NewNoOpExporter() *NoOpExporter {
	return &NoOpExporter{}
}

func (e *NoOpExporter) RecordSync(ctx context.Context, report domain.RunReport) error {
	return nil
}

func (e *NoOpExporter) RecordHarvest(ctx context.Context, report domain.HarvestReport) error {
	return nil
}

func (e *NoOpExporter) Close(ctx context.Context) error {
	return nil
}
