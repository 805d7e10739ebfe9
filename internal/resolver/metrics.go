package resolver

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	meter              = otel.Meter("murmur/resolver")
	resolutionsTotal   metric.Int64Counter
	resolutionDuration metric.Float64Histogram
)

func init() {
	var err error
	resolutionsTotal, err = meter.Int64Counter(
		"murmur.resolutions",
		metric.WithDescription("Resolution attempts by outcome"),
	)
	if err != nil {
		panic(err)
	}
	resolutionDuration, err = meter.Float64Histogram(
		"murmur.resolution.duration",
		metric.WithDescription("Time spent resolving one utterance"),
		metric.WithUnit("s"),
	)
	if err != nil {
		panic(err)
	}
}

// recordResolution counts one attempt. outcome is "ok" or an error kind.
func recordResolution(ctx context.Context, outcome, action string, elapsed time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.String("action", action),
	)
	resolutionsTotal.Add(ctx, 1, attrs)
	resolutionDuration.Record(ctx, elapsed.Seconds(), attrs)
}
