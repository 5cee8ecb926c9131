package observability

import (
	"context"

	"go.opentelemetry.io/otel/metric"
)

// OTelClient backs Client with OpenTelemetry metric instruments: counts
// and gauges are derived from Event.Kind/Name rather than requiring the
// caller to pre-register every instrument.
type OTelClient struct {
	counter metric.Float64Counter
	errors  metric.Int64Counter
}

// NewOTelClient builds an OTelClient from meter, creating the
// instruments it needs once.
func NewOTelClient(meter metric.Meter) (*OTelClient, error) {
	counter, err := meter.Float64Counter("statsig.observability.events",
		metric.WithDescription("count of observability/diagnostics/sdk events by name"))
	if err != nil {
		return nil, err
	}
	errs, err := meter.Int64Counter("statsig.observability.errors",
		metric.WithDescription("count of events carrying a non-nil error"))
	if err != nil {
		return nil, err
	}
	return &OTelClient{counter: counter, errors: errs}, nil
}

func (c *OTelClient) HandleEvent(e Event) {
	ctx := context.Background()
	attrs := metric.WithAttributes(attributesFor(e)...)
	c.counter.Add(ctx, 1, attrs)
	if e.Err != nil {
		c.errors.Add(ctx, 1, attrs)
	}
}
