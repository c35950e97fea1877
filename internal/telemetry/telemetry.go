// Package telemetry hands out OpenTelemetry instruments. Nothing here
// installs a provider: until a deployment registers one, the global noop
// provider swallows every measurement.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const scope = "github.com/joeblew999/chronomaps"

// Counter returns a named int64 counter, or a noop counter when the
// provider rejects the instrument.
func Counter(name, description string) metric.Int64Counter {
	c, err := otel.Meter(scope).Int64Counter(name, metric.WithDescription(description))
	if err != nil {
		return noop.Int64Counter{}
	}
	return c
}

// Inc adds one to c.
func Inc(c metric.Int64Counter) {
	c.Add(context.Background(), 1)
}
