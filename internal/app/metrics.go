package app

import (
	"context"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/metric"
)

// TrackLen mirrors the registry size into an up/down counter.
func TrackLen[T any](r *Registry[T], meter metric.Meter, name, description string) {
	counter, err := meter.Int64UpDownCounter(name, metric.WithDescription(description))
	if err != nil {
		log.Warn().Err(err).Str("module", "app").Str("metric", name).Msg("counter unavailable")
		return
	}
	last := 0
	r.Subscribe(func(s []T) {
		// Snapshots arrive in mutation order, one at a time.
		counter.Add(context.Background(), int64(len(s)-last))
		last = len(s)
	})
}
