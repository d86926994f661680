package telemetry

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// PlayerCounter は他の goroutine から読める人数。
type PlayerCounter interface {
	PlayerCount() int
}

// Metrics はイベントルーターの MetricsRecorder 実装。
type Metrics struct {
	events   metric.Int64Counter
	duration metric.Float64Histogram
	players  metric.Int64ObservableGauge
}

// NewMetrics は provider から計器を作る。provider が nil ならグローバルの MeterProvider。
func NewMetrics(provider metric.MeterProvider, counter PlayerCounter) (*Metrics, error) {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	m := provider.Meter(instrumentationName)
	var (
		out Metrics
		err error
	)

	out.events, err = m.Int64Counter(
		"skirmish.events",
		metric.WithDescription("Events handled by the arena, by name"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating events counter: %w", err)
	}

	out.duration, err = m.Float64Histogram(
		"skirmish.event.duration",
		metric.WithDescription("Time spent handling one event"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating duration histogram: %w", err)
	}

	out.players, err = m.Int64ObservableGauge(
		"skirmish.players",
		metric.WithDescription("Players currently in the arena"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating players gauge: %w", err)
	}
	if counter != nil {
		_, err = m.RegisterCallback(func(ctx context.Context, o metric.Observer) error {
			o.ObserveInt64(out.players, int64(counter.PlayerCount()))
			return nil
		}, out.players)
		if err != nil {
			return nil, fmt.Errorf("registering players callback: %w", err)
		}
	}
	return &out, nil
}

func (m *Metrics) RecordLatency(ctx context.Context, event string, duration time.Duration) {
	m.duration.Record(ctx, float64(duration)/float64(time.Millisecond),
		metric.WithAttributes(attribute.String("event", event)))
}

// IncrementCounter は "events.<name>" 形式の名前を event 属性付きのカウンタに積む。
func (m *Metrics) IncrementCounter(ctx context.Context, name string, delta int) {
	event := strings.TrimPrefix(name, "events.")
	m.events.Add(ctx, int64(delta), metric.WithAttributes(attribute.String("event", event)))
}
