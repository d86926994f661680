package telemetry

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

type Config struct {
	Enabled     bool
	ServiceName string
	// Endpoint は OTLP/gRPC の送信先。空の場合はプロバイダだけ作り、エクスポートしない。
	Endpoint string
	Insecure bool
}

// Provider は OpenTelemetry のトレース・ログ・メトリクスのプロバイダを束ねる。
// 無効時はすべて nil で、グローバルの noop 実装がそのまま使われる。
type Provider struct {
	config         Config
	tracerProvider *sdktrace.TracerProvider
	loggerProvider *sdklog.LoggerProvider
	meterProvider  *sdkmetric.MeterProvider
}

func New(ctx context.Context, cfg Config) (*Provider, error) {
	p := &Provider{config: cfg}
	if !cfg.Enabled {
		return p, nil
	}

	res := resource.NewSchemaless(attribute.String("service.name", cfg.ServiceName))

	traceOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	logOpts := []sdklog.LoggerProviderOption{sdklog.WithResource(res)}
	meterOpts := []sdkmetric.Option{sdkmetric.WithResource(res)}

	if cfg.Endpoint != "" {
		tOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
		lOpts := []otlploggrpc.Option{otlploggrpc.WithEndpoint(cfg.Endpoint)}
		mOpts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			tOpts = append(tOpts, otlptracegrpc.WithInsecure())
			lOpts = append(lOpts, otlploggrpc.WithInsecure())
			mOpts = append(mOpts, otlpmetricgrpc.WithInsecure())
		}

		traceExporter, err := otlptracegrpc.New(ctx, tOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP trace exporter: %w", err)
		}
		traceOpts = append(traceOpts, sdktrace.WithBatcher(traceExporter))

		logExporter, err := otlploggrpc.New(ctx, lOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP log exporter: %w", err)
		}
		logOpts = append(logOpts, sdklog.WithProcessor(sdklog.NewBatchProcessor(logExporter)))

		metricExporter, err := otlpmetricgrpc.New(ctx, mOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP metric exporter: %w", err)
		}
		meterOpts = append(meterOpts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)))
	}

	p.tracerProvider = sdktrace.NewTracerProvider(traceOpts...)
	p.loggerProvider = sdklog.NewLoggerProvider(logOpts...)
	p.meterProvider = sdkmetric.NewMeterProvider(meterOpts...)
	otel.SetTracerProvider(p.tracerProvider)
	otel.SetMeterProvider(p.meterProvider)
	return p, nil
}

// LoggerProvider は otelslog ブリッジ用。無効時は nil。
func (p *Provider) LoggerProvider() *sdklog.LoggerProvider {
	return p.loggerProvider
}

// MeterProvider は NewMetrics に渡す。無効時はグローバル（noop）を返す。
func (p *Provider) MeterProvider() metric.MeterProvider {
	if p.meterProvider == nil {
		return otel.GetMeterProvider()
	}
	return p.meterProvider
}

func (p *Provider) Enabled() bool {
	return p.config.Enabled
}

// Shutdown は未送信のスパン・ログ・メトリクスを flush してから閉じる。
func (p *Provider) Shutdown(ctx context.Context) error {
	var errs []error
	if p.tracerProvider != nil {
		if err := p.tracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("trace shutdown failed: %w", err))
		}
	}
	if p.loggerProvider != nil {
		if err := p.loggerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("log shutdown failed: %w", err))
		}
	}
	if p.meterProvider != nil {
		if err := p.meterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("metric shutdown failed: %w", err))
		}
	}
	return errors.Join(errs...)
}
