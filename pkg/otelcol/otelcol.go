package otelcol

import (
	"context"

	"contentplane/pkg/config"
	"contentplane/pkg/otelcol/exporters"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module provides the otel tracer and meter providers, installs them as the
// process globals, and flushes them on shutdown. The span-level callers
// (service logging, otelgorm) all resolve the provider through the global.
var Module = fx.Module("otelcol",
	fx.Provide(
		ProvideSpanExporter,
		ProvideTrace,
		func() metric.Reader { return metric.NewManualReader() },
		ProvideMetric,
	),
	fx.Invoke(Register),
)

// ProvideSpanExporter picks the OTLP transport from config. The collector
// endpoint speaks grpc unless OTEL_PROTOCOL says http.
func ProvideSpanExporter(cfg *config.Config) (trace.SpanExporter, error) {
	if cfg.Otel.Protocol == "http" {
		return exporters.ProvideHttp(cfg)
	}
	return exporters.ProvideGrpc(cfg)
}

func defaultTraceProviderOption() []trace.TracerProviderOption {
	return []trace.TracerProviderOption{
		trace.WithResource(resource.Default()),
	}
}

func ProvideTrace(exporter trace.SpanExporter, opts ...trace.TracerProviderOption) *trace.TracerProvider {
	if len(opts) == 0 {
		opts = defaultTraceProviderOption()
	}

	opts = append(opts, trace.WithBatcher(exporter))

	return trace.NewTracerProvider(opts...)
}

func defaultMetricProviderOption() []metric.Option {
	return []metric.Option{
		metric.WithResource(resource.Default()),
	}
}

func ProvideMetric(reader metric.Reader, opts ...metric.Option) *metric.MeterProvider {
	if len(opts) == 0 {
		opts = defaultMetricProviderOption()
	}

	opts = append(opts, metric.WithReader(reader))

	return metric.NewMeterProvider(opts...)
}

type registerParams struct {
	fx.In
	Lifecycle fx.Lifecycle
	Trace     *trace.TracerProvider
	Metric    *metric.MeterProvider
}

func Register(p registerParams) {
	otel.SetTracerProvider(p.Trace)
	otel.SetMeterProvider(p.Metric)

	p.Lifecycle.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			zap.L().Info("[OTEL] Flushing telemetry providers...")
			if err := p.Trace.Shutdown(ctx); err != nil {
				return err
			}
			return p.Metric.Shutdown(ctx)
		},
	})
}
