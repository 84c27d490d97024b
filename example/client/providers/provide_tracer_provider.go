package providers

import (
	"context"

	"github.com/gbdevw/gowsnode/example/client/configuration"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
)

// # Description
//
// Provide the tracer provider used by the example client. When tracing is enabled, spans are
// exported to an OTLP HTTP backend and the provider is registered as global tracer provider.
// Otherwise, the global tracer provider (a Nop tracer provider) is returned.
func ProvideTracerProvider(lc fx.Lifecycle, config configuration.Configuration) (trace.TracerProvider, error) {
	if !config.TracingEnabled {
		return otel.GetTracerProvider(), nil
	}
	// Configure OTLP exporter
	exp, err := otlptracehttp.New(context.Background(),
		otlptracehttp.WithEndpoint(config.TracingEndpoint),
		otlptracehttp.WithInsecure())
	if err != nil {
		return nil, err
	}
	// Configure tracer provider
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String("gowsnode.example.client"),
		)),
	)
	otel.SetTracerProvider(tp)
	// Flush spans on exit
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return tp.Shutdown(ctx)
		},
	})
	return tp, nil
}
