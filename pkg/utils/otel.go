// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package utils

import (
	"context"
	"errors"
	"os"
	"strconv"

	"go.opentelemetry.io/contrib/propagators/jaeger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// OTel protocol constants for the OTLP exporters.
const (
	// OTelProtocolGRPC exports telemetry over OTLP/gRPC.
	OTelProtocolGRPC = "grpc"
	// OTelProtocolHTTP exports telemetry over OTLP/HTTP.
	OTelProtocolHTTP = "http"
)

// OTel exporter selection constants.
const (
	// OTelExporterOTLP enables the OTLP exporter for a signal.
	OTelExporterOTLP = "otlp"
	// OTelExporterNone disables a signal entirely.
	OTelExporterNone = "none"
)

// defaultServiceName is used when OTEL_SERVICE_NAME is not set.
const defaultServiceName = "talktime-meeting-engine"

// OTelConfig holds the OpenTelemetry SDK configuration for the service.
type OTelConfig struct {
	// ServiceName is the service.name resource attribute.
	ServiceName string
	// ServiceVersion is the service.version resource attribute.
	ServiceVersion string
	// Protocol selects the OTLP transport: OTelProtocolGRPC or OTelProtocolHTTP.
	Protocol string
	// Endpoint overrides the default OTLP collector endpoint.
	Endpoint string
	// Insecure disables transport security for the OTLP connection.
	Insecure bool
	// TracesExporter selects the traces exporter: OTelExporterOTLP or OTelExporterNone.
	TracesExporter string
	// TracesSampleRatio is the trace sampling ratio in [0.0, 1.0].
	TracesSampleRatio float64
	// MetricsExporter selects the metrics exporter.
	MetricsExporter string
	// LogsExporter selects the logs exporter.
	LogsExporter string
}

// OTelConfigFromEnv builds an OTelConfig from the standard OTEL_* environment
// variables. Exporters default to "none" so that local development does not
// require a collector.
func OTelConfigFromEnv() OTelConfig {
	serviceName := os.Getenv("OTEL_SERVICE_NAME")
	if serviceName == "" {
		serviceName = defaultServiceName
	}

	protocol := OTelProtocolGRPC
	switch os.Getenv("OTEL_EXPORTER_OTLP_PROTOCOL") {
	case "http", "http/protobuf":
		protocol = OTelProtocolHTTP
	}

	// Only the literal string "true" enables insecure mode.
	insecure := os.Getenv("OTEL_EXPORTER_OTLP_INSECURE") == "true"

	sampleRatio := 1.0
	if ratioRaw := os.Getenv("OTEL_TRACES_SAMPLE_RATIO"); ratioRaw != "" {
		if ratio, err := strconv.ParseFloat(ratioRaw, 64); err == nil && ratio >= 0.0 && ratio <= 1.0 {
			sampleRatio = ratio
		}
	}

	tracesExporter := os.Getenv("OTEL_TRACES_EXPORTER")
	if tracesExporter == "" {
		tracesExporter = OTelExporterNone
	}
	metricsExporter := os.Getenv("OTEL_METRICS_EXPORTER")
	if metricsExporter == "" {
		metricsExporter = OTelExporterNone
	}
	logsExporter := os.Getenv("OTEL_LOGS_EXPORTER")
	if logsExporter == "" {
		logsExporter = OTelExporterNone
	}

	return OTelConfig{
		ServiceName:       serviceName,
		ServiceVersion:    os.Getenv("OTEL_SERVICE_VERSION"),
		Protocol:          protocol,
		Endpoint:          os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		Insecure:          insecure,
		TracesExporter:    tracesExporter,
		TracesSampleRatio: sampleRatio,
		MetricsExporter:   metricsExporter,
		LogsExporter:      logsExporter,
	}
}

// SetupOTelSDK bootstraps the OpenTelemetry SDK from environment variables.
// The returned shutdown function flushes and stops all configured providers;
// it is safe to call more than once.
func SetupOTelSDK(ctx context.Context) (func(context.Context) error, error) {
	return SetupOTelSDKWithConfig(ctx, OTelConfigFromEnv())
}

// SetupOTelSDKWithConfig bootstraps the OpenTelemetry SDK with an explicit
// configuration. Providers for disabled signals are not installed, leaving
// the global no-op implementations in place.
func SetupOTelSDKWithConfig(ctx context.Context, cfg OTelConfig) (func(context.Context) error, error) {
	var shutdownFuncs []func(context.Context) error

	// shutdown calls all registered cleanup functions and clears the list so
	// repeated calls are no-ops.
	shutdown := func(ctx context.Context) error {
		var err error
		for _, fn := range shutdownFuncs {
			err = errors.Join(err, fn(ctx))
		}
		shutdownFuncs = nil
		return err
	}

	res, err := newResource(cfg)
	if err != nil {
		return shutdown, err
	}

	otel.SetTextMapPropagator(newPropagator())

	if cfg.TracesExporter == OTelExporterOTLP {
		tracerProvider, err := newTracerProvider(ctx, cfg, res)
		if err != nil {
			return shutdown, errors.Join(err, shutdown(ctx))
		}
		shutdownFuncs = append(shutdownFuncs, tracerProvider.Shutdown)
		otel.SetTracerProvider(tracerProvider)
	}

	if cfg.MetricsExporter == OTelExporterOTLP {
		meterProvider, err := newMeterProvider(ctx, cfg, res)
		if err != nil {
			return shutdown, errors.Join(err, shutdown(ctx))
		}
		shutdownFuncs = append(shutdownFuncs, meterProvider.Shutdown)
		otel.SetMeterProvider(meterProvider)
	}

	if cfg.LogsExporter == OTelExporterOTLP {
		loggerProvider, err := newLoggerProvider(ctx, cfg, res)
		if err != nil {
			return shutdown, errors.Join(err, shutdown(ctx))
		}
		shutdownFuncs = append(shutdownFuncs, loggerProvider.Shutdown)
		global.SetLoggerProvider(loggerProvider)
	}

	return shutdown, nil
}

// newResource builds the service resource attributes. Environment resource
// attributes (OTEL_RESOURCE_ATTRIBUTES) are merged in.
func newResource(cfg OTelConfig) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{
		semconv.ServiceNameKey.String(cfg.ServiceName),
	}
	if cfg.ServiceVersion != "" {
		attrs = append(attrs, semconv.ServiceVersionKey.String(cfg.ServiceVersion))
	}
	return resource.Merge(resource.Environment(), resource.NewSchemaless(attrs...))
}

// newPropagator returns the composite propagator: W3C trace context, W3C
// baggage, and Jaeger for collectors that still speak uber-trace-id.
func newPropagator() propagation.TextMapPropagator {
	return propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
		jaeger.Jaeger{},
	)
}

func newTracerProvider(ctx context.Context, cfg OTelConfig, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	var exporter sdktrace.SpanExporter
	var err error

	switch cfg.Protocol {
	case OTelProtocolHTTP:
		opts := []otlptracehttp.Option{}
		if cfg.Endpoint != "" {
			opts = append(opts, otlptracehttp.WithEndpoint(cfg.Endpoint))
		}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		exporter, err = otlptracehttp.New(ctx, opts...)
	default:
		opts := []otlptracegrpc.Option{}
		if cfg.Endpoint != "" {
			opts = append(opts, otlptracegrpc.WithEndpoint(cfg.Endpoint))
		}
		if cfg.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		exporter, err = otlptracegrpc.New(ctx, opts...)
	}
	if err != nil {
		return nil, err
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.TracesSampleRatio))),
		sdktrace.WithBatcher(exporter),
	), nil
}

func newMeterProvider(ctx context.Context, cfg OTelConfig, res *resource.Resource) (*sdkmetric.MeterProvider, error) {
	var exporter sdkmetric.Exporter
	var err error

	switch cfg.Protocol {
	case OTelProtocolHTTP:
		opts := []otlpmetrichttp.Option{}
		if cfg.Endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(cfg.Endpoint))
		}
		if cfg.Insecure {
			opts = append(opts, otlpmetrichttp.WithInsecure())
		}
		exporter, err = otlpmetrichttp.New(ctx, opts...)
	default:
		opts := []otlpmetricgrpc.Option{}
		if cfg.Endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(cfg.Endpoint))
		}
		if cfg.Insecure {
			opts = append(opts, otlpmetricgrpc.WithInsecure())
		}
		exporter, err = otlpmetricgrpc.New(ctx, opts...)
	}
	if err != nil {
		return nil, err
	}

	return sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
	), nil
}

func newLoggerProvider(ctx context.Context, cfg OTelConfig, res *resource.Resource) (*sdklog.LoggerProvider, error) {
	var exporter sdklog.Exporter
	var err error

	switch cfg.Protocol {
	case OTelProtocolHTTP:
		opts := []otlploghttp.Option{}
		if cfg.Endpoint != "" {
			opts = append(opts, otlploghttp.WithEndpoint(cfg.Endpoint))
		}
		if cfg.Insecure {
			opts = append(opts, otlploghttp.WithInsecure())
		}
		exporter, err = otlploghttp.New(ctx, opts...)
	default:
		opts := []otlploggrpc.Option{}
		if cfg.Endpoint != "" {
			opts = append(opts, otlploggrpc.WithEndpoint(cfg.Endpoint))
		}
		if cfg.Insecure {
			opts = append(opts, otlploggrpc.WithInsecure())
		}
		exporter, err = otlploggrpc.New(ctx, opts...)
	}
	if err != nil {
		return nil, err
	}

	return sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exporter)),
	), nil
}
