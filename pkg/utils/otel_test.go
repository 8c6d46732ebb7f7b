// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package utils

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// otelEnvVars are the environment variables read by OTelConfigFromEnv.
var otelEnvVars = []string{
	"OTEL_SERVICE_NAME",
	"OTEL_SERVICE_VERSION",
	"OTEL_EXPORTER_OTLP_PROTOCOL",
	"OTEL_EXPORTER_OTLP_ENDPOINT",
	"OTEL_EXPORTER_OTLP_INSECURE",
	"OTEL_TRACES_EXPORTER",
	"OTEL_TRACES_SAMPLE_RATIO",
	"OTEL_METRICS_EXPORTER",
	"OTEL_LOGS_EXPORTER",
}

// clearOTelEnv blanks every OTEL_* variable for the duration of the test so
// the config falls back to its defaults. t.Setenv restores the originals.
func clearOTelEnv(t *testing.T) {
	t.Helper()
	for _, name := range otelEnvVars {
		t.Setenv(name, "")
	}
}

func TestOTelConfigFromEnv(t *testing.T) {
	t.Run("defaults when nothing is set", func(t *testing.T) {
		clearOTelEnv(t)

		cfg := OTelConfigFromEnv()

		assert.Equal(t, "talktime-meeting-engine", cfg.ServiceName)
		assert.Empty(t, cfg.ServiceVersion)
		assert.Equal(t, OTelProtocolGRPC, cfg.Protocol)
		assert.Empty(t, cfg.Endpoint)
		assert.False(t, cfg.Insecure)
		assert.Equal(t, OTelExporterNone, cfg.TracesExporter)
		assert.Equal(t, 1.0, cfg.TracesSampleRatio)
		assert.Equal(t, OTelExporterNone, cfg.MetricsExporter)
		assert.Equal(t, OTelExporterNone, cfg.LogsExporter)
	})

	t.Run("reads every variable", func(t *testing.T) {
		clearOTelEnv(t)
		t.Setenv("OTEL_SERVICE_NAME", "engine-under-test")
		t.Setenv("OTEL_SERVICE_VERSION", "1.2.3")
		t.Setenv("OTEL_EXPORTER_OTLP_PROTOCOL", "http")
		t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4318")
		t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "true")
		t.Setenv("OTEL_TRACES_EXPORTER", "otlp")
		t.Setenv("OTEL_TRACES_SAMPLE_RATIO", "0.25")
		t.Setenv("OTEL_METRICS_EXPORTER", "otlp")
		t.Setenv("OTEL_LOGS_EXPORTER", "otlp")

		cfg := OTelConfigFromEnv()

		assert.Equal(t, "engine-under-test", cfg.ServiceName)
		assert.Equal(t, "1.2.3", cfg.ServiceVersion)
		assert.Equal(t, OTelProtocolHTTP, cfg.Protocol)
		assert.Equal(t, "collector:4318", cfg.Endpoint)
		assert.True(t, cfg.Insecure)
		assert.Equal(t, OTelExporterOTLP, cfg.TracesExporter)
		assert.Equal(t, 0.25, cfg.TracesSampleRatio)
		assert.Equal(t, OTelExporterOTLP, cfg.MetricsExporter)
		assert.Equal(t, OTelExporterOTLP, cfg.LogsExporter)
	})
}

func TestOTelConfigFromEnvProtocol(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		expected string
	}{
		{name: "unset defaults to grpc", value: "", expected: OTelProtocolGRPC},
		{name: "http", value: "http", expected: OTelProtocolHTTP},
		{name: "http/protobuf", value: "http/protobuf", expected: OTelProtocolHTTP},
		{name: "grpc", value: "grpc", expected: OTelProtocolGRPC},
		{name: "unknown falls back to grpc", value: "carrier-pigeon", expected: OTelProtocolGRPC},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			clearOTelEnv(t)
			t.Setenv("OTEL_EXPORTER_OTLP_PROTOCOL", tc.value)

			assert.Equal(t, tc.expected, OTelConfigFromEnv().Protocol)
		})
	}
}

func TestOTelConfigFromEnvSampleRatio(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		expected float64
	}{
		{name: "zero", value: "0.0", expected: 0.0},
		{name: "half", value: "0.5", expected: 0.5},
		{name: "one", value: "1.0", expected: 1.0},
		{name: "negative is ignored", value: "-0.5", expected: 1.0},
		{name: "above one is ignored", value: "1.5", expected: 1.0},
		{name: "garbage is ignored", value: "lots", expected: 1.0},
		{name: "unset keeps the default", value: "", expected: 1.0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			clearOTelEnv(t)
			t.Setenv("OTEL_TRACES_SAMPLE_RATIO", tc.value)

			assert.Equal(t, tc.expected, OTelConfigFromEnv().TracesSampleRatio)
		})
	}
}

func TestOTelConfigFromEnvInsecure(t *testing.T) {
	// Only the literal "true" counts.
	tests := []struct {
		value    string
		expected bool
	}{
		{value: "true", expected: true},
		{value: "TRUE", expected: false},
		{value: "1", expected: false},
		{value: "yes", expected: false},
		{value: "", expected: false},
	}

	for _, tc := range tests {
		t.Run("value "+tc.value, func(t *testing.T) {
			clearOTelEnv(t)
			t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", tc.value)

			assert.Equal(t, tc.expected, OTelConfigFromEnv().Insecure)
		})
	}
}

func TestSetupOTelSDKWithConfig(t *testing.T) {
	disabled := OTelConfig{
		ServiceName:       "engine-under-test",
		Protocol:          OTelProtocolGRPC,
		TracesExporter:    OTelExporterNone,
		TracesSampleRatio: 1.0,
		MetricsExporter:   OTelExporterNone,
		LogsExporter:      OTelExporterNone,
	}

	t.Run("all signals disabled still yields a shutdown func", func(t *testing.T) {
		ctx := context.Background()

		shutdown, err := SetupOTelSDKWithConfig(ctx, disabled)
		require.NoError(t, err)
		require.NotNil(t, shutdown)

		assert.NoError(t, shutdown(ctx))
	})

	t.Run("shutdown is safe to call twice", func(t *testing.T) {
		ctx := context.Background()

		shutdown, err := SetupOTelSDKWithConfig(ctx, disabled)
		require.NoError(t, err)

		assert.NoError(t, shutdown(ctx))
		assert.NoError(t, shutdown(ctx))
	})
}

func TestSetupOTelSDKFromEnv(t *testing.T) {
	// With a clean environment every exporter defaults to "none", so setup
	// must succeed without a collector listening anywhere.
	clearOTelEnv(t)
	ctx := context.Background()

	shutdown, err := SetupOTelSDK(ctx)
	require.NoError(t, err)
	require.NotNil(t, shutdown)

	assert.NoError(t, shutdown(ctx))
}

func TestNewResource(t *testing.T) {
	tests := []struct {
		name           string
		serviceName    string
		serviceVersion string
		wantVersion    bool
	}{
		{name: "name and version", serviceName: "engine-under-test", serviceVersion: "2.0.0", wantVersion: true},
		{name: "version omitted when empty", serviceName: "engine-under-test", serviceVersion: "", wantVersion: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res, err := newResource(OTelConfig{ServiceName: tc.serviceName, ServiceVersion: tc.serviceVersion})
			require.NoError(t, err)
			require.NotNil(t, res)

			attrs := make(map[string]string)
			for _, attr := range res.Attributes() {
				attrs[string(attr.Key)] = attr.Value.AsString()
			}

			assert.Equal(t, tc.serviceName, attrs["service.name"])
			if tc.wantVersion {
				assert.Equal(t, tc.serviceVersion, attrs["service.version"])
			} else {
				assert.NotContains(t, attrs, "service.version")
			}
		})
	}
}

func TestNewPropagator(t *testing.T) {
	prop := newPropagator()
	require.NotNil(t, prop)

	fields := prop.Fields()

	// W3C trace context and baggage plus the legacy Jaeger header.
	assert.Contains(t, fields, "traceparent")
	assert.Contains(t, fields, "tracestate")
	assert.Contains(t, fields, "baggage")
	assert.Contains(t, fields, "uber-trace-id")
}
