// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go/jetstream"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/talktime/meeting-engine/internal/domain"
	"github.com/talktime/meeting-engine/internal/logging"
)

// NatsSettingsRepository is the NATS KV store repository for the engine's
// runtime settings. Values are stored as raw strings (e.g. "40"), not JSON
// documents, so the repository works on the KV interface directly instead of
// going through the generic base repository.
type NatsSettingsRepository struct {
	kvStore INatsKeyValue
}

// NewNatsSettingsRepository creates a new NATS KV store repository for settings.
func NewNatsSettingsRepository(settings INatsKeyValue) *NatsSettingsRepository {
	return &NatsSettingsRepository{
		kvStore: settings,
	}
}

// IsReady checks if the repository is ready for use
func (r *NatsSettingsRepository) IsReady() bool {
	return r.kvStore != nil
}

// ListSettings retrieves every setting override currently in the store.
// Settings absent from the map fall back to the engine's built-in defaults.
func (r *NatsSettingsRepository) ListSettings(ctx context.Context) (map[string]string, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "nats.kv.list_keys",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "nats"),
			attribute.String("db.operation", "list_keys"),
			attribute.String("db.nats.entity", "setting"),
		),
	)
	defer span.End()

	if !r.IsReady() {
		err := domain.NewUnavailableError("settings repository is not available")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	lister, err := r.kvStore.ListKeys(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "error listing settings from NATS KV", logging.ErrKey, err)
		err = domain.NewInternalError("failed to list settings from store", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	// A setting deleted between the listing and the get is simply absent.
	settings := map[string]string{}
	for key := range lister.Keys() {
		entry, err := r.kvStore.Get(ctx, key)
		if err != nil {
			if errors.Is(err, jetstream.ErrKeyNotFound) {
				continue
			}
			slog.ErrorContext(ctx, "error getting setting from NATS KV",
				logging.ErrKey, err, "key", key)
			err = domain.NewInternalError(
				fmt.Sprintf("failed to retrieve setting '%s' from store", key), err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		settings[key] = string(entry.Value())
	}

	span.SetAttributes(attribute.Int("db.nats.keys_count", len(settings)))
	span.SetStatus(codes.Ok, "")
	return settings, nil
}

// PutSetting writes a setting override, replacing any previous value.
func (r *NatsSettingsRepository) PutSetting(ctx context.Context, key string, value string) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "nats.kv.put",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "nats"),
			attribute.String("db.operation", "put"),
			attribute.String("db.nats.key", key),
			attribute.String("db.nats.entity", "setting"),
		),
	)
	defer span.End()

	if !r.IsReady() {
		err := domain.NewUnavailableError("settings repository is not available")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if key == "" {
		err := domain.NewValidationError("setting key is required")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if _, err := r.kvStore.Put(ctx, key, []byte(value)); err != nil {
		slog.ErrorContext(ctx, "error writing setting to NATS KV",
			logging.ErrKey, err, "key", key)
		err = domain.NewInternalError(
			fmt.Sprintf("failed to write setting '%s' to store", key), err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	span.SetStatus(codes.Ok, "")
	return nil
}
