// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/vmihailenco/msgpack/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/talktime/meeting-engine/internal/domain"
	"github.com/talktime/meeting-engine/internal/logging"
)

// indexEntry is the msgpack-encoded value stored under secondary-index keys.
// It names the owning meeting plus enough context for conflict messages and
// operator inspection; it never crosses the wire.
type indexEntry struct {
	MeetingUID     string    `msgpack:"meeting_uid"`
	VolunteerUID   string    `msgpack:"volunteer_uid,omitempty"`
	StudentUID     string    `msgpack:"student_uid,omitempty"`
	LocalDate      string    `msgpack:"local_date,omitempty"`
	ScheduledStart time.Time `msgpack:"scheduled_start,omitempty"`
	CreatedAt      time.Time `msgpack:"created_at,omitempty"`
}

// natsIndexStore wraps the meeting-indexes bucket. Exclusive creates are the
// uniqueness and reservation primitive; deletes are revision-checked so an
// owner check cannot race a re-reservation.
type natsIndexStore struct {
	kvStore INatsKeyValue
}

func newNatsIndexStore(kvStore INatsKeyValue) *natsIndexStore {
	return &natsIndexStore{kvStore: kvStore}
}

func (s *natsIndexStore) isReady() bool {
	return s.kvStore != nil
}

// createExclusive writes an index entry only if the key does not exist yet.
// An existing key surfaces as a conflict carrying the current owner.
func (s *natsIndexStore) createExclusive(ctx context.Context, key string, entry *indexEntry) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "nats.kv.create",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "nats"),
			attribute.String("db.operation", "create"),
			attribute.String("db.nats.key", key),
			attribute.String("db.nats.entity", "index"),
		),
	)
	defer span.End()

	if !s.isReady() {
		err := domain.NewUnavailableError("index repository is not available")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	data, err := msgpack.Marshal(entry)
	if err != nil {
		slog.ErrorContext(ctx, "error marshaling index entry", logging.ErrKey, err, "key", key)
		err = domain.NewInternalError("failed to marshal index entry", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	_, err = s.kvStore.Create(ctx, key, data)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyExists) {
			err = domain.NewConflictError(fmt.Sprintf("index key '%s' is already taken", key), err)
			span.RecordError(err)
			span.SetStatus(codes.Error, "conflict")
			return err
		}
		slog.ErrorContext(ctx, "error creating index entry in NATS KV",
			logging.ErrKey, err, "key", key)
		err = domain.NewInternalError("failed to create index entry in store", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// get reads and decodes an index entry along with its revision.
func (s *natsIndexStore) get(ctx context.Context, key string) (*indexEntry, uint64, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "nats.kv.get",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "nats"),
			attribute.String("db.operation", "get"),
			attribute.String("db.nats.key", key),
			attribute.String("db.nats.entity", "index"),
		),
	)
	defer span.End()

	if !s.isReady() {
		err := domain.NewUnavailableError("index repository is not available")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, 0, err
	}

	kvEntry, err := s.kvStore.Get(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			err = domain.NewNotFoundError(fmt.Sprintf("index key '%s' not found", key), err)
			span.RecordError(err)
			span.SetStatus(codes.Error, "not found")
			return nil, 0, err
		}
		slog.ErrorContext(ctx, "error getting index entry from NATS KV",
			logging.ErrKey, err, "key", key)
		err = domain.NewInternalError("failed to retrieve index entry from store", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, 0, err
	}

	var entry indexEntry
	if err := msgpack.Unmarshal(kvEntry.Value(), &entry); err != nil {
		slog.ErrorContext(ctx, "error unmarshaling index entry", logging.ErrKey, err, "key", key)
		err = domain.NewInternalError("failed to unmarshal index entry", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, 0, err
	}

	span.SetStatus(codes.Ok, "")
	return &entry, kvEntry.Revision(), nil
}

// delete removes an index entry at a known revision. A vanished key counts
// as deleted; a revision mismatch surfaces as a conflict.
func (s *natsIndexStore) delete(ctx context.Context, key string, revision uint64) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "nats.kv.delete",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "nats"),
			attribute.String("db.operation", "delete"),
			attribute.String("db.nats.key", key),
			attribute.String("db.nats.entity", "index"),
			attribute.Int64("db.nats.revision", int64(revision)),
		),
	)
	defer span.End()

	if !s.isReady() {
		err := domain.NewUnavailableError("index repository is not available")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	err := s.kvStore.Delete(ctx, key, jetstream.LastRevision(revision))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			span.SetStatus(codes.Ok, "")
			return nil
		}
		if strings.Contains(err.Error(), "wrong last sequence") {
			err = domain.NewConflictError(fmt.Sprintf("index key '%s' has been modified", key), err)
			span.RecordError(err)
			span.SetStatus(codes.Error, "conflict")
			return err
		}
		slog.ErrorContext(ctx, "error deleting index entry from NATS KV",
			logging.ErrKey, err, "key", key)
		err = domain.NewInternalError("failed to delete index entry from store", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// deleteUnchecked removes an index entry regardless of revision. Used to
// unwind partially created meetings.
func (s *natsIndexStore) deleteUnchecked(ctx context.Context, key string) error {
	if !s.isReady() {
		return domain.NewUnavailableError("index repository is not available")
	}

	err := s.kvStore.Delete(ctx, key)
	if err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		slog.WarnContext(ctx, "error deleting index entry", logging.ErrKey, err, "index_key", key)
		return domain.NewInternalError("failed to delete index entry", err)
	}

	return nil
}

// listKeys returns the raw (encoded) keys of the index bucket.
func (s *natsIndexStore) listKeys(ctx context.Context) ([]string, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "nats.kv.list_keys",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "nats"),
			attribute.String("db.operation", "list_keys"),
			attribute.String("db.nats.entity", "index"),
		),
	)
	defer span.End()

	if !s.isReady() {
		err := domain.NewUnavailableError("index repository is not available")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	lister, err := s.kvStore.ListKeys(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "error listing index keys from NATS KV", logging.ErrKey, err)
		err = domain.NewInternalError("failed to list index keys from store", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	var keys []string
	for key := range lister.Keys() {
		keys = append(keys, key)
	}

	span.SetAttributes(attribute.Int("db.nats.keys_count", len(keys)))
	span.SetStatus(codes.Ok, "")
	return keys, nil
}
