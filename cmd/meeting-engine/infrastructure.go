// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/talktime/meeting-engine/internal/domain"
	"github.com/talktime/meeting-engine/internal/domain/models"
	"github.com/talktime/meeting-engine/internal/infrastructure/store"
	"github.com/talktime/meeting-engine/internal/logging"
)

// gracefulShutdownTimeout bounds how long shutdown waits for the run loops,
// the health server, and the NATS drain.
const gracefulShutdownTimeout = 25 * time.Second

// natsMsg adapts a NATS message to the [domain.Message] interface the
// handlers consume.
type natsMsg struct {
	msg *nats.Msg
}

func (m natsMsg) Subject() string { return m.msg.Subject }

func (m natsMsg) Data() []byte { return m.msg.Data }

func (m natsMsg) Respond(data []byte) error { return m.msg.Respond(data) }

func (m natsMsg) HasReply() bool { return m.msg.Reply != "" }

// setupNATS connects to the NATS server. The closed handler ties the
// connection's lifetime to the process: when the connection closes for good
// it releases the graceful-close wait group and asks the process to exit.
func setupNATS(ctx context.Context, env environment, gracefulCloseWG *sync.WaitGroup, done chan os.Signal) (*nats.Conn, error) {
	gracefulCloseWG.Add(1)
	natsConn, err := nats.Connect(
		env.NatsURL,
		nats.DrainTimeout(gracefulShutdownTimeout),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			if sub != nil {
				slog.ErrorContext(ctx, "async NATS subscription error",
					logging.ErrKey, err, "subject", sub.Subject, "queue", sub.Queue)
				return
			}
			slog.ErrorContext(ctx, "async NATS connection error", logging.ErrKey, err)
		}),
		nats.ClosedHandler(func(conn *nats.Conn) {
			slog.InfoContext(ctx, "NATS connection closed", logging.ErrKey, conn.LastError())
			gracefulCloseWG.Done()
			select {
			case done <- os.Interrupt:
			default:
			}
		}),
	)
	if err != nil {
		gracefulCloseWG.Done()
		return nil, err
	}

	slog.InfoContext(ctx, "connected to NATS", "url", natsConn.ConnectedUrl())
	return natsConn, nil
}

// engineRepositories are the NATS-KV-backed stores the engine runs on.
type engineRepositories struct {
	Meeting  *store.NatsMeetingRepository
	User     *store.NatsUserRepository
	Settings *store.NatsSettingsRepository
}

// getKeyValueStores ensures the engine's KV buckets exist and wraps them in
// the repositories.
func getKeyValueStores(ctx context.Context, natsConn *nats.Conn) (*engineRepositories, error) {
	js, err := jetstream.New(natsConn)
	if err != nil {
		return nil, fmt.Errorf("creating JetStream context: %w", err)
	}

	buckets := make(map[string]jetstream.KeyValue)
	for _, bucket := range []string{
		store.KVStoreNameMeetings,
		store.KVStoreNameMeetingIndexes,
		store.KVStoreNameUsers,
		store.KVStoreNameEngineSettings,
	} {
		kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{Bucket: bucket})
		if err != nil {
			return nil, fmt.Errorf("ensuring KV bucket %q: %w", bucket, err)
		}
		buckets[bucket] = kv
	}

	return &engineRepositories{
		Meeting: store.NewNatsMeetingRepository(
			buckets[store.KVStoreNameMeetings],
			buckets[store.KVStoreNameMeetingIndexes],
		),
		User:     store.NewNatsUserRepository(buckets[store.KVStoreNameUsers]),
		Settings: store.NewNatsSettingsRepository(buckets[store.KVStoreNameEngineSettings]),
	}, nil
}

// createNatsSubscriptions subscribes the handler to every engine subject in
// the shared queue group.
func createNatsSubscriptions(ctx context.Context, handler domain.MessageHandler, natsConn *nats.Conn) error {
	subjects := []string{
		models.MeetingCreateSubject,
		models.MeetingRescheduleSubject,
		models.MeetingCancelSubject,
		models.MeetingEndSubject,
		models.MeetingGetSubject,
		models.MeetingGetByRoomSubject,
		models.MeetingListByStudentSubject,
		models.MeetingListUpcomingSubject,
		models.MeetingListPastSubject,
		models.MeetingClearSubject,
		models.LinkTokenValidateSubject,
		models.EnginePingSubject,
		models.SignalingRoomActiveSubject,
		models.SignalingRoomEmptySubject,
		models.UserUpdatedSubject,
		models.SettingsInvalidateSubject,
	}

	for _, subject := range subjects {
		_, err := natsConn.QueueSubscribe(subject, models.MeetingsAPIQueue, func(msg *nats.Msg) {
			handler.HandleMessage(ctx, natsMsg{msg})
		})
		if err != nil {
			return fmt.Errorf("subscribing to %q: %w", subject, err)
		}
		slog.DebugContext(ctx, "subscribed to NATS subject",
			"subject", subject, "queue", models.MeetingsAPIQueue)
	}

	return nil
}

// gracefulShutdown stops the engine: the run loops first (scheduler and
// outbox flusher), then the health server, then the NATS drain, which lets
// in-flight handlers finish. The run loops and the NATS closed handler
// release the wait group.
func gracefulShutdown(healthServer *http.Server, natsConn *nats.Conn, gracefulCloseWG *sync.WaitGroup, cancel context.CancelFunc) {
	slog.Info("shutting down meeting engine")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer shutdownCancel()

	cancel()

	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		slog.With(logging.ErrKey, err).Error("error shutting down health server")
	}

	if natsConn != nil && !natsConn.IsClosed() {
		if err := natsConn.Drain(); err != nil {
			slog.With(logging.ErrKey, err).Error("error draining NATS connection")
		}
	}

	finished := make(chan struct{})
	go func() {
		gracefulCloseWG.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		slog.Info("meeting engine stopped")
	case <-shutdownCtx.Done():
		slog.Error("graceful shutdown timed out")
	}
}
