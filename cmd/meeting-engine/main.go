// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

// Package main is the TalkTime meeting engine: the NATS service that owns
// meeting admission, the lifecycle state machine and its timers, and the
// outbox fan-out of lifecycle events.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/talktime/meeting-engine/internal/domain"
	"github.com/talktime/meeting-engine/internal/handlers"
	"github.com/talktime/meeting-engine/internal/infrastructure/auth"
	"github.com/talktime/meeting-engine/internal/infrastructure/messaging"
	"github.com/talktime/meeting-engine/internal/logging"
	"github.com/talktime/meeting-engine/internal/scheduler"
	"github.com/talktime/meeting-engine/internal/service"
	"github.com/talktime/meeting-engine/pkg/utils"
)

func main() {
	env := parseEnv()
	flags := parseFlags(env.Port)

	logging.InitStructureLogConfig()

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	gracefulCloseWG := sync.WaitGroup{}

	// Set up the OpenTelemetry SDK; telemetry is flushed after shutdown.
	otelShutdown, err := utils.SetupOTelSDK(ctx)
	if err != nil {
		slog.With(logging.ErrKey, err).Error("error setting up OpenTelemetry SDK")
		os.Exit(1)
	}

	clock := domain.WallClock{}
	tokenValidator := auth.NewLinkTokenValidator([]byte(env.LinkTokenSecret), clock)

	// Setup NATS connection
	natsConn, err := setupNATS(ctx, env, &gracefulCloseWG, done)
	if err != nil {
		slog.With(logging.ErrKey, err).Error("error setting up NATS")
		return
	}

	// Get the key-value stores for the engine.
	repos, err := getKeyValueStores(ctx, natsConn)
	if err != nil {
		slog.With(logging.ErrKey, err).Error("error getting key-value stores")
		return
	}

	// Initialize services
	messageBuilder := messaging.NewMessageBuilder(natsConn)
	flusher := messaging.NewEventFlusher(repos.Meeting, messageBuilder, clock)
	flusher.SweepInterval = env.OutboxSweep

	settingsService := service.NewSettingsService(repos.Settings, clock)
	if err := settingsService.SeedDefaults(ctx); err != nil {
		slog.With(logging.ErrKey, err).Warn("error seeding default engine settings")
	}

	admissionService := service.NewAdmissionService(repos.Meeting, repos.User, flusher, clock)
	meetingService := service.NewMeetingService(
		repos.Meeting,
		repos.User,
		admissionService,
		settingsService,
		flusher,
		clock,
	)

	timers := scheduler.NewScheduler(meetingService, settingsService, clock)
	timers.TickInterval = env.SchedulerTick
	meetingService.Timers = timers

	// Run the outbox flusher and the deadline scheduler. The scheduler
	// restores the timers of already-open meetings as it starts, so this
	// happens before the engine takes requests.
	gracefulCloseWG.Add(2)
	go func() {
		defer gracefulCloseWG.Done()
		flusher.Run(ctx)
	}()
	go func() {
		defer gracefulCloseWG.Done()
		timers.Run(ctx)
	}()

	// Initialize handlers
	meetingHandler := handlers.NewMeetingHandler(meetingService, settingsService, tokenValidator)

	healthServer := setupHealthServer(flags, meetingHandler, natsConn)

	// Create NATS subscriptions for the engine.
	err = createNatsSubscriptions(ctx, meetingHandler, natsConn)
	if err != nil {
		slog.With(logging.ErrKey, err).Error("error creating NATS subscriptions")
		return
	}

	// This next line blocks until SIGINT or SIGTERM is received.
	<-done

	gracefulShutdown(healthServer, natsConn, &gracefulCloseWG, cancel)

	if err := otelShutdown(context.Background()); err != nil {
		slog.With(logging.ErrKey, err).Error("error shutting down OpenTelemetry SDK")
	}
}
