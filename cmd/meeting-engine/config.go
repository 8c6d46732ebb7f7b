// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package main

import (
	"flag"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/talktime/meeting-engine/internal/infrastructure/messaging"
	"github.com/talktime/meeting-engine/internal/logging"
	"github.com/talktime/meeting-engine/internal/scheduler"
	"github.com/talktime/meeting-engine/pkg/utils"
)

// flags are the command line flags for the meeting engine.
type flags struct {
	Debug bool
	Port  string
	Bind  string
}

// environment are the environment variables for the meeting engine.
type environment struct {
	Port            string
	NatsURL         string
	LinkTokenSecret string
	SchedulerTick   time.Duration
	OutboxSweep     time.Duration
}

// parseFlags parses command line flags for the meeting engine.
func parseFlags(defaultPort string) flags {
	var debug = flag.Bool("d", false, "enable debug logging")
	var port = flag.String("p", defaultPort, "health probe listen port")
	var bind = flag.String("bind", "*", "interface to bind on")

	flag.Usage = func() {
		flag.PrintDefaults()
		os.Exit(2)
	}
	flag.Parse()

	// Based on the debug flag, set the log level environment variable used by
	// [logging.InitStructureLogConfig].
	if *debug {
		err := os.Setenv("LOG_LEVEL", "debug")
		if err != nil {
			slog.With(logging.ErrKey, err).Error("error setting log level")
			os.Exit(1)
		}
	}

	return flags{
		Debug: *debug,
		Port:  *port,
		Bind:  *bind,
	}
}

// parseEnv parses environment variables for the meeting engine.
func parseEnv() environment {
	port := utils.CoalesceString(os.Getenv("PORT"), "8080")
	natsURL := utils.CoalesceString(os.Getenv("NATS_URL"), nats.DefaultURL)

	linkTokenSecret := os.Getenv("LINK_TOKEN_SECRET")
	if linkTokenSecret == "" {
		slog.Error("LINK_TOKEN_SECRET environment variable is required but not set")
		os.Exit(1)
	}

	return environment{
		Port:            port,
		NatsURL:         natsURL,
		LinkTokenSecret: linkTokenSecret,
		SchedulerTick:   secondsEnv("SCHEDULER_TICK_SECONDS", scheduler.DefaultTickInterval),
		OutboxSweep:     secondsEnv("OUTBOX_SWEEP_SECONDS", messaging.DefaultSweepInterval),
	}
}

// secondsEnv reads a seconds-valued environment variable, keeping the
// fallback for absent or unusable values.
func secondsEnv(name string, fallback time.Duration) time.Duration {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds <= 0 {
		slog.With("name", name, "value", raw).Warn("ignoring invalid duration environment variable")
		return fallback
	}
	return time.Duration(seconds) * time.Second
}
