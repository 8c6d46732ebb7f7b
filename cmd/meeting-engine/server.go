// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package main

import (
	"expvar"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/talktime/meeting-engine/internal/domain"
	"github.com/talktime/meeting-engine/internal/logging"
)

// setupHealthServer starts the HTTP listener for the kubelet probes. The API
// itself rides NATS; this server answers liveness and readiness only, plus
// expvar counters for debugging.
func setupHealthServer(flags flags, handler domain.MessageHandler, natsConn *nats.Conn) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/livez", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		if !natsConn.IsConnected() || !handler.HandlerReady() {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	mux.Handle("/debug/vars", expvar.Handler())

	// Set up the listener using the provided command line parameters.
	var addr string
	if flags.Bind == "*" {
		addr = ":" + flags.Port
	} else {
		addr = flags.Bind + ":" + flags.Port
	}
	healthServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 3 * time.Second,
	}
	go func() {
		slog.With("addr", addr).Debug("starting health server, listening on port " + flags.Port)
		err := healthServer.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			slog.With(logging.ErrKey, err).Error("health listener error")
			os.Exit(1)
		}
	}()

	return healthServer
}
