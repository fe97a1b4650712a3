// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-pubsub.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package main

import (
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/ClusterCockpit/cc-pubsub/internal/api"
	"github.com/ClusterCockpit/cc-pubsub/internal/config"
	"github.com/ClusterCockpit/cc-pubsub/internal/pubsub"
	"github.com/ClusterCockpit/cc-pubsub/internal/runtimeEnv"
	"github.com/ClusterCockpit/cc-pubsub/pkg/log"
)

var (
	router *mux.Router
	server *http.Server
)

// setupServer builds the diagnostics HTTP router (SPEC_FULL.md §5), mounted
// over mgr, the same way the teacher builds its router over a RestApi.
func setupServer(mgr *pubsub.Manager) {
	router = mux.NewRouter()
	diag := &api.DiagnosticsApi{Manager: mgr}
	diag.MountRoutes(router)

	router.Use(handlers.RecoveryHandler(handlers.PrintRecoveryStack(true)))
}

// serverStart opens the listener, drops privileges if requested, and serves
// until serverShutdown is called, mirroring the teacher's listen-then-drop-
// privileges startup order.
func serverStart() {
	loggingHandler := handlers.CustomLoggingHandler(io.Discard, router, func(_ io.Writer, params handlers.LogFormatterParams) {
		log.Debugf("%s %s (%d, %.02fkb, %dms)",
			params.Request.Method, params.URL.RequestURI(),
			params.StatusCode, float32(params.Size)/1024,
			time.Since(params.TimeStamp).Milliseconds())
	})

	server = &http.Server{
		ReadTimeout:  20 * time.Second,
		WriteTimeout: 20 * time.Second,
		Handler:      loggingHandler,
		Addr:         config.Keys.Addr,
	}

	listener, err := net.Listen("tcp", config.Keys.Addr)
	if err != nil {
		log.Fatalf("starting diagnostics http listener failed: %v", err)
	}

	if flagUser != "" || flagGroup != "" {
		if err := runtimeEnv.DropPrivileges(flagUser, flagGroup); err != nil {
			log.Fatalf("error while dropping privileges: %v", err)
		}
	}

	log.Infof("diagnostics http server listening at %s", config.Keys.Addr)
	if err := server.Serve(listener); err != nil && !strings.Contains(err.Error(), "Server closed") {
		log.Fatalf("diagnostics server failed: %v", err)
	}
}

func serverShutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(ctx)
}
