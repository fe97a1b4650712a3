// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-pubsub.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package api exposes the read-only diagnostics HTTP surface (SPEC_FULL.md
// §5): a health check, a component-tree readback of the manager's
// Connections, and a prometheus /metrics endpoint. All mutation goes
// through the in-process pubsub.Manager API; this package never writes.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ClusterCockpit/cc-pubsub/internal/pubsub"
)

// DiagnosticsApi bundles the collaborators the routes need, the way the
// teacher's RestApi bundles its repositories/resolver.
type DiagnosticsApi struct {
	Manager *pubsub.Manager
}

// MountRoutes registers every route on r, mirroring the teacher's
// RestApi.MountRoutes pattern.
func (a *DiagnosticsApi) MountRoutes(r *mux.Router) {
	r.HandleFunc("/healthz", a.healthz).Methods(http.MethodGet)
	r.HandleFunc("/pubsub/connections", a.getConnections).Methods(http.MethodGet)
	r.HandleFunc("/pubsub/connections/{id}", a.getConnection).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
}

func (a *DiagnosticsApi) healthz(rw http.ResponseWriter, r *http.Request) {
	writeJSON(rw, http.StatusOK, map[string]any{
		"state": managerStateString(a.Manager.State()),
		"stats": a.Manager.Stats(),
	})
}

func (a *DiagnosticsApi) getConnections(rw http.ResponseWriter, r *http.Request) {
	conns := a.Manager.Connections()
	out := make([]ConnectionInfo, len(conns))
	for i, c := range conns {
		out[i] = connectionInfo(c)
	}
	writeJSON(rw, http.StatusOK, out)
}

func (a *DiagnosticsApi) getConnection(rw http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	for _, c := range a.Manager.Connections() {
		if c.ID.String() == id {
			writeJSON(rw, http.StatusOK, connectionInfo(c))
			return
		}
	}
	http.NotFound(rw, r)
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}

func managerStateString(s pubsub.ManagerState) string {
	switch s {
	case pubsub.ManagerStarted:
		return "Started"
	case pubsub.ManagerStopping:
		return "Stopping"
	default:
		return "Stopped"
	}
}
