// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-pubsub.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package transport declares the ConnectionManager collaborator spec.md §6
// consumes per protocol ({udp, eth, mqtt}), plus the profile-URI lookup
// table spec.md §9 describes as "naturally an enum-keyed static table".
// Concrete ConnectionManagers live in the udptransport, mqtttransport and
// ethtransport subpackages.
package transport

import "fmt"

// The four transport profile URIs spec.md §6 calls out as "wire-visible".
const (
	ProfileUDPUADP  = "http://opcfoundation.org/UA-Profile/Transport/pubsub-udp-uadp"
	ProfileMQTTUADP = "http://opcfoundation.org/UA-Profile/Transport/pubsub-mqtt-uadp"
	ProfileMQTTJSON = "http://opcfoundation.org/UA-Profile/Transport/pubsub-mqtt-json"
	ProfileETHUADP  = "http://opcfoundation.org/UA-Profile/Transport/pubsub-eth-uadp"
)

// State is the transport-callback connection state (spec.md §6:
// "state ∈ {Opening, Established, Closing}").
type State byte

const (
	Opening State = iota
	Established
	Closing
)

// ID is the opaque transport-level connection id handed out by the
// ConnectionManager/EventLoop (spec.md §4.6).
type ID uint64

// Callback is invoked by a ConnectionManager on every connection-state
// change and on every received buffer (spec.md §6: "bytes.length == 0
// indicates a non-data event").
type Callback func(id ID, appContext any, state State, bytes []byte)

// Params is the union of the per-protocol open-parameter structs spec.md §6
// lists; each ConnectionManager only reads the fields relevant to it.
type Params struct {
	Address   string
	Port      uint16
	Listen    bool
	Reuse     bool
	Loopback  bool
	Interface string
	Validate  bool
	Subscribe bool
	Topic     string
}

// SendParams carries per-send routing info a ConnectionManager may need
// (e.g. an MQTT topic override for a WriterGroup's dedicated send channel).
type SendParams struct {
	Topic string
}

// ConnectionManager is spec.md §6's per-protocol collaborator.
type ConnectionManager interface {
	// OpenConnection starts an async open; the eventual Established/Error
	// outcome is reported through callback. The returned ID is valid
	// immediately for bookkeeping purposes (spec.md §4.6 attachment
	// protocol) even before the callback reports Established.
	OpenConnection(params Params, appContext any, callback Callback) (ID, error)
	SendWithConnection(id ID, params SendParams, buffer []byte) error
	CloseConnection(id ID)
	AllocNetworkBuffer(id ID, length int) []byte
	FreeNetworkBuffer(id ID, buf []byte)
}

// profileEntry is the "protocol tag, json flag, connect function" row of
// spec.md §9's profile table.
type profileEntry struct {
	protocol string
	json     bool
	manager  ConnectionManager
}

// Registry is the enum-keyed static table of transport profiles.
type Registry struct {
	entries map[string]*profileEntry
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*profileEntry)}
}

// Register binds a ConnectionManager to a transport profile URI.
func (r *Registry) Register(profileURI, protocol string, json bool, cm ConnectionManager) {
	r.entries[profileURI] = &profileEntry{protocol: protocol, json: json, manager: cm}
}

func (r *Registry) Manager(profileURI string) (ConnectionManager, error) {
	e, ok := r.entries[profileURI]
	if !ok {
		return nil, fmt.Errorf("transport: unrecognised transport profile uri %q", profileURI)
	}
	return e.manager, nil
}

// IsJSON reports whether the profile defaults to JSON DataSetMessage
// encoding (the two mqtt profiles differ only in this).
func (r *Registry) IsJSON(profileURI string) bool {
	e, ok := r.entries[profileURI]
	return ok && e.json
}

func (r *Registry) Protocol(profileURI string) string {
	if e, ok := r.entries[profileURI]; ok {
		return e.protocol
	}
	return ""
}

func (r *Registry) Has(profileURI string) bool {
	_, ok := r.entries[profileURI]
	return ok
}
