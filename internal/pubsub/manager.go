// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-pubsub.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pubsub

import (
	"sync"

	"github.com/ClusterCockpit/cc-pubsub/internal/pubsub/addressspace"
	"github.com/ClusterCockpit/cc-pubsub/internal/pubsub/diagnostics"
	"github.com/ClusterCockpit/cc-pubsub/internal/pubsub/eventloop"
	"github.com/ClusterCockpit/cc-pubsub/internal/pubsub/security"
	"github.com/ClusterCockpit/cc-pubsub/internal/pubsub/transport"
	"github.com/ClusterCockpit/cc-pubsub/pkg/log"
)

// ManagerState is the manager's own (coarser) lifecycle: spec.md §3 "a
// lifecycle state (Stopped / Started / Stopping)".
type ManagerState byte

const (
	ManagerStopped ManagerState = iota
	ManagerStarted
	ManagerStopping
)

// ManagerHooks are the default before/after state-change callbacks used by
// any component that doesn't set its own (spec.md §4.1 hook points).
type ManagerHooks struct {
	BeforeStateChange BeforeStateChangeHook
	AfterStateChange  StateChangeHook
}

// Manager is the root of the containment tree (spec.md §2/§3). All mutating
// methods acquire mu and run to completion before releasing it (spec.md
// §5's single-threaded-cooperative scheduling model).
type Manager struct {
	mu sync.Mutex

	state ManagerState
	nextID ComponentId

	connections        []*Connection
	publishedDataSets  []*PublishedDataSet
	subscribedDataSets []*SubscribedDataSet
	securityGroups     map[string]*security.KeyStorage

	reservedIDs map[string]*reservedPool

	hooks ManagerHooks

	Loop         eventloop.EventLoop
	AddressSpace addressspace.Store
	Transports   *transport.Registry

	// Diagnostics is nil-safe: every call site checks before use, so tests
	// that don't care about metrics can leave it unset.
	Diagnostics *diagnostics.Registry
}

// reservedPool implements spec.md §3's "reserved-id tree for client-
// requested WriterGroupId/DataSetWriterId pools keyed by session".
type reservedPool struct {
	writerGroupIDs map[uint16]bool
	writerIDs      map[uint16]bool
}

// NewManager builds a Manager wired to the given collaborators. loop and
// store may be nil in tests that don't exercise timers/address-space I/O.
func NewManager(loop eventloop.EventLoop, store addressspace.Store, transports *transport.Registry) *Manager {
	return &Manager{
		securityGroups: make(map[string]*security.KeyStorage),
		reservedIDs:    make(map[string]*reservedPool),
		Loop:           loop,
		AddressSpace:   store,
		Transports:     transports,
	}
}

// SetHooks installs the manager-wide default state-change hooks.
func (m *Manager) SetHooks(h ManagerHooks) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = h
}

func (m *Manager) allocID() ComponentId {
	m.nextID++
	return m.nextID
}

// Start moves the manager to Started; Connections may now open transports
// (spec.md §4.1: Connection -> Paused requires "manager not Started" to be
// false).
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = ManagerStarted
	for _, c := range m.connections {
		m.driveToTarget(c, c.head().State)
	}
}

// Stop tears every Connection (and transitively every child) down to
// Disabled and closes all channels, then marks the manager Stopped.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = ManagerStopping
	for _, c := range m.connections {
		m.driveToTarget(c, Disabled)
	}
	m.state = ManagerStopped
}

func (m *Manager) State() ManagerState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Stats reports simple containment-tree counts, grounded on the original
// open62541 source's per-level enabled-component counters (SPEC_FULL.md §4).
type Stats struct {
	Connections        int
	WriterGroups       int
	ReaderGroups       int
	DataSetWriters     int
	DataSetReaders     int
	PublishedDataSets  int
	SubscribedDataSets int
	EnabledComponents  int
}

func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Stats{
		PublishedDataSets:  len(m.publishedDataSets),
		SubscribedDataSets: len(m.subscribedDataSets),
	}
	countIfEnabled := func(h *Head) {
		if h.State != Disabled {
			s.EnabledComponents++
		}
	}
	s.Connections = len(m.connections)
	for _, c := range m.connections {
		countIfEnabled(&c.Head)
		s.WriterGroups += len(c.writerGroups)
		s.ReaderGroups += len(c.readerGroups)
		for _, wg := range c.writerGroups {
			countIfEnabled(&wg.Head)
			s.DataSetWriters += len(wg.writers)
			for _, w := range wg.writers {
				countIfEnabled(&w.Head)
			}
		}
		for _, rg := range c.readerGroups {
			countIfEnabled(&rg.Head)
			s.DataSetReaders += len(rg.readers)
			for _, r := range rg.readers {
				countIfEnabled(&r.Head)
			}
		}
	}

	if m.Diagnostics != nil {
		total := s.Connections + s.WriterGroups + s.ReaderGroups + s.DataSetWriters + s.DataSetReaders
		m.Diagnostics.ComponentsTotal.Set(float64(total))
		m.Diagnostics.ComponentsEnabled.Set(float64(s.EnabledComponents))
	}
	return s
}

// Connections returns a snapshot of the manager's Connection list, for
// read-only introspection (internal/api's diagnostics HTTP surface, §6's
// read side of the Information Model).
func (m *Manager) Connections() []*Connection {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Connection, len(m.connections))
	copy(out, m.connections)
	return out
}

func init() {
	// Keep pkg/log's default level sane for library consumers that embed
	// the manager without calling config.Init first (e.g. unit tests).
	log.SetLogLevel("info")
}
