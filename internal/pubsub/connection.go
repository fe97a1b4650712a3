// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-pubsub.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pubsub

import (
	"fmt"
	"time"

	"github.com/ClusterCockpit/cc-pubsub/internal/pubsub/transport"
	"github.com/ClusterCockpit/cc-pubsub/pkg/ua"
)

// maxReceiveChannels is spec.md §4.6's "N=8 receive-channel handles".
const maxReceiveChannels = 8

// Connection is spec.md §3's transport-level component: one ConnectionManager
// session, fanning out to WriterGroups (send) and ReaderGroups (receive).
type Connection struct {
	Head

	mgr *Manager

	ProfileURI  string
	PublisherID ua.PublisherId
	Address     EndpointURL
	Properties  map[string]string

	writerGroups []*WriterGroup
	readerGroups []*ReaderGroup

	sendSlot  transport.ID
	recvSlots [maxReceiveChannels]transport.ID
	opening   bool

	silenceUntil time.Time
	lastErr      ua.StatusCode
}

func newConnection(mgr *Manager, id ComponentId, profileURI string, pid ua.PublisherId, addr EndpointURL) *Connection {
	return &Connection{
		Head:        newHead(id, KindConnection),
		mgr:         mgr,
		ProfileURI:  profileURI,
		PublisherID: resolvePublisherID(id, pid),
		Address:     addr,
		Properties:  make(map[string]string),
	}
}

// resolvePublisherID implements SPEC_FULL.md §4's PublisherId auto-
// assignment: a caller who leaves PublisherId at its zero value gets one
// deterministically derived from the Connection's own component id instead
// of silently publishing under PublisherId 0.
func resolvePublisherID(id ComponentId, pid ua.PublisherId) ua.PublisherId {
	if !pid.IsZero() {
		return pid
	}
	return ua.PublisherIdFromUInt32(uint32(id))
}

func (c *Connection) head() *Head { return &c.Head }

// WriterGroups returns a snapshot of c's WriterGroup children, for read-only
// introspection.
func (c *Connection) WriterGroups() []*WriterGroup {
	out := make([]*WriterGroup, len(c.writerGroups))
	copy(out, c.writerGroups)
	return out
}

// ReaderGroups returns a snapshot of c's ReaderGroup children, for read-only
// introspection.
func (c *Connection) ReaderGroups() []*ReaderGroup {
	out := make([]*ReaderGroup, len(c.readerGroups))
	copy(out, c.readerGroups)
	return out
}

// Enable drives the Connection (and its subtree) out of Disabled/Error
// (spec.md §4.1: "Disabled and Error ... exit requires explicit re-enable").
func (c *Connection) Enable() {
	c.mgr.mu.Lock()
	defer c.mgr.mu.Unlock()
	c.mgr.enable(c)
}

// Disable tears the Connection (and its subtree) down to Disabled.
func (c *Connection) Disable() {
	c.mgr.mu.Lock()
	defer c.mgr.mu.Unlock()
	c.mgr.disable(c)
}

func (c *Connection) children() []component {
	out := make([]component, 0, len(c.writerGroups)+len(c.readerGroups))
	for _, wg := range c.writerGroups {
		out = append(out, wg)
	}
	for _, rg := range c.readerGroups {
		out = append(out, rg)
	}
	return out
}

func (c *Connection) lastErrorStatus() ua.StatusCode { return c.lastErr }

// wantsSend reports whether any child WriterGroup relies on the Connection's
// shared send channel rather than a dedicated one of its own.
func (c *Connection) wantsSend() bool {
	for _, wg := range c.writerGroups {
		if !wg.hasDedicatedTransport {
			return true
		}
	}
	return false
}

// wantsReceive mirrors wantsSend for ReaderGroups (spec.md §3: "receive-
// channel handles dedicated to the group, for MQTT topic subscription").
func (c *Connection) wantsReceive() bool {
	for _, rg := range c.readerGroups {
		if !rg.hasDedicatedChannels {
			return true
		}
	}
	return false
}

// canConnect is spec.md §4.6's predicate gating calls to openConnection.
func (c *Connection) canConnect() bool {
	return (c.wantsSend() && c.sendSlot == 0) || (c.wantsReceive() && !c.hasRecvSlot())
}

func (c *Connection) hasRecvSlot() bool {
	for _, s := range c.recvSlots {
		if s != 0 {
			return true
		}
	}
	return false
}

// attachSend implements spec.md §4.6's "Attach send" protocol.
func (c *Connection) attachSend(id transport.ID) error {
	if c.sendSlot == 0 {
		c.sendSlot = id
		return nil
	}
	if c.sendSlot == id {
		return nil
	}
	return fmt.Errorf("%w: connection %s send slot already holds a different id", ErrConfigurationError, c.ID)
}

// attachReceive implements spec.md §4.6's "Attach receive" protocol.
func (c *Connection) attachReceive(id transport.ID) error {
	for _, s := range c.recvSlots {
		if s == id {
			return nil
		}
	}
	for i, s := range c.recvSlots {
		if s == 0 {
			c.recvSlots[i] = id
			return nil
		}
	}
	return fmt.Errorf("%w: connection %s has no free receive slot", ErrOutOfMemory, c.ID)
}

// detach implements spec.md §4.6's "Detach": clear whichever slot (if any)
// holds id.
func (c *Connection) detach(id transport.ID) {
	if c.sendSlot == id {
		c.sendSlot = 0
	}
	for i, s := range c.recvSlots {
		if s == id {
			c.recvSlots[i] = 0
		}
	}
}

func (c *Connection) slotsInUse() int {
	n := 0
	if c.sendSlot != 0 {
		n++
	}
	for _, s := range c.recvSlots {
		if s != 0 {
			n++
		}
	}
	return n
}

func (c *Connection) naturalTarget() State {
	if c.mgr == nil || c.mgr.state != ManagerStarted {
		return Paused
	}
	if !c.canConnect() {
		return Operational
	}
	return PreOperational
}

func (c *Connection) onEnter(s State) error {
	switch s {
	case Disabled:
		c.closeAllChannels()
		c.opening = false
		if c.head().deletePending {
			c.mgr.tryFinalizeConnectionDelete(c)
		}
	case Paused:
		c.closeAllChannels()
		c.opening = false
	case PreOperational:
		if c.canConnect() && !c.opening {
			cm, err := c.mgr.Transports.Manager(c.ProfileURI)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrConfigurationError, err)
			}
			c.opening = true
			params := transport.Params{
				Address:   c.Address.Host,
				Port:      c.Address.Port,
				Listen:    c.Address.ReceiveAll,
				Reuse:     true,
				Loopback:  false,
				Interface: c.Properties["interface"],
			}
			if _, err := cm.OpenConnection(params, c, c.mgr.onConnectionEvent); err != nil {
				c.lastErr = ua.BadCommunicationError
				return fmt.Errorf("%w: %v", ErrConnectionClosed, err)
			}
		}
	case Operational:
		c.opening = false
	case Error:
		c.closeAllChannels()
	}
	return nil
}

func (c *Connection) closeAllChannels() {
	cm, err := c.mgr.Transports.Manager(c.ProfileURI)
	if err != nil {
		return
	}
	if c.sendSlot != 0 {
		cm.CloseConnection(c.sendSlot)
	}
	for _, s := range c.recvSlots {
		if s != 0 {
			cm.CloseConnection(s)
		}
	}
}

// shouldLog implements the per-Connection 10-second diagnostic rate limit of
// spec.md §4.3 ("suppresses repeat log output for 10 seconds").
func (c *Connection) shouldLog(now time.Time) bool {
	if now.Before(c.silenceUntil) {
		return false
	}
	c.silenceUntil = now.Add(10 * time.Second)
	return true
}
