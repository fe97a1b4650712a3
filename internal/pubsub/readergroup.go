// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-pubsub.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pubsub

import (
	"fmt"

	"github.com/ClusterCockpit/cc-pubsub/internal/pubsub/security"
	"github.com/ClusterCockpit/cc-pubsub/internal/pubsub/transport"
	"github.com/ClusterCockpit/cc-pubsub/pkg/ua"
)

// ReaderGroup is a container of DataSetReaders sharing a receive channel and
// security context (spec.md §3).
type ReaderGroup struct {
	Head

	mgr    *Manager
	parent *Connection

	Name            string
	Encoding        Encoding
	SecurityMode    security.Mode
	SecurityContext *security.Context

	hasDedicatedChannels bool
	dedicatedRecvSlots   []transport.ID
	dedicatedTopic       string
	opening              bool

	hasReceived bool

	readers []*DataSetReader

	lastErr ua.StatusCode
}

func newReaderGroup(mgr *Manager, parent *Connection, id ComponentId, name string) *ReaderGroup {
	return &ReaderGroup{Head: newHead(id, KindReaderGroup), mgr: mgr, parent: parent, Name: name}
}

func (rg *ReaderGroup) head() *Head { return &rg.Head }

func (rg *ReaderGroup) children() []component {
	out := make([]component, 0, len(rg.readers))
	for _, r := range rg.readers {
		out = append(out, r)
	}
	return out
}

func (rg *ReaderGroup) lastErrorStatus() ua.StatusCode { return rg.lastErr }

// Readers returns a snapshot of rg's DataSetReader children, for read-only
// introspection.
func (rg *ReaderGroup) Readers() []*DataSetReader {
	out := make([]*DataSetReader, len(rg.readers))
	copy(out, rg.readers)
	return out
}

// SetDedicatedTransport subscribes the group to its own receive channel(s)
// (e.g. a distinct MQTT topic) instead of sharing the parent Connection's.
// Must be called before Enable.
func (rg *ReaderGroup) SetDedicatedTransport(topic string) {
	rg.hasDedicatedChannels = true
	rg.dedicatedTopic = topic
}

func (rg *ReaderGroup) Enable() {
	rg.mgr.mu.Lock()
	defer rg.mgr.mu.Unlock()
	rg.mgr.enable(rg)
}

func (rg *ReaderGroup) Disable() {
	rg.mgr.mu.Lock()
	defer rg.mgr.mu.Unlock()
	rg.mgr.disable(rg)
}

func (rg *ReaderGroup) channelReady() bool {
	if rg.hasDedicatedChannels {
		for _, s := range rg.dedicatedRecvSlots {
			if s != 0 {
				return true
			}
		}
		return false
	}
	return rg.parent != nil && rg.parent.hasRecvSlot()
}

func (rg *ReaderGroup) naturalTarget() State {
	if rg.parent == nil || rg.parent.State != Operational {
		return Paused
	}
	if !rg.channelReady() || !rg.hasReceived {
		return PreOperational
	}
	return Operational
}

func (rg *ReaderGroup) onEnter(s State) error {
	switch s {
	case PreOperational:
		if rg.hasDedicatedChannels && !rg.opening && !rg.channelReady() {
			cm, err := rg.mgr.Transports.Manager(rg.parent.ProfileURI)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrConfigurationError, err)
			}
			rg.opening = true
			params := transport.Params{
				Address:   rg.parent.Address.Host,
				Port:      rg.parent.Address.Port,
				Subscribe: true,
				Topic:     rg.dedicatedTopic,
			}
			id, err := cm.OpenConnection(params, rg, rg.mgr.onReaderGroupChannelEvent)
			if err != nil {
				rg.lastErr = ua.BadCommunicationError
				return fmt.Errorf("%w: %v", ErrConnectionClosed, err)
			}
			rg.dedicatedRecvSlots = append(rg.dedicatedRecvSlots, id)
		}
	case Disabled, Error:
		rg.closeDedicatedChannels()
		rg.opening = false
		rg.hasReceived = false
	}
	return nil
}

func (rg *ReaderGroup) closeDedicatedChannels() {
	if !rg.hasDedicatedChannels || len(rg.dedicatedRecvSlots) == 0 {
		return
	}
	if cm, err := rg.mgr.Transports.Manager(rg.parent.ProfileURI); err == nil {
		for _, s := range rg.dedicatedRecvSlots {
			cm.CloseConnection(s)
		}
	}
	rg.dedicatedRecvSlots = nil
}

// noteMessageReceived implements spec.md §4.3's "First-message semantics":
// receipt of any matching message transitions the ReaderGroup (and the
// matched Reader) from PreOperational to Operational.
func (rg *ReaderGroup) noteMessageReceived() {
	rg.hasReceived = true
}
