// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-pubsub.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pubsub

import (
	"fmt"
	"time"

	"github.com/ClusterCockpit/cc-pubsub/internal/pubsub/eventloop"
	"github.com/ClusterCockpit/cc-pubsub/internal/pubsub/security"
	"github.com/ClusterCockpit/cc-pubsub/internal/pubsub/transport"
	"github.com/ClusterCockpit/cc-pubsub/pkg/ua"
)

// Encoding is the DataSetMessage/NetworkMessage wire encoding (spec.md §3).
type Encoding byte

const (
	EncodingUADP Encoding = iota
	EncodingJSON
)

// MessageContentMask selects which NetworkMessage header fields are wire-
// present (spec.md §4.2).
type MessageContentMask uint32

const (
	MaskPublisherID MessageContentMask = 1 << iota
	MaskGroupHeader
	MaskWriterGroupID
	MaskGroupVersion
	MaskNetworkMessageNumber
	MaskSequenceNumber
	MaskPayloadHeader
	MaskTimestamp
	MaskPicoseconds
	MaskDataSetClassID
	MaskPromotedFields
)

func (m MessageContentMask) Has(bit MessageContentMask) bool { return m&bit != 0 }

// WriterGroup is spec.md §3's periodic publisher of one or more
// DataSetWriters over one transport.
type WriterGroup struct {
	Head

	mgr    *Manager
	parent *Connection

	PublishingInterval time.Duration
	KeepAliveTime      time.Duration
	Priority           byte
	WriterGroupID      uint16
	Encoding           Encoding
	SecurityMode       security.Mode
	SecurityContext    *security.Context
	ContentMask        MessageContentMask

	MaxEncapsulatedDataSetMessageCount uint8

	// MaxNetworkMessageSize caps the encoded byte size of a single
	// NetworkMessage independent of MaxEncapsulatedDataSetMessageCount
	// (SPEC_FULL.md §4); zero means no cap.
	MaxNetworkMessageSize uint32

	hasDedicatedTransport bool
	dedicatedSendSlot     transport.ID
	dedicatedTopic        string
	opening               bool

	sequenceNumber uint16
	nonceCounter   uint32
	groupVersion   uint32

	timerID     eventloop.TimerID
	lastPublish time.Time

	writers []*DataSetWriter

	lastErr ua.StatusCode
}

func newWriterGroup(mgr *Manager, parent *Connection, id ComponentId) *WriterGroup {
	return &WriterGroup{
		Head:                               newHead(id, KindWriterGroup),
		mgr:                                mgr,
		parent:                             parent,
		MaxEncapsulatedDataSetMessageCount: 1,
	}
}

func (wg *WriterGroup) head() *Head { return &wg.Head }

func (wg *WriterGroup) children() []component {
	out := make([]component, 0, len(wg.writers))
	for _, w := range wg.writers {
		out = append(out, w)
	}
	return out
}

func (wg *WriterGroup) lastErrorStatus() ua.StatusCode { return wg.lastErr }

// Writers returns a snapshot of wg's DataSetWriter children, for read-only
// introspection.
func (wg *WriterGroup) Writers() []*DataSetWriter {
	out := make([]*DataSetWriter, len(wg.writers))
	copy(out, wg.writers)
	return out
}

// SetDedicatedTransport gives the group its own send channel/topic instead
// of sharing the parent Connection's (spec.md §3: "a dedicated send-channel
// used only when the group has its own transport settings"). Must be
// called before Enable.
func (wg *WriterGroup) SetDedicatedTransport(topic string) {
	wg.hasDedicatedTransport = true
	wg.dedicatedTopic = topic
}

func (wg *WriterGroup) Enable() {
	wg.mgr.mu.Lock()
	defer wg.mgr.mu.Unlock()
	wg.mgr.enable(wg)
}

func (wg *WriterGroup) Disable() {
	wg.mgr.mu.Lock()
	defer wg.mgr.mu.Unlock()
	wg.mgr.disable(wg)
}

func (wg *WriterGroup) channelReady() bool {
	if wg.hasDedicatedTransport {
		return wg.dedicatedSendSlot != 0
	}
	return wg.parent != nil && wg.parent.sendSlot != 0
}

func (wg *WriterGroup) keyReady() bool {
	if wg.SecurityMode == security.ModeNone {
		return true
	}
	return wg.SecurityContext != nil && wg.SecurityContext.Ready()
}

func (wg *WriterGroup) naturalTarget() State {
	if wg.parent == nil || wg.parent.State.rank() < Operational.rank() {
		return Paused
	}
	if !wg.channelReady() || !wg.keyReady() {
		return PreOperational
	}
	return Operational
}

func (wg *WriterGroup) onEnter(s State) error {
	switch s {
	case Operational:
		wg.opening = false
		wg.schedulePublish()
	default:
		wg.cancelPublish()
	}

	switch s {
	case PreOperational:
		if wg.hasDedicatedTransport && wg.dedicatedSendSlot == 0 && !wg.opening {
			cm, err := wg.mgr.Transports.Manager(wg.parent.ProfileURI)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrConfigurationError, err)
			}
			wg.opening = true
			params := transport.Params{
				Address: wg.parent.Address.Host,
				Port:    wg.parent.Address.Port,
				Topic:   wg.dedicatedTopic,
			}
			id, err := cm.OpenConnection(params, wg, wg.mgr.onWriterGroupChannelEvent)
			if err != nil {
				wg.lastErr = ua.BadCommunicationError
				return fmt.Errorf("%w: %v", ErrConnectionClosed, err)
			}
			wg.dedicatedSendSlot = id
		}
	case Disabled, Error:
		wg.closeDedicatedChannel()
		wg.opening = false
	}
	return nil
}

func (wg *WriterGroup) closeDedicatedChannel() {
	if !wg.hasDedicatedTransport || wg.dedicatedSendSlot == 0 {
		return
	}
	if cm, err := wg.mgr.Transports.Manager(wg.parent.ProfileURI); err == nil {
		cm.CloseConnection(wg.dedicatedSendSlot)
	}
	wg.dedicatedSendSlot = 0
}

// schedulePublish registers the periodic publish timer if one isn't already
// running (spec.md §8: "For every WriterGroup in state Operational: a
// publish timer is scheduled with period wg.publishingInterval").
func (wg *WriterGroup) schedulePublish() {
	if wg.timerID != 0 || wg.mgr.Loop == nil || wg.PublishingInterval <= 0 {
		return
	}
	wg.timerID = wg.mgr.Loop.AddTimer(wg.PublishingInterval, func() {
		wg.mgr.publishTick(wg)
	})
}

// cancelPublish enforces the companion invariant: "For every WriterGroup not
// in Operational: no publish timer is scheduled".
func (wg *WriterGroup) cancelPublish() {
	if wg.timerID == 0 || wg.mgr.Loop == nil {
		return
	}
	wg.mgr.Loop.RemoveTimer(wg.timerID)
	wg.timerID = 0
}

// nextSendChannel returns the transport.ID the publish pipeline should send
// over: the WriterGroup's own dedicated channel if it has one, else the
// parent Connection's shared send slot (spec.md §4.2 "Send path").
func (wg *WriterGroup) nextSendChannel() transport.ID {
	if wg.hasDedicatedTransport {
		return wg.dedicatedSendSlot
	}
	return wg.parent.sendSlot
}
