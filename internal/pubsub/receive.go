// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-pubsub.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pubsub

import (
	"context"

	"github.com/ClusterCockpit/cc-pubsub/internal/pubsub/security"
	"github.com/ClusterCockpit/cc-pubsub/internal/pubsub/uadp"
	"github.com/ClusterCockpit/cc-pubsub/pkg/log"
)

// handleInboundMessage demultiplexes bytes received on c's shared receive
// channel across every ReaderGroup/DataSetReader attached to it (spec.md
// §4.3). Called with m.mu already held (it is only ever reached from
// onConnectionEvent).
func (m *Manager) handleInboundMessage(c *Connection, bytes []byte) {
	for _, rg := range c.readerGroups {
		if rg.hasDedicatedChannels {
			continue
		}
		m.demuxIntoGroup(c, rg, bytes)
	}
}

// handleInboundMessageForGroup handles bytes received on a ReaderGroup's own
// dedicated receive channel (e.g. a distinct MQTT topic subscription).
func (m *Manager) handleInboundMessageForGroup(rg *ReaderGroup, bytes []byte) {
	m.demuxIntoGroup(rg.parent, rg, bytes)
}

// demuxIntoGroup decodes one NetworkMessage against rg's readers: rg's own
// security context verifies/decrypts it, and each DataSetMessage is decoded
// with the field metadata of the matching reader whose DataSetWriterId it
// carries; every matching reader then gets the DataSetMessages addressed to
// it (spec.md §4.3).
func (m *Manager) demuxIntoGroup(c *Connection, rg *ReaderGroup, raw []byte) {
	if rg.State == Disabled {
		return
	}

	header, err := uadp.PeekHeader(raw)
	if err != nil {
		m.logInbound(c, "failed to parse network message header: %v", err)
		m.countDropped("decode_error")
		return
	}

	matched := matchingReaders(rg, header)
	if len(matched) == 0 {
		m.logInbound(c, "no reader in group %q matches publisher=%v writerGroup=%v", rg.Name, header.PublisherID, header.WriterGroupID)
		m.countDropped("no_match")
		return
	}

	var sig uadp.SecurityContext
	if rg.SecurityMode != security.ModeNone && rg.SecurityContext != nil {
		sig = rg.SecurityContext
	}

	lookup := func(writerID uint16) ([]uadp.FieldPlan, bool) {
		for _, r := range matched {
			if r.DataSetWriterID == writerID {
				return fieldPlansOf(r), true
			}
		}
		return nil, false
	}

	nm, err := uadp.Decode(raw, lookup, sig)
	if err != nil {
		m.logInbound(c, "failed to decode network message for group %q: %v", rg.Name, err)
		m.countDropped("decode_error")
		return
	}

	now := m.now()
	for _, dsm := range nm.DataSetMessages {
		for _, r := range matched {
			if r.DataSetWriterID != dsm.WriterID {
				continue
			}
			if r.State == Disabled {
				continue
			}
			if r.checkSequenceNumber(dsm.SequenceNumber, dsm.HasSequence) {
				m.countSequenceGap(r)
			}
			m.applyDataSetMessage(r, &dsm)
			r.noteMessageReceived(now)
			// spec.md §4.3 "First-message semantics": receipt of a matching
			// message is what promotes the ReaderGroup and the matched
			// Reader out of PreOperational; nothing else re-runs the
			// machine for them, so it must happen here.
			m.driveToTarget(rg, Operational)
			m.driveToTarget(r, Operational)
			m.countReceived(rg)
		}
	}
}

func (m *Manager) countReceived(rg *ReaderGroup) {
	if m.Diagnostics != nil {
		m.Diagnostics.MessagesReceived.WithLabelValues(rg.ID.String()).Inc()
	}
}

func (m *Manager) countDropped(reason string) {
	if m.Diagnostics != nil {
		m.Diagnostics.MessagesDropped.WithLabelValues(reason).Inc()
	}
}

func (m *Manager) countSequenceGap(r *DataSetReader) {
	if m.Diagnostics != nil {
		m.Diagnostics.SequenceGaps.WithLabelValues(r.ID.String()).Inc()
	}
}

// matchingReaders returns every reader in rg whose identity triple matches
// the decoded header (spec.md §4.3's identity match: PublisherId,
// WriterGroupId, and, only if a payload header is present, DataSetWriterId).
func matchingReaders(rg *ReaderGroup, h uadp.Header) []*DataSetReader {
	var out []*DataSetReader
	for _, r := range rg.readers {
		if r.matches(h.PublisherID, h.HasPublisherID, h.WriterGroupID, h.HasWriterGroupID, h.DataSetWriterIDs, h.HasPayloadHeader) {
			out = append(out, r)
		}
	}
	return out
}

func fieldPlansOf(r *DataSetReader) []uadp.FieldPlan {
	if r.SDS == nil {
		return nil
	}
	plans := make([]uadp.FieldPlan, len(r.Metadata))
	for i, md := range r.Metadata {
		plans[i] = uadp.FieldPlan{
			BuiltinType:     md.BuiltinType,
			ArrayDimensions: md.ArrayDimensions,
			MaxStringLength: md.MaxStringLength,
			ContentMask:     r.FieldContentMask,
		}
	}
	return plans
}

// applyDataSetMessage writes every decoded field to the address-space node
// the reader's SubscribedDataSet maps it to, positionally by index (spec.md
// §4.3, §6: "Write(nodeId, attribute, indexRange, DataValue)").
func (m *Manager) applyDataSetMessage(r *DataSetReader, dsm *uadp.DataSetMessage) {
	if r.SDS == nil || r.SDS.Kind != SDSTargetVariables {
		return
	}
	targets := r.SDS.TargetVariables
	for i, dv := range dsm.Fields {
		if i >= len(targets) {
			break
		}
		if dv.Value.Type == 0 {
			// Delta-frame fields the sender omitted as unchanged carry a
			// zero Variant (BuiltinType 0 is never valid on the wire);
			// nothing to write for this index.
			continue
		}
		t := targets[i]
		if err := m.AddressSpace.Write(context.Background(), t.TargetNodeID, t.AttributeID, t.IndexRange, dv); err != nil {
			log.Warnf("pubsub: write failed for reader %s field %d: %v", r.ID, i, err)
		}
	}
}

func (m *Manager) logInbound(c *Connection, format string, args ...any) {
	if !c.shouldLog(m.now()) {
		return
	}
	log.Warnf("pubsub: "+format, args...)
}
