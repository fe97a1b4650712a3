// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-pubsub.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pubsub

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"time"

	"github.com/ClusterCockpit/cc-pubsub/internal/pubsub/security"
	"github.com/ClusterCockpit/cc-pubsub/internal/pubsub/transport"
	"github.com/ClusterCockpit/cc-pubsub/internal/pubsub/uadp"
	"github.com/ClusterCockpit/cc-pubsub/pkg/log"
	"github.com/ClusterCockpit/cc-pubsub/pkg/ua"
)

// publishTick runs one sampling/encode/send cycle for wg (spec.md §4.2):
// sample every writer's PublishedDataSet, decide key-frame vs delta-frame
// per writer, batch the resulting DataSetMessages up to
// MaxEncapsulatedDataSetMessageCount, and send.
func (m *Manager) publishTick(wg *WriterGroup) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if wg.State != Operational {
		return
	}

	batch := make([]DataSetMessagePlan, 0, len(wg.writers))
	var soloOnly []DataSetMessagePlan

	for _, w := range wg.writers {
		if w.State != Operational {
			continue
		}
		if w.PDS == nil {
			if plan := m.heartbeatWriter(w); plan != nil {
				batch = append(batch, *plan)
			}
			continue
		}
		plan, hasPromoted := m.sampleWriter(w)
		if plan == nil {
			continue
		}
		if hasPromoted {
			soloOnly = append(soloOnly, *plan)
			continue
		}
		batch = append(batch, *plan)
	}

	// Promoted-field messages are forced into their own NetworkMessage so a
	// receiver need not parse the whole batch to pick them out (spec.md
	// §4.2: "a DataSetMessage containing a promoted field forces that
	// message to be sent alone").
	for _, p := range soloOnly {
		m.sendBatch(wg, []DataSetMessagePlan{p})
	}

	maxPerMsg := int(wg.MaxEncapsulatedDataSetMessageCount)
	if maxPerMsg <= 0 {
		maxPerMsg = 1
	}
	for len(batch) > 0 {
		n := maxPerMsg
		if n > len(batch) {
			n = len(batch)
		}
		n = m.fitByteBudget(wg, batch[:n])
		m.sendBatch(wg, batch[:n])
		batch = batch[n:]
	}
}

// fitByteBudget shrinks a candidate chunk so its encoded NetworkMessage size
// respects wg.MaxNetworkMessageSize, independent of
// MaxEncapsulatedDataSetMessageCount (SPEC_FULL.md §4). A single
// over-budget message is still sent alone rather than dropped.
func (m *Manager) fitByteBudget(wg *WriterGroup, plans []DataSetMessagePlan) int {
	if wg.MaxNetworkMessageSize == 0 || len(plans) <= 1 {
		return len(plans)
	}
	n := len(plans)
	for n > 1 {
		nm, sig := wg.buildNetworkMessage(plans[:n], m.now(), nil)
		size, err := uadp.Size(nm, sig)
		if err != nil || size <= int(wg.MaxNetworkMessageSize) {
			break
		}
		n--
	}
	return n
}

// DataSetMessagePlan is the sampled, not-yet-encoded result of one writer's
// tick.
type DataSetMessagePlan struct {
	Writer *DataSetWriter
	Type   DSMType
	Fields []ua.DataValue
}

type DSMType = uadp.DSMType

// sampleWriter reads every field of w's PublishedDataSet, updates the
// sample cache, and decides key-frame vs delta-frame (spec.md §4.2: "a delta
// frame containing only fields whose sampled value differs from the per-
// writer sample cache; every keyFrameCount-th publish forces a full key
// frame regardless").
func (m *Manager) sampleWriter(w *DataSetWriter) (plan *DataSetMessagePlan, hasPromoted bool) {
	fields := w.PDS.Fields()
	if len(w.sampleCache) != len(fields) {
		w.sampleCache = make([]ua.Variant, len(fields))
	}

	forceKeyFrame := w.deltaCounter >= w.KeyFrameCount
	if forceKeyFrame {
		w.deltaCounter = 0
	}
	w.deltaCounter++

	sampled := make([]ua.DataValue, len(fields))
	changed := make([]bool, len(fields))
	dirty := false
	for i, f := range fields {
		dv, err := m.AddressSpace.Read(context.Background(), f.TargetNodeID, f.AttributeID, f.IndexRange)
		if err != nil {
			log.Debugf("pubsub: publish sample failed for %s: %v", f.TargetNodeID, err)
			continue
		}
		sampled[i] = dv
		if forceKeyFrame || !w.sampleCache[i].Equal(dv.Value) {
			dirty = true
			changed[i] = true
		}
		if f.PromotedField {
			hasPromoted = true
		}
	}

	if !dirty && !forceKeyFrame {
		return nil, hasPromoted
	}

	// A delta frame still has one slot per field (this codec has no
	// per-field index list): an unchanged field goes out as the zero
	// Variant, which the receive path skips. RawData encoding cannot
	// express an empty slot, so RawData delta frames carry every sampled
	// value.
	msgType := uadp.DSMDeltaFrame
	if forceKeyFrame {
		msgType = uadp.DSMKeyFrame
	}

	for i := range fields {
		w.sampleCache[i] = sampled[i].Value
		if msgType == uadp.DSMDeltaFrame && !changed[i] && !w.FieldContentMask.Has(ua.FieldRawData) {
			sampled[i] = ua.DataValue{}
		}
	}

	return &DataSetMessagePlan{Writer: w, Type: msgType, Fields: sampled}, hasPromoted
}

// heartbeatWriter decides whether this tick should emit a heartbeat for a
// nil-PDS DataSetWriter (SPEC_FULL.md §4: "a DataSetWriter with a nil
// PublishedDataSet reference periodically emits a zero-field 'heartbeat'
// DataSetMessage once per keyFrameCount ticks rather than every tick").
// w.deltaCounter drives the cadence the same way sampleWriter uses it for
// key-frame forcing on writers that do have a PDS.
func (m *Manager) heartbeatWriter(w *DataSetWriter) *DataSetMessagePlan {
	due := w.deltaCounter >= w.KeyFrameCount
	w.deltaCounter++
	if !due {
		return nil
	}
	w.deltaCounter = 0
	return &DataSetMessagePlan{Writer: w, Type: uadp.DSMKeyFrame, Fields: nil}
}

// buildNetworkMessage assembles plans into a NetworkMessage for wg. nonce is
// the already-generated per-message nonce to embed when security is active,
// or nil to fill an equal-length placeholder; callers doing real sends pass
// a freshly generated nonce, callers only estimating size (fitByteBudget)
// pass nil so repeated trials don't burn through the nonce counter.
func (wg *WriterGroup) buildNetworkMessage(plans []DataSetMessagePlan, now time.Time, nonce []byte) (*uadp.NetworkMessage, uadp.SecurityContext) {
	c := wg.parent
	nm := &uadp.NetworkMessage{
		ContentMask:          uint32(wg.ContentMask),
		HasPublisherID:       wg.ContentMask.Has(MaskPublisherID),
		PublisherID:          c.PublisherID,
		WriterGroupID:        wg.WriterGroupID,
		GroupVersion:         wg.groupVersion,
		NetworkMessageNumber: 0,
		SequenceNumber:       wg.sequenceNumber,
		Timestamp:            now,
	}

	var sig uadp.SecurityContext
	if wg.SecurityMode != security.ModeNone && wg.SecurityContext != nil {
		nm.SecurityMode = uadp.MessageSecurityMode{
			Signed:    true,
			Encrypted: wg.SecurityMode == security.ModeSignAndEncrypt,
		}
		nm.TokenID = wg.SecurityContext.TokenID()
		if nonce == nil {
			nonce = make([]byte, 8)
		}
		nm.Nonce = nonce
		sig = wg.SecurityContext
	}

	for _, p := range plans {
		dsm := uadp.DataSetMessage{
			WriterID:      p.Writer.WriterID,
			FieldEncoding: fieldEncodingOf(p.Writer.FieldContentMask),
			Type:          p.Type,
			HasSequence:   true,
			Fields:        p.Fields,
			ContentMask:   p.Writer.FieldContentMask,
			FieldPlans:    fieldPlansOfWriter(p.Writer),
		}
		nm.DataSetMessages = append(nm.DataSetMessages, dsm)
	}

	return nm, sig
}

// sendBatch builds one NetworkMessage out of plans and sends it over wg's
// send channel.
func (m *Manager) sendBatch(wg *WriterGroup, plans []DataSetMessagePlan) {
	c := wg.parent
	var nonce []byte
	if wg.SecurityMode != security.ModeNone && wg.SecurityContext != nil {
		nonce = wg.nextNonce()
	}
	nm, sig := wg.buildNetworkMessage(plans, m.now(), nonce)

	wgLabel := wg.ID.String()

	n, err := uadp.Size(nm, sig)
	if err != nil {
		log.Errorf("pubsub: failed to size network message for writer group %s: %v", wg.ID, err)
		m.countSendError(wgLabel)
		return
	}

	cm, err := m.Transports.Manager(c.ProfileURI)
	if err != nil {
		return
	}
	channel := wg.nextSendChannel()
	if channel == 0 {
		return
	}
	buf := cm.AllocNetworkBuffer(channel, n)
	if len(buf) < n {
		buf = make([]byte, n)
	}

	written, _, err := uadp.EncodeInto(buf[:n], nm, sig)
	if err != nil {
		log.Errorf("pubsub: failed to encode network message for writer group %s: %v", wg.ID, err)
		cm.FreeNetworkBuffer(channel, buf)
		m.countSendError(wgLabel)
		return
	}

	if err := cm.SendWithConnection(channel, transport.SendParams{Topic: wg.dedicatedTopic}, buf[:written]); err != nil {
		log.Warnf("pubsub: send failed for writer group %s: %v", wg.ID, err)
		m.countSendError(wgLabel)
		return
	}

	// spec.md §4.2: the sequence number is incremented after a successful
	// send only, so a failed size/encode/send attempt never produces a wire
	// gap a receiver's checkSequenceNumber would then flag.
	wg.sequenceNumber++

	if m.Diagnostics != nil {
		m.Diagnostics.MessagesPublished.WithLabelValues(wgLabel).Inc()
	}
}

func (m *Manager) countSendError(writerGroupLabel string) {
	if m.Diagnostics != nil {
		m.Diagnostics.SendErrors.WithLabelValues(writerGroupLabel).Inc()
	}
}

// fieldPlansOfWriter reports the RawData wire shape (type/array dims/max
// string length) of every field in w's PublishedDataSet, consulted only
// when w.FieldContentMask selects RawData encoding.
func fieldPlansOfWriter(w *DataSetWriter) []uadp.FieldPlan {
	if w.PDS == nil {
		return nil
	}
	fields := w.PDS.Fields()
	plans := make([]uadp.FieldPlan, len(fields))
	for i, f := range fields {
		plans[i] = uadp.FieldPlan{
			BuiltinType:     f.Metadata.BuiltinType,
			ArrayDimensions: f.Metadata.ArrayDimensions,
			MaxStringLength: f.MaxStringLength,
		}
	}
	return plans
}

func fieldEncodingOf(mask ua.FieldContentMask) uadp.FieldEncoding {
	if mask.Has(ua.FieldRawData) {
		return uadp.FieldEncodingRawData
	}
	if mask != 0 {
		return uadp.FieldEncodingDataValue
	}
	return uadp.FieldEncodingVariant
}

// nextNonce builds the per-message nonce as 4 random bytes followed by the
// group's 4-byte monotonic counter, little-endian (SPEC_FULL.md §4).
func (wg *WriterGroup) nextNonce() []byte {
	nonce := make([]byte, 8)
	_, _ = rand.Read(nonce[:4])
	wg.nonceCounter++
	binary.LittleEndian.PutUint32(nonce[4:], wg.nonceCounter)
	return nonce
}

func (m *Manager) now() time.Time {
	if m.Loop != nil {
		return m.Loop.Now()
	}
	return time.Time{}
}
