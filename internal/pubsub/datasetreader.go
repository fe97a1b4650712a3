// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-pubsub.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pubsub

import (
	"time"

	"github.com/ClusterCockpit/cc-pubsub/internal/pubsub/eventloop"
	"github.com/ClusterCockpit/cc-pubsub/pkg/ua"
)

// DataSetReader is a filter + sink claiming matching inbound
// DataSetMessages (spec.md §3).
type DataSetReader struct {
	Head

	mgr    *Manager
	parent *ReaderGroup

	PublisherID           ua.PublisherId
	WriterGroupID         uint16
	DataSetWriterID       uint16
	MessageReceiveTimeout time.Duration

	Metadata         []FieldMetadata
	FieldContentMask ua.FieldContentMask
	SDS              *SubscribedDataSet

	hasReceivedMatch bool
	timeoutTimer     eventloop.TimerID

	lastSequenceNumber uint16
	hasLastSequence    bool

	lastErr ua.StatusCode
}

func newDataSetReader(mgr *Manager, parent *ReaderGroup, id ComponentId) *DataSetReader {
	return &DataSetReader{Head: newHead(id, KindDataSetReader), mgr: mgr, parent: parent}
}

func (r *DataSetReader) head() *Head           { return &r.Head }
func (r *DataSetReader) children() []component { return nil }
func (r *DataSetReader) lastErrorStatus() ua.StatusCode { return r.lastErr }

func (r *DataSetReader) Enable() {
	r.mgr.mu.Lock()
	defer r.mgr.mu.Unlock()
	r.mgr.enable(r)
}

func (r *DataSetReader) Disable() {
	r.mgr.mu.Lock()
	defer r.mgr.mu.Unlock()
	r.mgr.disable(r)
}

func (r *DataSetReader) naturalTarget() State {
	if r.parent == nil || r.parent.State != Operational {
		return Paused
	}
	if !r.hasReceivedMatch {
		return PreOperational
	}
	return Operational
}

func (r *DataSetReader) onEnter(s State) error {
	switch s {
	case Disabled, Error:
		r.cancelTimeout()
		if s == Disabled {
			r.hasReceivedMatch = false
		}
	}
	return nil
}

// matches implements spec.md §4.3's per-reader identity match.
func (r *DataSetReader) matches(msgPID ua.PublisherId, havePID bool, msgWGID uint16, haveWGID bool, dswIDs []uint16, havePayloadHeader bool) bool {
	if havePID && !r.PublisherID.Equal(msgPID) {
		return false
	}
	if haveWGID && r.WriterGroupID != msgWGID {
		return false
	}
	if havePayloadHeader {
		found := false
		for _, id := range dswIDs {
			if id == r.DataSetWriterID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// checkSequenceNumber implements SPEC_FULL.md §4's DataSetMessageSequenceNumber
// gap detection: a received sequence number that isn't the predecessor's
// successor (mod 2^16, matching the wire field's wraparound) is a gap.
// Messages without a sequence number don't participate in the check.
func (r *DataSetReader) checkSequenceNumber(seq uint16, hasSeq bool) bool {
	if !hasSeq {
		return false
	}
	gap := r.hasLastSequence && seq != r.lastSequenceNumber+1
	r.lastSequenceNumber = seq
	r.hasLastSequence = true
	return gap
}

// noteMessageReceived implements the receive-timeout rescheduling and
// first-message PreOperational->Operational transition of spec.md §4.3.
func (r *DataSetReader) noteMessageReceived(now time.Time) {
	r.hasReceivedMatch = true
	r.parent.noteMessageReceived()
	r.rescheduleTimeout()
}

// rescheduleTimeout implements spec.md §4.3: "Timer rescheduling uses a
// policy that measures from now ... to avoid catch-up after long gaps."
func (r *DataSetReader) rescheduleTimeout() {
	if r.MessageReceiveTimeout <= 0 || r.mgr.Loop == nil {
		return
	}
	r.cancelTimeout()
	r.timeoutTimer = r.mgr.Loop.AddOneShot(r.MessageReceiveTimeout, func() {
		r.mgr.onReceiveTimeout(r)
	})
}

func (r *DataSetReader) cancelTimeout() {
	if r.timeoutTimer == 0 || r.mgr.Loop == nil {
		return
	}
	r.mgr.Loop.RemoveTimer(r.timeoutTimer)
	r.timeoutTimer = 0
}
