// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-pubsub.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pubsub

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ClusterCockpit/cc-pubsub/pkg/ua"
)

func TestCheckSequenceNumberNoGapOnFirstMessage(t *testing.T) {
	r := &DataSetReader{}
	assert.False(t, r.checkSequenceNumber(5, true), "the first sequence number observed can never be a gap")
	assert.True(t, r.hasLastSequence)
	assert.EqualValues(t, 5, r.lastSequenceNumber)
}

func TestCheckSequenceNumberDetectsGap(t *testing.T) {
	r := &DataSetReader{}
	r.checkSequenceNumber(10, true)
	assert.True(t, r.checkSequenceNumber(12, true), "jumping from 10 to 12 skips 11")
}

func TestCheckSequenceNumberAcceptsConsecutive(t *testing.T) {
	r := &DataSetReader{}
	r.checkSequenceNumber(10, true)
	assert.False(t, r.checkSequenceNumber(11, true))
	assert.False(t, r.checkSequenceNumber(12, true))
}

func TestCheckSequenceNumberWrapsAt16Bit(t *testing.T) {
	r := &DataSetReader{}
	r.checkSequenceNumber(65535, true)
	assert.False(t, r.checkSequenceNumber(0, true), "sequence numbers wrap at 2^16, 0 follows 65535")
}

func TestCheckSequenceNumberIgnoresMessagesWithoutSequence(t *testing.T) {
	r := &DataSetReader{}
	r.checkSequenceNumber(10, true)
	assert.False(t, r.checkSequenceNumber(0, false), "messages without a sequence number never participate")
	assert.True(t, r.hasLastSequence)
	assert.EqualValues(t, 10, r.lastSequenceNumber, "last-seen sequence must be unaffected by a no-sequence message")
}

func TestResolvePublisherIDAutoAssignsFromComponentID(t *testing.T) {
	got := resolvePublisherID(ComponentId(7), ua.PublisherId{})
	assert.False(t, got.IsZero())
}
