// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-pubsub.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pubsub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ClusterCockpit/cc-pubsub/internal/pubsub/addressspace"
	"github.com/ClusterCockpit/cc-pubsub/internal/pubsub/eventloop"
	"github.com/ClusterCockpit/cc-pubsub/internal/pubsub/uadp"
	"github.com/ClusterCockpit/cc-pubsub/pkg/ua"
)

// newReceiveTestFixture wires a minimal Connection/ReaderGroup/DataSetReader
// graph by hand, the way datasetreader_internal_test.go and
// publish_internal_test.go do: no transport, no config loader, just enough
// state for demuxIntoGroup to run.
func newReceiveTestFixture(t *testing.T) (*Manager, *Connection, *ReaderGroup, *DataSetReader, ua.NodeId) {
	t.Helper()

	store := addressspace.NewMemoryStore()
	m := &Manager{
		Loop:         eventloop.NewFake(time.Now()),
		AddressSpace: store,
	}

	c := &Connection{Head: newHead(1, KindConnection), mgr: m}
	c.State = Operational
	c.recvSlots[0] = 1 // hasRecvSlot() must be true for the group to reach Operational

	rg := newReaderGroup(m, c, 2, "rg")
	rg.State = PreOperational

	r := newDataSetReader(m, rg, 3)
	r.State = PreOperational
	r.WriterGroupID = 1
	r.DataSetWriterID = 1
	r.Metadata = []FieldMetadata{{BuiltinType: ua.TypeInt32}}

	node := ua.NumericNodeId(2, 100)
	r.SDS = newSubscribedDataSet(4)
	require.NoError(t, r.SDS.SetTargetVariables([]TargetVariable{
		{TargetNodeID: node, AttributeID: addressspace.AttributeValue},
	}))

	rg.readers = []*DataSetReader{r}
	c.readerGroups = []*ReaderGroup{rg}

	return m, c, rg, r, node
}

// encodeKeyFrame builds the raw bytes of a single-DataSetMessage,
// Variant-encoded key frame, matching the wire shape message_test.go
// exercises on the uadp package directly.
func encodeKeyFrame(t *testing.T, writerGroupID, writerID uint16, seq uint16, value int32) []byte {
	t.Helper()
	nm := &uadp.NetworkMessage{
		ContentMask:    uadp.MaskPayloadHeader | uadp.MaskGroupHeader | uadp.MaskWriterGroupID | uadp.MaskSequenceNumber,
		WriterGroupID:  writerGroupID,
		SequenceNumber: seq,
		DataSetMessages: []uadp.DataSetMessage{
			{
				WriterID:    writerID,
				Type:        uadp.DSMKeyFrame,
				HasSequence: true,
				Fields: []ua.DataValue{
					{Value: ua.ScalarVariant(ua.TypeInt32, value)},
				},
			},
		},
	}
	n, err := uadp.Size(nm, nil)
	require.NoError(t, err)
	buf := make([]byte, n)
	_, _, err = uadp.EncodeInto(buf, nm, nil)
	require.NoError(t, err)
	return buf
}

// TestDemuxIntoGroupPromotesOnFirstMessage proves the fix for the
// PreOperational->Operational transition: receipt of the first matching
// message must promote both the ReaderGroup and the matched DataSetReader,
// not just record hasReceived/hasReceivedMatch.
func TestDemuxIntoGroupPromotesOnFirstMessage(t *testing.T) {
	m, c, rg, r, node := newReceiveTestFixture(t)

	raw := encodeKeyFrame(t, 1, 1, 10, 123)
	m.demuxIntoGroup(c, rg, raw)

	assert.Equal(t, Operational, rg.State, "group must leave PreOperational on its first matching message")
	assert.Equal(t, Operational, r.State, "reader must leave PreOperational on its first matching message")
	assert.True(t, r.hasReceivedMatch)
	assert.True(t, rg.hasReceived)

	dv, err := m.AddressSpace.Read(context.Background(), node, addressspace.AttributeValue, "")
	require.NoError(t, err)
	assert.Equal(t, int32(123), dv.Value.Scalar)
}

// TestDemuxIntoGroupDetectsSequenceGap exercises the gap-detection path
// alongside the same promotion, using two messages with a skipped sequence
// number.
func TestDemuxIntoGroupDetectsSequenceGap(t *testing.T) {
	m, c, rg, r, _ := newReceiveTestFixture(t)

	m.demuxIntoGroup(c, rg, encodeKeyFrame(t, 1, 1, 10, 1))
	require.True(t, r.hasLastSequence)
	require.EqualValues(t, 10, r.lastSequenceNumber)

	m.demuxIntoGroup(c, rg, encodeKeyFrame(t, 1, 1, 12, 2))
	assert.EqualValues(t, 12, r.lastSequenceNumber, "sequence tracking must advance even across a gap")
	assert.Equal(t, Operational, r.State)
}

// TestDemuxIntoGroupIgnoresNonMatchingWriter confirms a message for a
// different DataSetWriterId leaves the reader/group untouched.
func TestDemuxIntoGroupIgnoresNonMatchingWriter(t *testing.T) {
	m, c, rg, r, _ := newReceiveTestFixture(t)

	m.demuxIntoGroup(c, rg, encodeKeyFrame(t, 1, 99, 1, 1))

	assert.Equal(t, PreOperational, rg.State)
	assert.Equal(t, PreOperational, r.State)
	assert.False(t, r.hasReceivedMatch)
}
