// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-pubsub.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package uadp_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ClusterCockpit/cc-pubsub/internal/pubsub/uadp"
	"github.com/ClusterCockpit/cc-pubsub/pkg/ua"
)

// roundTrip sizes, encodes, and decodes nm, asserting the two passes agree
// on the byte count (spec.md §4.2's two-pass sizing contract).
func roundTrip(t *testing.T, nm *uadp.NetworkMessage, lookup uadp.MetadataLookup) *uadp.NetworkMessage {
	t.Helper()
	n, err := uadp.Size(nm, nil)
	require.NoError(t, err)

	buf := make([]byte, n)
	written, _, err := uadp.EncodeInto(buf, nm, nil)
	require.NoError(t, err)
	require.Equal(t, n, written, "Size and EncodeInto must agree on the wire length")

	got, err := uadp.Decode(buf, lookup, nil)
	require.NoError(t, err)
	return got
}

func TestRoundTripVariantEncodingKeyFrame(t *testing.T) {
	nm := &uadp.NetworkMessage{
		ContentMask:    uadp.MaskPublisherID | uadp.MaskPayloadHeader | uadp.MaskGroupHeader | uadp.MaskWriterGroupID | uadp.MaskSequenceNumber,
		HasPublisherID: true,
		PublisherID:    ua.PublisherIdFromUInt32(7),
		WriterGroupID:  1,
		SequenceNumber: 42,
		DataSetMessages: []uadp.DataSetMessage{
			{
				WriterID:    1,
				Type:        uadp.DSMKeyFrame,
				HasSequence: true,
				Fields: []ua.DataValue{
					{Value: ua.ScalarVariant(ua.TypeInt32, int32(-12))},
					{Value: ua.ScalarVariant(ua.TypeString, "hello")},
				},
			},
		},
	}

	got := roundTrip(t, nm, nil)

	require.Len(t, got.DataSetMessages, 1)
	dsm := got.DataSetMessages[0]
	assert.Equal(t, uint16(1), dsm.WriterID)
	assert.Equal(t, uadp.DSMKeyFrame, dsm.Type)
	require.Len(t, dsm.Fields, 2)
	assert.Equal(t, int32(-12), dsm.Fields[0].Value.Scalar)
	assert.Equal(t, "hello", dsm.Fields[1].Value.Scalar)
	assert.True(t, got.HasPublisherID)
	assert.True(t, got.PublisherID.Equal(nm.PublisherID))
	assert.EqualValues(t, 1, got.WriterGroupID)
	assert.EqualValues(t, 42, got.SequenceNumber)
}

// TestRoundTripDataValueEncodingRecoversContentMask exercises the fix for
// the decode-side ContentMask: a writer using FieldEncodingDataValue with
// StatusCode+SourceTimestamp must be read back with those components intact,
// not just the bare Variant.
func TestRoundTripDataValueEncodingRecoversContentMask(t *testing.T) {
	mask := ua.FieldStatusCode | ua.FieldSourceTimestamp
	srcTime := time.Unix(1700000000, 0).UTC()

	nm := &uadp.NetworkMessage{
		ContentMask:    uadp.MaskPayloadHeader,
		DataSetMessages: []uadp.DataSetMessage{
			{
				WriterID:      5,
				FieldEncoding: uadp.FieldEncodingDataValue,
				Type:          uadp.DSMKeyFrame,
				ContentMask:   mask,
				Fields: []ua.DataValue{
					{
						Value:           ua.ScalarVariant(ua.TypeDouble, 3.5),
						Status:          ua.StatusCode(0x80000000),
						HasStatus:       true,
						SourceTimestamp: srcTime,
						HasSourceTimestamp: true,
					},
				},
			},
		},
	}

	lookup := func(writerID uint16) ([]uadp.FieldPlan, bool) {
		if writerID != 5 {
			return nil, false
		}
		return []uadp.FieldPlan{{BuiltinType: ua.TypeDouble, ContentMask: mask}}, true
	}

	got := roundTrip(t, nm, lookup)

	require.Len(t, got.DataSetMessages, 1)
	dsm := got.DataSetMessages[0]
	require.Len(t, dsm.Fields, 1)
	field := dsm.Fields[0]
	assert.Equal(t, 3.5, field.Value.Scalar)
	assert.True(t, field.HasStatus, "StatusCode must survive the round trip")
	assert.EqualValues(t, 0x80000000, field.Status)
	assert.True(t, field.HasSourceTimestamp, "SourceTimestamp must survive the round trip")
	assert.True(t, field.SourceTimestamp.Equal(srcTime))
}

func TestRoundTripRawDataEncoding(t *testing.T) {
	plans := []uadp.FieldPlan{
		{BuiltinType: ua.TypeInt32},
		{BuiltinType: ua.TypeString, MaxStringLength: 16},
	}

	nm := &uadp.NetworkMessage{
		ContentMask: uadp.MaskPayloadHeader,
		DataSetMessages: []uadp.DataSetMessage{
			{
				WriterID:      9,
				FieldEncoding: uadp.FieldEncodingRawData,
				Type:          uadp.DSMKeyFrame,
				FieldPlans:    plans,
				Fields: []ua.DataValue{
					{Value: ua.ScalarVariant(ua.TypeInt32, int32(99))},
					{Value: ua.ScalarVariant(ua.TypeString, "raw")},
				},
			},
		},
	}

	lookup := func(writerID uint16) ([]uadp.FieldPlan, bool) {
		if writerID != 9 {
			return nil, false
		}
		return plans, true
	}

	got := roundTrip(t, nm, lookup)

	require.Len(t, got.DataSetMessages, 1)
	dsm := got.DataSetMessages[0]
	require.Len(t, dsm.Fields, 2)
	assert.Equal(t, int32(99), dsm.Fields[0].Value.Scalar)
	assert.Equal(t, "raw", dsm.Fields[1].Value.Scalar)
}

func TestRoundTripDeltaFrameOmitsUnchangedFields(t *testing.T) {
	nm := &uadp.NetworkMessage{
		ContentMask: uadp.MaskPayloadHeader,
		DataSetMessages: []uadp.DataSetMessage{
			{
				WriterID: 2,
				Type:     uadp.DSMDeltaFrame,
				Fields: []ua.DataValue{
					{Value: ua.Variant{}},
					{Value: ua.ScalarVariant(ua.TypeInt32, int32(5))},
				},
			},
		},
	}

	got := roundTrip(t, nm, nil)

	require.Len(t, got.DataSetMessages, 1)
	dsm := got.DataSetMessages[0]
	assert.Equal(t, uadp.DSMDeltaFrame, dsm.Type)
	require.Len(t, dsm.Fields, 2)
	assert.EqualValues(t, 0, dsm.Fields[0].Value.Type, "an unset field decodes back to the zero Variant")
	assert.Equal(t, int32(5), dsm.Fields[1].Value.Scalar)
}

func TestPeekHeaderReportsIdentityWithoutDecodingPayload(t *testing.T) {
	nm := &uadp.NetworkMessage{
		ContentMask:    uadp.MaskPublisherID | uadp.MaskGroupHeader | uadp.MaskWriterGroupID,
		HasPublisherID: true,
		PublisherID:    ua.PublisherIdFromUInt32(3),
		WriterGroupID:  11,
		DataSetMessages: []uadp.DataSetMessage{
			{WriterID: 1, Type: uadp.DSMKeyFrame},
		},
	}

	n, err := uadp.Size(nm, nil)
	require.NoError(t, err)
	buf := make([]byte, n)
	_, _, err = uadp.EncodeInto(buf, nm, nil)
	require.NoError(t, err)

	h, err := uadp.PeekHeader(buf)
	require.NoError(t, err)
	assert.True(t, h.HasPublisherID)
	assert.True(t, h.PublisherID.Equal(nm.PublisherID))
	assert.True(t, h.HasWriterGroupID)
	assert.EqualValues(t, 11, h.WriterGroupID)
}
