// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-pubsub.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ua_test

import (
	"testing"

	"github.com/ClusterCockpit/cc-pubsub/pkg/ua"
	"github.com/stretchr/testify/assert"
)

func TestPublisherIdEquality(t *testing.T) {
	a := ua.PublisherIdFromUInt32(10)
	b := ua.PublisherIdFromUInt32(10)
	c := ua.PublisherIdFromUInt32(11)
	d := ua.PublisherId{Kind: ua.PublisherIdUInt16, UInt16: 10}

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.False(t, a.Equal(d), "same numeric value but different variant must not match")
}

func TestNodeIdEquality(t *testing.T) {
	a := ua.NumericNodeId(0, 2258)
	b := ua.NumericNodeId(0, 2258)
	c := ua.StringNodeId(0, "2258")

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
}

func TestVariantEqualDetectsDelta(t *testing.T) {
	a := ua.ScalarVariant(ua.TypeInt32, int32(5))
	b := ua.ScalarVariant(ua.TypeInt32, int32(5))
	c := ua.ScalarVariant(ua.TypeInt32, int32(6))

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
}

func TestStatusCodeClassification(t *testing.T) {
	assert.True(t, ua.Good.IsGood())
	assert.True(t, ua.BadTimeout.IsBad())
	assert.False(t, ua.BadTimeout.IsGood())
}

func TestPublisherIdIsZero(t *testing.T) {
	assert.True(t, ua.PublisherId{}.IsZero())
	assert.True(t, ua.PublisherId{Kind: ua.PublisherIdByte, Byte: 0}.IsZero())
	assert.False(t, ua.PublisherIdFromUInt32(0).IsZero())
	assert.False(t, ua.PublisherId{Kind: ua.PublisherIdByte, Byte: 1}.IsZero())
}

func TestPublisherIdString(t *testing.T) {
	assert.Equal(t, "5", ua.PublisherIdFromUInt32(5).String())
	assert.Equal(t, "byte:3", ua.PublisherId{Kind: ua.PublisherIdByte, Byte: 3}.String())
	assert.Equal(t, "uint16:7", ua.PublisherId{Kind: ua.PublisherIdUInt16, UInt16: 7}.String())
	assert.Equal(t, "string:foo", ua.PublisherId{Kind: ua.PublisherIdString, Str: "foo"}.String())
}

func TestParseBuiltinTypeRoundTrips(t *testing.T) {
	bt, err := ua.ParseBuiltinType("Double")
	assert.NoError(t, err)
	assert.Equal(t, ua.TypeDouble, bt)

	_, err = ua.ParseBuiltinType("NotAType")
	assert.Error(t, err)
}

func TestParseNodeIdVariants(t *testing.T) {
	n, err := ua.ParseNodeId("ns=2;s=Temperature")
	assert.NoError(t, err)
	assert.True(t, n.Equal(ua.StringNodeId(2, "Temperature")))

	n2, err := ua.ParseNodeId("ns=0;i=2258")
	assert.NoError(t, err)
	assert.True(t, n2.Equal(ua.NumericNodeId(0, 2258)))

	_, err = ua.ParseNodeId("garbage")
	assert.Error(t, err)
}
