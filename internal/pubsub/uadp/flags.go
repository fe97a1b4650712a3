// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-pubsub.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package uadp implements the bit-exact UADP NetworkMessage/DataSetMessage
// binary codec of spec.md §4.4, built as a two-pass sizing-then-writing
// encoder so the caller can allocate the wire buffer from the transport
// before the second pass (spec.md §4.2 "Encoding").
package uadp

// FieldEncoding is the DataSetMessage field-encoding selector (spec.md §4.4).
type FieldEncoding byte

const (
	FieldEncodingVariant FieldEncoding = iota
	FieldEncodingRawData
	FieldEncodingDataValue
)

// DSMType is the DataSetMessage type (spec.md §4.4).
type DSMType byte

const (
	DSMKeyFrame DSMType = iota
	DSMDeltaFrame
	DSMKeepAlive
	DSMEvent
)

// PublisherIDType selects which PublisherId sum-type variant is wire-present
// (spec.md §3's "sum type over {Byte, UInt16, UInt32, UInt64, String}").
type PublisherIDType byte

const (
	PublisherIDByte PublisherIDType = iota
	PublisherIDUInt16
	PublisherIDUInt32
	PublisherIDUInt64
	PublisherIDString
)

// Flags1 bits (first wire byte, "version+flags").
const (
	flags1VersionMask        = 0x07
	flags1PublisherIDEnabled = 1 << 3
	flags1GroupHeaderEnabled = 1 << 4
	flags1PayloadHeaderEnabled = 1 << 5
	flags1ExtendedEnabled    = 1 << 6
)

// ExtendedFlags1 bits.
const (
	ext1PublisherIDTypeMask     = 0x07
	ext1DataSetClassIDEnabled   = 1 << 3
	ext1SecurityEnabled         = 1 << 4
	ext1TimestampEnabled        = 1 << 5
	ext1PicosecondsEnabled      = 1 << 6
	ext1ExtendedFlags2Enabled   = 1 << 7
)

// ExtendedFlags2 bits.
const (
	ext2NetworkMessageTypeMask  = 0x03
	ext2ChunkMessage            = 1 << 2
	ext2PromotedFieldsEnabled   = 1 << 3
)

// GroupFlags bits.
const (
	groupWriterGroupIDEnabled        = 1 << 0
	groupGroupVersionEnabled         = 1 << 1
	groupNetworkMessageNumberEnabled = 1 << 2
	groupSequenceNumberEnabled       = 1 << 3
)

// SecurityFlags bits.
const (
	securityNetworkMessageSigned    = 1 << 0
	securityNetworkMessageEncrypted = 1 << 1
	securityFooterEnabled           = 1 << 2
)

// DSM flags1 bits.
const (
	dsmValid              = 1 << 0
	dsmFieldEncodingMask   = 0x03
	dsmFieldEncodingShift  = 1
	dsmSequenceEnabled     = 1 << 3
	dsmStatusEnabled       = 1 << 4
	dsmConfigMajorEnabled  = 1 << 5
	dsmConfigMinorEnabled  = 1 << 6
	dsmFlags2Enabled       = 1 << 7
)

// DSM flags2 bits.
const (
	dsmTypeMask         = 0x03
	dsmTimestampEnabled = 1 << 2
	dsmPicoEnabled      = 1 << 3
)
