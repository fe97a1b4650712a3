// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-pubsub.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package uadp

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ClusterCockpit/cc-pubsub/pkg/ua"
)

// SecurityContext is the signing/encryption collaborator the codec needs;
// *security.Context satisfies it without this package importing security
// directly for anything but this shape.
type SecurityContext interface {
	Sign(data []byte) ([]byte, error)
	Verify(data, sig []byte) error
	Encrypt(nonce, plaintext []byte) ([]byte, error)
	Decrypt(nonce, ciphertext []byte) ([]byte, error)
	SignatureSize() int
	TokenID() uint32
}

// FieldPlan carries the per-field wire-shape information RawData encoding
// needs, mirroring pubsub.FieldMetadata without importing the pubsub package
// (which would create an import cycle).
type FieldPlan struct {
	BuiltinType     ua.BuiltinType
	ArrayDimensions []uint32
	MaxStringLength uint32

	// ContentMask is the FieldEncodingDataValue wire shape the reader side
	// expects (which optional DataValue components ride along with the
	// Variant). UADP's binary encoding isn't self-describing the way JSON
	// is, so the decoder has no way to recover this from the bytes alone;
	// it must come from the same configuration that told the writer which
	// mask to encode with. Identical across every FieldPlan of one
	// DataSetMessage.
	ContentMask ua.FieldContentMask
}

// DataSetMessage is one payload frame (spec.md §4.4).
type DataSetMessage struct {
	WriterID       uint16
	FieldEncoding  FieldEncoding
	Type           DSMType
	SequenceNumber uint16
	HasSequence    bool
	Status         ua.StatusCode
	HasStatus      bool
	ConfigMajor    uint32
	HasConfigMajor bool
	ConfigMinor    uint32
	HasConfigMinor bool
	Timestamp      time.Time
	HasTimestamp   bool
	Picoseconds    uint16
	HasPicoseconds bool

	Fields     []ua.DataValue
	FieldPlans []FieldPlan // only consulted when FieldEncoding == FieldEncodingRawData
	ContentMask ua.FieldContentMask // only consulted when FieldEncoding == FieldEncodingDataValue
}

// NetworkMessage is one wire PDU (spec.md §4.4).
type NetworkMessage struct {
	ContentMask MessageContentMask

	PublisherID    ua.PublisherId
	HasPublisherID bool

	DataSetClassID    uuid.UUID
	HasDataSetClassID bool

	WriterGroupID         uint16
	GroupVersion          uint32
	NetworkMessageNumber  uint16
	SequenceNumber        uint16

	Timestamp      time.Time
	Picoseconds    uint16

	PromotedFields []ua.Variant

	SecurityMode MessageSecurityMode
	TokenID      uint32
	Nonce        []byte

	DataSetMessages []DataSetMessage
}

// MessageSecurityMode is the per-message signed/encrypted pair (independent
// of the group's configured security.Mode so JSON-vs-UADP policy decisions
// in SPEC_FULL.md §3 stay local to the codec).
type MessageSecurityMode struct {
	Signed    bool
	Encrypted bool
}

// MessageContentMask mirrors pubsub.MessageContentMask's bit layout; it is
// redeclared here so the codec has no dependency on the pubsub package
// (which itself depends on uadp).
type MessageContentMask = uint32

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

func has(mask MessageContentMask, bit MessageContentMask) bool { return mask&bit != 0 }

func publisherIDType(k ua.PublisherIdKind) PublisherIDType {
	switch k {
	case ua.PublisherIdByte:
		return PublisherIDByte
	case ua.PublisherIdUInt16:
		return PublisherIDUInt16
	case ua.PublisherIdUInt32:
		return PublisherIDUInt32
	case ua.PublisherIdUInt64:
		return PublisherIDUInt64
	default:
		return PublisherIDString
	}
}

func writePublisherID(w *writer, pid ua.PublisherId) error {
	switch pid.Kind {
	case ua.PublisherIdByte:
		return w.byte(pid.Byte)
	case ua.PublisherIdUInt16:
		return w.u16(pid.UInt16)
	case ua.PublisherIdUInt32:
		return w.u32(pid.UInt32)
	case ua.PublisherIdUInt64:
		return w.u64(pid.UInt64)
	default:
		if err := w.u32(uint32(len(pid.Str))); err != nil {
			return err
		}
		return w.bytes([]byte(pid.Str))
	}
}

func readPublisherID(r *reader, t PublisherIDType) (ua.PublisherId, error) {
	switch t {
	case PublisherIDByte:
		b, err := r.byte()
		return ua.PublisherId{Kind: ua.PublisherIdByte, Byte: b}, err
	case PublisherIDUInt16:
		v, err := r.u16()
		return ua.PublisherId{Kind: ua.PublisherIdUInt16, UInt16: v}, err
	case PublisherIDUInt32:
		v, err := r.u32()
		return ua.PublisherId{Kind: ua.PublisherIdUInt32, UInt32: v}, err
	case PublisherIDUInt64:
		v, err := r.u64()
		return ua.PublisherId{Kind: ua.PublisherIdUInt64, UInt64: v}, err
	default:
		n, err := r.u32()
		if err != nil {
			return ua.PublisherId{}, err
		}
		b, err := r.bytes(int(n))
		if err != nil {
			return ua.PublisherId{}, err
		}
		return ua.PublisherId{Kind: ua.PublisherIdString, Str: string(b)}, nil
	}
}

// OffsetKind tags an offset-table entry's field for realtime in-place
// updates (spec.md §4.2, §9's "offset table").
type OffsetKind string

const (
	OffsetSequenceNumber OffsetKind = "sequenceNumber"
	OffsetTimestamp      OffsetKind = "timestamp"
	OffsetDSMSequence    OffsetKind = "dsmSequenceNumber"
)

// OffsetEntry is one row of the encoder's offset table.
type OffsetEntry struct {
	WriterID uint16
	Offset   int
	Kind     OffsetKind
}

// Size runs the encoder into a throwaway buffer to compute the exact wire
// length the real call to EncodeInto will need (spec.md §4.2's "two-pass
// design"). sig is nil when the message is unsigned.
func Size(nm *NetworkMessage, sig SecurityContext) (int, error) {
	scratch := make([]byte, 1<<20)
	n, _, err := EncodeInto(scratch, nm, sig)
	return n, err
}

// EncodeInto writes nm into dst (typically obtained from
// transport.AllocNetworkBuffer sized by a prior call to Size) and returns
// the number of bytes written plus the offset table.
func EncodeInto(dst []byte, nm *NetworkMessage, sig SecurityContext) (int, []OffsetEntry, error) {
	w := newWriter(dst)
	var offsets []OffsetEntry

	flags1 := byte(1) // version 1
	if nm.HasPublisherID {
		flags1 |= flags1PublisherIDEnabled
	}
	if has(nm.ContentMask, MaskGroupHeader) {
		flags1 |= flags1GroupHeaderEnabled
	}
	if has(nm.ContentMask, MaskPayloadHeader) {
		flags1 |= flags1PayloadHeaderEnabled
	}

	needExt1 := nm.HasPublisherID || nm.HasDataSetClassID || nm.SecurityMode.Signed || nm.SecurityMode.Encrypted ||
		has(nm.ContentMask, MaskTimestamp) || has(nm.ContentMask, MaskPicoseconds) || has(nm.ContentMask, MaskPromotedFields)
	if needExt1 {
		flags1 |= flags1ExtendedEnabled
	}
	if err := w.byte(flags1); err != nil {
		return 0, nil, err
	}

	if needExt1 {
		ext1 := byte(publisherIDType(nm.PublisherID.Kind))
		if nm.HasDataSetClassID {
			ext1 |= ext1DataSetClassIDEnabled
		}
		if nm.SecurityMode.Signed || nm.SecurityMode.Encrypted {
			ext1 |= ext1SecurityEnabled
		}
		if has(nm.ContentMask, MaskTimestamp) {
			ext1 |= ext1TimestampEnabled
		}
		if has(nm.ContentMask, MaskPicoseconds) {
			ext1 |= ext1PicosecondsEnabled
		}
		needExt2 := has(nm.ContentMask, MaskPromotedFields)
		if needExt2 {
			ext1 |= ext1ExtendedFlags2Enabled
		}
		if err := w.byte(ext1); err != nil {
			return 0, nil, err
		}
		if needExt2 {
			ext2 := byte(0)
			if has(nm.ContentMask, MaskPromotedFields) && len(nm.PromotedFields) > 0 {
				ext2 |= ext2PromotedFieldsEnabled
			}
			if err := w.byte(ext2); err != nil {
				return 0, nil, err
			}
		}
	}

	if nm.HasPublisherID {
		if err := writePublisherID(w, nm.PublisherID); err != nil {
			return 0, nil, err
		}
	}
	if nm.HasDataSetClassID {
		if err := w.bytes(nm.DataSetClassID[:]); err != nil {
			return 0, nil, err
		}
	}

	if has(nm.ContentMask, MaskGroupHeader) {
		groupFlags := byte(0)
		if has(nm.ContentMask, MaskWriterGroupID) {
			groupFlags |= groupWriterGroupIDEnabled
		}
		if has(nm.ContentMask, MaskGroupVersion) {
			groupFlags |= groupGroupVersionEnabled
		}
		if has(nm.ContentMask, MaskNetworkMessageNumber) {
			groupFlags |= groupNetworkMessageNumberEnabled
		}
		if has(nm.ContentMask, MaskSequenceNumber) {
			groupFlags |= groupSequenceNumberEnabled
		}
		if err := w.byte(groupFlags); err != nil {
			return 0, nil, err
		}
		if has(nm.ContentMask, MaskWriterGroupID) {
			if err := w.u16(nm.WriterGroupID); err != nil {
				return 0, nil, err
			}
		}
		if has(nm.ContentMask, MaskGroupVersion) {
			if err := w.u32(nm.GroupVersion); err != nil {
				return 0, nil, err
			}
		}
		if has(nm.ContentMask, MaskNetworkMessageNumber) {
			if err := w.u16(nm.NetworkMessageNumber); err != nil {
				return 0, nil, err
			}
		}
		if has(nm.ContentMask, MaskSequenceNumber) {
			offsets = append(offsets, OffsetEntry{Offset: w.offset(), Kind: OffsetSequenceNumber})
			if err := w.u16(nm.SequenceNumber); err != nil {
				return 0, nil, err
			}
		}
	}

	if has(nm.ContentMask, MaskPayloadHeader) {
		if err := w.byte(byte(len(nm.DataSetMessages))); err != nil {
			return 0, nil, err
		}
		for _, dsm := range nm.DataSetMessages {
			if err := w.u16(dsm.WriterID); err != nil {
				return 0, nil, err
			}
		}
	}

	if has(nm.ContentMask, MaskTimestamp) {
		offsets = append(offsets, OffsetEntry{Offset: w.offset(), Kind: OffsetTimestamp})
		if err := w.i64(nm.Timestamp.UnixNano()); err != nil {
			return 0, nil, err
		}
	}
	if has(nm.ContentMask, MaskPicoseconds) {
		if err := w.u16(nm.Picoseconds); err != nil {
			return 0, nil, err
		}
	}

	if has(nm.ContentMask, MaskPromotedFields) && len(nm.PromotedFields) > 0 {
		if err := w.u16(uint16(len(nm.PromotedFields))); err != nil {
			return 0, nil, err
		}
		for _, f := range nm.PromotedFields {
			if err := EncodeVariant(w, f); err != nil {
				return 0, nil, err
			}
		}
	}

	if nm.SecurityMode.Signed || nm.SecurityMode.Encrypted {
		secFlags := byte(0)
		if nm.SecurityMode.Signed {
			secFlags |= securityNetworkMessageSigned
		}
		if nm.SecurityMode.Encrypted {
			secFlags |= securityNetworkMessageEncrypted
		}
		if err := w.byte(secFlags); err != nil {
			return 0, nil, err
		}
		if err := w.u32(nm.TokenID); err != nil {
			return 0, nil, err
		}
		if err := w.byte(byte(len(nm.Nonce))); err != nil {
			return 0, nil, err
		}
		if err := w.bytes(nm.Nonce); err != nil {
			return 0, nil, err
		}
	}

	payloadStart := w.offset()

	for i := range nm.DataSetMessages {
		if err := encodeDSM(w, &nm.DataSetMessages[i], &offsets); err != nil {
			return 0, nil, err
		}
	}
	payloadEnd := w.offset()

	if nm.SecurityMode.Encrypted {
		if sig == nil {
			return 0, nil, fmt.Errorf("%w: encryption requested without a security context", ua.BadSecurityModeInsufficient)
		}
		cipher, err := sig.Encrypt(nm.Nonce, dst[payloadStart:payloadEnd])
		if err != nil {
			return 0, nil, err
		}
		copy(dst[payloadStart:payloadEnd], cipher)
	}

	if nm.SecurityMode.Signed {
		if sig == nil {
			return 0, nil, fmt.Errorf("%w: signing requested without a security context", ua.BadSecurityModeInsufficient)
		}
		signature, err := sig.Sign(dst[:payloadEnd])
		if err != nil {
			return 0, nil, err
		}
		if err := w.bytes(signature); err != nil {
			return 0, nil, err
		}
	}

	return w.offset(), offsets, nil
}

func encodeDSM(w *writer, dsm *DataSetMessage, offsets *[]OffsetEntry) error {
	flags1 := byte(dsmValid)
	flags1 |= byte(dsm.FieldEncoding) << dsmFieldEncodingShift
	if dsm.HasSequence {
		flags1 |= dsmSequenceEnabled
	}
	if dsm.HasStatus {
		flags1 |= dsmStatusEnabled
	}
	if dsm.HasConfigMajor {
		flags1 |= dsmConfigMajorEnabled
	}
	if dsm.HasConfigMinor {
		flags1 |= dsmConfigMinorEnabled
	}
	needFlags2 := dsm.Type != DSMKeyFrame || dsm.HasTimestamp || dsm.HasPicoseconds
	if needFlags2 {
		flags1 |= dsmFlags2Enabled
	}
	if err := w.byte(flags1); err != nil {
		return err
	}
	if needFlags2 {
		flags2 := byte(dsm.Type) & dsmTypeMask
		if dsm.HasTimestamp {
			flags2 |= dsmTimestampEnabled
		}
		if dsm.HasPicoseconds {
			flags2 |= dsmPicoEnabled
		}
		if err := w.byte(flags2); err != nil {
			return err
		}
	}

	if dsm.HasSequence {
		*offsets = append(*offsets, OffsetEntry{WriterID: dsm.WriterID, Offset: w.offset(), Kind: OffsetDSMSequence})
		if err := w.u16(dsm.SequenceNumber); err != nil {
			return err
		}
	}
	if dsm.HasStatus {
		if err := w.u32(uint32(dsm.Status)); err != nil {
			return err
		}
	}
	if dsm.HasConfigMajor {
		if err := w.u32(dsm.ConfigMajor); err != nil {
			return err
		}
	}
	if dsm.HasConfigMinor {
		if err := w.u32(dsm.ConfigMinor); err != nil {
			return err
		}
	}
	if dsm.HasTimestamp {
		if err := w.i64(dsm.Timestamp.UnixNano()); err != nil {
			return err
		}
	}
	if dsm.HasPicoseconds {
		if err := w.u16(dsm.Picoseconds); err != nil {
			return err
		}
	}

	if dsm.Type == DSMKeepAlive {
		return nil
	}

	for i, dv := range dsm.Fields {
		switch dsm.FieldEncoding {
		case FieldEncodingVariant:
			if err := EncodeVariant(w, dv.Value); err != nil {
				return err
			}
		case FieldEncodingDataValue:
			if err := EncodeDataValue(w, dv, dsm.ContentMask); err != nil {
				return err
			}
		case FieldEncodingRawData:
			var plan FieldPlan
			if i < len(dsm.FieldPlans) {
				plan = dsm.FieldPlans[i]
			}
			if err := EncodeRawField(w, dv.Value, plan.ArrayDimensions, plan.MaxStringLength); err != nil {
				return err
			}
		}
	}
	return nil
}

// Header is the subset of a NetworkMessage's header fields the receive-path
// demultiplexer needs before it knows which reader (and therefore which
// security context and field metadata) will end up decoding the payload
// (spec.md §4.3).
type Header struct {
	PublisherID      ua.PublisherId
	HasPublisherID   bool
	WriterGroupID    uint16
	HasWriterGroupID bool
	DataSetWriterIDs []uint16
	HasPayloadHeader bool
}

// PeekHeader parses just enough of src to demultiplex it to the right
// reader(s), without touching the (possibly encrypted) payload.
func PeekHeader(src []byte) (Header, error) {
	r := newReader(src)
	var h Header

	flags1, err := r.byte()
	if err != nil {
		return h, err
	}
	if flags1&flags1VersionMask != 1 {
		return h, fmt.Errorf("%w: unsupported UADP version", ua.BadDecodingError)
	}
	hasPublisherID := flags1&flags1PublisherIDEnabled != 0
	hasGroupHeader := flags1&flags1GroupHeaderEnabled != 0
	h.HasPayloadHeader = flags1&flags1PayloadHeaderEnabled != 0
	hasExt1 := flags1&flags1ExtendedEnabled != 0

	var pidType PublisherIDType
	var hasDataSetClassID bool
	if hasExt1 {
		ext1, err := r.byte()
		if err != nil {
			return h, err
		}
		pidType = PublisherIDType(ext1 & ext1PublisherIDTypeMask)
		hasDataSetClassID = ext1&ext1DataSetClassIDEnabled != 0
		if ext1&ext1ExtendedFlags2Enabled != 0 {
			if _, err := r.byte(); err != nil {
				return h, err
			}
		}
	}

	if hasPublisherID {
		pid, err := readPublisherID(r, pidType)
		if err != nil {
			return h, err
		}
		h.PublisherID = pid
		h.HasPublisherID = true
	}
	if hasDataSetClassID {
		if _, err := r.bytes(16); err != nil {
			return h, err
		}
	}

	if hasGroupHeader {
		groupFlags, err := r.byte()
		if err != nil {
			return h, err
		}
		if groupFlags&groupWriterGroupIDEnabled != 0 {
			if h.WriterGroupID, err = r.u16(); err != nil {
				return h, err
			}
			h.HasWriterGroupID = true
		}
		if groupFlags&groupGroupVersionEnabled != 0 {
			if _, err := r.u32(); err != nil {
				return h, err
			}
		}
		if groupFlags&groupNetworkMessageNumberEnabled != 0 {
			if _, err := r.u16(); err != nil {
				return h, err
			}
		}
		if groupFlags&groupSequenceNumberEnabled != 0 {
			if _, err := r.u16(); err != nil {
				return h, err
			}
		}
	}

	if h.HasPayloadHeader {
		count, err := r.byte()
		if err != nil {
			return h, err
		}
		h.DataSetWriterIDs = make([]uint16, count)
		for i := range h.DataSetWriterIDs {
			if h.DataSetWriterIDs[i], err = r.u16(); err != nil {
				return h, err
			}
		}
	}

	return h, nil
}

// MetadataLookup resolves a DataSetWriterId to the field layout its reader
// configured (spec.md §4.3: "metadata from every Reader in the group so
// each DSM can be decoded against the correct field layout"). The returned
// plans give the field count and, for RawData encoding, each field's type
// and wire shape.
type MetadataLookup func(writerID uint16) ([]FieldPlan, bool)

// Decode parses a NetworkMessage from src. sig, if non-nil, is the security
// context used to verify/decrypt the payload; it must be non-nil whenever
// the decoded security flags require it.
func Decode(src []byte, lookup MetadataLookup, sig SecurityContext) (*NetworkMessage, error) {
	r := newReader(src)
	nm := &NetworkMessage{}

	flags1, err := r.byte()
	if err != nil {
		return nil, err
	}
	if flags1&flags1VersionMask != 1 {
		return nil, fmt.Errorf("%w: unsupported UADP version", ua.BadDecodingError)
	}
	hasPublisherID := flags1&flags1PublisherIDEnabled != 0
	hasGroupHeader := flags1&flags1GroupHeaderEnabled != 0
	hasPayloadHeader := flags1&flags1PayloadHeaderEnabled != 0
	hasExt1 := flags1&flags1ExtendedEnabled != 0
	if hasPayloadHeader {
		nm.ContentMask |= MaskPayloadHeader
	}

	var pidType PublisherIDType
	var hasDataSetClassID, hasSecurity, hasTimestamp, hasPicoseconds, hasPromotedFields bool
	if hasExt1 {
		ext1, err := r.byte()
		if err != nil {
			return nil, err
		}
		pidType = PublisherIDType(ext1 & ext1PublisherIDTypeMask)
		hasDataSetClassID = ext1&ext1DataSetClassIDEnabled != 0
		hasSecurity = ext1&ext1SecurityEnabled != 0
		hasTimestamp = ext1&ext1TimestampEnabled != 0
		hasPicoseconds = ext1&ext1PicosecondsEnabled != 0
		if ext1&ext1ExtendedFlags2Enabled != 0 {
			ext2, err := r.byte()
			if err != nil {
				return nil, err
			}
			hasPromotedFields = ext2&ext2PromotedFieldsEnabled != 0
		}
	}
	if hasTimestamp {
		nm.ContentMask |= MaskTimestamp
	}
	if hasPicoseconds {
		nm.ContentMask |= MaskPicoseconds
	}
	if hasPromotedFields {
		nm.ContentMask |= MaskPromotedFields
	}
	if hasDataSetClassID {
		nm.ContentMask |= MaskDataSetClassID
	}

	if hasPublisherID {
		pid, err := readPublisherID(r, pidType)
		if err != nil {
			return nil, err
		}
		nm.PublisherID = pid
		nm.HasPublisherID = true
	}
	if hasDataSetClassID {
		b, err := r.bytes(16)
		if err != nil {
			return nil, err
		}
		id, err := uuid.FromBytes(b)
		if err != nil {
			return nil, err
		}
		nm.DataSetClassID = id
		nm.HasDataSetClassID = true
	}

	if hasGroupHeader {
		nm.ContentMask |= MaskGroupHeader
		groupFlags, err := r.byte()
		if err != nil {
			return nil, err
		}
		if groupFlags&groupWriterGroupIDEnabled != 0 {
			nm.ContentMask |= MaskWriterGroupID
			if nm.WriterGroupID, err = r.u16(); err != nil {
				return nil, err
			}
		}
		if groupFlags&groupGroupVersionEnabled != 0 {
			nm.ContentMask |= MaskGroupVersion
			if nm.GroupVersion, err = r.u32(); err != nil {
				return nil, err
			}
		}
		if groupFlags&groupNetworkMessageNumberEnabled != 0 {
			nm.ContentMask |= MaskNetworkMessageNumber
			if nm.NetworkMessageNumber, err = r.u16(); err != nil {
				return nil, err
			}
		}
		if groupFlags&groupSequenceNumberEnabled != 0 {
			nm.ContentMask |= MaskSequenceNumber
			if nm.SequenceNumber, err = r.u16(); err != nil {
				return nil, err
			}
		}
	}

	var writerIDs []uint16
	if hasPayloadHeader {
		count, err := r.byte()
		if err != nil {
			return nil, err
		}
		writerIDs = make([]uint16, count)
		for i := range writerIDs {
			if writerIDs[i], err = r.u16(); err != nil {
				return nil, err
			}
		}
	}

	if hasTimestamp {
		t, err := r.i64()
		if err != nil {
			return nil, err
		}
		nm.Timestamp = time.Unix(0, t).UTC()
	}
	if hasPicoseconds {
		if nm.Picoseconds, err = r.u16(); err != nil {
			return nil, err
		}
	}

	if hasPromotedFields {
		n, err := r.u16()
		if err != nil {
			return nil, err
		}
		nm.PromotedFields = make([]ua.Variant, n)
		for i := range nm.PromotedFields {
			if nm.PromotedFields[i], err = DecodeVariant(r); err != nil {
				return nil, err
			}
		}
	}

	if hasSecurity {
		secFlags, err := r.byte()
		if err != nil {
			return nil, err
		}
		nm.SecurityMode.Signed = secFlags&securityNetworkMessageSigned != 0
		nm.SecurityMode.Encrypted = secFlags&securityNetworkMessageEncrypted != 0
		if nm.TokenID, err = r.u32(); err != nil {
			return nil, err
		}
		nonceLen, err := r.byte()
		if err != nil {
			return nil, err
		}
		nonce, err := r.bytes(int(nonceLen))
		if err != nil {
			return nil, err
		}
		nm.Nonce = append([]byte(nil), nonce...)
	}

	payloadStart := r.pos

	if nm.SecurityMode.Signed {
		if sig == nil {
			return nil, fmt.Errorf("%w: signed message without a security context", ua.BadSecurityModeInsufficient)
		}
		sigSize := sig.SignatureSize()
		if sigSize <= 0 || sigSize > r.remaining() {
			return nil, fmt.Errorf("%w: truncated signature", ua.BadDecodingError)
		}
		payloadEnd := len(r.src) - sigSize
		signature := r.src[payloadEnd:]
		if err := sig.Verify(r.src[:payloadEnd], signature); err != nil {
			return nil, fmt.Errorf("%w: %v", ua.BadSecurityModeRejected, err)
		}
		r.src = r.src[:payloadEnd]
	}

	if nm.SecurityMode.Encrypted {
		if sig == nil {
			return nil, fmt.Errorf("%w: encrypted message without a security context", ua.BadSecurityModeInsufficient)
		}
		plain, err := sig.Decrypt(nm.Nonce, r.src[payloadStart:])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ua.BadSecurityModeRejected, err)
		}
		r.src = append(append([]byte(nil), r.src[:payloadStart]...), plain...)
	}

	if hasPayloadHeader {
		nm.DataSetMessages = make([]DataSetMessage, len(writerIDs))
		for i, id := range writerIDs {
			plans, _ := lookupOrEmpty(lookup, id)
			dsm, err := decodeDSM(r, id, plans)
			if err != nil {
				return nil, err
			}
			nm.DataSetMessages[i] = *dsm
		}
	} else {
		dsm, err := decodeDSM(r, 0, nil)
		if err != nil {
			return nil, err
		}
		nm.DataSetMessages = []DataSetMessage{*dsm}
	}

	return nm, nil
}

func lookupOrEmpty(lookup MetadataLookup, writerID uint16) ([]FieldPlan, bool) {
	if lookup == nil {
		return nil, false
	}
	return lookup(writerID)
}

func decodeDSM(r *reader, writerID uint16, plans []FieldPlan) (*DataSetMessage, error) {
	dsm := &DataSetMessage{WriterID: writerID}

	flags1, err := r.byte()
	if err != nil {
		return nil, err
	}
	if flags1&dsmValid == 0 {
		return nil, fmt.Errorf("%w: invalid DataSetMessage", ua.BadDecodingError)
	}
	dsm.FieldEncoding = FieldEncoding((flags1 >> dsmFieldEncodingShift) & dsmFieldEncodingMask)
	dsm.HasSequence = flags1&dsmSequenceEnabled != 0
	dsm.HasStatus = flags1&dsmStatusEnabled != 0
	dsm.HasConfigMajor = flags1&dsmConfigMajorEnabled != 0
	dsm.HasConfigMinor = flags1&dsmConfigMinorEnabled != 0

	dsm.Type = DSMKeyFrame
	if flags1&dsmFlags2Enabled != 0 {
		flags2, err := r.byte()
		if err != nil {
			return nil, err
		}
		dsm.Type = DSMType(flags2 & dsmTypeMask)
		dsm.HasTimestamp = flags2&dsmTimestampEnabled != 0
		dsm.HasPicoseconds = flags2&dsmPicoEnabled != 0
	}

	if dsm.HasSequence {
		if dsm.SequenceNumber, err = r.u16(); err != nil {
			return nil, err
		}
	}
	if dsm.HasStatus {
		v, err := r.u32()
		if err != nil {
			return nil, err
		}
		dsm.Status = ua.StatusCode(v)
	}
	if dsm.HasConfigMajor {
		if dsm.ConfigMajor, err = r.u32(); err != nil {
			return nil, err
		}
	}
	if dsm.HasConfigMinor {
		if dsm.ConfigMinor, err = r.u32(); err != nil {
			return nil, err
		}
	}
	if dsm.HasTimestamp {
		t, err := r.i64()
		if err != nil {
			return nil, err
		}
		dsm.Timestamp = time.Unix(0, t).UTC()
	}
	if dsm.HasPicoseconds {
		if dsm.Picoseconds, err = r.u16(); err != nil {
			return nil, err
		}
	}

	if dsm.Type == DSMKeepAlive {
		return dsm, nil
	}

	if dsm.FieldEncoding == FieldEncodingDataValue && len(plans) > 0 {
		dsm.ContentMask = plans[0].ContentMask
	}

	switch dsm.FieldEncoding {
	case FieldEncodingRawData:
		dsm.Fields = make([]ua.DataValue, len(plans))
		for i, p := range plans {
			v, err := DecodeRawField(r, p.BuiltinType, p.ArrayDimensions, p.MaxStringLength)
			if err != nil {
				return nil, err
			}
			dsm.Fields[i] = ua.DataValue{Value: v}
		}
	default:
		n := len(plans)
		if n == 0 {
			// No reader metadata available (e.g. a raw WriterGroup dump):
			// decode everything the message claims, self-described.
			for r.remaining() > 0 {
				var dv ua.DataValue
				var err error
				if dsm.FieldEncoding == FieldEncodingDataValue {
					dv, err = DecodeDataValue(r, dsm.ContentMask)
				} else {
					dv.Value, err = DecodeVariant(r)
				}
				if err != nil {
					return nil, err
				}
				dsm.Fields = append(dsm.Fields, dv)
			}
			break
		}
		dsm.Fields = make([]ua.DataValue, n)
		for i := 0; i < n; i++ {
			var dv ua.DataValue
			var err error
			if dsm.FieldEncoding == FieldEncodingDataValue {
				dv, err = DecodeDataValue(r, dsm.ContentMask)
			} else {
				dv.Value, err = DecodeVariant(r)
			}
			if err != nil {
				return nil, err
			}
			dsm.Fields[i] = dv
		}
	}

	return dsm, nil
}
