// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-pubsub.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package uadp

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/ClusterCockpit/cc-pubsub/pkg/ua"
)

func encodeScalar(w *writer, t ua.BuiltinType, v any) error {
	switch t {
	case ua.TypeBoolean:
		b := byte(0)
		if v.(bool) {
			b = 1
		}
		return w.byte(b)
	case ua.TypeSByte:
		return w.byte(byte(v.(int8)))
	case ua.TypeByte:
		return w.byte(v.(byte))
	case ua.TypeInt16:
		return w.u16(uint16(v.(int16)))
	case ua.TypeUInt16:
		return w.u16(v.(uint16))
	case ua.TypeInt32:
		return w.u32(uint32(v.(int32)))
	case ua.TypeUInt32:
		return w.u32(v.(uint32))
	case ua.TypeInt64:
		return w.i64(v.(int64))
	case ua.TypeUInt64:
		return w.u64(v.(uint64))
	case ua.TypeFloat:
		return w.u32(math.Float32bits(v.(float32)))
	case ua.TypeDouble:
		return w.u64(math.Float64bits(v.(float64)))
	case ua.TypeDateTime:
		return w.i64(v.(time.Time).UnixNano())
	case ua.TypeGuid:
		id := v.(uuid.UUID)
		return w.bytes(id[:])
	case ua.TypeString:
		s := v.(string)
		if err := w.u32(uint32(len(s))); err != nil {
			return err
		}
		return w.bytes([]byte(s))
	case ua.TypeByteString:
		b := v.([]byte)
		if err := w.u32(uint32(len(b))); err != nil {
			return err
		}
		return w.bytes(b)
	case ua.TypeStatusCode:
		return w.u32(uint32(v.(ua.StatusCode)))
	default:
		return fmt.Errorf("%w: unsupported builtin type %d", ua.BadEncodingLimitsExceeded, t)
	}
}

func decodeScalar(r *reader, t ua.BuiltinType) (any, error) {
	switch t {
	case ua.TypeBoolean:
		b, err := r.byte()
		return b != 0, err
	case ua.TypeSByte:
		b, err := r.byte()
		return int8(b), err
	case ua.TypeByte:
		return r.byte()
	case ua.TypeInt16:
		v, err := r.u16()
		return int16(v), err
	case ua.TypeUInt16:
		return r.u16()
	case ua.TypeInt32:
		v, err := r.u32()
		return int32(v), err
	case ua.TypeUInt32:
		return r.u32()
	case ua.TypeInt64:
		return r.i64()
	case ua.TypeUInt64:
		return r.u64()
	case ua.TypeFloat:
		v, err := r.u32()
		return math.Float32frombits(v), err
	case ua.TypeDouble:
		v, err := r.u64()
		return math.Float64frombits(v), err
	case ua.TypeDateTime:
		v, err := r.i64()
		return time.Unix(0, v).UTC(), err
	case ua.TypeGuid:
		b, err := r.bytes(16)
		if err != nil {
			return nil, err
		}
		id, err := uuid.FromBytes(b)
		return id, err
	case ua.TypeString:
		n, err := r.u32()
		if err != nil {
			return nil, err
		}
		b, err := r.bytes(int(n))
		return string(b), err
	case ua.TypeByteString:
		n, err := r.u32()
		if err != nil {
			return nil, err
		}
		b, err := r.bytes(int(n))
		if err != nil {
			return nil, err
		}
		out := make([]byte, len(b))
		copy(out, b)
		return out, nil
	case ua.TypeStatusCode:
		v, err := r.u32()
		return ua.StatusCode(v), err
	default:
		return nil, fmt.Errorf("%w: unsupported builtin type %d", ua.BadDecodingError, t)
	}
}

// EncodeVariant writes a scalar-or-array Variant: a type byte (bit 7 set if
// array) followed by the value(s), each length-prefixed for variable-length
// array element counts.
func EncodeVariant(w *writer, v ua.Variant) error {
	tag := byte(v.Type)
	if v.IsArray() {
		tag |= 0x80
	}
	if err := w.byte(tag); err != nil {
		return err
	}
	if !v.IsArray() {
		return encodeScalar(w, v.Type, v.Scalar)
	}
	if err := w.u32(uint32(len(v.Array))); err != nil {
		return err
	}
	for _, e := range v.Array {
		if err := encodeScalar(w, v.Type, e); err != nil {
			return err
		}
	}
	return nil
}

func DecodeVariant(r *reader) (ua.Variant, error) {
	tag, err := r.byte()
	if err != nil {
		return ua.Variant{}, err
	}
	t := ua.BuiltinType(tag & 0x7f)
	if tag&0x80 == 0 {
		v, err := decodeScalar(r, t)
		if err != nil {
			return ua.Variant{}, err
		}
		return ua.ScalarVariant(t, v), nil
	}
	n, err := r.u32()
	if err != nil {
		return ua.Variant{}, err
	}
	arr := make([]any, n)
	for i := range arr {
		v, err := decodeScalar(r, t)
		if err != nil {
			return ua.Variant{}, err
		}
		arr[i] = v
	}
	return ua.ArrayVariant(t, arr), nil
}

// EncodeDataValue writes the DataValue components selected by mask (spec.md
// §4.4's "Variant/DataValue encoding").
func EncodeDataValue(w *writer, dv ua.DataValue, mask ua.FieldContentMask) error {
	if err := EncodeVariant(w, dv.Value); err != nil {
		return err
	}
	if mask.Has(ua.FieldStatusCode) {
		if err := w.u32(uint32(dv.Status)); err != nil {
			return err
		}
	}
	if mask.Has(ua.FieldSourceTimestamp) {
		if err := w.i64(dv.SourceTimestamp.UnixNano()); err != nil {
			return err
		}
	}
	if mask.Has(ua.FieldServerTimestamp) {
		if err := w.i64(dv.ServerTimestamp.UnixNano()); err != nil {
			return err
		}
	}
	if mask.Has(ua.FieldSourcePicoseconds) || mask.Has(ua.FieldServerPicoseconds) {
		if err := w.u16(dv.Picoseconds); err != nil {
			return err
		}
	}
	return nil
}

func DecodeDataValue(r *reader, mask ua.FieldContentMask) (ua.DataValue, error) {
	v, err := DecodeVariant(r)
	if err != nil {
		return ua.DataValue{}, err
	}
	dv := ua.DataValue{Value: v}
	if mask.Has(ua.FieldStatusCode) {
		s, err := r.u32()
		if err != nil {
			return ua.DataValue{}, err
		}
		dv.Status = ua.StatusCode(s)
		dv.HasStatus = true
	}
	if mask.Has(ua.FieldSourceTimestamp) {
		t, err := r.i64()
		if err != nil {
			return ua.DataValue{}, err
		}
		dv.SourceTimestamp = time.Unix(0, t).UTC()
		dv.HasSourceTimestamp = true
	}
	if mask.Has(ua.FieldServerTimestamp) {
		t, err := r.i64()
		if err != nil {
			return ua.DataValue{}, err
		}
		dv.ServerTimestamp = time.Unix(0, t).UTC()
		dv.HasServerTimestamp = true
	}
	if mask.Has(ua.FieldSourcePicoseconds) || mask.Has(ua.FieldServerPicoseconds) {
		p, err := r.u16()
		if err != nil {
			return ua.DataValue{}, err
		}
		dv.Picoseconds = p
	}
	return dv, nil
}

// EncodeRawField writes a field in RawData encoding (spec.md §4.3): when
// array dimensions are configured, a single 4-byte element count (the
// product of the dimensions), then that many values with no type tag, each
// String/ByteString value padded to maxStringLength.
func EncodeRawField(w *writer, v ua.Variant, arrayDimensions []uint32, maxStringLength uint32) error {
	elementCount := 1
	if len(arrayDimensions) > 0 {
		elementCount = 1
		for _, d := range arrayDimensions {
			elementCount *= int(d)
		}
		if err := w.u32(uint32(elementCount)); err != nil {
			return err
		}
	}

	values := []any{v.Scalar}
	if v.IsArray() {
		values = v.Array
	}
	for i := 0; i < elementCount; i++ {
		var val any
		if i < len(values) {
			val = values[i]
		}
		before := w.offset()
		if err := encodeScalar(w, v.Type, val); err != nil {
			return err
		}
		if maxStringLength > 0 && (v.Type == ua.TypeString || v.Type == ua.TypeByteString) {
			written := w.offset() - before
			pad := int(maxStringLength) - written
			if pad > 0 {
				if err := w.bytes(make([]byte, pad)); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// DecodeRawField is EncodeRawField's inverse.
func DecodeRawField(r *reader, t ua.BuiltinType, arrayDimensions []uint32, maxStringLength uint32) (ua.Variant, error) {
	elementCount := 1
	isArray := len(arrayDimensions) > 0
	if isArray {
		n, err := r.u32()
		if err != nil {
			return ua.Variant{}, err
		}
		elementCount = int(n)
	}

	values := make([]any, elementCount)
	for i := 0; i < elementCount; i++ {
		before := r.pos
		v, err := decodeScalar(r, t)
		if err != nil {
			return ua.Variant{}, err
		}
		values[i] = v
		if maxStringLength > 0 && (t == ua.TypeString || t == ua.TypeByteString) {
			read := r.pos - before
			pad := int(maxStringLength) - read
			if pad > 0 {
				if _, err := r.bytes(pad); err != nil {
					return ua.Variant{}, err
				}
			}
		}
	}

	if !isArray {
		return ua.ScalarVariant(t, values[0]), nil
	}
	return ua.ArrayVariant(t, values), nil
}
