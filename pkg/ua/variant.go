// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-pubsub.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ua

import (
	"fmt"
	"reflect"

	"github.com/google/uuid"
)

// BuiltinType is the OPC UA builtin-type id, used both as the DataSetField's
// configured type and as the Variant's wire-tag.
type BuiltinType byte

const (
	TypeBoolean BuiltinType = 1
	TypeSByte   BuiltinType = 2
	TypeByte    BuiltinType = 3
	TypeInt16   BuiltinType = 4
	TypeUInt16  BuiltinType = 5
	TypeInt32   BuiltinType = 6
	TypeUInt32  BuiltinType = 7
	TypeInt64   BuiltinType = 8
	TypeUInt64  BuiltinType = 9
	TypeFloat   BuiltinType = 10
	TypeDouble  BuiltinType = 11
	TypeString  BuiltinType = 12
	TypeDateTime BuiltinType = 13
	TypeGuid     BuiltinType = 14
	TypeByteString BuiltinType = 15
	TypeStatusCode BuiltinType = 19
)

var builtinTypeNames = map[string]BuiltinType{
	"Boolean":    TypeBoolean,
	"SByte":      TypeSByte,
	"Byte":       TypeByte,
	"Int16":      TypeInt16,
	"UInt16":     TypeUInt16,
	"Int32":      TypeInt32,
	"UInt32":     TypeUInt32,
	"Int64":      TypeInt64,
	"UInt64":     TypeUInt64,
	"Float":      TypeFloat,
	"Double":     TypeDouble,
	"String":     TypeString,
	"DateTime":   TypeDateTime,
	"Guid":       TypeGuid,
	"ByteString": TypeByteString,
	"StatusCode": TypeStatusCode,
}

// ParseBuiltinType maps a configuration file's type name ("Double",
// "Int32", ...) onto its BuiltinType id.
func ParseBuiltinType(s string) (BuiltinType, error) {
	t, ok := builtinTypeNames[s]
	if !ok {
		return 0, fmt.Errorf("unrecognised builtin type name %q", s)
	}
	return t, nil
}

// FixedSize returns the on-wire size in bytes of one scalar of this type, or
// 0 if the type is variable-length (String, ByteString).
func (t BuiltinType) FixedSize() int {
	switch t {
	case TypeBoolean, TypeSByte, TypeByte:
		return 1
	case TypeInt16, TypeUInt16:
		return 2
	case TypeInt32, TypeUInt32, TypeFloat, TypeStatusCode:
		return 4
	case TypeInt64, TypeUInt64, TypeDouble, TypeDateTime:
		return 8
	case TypeGuid:
		return 16
	default:
		return 0
	}
}

// Variant is a typed value: either a scalar matching Type, or (when
// ArrayLength >= 0) a []any of that many values of Type. ArrayLength == -1
// marks a scalar.
type Variant struct {
	Type        BuiltinType
	ArrayLength int // -1 for scalar
	Scalar      any
	Array       []any
}

func ScalarVariant(t BuiltinType, v any) Variant {
	return Variant{Type: t, ArrayLength: -1, Scalar: v}
}

func ArrayVariant(t BuiltinType, v []any) Variant {
	return Variant{Type: t, ArrayLength: len(v), Array: v}
}

func (v Variant) IsArray() bool { return v.ArrayLength >= 0 }

// Equal does a deep value comparison, used by the delta-frame decision in
// the publish pipeline (spec.md §4.2: "a delta frame containing only fields
// whose sampled value differs from the per-writer sample cache").
func (v Variant) Equal(o Variant) bool {
	if v.Type != o.Type || v.ArrayLength != o.ArrayLength {
		return false
	}
	if v.IsArray() {
		return reflect.DeepEqual(v.Array, o.Array)
	}
	return reflect.DeepEqual(v.Scalar, o.Scalar)
}

func (v Variant) String() string {
	if v.IsArray() {
		return fmt.Sprintf("%v[%d]", v.Type, v.ArrayLength)
	}
	return fmt.Sprintf("%v(%v)", v.Type, v.Scalar)
}

// NewGuid is a small convenience used by PublishedDataSet when it needs to
// mint per-field metadata GUIDs (spec.md §3).
func NewGuid() uuid.UUID { return uuid.New() }
