// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-pubsub.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ua

import (
	"fmt"
	"strconv"
)

// PublisherIdKind is the discriminant of the PublisherId sum type
// (spec.md §3: "a PublisherId (sum type over {Byte, UInt16, UInt32, UInt64,
// String})").
type PublisherIdKind byte

const (
	PublisherIdByte PublisherIdKind = iota
	PublisherIdUInt16
	PublisherIdUInt32
	PublisherIdUInt64
	PublisherIdString
)

// PublisherId identifies a publishing Connection on the wire. Equality is by
// same-variant-and-value, never by coercion between variants (spec.md §8:
// "Publisher-id sum-type identity").
type PublisherId struct {
	Kind   PublisherIdKind
	Byte   uint8
	UInt16 uint16
	UInt32 uint32
	UInt64 uint64
	Str    string
}

func PublisherIdFromUInt32(v uint32) PublisherId {
	return PublisherId{Kind: PublisherIdUInt32, UInt32: v}
}

func PublisherIdFromString(v string) PublisherId {
	return PublisherId{Kind: PublisherIdString, Str: v}
}

// String renders p in the same textual notation ParsePublisherId accepts,
// used by internal/api's read-only introspection surface.
func (p PublisherId) String() string {
	switch p.Kind {
	case PublisherIdByte:
		return fmt.Sprintf("byte:%d", p.Byte)
	case PublisherIdUInt16:
		return fmt.Sprintf("uint16:%d", p.UInt16)
	case PublisherIdUInt32:
		return fmt.Sprintf("%d", p.UInt32)
	case PublisherIdUInt64:
		return fmt.Sprintf("uint64:%d", p.UInt64)
	case PublisherIdString:
		return fmt.Sprintf("string:%s", p.Str)
	default:
		return ""
	}
}

// IsZero reports whether p is the PublisherId zero value (PublisherIdByte
// variant, value 0), used by the Connection layer to detect an unconfigured
// id eligible for auto-assignment.
func (p PublisherId) IsZero() bool {
	return p.Kind == PublisherIdByte && p.Byte == 0
}

// Equal implements the identity rule used by the receive-path demultiplexer:
// same sum-type variant and, for strings, content equality.
func (p PublisherId) Equal(o PublisherId) bool {
	if p.Kind != o.Kind {
		return false
	}
	switch p.Kind {
	case PublisherIdByte:
		return p.Byte == o.Byte
	case PublisherIdUInt16:
		return p.UInt16 == o.UInt16
	case PublisherIdUInt32:
		return p.UInt32 == o.UInt32
	case PublisherIdUInt64:
		return p.UInt64 == o.UInt64
	case PublisherIdString:
		return p.Str == o.Str
	default:
		return false
	}
}

// ParsePublisherId parses a configuration-file publisher id. A bare decimal
// number is taken as UInt32 (the common case); "byte:<n>", "uint16:<n>",
// "uint64:<n>" and "string:<s>" select the other variants explicitly.
func ParsePublisherId(s string) (PublisherId, error) {
	if i := indexByte(s, ':'); i >= 0 {
		kind, value := s[:i], s[i+1:]
		switch kind {
		case "byte":
			v, err := strconv.ParseUint(value, 10, 8)
			if err != nil {
				return PublisherId{}, fmt.Errorf("malformed byte publisher id %q: %w", s, err)
			}
			return PublisherId{Kind: PublisherIdByte, Byte: uint8(v)}, nil
		case "uint16":
			v, err := strconv.ParseUint(value, 10, 16)
			if err != nil {
				return PublisherId{}, fmt.Errorf("malformed uint16 publisher id %q: %w", s, err)
			}
			return PublisherId{Kind: PublisherIdUInt16, UInt16: uint16(v)}, nil
		case "uint32":
			v, err := strconv.ParseUint(value, 10, 32)
			if err != nil {
				return PublisherId{}, fmt.Errorf("malformed uint32 publisher id %q: %w", s, err)
			}
			return PublisherIdFromUInt32(uint32(v)), nil
		case "uint64":
			v, err := strconv.ParseUint(value, 10, 64)
			if err != nil {
				return PublisherId{}, fmt.Errorf("malformed uint64 publisher id %q: %w", s, err)
			}
			return PublisherId{Kind: PublisherIdUInt64, UInt64: v}, nil
		case "string":
			return PublisherIdFromString(value), nil
		default:
			return PublisherId{}, fmt.Errorf("unrecognised publisher id kind %q in %q", kind, s)
		}
	}
	if v, err := strconv.ParseUint(s, 10, 32); err == nil {
		return PublisherIdFromUInt32(uint32(v)), nil
	}
	return PublisherIdFromString(s), nil
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}
