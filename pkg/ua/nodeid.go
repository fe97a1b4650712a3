// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-pubsub.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ua

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// NodeIdType is the discriminant of the NodeId sum type.
type NodeIdType byte

const (
	NodeIdNumeric NodeIdType = iota
	NodeIdString
	NodeIdGUID
	NodeIdOpaque
)

// NodeId addresses a node in the host address space. Only one of Numeric,
// Str, Guid, Opaque is meaningful, selected by Type.
type NodeId struct {
	NamespaceIndex uint16
	Type           NodeIdType
	Numeric        uint32
	Str            string
	Guid           uuid.UUID
	Opaque         []byte
}

func NumericNodeId(ns uint16, id uint32) NodeId {
	return NodeId{NamespaceIndex: ns, Type: NodeIdNumeric, Numeric: id}
}

func StringNodeId(ns uint16, id string) NodeId {
	return NodeId{NamespaceIndex: ns, Type: NodeIdString, Str: id}
}

// Equal compares two NodeIds by namespace, type and value, the way the
// reader-matching logic of the PubSub receive path needs to (spec.md §4.3).
func (n NodeId) Equal(o NodeId) bool {
	if n.NamespaceIndex != o.NamespaceIndex || n.Type != o.Type {
		return false
	}
	switch n.Type {
	case NodeIdNumeric:
		return n.Numeric == o.Numeric
	case NodeIdString:
		return n.Str == o.Str
	case NodeIdGUID:
		return n.Guid == o.Guid
	case NodeIdOpaque:
		return string(n.Opaque) == string(o.Opaque)
	default:
		return false
	}
}

func (n NodeId) String() string {
	switch n.Type {
	case NodeIdNumeric:
		return fmt.Sprintf("ns=%d;i=%d", n.NamespaceIndex, n.Numeric)
	case NodeIdString:
		return fmt.Sprintf("ns=%d;s=%s", n.NamespaceIndex, n.Str)
	case NodeIdGUID:
		return fmt.Sprintf("ns=%d;g=%s", n.NamespaceIndex, n.Guid)
	case NodeIdOpaque:
		return fmt.Sprintf("ns=%d;b=%x", n.NamespaceIndex, n.Opaque)
	default:
		return "ns=0;i=0"
	}
}

// ParseNodeId parses the textual NodeId notation used in configuration
// files and address-space dumps: "ns=<index>;i=<numeric>", "ns=<index>;s=
// <string>", "ns=<index>;g=<guid>" or "ns=<index>;b=<hex>". The "ns=" part
// may be omitted, defaulting to namespace 0.
func ParseNodeId(s string) (NodeId, error) {
	ns := uint16(0)
	rest := s
	if strings.HasPrefix(rest, "ns=") {
		parts := strings.SplitN(rest[3:], ";", 2)
		if len(parts) != 2 {
			return NodeId{}, fmt.Errorf("malformed node id %q", s)
		}
		n, err := strconv.ParseUint(parts[0], 10, 16)
		if err != nil {
			return NodeId{}, fmt.Errorf("malformed namespace index in node id %q: %w", s, err)
		}
		ns = uint16(n)
		rest = parts[1]
	}
	if len(rest) < 2 || rest[1] != '=' {
		return NodeId{}, fmt.Errorf("malformed node id %q", s)
	}
	value := rest[2:]
	switch rest[0] {
	case 'i':
		v, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return NodeId{}, fmt.Errorf("malformed numeric node id %q: %w", s, err)
		}
		return NumericNodeId(ns, uint32(v)), nil
	case 's':
		return StringNodeId(ns, value), nil
	case 'g':
		id, err := uuid.Parse(value)
		if err != nil {
			return NodeId{}, fmt.Errorf("malformed guid node id %q: %w", s, err)
		}
		return NodeId{NamespaceIndex: ns, Type: NodeIdGUID, Guid: id}, nil
	case 'b':
		b, err := parseHex(value)
		if err != nil {
			return NodeId{}, fmt.Errorf("malformed opaque node id %q: %w", s, err)
		}
		return NodeId{NamespaceIndex: ns, Type: NodeIdOpaque, Opaque: b}, nil
	default:
		return NodeId{}, fmt.Errorf("unrecognised node id identifier type %q in %q", string(rest[0]), s)
	}
}

func parseHex(s string) ([]byte, error) {
	if len(s)%2 != 0 {
		return nil, fmt.Errorf("odd-length hex string %q", s)
	}
	out := make([]byte, len(s)/2)
	for i := range out {
		v, err := strconv.ParseUint(s[i*2:i*2+2], 16, 8)
		if err != nil {
			return nil, err
		}
		out[i] = byte(v)
	}
	return out, nil
}

func (n NodeId) IsNull() bool {
	return n.NamespaceIndex == 0 && n.Type == NodeIdNumeric && n.Numeric == 0
}
