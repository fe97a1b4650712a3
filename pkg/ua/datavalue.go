// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-pubsub.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ua

import (
	"fmt"
	"time"
)

// DataValue is what Read/Write exchange with the host address space: a
// Variant plus optional status and timestamps (spec.md §6).
type DataValue struct {
	Value              Variant
	Status             StatusCode
	HasStatus          bool
	SourceTimestamp    time.Time
	HasSourceTimestamp bool
	ServerTimestamp    time.Time
	HasServerTimestamp bool
	Picoseconds        uint16
}

// FieldContentMask selects which optional DataValue components a
// DataSetWriter encodes for a field (spec.md §3, §4.4).
type FieldContentMask uint32

const (
	FieldStatusCode FieldContentMask = 1 << iota
	FieldSourceTimestamp
	FieldServerTimestamp
	FieldSourcePicoseconds
	FieldServerPicoseconds
	FieldRawData // encode as RawData instead of Variant/DataValue
)

func (m FieldContentMask) Has(bit FieldContentMask) bool { return m&bit != 0 }

var fieldContentMaskNames = map[string]FieldContentMask{
	"StatusCode":        FieldStatusCode,
	"SourceTimestamp":   FieldSourceTimestamp,
	"ServerTimestamp":   FieldServerTimestamp,
	"SourcePicoseconds": FieldSourcePicoseconds,
	"ServerPicoseconds": FieldServerPicoseconds,
	"RawData":           FieldRawData,
}

// ParseFieldContentMask ORs together the bits named in names (a
// configuration file's "fieldContentMask": ["StatusCode", "RawData"]).
func ParseFieldContentMask(names []string) (FieldContentMask, error) {
	var mask FieldContentMask
	for _, n := range names {
		bit, ok := fieldContentMaskNames[n]
		if !ok {
			return 0, fmt.Errorf("unrecognised field content mask bit %q", n)
		}
		mask |= bit
	}
	return mask, nil
}
