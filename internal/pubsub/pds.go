// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-pubsub.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pubsub

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/ClusterCockpit/cc-pubsub/internal/pubsub/addressspace"
	"github.com/ClusterCockpit/cc-pubsub/pkg/ua"
)

// FieldKind distinguishes Variable fields (implemented) from Event fields
// (spec.md §3: "only Variable is implemented").
type FieldKind byte

const (
	FieldVariable FieldKind = iota
	FieldEvent
)

// FieldMetadata is the per-field descriptor computed at DataSetField-add
// time and cached on the PublishedDataSet's metadata descriptor.
type FieldMetadata struct {
	Name            string
	DataType        ua.NodeId
	BuiltinType     ua.BuiltinType
	ValueRank       int32
	ArrayDimensions []uint32
	MaxStringLength uint32
	FieldID         uuid.UUID
}

// DataSetField is one field within a PublishedDataSet (spec.md §3).
type DataSetField struct {
	Kind            FieldKind
	TargetNodeID    ua.NodeId
	AttributeID     addressspace.AttributeID
	IndexRange      string
	FieldNameAlias  string
	PromotedField   bool
	MaxStringLength uint32
	Metadata        FieldMetadata
}

// ConfigVersion is the PDS "major/minor, derived from a wall-clock stamp at
// mutation" version pair (spec.md §3).
type ConfigVersion struct {
	Major uint32
	Minor uint32
}

// PublishedDataSet is a named, ordered, freeze-guarded list of DataSetFields
// (spec.md §3). It does not implement the component lifecycle interface —
// it has no state of its own, only freeze-counted mutation guards.
type PublishedDataSet struct {
	ID     ComponentId
	Name   string
	fields []*DataSetField

	configVersion  ConfigVersion
	promotedCount  int
	freezeCount    int
	nowFn          func() uint32 // injected wall-clock stamp source, tests override
}

func newPublishedDataSet(id ComponentId, name string, nowFn func() uint32) *PublishedDataSet {
	pds := &PublishedDataSet{ID: id, Name: name, nowFn: nowFn}
	pds.bumpVersion(true)
	return pds
}

func (p *PublishedDataSet) bumpVersion(major bool) {
	stamp := uint32(0)
	if p.nowFn != nil {
		stamp = p.nowFn()
	}
	if major {
		p.configVersion.Major = stamp
		p.configVersion.Minor = 0
	} else {
		p.configVersion.Minor = stamp
	}
}

func (p *PublishedDataSet) ConfigVersion() ConfigVersion { return p.configVersion }

func (p *PublishedDataSet) Freeze()   { p.freezeCount++ }
func (p *PublishedDataSet) Unfreeze() {
	if p.freezeCount > 0 {
		p.freezeCount--
	}
}
func (p *PublishedDataSet) IsFrozen() bool { return p.freezeCount > 0 }

func (p *PublishedDataSet) Fields() []*DataSetField {
	return append([]*DataSetField(nil), p.fields...)
}

func (p *PublishedDataSet) FieldCount() int { return len(p.fields) }

func (p *PublishedDataSet) PromotedFieldCount() int { return p.promotedCount }

// AddField appends a field, refusing while the set is frozen (spec.md §3
// invariant: "DataSetFields cannot be added or removed while the counter is
// nonzero").
func (p *PublishedDataSet) AddField(f *DataSetField) error {
	if p.IsFrozen() {
		return fmt.Errorf("%w: published data set %q is frozen", ErrConfigurationError, p.Name)
	}
	if f.Kind != FieldVariable {
		return fmt.Errorf("%w: event fields are not implemented", ErrNotImplemented)
	}
	p.fields = append(p.fields, f)
	if f.PromotedField {
		p.promotedCount++
	}
	p.bumpVersion(false)
	return nil
}

// RemoveField removes the field at index, refusing while frozen.
func (p *PublishedDataSet) RemoveField(index int) error {
	if p.IsFrozen() {
		return fmt.Errorf("%w: published data set %q is frozen", ErrConfigurationError, p.Name)
	}
	if index < 0 || index >= len(p.fields) {
		return ErrNotFound
	}
	if p.fields[index].PromotedField {
		p.promotedCount--
	}
	p.fields = append(p.fields[:index], p.fields[index+1:]...)
	p.bumpVersion(false)
	return nil
}
