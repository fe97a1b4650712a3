// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-pubsub.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pubsub

import (
	"fmt"

	"github.com/ClusterCockpit/cc-pubsub/internal/pubsub/addressspace"
	"github.com/ClusterCockpit/cc-pubsub/pkg/ua"
)

// TargetVariable is one write destination of a SubscribedDataSet (spec.md
// §3).
type TargetVariable struct {
	TargetNodeID ua.NodeId
	AttributeID  addressspace.AttributeID
	IndexRange   string
}

// SDSKind distinguishes the implemented TargetVariables form from the
// unimplemented DataSetMirror (spec.md §3).
type SDSKind byte

const (
	SDSTargetVariables SDSKind = iota
	SDSMirror
)

// SubscribedDataSet is a DataSetReader's field-to-NodeId mapping. Exactly
// one DataSetReader may claim a given SubscribedDataSet; claimedBy enforces
// this (spec.md §3: "a back-pointer enforces this").
type SubscribedDataSet struct {
	ID   ComponentId
	Kind SDSKind

	TargetVariables []TargetVariable

	claimedBy *DataSetReader
}

func newSubscribedDataSet(id ComponentId) *SubscribedDataSet {
	return &SubscribedDataSet{ID: id, Kind: SDSTargetVariables}
}

// Claim binds the SDS to a DataSetReader, refusing a second claimant.
func (s *SubscribedDataSet) Claim(r *DataSetReader) error {
	if s.claimedBy != nil && s.claimedBy != r {
		return fmt.Errorf("%w: subscribed data set %s already claimed", ErrConfigurationError, s.ID)
	}
	s.claimedBy = r
	return nil
}

func (s *SubscribedDataSet) SetTargetVariables(vars []TargetVariable) error {
	if s.Kind != SDSTargetVariables {
		return fmt.Errorf("%w: data set mirror is not implemented", ErrNotImplemented)
	}
	s.TargetVariables = vars
	return nil
}
