// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-pubsub.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pubsub

import "github.com/ClusterCockpit/cc-pubsub/pkg/ua"

// DataSetWriter binds a PublishedDataSet to a WriterGroup (spec.md §3). A
// nil PublishedDataSet means a heartbeat-only writer (SPEC_FULL.md §4).
type DataSetWriter struct {
	Head

	mgr    *Manager
	parent *WriterGroup

	WriterID          uint16
	PDS               *PublishedDataSet
	pdsConfigVersion  ConfigVersion
	KeyFrameCount     uint32
	FieldContentMask  ua.FieldContentMask

	deltaCounter uint32
	sampleCache  []ua.Variant
}

func newDataSetWriter(mgr *Manager, parent *WriterGroup, id ComponentId) *DataSetWriter {
	return &DataSetWriter{Head: newHead(id, KindDataSetWriter), mgr: mgr, parent: parent, KeyFrameCount: 1}
}

func (w *DataSetWriter) head() *Head          { return &w.Head }
func (w *DataSetWriter) children() []component { return nil }

func (w *DataSetWriter) Enable() {
	w.mgr.mu.Lock()
	defer w.mgr.mu.Unlock()
	w.mgr.enable(w)
}

func (w *DataSetWriter) Disable() {
	w.mgr.mu.Lock()
	defer w.mgr.mu.Unlock()
	w.mgr.disable(w)
}

// AttachPDS binds (or rebinds) the writer's PublishedDataSet, snapshotting
// its configuration-version the way spec.md §3 requires ("the PDS
// configuration-version observed at connect time").
func (w *DataSetWriter) AttachPDS(pds *PublishedDataSet) {
	w.PDS = pds
	if pds != nil {
		w.pdsConfigVersion = pds.ConfigVersion()
	}
	w.sampleCache = nil
}

func (w *DataSetWriter) naturalTarget() State {
	if w.parent == nil || w.parent.State != Operational {
		return Paused
	}
	return Operational
}

func (w *DataSetWriter) onEnter(s State) error {
	if s == Operational {
		// Force a key frame on the first tick after (re)activation.
		w.deltaCounter = w.KeyFrameCount
		if w.PDS != nil {
			w.sampleCache = make([]ua.Variant, w.PDS.FieldCount())
		}
	}
	return nil
}
