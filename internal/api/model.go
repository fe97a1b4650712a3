// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-pubsub.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package api

import (
	"github.com/ClusterCockpit/cc-pubsub/internal/pubsub"
)

// ConnectionInfo mirrors spec.md §6's Information-Model read properties for
// one Connection and everything beneath it.
type ConnectionInfo struct {
	ID           string             `json:"id"`
	State        string             `json:"state"`
	ProfileURI   string             `json:"profileUri"`
	PublisherID  string             `json:"publisherId"`
	WriterGroups []WriterGroupInfo  `json:"writerGroups"`
	ReaderGroups []ReaderGroupInfo  `json:"readerGroups"`
}

type WriterGroupInfo struct {
	ID                 string              `json:"id"`
	State              string              `json:"state"`
	WriterGroupID      uint16              `json:"writerGroupId"`
	PublishingInterval string              `json:"publishingInterval"`
	DataSetWriters     []DataSetWriterInfo `json:"dataSetWriters"`
}

type DataSetWriterInfo struct {
	ID        string `json:"id"`
	State     string `json:"state"`
	WriterID  uint16 `json:"dataSetWriterId"`
	Heartbeat bool   `json:"heartbeat"`
}

type ReaderGroupInfo struct {
	ID      string            `json:"id"`
	State   string            `json:"state"`
	Name    string            `json:"name"`
	Readers []DataSetReaderInfo `json:"dataSetReaders"`
}

type DataSetReaderInfo struct {
	ID              string `json:"id"`
	State           string `json:"state"`
	PublisherID     string `json:"publisherId"`
	WriterGroupID   uint16 `json:"writerGroupId"`
	DataSetWriterID uint16 `json:"dataSetWriterId"`
}

func connectionInfo(c *pubsub.Connection) ConnectionInfo {
	wgs := c.WriterGroups()
	rgs := c.ReaderGroups()

	out := ConnectionInfo{
		ID:           c.ID.String(),
		State:        c.State.String(),
		ProfileURI:   c.ProfileURI,
		PublisherID:  c.PublisherID.String(),
		WriterGroups: make([]WriterGroupInfo, len(wgs)),
		ReaderGroups: make([]ReaderGroupInfo, len(rgs)),
	}
	for i, wg := range wgs {
		out.WriterGroups[i] = writerGroupInfo(wg)
	}
	for i, rg := range rgs {
		out.ReaderGroups[i] = readerGroupInfo(rg)
	}
	return out
}

func writerGroupInfo(wg *pubsub.WriterGroup) WriterGroupInfo {
	writers := wg.Writers()
	out := WriterGroupInfo{
		ID:                 wg.ID.String(),
		State:              wg.State.String(),
		WriterGroupID:      wg.WriterGroupID,
		PublishingInterval: wg.PublishingInterval.String(),
		DataSetWriters:     make([]DataSetWriterInfo, len(writers)),
	}
	for i, w := range writers {
		out.DataSetWriters[i] = DataSetWriterInfo{
			ID:        w.ID.String(),
			State:     w.State.String(),
			WriterID:  w.WriterID,
			Heartbeat: w.PDS == nil,
		}
	}
	return out
}

func readerGroupInfo(rg *pubsub.ReaderGroup) ReaderGroupInfo {
	readers := rg.Readers()
	out := ReaderGroupInfo{
		ID:      rg.ID.String(),
		State:   rg.State.String(),
		Name:    rg.Name,
		Readers: make([]DataSetReaderInfo, len(readers)),
	}
	for i, r := range readers {
		out.Readers[i] = DataSetReaderInfo{
			ID:              r.ID.String(),
			State:           r.State.String(),
			PublisherID:     r.PublisherID.String(),
			WriterGroupID:   r.WriterGroupID,
			DataSetWriterID: r.DataSetWriterID,
		}
	}
	return out
}
