// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-pubsub.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pubsub

import (
	"fmt"
	"time"

	"github.com/ClusterCockpit/cc-pubsub/internal/pubsub/transport"
	"github.com/ClusterCockpit/cc-pubsub/pkg/ua"
)

// AddPublishedDataSet implements spec.md §8's boundary behaviors: empty name
// is InvalidArgument, a duplicate name is BrowseNameDuplicated.
func (m *Manager) AddPublishedDataSet(name string, nowFn func() uint32) (*PublishedDataSet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if name == "" {
		return nil, ErrInvalidArgument
	}
	for _, p := range m.publishedDataSets {
		if p.Name == name {
			return nil, ErrBrowseNameDuplicated
		}
	}
	pds := newPublishedDataSet(m.allocID(), name, nowFn)
	m.publishedDataSets = append(m.publishedDataSets, pds)
	return pds, nil
}

func (m *Manager) RemovePublishedDataSet(pds *PublishedDataSet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if pds.IsFrozen() {
		return fmt.Errorf("%w: published data set %q is in use", ErrConfigurationError, pds.Name)
	}
	for i, p := range m.publishedDataSets {
		if p == pds {
			m.publishedDataSets = append(m.publishedDataSets[:i], m.publishedDataSets[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

// AddConnection implements spec.md §8's boundary behaviors for connection
// creation: empty profile URI -> InvalidArgument; unrecognised profile ->
// ConfigurationError; count unchanged on failure.
func (m *Manager) AddConnection(profileURI string, pid ua.PublisherId, addr EndpointURL) (*Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if profileURI == "" {
		return nil, ErrInvalidArgument
	}
	if !m.Transports.Has(profileURI) {
		return nil, fmt.Errorf("%w: unrecognised transport profile uri %q", ErrConfigurationError, profileURI)
	}
	c := newConnection(m, m.allocID(), profileURI, pid, addr)
	m.connections = append(m.connections, c)
	return c, nil
}

// RemoveConnection implements spec.md §3's two-phase deletion: flag, drive
// to Disabled, and only unlink once every channel has drained (spec.md
// §4.6's "delete-flag set ... after all slots have drained to zero").
func (m *Manager) RemoveConnection(c *Connection) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	found := false
	for _, cc := range m.connections {
		if cc == c {
			found = true
			break
		}
	}
	if !found {
		return ErrNotFound
	}

	c.Head.deletePending = true
	m.driveToTarget(c, Disabled)
	m.tryFinalizeConnectionDelete(c)
	return nil
}

// tryFinalizeConnectionDelete unlinks c from the manager once it has no
// channels attached and no remaining children (spec.md §4.6, §3's "A
// component flagged for deletion transitions only to Disabled; actual
// deallocation waits until every channel handle has signalled Closing").
func (m *Manager) tryFinalizeConnectionDelete(c *Connection) {
	if !c.Head.deletePending {
		return
	}
	if c.slotsInUse() != 0 {
		return
	}
	if len(c.writerGroups) != 0 || len(c.readerGroups) != 0 {
		// Children still exist; a delayed callback retries once they're
		// removed (spec.md §4.6).
		if m.Loop != nil {
			m.Loop.AddDelayedCallback(func() {
				m.mu.Lock()
				defer m.mu.Unlock()
				m.tryFinalizeConnectionDelete(c)
			})
		}
		return
	}
	for i, cc := range m.connections {
		if cc == c {
			m.connections = append(m.connections[:i], m.connections[i+1:]...)
			return
		}
	}
}

func (m *Manager) AddWriterGroup(c *Connection, writerGroupID uint16, interval time.Duration) (*WriterGroup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if interval <= 0 {
		return nil, ErrInvalidArgument
	}
	wg := newWriterGroup(m, c, m.allocID())
	wg.WriterGroupID = writerGroupID
	wg.PublishingInterval = interval
	c.writerGroups = append(c.writerGroups, wg)
	return wg, nil
}

func (m *Manager) RemoveWriterGroup(c *Connection, wg *WriterGroup) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if wg.State == Operational {
		return fmt.Errorf("%w: writer group %s is operational", ErrInternalError, wg.ID)
	}
	for i, w := range c.writerGroups {
		if w == wg {
			c.writerGroups = append(c.writerGroups[:i], c.writerGroups[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (m *Manager) AddDataSetWriter(wg *WriterGroup, writerID uint16, pds *PublishedDataSet) (*DataSetWriter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range wg.writers {
		if w.WriterID == writerID {
			return nil, ErrConfigurationError
		}
	}
	dsw := newDataSetWriter(m, wg, m.allocID())
	dsw.WriterID = writerID
	dsw.AttachPDS(pds)
	if pds != nil {
		pds.Freeze()
	}
	wg.writers = append(wg.writers, dsw)
	return dsw, nil
}

func (m *Manager) AddReaderGroup(c *Connection, name string) (*ReaderGroup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rg := newReaderGroup(m, c, m.allocID(), name)
	c.readerGroups = append(c.readerGroups, rg)
	return rg, nil
}

func (m *Manager) AddDataSetReader(rg *ReaderGroup, pid ua.PublisherId, wgID, dswID uint16) (*DataSetReader, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := newDataSetReader(m, rg, m.allocID())
	r.PublisherID = pid
	r.WriterGroupID = wgID
	r.DataSetWriterID = dswID
	r.SDS = newSubscribedDataSet(m.allocID())
	_ = r.SDS.Claim(r)
	rg.readers = append(rg.readers, r)
	return r, nil
}

// onConnectionEvent is the transport.Callback bound to every Connection-level
// OpenConnection call (spec.md §4.6's attach protocol, driven from
// transport state notifications).
func (m *Manager) onConnectionEvent(id transport.ID, appCtx any, state transport.State, bytes []byte) {
	c, ok := appCtx.(*Connection)
	if !ok {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	switch state {
	case transport.Established:
		if len(bytes) > 0 {
			m.handleInboundMessage(c, bytes)
			break
		}
		if c.wantsSend() && c.sendSlot == 0 {
			_ = c.attachSend(id)
		} else {
			_ = c.attachReceive(id)
		}
	case transport.Closing:
		c.detach(id)
		m.tryFinalizeConnectionDelete(c)
	}

	m.driveToTarget(c, Operational)
}

// onWriterGroupChannelEvent handles state for a WriterGroup's own dedicated
// send channel (spec.md §3: "a dedicated send-channel used only when the
// group has its own transport settings").
func (m *Manager) onWriterGroupChannelEvent(id transport.ID, appCtx any, state transport.State, _ []byte) {
	wg, ok := appCtx.(*WriterGroup)
	if !ok {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	switch state {
	case transport.Established:
		wg.dedicatedSendSlot = id
	case transport.Closing:
		if wg.dedicatedSendSlot == id {
			wg.dedicatedSendSlot = 0
		}
	}
	m.driveToTarget(wg, Operational)
}

func (m *Manager) onReaderGroupChannelEvent(id transport.ID, appCtx any, state transport.State, bytes []byte) {
	rg, ok := appCtx.(*ReaderGroup)
	if !ok {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	switch state {
	case transport.Established:
		if len(bytes) > 0 {
			m.handleInboundMessageForGroup(rg, bytes)
			break
		}
		found := false
		for _, s := range rg.dedicatedRecvSlots {
			if s == id {
				found = true
			}
		}
		if !found {
			rg.dedicatedRecvSlots = append(rg.dedicatedRecvSlots, id)
		}
	case transport.Closing:
		for i, s := range rg.dedicatedRecvSlots {
			if s == id {
				rg.dedicatedRecvSlots = append(rg.dedicatedRecvSlots[:i], rg.dedicatedRecvSlots[i+1:]...)
				break
			}
		}
	}
	m.driveToTarget(rg, Operational)
}

// onReceiveTimeout implements spec.md §4.3's receive-timeout expiry: drive
// the Reader to Error with a Timeout status, unless it silently no longer
// applies.
func (m *Manager) onReceiveTimeout(r *DataSetReader) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if r.State != Operational && r.State != PreOperational {
		return
	}
	r.lastErr = ua.BadTimeout
	m.driveToTarget(r, Error)
}
