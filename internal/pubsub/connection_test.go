// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-pubsub.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pubsub_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ClusterCockpit/cc-pubsub/internal/pubsub"
	"github.com/ClusterCockpit/cc-pubsub/internal/pubsub/addressspace"
	"github.com/ClusterCockpit/cc-pubsub/internal/pubsub/eventloop"
	"github.com/ClusterCockpit/cc-pubsub/internal/pubsub/transport"
	"github.com/ClusterCockpit/cc-pubsub/internal/pubsub/transport/udptransport"
	"github.com/ClusterCockpit/cc-pubsub/pkg/ua"
)

func newTestManager(t *testing.T) *pubsub.Manager {
	t.Helper()
	reg := transport.NewRegistry()
	reg.Register(transport.ProfileUDPUADP, "udp", false, udptransport.New())
	loop := eventloop.NewFake(time.Now())
	return pubsub.NewManager(loop, addressspace.NewMemoryStore(), reg)
}

func TestAddConnectionAutoAssignsPublisherID(t *testing.T) {
	mgr := newTestManager(t)
	addr, err := pubsub.ParseEndpointURL("opc.udp://239.0.0.1:4840")
	require.NoError(t, err)

	c, err := mgr.AddConnection(transport.ProfileUDPUADP, ua.PublisherId{}, addr)
	require.NoError(t, err)
	require.False(t, c.PublisherID.IsZero(), "an unconfigured PublisherId must be auto-assigned, not left at zero")
}

func TestAddConnectionKeepsExplicitPublisherID(t *testing.T) {
	mgr := newTestManager(t)
	addr, err := pubsub.ParseEndpointURL("opc.udp://239.0.0.1:4840")
	require.NoError(t, err)

	pid := ua.PublisherIdFromUInt32(42)
	c, err := mgr.AddConnection(transport.ProfileUDPUADP, pid, addr)
	require.NoError(t, err)
	require.True(t, c.PublisherID.Equal(pid))
}

func TestAddConnectionRejectsUnknownProfile(t *testing.T) {
	mgr := newTestManager(t)
	addr, err := pubsub.ParseEndpointURL("opc.udp://239.0.0.1:4840")
	require.NoError(t, err)

	_, err = mgr.AddConnection("http://example.com/not-a-profile", ua.PublisherId{}, addr)
	require.Error(t, err)
}

func TestConnectionsSnapshotIsIndependent(t *testing.T) {
	mgr := newTestManager(t)
	addr, err := pubsub.ParseEndpointURL("opc.udp://239.0.0.1:4840")
	require.NoError(t, err)
	_, err = mgr.AddConnection(transport.ProfileUDPUADP, ua.PublisherId{}, addr)
	require.NoError(t, err)

	snap := mgr.Connections()
	require.Len(t, snap, 1)

	_, err = mgr.AddConnection(transport.ProfileUDPUADP, ua.PublisherId{}, addr)
	require.NoError(t, err)
	require.Len(t, snap, 1, "a previously taken snapshot must not grow")
	require.Len(t, mgr.Connections(), 2)
}
