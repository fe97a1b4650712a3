// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-pubsub.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package ethtransport implements transport.ConnectionManager for the
// pubsub-eth-uadp profile (spec.md §4.7: "opc.eth://<interface>[/<dest-mac>]"),
// sending/receiving raw Ethernet frames (EtherType 0xB62C) via
// google/gopacket's pcap bindings.
package ethtransport

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"

	"github.com/ClusterCockpit/cc-pubsub/internal/pubsub/transport"
	"github.com/ClusterCockpit/cc-pubsub/pkg/log"
)

// EtherTypePubSub is the OPC UA PubSub EtherType (spec.md §4.7).
const EtherTypePubSub = 0xB62C

type Manager struct {
	mu     sync.Mutex
	nextID uint64
	conns  map[transport.ID]*ethConn
}

type ethConn struct {
	handle   *pcap.Handle
	srcMAC   net.HardwareAddr
	dstMAC   net.HardwareAddr
	callback transport.Callback
	appCtx   any
	stop     chan struct{}
}

func New() *Manager {
	return &Manager{conns: make(map[transport.ID]*ethConn)}
}

func (m *Manager) OpenConnection(params transport.Params, appCtx any, callback transport.Callback) (transport.ID, error) {
	id := transport.ID(atomic.AddUint64(&m.nextID, 1))

	iface, err := net.InterfaceByName(params.Interface)
	if err != nil {
		return 0, fmt.Errorf("ethtransport: interface %q not found: %w", params.Interface, err)
	}

	handle, err := pcap.OpenLive(params.Interface, 65536, true, pcap.BlockForever)
	if err != nil {
		return 0, fmt.Errorf("ethtransport: open %q failed: %w", params.Interface, err)
	}
	if err := handle.SetBPFFilter(fmt.Sprintf("ether proto 0x%x", EtherTypePubSub)); err != nil {
		handle.Close()
		return 0, fmt.Errorf("ethtransport: bpf filter failed: %w", err)
	}

	dst, _ := net.ParseMAC(params.Address)

	ec := &ethConn{handle: handle, srcMAC: iface.HardwareAddr, dstMAC: dst, callback: callback, appCtx: appCtx, stop: make(chan struct{})}

	m.mu.Lock()
	m.conns[id] = ec
	m.mu.Unlock()

	if callback != nil {
		callback(id, appCtx, transport.Established, nil)
	}

	go ec.readLoop(id)

	return id, nil
}

func (c *ethConn) readLoop(id transport.ID) {
	src := gopacket.NewPacketSource(c.handle, layers.LayerTypeEthernet)
	pkts := src.Packets()
	for {
		select {
		case <-c.stop:
			return
		case pkt, ok := <-pkts:
			if !ok {
				return
			}
			eth, ok := pkt.Layer(layers.LayerTypeEthernet).(*layers.Ethernet)
			if !ok || eth.EthernetType != layers.EthernetType(EtherTypePubSub) {
				continue
			}
			if c.callback != nil {
				out := make([]byte, len(eth.Payload))
				copy(out, eth.Payload)
				c.callback(id, c.appCtx, transport.Established, out)
			}
		}
	}
}

func (m *Manager) SendWithConnection(id transport.ID, _ transport.SendParams, buffer []byte) error {
	m.mu.Lock()
	ec, ok := m.conns[id]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("ethtransport: unknown connection %d", id)
	}

	dst := ec.dstMAC
	if dst == nil {
		// Broadcast, per spec.md §4.7's "no destination-MAC means broadcast".
		dst = net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}
	}

	eth := &layers.Ethernet{
		SrcMAC:       ec.srcMAC,
		DstMAC:       dst,
		EthernetType: layers.EthernetType(EtherTypePubSub),
	}
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, gopacket.Payload(buffer)); err != nil {
		return fmt.Errorf("ethtransport: serialize failed: %w", err)
	}
	return ec.handle.WritePacketData(buf.Bytes())
}

func (m *Manager) CloseConnection(id transport.ID) {
	m.mu.Lock()
	ec, ok := m.conns[id]
	delete(m.conns, id)
	m.mu.Unlock()
	if !ok {
		return
	}
	close(ec.stop)
	ec.handle.Close()
	if ec.callback != nil {
		ec.callback(id, ec.appCtx, transport.Closing, nil)
	}
	log.Debugf("ethtransport: closed connection %d", id)
}

func (m *Manager) AllocNetworkBuffer(_ transport.ID, length int) []byte {
	return make([]byte, length)
}

func (m *Manager) FreeNetworkBuffer(_ transport.ID, _ []byte) {}
