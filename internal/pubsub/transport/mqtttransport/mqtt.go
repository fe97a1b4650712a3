// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-pubsub.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package mqtttransport implements transport.ConnectionManager for the
// pubsub-mqtt-uadp and pubsub-mqtt-json profiles (spec.md §4.7:
// "opc.mqtt://<broker>[:<port>]/<topic>") on top of eclipse/paho.mqtt.golang,
// the MQTT client the retrieved example corpus carries.
package mqtttransport

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/ClusterCockpit/cc-pubsub/internal/pubsub/transport"
	"github.com/ClusterCockpit/cc-pubsub/pkg/log"
)

type Manager struct {
	mu     sync.Mutex
	nextID uint64
	conns  map[transport.ID]*mqttConn
}

type mqttConn struct {
	client   mqtt.Client
	topic    string
	callback transport.Callback
	appCtx   any
}

func New() *Manager {
	return &Manager{conns: make(map[transport.ID]*mqttConn)}
}

func (m *Manager) OpenConnection(params transport.Params, appCtx any, callback transport.Callback) (transport.ID, error) {
	id := transport.ID(atomic.AddUint64(&m.nextID, 1))

	broker := fmt.Sprintf("tcp://%s:%d", params.Address, params.Port)
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(fmt.Sprintf("cc-pubsub-%d", id)).
		SetAutoReconnect(true).
		SetConnectTimeout(5 * time.Second)

	mc := &mqttConn{topic: params.Topic, callback: callback, appCtx: appCtx}

	opts.SetOnConnectHandler(func(mqtt.Client) {
		if callback != nil {
			callback(id, appCtx, transport.Established, nil)
		}
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warnf("mqtttransport: connection %d lost: %v", id, err)
	})

	client := mqtt.NewClient(opts)
	mc.client = client

	token := client.Connect()
	if !token.WaitTimeout(5*time.Second) || token.Error() != nil {
		return 0, fmt.Errorf("mqtttransport: connect failed: %w", token.Error())
	}

	if params.Subscribe && params.Topic != "" {
		subToken := client.Subscribe(params.Topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
			if callback != nil {
				callback(id, appCtx, transport.Established, msg.Payload())
			}
		})
		if !subToken.WaitTimeout(5*time.Second) || subToken.Error() != nil {
			return 0, fmt.Errorf("mqtttransport: subscribe failed: %w", subToken.Error())
		}
	}

	m.mu.Lock()
	m.conns[id] = mc
	m.mu.Unlock()

	return id, nil
}

func (m *Manager) SendWithConnection(id transport.ID, params transport.SendParams, buffer []byte) error {
	m.mu.Lock()
	mc, ok := m.conns[id]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("mqtttransport: unknown connection %d", id)
	}
	topic := mc.topic
	if params.Topic != "" {
		topic = params.Topic
	}
	if topic == "" {
		return fmt.Errorf("mqtttransport: no topic set for connection %d", id)
	}
	token := mc.client.Publish(topic, 0, false, buffer)
	token.Wait()
	return token.Error()
}

func (m *Manager) CloseConnection(id transport.ID) {
	m.mu.Lock()
	mc, ok := m.conns[id]
	delete(m.conns, id)
	m.mu.Unlock()
	if !ok {
		return
	}
	mc.client.Disconnect(250)
	if mc.callback != nil {
		mc.callback(id, mc.appCtx, transport.Closing, nil)
	}
}

func (m *Manager) AllocNetworkBuffer(_ transport.ID, length int) []byte {
	return make([]byte, length)
}

func (m *Manager) FreeNetworkBuffer(_ transport.ID, _ []byte) {}
