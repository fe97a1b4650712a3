// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-pubsub.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package main

import (
	"context"
	"fmt"
	"time"

	"github.com/ClusterCockpit/cc-pubsub/internal/config"
	"github.com/ClusterCockpit/cc-pubsub/internal/pubsub"
	"github.com/ClusterCockpit/cc-pubsub/internal/pubsub/addressspace"
	"github.com/ClusterCockpit/cc-pubsub/internal/pubsub/eventloop"
	"github.com/ClusterCockpit/cc-pubsub/internal/pubsub/security"
	"github.com/ClusterCockpit/cc-pubsub/internal/pubsub/sks"
	"github.com/ClusterCockpit/cc-pubsub/internal/pubsub/transport"
	"github.com/ClusterCockpit/cc-pubsub/internal/pubsub/transport/ethtransport"
	"github.com/ClusterCockpit/cc-pubsub/internal/pubsub/transport/mqtttransport"
	"github.com/ClusterCockpit/cc-pubsub/internal/pubsub/transport/udptransport"
	"github.com/ClusterCockpit/cc-pubsub/pkg/log"
	"github.com/ClusterCockpit/cc-pubsub/pkg/nats"
)

// buildTransports registers every ConnectionManager profile this build
// supports, mirroring the teacher's pattern of wiring concrete collaborators
// at startup rather than via a DI container.
func buildTransports() *transport.Registry {
	reg := transport.NewRegistry()
	reg.Register(transport.ProfileUDPUADP, "udp", false, udptransport.New())
	reg.Register(transport.ProfileMQTTUADP, "mqtt", false, mqtttransport.New())
	reg.Register(transport.ProfileMQTTJSON, "mqtt", true, mqtttransport.New())
	reg.Register(transport.ProfileETHUADP, "eth", false, ethtransport.New())
	return reg
}

// buildKeyStorageFactory wires internal/config.Build's KeyStorageFactory
// collaborator to a live SKS client over NATS when one is configured
// (spec.md §4.5). Without a configured SKS, SecurityGroups are still built
// but their KeyStorage is never Installed, so any WriterGroup/ReaderGroup
// referencing them stays PreOperational until one is, instead of failing
// config loading outright.
func buildKeyStorageFactory(loop eventloop.EventLoop, sksAddr, sksSubject string) config.KeyStorageFactory {
	if sksAddr == "" {
		return func(groupID, policyURI string) (*security.KeyStorage, error) {
			return security.NewKeyStorage(groupID, policyURI), nil
		}
	}

	nc, err := nats.NewClient(&nats.NatsConfig{Address: sksAddr})
	if err != nil {
		log.Fatalf("sks: connecting to %s: %v", sksAddr, err)
	}
	client := sks.NewClient(nc, sksSubject)

	return func(groupID, policyURI string) (*security.KeyStorage, error) {
		ks := security.NewKeyStorage(groupID, policyURI)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		resp, err := client.GetSecurityKeys(ctx, groupID, 0, 4)
		if err != nil {
			return nil, fmt.Errorf("sks: GetSecurityKeys(%s): %w", groupID, err)
		}
		if len(resp.Keys) == 0 {
			return nil, fmt.Errorf("sks: security group %s returned no keys", groupID)
		}

		current := security.Key{TokenID: resp.FirstTokenID, Raw: resp.Keys[0]}
		future := make([]security.Key, 0, len(resp.Keys)-1)
		for i, raw := range resp.Keys[1:] {
			future = append(future, security.Key{TokenID: resp.FirstTokenID + uint32(i) + 1, Raw: raw})
		}
		ks.Install(loop, current, future, resp.TimeToNextKey, resp.KeyLifetime)
		return ks, nil
	}
}

// newManager assembles a fresh Manager with its EventLoop, address-space
// store and transport registry, before any configuration is applied.
func newManager() (*pubsub.Manager, eventloop.EventLoop, error) {
	loop, err := eventloop.NewGocronEventLoop()
	if err != nil {
		return nil, nil, fmt.Errorf("starting event loop: %w", err)
	}
	store := addressspace.NewMemoryStore()
	mgr := pubsub.NewManager(loop, store, buildTransports())
	return mgr, loop, nil
}
