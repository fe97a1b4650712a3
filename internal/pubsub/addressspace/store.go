// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-pubsub.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package addressspace declares the host address-space collaborator
// interface consumed by the PubSub runtime (spec.md §1: "the OPC UA server
// core ... specified only by interface") and a map-backed implementation
// used by tests and by standalone deployments that don't embed a full OPC
// UA server.
package addressspace

import (
	"context"
	"fmt"
	"sync"

	"github.com/ClusterCockpit/cc-pubsub/pkg/ua"
)

// AttributeID mirrors the small subset of OPC UA attribute ids PubSub reads
// and writes through.
type AttributeID uint32

const (
	AttributeValue AttributeID = 13
	AttributeStatus AttributeID = 14 // non-standard, used only by tests
)

// Store is the Read/Write surface spec.md §6 describes:
// "Read(nodeId, attribute, indexRange) -> DataValue" and
// "Write(nodeId, attribute, indexRange, DataValue) -> status".
type Store interface {
	Read(ctx context.Context, node ua.NodeId, attribute AttributeID, indexRange string) (ua.DataValue, error)
	Write(ctx context.Context, node ua.NodeId, attribute AttributeID, indexRange string, value ua.DataValue) error
}

type key struct {
	node      string
	attribute AttributeID
	indexRange string
}

// MemoryStore is a trivial in-process Store, analogous to the in-memory
// sqlite repository the teacher's tests substitute for a production
// database.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[key]ua.DataValue
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[key]ua.DataValue)}
}

func (s *MemoryStore) Read(_ context.Context, node ua.NodeId, attribute AttributeID, indexRange string) (ua.DataValue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key{node.String(), attribute, indexRange}]
	if !ok {
		return ua.DataValue{}, fmt.Errorf("addressspace: no value set for %s", node)
	}
	return v, nil
}

func (s *MemoryStore) Write(_ context.Context, node ua.NodeId, attribute AttributeID, indexRange string, value ua.DataValue) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key{node.String(), attribute, indexRange}] = value
	return nil
}

// Set is a test convenience wrapping Write with a background context and
// AttributeValue.
func (s *MemoryStore) Set(node ua.NodeId, value ua.DataValue) {
	_ = s.Write(context.Background(), node, AttributeValue, "", value)
}
