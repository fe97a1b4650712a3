// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-pubsub.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package config turns a schema.PubSubConfig (as loaded from a JSON
// configuration file) into a running pubsub.Manager object graph: every
// PublishedDataSet, Connection, WriterGroup/DataSetWriter and
// ReaderGroup/DataSetReader it names, wired together and Enabled (spec.md
// §3, §7).
package config

import (
	"fmt"
	"time"

	"github.com/ClusterCockpit/cc-pubsub/internal/pubsub"
	"github.com/ClusterCockpit/cc-pubsub/internal/pubsub/addressspace"
	"github.com/ClusterCockpit/cc-pubsub/internal/pubsub/security"
	"github.com/ClusterCockpit/cc-pubsub/pkg/schema"
	"github.com/ClusterCockpit/cc-pubsub/pkg/ua"
)

// KeyStorageFactory is the one external collaborator Build needs: the SKS
// key-retrieval machinery that turns a securityGroupId into a running
// security.KeyStorage (spec.md §4.5 names GetSecurityKeys as "outside this
// spec's scope"). Callers typically wrap internal/pubsub/sks for this.
type KeyStorageFactory func(groupID, policyURI string) (*security.KeyStorage, error)

// Build applies cfg to mgr, returning the first error encountered. On error
// the manager may be left with a partially-built graph; callers should
// discard mgr and retry from a fresh Manager.
func Build(mgr *pubsub.Manager, cfg *schema.PubSubConfig, keyStorageOf KeyStorageFactory) error {
	b := &builder{mgr: mgr, cfg: cfg, keyStorageOf: keyStorageOf, pdsByName: map[string]*pubsub.PublishedDataSet{}}
	return b.build()
}

type builder struct {
	mgr          *pubsub.Manager
	cfg          *schema.PubSubConfig
	keyStorageOf KeyStorageFactory
	pdsByName    map[string]*pubsub.PublishedDataSet
	seq          uint32
}

func (b *builder) nowFn() func() uint32 {
	return func() uint32 {
		return uint32(time.Now().Unix())
	}
}

func (b *builder) build() error {
	for name, pdsCfg := range b.cfg.PublishedDataSets {
		pds, err := b.buildPublishedDataSet(name, pdsCfg)
		if err != nil {
			return fmt.Errorf("publishedDataSet %q: %w", name, err)
		}
		b.pdsByName[name] = pds
	}

	for i, ccfg := range b.cfg.Connections {
		if err := b.buildConnection(ccfg); err != nil {
			return fmt.Errorf("connections[%d] %q: %w", i, ccfg.Name, err)
		}
	}
	return nil
}

func (b *builder) buildPublishedDataSet(name string, cfg schema.PublishedDataSetConfig) (*pubsub.PublishedDataSet, error) {
	pds, err := b.mgr.AddPublishedDataSet(name, b.nowFn())
	if err != nil {
		return nil, err
	}
	for _, fc := range cfg.Fields {
		field, err := fieldFromConfig(fc)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", fc.Name, err)
		}
		if err := pds.AddField(field); err != nil {
			return nil, err
		}
	}
	return pds, nil
}

func fieldFromConfig(fc schema.FieldConfig) (*pubsub.DataSetField, error) {
	nodeID, err := ua.ParseNodeId(fc.TargetNodeID)
	if err != nil {
		return nil, err
	}
	attr, err := parseAttributeID(fc.AttributeID)
	if err != nil {
		return nil, err
	}
	builtin, err := ua.ParseBuiltinType(fc.BuiltinType)
	if err != nil {
		return nil, err
	}
	return &pubsub.DataSetField{
		Kind:            pubsub.FieldVariable,
		TargetNodeID:    nodeID,
		AttributeID:     attr,
		IndexRange:      fc.IndexRange,
		FieldNameAlias:  fc.Name,
		PromotedField:   fc.PromotedField,
		MaxStringLength: fc.MaxStringLength,
		Metadata: pubsub.FieldMetadata{
			Name:            fc.Name,
			BuiltinType:     builtin,
			ValueRank:       fc.ValueRank,
			ArrayDimensions: fc.ArrayDimensions,
			MaxStringLength: fc.MaxStringLength,
		},
	}, nil
}

func parseAttributeID(s string) (addressspace.AttributeID, error) {
	switch s {
	case "", "Value":
		return addressspace.AttributeValue, nil
	case "Status":
		return addressspace.AttributeStatus, nil
	default:
		return 0, fmt.Errorf("unrecognised attribute id %q", s)
	}
}

func parseSecurityMode(s string) (security.Mode, error) {
	switch s {
	case "", "None":
		return security.ModeNone, nil
	case "Sign":
		return security.ModeSign, nil
	case "SignAndEncrypt":
		return security.ModeSignAndEncrypt, nil
	default:
		return 0, fmt.Errorf("unrecognised security mode %q", s)
	}
}

func (b *builder) securityContext(groupID string, mode security.Mode) (*security.Context, error) {
	if mode == security.ModeNone || groupID == "" {
		return nil, nil
	}
	sgCfg, ok := b.cfg.SecurityGroups[groupID]
	if !ok {
		return nil, fmt.Errorf("%w: securityGroupId %q is not declared in securityGroups", pubsub.ErrConfigurationError, groupID)
	}
	if b.keyStorageOf == nil {
		return nil, fmt.Errorf("%w: securityGroupId %q requires a key storage factory", pubsub.ErrConfigurationError, groupID)
	}
	storage, err := b.keyStorageOf(groupID, sgCfg.PolicyURI)
	if err != nil {
		return nil, err
	}
	policy, err := policyFromURI(sgCfg.PolicyURI)
	if err != nil {
		return nil, err
	}
	storage.AddRef()
	return security.NewContext(policy, mode, storage), nil
}

func policyFromURI(uri string) (security.Policy, error) {
	switch uri {
	case "", "http://opcfoundation.org/UA/SecurityPolicy#PubSub-Aes256-CTR":
		return security.Aes256CtrPolicy{}, nil
	default:
		return nil, fmt.Errorf("unsupported security policy uri %q", uri)
	}
}

func (b *builder) buildConnection(cfg schema.ConnectionConfig) error {
	pid, err := ua.ParsePublisherId(cfg.PublisherID)
	if err != nil {
		return err
	}
	addr, err := pubsub.ParseEndpointURL(cfg.Address)
	if err != nil {
		return err
	}
	c, err := b.mgr.AddConnection(cfg.ProfileURI, pid, addr)
	if err != nil {
		return err
	}
	for k, v := range cfg.Properties {
		c.Properties[k] = v
	}

	for i, wgCfg := range cfg.WriterGroups {
		if err := b.buildWriterGroup(c, wgCfg); err != nil {
			return fmt.Errorf("writerGroups[%d] %q: %w", i, wgCfg.Name, err)
		}
	}
	for i, rgCfg := range cfg.ReaderGroups {
		if err := b.buildReaderGroup(c, rgCfg); err != nil {
			return fmt.Errorf("readerGroups[%d] %q: %w", i, rgCfg.Name, err)
		}
	}

	c.Enable()
	return nil
}

func (b *builder) buildWriterGroup(c *pubsub.Connection, cfg schema.WriterGroupConfig) error {
	interval, err := time.ParseDuration(cfg.PublishingInterval)
	if err != nil {
		return fmt.Errorf("publishingInterval: %w", err)
	}
	wg, err := b.mgr.AddWriterGroup(c, cfg.WriterGroupID, interval)
	if err != nil {
		return err
	}
	if cfg.KeepAliveTime != "" {
		wg.KeepAliveTime, err = time.ParseDuration(cfg.KeepAliveTime)
		if err != nil {
			return fmt.Errorf("keepAliveTime: %w", err)
		}
	}
	wg.Priority = cfg.Priority
	if cfg.Encoding == "JSON" {
		wg.Encoding = pubsub.EncodingJSON
	}
	if cfg.MaxEncapsulatedDataSetMessageCount > 0 {
		wg.MaxEncapsulatedDataSetMessageCount = cfg.MaxEncapsulatedDataSetMessageCount
	}
	if cfg.DedicatedTopic != "" {
		wg.SetDedicatedTransport(cfg.DedicatedTopic)
	}

	mode, err := parseSecurityMode(cfg.SecurityMode)
	if err != nil {
		return err
	}
	wg.SecurityMode = mode
	wg.SecurityContext, err = b.securityContext(cfg.SecurityGroupID, mode)
	if err != nil {
		return err
	}

	for i, dswCfg := range cfg.DataSetWriters {
		var pds *pubsub.PublishedDataSet
		if dswCfg.PublishedDataSet != "" {
			var ok bool
			pds, ok = b.pdsByName[dswCfg.PublishedDataSet]
			if !ok {
				return fmt.Errorf("dataSetWriters[%d]: unknown publishedDataSet %q", i, dswCfg.PublishedDataSet)
			}
		}
		dsw, err := b.mgr.AddDataSetWriter(wg, dswCfg.WriterID, pds)
		if err != nil {
			return fmt.Errorf("dataSetWriters[%d]: %w", i, err)
		}
		if dswCfg.KeyFrameCount > 0 {
			dsw.KeyFrameCount = dswCfg.KeyFrameCount
		}
		mask, err := ua.ParseFieldContentMask(dswCfg.FieldContentMask)
		if err != nil {
			return fmt.Errorf("dataSetWriters[%d] fieldContentMask: %w", i, err)
		}
		dsw.FieldContentMask = mask
		dsw.Enable()
	}

	wg.Enable()
	return nil
}

func (b *builder) buildReaderGroup(c *pubsub.Connection, cfg schema.ReaderGroupConfig) error {
	rg, err := b.mgr.AddReaderGroup(c, cfg.Name)
	if err != nil {
		return err
	}
	mode, err := parseSecurityMode(cfg.SecurityMode)
	if err != nil {
		return err
	}
	rg.SecurityMode = mode
	rg.SecurityContext, err = b.securityContext(cfg.SecurityGroupID, mode)
	if err != nil {
		return err
	}
	if cfg.DedicatedTopic != "" {
		rg.SetDedicatedTransport(cfg.DedicatedTopic)
	}

	for i, drCfg := range cfg.DataSetReaders {
		if err := b.buildDataSetReader(rg, drCfg); err != nil {
			return fmt.Errorf("dataSetReaders[%d] %q: %w", i, drCfg.Name, err)
		}
	}

	rg.Enable()
	return nil
}

func (b *builder) buildDataSetReader(rg *pubsub.ReaderGroup, cfg schema.DataSetReaderConfig) error {
	var pid ua.PublisherId
	var err error
	if cfg.PublisherID != "" {
		pid, err = ua.ParsePublisherId(cfg.PublisherID)
		if err != nil {
			return err
		}
	}
	wgID := uint16(0)
	if cfg.WriterGroupID != nil {
		wgID = *cfg.WriterGroupID
	}
	r, err := b.mgr.AddDataSetReader(rg, pid, wgID, cfg.DataSetWriterID)
	if err != nil {
		return err
	}
	if cfg.MessageReceiveTimeout != "" {
		r.MessageReceiveTimeout, err = time.ParseDuration(cfg.MessageReceiveTimeout)
		if err != nil {
			return fmt.Errorf("messageReceiveTimeout: %w", err)
		}
	}

	metadata := make([]pubsub.FieldMetadata, len(cfg.Metadata))
	for i, fc := range cfg.Metadata {
		builtin, err := ua.ParseBuiltinType(fc.BuiltinType)
		if err != nil {
			return fmt.Errorf("metadata[%d]: %w", i, err)
		}
		metadata[i] = pubsub.FieldMetadata{
			Name:            fc.Name,
			BuiltinType:     builtin,
			ValueRank:       fc.ValueRank,
			ArrayDimensions: fc.ArrayDimensions,
			MaxStringLength: fc.MaxStringLength,
		}
	}
	r.Metadata = metadata

	mask, err := ua.ParseFieldContentMask(cfg.FieldContentMask)
	if err != nil {
		return fmt.Errorf("fieldContentMask: %w", err)
	}
	r.FieldContentMask = mask

	targets := make([]pubsub.TargetVariable, len(cfg.TargetVariables))
	for i, tv := range cfg.TargetVariables {
		nodeID, err := ua.ParseNodeId(tv.TargetNodeID)
		if err != nil {
			return fmt.Errorf("targetVariables[%d]: %w", i, err)
		}
		attr, err := parseAttributeID(tv.AttributeID)
		if err != nil {
			return fmt.Errorf("targetVariables[%d]: %w", i, err)
		}
		targets[i] = pubsub.TargetVariable{TargetNodeID: nodeID, AttributeID: attr, IndexRange: tv.IndexRange}
	}
	if err := r.SDS.SetTargetVariables(targets); err != nil {
		return err
	}

	r.Enable()
	return nil
}
