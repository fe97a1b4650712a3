// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-pubsub.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package sks implements the Security Key Service client/server pair of
// spec.md §4.5's GetSecurityKeys method. The transport is a NATS
// request/reply call, grounded directly on the teacher's pkg/nats.Client
// (SPEC_FULL.md §3) rather than a bespoke OPC UA method invocation, since
// the spec treats SKS delivery as an external collaborator and only
// constrains the method's semantics.
package sks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ClusterCockpit/cc-pubsub/internal/pubsub/security"
	"github.com/ClusterCockpit/cc-pubsub/pkg/nats"
)

// KeysResponse is the wire shape of GetSecurityKeys's return value
// (spec.md §4.5: "returns (policyUri, firstTokenId, keys[], timeToNextKey,
// keyLifetime)").
type KeysResponse struct {
	PolicyURI     string          `json:"policyUri"`
	FirstTokenID  uint32          `json:"firstTokenId"`
	Keys          [][]byte        `json:"keys"`
	TimeToNextKey time.Duration   `json:"timeToNextKey"`
	KeyLifetime   time.Duration   `json:"keyLifetime"`
}

type keysRequest struct {
	SecurityGroupID   string `json:"securityGroupId"`
	StartingTokenID   uint32 `json:"startingTokenId"`
	RequestedKeyCount uint32 `json:"requestedKeyCount"`
}

// Client requests keys from a remote SKS over NATS request/reply.
type Client struct {
	nc      *nats.Client
	subject string
}

func NewClient(nc *nats.Client, subject string) *Client {
	return &Client{nc: nc, subject: subject}
}

func (c *Client) GetSecurityKeys(ctx context.Context, securityGroupID string, startingTokenID, requestedKeyCount uint32) (*KeysResponse, error) {
	req, err := json.Marshal(keysRequest{securityGroupID, startingTokenID, requestedKeyCount})
	if err != nil {
		return nil, err
	}

	reply, err := c.nc.Request(c.subject, req, ctx)
	if err != nil {
		return nil, fmt.Errorf("sks: GetSecurityKeys request failed: %w", err)
	}

	var resp KeysResponse
	if err := json.Unmarshal(reply, &resp); err != nil {
		return nil, fmt.Errorf("sks: malformed GetSecurityKeys response: %w", err)
	}
	return &resp, nil
}

// GroupKeys is a SecurityGroup's ordered key series as held by the Service,
// oldest key first.
type GroupKeys struct {
	PolicyURI     string
	Keys          []security.Key
	TimeToNextKey time.Duration
	KeyLifetime   time.Duration
}

// Service is the server side: it rejects non-SignAndEncrypt callers
// (spec.md §4.5: "The method rejects unless the calling channel is
// Sign-and-Encrypt") and otherwise answers from its held GroupKeys.
type Service struct {
	MaxFutureKeyCount uint32
	Groups            map[string]*GroupKeys
}

func NewService(maxFutureKeyCount uint32) *Service {
	return &Service{MaxFutureKeyCount: maxFutureKeyCount, Groups: make(map[string]*GroupKeys)}
}

var ErrChannelNotSecure = fmt.Errorf("sks: GetSecurityKeys requires a Sign-and-Encrypt channel")
var ErrUnknownGroup = fmt.Errorf("sks: unknown security group")

func (s *Service) GetSecurityKeys(channelMode security.Mode, securityGroupID string, startingTokenID, requestedKeyCount uint32) (*KeysResponse, error) {
	if channelMode != security.ModeSignAndEncrypt {
		return nil, ErrChannelNotSecure
	}

	g, ok := s.Groups[securityGroupID]
	if !ok {
		return nil, ErrUnknownGroup
	}
	if len(g.Keys) == 0 {
		return nil, fmt.Errorf("sks: security group %s has no keys", securityGroupID)
	}

	start := 0
	for i, k := range g.Keys {
		if k.TokenID == startingTokenID {
			start = i
			break
		}
		// "If startingTokenId is unknown, return from the oldest held
		// key" — start stays 0, which is already the oldest.
	}

	var out []security.Key
	if requestedKeyCount == 0 {
		// "RequestedKeyCount == 0 means 'only the current key'"
		out = g.Keys[start : start+1]
	} else {
		n := requestedKeyCount
		if n > s.MaxFutureKeyCount {
			n = s.MaxFutureKeyCount
		}
		end := start + 1 + int(n)
		if end > len(g.Keys) {
			end = len(g.Keys)
		}
		out = g.Keys[start:end]
	}

	raw := make([][]byte, len(out))
	for i, k := range out {
		raw[i] = k.Raw
	}

	return &KeysResponse{
		PolicyURI:     g.PolicyURI,
		FirstTokenID:  out[0].TokenID,
		Keys:          raw,
		TimeToNextKey: g.TimeToNextKey,
		KeyLifetime:   g.KeyLifetime,
	}, nil
}

// Serve registers the Service on the NATS subject as a plain (non-queue)
// subscription handler, decoding requests and replying on the message's reply subject.
func (s *Service) Serve(nc *nats.Client, subject string, channelModeOf func(replySubject string) security.Mode) error {
	return nc.Subscribe(subject, func(_ string, data []byte) {
		var req keysRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return
		}
		mode := security.ModeSignAndEncrypt
		if channelModeOf != nil {
			mode = channelModeOf(subject)
		}
		resp, err := s.GetSecurityKeys(mode, req.SecurityGroupID, req.StartingTokenID, req.RequestedKeyCount)
		if err != nil {
			return
		}
		payload, err := json.Marshal(resp)
		if err != nil {
			return
		}
		_ = nc.Publish(subject+".reply", payload)
	})
}
