// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-pubsub.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package security

import (
	"sync"
	"time"

	"github.com/ClusterCockpit/cc-pubsub/internal/pubsub/eventloop"
	"github.com/ClusterCockpit/cc-pubsub/pkg/log"
)

// Key is one entry in a KeyStorage's key series.
type Key struct {
	TokenID uint32
	Raw     []byte
}

// Context is the per-group crypto context a WriterGroup/ReaderGroup holds a
// weak reference to (spec.md §3: "a weak reference to a security policy and
// its per-group context"). Multiple groups sharing a securityGroupId each
// get their own Context but all point at the same KeyStorage.
type Context struct {
	mu         sync.RWMutex
	Policy     Policy
	Mode       Mode
	storage    *KeyStorage
	tokenID    uint32
	signingKey []byte
	encKey     []byte
}

func NewContext(policy Policy, mode Mode, storage *KeyStorage) *Context {
	c := &Context{Policy: policy, Mode: mode, storage: storage}
	storage.registerContext(c)
	return c
}

// installKey derives and caches the signing/encryption subkeys for a newly
// active key. KeyStorage calls it with its own lock held (registerContext)
// or after releasing it (Install, rollover), so Context.mu alone guards the
// cached subkeys here.
func (c *Context) installKey(k Key) error {
	signingKey, encKey, err := c.Policy.DeriveKeys(k.Raw)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.tokenID = k.TokenID
	c.signingKey = signingKey
	c.encKey = encKey
	c.mu.Unlock()
	return nil
}

// Ready reports whether a key has been installed yet (spec.md §4.1:
// WriterGroup/ReaderGroup "awaiting first key" PreOperational gate).
func (c *Context) Ready() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.signingKey != nil
}

func (c *Context) TokenID() uint32 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tokenID
}

// SignatureSize delegates to the underlying Policy, so wire-codec callers
// don't need to hold a reference to the Policy separately from the Context.
func (c *Context) SignatureSize() int { return c.Policy.SignatureSize() }

func (c *Context) Sign(data []byte) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Policy.Sign(c.signingKey, data)
}

func (c *Context) Verify(data, sig []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Policy.Verify(c.signingKey, data, sig)
}

func (c *Context) Encrypt(nonce, plaintext []byte) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Policy.Encrypt(c.encKey, nonce, plaintext)
}

func (c *Context) Decrypt(nonce, ciphertext []byte) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Policy.Decrypt(c.encKey, nonce, ciphertext)
}

// KeyStorage is the reference-counted, ordered key series for one
// securityGroupId (spec.md §4.5, §9: "Reference counting on KeyStorage").
type KeyStorage struct {
	mu              sync.Mutex
	SecurityGroupID string
	PolicyURI       string
	refCount        int

	keys        []Key
	activeIndex int

	timeToNextKey time.Duration
	keyLifetime   time.Duration

	contexts      []*Context
	loop          eventloop.EventLoop
	rolloverTimer eventloop.TimerID

	// RequestMore is called when the future-key list is exhausted and more
	// keys need to be requested from the SKS (spec.md §4.5: "schedule a
	// request to the SKS for more (outside this spec's scope)").
	RequestMore func(groupID string)
}

func NewKeyStorage(groupID, policyURI string) *KeyStorage {
	return &KeyStorage{SecurityGroupID: groupID, PolicyURI: policyURI, activeIndex: -1}
}

func (k *KeyStorage) AddRef() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.refCount++
}

// Release decrements the refcount and reports whether it reached zero, at
// which point the manager may drop the storage from its securityGroupId map.
func (k *KeyStorage) Release() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.refCount--
	if k.refCount <= 0 {
		if k.loop != nil && k.rolloverTimer != 0 {
			k.loop.RemoveTimer(k.rolloverTimer)
		}
		return true
	}
	return false
}

func (k *KeyStorage) registerContext(c *Context) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.contexts = append(k.contexts, c)
	if k.activeIndex >= 0 && k.activeIndex < len(k.keys) {
		_ = c.installKey(k.keys[k.activeIndex])
	}
}

// Install sets the key series as delivered by GetSecurityKeys (spec.md
// §4.5): current key (first), the ordered future keys, and the two
// durations that drive rollover scheduling.
func (k *KeyStorage) Install(loop eventloop.EventLoop, current Key, future []Key, timeToNextKey, keyLifetime time.Duration) {
	k.mu.Lock()
	k.loop = loop
	k.keys = append([]Key{current}, future...)
	k.activeIndex = 0
	k.timeToNextKey = timeToNextKey
	k.keyLifetime = keyLifetime
	contexts := append([]*Context(nil), k.contexts...)
	k.mu.Unlock()

	for _, c := range contexts {
		if err := c.installKey(current); err != nil {
			log.Errorf("security: failed to install key for group %s: %v", k.SecurityGroupID, err)
		}
	}

	k.scheduleRollover(timeToNextKey)
}

func (k *KeyStorage) scheduleRollover(delay time.Duration) {
	if k.loop == nil || delay <= 0 {
		return
	}
	k.mu.Lock()
	if k.rolloverTimer != 0 {
		k.loop.RemoveTimer(k.rolloverTimer)
	}
	k.mu.Unlock()

	id := k.loop.AddOneShot(delay, k.rollover)
	k.mu.Lock()
	k.rolloverTimer = id
	k.mu.Unlock()
}

// rollover advances the active pointer, (re)installs the new key into every
// registered Context, and reschedules itself at keyLifetime (spec.md §4.5).
func (k *KeyStorage) rollover() {
	k.mu.Lock()
	if k.activeIndex+1 >= len(k.keys) {
		k.mu.Unlock()
		if k.RequestMore != nil {
			k.RequestMore(k.SecurityGroupID)
		}
		return
	}
	k.activeIndex++
	next := k.keys[k.activeIndex]
	lifetime := k.keyLifetime
	contexts := append([]*Context(nil), k.contexts...)
	k.mu.Unlock()

	for _, c := range contexts {
		if err := c.installKey(next); err != nil {
			log.Errorf("security: key rollover install failed for group %s: %v", k.SecurityGroupID, err)
		}
	}

	k.scheduleRollover(lifetime)
}

func (k *KeyStorage) Active() (Key, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.activeIndex < 0 || k.activeIndex >= len(k.keys) {
		return Key{}, false
	}
	return k.keys[k.activeIndex], true
}
