// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-pubsub.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package configfile implements the binary PubSubConfigurationDataType file
// format (spec.md §6): a runtime save/restore counterpart to the JSON
// configuration internal/config loads at startup. The wire shape is a small
// ExtensionObject-style envelope (magic, format version, length-prefixed
// body) wrapping the same component tree the JSON schema describes. Only the
// envelope uses fixed-width little-endian primitives, like
// internal/pubsub/uadp does for NetworkMessages; the body itself is the
// schema.PubSubConfig JSON encoding.
package configfile

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"github.com/ClusterCockpit/cc-pubsub/pkg/schema"
)

// magic identifies a cc-pubsub PubSubConfigurationDataType file. Chosen to
// be readable as ASCII ("PSCF") in a hex dump.
var magic = [4]byte{'P', 'S', 'C', 'F'}

// formatVersion is bumped whenever the body encoding below changes
// incompatibly.
const formatVersion uint16 = 1

// Save writes cfg's binary PubSubConfigurationDataType encoding to w
// (spec.md §6, scenario 6's "save current configuration to a file").
func Save(w io.Writer, cfg *schema.PubSubConfig) error {
	body, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("configfile: marshal body: %w", err)
	}

	var hdr bytes.Buffer
	hdr.Write(magic[:])
	if err := binary.Write(&hdr, binary.LittleEndian, formatVersion); err != nil {
		return err
	}
	if err := binary.Write(&hdr, binary.LittleEndian, uint32(len(body))); err != nil {
		return err
	}
	if _, err := w.Write(hdr.Bytes()); err != nil {
		return fmt.Errorf("configfile: write header: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("configfile: write body: %w", err)
	}
	return nil
}

// Load reads a PubSubConfigurationDataType file previously written by Save
// (spec.md §6, scenario 6's "load a configuration from a file" / "restore").
func Load(r io.Reader) (*schema.PubSubConfig, error) {
	var gotMagic [4]byte
	if _, err := io.ReadFull(r, gotMagic[:]); err != nil {
		return nil, fmt.Errorf("configfile: read magic: %w", err)
	}
	if gotMagic != magic {
		return nil, fmt.Errorf("configfile: not a PubSubConfigurationDataType file")
	}

	var version uint16
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return nil, fmt.Errorf("configfile: read version: %w", err)
	}
	if version != formatVersion {
		return nil, fmt.Errorf("configfile: unsupported format version %d", version)
	}

	var length uint32
	if err := binary.Read(r, binary.LittleEndian, &length); err != nil {
		return nil, fmt.Errorf("configfile: read length: %w", err)
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("configfile: read body: %w", err)
	}

	var cfg schema.PubSubConfig
	if err := json.Unmarshal(body, &cfg); err != nil {
		return nil, fmt.Errorf("configfile: unmarshal body: %w", err)
	}
	return &cfg, nil
}
