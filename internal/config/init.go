// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-pubsub.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

import (
	"bytes"
	"encoding/json"
	"os"

	"github.com/ClusterCockpit/cc-pubsub/pkg/log"
	"github.com/ClusterCockpit/cc-pubsub/pkg/schema"
)

// Keys is the process-wide configuration singleton, loaded by Init the same
// way the teacher loads its own config.Keys: read once at startup, then
// treated as read-only for the rest of the process lifetime.
var Keys schema.PubSubConfig = schema.PubSubConfig{
	Addr:     ":8080",
	LogLevel: "info",
}

// Init reads, schema-validates and decodes flagConfigFile into Keys. A
// missing file is not an error (an empty PubSub instance with no
// Connections is valid); a malformed one is fatal, matching the teacher's
// own startup behavior.
func Init(flagConfigFile string) {
	raw, err := os.ReadFile(flagConfigFile)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Fatal(err)
		}
		return
	}

	if err := schema.Validate(schema.Config, bytes.NewReader(raw)); err != nil {
		log.Fatalf("validate config: %v", err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&Keys); err != nil {
		log.Fatal(err)
	}

	log.SetLogLevel(Keys.LogLevel)
	log.SetLogDateTime(Keys.LogDate)
}
