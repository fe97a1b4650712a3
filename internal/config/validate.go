// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-pubsub.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ValidateInline compiles schema ad hoc and validates instance against it,
// for configuration fragments (such as a single connection block under
// test) that don't warrant an entry in pkg/schema's embedded schema set.
func ValidateInline(schema string, instance json.RawMessage) error {
	sch, err := jsonschema.CompileString("schema.json", schema)
	if err != nil {
		return fmt.Errorf("compiling inline schema: %w", err)
	}

	var v any
	if err := json.Unmarshal(instance, &v); err != nil {
		return fmt.Errorf("decoding config instance: %w", err)
	}

	if err := sch.Validate(v); err != nil {
		return fmt.Errorf("%#v", err)
	}
	return nil
}
