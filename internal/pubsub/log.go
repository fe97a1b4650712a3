// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-pubsub.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pubsub

import "github.com/ClusterCockpit/cc-pubsub/pkg/log"

// logf prefixes every runtime log line with the component's kind+id, the
// way spec.md §7 requires ("Log messages carry the component's log-prefix
// string").
func logf(h *Head, format string, args ...interface{}) {
	log.Warnf(h.logPrefix+": "+format, args...)
}

func debugf(h *Head, format string, args ...interface{}) {
	log.Debugf(h.logPrefix+": "+format, args...)
}
