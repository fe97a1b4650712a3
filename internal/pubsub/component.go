// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-pubsub.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pubsub

import "fmt"

// Head is embedded by the five component kinds that take part in the
// lifecycle state machine (Connection, WriterGroup, ReaderGroup,
// DataSetWriter, DataSetReader); PublishedDataSet and SubscribedDataSet do
// not embed it. It carries everything the generic state machine in
// machine.go needs regardless of kind.
type Head struct {
	ID        ComponentId
	Kind      Kind
	State     State
	logPrefix string

	// transient suppresses recursive after-hook notifications while a
	// cascade triggered by this component's own transition is still in
	// flight (spec.md §4.1: "To prevent re-entrant callback storms").
	transient bool

	deletePending bool

	before BeforeStateChangeHook
	after  StateChangeHook
	custom CustomStateMachine
}

func newHead(id ComponentId, kind Kind) Head {
	h := Head{ID: id, Kind: kind, State: Disabled}
	h.logPrefix = fmt.Sprintf("%s(%s)", kind, id)
	return h
}

// LogPrefix is the precomputed "kind + id" string every log line about this
// component should lead with (spec.md §3, §7).
func (h *Head) LogPrefix() string { return h.logPrefix }

func (h *Head) IsDeletePending() bool { return h.deletePending }

// component is implemented by Connection, WriterGroup, ReaderGroup,
// DataSetWriter, DataSetReader. PublishedDataSet/SubscribedDataSet are leaf
// data containers (spec.md §3) and are not part of the state-machine tree.
type component interface {
	head() *Head
	// naturalTarget computes, from the component's own configuration and
	// its parent's *current* state, the state the default machine would
	// drive it to if it is not itself Disabled/Error. It must not mutate
	// anything (spec.md §4.1 transition-rule table).
	naturalTarget() State
	// onEnter runs the side effects of actually reaching a state (open/
	// close channels, schedule/cancel timers). An error forces Error.
	onEnter(s State) error
	// children returns the components one level below this one in the
	// containment tree, for cascade (spec.md §4.1: "triggers re-evaluation
	// of each child").
	children() []component
}
