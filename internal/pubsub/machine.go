// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-pubsub.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pubsub

import "github.com/ClusterCockpit/cc-pubsub/pkg/ua"

// driveToTarget is the one generic implementation of spec.md §4.1 shared by
// all five component kinds. It must only ever be called while the Manager's
// mutex is held.
//
// target is the state the caller wants to move towards; for a plain
// "re-evaluate" call (a parent just changed state) callers pass the
// component's *current* state as target, so a component that was Disabled
// stays Disabled while one that was Paused/PreOperational/Operational gets
// re-run through the natural-target computation.
func (m *Manager) driveToTarget(c component, target State) {
	h := c.head()

	if h.transient {
		// A transition already in progress for this component is driving
		// the cascade; nested re-entrant calls fold into it instead of
		// recursing further (spec.md §4.1 "transient" flag).
		return
	}

	newState := target
	if h.custom != nil {
		newState = h.custom(h.ID, h.Kind, h.State, target)
	} else if !h.State.isManual() || target == Disabled {
		// Only the default machine gets to move a manual state forward;
		// moving *into* Disabled is always allowed (it's how "enable"/
		// "disable" and deletion work).
		newState = m.defaultNextState(c, target)
	} else {
		// Disabled/Error only leave on an explicit enable, modelled as the
		// caller passing a non-Disabled/Error target while clearing the
		// manual floor first (see Connection.Enable et al.).
		return
	}

	if h.before != nil {
		newState = h.before(h.ID, h.Kind, h.State, newState)
	}

	if newState == h.State {
		return
	}

	h.transient = true
	defer func() { h.transient = false }()

	oldState := h.State
	h.State = newState

	if err := c.onEnter(newState); err != nil {
		// Failure policy (spec.md §4.1): any failed transition step forces
		// Error, regardless of what was requested.
		h.State = Error
		if cbErr := safeOnEnter(c, Error); cbErr != nil {
			// onEnter(Error) itself must not fail in a well-behaved
			// component; if it does there is nothing left to do but log.
			logf(h, "failed to enter Error state after %v: %v", err, cbErr)
		}
	}

	if h.after != nil {
		h.after(h.ID, h.Kind, h.State, reasonFor(h.State, err(c)))
	} else if m.hooks.AfterStateChange != nil {
		m.hooks.AfterStateChange(h.ID, h.Kind, h.State, reasonFor(h.State, err(c)))
	}

	_ = oldState

	// Cascade: each child is re-evaluated with its own current state as
	// its target, so a Disabled child stays Disabled but anything further
	// along gets a chance to climb or fall back in line with the parent.
	for _, child := range c.children() {
		m.driveToTarget(child, child.head().State)
	}
}

// defaultNextState implements the per-kind transition table of spec.md
// §4.1's table by delegating the precondition check to naturalTarget() and
// then clamping it so a component never advances past the target the caller
// actually asked for (this is what keeps "just re-evaluate" calls from
// accidentally promoting a Paused component all the way to Operational when
// the caller only wanted it re-checked at its current rank).
func (m *Manager) defaultNextState(c component, requestedTarget State) State {
	natural := c.naturalTarget()
	if requestedTarget.isManual() {
		return requestedTarget
	}
	if natural.rank() < requestedTarget.rank() {
		return natural
	}
	return requestedTarget
}

// enable is the "explicit re-enable" spec.md §4.1 requires to leave a manual
// (Disabled/Error) state: it clears the manual floor and then lets the
// normal machine climb as far as its preconditions allow.
func (m *Manager) enable(c component) {
	h := c.head()
	if h.State.isManual() {
		h.State = Paused
	}
	m.driveToTarget(c, Operational)
}

// disable drives a component (and its subtree) to Disabled; always allowed
// regardless of the manual-floor guard (spec.md §4.1).
func (m *Manager) disable(c component) {
	m.driveToTarget(c, Disabled)
}

func safeOnEnter(c component, s State) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = ErrInternalError
		}
	}()
	return c.onEnter(s)
}

// err retrieves the last onEnter failure recorded for error-reason
// propagation. Components that can fail store it themselves (see
// Connection/WriterGroup/ReaderGroup/DataSetReader lastError fields).
func err(c component) ua.StatusCode {
	type hasLastError interface{ lastErrorStatus() ua.StatusCode }
	if le, ok := c.(hasLastError); ok {
		return le.lastErrorStatus()
	}
	return ua.Good
}

func reasonFor(s State, status ua.StatusCode) StateChangeReason {
	if s == Error {
		return ReasonError(status)
	}
	return ReasonNone
}
