// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-pubsub.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pubsub

import "github.com/ClusterCockpit/cc-pubsub/pkg/ua"

// State is one of the five lifecycle states every component kind shares
// (spec.md §4.1).
type State byte

const (
	Disabled State = iota
	Error
	Paused
	PreOperational
	Operational
)

func (s State) String() string {
	switch s {
	case Disabled:
		return "Disabled"
	case Error:
		return "Error"
	case Paused:
		return "Paused"
	case PreOperational:
		return "PreOperational"
	case Operational:
		return "Operational"
	default:
		return "Unknown"
	}
}

// rank orders states for the parent<=child invariant of spec.md §8:
// "Disabled=Error < Paused < PreOperational < Operational". Disabled and
// Error are both "manual" floors and compare equal for that invariant.
func (s State) rank() int {
	switch s {
	case Disabled, Error:
		return 0
	case Paused:
		return 1
	case PreOperational:
		return 2
	case Operational:
		return 3
	default:
		return -1
	}
}

// LessOperationalThan reports whether s is strictly less operational than o,
// i.e. s.rank() < o.rank().
func (s State) LessOperationalThan(o State) bool { return s.rank() < o.rank() }

// isManual reports whether leaving this state requires an explicit enable
// (spec.md §4.1: "Disabled and Error are 'manual'").
func (s State) isManual() bool { return s == Disabled || s == Error }

// StateChangeReason is passed to the after-hook on every transition; for
// transitions into Error it carries the failing status code (spec.md §4.1).
type StateChangeReason struct {
	Status ua.StatusCode
}

var ReasonNone = StateChangeReason{Status: ua.Good}

func ReasonError(s ua.StatusCode) StateChangeReason { return StateChangeReason{Status: s} }

// BeforeStateChangeHook may remap/veto the target state before it is
// applied (spec.md §4.1 hook point 1).
type BeforeStateChangeHook func(id ComponentId, kind Kind, current, target State) State

// StateChangeHook is the after-hook, invoked exactly once per actual state
// change (spec.md §4.1 hook point 2).
type StateChangeHook func(id ComponentId, kind Kind, newState State, reason StateChangeReason)

// CustomStateMachine, when set on a component, fully replaces the default
// transition rules for it (spec.md §4.1: "may also provide a custom state
// machine function").
type CustomStateMachine func(id ComponentId, kind Kind, current, target State) State
