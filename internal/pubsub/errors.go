// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-pubsub.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pubsub

import (
	"errors"

	"github.com/ClusterCockpit/cc-pubsub/pkg/ua"
)

// Sentinel errors wrapping the spec.md §7 status-code taxonomy so callers
// can use errors.Is the way the teacher's repository package does for
// "not found" conditions.
var (
	ErrInvalidArgument          = statusError{ua.BadInvalidArgument, "invalid argument"}
	ErrNotFound                 = statusError{ua.BadNotFound, "component not found"}
	ErrNotImplemented           = statusError{ua.BadNotImplemented, "not implemented"}
	ErrOutOfMemory              = statusError{ua.BadOutOfMemory, "out of memory"}
	ErrInternalError            = statusError{ua.BadInternalError, "internal error"}
	ErrTypeMismatch             = statusError{ua.BadTypeMismatch, "type mismatch"}
	ErrConfigurationError       = statusError{ua.BadConfigurationError, "configuration error"}
	ErrBrowseNameDuplicated     = statusError{ua.BadBrowseNameDuplicated, "name already in use"}
	ErrTimeout                  = statusError{ua.BadTimeout, "receive timeout"}
	ErrSecurityPolicyRejected   = statusError{ua.BadSecurityPolicyRejected, "security policy rejected"}
	ErrSecurityModeInsufficient = statusError{ua.BadSecurityModeInsufficient, "security mode insufficient"}
	ErrSecurityModeRejected     = statusError{ua.BadSecurityModeRejected, "security mode rejected"}
	ErrConnectionClosed         = statusError{ua.BadConnectionClosed, "connection closed"}
	ErrShutdown                 = statusError{ua.BadShutdown, "manager shutting down"}
)

type statusError struct {
	code ua.StatusCode
	msg  string
}

func (e statusError) Error() string    { return e.msg }
func (e statusError) Status() ua.StatusCode { return e.code }

// StatusOf extracts the OPC UA status code carried by err, or BadInternalError
// if err does not carry one.
func StatusOf(err error) ua.StatusCode {
	if err == nil {
		return ua.Good
	}
	var se statusError
	if errors.As(err, &se) {
		return se.code
	}
	return ua.BadInternalError
}
