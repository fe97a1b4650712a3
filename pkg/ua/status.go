// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-pubsub.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package ua provides the small set of OPC UA wire primitives (NodeId,
// Variant, DataValue, StatusCode, PublisherId) that both the PubSub runtime
// and, eventually, any client tooling built against it would need. It has no
// dependency on the runtime itself.
package ua

import "fmt"

// StatusCode is the 32-bit OPC UA status code. The top two bits classify it
// as Good (00), Uncertain (01) or Bad (10/11); everything else is payload
// the server core is free to define. Only the codes PubSub itself raises or
// inspects are named here.
type StatusCode uint32

const (
	Good                      StatusCode = 0x00000000
	BadInternalError          StatusCode = 0x80020000
	BadOutOfMemory            StatusCode = 0x80030000
	BadInvalidArgument        StatusCode = 0x80AB0000
	BadNotFound               StatusCode = 0x803E0000
	BadNotImplemented         StatusCode = 0x80400000
	BadTypeMismatch           StatusCode = 0x80740000
	BadConfigurationError     StatusCode = 0x810D0000
	BadBrowseNameDuplicated   StatusCode = 0x80830000
	BadTimeout                StatusCode = 0x800A0000
	BadSecurityPolicyRejected StatusCode = 0x80550000
	BadSecurityModeInsufficient StatusCode = 0x80E30000
	BadSecurityModeRejected     StatusCode = 0x80E40000
	BadConnectionClosed       StatusCode = 0x80AE0000
	BadShutdown               StatusCode = 0x802A0000
	BadDecodingError          StatusCode = 0x80060000
	BadEncodingLimitsExceeded StatusCode = 0x80080000
	BadCommunicationError     StatusCode = 0x80050000
)

var names = map[StatusCode]string{
	Good:                        "Good",
	BadInternalError:            "BadInternalError",
	BadOutOfMemory:              "BadOutOfMemory",
	BadInvalidArgument:          "BadInvalidArgument",
	BadNotFound:                 "BadNotFound",
	BadNotImplemented:           "BadNotImplemented",
	BadTypeMismatch:             "BadTypeMismatch",
	BadConfigurationError:       "BadConfigurationError",
	BadBrowseNameDuplicated:     "BadBrowseNameDuplicated",
	BadTimeout:                  "BadTimeout",
	BadSecurityPolicyRejected:   "BadSecurityPolicyRejected",
	BadSecurityModeInsufficient: "BadSecurityModeInsufficient",
	BadSecurityModeRejected:     "BadSecurityModeRejected",
	BadConnectionClosed:         "BadConnectionClosed",
	BadShutdown:                 "BadShutdown",
	BadDecodingError:            "BadDecodingError",
	BadEncodingLimitsExceeded:   "BadEncodingLimitsExceeded",
	BadCommunicationError:       "BadCommunicationError",
}

// IsGood reports whether the top two bits of the code are 00.
func (s StatusCode) IsGood() bool { return s&0xC0000000 == 0x00000000 }

// IsBad reports whether the top two bits of the code are 10 or 11.
func (s StatusCode) IsBad() bool { return s&0x80000000 != 0 }

func (s StatusCode) String() string {
	if n, ok := names[s]; ok {
		return n
	}
	return fmt.Sprintf("0x%08X", uint32(s))
}

// Error lets a StatusCode be returned anywhere a plain `error` is expected;
// Good never satisfies errors.Is against anything because callers are
// expected to check IsGood/IsBad before wrapping it as an error.
func (s StatusCode) Error() string { return s.String() }
