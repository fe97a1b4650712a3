// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-pubsub.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pubsub

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Scheme is one of the endpoint URL schemes spec.md §4.7 recognises.
type Scheme string

const (
	SchemeTCP Scheme = "opc.tcp"
	SchemeUDP Scheme = "opc.udp"
	SchemeETH Scheme = "opc.eth"
)

var defaultPort = map[Scheme]uint16{
	SchemeTCP: 4840,
	SchemeUDP: 4840,
	SchemeETH: 0,
}

// EndpointURL is the parsed form of an `opc.tcp://host:port/path`,
// `opc.udp://host:port` or `opc.eth://mac[:vid.pcp]` endpoint (spec.md §4.7).
type EndpointURL struct {
	Scheme Scheme
	Host   string // bracket-stripped for IPv6
	Port   uint16
	Path   string

	// ReceiveAll is UDP's "bind to any, don't filter by source" wildcard:
	// "hostname empty or literal 'localhost'".
	ReceiveAll bool
	Multicast  bool
}

// ParseEndpointURL parses one of the three PubSub transport URL forms.
func ParseEndpointURL(raw string) (EndpointURL, error) {
	idx := strings.Index(raw, "://")
	if idx < 0 {
		return EndpointURL{}, fmt.Errorf("%w: malformed endpoint url %q", ErrInvalidArgument, raw)
	}
	scheme := Scheme(raw[:idx])
	rest := raw[idx+3:]

	switch scheme {
	case SchemeTCP, SchemeUDP:
		return parseHostPortURL(scheme, rest)
	case SchemeETH:
		return parseEthURL(rest)
	default:
		return EndpointURL{}, fmt.Errorf("%w: unrecognised scheme %q", ErrInvalidArgument, scheme)
	}
}

func parseHostPortURL(scheme Scheme, rest string) (EndpointURL, error) {
	path := ""
	if slash := strings.Index(rest, "/"); slash >= 0 {
		path = rest[slash:]
		rest = rest[:slash]
	}

	host := rest
	portStr := ""
	if strings.HasPrefix(rest, "[") {
		// Bracketed IPv6: [::1]:1234 or just [::1].
		end := strings.Index(rest, "]")
		if end < 0 {
			return EndpointURL{}, fmt.Errorf("%w: unterminated ipv6 literal in %q", ErrInvalidArgument, rest)
		}
		host = rest[1:end]
		if len(rest) > end+1 && rest[end+1] == ':' {
			portStr = rest[end+2:]
		}
	} else if h, p, err := net.SplitHostPort(rest); err == nil {
		host, portStr = h, p
	}

	port := defaultPort[scheme]
	if portStr != "" {
		p, err := strconv.ParseUint(portStr, 10, 16)
		if err != nil {
			return EndpointURL{}, fmt.Errorf("%w: invalid port %q", ErrInvalidArgument, portStr)
		}
		port = uint16(p)
	}

	u := EndpointURL{Scheme: scheme, Host: host, Port: port, Path: path}
	if scheme == SchemeUDP {
		u.ReceiveAll = host == "" || host == "localhost"
		if ip := net.ParseIP(host); ip != nil {
			u.Multicast = ip.IsMulticast()
		}
	}
	return u, nil
}

func parseEthURL(rest string) (EndpointURL, error) {
	mac := rest
	vidpcp := ""
	if colon := strings.LastIndex(rest, ":"); colon >= 0 && strings.Contains(rest[colon+1:], ".") {
		mac = rest[:colon]
		vidpcp = rest[colon+1:]
	}
	if _, err := net.ParseMAC(mac); err != nil && mac != "" {
		return EndpointURL{}, fmt.Errorf("%w: invalid ethernet address %q", ErrInvalidArgument, mac)
	}
	return EndpointURL{Scheme: SchemeETH, Host: mac, Path: vidpcp}, nil
}
