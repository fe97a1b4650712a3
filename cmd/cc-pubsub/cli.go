// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-pubsub.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package main

import "flag"

var (
	flagVersion     bool
	flagLogDateTime bool
	flagConfigFile  string
	flagEnvFile     string
	flagUser        string
	flagGroup       string
	flagLogLevel    string
)

func cliInit() {
	flag.BoolVar(&flagVersion, "version", false, "Show version information and exit")
	flag.BoolVar(&flagLogDateTime, "logdate", false, "Set this flag to add date and time to log messages")
	flag.StringVar(&flagConfigFile, "config", "./config.json", "Specify alternative path to `config.json`")
	flag.StringVar(&flagEnvFile, "env", "./.env", "Specify alternative path to an environment file")
	flag.StringVar(&flagUser, "user", "", "Drop privileges to this user after opening sockets")
	flag.StringVar(&flagGroup, "group", "", "Drop privileges to this group after opening sockets")
	flag.StringVar(&flagLogLevel, "loglevel", "", "Sets the logging level: `[debug, info, warn, err, crit]` (overrides config)")
	flag.Parse()
}
