// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-pubsub.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ClusterCockpit/cc-pubsub/internal/config"
	"github.com/ClusterCockpit/cc-pubsub/internal/pubsub/diagnostics"
	"github.com/ClusterCockpit/cc-pubsub/internal/runtimeEnv"
	"github.com/ClusterCockpit/cc-pubsub/pkg/log"
)

const configString = `
{
  "addr": "127.0.0.1:8084",
  "connections": []
}
`

var date string

func main() {
	cliInit()

	if flagVersion {
		fmt.Printf("cc-pubsub, version %s\n", date)
		os.Exit(0)
	}

	if err := runtimeEnv.LoadEnv(flagEnvFile); err != nil && !os.IsNotExist(err) {
		log.Fatalf("parsing %s file failed: %v", flagEnvFile, err)
	}

	if _, err := os.Stat(flagConfigFile); err != nil && os.IsNotExist(err) {
		log.Warnf("no %s found, writing a minimal default", flagConfigFile)
		if werr := os.WriteFile(flagConfigFile, []byte(configString), 0o644); werr != nil {
			log.Fatalf("writing default %s failed: %v", flagConfigFile, werr)
		}
	}

	config.Init(flagConfigFile)
	if flagLogLevel != "" {
		log.SetLogLevel(flagLogLevel)
	}
	if flagLogDateTime {
		log.SetLogDateTime(true)
	}

	mgr, loop, err := newManager()
	if err != nil {
		log.Fatalf("failed to initialize pubsub manager: %v", err)
	}
	mgr.Diagnostics = diagnostics.Default

	keyStorageOf := buildKeyStorageFactory(loop, config.Keys.SksAddr, config.Keys.SksSubject)
	if err := config.Build(mgr, &config.Keys, keyStorageOf); err != nil {
		log.Fatalf("failed to apply configuration: %v", err)
	}

	mgr.Start()
	log.Info("pubsub manager started")

	setupServer(mgr)
	go serverStart()

	runtimeEnv.SystemdNotifiy(true, "READY=1")

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	<-sigs

	log.Info("shutting down...")
	runtimeEnv.SystemdNotifiy(false, "STOPPING=1")
	serverShutdown()
	mgr.Stop()
}
