// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-pubsub.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package configfile_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ClusterCockpit/cc-pubsub/internal/pubsub/configfile"
	"github.com/ClusterCockpit/cc-pubsub/pkg/schema"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	cfg := &schema.PubSubConfig{
		Addr: "127.0.0.1:8084",
		PublishedDataSets: map[string]schema.PublishedDataSetConfig{
			"temps": {
				Fields: []schema.FieldConfig{
					{Name: "t1", TargetNodeID: "ns=2;s=Temperature", BuiltinType: "Double"},
				},
			},
		},
		Connections: []schema.ConnectionConfig{
			{
				Name:        "conn1",
				ProfileURI:  "http://opcfoundation.org/UA-Profile/Transport/pubsub-udp-uadp",
				PublisherID: "1",
				Address:     "opc.udp://239.0.0.1:4840",
			},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, configfile.Save(&buf, cfg))

	got, err := configfile.Load(&buf)
	require.NoError(t, err)
	require.Equal(t, cfg.Addr, got.Addr)
	require.Len(t, got.Connections, 1)
	require.Equal(t, cfg.Connections[0].Name, got.Connections[0].Name)
	require.Contains(t, got.PublishedDataSets, "temps")
}

func TestLoadRejectsBadMagic(t *testing.T) {
	_, err := configfile.Load(bytes.NewReader([]byte("not-a-config-file-at-all")))
	require.Error(t, err)
}

func TestLoadRejectsTruncated(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, configfile.Save(&buf, &schema.PubSubConfig{}))
	truncated := buf.Bytes()[:buf.Len()-2]
	_, err := configfile.Load(bytes.NewReader(truncated))
	require.Error(t, err)
}
