// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-pubsub.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pubsub

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHeartbeatWriterFiresEveryKeyFrameCountTicks(t *testing.T) {
	m := &Manager{}
	w := &DataSetWriter{KeyFrameCount: 2}

	assert.Nil(t, m.heartbeatWriter(w), "tick 1 must not yet be due")
	assert.Nil(t, m.heartbeatWriter(w), "tick 2 must not yet be due")
	plan := m.heartbeatWriter(w)
	if assert.NotNil(t, plan, "tick 3 must be due") {
		assert.Same(t, w, plan.Writer)
		assert.Nil(t, plan.Fields)
		assert.EqualValues(t, 0, w.deltaCounter, "the counter must reset once a heartbeat fires")
	}
}

func TestFitByteBudgetNoLimitReturnsAllPlans(t *testing.T) {
	m := &Manager{}
	wg := &WriterGroup{}
	plans := make([]DataSetMessagePlan, 5)
	assert.Equal(t, 5, m.fitByteBudget(wg, plans), "MaxNetworkMessageSize==0 means no cap")
}

func TestFitByteBudgetSinglePlanIsNeverShrunk(t *testing.T) {
	m := &Manager{}
	wg := &WriterGroup{MaxNetworkMessageSize: 1}
	plans := make([]DataSetMessagePlan, 1)
	assert.Equal(t, 1, m.fitByteBudget(wg, plans), "a single message is never split further")
}
