// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-pubsub.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package pubsub implements the OPC UA PubSub runtime: the containment tree
// of Connections, WriterGroups, ReaderGroups, DataSetWriters, DataSetReaders,
// PublishedDataSets and SubscribedDataSets described in spec.md, their
// five-state lifecycle machine, and the periodic publish / demultiplexing
// receive pipelines built on top of the internal/pubsub/uadp wire codec.
//
// The runtime is single-threaded-cooperative (spec.md §5): every exported
// Manager method takes the Manager's mutex and runs to completion before
// releasing it. Timers and transport callbacks delivered by
// internal/pubsub/eventloop and internal/pubsub/transport re-enter the
// Manager the same way an application goroutine would.
package pubsub
