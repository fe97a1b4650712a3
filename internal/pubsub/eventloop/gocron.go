// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-pubsub.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package eventloop

import (
	"sync"
	"time"

	"github.com/ClusterCockpit/cc-pubsub/pkg/log"
	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
)

// GocronEventLoop implements EventLoop on top of a gocron.Scheduler, the
// same library the teacher's internal/taskManager uses for its recurring
// housekeeping jobs. gocron runs each job on its own goroutine; callers are
// expected to serialize through the Manager's mutex the way a real
// single-threaded EventLoop's timer callback would (spec.md §5), which is
// why every Manager entry point, Start/Stop included, takes the lock first
// thing.
type GocronEventLoop struct {
	mu        sync.Mutex
	scheduler gocron.Scheduler
	jobs      map[TimerID]uuid.UUID
	nextID    TimerID
}

func NewGocronEventLoop() (*GocronEventLoop, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	l := &GocronEventLoop{
		scheduler: s,
		jobs:      make(map[TimerID]uuid.UUID),
	}
	s.Start()
	return l, nil
}

func (l *GocronEventLoop) AddTimer(interval time.Duration, cb func()) TimerID {
	l.mu.Lock()
	defer l.mu.Unlock()

	job, err := l.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(cb),
	)
	if err != nil {
		log.Errorf("eventloop: failed to schedule recurring timer (interval=%s): %v", interval, err)
		return 0
	}

	l.nextID++
	id := l.nextID
	l.jobs[id] = job.ID()
	return id
}

func (l *GocronEventLoop) AddOneShot(delay time.Duration, cb func()) TimerID {
	l.mu.Lock()
	defer l.mu.Unlock()

	job, err := l.scheduler.NewJob(
		gocron.OneTimeJob(gocron.OneTimeJobStartDateTime(time.Now().Add(delay))),
		gocron.NewTask(cb),
	)
	if err != nil {
		log.Errorf("eventloop: failed to schedule one-shot timer (delay=%s): %v", delay, err)
		return 0
	}

	l.nextID++
	id := l.nextID
	l.jobs[id] = job.ID()
	return id
}

func (l *GocronEventLoop) ModifyTimer(id TimerID, interval time.Duration, policy Policy) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	gid, ok := l.jobs[id]
	if !ok {
		return nil
	}

	// PolicyCurrentTime is the only policy spec.md §6 names: the new
	// period is measured from now, not from the job's previous scheduled
	// time, so a long-suspended timer does not fire a burst of catch-up
	// ticks.
	_ = policy
	job, err := l.scheduler.Update(gid, gocron.DurationJob(interval), gocron.NewTask(func() {}))
	if err != nil {
		return err
	}
	l.jobs[id] = job.ID()
	return nil
}

func (l *GocronEventLoop) RemoveTimer(id TimerID) {
	l.mu.Lock()
	defer l.mu.Unlock()

	gid, ok := l.jobs[id]
	if !ok {
		return
	}
	delete(l.jobs, id)
	_ = l.scheduler.RemoveJob(gid)
}

func (l *GocronEventLoop) AddDelayedCallback(cb func()) {
	l.AddOneShot(0, cb)
}

func (l *GocronEventLoop) Now() time.Time { return time.Now() }

func (l *GocronEventLoop) NowMonotonic() time.Time { return time.Now() }

func (l *GocronEventLoop) Shutdown() error {
	return l.scheduler.Shutdown()
}
