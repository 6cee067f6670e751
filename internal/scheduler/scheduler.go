/*
 * MIT License
 *
 * Copyright (c) 2026 Nguyen Thanh Phuong
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 */

// Package scheduler runs named callbacks at fixed intervals from a single
// goroutine.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Func is a scheduled callback.
type Func func(ctx context.Context) error

type job struct {
	name     string
	fn       Func
	interval time.Duration
	lastRun  time.Time
	runs     uint64
	failures uint64
}

// JobStatus describes one registered job.
type JobStatus struct {
	Name     string
	Interval time.Duration
	LastRun  time.Time
	Runs     uint64
	Failures uint64
}

// Timer invokes due callbacks in registration order. Callbacks never run
// concurrently with each other.
type Timer struct {
	mu     sync.Mutex
	jobs   []*job
	now    func() time.Time
	logger *slog.Logger
}

// New creates a Timer using the wall clock.
func New(logger *slog.Logger) *Timer {
	return NewWithClock(logger, time.Now)
}

// NewWithClock creates a Timer with an injected clock.
func NewWithClock(logger *slog.Logger, now func() time.Time) *Timer {
	return &Timer{now: now, logger: logger}
}

// Register adds a callback. With startExpired the callback fires on the
// next CheckDue; otherwise it waits one full interval.
func (t *Timer) Register(name string, fn Func, interval time.Duration, startExpired bool) error {
	if interval <= 0 {
		return fmt.Errorf("scheduler: interval for %q must be positive", name)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	for _, j := range t.jobs {
		if j.name == name {
			return fmt.Errorf("scheduler: job %q already registered", name)
		}
	}

	j := &job{name: name, fn: fn, interval: interval, lastRun: t.now()}
	if startExpired {
		j.lastRun = time.Time{}
	}
	t.jobs = append(t.jobs, j)
	return nil
}

// CheckDue runs every callback whose interval has elapsed and returns how
// many ran. A failing callback is logged and still counts as run.
func (t *Timer) CheckDue(ctx context.Context) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	ran := 0
	for _, j := range t.jobs {
		now := t.now()
		if !j.lastRun.IsZero() && now.Sub(j.lastRun) < j.interval {
			continue
		}

		j.lastRun = now
		j.runs++
		ran++
		if err := j.fn(ctx); err != nil {
			j.failures++
			t.logger.Error("Scheduled job failed", "job", j.name, "error", err)
		}
	}
	return ran
}

// Run calls CheckDue every resolution until ctx is cancelled.
func (t *Timer) Run(ctx context.Context, resolution time.Duration) {
	ticker := time.NewTicker(resolution)
	defer ticker.Stop()

	t.CheckDue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.CheckDue(ctx)
		}
	}
}

// Jobs returns the status of all registered jobs.
func (t *Timer) Jobs() []JobStatus {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]JobStatus, len(t.jobs))
	for i, j := range t.jobs {
		out[i] = JobStatus{
			Name:     j.name,
			Interval: j.interval,
			LastRun:  j.lastRun,
			Runs:     j.runs,
			Failures: j.failures,
		}
	}
	return out
}
