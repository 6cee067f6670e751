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

package collector

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/phuonguno98/procstatd/internal/sampler"
	"github.com/phuonguno98/procstatd/pkg/metrics"
)

// CounterStore is the durable side of the counter cache.
type CounterStore interface {
	LoadAll(ctx context.Context) (map[metrics.Key]metrics.Record, error)
	BulkUpsert(ctx context.Context, records map[metrics.Key]metrics.Record) error
}

// Options tunes an Aggregator.
type Options struct {
	Window int              // history entries needed before rates are reported
	Clock  func() time.Time // defaults to time.Now
}

// Stats describes the aggregator's own activity.
type Stats struct {
	Passes          uint64
	FailedPasses    uint64
	LastCollect     time.Time
	CollectDuration time.Duration
	LastCollectErr  string
	Persists        uint64
	FailedPersists  uint64
	LastPersist     time.Time
	LastPersistErr  string
	Keys            int
	Processes       int
	HistoryLen      int
}

// Aggregator turns process samples into per-(user, process) counters that
// never decrease, and keeps a short history for rate computation.
//
// All methods are safe for concurrent use; they are serialized by a
// single mutex so a collect pass never interleaves with a persist or a
// snapshot read.
type Aggregator struct {
	mu       sync.Mutex
	sampler  sampler.Sampler
	store    CounterStore
	logger   *slog.Logger
	window   int
	now      func() time.Time
	cache    map[metrics.Key]metrics.Record
	previous sampler.Table
	history  *history
	stats    Stats
}

// NewAggregator seeds the counter cache from store.
func NewAggregator(ctx context.Context, s sampler.Sampler, store CounterStore, opts Options, logger *slog.Logger) (*Aggregator, error) {
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	cache, err := store.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load counters: %w", err)
	}
	if cache == nil {
		cache = make(map[metrics.Key]metrics.Record)
	}
	logger.Info("Counter cache loaded", "keys", len(cache))

	return &Aggregator{
		sampler:  s,
		store:    store,
		logger:   logger,
		window:   opts.Window,
		now:      opts.Clock,
		cache:    cache,
		previous: sampler.Table{},
		history:  newHistory(opts.Window),
		stats:    Stats{Keys: len(cache)},
	}, nil
}

// bucket accumulates one pass for one key.
type bucket struct {
	delta metrics.Counters
	raw   metrics.Counters
	procs int
}

// CollectOnce samples the process table and folds the result into the
// counter cache. If sampling fails nothing is changed.
func (a *Aggregator) CollectOnce(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	started := a.now()
	current, err := a.sampler.Sample()
	if err != nil {
		a.stats.FailedPasses++
		a.stats.LastCollectErr = err.Error()
		return fmt.Errorf("collect: %w", err)
	}

	buckets := a.deltas(current)
	a.correctDeadChildren(current, buckets)
	a.reconcile(buckets)
	a.record(started, buckets)
	a.previous = current

	a.stats.Passes++
	a.stats.LastCollect = started
	a.stats.CollectDuration = a.now().Sub(started)
	a.stats.LastCollectErr = ""
	a.stats.Keys = len(a.cache)
	a.stats.Processes = len(current)
	a.stats.HistoryLen = a.history.len()
	return nil
}

// deltas groups per-pid counter increases by key. A pid not present in
// the previous sample contributes its whole counter.
func (a *Aggregator) deltas(current sampler.Table) map[metrics.Key]*bucket {
	buckets := make(map[metrics.Key]*bucket)
	for pid := range current {
		proc := current[pid]
		key := proc.Key()
		b, ok := buckets[key]
		if !ok {
			b = &bucket{}
			buckets[key] = b
		}
		b.procs++
		b.raw = b.raw.Add(proc.Counters)

		prev, seen := a.previous[pid]
		for _, f := range metrics.Families {
			if f.IsIO() && !proc.HasIO {
				continue
			}
			if !seen || (f.IsIO() && !prev.HasIO) {
				b.delta[f] += proc.Counters[f]
				continue
			}
			b.delta[f] += metrics.ClampedDelta(proc.Counters[f], prev.Counters[f])
		}
	}
	return buckets
}

// correctDeadChildren removes the I/O of exited children from their
// parent's bucket. The kernel folds a reaped child's I/O into the
// parent, and the child's bucket already counted it. CPU ticks are left
// alone.
func (a *Aggregator) correctDeadChildren(current sampler.Table, buckets map[metrics.Key]*bucket) {
	for pid := range a.previous {
		if _, alive := current[pid]; alive {
			continue
		}
		dead := a.previous[pid]
		if !dead.HasIO {
			continue
		}
		parent, ok := current[dead.PPID]
		if !ok {
			continue
		}
		b, ok := buckets[parent.Key()]
		if !ok {
			continue
		}
		for _, f := range metrics.Families {
			if !f.IsIO() {
				continue
			}
			b.delta[f] = metrics.ClampedDelta(b.delta[f], dead.Counters[f])
		}
	}
}

func (a *Aggregator) reconcile(buckets map[metrics.Key]*bucket) {
	for key, rec := range a.cache {
		if _, ok := buckets[key]; !ok && rec.LiveProcs != 0 {
			rec.LiveProcs = 0
			a.cache[key] = rec
		}
	}
	for key, b := range buckets {
		rec := a.cache[key]
		rec.Counter = rec.Counter.Add(b.delta)
		rec.Last = b.raw
		rec.LiveProcs = b.procs
		a.cache[key] = rec
	}
}

func (a *Aggregator) record(at time.Time, buckets map[metrics.Key]*bucket) {
	var prev *historyEntry
	if a.history.len() > 0 {
		prev = a.history.newest()
	}

	entry := historyEntry{At: at, Values: make(map[metrics.Key]historyValue, len(a.cache))}
	for key, rec := range a.cache {
		v := historyValue{Counter: rec.Counter, Procs: rec.LiveProcs}
		if prev != nil {
			v.Rate = metrics.CalculateRates(prev.Values[key].Counter, rec.Counter, at.Sub(prev.At))
		}
		entry.Values[key] = v
	}
	a.history.push(entry)
}

// Persist writes the whole counter cache to the store. On failure the
// cache is kept and the next call retries everything.
func (a *Aggregator) Persist(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	records := make(map[metrics.Key]metrics.Record, len(a.cache))
	for key, rec := range a.cache {
		records[key] = rec
	}

	if err := a.store.BulkUpsert(ctx, records); err != nil {
		a.stats.FailedPersists++
		a.stats.LastPersistErr = err.Error()
		a.logger.Error("Failed to persist counters", "keys", len(records), "error", err)
		return fmt.Errorf("persist: %w", err)
	}

	a.stats.Persists++
	a.stats.LastPersist = a.now()
	a.stats.LastPersistErr = ""
	a.logger.Debug("Counters persisted", "keys", len(records))
	return nil
}

// Snapshot returns rates over the history window and the newest
// cumulative counters. It is empty until the window has filled.
func (a *Aggregator) Snapshot() metrics.Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	snap := metrics.Snapshot{TakenAt: a.now()}
	if !a.history.full() {
		return snap
	}

	oldest, newest := a.history.oldest(), a.history.newest()
	elapsed := newest.At.Sub(oldest.At)
	snap.TakenAt = newest.At
	snap.Window = elapsed

	byUser := make(map[string]*metrics.UserStats)
	for key, nv := range newest.Values {
		ov := oldest.Values[key]
		ps := metrics.ProcStats{
			Name:    key.Process,
			Rate:    metrics.CalculateRates(ov.Counter, nv.Counter, elapsed),
			Counter: nv.Counter,
			Procs:   nv.Procs,
		}

		u, ok := byUser[key.User]
		if !ok {
			u = &metrics.UserStats{User: key.User, Total: metrics.ProcStats{Name: metrics.TotalName}}
			byUser[key.User] = u
		}
		u.Processes = append(u.Processes, ps)
		u.Total.Rate = u.Total.Rate.Add(ps.Rate)
		u.Total.Counter = u.Total.Counter.Add(ps.Counter)
		u.Total.Procs += ps.Procs
	}

	snap.Users = make([]metrics.UserStats, 0, len(byUser))
	for _, u := range byUser {
		sort.Slice(u.Processes, func(i, j int) bool { return u.Processes[i].Name < u.Processes[j].Name })
		snap.Users = append(snap.Users, *u)
	}
	sort.Slice(snap.Users, func(i, j int) bool { return snap.Users[i].User < snap.Users[j].User })
	return snap
}

// Records returns a copy of the counter cache.
func (a *Aggregator) Records() map[metrics.Key]metrics.Record {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make(map[metrics.Key]metrics.Record, len(a.cache))
	for key, rec := range a.cache {
		out[key] = rec
	}
	return out
}

// LastTable returns a copy of the most recent process sample.
func (a *Aggregator) LastTable() sampler.Table {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.previous.Clone()
}

// Stats returns activity counters.
func (a *Aggregator) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats
}
