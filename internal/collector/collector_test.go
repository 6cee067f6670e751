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
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/phuonguno98/procstatd/internal/config"
	"github.com/phuonguno98/procstatd/internal/sampler"
	"github.com/phuonguno98/procstatd/internal/scheduler"
	"github.com/phuonguno98/procstatd/pkg/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedSampler returns the queued tables in order, then repeats the last one.
type scriptedSampler struct {
	mu     sync.Mutex
	tables []sampler.Table
	err    error
}

func (s *scriptedSampler) Sample() (sampler.Table, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	t := s.tables[0]
	if len(s.tables) > 1 {
		s.tables = s.tables[1:]
	}
	return t.Clone(), nil
}

type memStore struct {
	mu       sync.Mutex
	records  map[metrics.Key]metrics.Record
	writeErr error
	writes   int
}

func (m *memStore) LoadAll(context.Context) (map[metrics.Key]metrics.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[metrics.Key]metrics.Record, len(m.records))
	for k, v := range m.records {
		out[k] = v
	}
	return out, nil
}

func (m *memStore) BulkUpsert(_ context.Context, records map[metrics.Key]metrics.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return m.writeErr
	}
	m.writes++
	if m.records == nil {
		m.records = make(map[metrics.Key]metrics.Record)
	}
	for k, v := range records {
		v.LiveProcs = 0
		m.records[k] = v
	}
	return nil
}

type stepClock struct {
	t time.Time
}

func (c *stepClock) now() time.Time { return c.t }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func proc(pid, ppid int, user, name string, jiffies uint64) sampler.Process {
	return sampler.Process{PID: pid, PPID: ppid, User: user, Name: name, Counters: metrics.Counters{jiffies}}
}

func ioProc(pid, ppid int, user, name string, jiffies, read, write uint64) sampler.Process {
	p := proc(pid, ppid, user, name, jiffies)
	p.Counters[metrics.IORead] = read
	p.Counters[metrics.IOWrite] = write
	p.HasIO = true
	return p
}

func table(procs ...sampler.Process) sampler.Table {
	t := make(sampler.Table, len(procs))
	for _, p := range procs {
		t[p.PID] = p
	}
	return t
}

func newTestAggregator(t *testing.T, s sampler.Sampler, store CounterStore) (*Aggregator, *stepClock) {
	t.Helper()
	clock := &stepClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	agg, err := NewAggregator(context.Background(), s, store, Options{Window: 3, Clock: clock.now}, discardLogger())
	require.NoError(t, err)
	return agg, clock
}

// collectN runs n passes one second apart.
func collectN(t *testing.T, agg *Aggregator, clock *stepClock, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if i > 0 {
			clock.t = clock.t.Add(time.Second)
		}
		require.NoError(t, agg.CollectOnce(context.Background()))
	}
}

func findProc(t *testing.T, snap metrics.Snapshot, user, name string) metrics.ProcStats {
	t.Helper()
	for _, u := range snap.Users {
		if u.User != user {
			continue
		}
		for _, p := range u.Processes {
			if p.Name == name {
				return p
			}
		}
	}
	t.Fatalf("no %s/%s in snapshot", user, name)
	return metrics.ProcStats{}
}

func TestAggregator_EndToEnd(t *testing.T) {
	s := &scriptedSampler{tables: []sampler.Table{
		table(proc(100, 1, "alice", "worker", 1000)),
		table(proc(100, 1, "alice", "worker", 1100)),
		table(proc(100, 1, "alice", "worker", 1250)),
	}}
	agg, clock := newTestAggregator(t, s, &memStore{})

	collectN(t, agg, clock, 3)

	snap := agg.Snapshot()
	require.False(t, snap.Empty())
	assert.Equal(t, 2*time.Second, snap.Window)

	worker := findProc(t, snap, "alice", "worker")
	assert.Equal(t, uint64(1250), worker.Counter[metrics.Jiffies])
	assert.Equal(t, uint64(125), worker.Rate[metrics.Jiffies])
	assert.Equal(t, 1, worker.Procs)

	require.Len(t, snap.Users, 1)
	assert.Equal(t, metrics.TotalName, snap.Users[0].Total.Name)
	assert.Equal(t, uint64(1250), snap.Users[0].Total.Counter[metrics.Jiffies])
	assert.Equal(t, uint64(125), snap.Users[0].Total.Rate[metrics.Jiffies])
}

func TestAggregator_EmptyUntilWindowFull(t *testing.T) {
	s := &scriptedSampler{tables: []sampler.Table{table(proc(100, 1, "alice", "worker", 10))}}
	agg, clock := newTestAggregator(t, s, &memStore{})

	assert.True(t, agg.Snapshot().Empty())
	collectN(t, agg, clock, 2)
	assert.True(t, agg.Snapshot().Empty())

	require.NoError(t, agg.CollectOnce(context.Background()))
	assert.False(t, agg.Snapshot().Empty())
}

func TestAggregator_FirstSeenContributesFullValue(t *testing.T) {
	s := &scriptedSampler{tables: []sampler.Table{
		table(proc(100, 1, "alice", "worker", 100)),
		table(proc(100, 1, "alice", "worker", 150), proc(101, 1, "alice", "worker", 40)),
	}}
	agg, clock := newTestAggregator(t, s, &memStore{})
	collectN(t, agg, clock, 2)

	rec := agg.Records()[metrics.Key{User: "alice", Process: "worker"}]
	assert.Equal(t, uint64(190), rec.Counter[metrics.Jiffies])
	assert.Equal(t, uint64(190), rec.Last[metrics.Jiffies])
	assert.Equal(t, 2, rec.LiveProcs)
}

func TestAggregator_CounterNeverDecreases(t *testing.T) {
	key := metrics.Key{User: "alice", Process: "worker"}
	s := &scriptedSampler{tables: []sampler.Table{
		table(proc(100, 1, "alice", "worker", 500)),
		// pid reused by a younger process with a smaller counter
		table(proc(100, 1, "alice", "worker", 20)),
		table(proc(100, 1, "alice", "worker", 30)),
		// process gone
		table(proc(1, 0, "root", "init", 1)),
	}}
	agg, clock := newTestAggregator(t, s, &memStore{})

	var last uint64
	for i := 0; i < 4; i++ {
		collectN(t, agg, clock, 1)
		clock.t = clock.t.Add(time.Second)
		got := agg.Records()[key].Counter[metrics.Jiffies]
		assert.GreaterOrEqual(t, got, last, "pass %d", i)
		last = got
	}
	assert.Equal(t, uint64(510), last)
	assert.Zero(t, agg.Records()[key].LiveProcs)

	snap := agg.Snapshot()
	worker := findProc(t, snap, "alice", "worker")
	assert.Equal(t, uint64(510), worker.Counter[metrics.Jiffies])
	assert.Zero(t, worker.Procs)
}

func TestAggregator_DeadChildIOSubtractedFromParent(t *testing.T) {
	parentKey := metrics.Key{User: "www", Process: "php-fpm"}
	childKey := metrics.Key{User: "www", Process: "convert"}
	s := &scriptedSampler{tables: []sampler.Table{
		table(
			ioProc(10, 1, "www", "php-fpm", 100, 1000, 2000),
			ioProc(20, 10, "www", "convert", 50, 300, 400),
		),
		// child exited; kernel folded its I/O and CPU into the parent
		table(
			ioProc(10, 1, "www", "php-fpm", 160, 1000+300+5, 2000+400),
		),
	}}
	agg, clock := newTestAggregator(t, s, &memStore{})
	collectN(t, agg, clock, 2)

	records := agg.Records()
	parent := records[parentKey]
	assert.Equal(t, uint64(1005), parent.Counter[metrics.IORead])
	assert.Equal(t, uint64(2000), parent.Counter[metrics.IOWrite])
	// CPU ticks are not corrected.
	assert.Equal(t, uint64(160), parent.Counter[metrics.Jiffies])

	child := records[childKey]
	assert.Equal(t, uint64(300), child.Counter[metrics.IORead])
	assert.Zero(t, child.LiveProcs)
}

func TestAggregator_IOAppearsLater(t *testing.T) {
	key := metrics.Key{User: "alice", Process: "worker"}
	s := &scriptedSampler{tables: []sampler.Table{
		table(proc(100, 1, "alice", "worker", 10)),
		table(ioProc(100, 1, "alice", "worker", 20, 4096, 0)),
		table(ioProc(100, 1, "alice", "worker", 30, 8192, 0)),
	}}
	agg, clock := newTestAggregator(t, s, &memStore{})
	collectN(t, agg, clock, 3)

	rec := agg.Records()[key]
	assert.Equal(t, uint64(8192), rec.Counter[metrics.IORead])
	assert.Equal(t, uint64(30), rec.Counter[metrics.Jiffies])
}

func TestAggregator_SamplerFailureLeavesStateUntouched(t *testing.T) {
	s := &scriptedSampler{tables: []sampler.Table{
		table(proc(100, 1, "alice", "worker", 100)),
		table(proc(100, 1, "alice", "worker", 150)),
	}}
	agg, clock := newTestAggregator(t, s, &memStore{})
	collectN(t, agg, clock, 1)
	before := agg.Records()

	s.err = sampler.ErrUnavailable
	err := agg.CollectOnce(context.Background())
	require.ErrorIs(t, err, sampler.ErrUnavailable)
	assert.Equal(t, before, agg.Records())
	assert.Equal(t, uint64(1), agg.Stats().FailedPasses)
	assert.Equal(t, 1, agg.Stats().HistoryLen)

	s.err = nil
	collectN(t, agg, clock, 1)
	assert.Equal(t, uint64(150), agg.Records()[metrics.Key{User: "alice", Process: "worker"}].Counter[metrics.Jiffies])
}

func TestAggregator_Persist(t *testing.T) {
	key := metrics.Key{User: "alice", Process: "worker"}
	store := &memStore{records: map[metrics.Key]metrics.Record{
		key: {Last: metrics.Counters{900}, Counter: metrics.Counters{5000}},
	}}
	s := &scriptedSampler{tables: []sampler.Table{table(proc(100, 1, "alice", "worker", 100))}}
	agg, clock := newTestAggregator(t, s, store)
	collectN(t, agg, clock, 1)

	// Seeded counter continues from the stored value.
	assert.Equal(t, uint64(5100), agg.Records()[key].Counter[metrics.Jiffies])

	store.writeErr = errors.New("disk full")
	require.Error(t, agg.Persist(context.Background()))
	assert.Equal(t, uint64(5100), agg.Records()[key].Counter[metrics.Jiffies], "cache kept after failed persist")
	assert.Equal(t, uint64(1), agg.Stats().FailedPersists)

	store.writeErr = nil
	require.NoError(t, agg.Persist(context.Background()))
	assert.Equal(t, uint64(5100), store.records[key].Counter[metrics.Jiffies])
	assert.Equal(t, 1, store.writes)
}

func TestAggregator_PersistTwiceIsIdempotent(t *testing.T) {
	store := &memStore{}
	s := &scriptedSampler{tables: []sampler.Table{
		table(proc(100, 1, "alice", "worker", 100)),
		table(proc(100, 1, "alice", "worker", 160)),
	}}
	agg, clock := newTestAggregator(t, s, store)
	collectN(t, agg, clock, 2)

	require.NoError(t, agg.Persist(context.Background()))
	first, err := store.LoadAll(context.Background())
	require.NoError(t, err)

	require.NoError(t, agg.Persist(context.Background()))
	second, err := store.LoadAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, uint64(160), second[metrics.Key{User: "alice", Process: "worker"}].Counter[metrics.Jiffies])
}

func TestAggregator_SnapshotIsCopy(t *testing.T) {
	s := &scriptedSampler{tables: []sampler.Table{table(proc(100, 1, "alice", "worker", 100), proc(200, 1, "bob", "nginx", 10))}}
	agg, clock := newTestAggregator(t, s, &memStore{})
	collectN(t, agg, clock, 3)

	snap := agg.Snapshot()
	require.Len(t, snap.Users, 2)
	assert.Equal(t, "alice", snap.Users[0].User)
	assert.Equal(t, "bob", snap.Users[1].User)

	snap.Users[0].Processes[0].Counter[metrics.Jiffies] = 0
	again := agg.Snapshot()
	assert.Equal(t, uint64(100), again.Users[0].Processes[0].Counter[metrics.Jiffies])

	tbl := agg.LastTable()
	delete(tbl, 100)
	assert.Len(t, agg.LastTable(), 2)
}

func TestManager_FinalPersist(t *testing.T) {
	store := &memStore{}
	s := &scriptedSampler{tables: []sampler.Table{table(proc(100, 1, "alice", "worker", 100))}}
	agg, err := NewAggregator(context.Background(), s, store, Options{Window: 3}, discardLogger())
	require.NoError(t, err)

	cfg := config.Default()
	snapshots := make(chan *metrics.Snapshot, 1)
	m := NewManager(cfg, agg, scheduler.New(discardLogger()), snapshots, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Start(ctx) }()

	require.Eventually(t, func() bool { return agg.Stats().Passes > 0 }, 2*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("manager did not stop")
	}
	assert.Equal(t, 1, store.writes)
	assert.Equal(t, uint64(100), store.records[metrics.Key{User: "alice", Process: "worker"}].Counter[metrics.Jiffies])
}
