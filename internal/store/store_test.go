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

package store

import (
	"context"
	"io"
	"log/slog"
	"math"
	"path/filepath"
	"testing"

	"github.com/phuonguno98/procstatd/pkg/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	tmpl := filepath.Join(dir, "template.sqlite")
	require.NoError(t, CreateTemplate(tmpl))

	s, err := Open(context.Background(), filepath.Join(dir, "procstats.sqlite"), tmpl, discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_MissingFileAndTemplate(t *testing.T) {
	dir := t.TempDir()
	_, err := Open(context.Background(), filepath.Join(dir, "db.sqlite"), filepath.Join(dir, "nope.sqlite"), discardLogger())
	require.ErrorIs(t, err, ErrUnavailable)

	_, err = Open(context.Background(), filepath.Join(dir, "db.sqlite"), "", discardLogger())
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestCreateTemplate_RefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "template.sqlite")
	require.NoError(t, CreateTemplate(path))
	assert.Error(t, CreateTemplate(path))
}

func TestBulkUpsert_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	empty, err := s.LoadAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty)

	alice := metrics.Key{User: "alice", Process: "worker"}
	bob := metrics.Key{User: "bob", Process: "nginx"}
	records := map[metrics.Key]metrics.Record{
		alice: {Last: metrics.Counters{1250, 10, 20}, Counter: metrics.Counters{1250, 10, 20}, LiveProcs: 1},
		bob:   {Last: metrics.Counters{5, 0, 0}, Counter: metrics.Counters{math.MaxUint64, 1 << 40, 7}},
	}
	require.NoError(t, s.BulkUpsert(ctx, records))

	got, err := s.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, metrics.Counters{1250, 10, 20}, got[alice].Counter)
	assert.Equal(t, metrics.Counters{math.MaxUint64, 1 << 40, 7}, got[bob].Counter)
	assert.Zero(t, got[alice].LiveProcs, "live process count is not persisted")

	// Second write updates in place.
	records[alice] = metrics.Record{Last: metrics.Counters{1300, 10, 20}, Counter: metrics.Counters{1300, 10, 20}}
	require.NoError(t, s.BulkUpsert(ctx, records))
	require.NoError(t, s.BulkUpsert(ctx, records))

	got, err = s.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, uint64(1300), got[alice].Counter[metrics.Jiffies])
}

func TestOpen_ExistingFileKeepsData(t *testing.T) {
	dir := t.TempDir()
	tmpl := filepath.Join(dir, "template.sqlite")
	path := filepath.Join(dir, "procstats.sqlite")
	require.NoError(t, CreateTemplate(tmpl))

	ctx := context.Background()
	s, err := Open(ctx, path, tmpl, discardLogger())
	require.NoError(t, err)
	key := metrics.Key{User: "alice", Process: "worker"}
	require.NoError(t, s.BulkUpsert(ctx, map[metrics.Key]metrics.Record{key: {Counter: metrics.Counters{42}}}))
	require.NoError(t, s.Close())

	s, err = Open(ctx, path, tmpl, discardLogger())
	require.NoError(t, err)
	defer s.Close()

	got, err := s.LoadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), got[key].Counter[metrics.Jiffies])
}

func TestBulkUpsert_ClosedDatabase(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Close())

	err := s.BulkUpsert(context.Background(), map[metrics.Key]metrics.Record{
		{User: "alice", Process: "worker"}: {},
	})
	require.ErrorIs(t, err, ErrWrite)
}

func TestBulkUpsert_FailedBatchLeavesPriorState(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seeded := metrics.Key{User: "alice", Process: "worker"}
	fresh := metrics.Key{User: "alice", Process: "cron"}
	bad := metrics.Key{User: "alice", Process: "bad"}
	require.NoError(t, s.BulkUpsert(ctx, map[metrics.Key]metrics.Record{
		seeded: {Last: metrics.Counters{1}, Counter: metrics.Counters{1}},
	}))

	_, err := s.db.ExecContext(ctx, `CREATE TRIGGER reject_bad BEFORE INSERT ON procstats
		WHEN NEW.process = 'bad'
		BEGIN SELECT RAISE(ABORT, 'rejected'); END`)
	require.NoError(t, err)

	err = s.BulkUpsert(ctx, map[metrics.Key]metrics.Record{
		seeded: {Last: metrics.Counters{99}, Counter: metrics.Counters{99}},
		fresh:  {Counter: metrics.Counters{5}},
		bad:    {Counter: metrics.Counters{7}},
	})
	require.ErrorIs(t, err, ErrWrite)

	got, err := s.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1, "no row of the failed batch may be durable")
	assert.Equal(t, uint64(1), got[seeded].Counter[metrics.Jiffies])
	assert.Equal(t, uint64(1), got[seeded].Last[metrics.Jiffies])
}
