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

// Package sampler reads the process table and returns one row of raw
// cumulative counters per live process.
//
// Two backends exist: ProcfsSampler reads /proc directly and is the
// default on Linux; GopsutilSampler goes through gopsutil for hosts
// without a procfs mount. Both skip processes that vanish mid-scan and
// only fail a whole pass when the process table itself is unreadable.
package sampler

import (
	"errors"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/phuonguno98/procstatd/pkg/metrics"
)

// ErrUnavailable is returned when the process table cannot be listed at all.
var ErrUnavailable = errors.New("sampler: process table unavailable")

// Sampler walks the process table once per call.
type Sampler interface {
	Sample() (Table, error)
}

// Process is one row of a sample.
type Process struct {
	PID       int
	PPID      int // 0 for the root of the tree
	UID       uint32
	User      string
	Name      string
	Counters  metrics.Counters
	HasIO     bool // false when the I/O counters could not be read
	SampledAt time.Time
}

// Key returns the aggregation bucket of the process.
func (p *Process) Key() metrics.Key {
	return metrics.Key{User: p.User, Process: p.Name}
}

// Table maps pid to its row.
type Table map[int]Process

// Children builds the parent -> children index from the PPID column.
// Child lists are sorted by pid.
func (t Table) Children() map[int][]int {
	children := make(map[int][]int)
	for pid := range t {
		p := t[pid]
		children[p.PPID] = append(children[p.PPID], pid)
	}
	for ppid := range children {
		sort.Ints(children[ppid])
	}
	return children
}

// Clone returns a copy of the table.
func (t Table) Clone() Table {
	out := make(Table, len(t))
	for pid := range t {
		out[pid] = t[pid]
	}
	return out
}

var threadSuffix = regexp.MustCompile(`/\d+$`)

// NormalizeName strips enclosing parens, brackets and dashes from a
// command name and removes per-CPU thread suffixes such as "/3", so that
// "(ksoftirqd/0)" and "ksoftirqd/1" share a bucket.
func NormalizeName(name string) string {
	name = strings.Trim(name, "()[]-")
	name = threadSuffix.ReplaceAllString(name, "")
	if name == "" {
		return "unknown"
	}
	return name
}
