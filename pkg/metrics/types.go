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

package metrics

import (
	"fmt"
	"time"
)

// Family identifies one tracked monotonic resource counter.
type Family int

// Counter families. The order is the column order used everywhere
// (storage, JSON, CSV).
const (
	Jiffies Family = iota // user+kernel clock ticks
	IORead                // bytes read from storage
	IOWrite               // bytes written to storage
)

// NumFamilies is the number of tracked counter families.
const NumFamilies = 3

// Families lists all counter families in column order.
var Families = [NumFamilies]Family{Jiffies, IORead, IOWrite}

var familyNames = [NumFamilies]string{"jiffies", "ioread", "iowrite"}

// String returns the persisted name of the family.
func (f Family) String() string {
	if f < 0 || int(f) >= NumFamilies {
		return fmt.Sprintf("family(%d)", int(f))
	}
	return familyNames[f]
}

// IsIO reports whether the family is an I/O byte counter. Only I/O
// families are corrected for exited children.
func (f Family) IsIO() bool {
	return f == IORead || f == IOWrite
}

// ParseFamily converts a family name back into a Family.
func ParseFamily(s string) (Family, error) {
	for i, name := range familyNames {
		if name == s {
			return Family(i), nil
		}
	}
	return 0, fmt.Errorf("unknown counter family %q", s)
}

// Counters holds one value per counter family.
type Counters [NumFamilies]uint64

// Add returns the element-wise sum of c and o.
func (c Counters) Add(o Counters) Counters {
	for i := range c {
		c[i] += o[i]
	}
	return c
}

// Key identifies an aggregation bucket. It is stable across process
// restarts: every process of the same user with the same name lands
// in the same bucket.
type Key struct {
	User    string // resolved user name or "[uid]"
	Process string // normalized command name
}

// Record is the durable reconciliation state for one Key.
type Record struct {
	Last      Counters // raw aggregate observed at the last reconciliation
	Counter   Counters // ever-increasing totals exposed to consumers
	LiveProcs int      // live processes in the last pass, not persisted
}

// ProcStats is the read view of one (user, process) bucket.
type ProcStats struct {
	Name    string
	Rate    Counters // per second, averaged over the history window
	Counter Counters // cumulative counters at the newest history entry
	Procs   int      // live processes at the newest history entry
}

// UserStats groups the buckets of one user together with their sum.
type UserStats struct {
	User      string
	Total     ProcStats
	Processes []ProcStats
}

// Snapshot is an immutable view handed to formatters. Users are sorted
// by name and each user's processes by process name.
type Snapshot struct {
	TakenAt time.Time
	Window  time.Duration // time between the oldest and newest history entry
	Users   []UserStats
}

// Empty reports whether the snapshot carries no data, which is the case
// while the history window is still filling up.
func (s Snapshot) Empty() bool {
	return len(s.Users) == 0
}

// GrandTotal sums the totals of all users.
func (s Snapshot) GrandTotal() ProcStats {
	total := ProcStats{Name: TotalName}
	for i := range s.Users {
		u := &s.Users[i].Total
		total.Rate = total.Rate.Add(u.Rate)
		total.Counter = total.Counter.Add(u.Counter)
		total.Procs += u.Procs
	}
	return total
}

// TotalName is the pseudo process name used for per-user sums.
const TotalName = "TOTAL"
