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
	"math"
	"sort"
	"time"
)

// ClampedDelta returns current-previous, or 0 when the counter went
// backwards (pid reuse or a counter reset).
func ClampedDelta(current, previous uint64) uint64 {
	if current < previous {
		return 0
	}
	return current - previous
}

// CalculateRate calculates a per-second rate between two cumulative
// counter readings, rounded to the nearest integer.
// Formula: max(0, round((newest - oldest) / Δt))
func CalculateRate(oldest, newest uint64, elapsed time.Duration) uint64 {
	if elapsed <= 0 || newest <= oldest {
		return 0
	}
	rate := math.Round(float64(newest-oldest) / elapsed.Seconds())
	if rate < 0 || math.IsNaN(rate) {
		return 0
	}
	return uint64(rate)
}

// CalculateRates applies CalculateRate to every family.
func CalculateRates(oldest, newest Counters, elapsed time.Duration) Counters {
	var out Counters
	for _, f := range Families {
		out[f] = CalculateRate(oldest[f], newest[f], elapsed)
	}
	return out
}

// Wrap32 reduces a value modulo 2^32 for consumers that parse counters
// as unsigned 32-bit integers.
func Wrap32(v uint64) uint64 {
	return v & math.MaxUint32
}

// SortKey selects the column formatters order users and processes by.
type SortKey string

// Sort keys accepted by SortUsers.
const (
	SortByName    SortKey = "name"
	SortByJiffies SortKey = "jiffies"
	SortByCounter SortKey = "counter"
	SortByProcs   SortKey = "procs"
	SortByIORead  SortKey = "ioread"
	SortByIOWrite SortKey = "iowrite"
)

// ParseSortKey validates a sort key taken from a query string. The empty
// string maps to SortByName.
func ParseSortKey(s string) (SortKey, error) {
	switch k := SortKey(s); k {
	case "":
		return SortByName, nil
	case SortByName, SortByJiffies, SortByCounter, SortByProcs, SortByIORead, SortByIOWrite:
		return k, nil
	default:
		return "", fmt.Errorf("unknown sort key %q", s)
	}
}

func sortValue(p *ProcStats, key SortKey) uint64 {
	switch key {
	case SortByJiffies:
		return p.Rate[Jiffies]
	case SortByCounter:
		return p.Counter[Jiffies]
	case SortByProcs:
		return uint64(p.Procs)
	case SortByIORead:
		return p.Rate[IORead]
	case SortByIOWrite:
		return p.Rate[IOWrite]
	default:
		return 0
	}
}

// SortUsers returns a copy of users ordered by key, descending for
// numeric keys. Ties keep their incoming order. Processes inside each
// user are ordered the same way.
func SortUsers(users []UserStats, key SortKey) []UserStats {
	out := make([]UserStats, len(users))
	for i := range users {
		out[i] = users[i]
		out[i].Processes = append([]ProcStats(nil), users[i].Processes...)
	}

	if key == SortByName || key == "" {
		sort.SliceStable(out, func(i, j int) bool { return out[i].User < out[j].User })
		for i := range out {
			procs := out[i].Processes
			sort.SliceStable(procs, func(a, b int) bool { return procs[a].Name < procs[b].Name })
		}
		return out
	}

	sort.SliceStable(out, func(i, j int) bool {
		return sortValue(&out[i].Total, key) > sortValue(&out[j].Total, key)
	})
	for i := range out {
		procs := out[i].Processes
		sort.SliceStable(procs, func(a, b int) bool {
			return sortValue(&procs[a], key) > sortValue(&procs[b], key)
		})
	}
	return out
}
