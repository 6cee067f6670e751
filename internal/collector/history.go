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
	"time"

	"github.com/phuonguno98/procstatd/pkg/metrics"
)

// DefaultWindow is the number of history entries kept for rate smoothing.
const DefaultWindow = 3

// historyValue is one key's state at one pass.
type historyValue struct {
	Counter metrics.Counters // cumulative counter after the pass
	Rate    metrics.Counters // rate against the previous pass
	Procs   int
}

type historyEntry struct {
	At     time.Time
	Values map[metrics.Key]historyValue
}

// history is a bounded FIFO of pass results, oldest first.
type history struct {
	size    int
	entries []historyEntry
}

func newHistory(size int) *history {
	if size < 2 {
		size = 2
	}
	return &history{size: size, entries: make([]historyEntry, 0, size+1)}
}

func (h *history) push(e historyEntry) {
	h.entries = append(h.entries, e)
	if len(h.entries) > h.size {
		copy(h.entries, h.entries[1:])
		h.entries[len(h.entries)-1] = historyEntry{}
		h.entries = h.entries[:h.size]
	}
}

func (h *history) len() int { return len(h.entries) }

func (h *history) full() bool { return len(h.entries) >= h.size }

func (h *history) oldest() *historyEntry { return &h.entries[0] }

func (h *history) newest() *historyEntry { return &h.entries[len(h.entries)-1] }
