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

package sampler

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/phuonguno98/procstatd/pkg/metrics"
	"github.com/shirou/gopsutil/v3/process"
)

// GopsutilSampler collects the same rows as ProcfsSampler through
// gopsutil. CPU times come back in seconds and are converted to clock
// ticks so both backends report the same unit.
type GopsutilSampler struct {
	users  *UserResolver
	logger *slog.Logger
	ticks  float64
	now    func() time.Time
}

// NewGopsutilSampler creates the portable sampler.
func NewGopsutilSampler(users *UserResolver, logger *slog.Logger) *GopsutilSampler {
	return &GopsutilSampler{
		users:  users,
		logger: logger,
		ticks:  float64(ClockTicks()),
		now:    time.Now,
	}
}

// Sample lists all processes known to gopsutil.
func (s *GopsutilSampler) Sample() (Table, error) {
	procs, err := process.Processes()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	table := make(Table, len(procs))
	skipped := 0
	for _, p := range procs {
		proc, ok := s.readProcess(p)
		if !ok {
			skipped++
			continue
		}
		table[proc.PID] = proc
	}

	if skipped > 0 {
		s.logger.Debug("Skipped unreadable processes", "skipped", skipped, "read", len(table))
	}
	return table, nil
}

func (s *GopsutilSampler) readProcess(p *process.Process) (Process, bool) {
	ppid, err := p.Ppid()
	if err != nil {
		return Process{}, false
	}
	name, err := p.Name()
	if err != nil {
		return Process{}, false
	}
	uids, err := p.Uids()
	if err != nil || len(uids) == 0 {
		return Process{}, false
	}
	times, err := p.Times()
	if err != nil {
		return Process{}, false
	}

	uid := uint32(uids[0])
	if len(uids) > 1 {
		uid = uint32(uids[1])
	}

	proc := Process{
		PID:       int(p.Pid),
		PPID:      int(ppid),
		UID:       uid,
		User:      s.users.Name(uid),
		Name:      NormalizeName(name),
		SampledAt: s.now(),
	}
	proc.Counters[metrics.Jiffies] = uint64(math.Round((times.User + times.System) * s.ticks))

	if io, err := p.IOCounters(); err == nil && io != nil {
		proc.Counters[metrics.IORead] = io.ReadBytes
		proc.Counters[metrics.IOWrite] = io.WriteBytes
		proc.HasIO = true
	}

	return proc, true
}
