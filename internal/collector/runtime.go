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
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/phuonguno98/procstatd/pkg/metrics"
	"github.com/phuonguno98/procstatd/pkg/version"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/process"
)

// RuntimeCollector reports the daemon's own memory use, its uptime and
// the host load.
type RuntimeCollector struct {
	instanceID string
	startedAt  time.Time
	self       *process.Process
	now        func() time.Time
}

// NewRuntimeCollector creates a runtime collector for the current process.
// Every call generates a new instance id.
func NewRuntimeCollector() (*RuntimeCollector, error) {
	self, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, fmt.Errorf("failed to inspect own process: %w", err)
	}
	return &RuntimeCollector{
		instanceID: uuid.NewString(),
		startedAt:  time.Now(),
		self:       self,
		now:        time.Now,
	}, nil
}

// InstanceID identifies this daemon run.
func (r *RuntimeCollector) InstanceID() string {
	return r.instanceID
}

// Collect gathers the current runtime stats. Values that cannot be read
// on this platform are left zero and reported in the joined error.
func (r *RuntimeCollector) Collect() (metrics.RuntimeStats, error) {
	stats := metrics.RuntimeStats{
		InstanceID: r.instanceID,
		Version:    version.Version,
		StartedAt:  r.startedAt,
		Uptime:     r.now().Sub(r.startedAt),
	}

	var errs []error

	if mem, err := r.self.MemoryInfo(); err != nil {
		errs = append(errs, fmt.Errorf("failed to get memory info: %w", err))
	} else {
		stats.MemoryUsage = mem.RSS
	}

	if avg, err := load.Avg(); err != nil {
		errs = append(errs, fmt.Errorf("failed to get load average: %w", err))
	} else {
		stats.Load = [3]float64{avg.Load1, avg.Load5, avg.Load15}
	}

	if up, err := host.Uptime(); err != nil {
		errs = append(errs, fmt.Errorf("failed to get host uptime: %w", err))
	} else {
		stats.HostUptime = time.Duration(up) * time.Second
	}

	return stats, errors.Join(errs...)
}
