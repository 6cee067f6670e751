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
	"time"

	"github.com/phuonguno98/procstatd/pkg/metrics"
	"github.com/prometheus/procfs"
)

// DefaultProcRoot is where procfs is mounted on Linux.
const DefaultProcRoot = procfs.DefaultMountPoint

// ProcfsSampler reads stat, status and io for every pid under a procfs root.
type ProcfsSampler struct {
	root   string
	users  *UserResolver
	logger *slog.Logger
	now    func() time.Time
}

// NewProcfsSampler creates a sampler reading from root (usually /proc).
func NewProcfsSampler(root string, users *UserResolver, logger *slog.Logger) *ProcfsSampler {
	if root == "" {
		root = DefaultProcRoot
	}
	return &ProcfsSampler{
		root:   root,
		users:  users,
		logger: logger,
		now:    time.Now,
	}
}

// Sample lists all pids and reads their counters. Pids that disappear
// while being read are left out of the table.
func (s *ProcfsSampler) Sample() (Table, error) {
	fs, err := procfs.NewFS(s.root)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	procs, err := fs.AllProcs()
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

// readProcess returns ok=false when the process exited before its stat
// and status files could be read.
func (s *ProcfsSampler) readProcess(p procfs.Proc) (Process, bool) {
	stat, err := p.Stat()
	if err != nil {
		return Process{}, false
	}
	status, err := p.NewStatus()
	if err != nil {
		return Process{}, false
	}

	// Second Uid column is the effective uid.
	uid := uint32(status.UIDs[1])

	proc := Process{
		PID:       p.PID,
		PPID:      stat.PPID,
		UID:       uid,
		User:      s.users.Name(uid),
		Name:      NormalizeName(stat.Comm),
		SampledAt: s.now(),
	}
	proc.Counters[metrics.Jiffies] = uint64(stat.UTime) + uint64(stat.STime)

	// Kernel threads and foreign processes without ptrace access have no
	// readable io file.
	if io, err := p.IO(); err == nil {
		proc.Counters[metrics.IORead] = io.ReadBytes
		proc.Counters[metrics.IOWrite] = io.WriteBytes
		proc.HasIO = true
	}

	return proc, true
}
