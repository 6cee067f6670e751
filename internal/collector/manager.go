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
	"time"

	"github.com/phuonguno98/procstatd/internal/config"
	"github.com/phuonguno98/procstatd/internal/scheduler"
	"github.com/phuonguno98/procstatd/pkg/metrics"
)

// tickResolution is how often the timer checks for due jobs.
var tickResolution = 200 * time.Millisecond

// shutdownPersistTimeout bounds the final flush on shutdown.
var shutdownPersistTimeout = 10 * time.Second

// Manager drives the aggregator from a Timer: frequent collect passes,
// periodic persists and, when snapshots is non-nil, periodic snapshot
// export.
type Manager struct {
	config     *config.Config
	aggregator *Aggregator
	timer      *scheduler.Timer
	snapshots  chan<- *metrics.Snapshot
	logger     *slog.Logger
}

// NewManager creates a new collector manager instance.
func NewManager(cfg *config.Config, agg *Aggregator, timer *scheduler.Timer, snapshots chan<- *metrics.Snapshot, logger *slog.Logger) *Manager {
	return &Manager{
		config:     cfg,
		aggregator: agg,
		timer:      timer,
		snapshots:  snapshots,
		logger:     logger,
	}
}

// Start registers the jobs and runs them until ctx is cancelled, then
// persists one last time.
func (m *Manager) Start(ctx context.Context) error {
	m.logger.Info("Starting collector manager",
		"interval", m.config.SamplingInterval,
		"persist_interval", m.config.PersistInterval,
		"window", m.config.WindowSize,
	)

	if err := m.timer.Register("collect", m.aggregator.CollectOnce, m.config.SamplingInterval, true); err != nil {
		return err
	}
	if err := m.timer.Register("persist", m.aggregator.Persist, m.config.PersistInterval, false); err != nil {
		return err
	}
	if m.snapshots != nil {
		if err := m.timer.Register("export", m.exportOnce, m.config.CSVInterval, false); err != nil {
			return err
		}
	}

	m.logger.Info("Collector manager started")
	m.timer.Run(ctx, tickResolution)

	m.logger.Info("Collector manager stopping...")
	persistCtx, cancel := context.WithTimeout(context.Background(), shutdownPersistTimeout)
	defer cancel()
	if err := m.aggregator.Persist(persistCtx); err != nil {
		return fmt.Errorf("final persist failed: %w", err)
	}
	m.logger.Info("Counters persisted on shutdown")
	return nil
}

// exportOnce hands the current snapshot to the exporter without blocking.
func (m *Manager) exportOnce(context.Context) error {
	snapshot := m.aggregator.Snapshot()
	if snapshot.Empty() {
		m.logger.Debug("History window not full yet, skipping export")
		return nil
	}

	select {
	case m.snapshots <- &snapshot:
		m.logger.Debug("Snapshot sent", "users", len(snapshot.Users))
		return nil
	default:
		m.logger.Warn("Snapshot channel full, dropping snapshot")
		return fmt.Errorf("snapshot channel full")
	}
}
