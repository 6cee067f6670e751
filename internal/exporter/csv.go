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

// Package exporter appends ready snapshots to a CSV history file.
package exporter

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/phuonguno98/procstatd/internal/config"
	"github.com/phuonguno98/procstatd/pkg/metrics"
)

// CSVExporter writes one row per (user, process) bucket of every snapshot
// it receives, plus one TOTAL row per user.
type CSVExporter struct {
	config        *config.Config
	file          *os.File
	csvWriter     *csv.Writer
	bufWriter     *bufio.Writer
	snapshots     <-chan *metrics.Snapshot
	flushTicker   *time.Ticker
	recordCount   int
	logger        *slog.Logger
	headerWritten bool
	location      *time.Location // Timezone location for timestamps
	currentSize   int64          // Bytes on disk, excluding the write buffers
	maxSize       int64
	basePath      string // Base output path
	fileIndex     int    // Index for file rotation
}

var csvHeader = []string{
	"Timestamp",
	"User",
	"Process",
	"Procs",
	"Jiffies (/s)",
	"IO Read (B/s)",
	"IO Write (B/s)",
	"Jiffies Counter",
	"IO Read Counter",
	"IO Write Counter",
}

const writeBufferSize = 8192

// countingWriter tracks how many bytes went through it.
type countingWriter struct {
	w io.Writer
	n *int64
}

func (c countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	*c.n += int64(n)
	return n, err
}

// NewCSVExporter creates a new CSV exporter instance.
func NewCSVExporter(cfg *config.Config, snapshots <-chan *metrics.Snapshot, logger *slog.Logger) (*CSVExporter, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone '%s': %w", cfg.Timezone, err)
	}

	maxSize := cfg.MaxOutputFileSize
	if maxSize <= 0 {
		maxSize = config.DefaultMaxOutputFileSize
	}

	e := &CSVExporter{
		config:    cfg,
		snapshots: snapshots,
		logger:    logger,
		location:  loc,
		maxSize:   maxSize,
		basePath:  cfg.CSVOutput,
	}
	if err := e.open(cfg.CSVOutput, os.O_APPEND); err != nil {
		return nil, err
	}
	return e, nil
}

// open points the writers at path. Appending to an existing history
// keeps its header.
func (e *CSVExporter) open(path string, mode int) error {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|mode, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open output file: %w", err)
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("failed to stat file: %w", err)
	}

	e.file = file
	e.currentSize = stat.Size()
	e.headerWritten = stat.Size() > 0
	e.bufWriter = bufio.NewWriterSize(countingWriter{w: file, n: &e.currentSize}, writeBufferSize)
	e.csvWriter = csv.NewWriter(e.bufWriter)
	return nil
}

// Start begins listening to the snapshot channel and writing to CSV.
func (e *CSVExporter) Start(ctx context.Context) error {
	e.logger.Info("Starting CSV exporter", "output", e.basePath, "timezone", e.config.Timezone)

	e.flushTicker = time.NewTicker(e.config.FlushInterval)
	defer e.flushTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("CSV exporter stopping...")
			return e.flush()

		case snapshot, ok := <-e.snapshots:
			if !ok {
				e.logger.Info("Snapshot channel closed, flushing remaining data...")
				return e.flush()
			}

			if err := e.writeSnapshot(snapshot); err != nil {
				e.logger.Error("Failed to write snapshot", "error", err)
			}

			e.recordCount++
			if e.recordCount >= e.config.BufferSize {
				if err := e.flush(); err != nil {
					e.logger.Error("Failed to flush", "error", err)
				}
				e.recordCount = 0
			}

		case <-e.flushTicker.C:
			if e.recordCount > 0 {
				if err := e.flush(); err != nil {
					e.logger.Error("Failed to flush", "error", err)
				}
				e.recordCount = 0
			}
		}
	}
}

// writeSnapshot writes all rows of a snapshot. Empty snapshots are skipped.
func (e *CSVExporter) writeSnapshot(snapshot *metrics.Snapshot) error {
	if snapshot.Empty() {
		return nil
	}

	if e.currentSize >= e.maxSize {
		if err := e.rotateFile(); err != nil {
			e.logger.Error("Failed to rotate file", "error", err)
		}
	}

	if !e.headerWritten {
		if err := e.csvWriter.Write(csvHeader); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
		e.headerWritten = true
	}

	ts := snapshot.TakenAt.In(e.location).Format("2006-01-02 15:04:05")
	for i := range snapshot.Users {
		u := &snapshot.Users[i]
		for j := range u.Processes {
			if err := e.writeRow(ts, u.User, &u.Processes[j]); err != nil {
				return err
			}
		}
		if err := e.writeRow(ts, u.User, &u.Total); err != nil {
			return err
		}
	}
	return nil
}

func (e *CSVExporter) writeRow(ts, user string, p *metrics.ProcStats) error {
	if err := e.csvWriter.Write(buildRow(ts, user, p)); err != nil {
		return fmt.Errorf("failed to write row: %w", err)
	}
	return nil
}

func buildRow(ts, user string, p *metrics.ProcStats) []string {
	row := make([]string, 0, len(csvHeader))
	row = append(row, ts, user, p.Name, strconv.Itoa(p.Procs))
	for _, f := range metrics.Families {
		row = append(row, strconv.FormatUint(p.Rate[f], 10))
	}
	for _, f := range metrics.Families {
		row = append(row, strconv.FormatUint(p.Counter[f], 10))
	}
	return row
}

// flush flushes the buffered data to disk.
func (e *CSVExporter) flush() error {
	e.csvWriter.Flush()
	if err := e.csvWriter.Error(); err != nil {
		return fmt.Errorf("CSV writer error: %w", err)
	}

	if err := e.bufWriter.Flush(); err != nil {
		return fmt.Errorf("buffer writer error: %w", err)
	}

	e.logger.Debug("Flushed to disk", "records", e.recordCount)
	return nil
}

// Close closes the CSV exporter and flushes remaining data.
func (e *CSVExporter) Close() error {
	e.logger.Info("Closing CSV exporter")

	if e.flushTicker != nil {
		e.flushTicker.Stop()
	}

	if err := e.flush(); err != nil {
		e.logger.Error("Final flush failed", "error", err)
	}

	if err := e.file.Close(); err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}

	e.logger.Info("CSV exporter closed")
	return nil
}

// rotateFile switches output to <base>_<n><ext>, skipping names that
// already exist.
func (e *CSVExporter) rotateFile() error {
	e.logger.Info("Rotating output file", "current_size", e.currentSize)

	if err := e.flush(); err != nil {
		return fmt.Errorf("flush before rotate failed: %w", err)
	}
	if err := e.file.Close(); err != nil {
		return fmt.Errorf("close before rotate failed: %w", err)
	}

	ext := filepath.Ext(e.basePath)
	base := strings.TrimSuffix(e.basePath, ext)
	var newPath string
	for {
		e.fileIndex++
		newPath = fmt.Sprintf("%s_%d%s", base, e.fileIndex, ext)
		if _, err := os.Stat(newPath); os.IsNotExist(err) {
			break
		}
	}

	if err := e.open(newPath, os.O_TRUNC); err != nil {
		return fmt.Errorf("rotate to %s: %w", newPath, err)
	}

	e.logger.Info("File rotated successfully", "new_path", newPath)
	return nil
}
