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

package exporter

import (
	"context"
	"encoding/csv"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/phuonguno98/procstatd/internal/config"
	"github.com/phuonguno98/procstatd/pkg/metrics"
)

func testSnapshot(at time.Time) *metrics.Snapshot {
	worker := metrics.ProcStats{Name: "worker", Rate: metrics.Counters{125, 10, 20}, Counter: metrics.Counters{1250, 100, 200}, Procs: 2}
	return &metrics.Snapshot{
		TakenAt: at,
		Window:  2 * time.Second,
		Users: []metrics.UserStats{{
			User:      "alice",
			Total:     metrics.ProcStats{Name: metrics.TotalName, Rate: worker.Rate, Counter: worker.Counter, Procs: worker.Procs},
			Processes: []metrics.ProcStats{worker},
		}},
	}
}

func testConfig(outputPath string) *config.Config {
	return &config.Config{
		CSVOutput:        outputPath,
		Timezone:         "UTC",
		FlushInterval:    100 * time.Millisecond,
		BufferSize:       10,
		SamplingInterval: 1 * time.Second,
	}
}

func runExporter(t *testing.T, exporter *CSVExporter, snapshots chan *metrics.Snapshot, send ...*metrics.Snapshot) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)

	go func() {
		done <- exporter.Start(ctx)
	}()

	for _, s := range send {
		snapshots <- s
	}

	// Give it a moment to process
	time.Sleep(200 * time.Millisecond)

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Exporter finished with error: %v", err)
	}
	if err := exporter.Close(); err != nil {
		t.Errorf("Failed to close exporter: %v", err)
	}
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Failed to open output file: %v", err)
	}
	defer func() { _ = f.Close() }()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("Failed to read CSV: %v", err)
	}
	return records
}

func TestCSVExporter_Export(t *testing.T) {
	outputPath := filepath.Join(t.TempDir(), "history.csv")
	snapshots := make(chan *metrics.Snapshot, 10)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	exporter, err := NewCSVExporter(testConfig(outputPath), snapshots, logger)
	if err != nil {
		t.Fatalf("NewCSVExporter() error = %v", err)
	}

	now := time.Date(2023, 10, 26, 12, 0, 0, 0, time.UTC)
	runExporter(t, exporter, snapshots, &metrics.Snapshot{TakenAt: now}, testSnapshot(now))

	records := readCSV(t, outputPath)
	if len(records) != 3 {
		t.Fatalf("Expected 3 records (Header + worker + TOTAL), got %d", len(records))
	}

	info, err := os.Stat(outputPath)
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() != exporter.currentSize {
		t.Errorf("tracked size = %d, file size = %d", exporter.currentSize, info.Size())
	}

	header := records[0]
	if len(header) != len(csvHeader) {
		t.Fatalf("Header length mismatch. Got %d, want %d", len(header), len(csvHeader))
	}
	for i, h := range header {
		if h != csvHeader[i] {
			t.Errorf("Header[%d] = %q, want %q", i, h, csvHeader[i])
		}
	}

	expectedRow := []string{"2023-10-26 12:00:00", "alice", "worker", "2", "125", "10", "20", "1250", "100", "200"}
	for i, v := range records[1] {
		if v != expectedRow[i] {
			t.Errorf("Row[%d] = %q, want %q", i, v, expectedRow[i])
		}
	}
	if records[2][2] != metrics.TotalName {
		t.Errorf("Last row process = %q, want TOTAL", records[2][2])
	}
}

func TestCSVExporter_AppendKeepsSingleHeader(t *testing.T) {
	outputPath := filepath.Join(t.TempDir(), "history.csv")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	now := time.Date(2023, 10, 26, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 2; i++ {
		snapshots := make(chan *metrics.Snapshot, 10)
		exporter, err := NewCSVExporter(testConfig(outputPath), snapshots, logger)
		if err != nil {
			t.Fatalf("NewCSVExporter() error = %v", err)
		}
		runExporter(t, exporter, snapshots, testSnapshot(now))
	}

	records := readCSV(t, outputPath)
	if len(records) != 5 {
		t.Fatalf("Expected 5 records (Header + 2x2 rows), got %d", len(records))
	}
	if records[3][0] == "Timestamp" {
		t.Error("header repeated when appending")
	}
}

func TestCSVExporter_FileRotation(t *testing.T) {
	tempDir := t.TempDir()
	outputPath := filepath.Join(tempDir, "rotation_test.csv")

	// Pre-existing rotated file must not be overwritten.
	existing := filepath.Join(tempDir, "rotation_test_1.csv")
	if err := os.WriteFile(existing, []byte("existing data 1"), 0o644); err != nil {
		t.Fatal(err)
	}

	snapshots := make(chan *metrics.Snapshot, 10)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	exporter, err := NewCSVExporter(testConfig(outputPath), snapshots, logger)
	if err != nil {
		t.Fatalf("NewCSVExporter() error = %v", err)
	}

	// Manually set size to trigger rotation
	exporter.currentSize = config.DefaultMaxOutputFileSize + 1

	runExporter(t, exporter, snapshots, testSnapshot(time.Now()))

	data, err := os.ReadFile(existing)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "existing data 1" {
		t.Errorf("existing rotated file was overwritten: %q", data)
	}

	rotatedPath := filepath.Join(tempDir, "rotation_test_2.csv")
	records := readCSV(t, rotatedPath)
	if len(records) != 3 {
		t.Fatalf("Rotated file should have header + 2 rows, got %d", len(records))
	}
	if records[0][0] != "Timestamp" {
		t.Errorf("Rotated file should start with a header, got %v", records[0])
	}
}
