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

package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/phuonguno98/procstatd/internal/collector"
	"github.com/phuonguno98/procstatd/internal/config"
	"github.com/phuonguno98/procstatd/internal/format"
	"github.com/phuonguno98/procstatd/pkg/metrics"
	"github.com/spf13/cobra"
)

var (
	sampleInterval time.Duration
	sampleTree     bool
)

var sampleCmd = &cobra.Command{
	Use:   "sample",
	Short: "Sample the process table twice and print per-user rates",
	Long: `Take two samples of the process table, separated by --interval, and print
the per-user, per-process rates between them. Nothing is persisted.

Examples:
  # Rates over five seconds
  procstatd sample --interval 5s

  # Print the process tree of the last sample instead
  procstatd sample --tree`,
	RunE: runSample,
}

func init() {
	rootCmd.AddCommand(sampleCmd)

	sampleCmd.Flags().DurationVar(&sampleInterval, "interval", config.DefaultSamplingInterval,
		"Time between the two samples")
	sampleCmd.Flags().BoolVar(&sampleTree, "tree", false,
		"Print the process tree instead of the rate table")
	sampleCmd.Flags().StringVar(&samplerName, "sampler", config.SamplerProcfs,
		"Process table backend (procfs, gopsutil)")
	sampleCmd.Flags().StringVar(&procRoot, "proc-root", config.DefaultProcRoot,
		"procfs mount point")
}

// discardStore starts from no counters and drops every write.
type discardStore struct{}

func (discardStore) LoadAll(context.Context) (map[metrics.Key]metrics.Record, error) {
	return nil, nil
}

func (discardStore) BulkUpsert(context.Context, map[metrics.Key]metrics.Record) error {
	return nil
}

func runSample(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("sampler") {
		cfg.Sampler = samplerName
	}
	if cmd.Flags().Changed("proc-root") {
		cfg.ProcRoot = procRoot
	}
	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if cmd.Flags().Changed("log-file") {
		cfg.LogFile = logFile
	}
	if sampleInterval <= 0 {
		return fmt.Errorf("interval must be positive: %v", sampleInterval)
	}

	logger := InitLogger(cfg.LogLevel, cfg.LogFile)

	procSampler, err := newSampler(cfg, logger)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	agg, err := collector.NewAggregator(ctx, procSampler, discardStore{}, collector.Options{Window: 2}, logger)
	if err != nil {
		return err
	}

	if err := agg.CollectOnce(ctx); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(sampleInterval):
	}
	if err := agg.CollectOnce(ctx); err != nil {
		return err
	}

	if sampleTree {
		fmt.Print(format.Tree(agg.LastTable()))
		return nil
	}

	snap := agg.Snapshot()
	fmt.Printf("\nSampled %d processes over %v\n", agg.Stats().Processes, snap.Window)
	fmt.Print(format.Table(snap))
	return nil
}
