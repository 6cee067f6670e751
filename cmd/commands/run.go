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
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/phuonguno98/procstatd/internal/collector"
	"github.com/phuonguno98/procstatd/internal/config"
	"github.com/phuonguno98/procstatd/internal/exporter"
	"github.com/phuonguno98/procstatd/internal/format"
	"github.com/phuonguno98/procstatd/internal/sampler"
	"github.com/phuonguno98/procstatd/internal/scheduler"
	"github.com/phuonguno98/procstatd/internal/server"
	"github.com/phuonguno98/procstatd/internal/store"
	"github.com/phuonguno98/procstatd/internal/telemetry"
	"github.com/phuonguno98/procstatd/pkg/metrics"
	"github.com/phuonguno98/procstatd/pkg/version"
	"github.com/phuonguno98/procstatd/web"
	"github.com/spf13/cobra"
)

var (
	// Run command specific flags
	samplerName      string
	procRoot         string
	samplingInterval time.Duration
	persistInterval  time.Duration
	windowSize       int
	dbPath           string
	dbTemplate       string
	httpHost         string
	httpPort         int
	tlsCert          string
	tlsKey           string
	metricsEnabled   bool
	csvOutput        string
	csvInterval      time.Duration
	bufferSize       int
	flushInterval    time.Duration
)

// snapshotBuffer is the capacity of the channel feeding the CSV exporter.
const snapshotBuffer = 10

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the procstatd daemon",
	Long: `Start sampling processes, reconciling per-user counters, persisting them
to SQLite and serving them over HTTP.

Settings are layered: defaults, then the --config file, then PROCSTATD_*
environment variables, then flags given on the command line.

Examples:
  # Run in foreground with default settings
  procstatd run

  # Custom database and port, also record CSV history every minute
  procstatd run --db /var/lib/procstatd/userstats.sqlite --port 9100 \
    --csv-output /var/log/procstatd/history.csv --csv-interval 1m`,
	RunE: runDaemon,
}

func init() {
	rootCmd.AddCommand(runCmd)

	f := runCmd.Flags()
	f.StringVar(&samplerName, "sampler", config.SamplerProcfs,
		"Process table backend (procfs, gopsutil)")
	f.StringVar(&procRoot, "proc-root", config.DefaultProcRoot,
		"procfs mount point")
	f.DurationVar(&samplingInterval, "interval", config.DefaultSamplingInterval,
		"Sampling interval (e.g., 1s, 5s)")
	f.DurationVar(&persistInterval, "persist-interval", config.DefaultPersistInterval,
		"Interval between database writes")
	f.IntVar(&windowSize, "window", config.DefaultWindowSize,
		"Number of samples used to compute rates")
	f.StringVar(&dbPath, "db", config.DefaultDBPath,
		"SQLite database path")
	f.StringVar(&dbTemplate, "db-template", config.DefaultDBTemplate,
		"Template copied when the database does not exist")
	f.StringVar(&httpHost, "host", config.DefaultHTTPHost,
		"HTTP listen host")
	f.IntVarP(&httpPort, "port", "p", config.DefaultHTTPPort,
		"HTTP listen port")
	f.StringVar(&tlsCert, "tls-cert", "",
		"TLS certificate file (requires --tls-key)")
	f.StringVar(&tlsKey, "tls-key", "",
		"TLS key file (requires --tls-cert)")
	f.BoolVar(&metricsEnabled, "metrics", true,
		"Expose Prometheus metrics on /metrics")
	f.StringVarP(&csvOutput, "csv-output", "o", "",
		"Append snapshots to this CSV file (empty = disabled)")
	f.DurationVar(&csvInterval, "csv-interval", config.DefaultCSVInterval,
		"Interval between CSV snapshots")
	f.IntVar(&bufferSize, "buffer-size", config.DefaultBufferSize,
		"Buffer size for CSV writer")
	f.DurationVar(&flushInterval, "flush-interval", config.DefaultFlushInterval,
		"Flush interval for CSV writer")
}

// buildConfig loads the layered configuration and applies the flags that
// were given explicitly.
func buildConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	set := func(name string, apply func()) {
		if flags.Changed(name) {
			apply()
		}
	}
	// Access global vars from root.go
	set("log-level", func() { cfg.LogLevel = logLevel })
	set("log-file", func() { cfg.LogFile = logFile })
	set("timezone", func() { cfg.Timezone = timezone })

	set("sampler", func() { cfg.Sampler = samplerName })
	set("proc-root", func() { cfg.ProcRoot = procRoot })
	set("interval", func() { cfg.SamplingInterval = samplingInterval })
	set("persist-interval", func() { cfg.PersistInterval = persistInterval })
	set("window", func() { cfg.WindowSize = windowSize })
	set("db", func() { cfg.DBPath = dbPath })
	set("db-template", func() { cfg.DBTemplate = dbTemplate })
	set("host", func() { cfg.HTTPHost = httpHost })
	set("port", func() { cfg.HTTPPort = httpPort })
	set("tls-cert", func() { cfg.TLSCertFile = tlsCert })
	set("tls-key", func() { cfg.TLSKeyFile = tlsKey })
	set("metrics", func() { cfg.MetricsEnabled = metricsEnabled })
	set("csv-output", func() { cfg.CSVOutput = csvOutput })
	set("csv-interval", func() { cfg.CSVInterval = csvInterval })
	set("buffer-size", func() { cfg.BufferSize = bufferSize })
	set("flush-interval", func() { cfg.FlushInterval = flushInterval })

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newSampler builds the configured process table backend.
func newSampler(cfg *config.Config, logger *slog.Logger) (sampler.Sampler, error) {
	users, err := sampler.NewUserResolver(cfg.UserCacheSize)
	if err != nil {
		return nil, err
	}
	if cfg.Sampler == config.SamplerGopsutil {
		return sampler.NewGopsutilSampler(users, logger), nil
	}
	if runtime.GOOS != "linux" {
		logger.Warn("procfs sampler selected on a non-Linux platform", "os", runtime.GOOS)
	}
	return sampler.NewProcfsSampler(cfg.ProcRoot, users, logger), nil
}

// runDaemon is the main daemon entry point.
func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}

	logger := InitLogger(cfg.LogLevel, cfg.LogFile)
	logger.Info("Starting procstatd",
		"version", version.Info(),
		"os", runtime.GOOS,
		"arch", runtime.GOARCH,
	)
	logger.Info("Configuration loaded", "config", cfg.String())

	// Setup context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("Received signal, initiating shutdown", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	procSampler, err := newSampler(cfg, logger)
	if err != nil {
		return err
	}

	db, err := store.Open(ctx, cfg.DBPath, cfg.DBTemplate, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("Failed to close database", "error", err)
		}
	}()

	agg, err := collector.NewAggregator(ctx, procSampler, db, collector.Options{Window: cfg.WindowSize}, logger)
	if err != nil {
		return err
	}

	runtimeStats, err := collector.NewRuntimeCollector()
	if err != nil {
		return err
	}

	pages, err := format.NewHTML(web.Assets)
	if err != nil {
		return err
	}

	var metricsHandler http.Handler
	if cfg.MetricsEnabled {
		reg, err := telemetry.NewRegistry(agg)
		if err != nil {
			return err
		}
		metricsHandler = telemetry.Handler(reg)
	}

	hostname, err := os.Hostname()
	if err != nil {
		logger.Warn("Failed to get hostname", "error", err)
		hostname = "localhost"
	}

	srv := server.New(logger)
	srv.RegisterProcStats(&server.Routes{
		Snapshots: agg,
		Runtime:   runtimeStats,
		HTML:      pages,
		Munin: format.MuninLimits{
			JiffiesPerSecond: uint64(sampler.ClockTicks()) * uint64(runtime.NumCPU()),
			BytesPerSecond:   format.DefaultIOLimit,
		},
		Hostname: hostname,
		Metrics:  metricsHandler,
	})

	var wg sync.WaitGroup

	// Optional CSV history
	var snapshots chan *metrics.Snapshot
	if cfg.CSVOutput != "" {
		snapshots = make(chan *metrics.Snapshot, snapshotBuffer)
		csvExporter, err := exporter.NewCSVExporter(cfg, snapshots, logger)
		if err != nil {
			logger.Error("Failed to create CSV exporter", "error", err)
			return err
		}
		defer func() {
			if err := csvExporter.Close(); err != nil {
				logger.Error("Failed to close exporter", "error", err)
			}
		}()

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := csvExporter.Start(ctx); err != nil {
				logger.Error("Exporter stopped with error", "error", err)
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := srv.ListenAndServe(ctx, cfg.Address(), cfg.TLSCertFile, cfg.TLSKeyFile); err != nil {
			logger.Error("Webserver stopped with error", "error", err)
			cancel()
		}
	}()

	mgr := collector.NewManager(cfg, agg, scheduler.New(logger), snapshots, logger)

	logger.Info("procstatd is running", "address", cfg.Address(), "db", db.Path())

	// Blocks until the context is cancelled, then persists once more.
	runErr := mgr.Start(ctx)
	if runErr != nil {
		logger.Error("Collector manager stopped with error", "error", runErr)
	}
	cancel()

	logger.Info("Shutting down...")
	if snapshots != nil {
		close(snapshots)
	}
	wg.Wait()

	logger.Info("Shutdown complete")
	return runErr
}
