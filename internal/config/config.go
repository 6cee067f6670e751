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

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/caarlos0/env/v9"
	"gopkg.in/yaml.v3"
)

// Config represents application configuration.
type Config struct {
	// Sampling
	ProcRoot         string        `yaml:"proc_root" env:"PROC_ROOT"`                 // procfs mount point
	Sampler          string        `yaml:"sampler" env:"SAMPLER"`                     // procfs or gopsutil
	SamplingInterval time.Duration `yaml:"sampling_interval" env:"SAMPLING_INTERVAL"` // Interval between collect passes
	WindowSize       int           `yaml:"window_size" env:"WINDOW_SIZE"`             // History entries used for rates
	UserCacheSize    int           `yaml:"user_cache_size" env:"USER_CACHE_SIZE"`     // uid -> name LRU size

	// Storage
	DBPath          string        `yaml:"db_path" env:"DB_PATH"`
	DBTemplate      string        `yaml:"db_template" env:"DB_TEMPLATE"`
	PersistInterval time.Duration `yaml:"persist_interval" env:"PERSIST_INTERVAL"`

	// HTTP
	HTTPHost       string `yaml:"http_host" env:"HTTP_HOST"`
	HTTPPort       int    `yaml:"http_port" env:"HTTP_PORT"`
	TLSCertFile    string `yaml:"tls_cert_file" env:"TLS_CERT_FILE"`
	TLSKeyFile     string `yaml:"tls_key_file" env:"TLS_KEY_FILE"`
	MetricsEnabled bool   `yaml:"metrics_enabled" env:"METRICS_ENABLED"`

	// CSV history export (disabled when CSVOutput is empty)
	CSVOutput         string        `yaml:"csv_output" env:"CSV_OUTPUT"`
	CSVInterval       time.Duration `yaml:"csv_interval" env:"CSV_INTERVAL"`
	BufferSize        int           `yaml:"buffer_size" env:"BUFFER_SIZE"`       // Number of records to buffer before flush
	FlushInterval     time.Duration `yaml:"flush_interval" env:"FLUSH_INTERVAL"` // Maximum time before forcing a flush
	MaxOutputFileSize int64         `yaml:"max_output_file_size" env:"MAX_OUTPUT_FILE_SIZE"`

	// Logging
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL"` // Log level: debug, info, warn, error
	LogFile  string `yaml:"log_file" env:"LOG_FILE"`   // Log file path (empty = stdout)

	// Timezone
	Timezone string `yaml:"timezone" env:"TIMEZONE"` // Timezone location (e.g., "Asia/Ho_Chi_Minh", "Local")
}

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "PROCSTATD_"

// Sampler backends.
const (
	SamplerProcfs   = "procfs"
	SamplerGopsutil = "gopsutil"
)

// Default configuration values.
const (
	DefaultProcRoot          = "/proc"
	DefaultSamplingInterval  = 1 * time.Second
	DefaultPersistInterval   = 300 * time.Second
	DefaultWindowSize        = 3
	DefaultUserCacheSize     = 1024
	DefaultDBPath            = "userstats.sqlite"
	DefaultDBTemplate        = "templates/userstats.sqlite"
	DefaultHTTPHost          = "0.0.0.0"
	DefaultHTTPPort          = 8888
	DefaultCSVInterval       = 60 * time.Second
	DefaultBufferSize        = 100
	DefaultFlushInterval     = 5 * time.Second
	DefaultLogLevel          = "info"
	DefaultMaxOutputFileSize = 150 * 1024 * 1024 // 150MB
)

// Default returns a configuration with every field set to its default.
func Default() *Config {
	return &Config{
		ProcRoot:          DefaultProcRoot,
		Sampler:           SamplerProcfs,
		SamplingInterval:  DefaultSamplingInterval,
		WindowSize:        DefaultWindowSize,
		UserCacheSize:     DefaultUserCacheSize,
		DBPath:            DefaultDBPath,
		DBTemplate:        DefaultDBTemplate,
		PersistInterval:   DefaultPersistInterval,
		HTTPHost:          DefaultHTTPHost,
		HTTPPort:          DefaultHTTPPort,
		MetricsEnabled:    true,
		CSVInterval:       DefaultCSVInterval,
		BufferSize:        DefaultBufferSize,
		FlushInterval:     DefaultFlushInterval,
		MaxOutputFileSize: DefaultMaxOutputFileSize,
		LogLevel:          DefaultLogLevel,
	}
}

// Load builds a configuration from defaults, then the YAML file at path
// (skipped when path is empty), then PROCSTATD_* environment variables.
// The result is not validated; flags may still override it.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	return cfg, nil
}

// Address returns the HTTP listen address.
func (c *Config) Address() string {
	return net.JoinHostPort(c.HTTPHost, strconv.Itoa(c.HTTPPort))
}

// TLSEnabled reports whether both certificate and key are configured.
func (c *Config) TLSEnabled() bool {
	return c.TLSCertFile != "" && c.TLSKeyFile != ""
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.SamplingInterval < 1*time.Second {
		return errors.New("sampling interval must be at least 1 second")
	}

	if c.SamplingInterval > 1*time.Hour {
		return errors.New("sampling interval must not exceed 1 hour")
	}

	if c.PersistInterval < c.SamplingInterval {
		return errors.New("persist interval must not be shorter than the sampling interval")
	}

	if c.WindowSize < 2 {
		return errors.New("window size must be at least 2")
	}

	if c.Sampler != SamplerProcfs && c.Sampler != SamplerGopsutil {
		return fmt.Errorf("invalid sampler: %s (must be %s or %s)", c.Sampler, SamplerProcfs, SamplerGopsutil)
	}

	if c.DBPath == "" {
		return errors.New("database path cannot be empty")
	}

	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid http port: %d", c.HTTPPort)
	}

	if (c.TLSCertFile == "") != (c.TLSKeyFile == "") {
		return errors.New("tls certificate and key must be set together")
	}

	if c.CSVOutput != "" {
		if c.BufferSize < 1 {
			return errors.New("buffer size must be at least 1")
		}
		if c.FlushInterval < 1*time.Second {
			return errors.New("flush interval must be at least 1 second")
		}
		if c.CSVInterval < c.SamplingInterval {
			return errors.New("csv interval must not be shorter than the sampling interval")
		}
		if err := ensureParentDir(c.CSVOutput); err != nil {
			return fmt.Errorf("csv output directory check failed: %w", err)
		}
	}

	// Validate log level
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.LogLevel)
	}

	// Validate Timezone
	if c.Timezone != "" {
		if _, err := time.LoadLocation(c.Timezone); err != nil {
			return fmt.Errorf("invalid timezone: %s (%w)", c.Timezone, err)
		}
	}

	return nil
}

// ensureParentDir checks that the directory holding path exists.
func ensureParentDir(path string) error {
	dir := filepath.Dir(path)

	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("directory does not exist: %s", dir)
		}
		return err
	}

	if !info.IsDir() {
		return fmt.Errorf("parent is not a directory: %s", dir)
	}

	return nil
}

// String returns a human-readable representation of the configuration.
func (c *Config) String() string {
	return fmt.Sprintf("Config{Sampler=%s, Interval=%v, Persist=%v, Window=%d, DB=%s, Listen=%s, TLS=%t, CSV=%q}, Timezone=%s",
		c.Sampler, c.SamplingInterval, c.PersistInterval, c.WindowSize, c.DBPath, c.Address(), c.TLSEnabled(), c.CSVOutput, c.Timezone)
}
