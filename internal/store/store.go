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

// Package store persists reconciled counters in a SQLite file.
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/phuonguno98/procstatd/pkg/metrics"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var (
	// ErrUnavailable means the database could not be opened or created.
	ErrUnavailable = errors.New("store: storage unavailable")
	// ErrWrite means a bulk upsert failed and was rolled back.
	ErrWrite = errors.New("store: write failed")
)

const driverName = "sqlite"

// Store is the SQLite-backed counter store.
type Store struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// Open opens the database at path. A missing file is created by copying
// templatePath; when neither exists Open fails with ErrUnavailable.
func Open(ctx context.Context, path, templatePath string, logger *slog.Logger) (*Store, error) {
	if err := ensureFile(path, templatePath); err != nil {
		return nil, err
	}

	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	// SQLite allows one writer; a single connection keeps transactions simple.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	logger.Info("Counter store opened", "path", path)
	return &Store{db: db, path: path, logger: logger}, nil
}

// CreateTemplate writes an empty, fully migrated database to path.
func CreateTemplate(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("template %s already exists", path)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create template directory: %w", err)
		}
	}

	db, err := sql.Open(driverName, path)
	if err != nil {
		return fmt.Errorf("failed to create template: %w", err)
	}
	defer db.Close()

	if err := migrateUp(db); err != nil {
		return fmt.Errorf("failed to migrate template: %w", err)
	}
	return nil
}

func ensureFile(path, templatePath string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if templatePath == "" {
		return fmt.Errorf("%w: %s does not exist and no template is configured", ErrUnavailable, path)
	}
	src, err := os.Open(templatePath)
	if err != nil {
		return fmt.Errorf("%w: neither %s nor template %s is usable: %v", ErrUnavailable, path, templatePath, err)
	}
	defer src.Close()

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}

	dst, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(path)
		return fmt.Errorf("%w: failed to copy template: %v", ErrUnavailable, err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(path)
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// migrateUp applies embedded migrations. The migrate instance is not
// closed because that would close db as well.
func migrateUp(db *sql.DB) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create iofs source: %w", err)
	}
	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// LoadAll reads every persisted record. LiveProcs is always zero.
func (s *Store) LoadAll(ctx context.Context) (map[metrics.Key]metrics.Record, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT linuxuser, process, "+columnList()+" FROM procstats")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	records := make(map[metrics.Key]metrics.Record)
	for rows.Next() {
		var (
			key  metrics.Key
			vals [2 * metrics.NumFamilies]int64
		)
		dest := []any{&key.User, &key.Process}
		for i := range vals {
			dest = append(dest, &vals[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan counter row: %w", err)
		}

		var rec metrics.Record
		for _, f := range metrics.Families {
			rec.Last[f] = uint64(vals[2*f])
			rec.Counter[f] = uint64(vals[2*f+1])
		}
		records[key] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read counter rows: %w", err)
	}
	return records, nil
}

// BulkUpsert writes all records in one transaction. Rows are updated in
// place when present and inserted otherwise. On any error nothing is
// applied.
func (s *Store) BulkUpsert(ctx context.Context, records map[metrics.Key]metrics.Record) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	update, err := tx.PrepareContext(ctx, updateQuery())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	defer update.Close()

	insert, err := tx.PrepareContext(ctx, insertQuery())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	defer insert.Close()

	for key, rec := range records {
		vals := recordValues(rec)

		res, err := update.ExecContext(ctx, append(vals, key.User, key.Process)...)
		if err != nil {
			return fmt.Errorf("%w: update %s/%s: %v", ErrWrite, key.User, key.Process, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrWrite, err)
		}
		if n > 0 {
			continue
		}
		if _, err := insert.ExecContext(ctx, append([]any{key.User, key.Process}, vals...)...); err != nil {
			return fmt.Errorf("%w: insert %s/%s: %v", ErrWrite, key.User, key.Process, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", ErrWrite, err)
	}
	s.logger.Debug("Counters persisted", "rows", len(records))
	return nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// columns returns "<family>_last, <family>_counter" pairs in family order.
func columns() []string {
	cols := make([]string, 0, 2*metrics.NumFamilies)
	for _, f := range metrics.Families {
		cols = append(cols, f.String()+"_last", f.String()+"_counter")
	}
	return cols
}

func columnList() string {
	return strings.Join(columns(), ", ")
}

func updateQuery() string {
	cols := columns()
	sets := make([]string, len(cols))
	for i, c := range cols {
		sets[i] = c + " = ?"
	}
	return "UPDATE procstats SET " + strings.Join(sets, ", ") + " WHERE linuxuser = ? AND process = ?"
}

func insertQuery() string {
	return "INSERT INTO procstats (linuxuser, process, " + columnList() + ") VALUES (?, ?" +
		strings.Repeat(", ?", len(columns())) + ")"
}

// recordValues flattens a record in column order. SQLite integers are
// signed, so counters are stored with their bit pattern preserved.
func recordValues(rec metrics.Record) []any {
	vals := make([]any, 0, 2*metrics.NumFamilies)
	for _, f := range metrics.Families {
		vals = append(vals, int64(rec.Last[f]), int64(rec.Counter[f]))
	}
	return vals
}
