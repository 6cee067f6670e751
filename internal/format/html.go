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

package format

import (
	"bytes"
	"fmt"
	"html/template"
	"io/fs"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/phuonguno98/procstatd/pkg/metrics"
)

// HTML renders the dashboard and the detail table from embedded templates.
type HTML struct {
	tmpl *template.Template
}

var templateFuncs = template.FuncMap{
	"bytes":   humanBytes,
	"comma":   func(v uint64) string { return humanize.Comma(int64(v)) },
	"since":   humanize.Time,
	"seconds": func(d time.Duration) string { return d.Round(time.Second).String() },
	"jiffies": func(c metrics.Counters) uint64 { return c[metrics.Jiffies] },
	"ioread":  func(c metrics.Counters) uint64 { return c[metrics.IORead] },
	"iowrite": func(c metrics.Counters) uint64 { return c[metrics.IOWrite] },
}

// NewHTML parses templates/*.html from fsys.
func NewHTML(fsys fs.FS) (*HTML, error) {
	tmpl, err := template.New("").Funcs(templateFuncs).ParseFS(fsys, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	return &HTML{tmpl: tmpl}, nil
}

type detailPage struct {
	Snapshot metrics.Snapshot
	Users    []metrics.UserStats
	Total    metrics.ProcStats
	Sort     metrics.SortKey
	Sorts    []metrics.SortKey
}

// Detail renders the per-process table ordered by key.
func (h *HTML) Detail(snap metrics.Snapshot, key metrics.SortKey) (string, error) {
	return h.execute("detail.html", &detailPage{
		Snapshot: snap,
		Users:    metrics.SortUsers(snap.Users, key),
		Total:    snap.GrandTotal(),
		Sort:     key,
		Sorts:    []metrics.SortKey{metrics.SortByName, metrics.SortByJiffies, metrics.SortByProcs, metrics.SortByIORead, metrics.SortByIOWrite},
	})
}

type dashboardPage struct {
	Runtime  metrics.RuntimeStats
	Hostname string
	Snapshot metrics.Snapshot
	Users    []metrics.UserStats
	Total    metrics.ProcStats
}

// Dashboard renders the homepage: runtime stats and per-user totals by
// CPU rate.
func (h *HTML) Dashboard(stats metrics.RuntimeStats, hostname string, snap metrics.Snapshot) (string, error) {
	return h.execute("index.html", &dashboardPage{
		Runtime:  stats,
		Hostname: hostname,
		Snapshot: snap,
		Users:    metrics.SortUsers(snap.Users, metrics.SortByJiffies),
		Total:    snap.GrandTotal(),
	})
}

func (h *HTML) execute(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := h.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("failed to render %s: %w", name, err)
	}
	return buf.String(), nil
}

func humanBytes(v uint64) string {
	return humanize.Bytes(v)
}
