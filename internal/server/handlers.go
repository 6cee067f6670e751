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

package server

import (
	"net/http"

	"github.com/phuonguno98/procstatd/internal/format"
	"github.com/phuonguno98/procstatd/internal/sampler"
	"github.com/phuonguno98/procstatd/pkg/metrics"
)

// SnapshotSource provides the data behind the procstats endpoints.
type SnapshotSource interface {
	Snapshot() metrics.Snapshot
	LastTable() sampler.Table
}

// RuntimeSource provides daemon runtime stats.
type RuntimeSource interface {
	Collect() (metrics.RuntimeStats, error)
}

// Routes bundles what the procstats endpoints render.
type Routes struct {
	Snapshots SnapshotSource
	Runtime   RuntimeSource
	HTML      *format.HTML
	Munin     format.MuninLimits
	Hostname  string
	Metrics   http.Handler // nil disables /metrics
}

// RegisterProcStats mounts every procstats endpoint.
func (s *Server) RegisterProcStats(rt *Routes) {
	s.RegisterHandler("/", ContentTypeHTML, func(RequestInfo) (string, error) {
		return rt.HTML.Dashboard(s.runtimeStats(rt), rt.Hostname, rt.Snapshots.Snapshot())
	})
	s.RegisterHandler("/runtimestats.js", ContentTypeJSON, func(RequestInfo) (string, error) {
		return format.RuntimeJSON(s.runtimeStats(rt))
	})
	s.RegisterHandler("/procstats_json", ContentTypeJSON, func(RequestInfo) (string, error) {
		return format.JSON(rt.Snapshots.Snapshot())
	})
	s.RegisterHandler("/procstats_nagios", ContentTypeText, func(req RequestInfo) (string, error) {
		family, err := familyParam(req)
		if err != nil {
			return "", err
		}
		return format.Nagios(rt.Snapshots.Snapshot(), family), nil
	})
	s.RegisterHandler("/procstats_cacti", ContentTypeText, func(req RequestInfo) (string, error) {
		family, err := familyParam(req)
		if err != nil {
			return "", err
		}
		return format.Cacti(rt.Snapshots.Snapshot(), family), nil
	})
	s.RegisterHandler("/procstats/munin/{graph:jiffies|procs|io}/", ContentTypeText, func(req RequestInfo) (string, error) {
		graph, err := format.ParseMuninGraph(req.Vars["graph"])
		if err != nil {
			return "", err
		}
		snap := rt.Snapshots.Snapshot()
		if req.QueryString == "config" {
			return format.MuninConfig(snap, graph, rt.Munin), nil
		}
		return format.MuninValues(snap, graph), nil
	})
	s.RegisterHandler("/procstats_detail_html", ContentTypeHTML, func(req RequestInfo) (string, error) {
		key, err := metrics.ParseSortKey(req.Query().Get("sort"))
		if err != nil {
			return "", err
		}
		return rt.HTML.Detail(rt.Snapshots.Snapshot(), key)
	})
	s.RegisterHandler("/procstats_debugcollect", ContentTypeText, func(RequestInfo) (string, error) {
		return format.Tree(rt.Snapshots.LastTable()), nil
	})

	if rt.Metrics != nil {
		s.Handle("/metrics", rt.Metrics)
	}
}

// runtimeStats collects runtime stats; fields that cannot be read stay zero.
func (s *Server) runtimeStats(rt *Routes) metrics.RuntimeStats {
	stats, err := rt.Runtime.Collect()
	if err != nil {
		s.logger.Debug("Runtime stats incomplete", "error", err)
	}
	return stats
}

// familyParam reads ?family=, defaulting to jiffies.
func familyParam(req RequestInfo) (metrics.Family, error) {
	name := req.Query().Get("family")
	if name == "" {
		return metrics.Jiffies, nil
	}
	return metrics.ParseFamily(name)
}
