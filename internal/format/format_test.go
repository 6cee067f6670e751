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
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/phuonguno98/procstatd/internal/sampler"
	"github.com/phuonguno98/procstatd/pkg/metrics"
	"github.com/phuonguno98/procstatd/web"
)

func sampleSnapshot() metrics.Snapshot {
	worker := metrics.ProcStats{Name: "worker", Rate: metrics.Counters{125, 4096, 0}, Counter: metrics.Counters{1250, 8192, 10}, Procs: 2}
	bash := metrics.ProcStats{Name: "bash", Rate: metrics.Counters{1, 0, 0}, Counter: metrics.Counters{30, 0, 0}, Procs: 1}
	nginx := metrics.ProcStats{Name: "nginx", Rate: metrics.Counters{10, 0, 512}, Counter: metrics.Counters{1<<32 + 5, 0, 1024}, Procs: 4}

	alice := metrics.UserStats{User: "alice", Processes: []metrics.ProcStats{bash, worker}}
	www := metrics.UserStats{User: "www-data", Processes: []metrics.ProcStats{nginx}}
	for _, u := range []*metrics.UserStats{&alice, &www} {
		u.Total.Name = metrics.TotalName
		for _, p := range u.Processes {
			u.Total.Rate = u.Total.Rate.Add(p.Rate)
			u.Total.Counter = u.Total.Counter.Add(p.Counter)
			u.Total.Procs += p.Procs
		}
	}
	return metrics.Snapshot{
		TakenAt: time.Date(2026, 1, 1, 0, 0, 2, 0, time.UTC),
		Window:  2 * time.Second,
		Users:   []metrics.UserStats{alice, www},
	}
}

func TestJSON(t *testing.T) {
	out, err := JSON(sampleSnapshot())
	if err != nil {
		t.Fatalf("JSON() error = %v", err)
	}

	var decoded map[string]map[string]jsonProc
	if err := json.Unmarshal([]byte(out), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v\n%s", err, out)
	}
	if got := decoded["alice"]["worker"]; got.Jiff != 125 || got.Counter != 1250 || got.Procs != 2 || got.IOReadCounter != 8192 {
		t.Errorf("alice/worker = %+v", got)
	}
	if got := decoded["alice"][metrics.TotalName]; got.Jiff != 126 || got.Counter != 1280 || got.Procs != 3 {
		t.Errorf("alice/TOTAL = %+v", got)
	}

	// TOTAL comes first inside each user, users in name order.
	if strings.Index(out, `"TOTAL"`) > strings.Index(out, `"bash"`) {
		t.Error("TOTAL should precede processes")
	}
	if strings.Index(out, `"alice"`) > strings.Index(out, `"www-data"`) {
		t.Error("users should be in name order")
	}
	if !strings.Contains(out, "\n    \"alice\"") {
		t.Errorf("output should be indented:\n%s", out)
	}
}

func TestJSON_Empty(t *testing.T) {
	out, err := JSON(metrics.Snapshot{})
	if err != nil {
		t.Fatalf("JSON() error = %v", err)
	}
	if out != "{}" {
		t.Errorf("JSON(empty) = %q, want {}", out)
	}
}

func TestRuntimeJSON(t *testing.T) {
	out, err := RuntimeJSON(metrics.RuntimeStats{
		InstanceID:  "abc",
		Version:     "dev",
		Uptime:      90 * time.Second,
		MemoryUsage: 2 * 1000 * 1000,
		Load:        [3]float64{0.5, 0.25, 0.1},
	})
	if err != nil {
		t.Fatalf("RuntimeJSON() error = %v", err)
	}

	var decoded runtimeJSON
	if err := json.Unmarshal([]byte(out), &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if decoded.Uptime != 90 || decoded.InstanceID != "abc" || decoded.MemoryUsageHuman != "2.0 MB" || decoded.Load[1] != 0.25 {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestNagios(t *testing.T) {
	snap := sampleSnapshot()

	tests := []struct {
		name   string
		family metrics.Family
		want   string
	}{
		// www-data jiffies counter is 2^32+5 and wraps to 5.
		{"jiffies", metrics.Jiffies, "OK | alice=1280c www-data=5c TOTAL=1285c "},
		{"iowrite", metrics.IOWrite, "OK | alice=10c www-data=1024c TOTAL=1034c "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Nagios(snap, tt.family); got != tt.want {
				t.Errorf("Nagios() = %q, want %q", got, tt.want)
			}
		})
	}

	if got := Nagios(metrics.Snapshot{}, metrics.Jiffies); got != "OK | " {
		t.Errorf("Nagios(empty) = %q", got)
	}
}

func TestCacti(t *testing.T) {
	if got, want := Cacti(sampleSnapshot(), metrics.Jiffies), "alice:1280 www-data:5 TOTAL:1285 "; got != want {
		t.Errorf("Cacti() = %q, want %q", got, want)
	}
	if got := Cacti(metrics.Snapshot{}, metrics.Jiffies); got != "" {
		t.Errorf("Cacti(empty) = %q, want empty", got)
	}
}

func TestMuninValues(t *testing.T) {
	snap := sampleSnapshot()

	tests := []struct {
		graph MuninGraph
		want  string
	}{
		{MuninJiffies, "alice.value 1280\nwww_data.value 4294967301\n"},
		{MuninProcs, "alice.value 3\nwww_data.value 4\n"},
		{MuninIO, "alice_read.value 8192\nalice_write.value 10\nwww_data_read.value 0\nwww_data_write.value 1024\n"},
	}
	for _, tt := range tests {
		t.Run(string(tt.graph), func(t *testing.T) {
			if got := MuninValues(snap, tt.graph); got != tt.want {
				t.Errorf("MuninValues() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMuninConfig(t *testing.T) {
	out := MuninConfig(sampleSnapshot(), MuninJiffies, MuninLimits{JiffiesPerSecond: 800})
	for _, want := range []string{
		"graph_title CPU usage per user\n",
		"alice.label alice\n",
		"alice.draw AREA\n",
		"alice.type DERIVE\n",
		"alice.min 0\n",
		"alice.max 800\n",
		"www_data.label www-data\n",
		"www_data.draw STACK\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("config missing %q:\n%s", want, out)
		}
	}

	procs := MuninConfig(sampleSnapshot(), MuninProcs, MuninLimits{})
	if !strings.Contains(procs, "alice.type GAUGE\n") || strings.Contains(procs, ".max") {
		t.Errorf("procs config = %s", procs)
	}

	io := MuninConfig(sampleSnapshot(), MuninIO, MuninLimits{})
	if !strings.Contains(io, "alice_write.negative alice_read\n") || !strings.Contains(io, "alice_read.max 10737418240\n") {
		t.Errorf("io config = %s", io)
	}
}

func TestMuninFieldName(t *testing.T) {
	tests := map[string]string{
		"alice":    "alice",
		"www-data": "www_data",
		"[1000]":   "_1000_",
		"9user":    "_9user",
		"":         "_",
	}
	for in, want := range tests {
		if got := MuninFieldName(in); got != want {
			t.Errorf("MuninFieldName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseMuninGraph(t *testing.T) {
	if _, err := ParseMuninGraph("io"); err != nil {
		t.Errorf("ParseMuninGraph(io) error = %v", err)
	}
	if _, err := ParseMuninGraph("disk"); err == nil {
		t.Error("ParseMuninGraph(disk) should fail")
	}
}

func TestHTML(t *testing.T) {
	h, err := NewHTML(web.Assets)
	if err != nil {
		t.Fatalf("NewHTML() error = %v", err)
	}

	detail, err := h.Detail(sampleSnapshot(), metrics.SortByProcs)
	if err != nil {
		t.Fatalf("Detail() error = %v", err)
	}
	// www-data has more processes and sorts first.
	if strings.Index(detail, "www-data") > strings.Index(detail, "alice") {
		t.Error("detail should be sorted by process count")
	}
	if !strings.Contains(detail, "<b>procs</b>") {
		t.Error("active sort key should be highlighted")
	}
	if !strings.Contains(detail, "4.1 kB") {
		t.Error("byte rates should be humanized")
	}

	empty, err := h.Detail(metrics.Snapshot{}, metrics.SortByName)
	if err != nil {
		t.Fatalf("Detail(empty) error = %v", err)
	}
	if !strings.Contains(empty, "No data yet") {
		t.Error("empty detail should say there is no data")
	}

	dash, err := h.Dashboard(metrics.RuntimeStats{Version: "v1.0.0", StartedAt: time.Now()}, "web01", sampleSnapshot())
	if err != nil {
		t.Fatalf("Dashboard() error = %v", err)
	}
	if !strings.Contains(dash, "procstatd on web01") || !strings.Contains(dash, "v1.0.0") {
		t.Error("dashboard should show host and version")
	}
	if !strings.Contains(dash, "4,294,968,581") {
		t.Errorf("dashboard should show the grand total jiffies counter")
	}
}

func TestTree(t *testing.T) {
	table := sampler.Table{
		1:  {PID: 1, PPID: 0, Name: "init", User: "root", Counters: metrics.Counters{10}},
		50: {PID: 50, PPID: 1, Name: "php-fpm", User: "www", Counters: metrics.Counters{20, 1, 2}, HasIO: true},
		51: {PID: 51, PPID: 50, Name: "php-fpm", User: "www", Counters: metrics.Counters{5}},
	}

	want := "1 - init - root | 10\n" +
		"        50 - php-fpm - www | 20 / 1 / 2\n" +
		"                51 - php-fpm - www | 5\n"
	if got := Tree(table); got != want {
		t.Errorf("Tree() =\n%s\nwant\n%s", got, want)
	}
}

func TestTable(t *testing.T) {
	got := Table(sampleSnapshot())

	lines := strings.Split(strings.TrimSpace(got), "\n")
	// header block (3 lines), 3 process rows, 2 TOTAL rows, footer
	if len(lines) != 9 {
		t.Fatalf("Table() has %d lines, want 9:\n%s", len(lines), got)
	}
	if !strings.HasPrefix(lines[1], "USER") {
		t.Errorf("header = %q", lines[1])
	}
	if fields := strings.Fields(lines[4]); fields[0] != "alice" || fields[1] != "worker" || fields[3] != "125" {
		t.Errorf("worker row = %q", lines[4])
	}
	if !strings.Contains(lines[4], "4.1 kB/s") {
		t.Errorf("worker row should show the read rate: %q", lines[4])
	}
	if fields := strings.Fields(lines[5]); fields[1] != metrics.TotalName || fields[2] != "3" {
		t.Errorf("alice total row = %q", lines[5])
	}

	if empty := Table(metrics.Snapshot{}); !strings.Contains(empty, "No data yet.") {
		t.Errorf("empty table should say there is no data:\n%s", empty)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"a-very-long-process-name", 10, "a-very-..."},
		{"abcdef", 2, "ab"},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.n); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}

func TestTree_ParentCycle(t *testing.T) {
	table := sampler.Table{
		1:  {PID: 1, PPID: 0, Name: "init", User: "root", Counters: metrics.Counters{1}},
		10: {PID: 10, PPID: 11, Name: "a", User: "u"},
		11: {PID: 11, PPID: 10, Name: "b", User: "u"},
	}

	want := "1 - init - root | 1\n" +
		"10 - a - u | 0\n" +
		"        11 - b - u | 0\n"
	if got := Tree(table); got != want {
		t.Errorf("Tree() =\n%s\nwant\n%s", got, want)
	}
}

func TestUniqueNames(t *testing.T) {
	tests := []struct {
		name     string
		in       []string
		reserved []string
		want     []string
	}{
		{"distinct", []string{"a", "b"}, nil, []string{"a", "b"}},
		{"collision", []string{"a_b", "a_b", "a_b"}, nil, []string{"a_b", "a_b_2", "a_b_3"}},
		{"reserved", []string{"TOTAL", "worker"}, []string{"TOTAL"}, []string{"TOTAL_2", "worker"}},
		{"generated name taken later", []string{"x", "x", "x_2"}, nil, []string{"x", "x_2", "x_2_2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := uniqueNames(tt.in, tt.reserved...)
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("uniqueNames() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestJSON_ProcessNamedTotal(t *testing.T) {
	fake := metrics.ProcStats{Name: metrics.TotalName, Counter: metrics.Counters{7}, Procs: 1}
	snap := metrics.Snapshot{Users: []metrics.UserStats{{
		User:      "alice",
		Total:     metrics.ProcStats{Name: metrics.TotalName, Counter: metrics.Counters{7}, Procs: 1},
		Processes: []metrics.ProcStats{fake},
	}}}

	out, err := JSON(snap)
	if err != nil {
		t.Fatalf("JSON() error = %v", err)
	}
	if n := strings.Count(out, `"TOTAL"`); n != 1 {
		t.Errorf("TOTAL appears %d times, want 1:\n%s", n, out)
	}

	var decoded map[string]map[string]jsonProc
	if err := json.Unmarshal([]byte(out), &decoded); err != nil {
		t.Fatal(err)
	}
	if got := decoded["alice"]["TOTAL_2"]; got.Counter != 7 {
		t.Errorf("renamed process = %+v", got)
	}
}

func TestMunin_CollidingUsers(t *testing.T) {
	snap := metrics.Snapshot{Users: []metrics.UserStats{
		{User: "a-b", Total: metrics.ProcStats{Counter: metrics.Counters{1}}},
		{User: "a.b", Total: metrics.ProcStats{Counter: metrics.Counters{2}}},
	}}

	if got, want := MuninValues(snap, MuninJiffies), "a_b.value 1\na_b_2.value 2\n"; got != want {
		t.Errorf("MuninValues() = %q, want %q", got, want)
	}
	cfg := MuninConfig(snap, MuninJiffies, MuninLimits{})
	for _, want := range []string{"a_b.label a-b\n", "a_b_2.label a.b\n"} {
		if !strings.Contains(cfg, want) {
			t.Errorf("config missing %q:\n%s", want, cfg)
		}
	}
}
