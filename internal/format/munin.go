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
	"fmt"
	"strconv"
	"strings"

	"github.com/phuonguno98/procstatd/pkg/metrics"
)

// MuninGraph selects one of the Munin plugin graphs.
type MuninGraph string

// Munin graphs, matching the last path segment of the plugin URL.
const (
	MuninJiffies MuninGraph = "jiffies"
	MuninProcs   MuninGraph = "procs"
	MuninIO      MuninGraph = "io"
)

// ParseMuninGraph validates a graph name.
func ParseMuninGraph(s string) (MuninGraph, error) {
	switch g := MuninGraph(s); g {
	case MuninJiffies, MuninProcs, MuninIO:
		return g, nil
	default:
		return "", fmt.Errorf("unknown munin graph %q", s)
	}
}

// MuninLimits caps DERIVE fields so counter resets do not produce spikes.
type MuninLimits struct {
	JiffiesPerSecond uint64 // clock ticks times CPU count
	BytesPerSecond   uint64
}

// DefaultIOLimit is the per-field I/O cap: 10 GiB/s.
const DefaultIOLimit = 10 << 30

// MuninValues renders "field.value N" lines for graph.
func MuninValues(snap metrics.Snapshot, graph MuninGraph) string {
	var b strings.Builder
	fields := muninFields(snap)
	for i := range snap.Users {
		u := &snap.Users[i]
		field := fields[i]
		switch graph {
		case MuninJiffies:
			writeMuninValue(&b, field, u.Total.Counter[metrics.Jiffies])
		case MuninProcs:
			writeMuninValue(&b, field, uint64(u.Total.Procs))
		case MuninIO:
			writeMuninValue(&b, field+"_read", u.Total.Counter[metrics.IORead])
			writeMuninValue(&b, field+"_write", u.Total.Counter[metrics.IOWrite])
		}
	}
	return b.String()
}

func writeMuninValue(b *strings.Builder, field string, v uint64) {
	b.WriteString(field)
	b.WriteString(".value ")
	b.WriteString(strconv.FormatUint(v, 10))
	b.WriteByte('\n')
}

// MuninConfig renders the graph and field declarations for graph.
func MuninConfig(snap metrics.Snapshot, graph MuninGraph, limits MuninLimits) string {
	var b strings.Builder
	switch graph {
	case MuninJiffies:
		b.WriteString("graph_title CPU usage per user\n")
		b.WriteString("graph_args --base 1000 -l 0\n")
		b.WriteString("graph_vlabel jiffies per ${graph_period}\n")
		b.WriteString("graph_category processes\n")
		b.WriteString("graph_info User and kernel mode clock ticks consumed by each user's processes\n")
	case MuninProcs:
		b.WriteString("graph_title Processes per user\n")
		b.WriteString("graph_args --base 1000 -l 0\n")
		b.WriteString("graph_vlabel processes\n")
		b.WriteString("graph_category processes\n")
	case MuninIO:
		b.WriteString("graph_title Disk I/O per user\n")
		b.WriteString("graph_args --base 1024\n")
		b.WriteString("graph_vlabel bytes read (-) / written (+) per ${graph_period}\n")
		b.WriteString("graph_category disk\n")
	}

	fields := muninFields(snap)
	for i := range snap.Users {
		user := snap.Users[i].User
		field := fields[i]
		draw := "STACK"
		if i == 0 {
			draw = "AREA"
		}

		switch graph {
		case MuninJiffies:
			writeMuninField(&b, field, user, "DERIVE", draw, limits.JiffiesPerSecond)
		case MuninProcs:
			writeMuninField(&b, field, user, "GAUGE", draw, 0)
		case MuninIO:
			ioMax := limits.BytesPerSecond
			if ioMax == 0 {
				ioMax = DefaultIOLimit
			}
			// Reads are drawn mirrored below the axis.
			fmt.Fprintf(&b, "%s_read.label %s\n%s_read.graph no\n", field, user, field)
			fmt.Fprintf(&b, "%s_read.type DERIVE\n%s_read.min 0\n%s_read.max %d\n", field, field, field, ioMax)
			fmt.Fprintf(&b, "%s_write.negative %s_read\n", field, field)
			writeMuninField(&b, field+"_write", user, "DERIVE", "LINE1", ioMax)
		}
	}
	return b.String()
}

func writeMuninField(b *strings.Builder, field, label, typ, draw string, limit uint64) {
	fmt.Fprintf(b, "%s.label %s\n", field, label)
	fmt.Fprintf(b, "%s.draw %s\n", field, draw)
	fmt.Fprintf(b, "%s.type %s\n", field, typ)
	fmt.Fprintf(b, "%s.min 0\n", field)
	if limit > 0 {
		fmt.Fprintf(b, "%s.max %d\n", field, limit)
	}
}

// MuninFieldName maps a user name to a Munin field name: only
// [A-Za-z0-9_], not starting with a digit.
func MuninFieldName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	field := b.String()
	if field == "" || (field[0] >= '0' && field[0] <= '9') {
		field = "_" + field
	}
	return field
}
