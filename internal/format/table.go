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
	"strings"

	"github.com/phuonguno98/procstatd/pkg/metrics"
)

const tableWidth = 88

// Table renders a snapshot as a fixed-width text table with one row per
// process and a TOTAL row closing each user.
func Table(snap metrics.Snapshot) string {
	var sb strings.Builder

	sb.WriteString(strings.Repeat("=", tableWidth))
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("%-16s %-24s %6s %10s %13s %13s\n", "USER", "PROCESS", "PROCS", "JIFF/S", "READ/S", "WRITE/S"))
	sb.WriteString(strings.Repeat("-", tableWidth))
	sb.WriteString("\n")

	if snap.Empty() {
		sb.WriteString("No data yet.\n")
	}
	for i := range snap.Users {
		u := &snap.Users[i]
		for j := range u.Processes {
			writeTableRow(&sb, u.User, &u.Processes[j])
		}
		writeTableRow(&sb, u.User, &u.Total)
	}

	sb.WriteString(strings.Repeat("=", tableWidth))
	sb.WriteString("\n")
	return sb.String()
}

func writeTableRow(sb *strings.Builder, user string, p *metrics.ProcStats) {
	sb.WriteString(fmt.Sprintf("%-16s %-24s %6d %10d %13s %13s\n",
		truncate(user, 16),
		truncate(p.Name, 24),
		p.Procs,
		p.Rate[metrics.Jiffies],
		humanBytes(p.Rate[metrics.IORead])+"/s",
		humanBytes(p.Rate[metrics.IOWrite])+"/s",
	))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
