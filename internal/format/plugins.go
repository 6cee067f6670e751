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
	"strconv"
	"strings"

	"github.com/phuonguno98/procstatd/pkg/metrics"
)

// Nagios renders per-user counters of one family as plugin performance
// data: "OK | alice=123c bob=45c TOTAL=168c ". Values wrap at 2^32.
func Nagios(snap metrics.Snapshot, family metrics.Family) string {
	var b strings.Builder
	b.WriteString("OK | ")
	if snap.Empty() {
		return b.String()
	}
	for i := range snap.Users {
		u := &snap.Users[i]
		writePerfValue(&b, u.User, "=", u.Total.Counter[family], "c ")
	}
	total := snap.GrandTotal()
	writePerfValue(&b, metrics.TotalName, "=", total.Counter[family], "c ")
	return b.String()
}

// Cacti renders the same values as Nagios in the data input method
// format: "alice:123 bob:45 TOTAL:168 ".
func Cacti(snap metrics.Snapshot, family metrics.Family) string {
	if snap.Empty() {
		return ""
	}
	var b strings.Builder
	for i := range snap.Users {
		u := &snap.Users[i]
		writePerfValue(&b, u.User, ":", u.Total.Counter[family], " ")
	}
	total := snap.GrandTotal()
	writePerfValue(&b, metrics.TotalName, ":", total.Counter[family], " ")
	return b.String()
}

func writePerfValue(b *strings.Builder, label, sep string, v uint64, suffix string) {
	b.WriteString(label)
	b.WriteString(sep)
	b.WriteString(strconv.FormatUint(metrics.Wrap32(v), 10))
	b.WriteString(suffix)
}
