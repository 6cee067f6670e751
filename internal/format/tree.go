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
	"sort"
	"strings"

	"github.com/phuonguno98/procstatd/internal/sampler"
	"github.com/phuonguno98/procstatd/pkg/metrics"
)

const treeIndent = 8

// Tree renders a sample as an indented process tree, one line per pid:
// "pid - name - user | jiffies / ioread / iowrite". Pids whose parent is
// not in the sample are printed as roots, and every pid is printed once.
func Tree(table sampler.Table) string {
	children := table.Children()

	var roots []int
	for pid := range table {
		if _, ok := table[table[pid].PPID]; !ok || table[pid].PPID == pid {
			roots = append(roots, pid)
		}
	}
	sort.Ints(roots)

	var b strings.Builder
	visited := make(map[int]bool, len(table))
	for _, pid := range roots {
		writeTree(&b, table, children, visited, pid, 0)
	}

	// Parent cycles have no root; start each one from its lowest pid.
	if len(visited) < len(table) {
		rest := make([]int, 0, len(table)-len(visited))
		for pid := range table {
			if !visited[pid] {
				rest = append(rest, pid)
			}
		}
		sort.Ints(rest)
		for _, pid := range rest {
			writeTree(&b, table, children, visited, pid, 0)
		}
	}
	return b.String()
}

func writeTree(b *strings.Builder, table sampler.Table, children map[int][]int, visited map[int]bool, pid, level int) {
	if visited[pid] {
		return
	}
	visited[pid] = true

	p := table[pid]
	b.WriteString(strings.Repeat(" ", level*treeIndent))
	fmt.Fprintf(b, "%d - %s - %s | %d", p.PID, p.Name, p.User, p.Counters[metrics.Jiffies])
	if p.HasIO {
		fmt.Fprintf(b, " / %d / %d", p.Counters[metrics.IORead], p.Counters[metrics.IOWrite])
	}
	b.WriteByte('\n')

	for _, child := range children[pid] {
		writeTree(b, table, children, visited, child, level+1)
	}
}
