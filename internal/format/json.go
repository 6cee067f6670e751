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

// Package format renders snapshots for monitoring tools and browsers.
//
// Every renderer accepts an empty snapshot and produces a well-formed,
// data-less body for it, since an empty snapshot is the normal state
// while the history window fills after startup.
package format

import (
	"bytes"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/phuonguno98/procstatd/pkg/metrics"
)

const jsonIndent = "    "

type jsonProc struct {
	Jiff           uint64 `json:"jiff"`
	Counter        uint64 `json:"counter"`
	Procs          int    `json:"procs"`
	IORead         uint64 `json:"ioread"`
	IOWrite        uint64 `json:"iowrite"`
	IOReadCounter  uint64 `json:"ioread_counter"`
	IOWriteCounter uint64 `json:"iowrite_counter"`
}

func toJSONProc(p *metrics.ProcStats) jsonProc {
	return jsonProc{
		Jiff:           p.Rate[metrics.Jiffies],
		Counter:        p.Counter[metrics.Jiffies],
		Procs:          p.Procs,
		IORead:         p.Rate[metrics.IORead],
		IOWrite:        p.Rate[metrics.IOWrite],
		IOReadCounter:  p.Counter[metrics.IORead],
		IOWriteCounter: p.Counter[metrics.IOWrite],
	}
}

// JSON renders users in name order, each with TOTAL first and then its
// processes in name order. Maps cannot hold that order, so the object is
// assembled by hand and indented afterwards.
func JSON(snap metrics.Snapshot) (string, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i := range snap.Users {
		u := &snap.Users[i]
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeMember(&buf, u.User, nil); err != nil {
			return "", err
		}
		buf.WriteByte('{')
		if err := writeMember(&buf, metrics.TotalName, toJSONProc(&u.Total)); err != nil {
			return "", err
		}
		for j, name := range processKeys(u) {
			buf.WriteByte(',')
			if err := writeMember(&buf, name, toJSONProc(&u.Processes[j])); err != nil {
				return "", err
			}
		}
		buf.WriteByte('}')
	}
	buf.WriteByte('}')

	var out bytes.Buffer
	if err := json.Indent(&out, buf.Bytes(), "", jsonIndent); err != nil {
		return "", fmt.Errorf("failed to indent json: %w", err)
	}
	return out.String(), nil
}

// processKeys names the members of a user object. A process literally
// called TOTAL is renamed so it cannot shadow the user's sum.
func processKeys(u *metrics.UserStats) []string {
	names := make([]string, len(u.Processes))
	for i := range u.Processes {
		names[i] = u.Processes[i].Name
	}
	return uniqueNames(names, metrics.TotalName)
}

// writeMember writes `"key":` followed by value when value is non-nil.
func writeMember(buf *bytes.Buffer, key string, value any) error {
	k, err := json.Marshal(key)
	if err != nil {
		return err
	}
	buf.Write(k)
	buf.WriteByte(':')
	if value == nil {
		return nil
	}
	v, err := json.Marshal(value)
	if err != nil {
		return err
	}
	buf.Write(v)
	return nil
}

type runtimeJSON struct {
	MemoryUsage      uint64     `json:"memory_usage"`
	MemoryUsageHuman string     `json:"memory_usage_human"`
	Uptime           int64      `json:"uptime"`
	HostUptime       int64      `json:"host_uptime"`
	StartedAt        time.Time  `json:"started_at"`
	Load             [3]float64 `json:"load"`
	InstanceID       string     `json:"instance_id"`
	Version          string     `json:"version"`
}

// RuntimeJSON renders daemon runtime stats. Durations are in seconds.
func RuntimeJSON(stats metrics.RuntimeStats) (string, error) {
	data, err := json.MarshalIndent(runtimeJSON{
		MemoryUsage:      stats.MemoryUsage,
		MemoryUsageHuman: humanBytes(stats.MemoryUsage),
		Uptime:           int64(stats.Uptime / time.Second),
		HostUptime:       int64(stats.HostUptime / time.Second),
		StartedAt:        stats.StartedAt,
		Load:             stats.Load,
		InstanceID:       stats.InstanceID,
		Version:          stats.Version,
	}, "", jsonIndent)
	if err != nil {
		return "", fmt.Errorf("failed to encode runtime stats: %w", err)
	}
	return string(data), nil
}
