// Copyright 2025 Oppie Thunder Contributors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package metrics collects minimal in-process metrics for the archivist
// engine: snapshot/restore latency percentiles and upload counters,
// surfaced by the `stats` CLI command. Kept tiny and lock-based, adapted
// directly from the teacher's internal/metrics/engine_metrics.go.
package metrics

import (
	"sync"
	"time"
)

// EngineMetrics collects latency samples and upload counters across
// Snapshot/Restore calls.
type EngineMetrics struct {
	mu sync.Mutex

	snapshotUS   []int64 // microseconds per Snapshot call (append-only)
	restoreUS    []int64 // microseconds per Restore call (append-only)
	uploadedObjs uint64
	uploadedByts uint64
}

// NewEngineMetrics returns an empty EngineMetrics.
func NewEngineMetrics() *EngineMetrics {
	return &EngineMetrics{
		snapshotUS: make([]int64, 0, 1024),
		restoreUS:  make([]int64, 0, 1024),
	}
}

// ObserveSnapshotLatency records one BackupEngine.Snapshot call's duration.
func (m *EngineMetrics) ObserveSnapshotLatency(d time.Duration) {
	m.mu.Lock()
	m.snapshotUS = append(m.snapshotUS, d.Microseconds())
	m.mu.Unlock()
}

// ObserveRestoreLatency records one RestoreEngine.Restore call's duration.
func (m *EngineMetrics) ObserveRestoreLatency(d time.Duration) {
	m.mu.Lock()
	m.restoreUS = append(m.restoreUS, d.Microseconds())
	m.mu.Unlock()
}

// AddUploadedObjects adds n to the cumulative count of uploaded blobs.
func (m *EngineMetrics) AddUploadedObjects(n uint64) {
	if n == 0 {
		return
	}
	m.mu.Lock()
	m.uploadedObjs += n
	m.mu.Unlock()
}

// AddUploadedBytes adds n to the cumulative count of uploaded bytes.
func (m *EngineMetrics) AddUploadedBytes(n uint64) {
	if n == 0 {
		return
	}
	m.mu.Lock()
	m.uploadedByts += n
	m.mu.Unlock()
}

// Snapshot is a point-in-time percentile/counter summary.
type Snapshot struct {
	SnapshotLatencyUSP50 int64  `json:"snapshot_latency_us_p50"`
	SnapshotLatencyUSP95 int64  `json:"snapshot_latency_us_p95"`
	SnapshotLatencyUSP99 int64  `json:"snapshot_latency_us_p99"`
	RestoreLatencyUSP50  int64  `json:"restore_latency_us_p50"`
	RestoreLatencyUSP95  int64  `json:"restore_latency_us_p95"`
	RestoreLatencyUSP99  int64  `json:"restore_latency_us_p99"`
	UploadedObjects      uint64 `json:"uploaded_objects"`
	UploadedBytes        uint64 `json:"uploaded_bytes"`
}

// Snapshot returns a percentile summary plus counters. Percentiles are
// computed via quickselect on a copy, so the stored series is never
// mutated or sorted in place.
func (m *EngineMetrics) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	return Snapshot{
		SnapshotLatencyUSP50: percentile(m.snapshotUS, 0.50),
		SnapshotLatencyUSP95: percentile(m.snapshotUS, 0.95),
		SnapshotLatencyUSP99: percentile(m.snapshotUS, 0.99),
		RestoreLatencyUSP50:  percentile(m.restoreUS, 0.50),
		RestoreLatencyUSP95:  percentile(m.restoreUS, 0.95),
		RestoreLatencyUSP99:  percentile(m.restoreUS, 0.99),
		UploadedObjects:      m.uploadedObjs,
		UploadedBytes:        m.uploadedByts,
	}
}

func percentile(series []int64, p float64) int64 {
	if len(series) == 0 {
		return 0
	}
	cp := make([]int64, len(series))
	copy(cp, series)
	k := int(float64(len(cp)-1) * p)
	quickselect(cp, 0, len(cp)-1, k)
	return cp[k]
}

func quickselect(a []int64, l, r, k int) {
	for l < r {
		p := partition(a, l, r)
		if k == p {
			return
		} else if k < p {
			r = p - 1
		} else {
			l = p + 1
		}
	}
}

func partition(a []int64, l, r int) int {
	p := a[r]
	i := l
	for j := l; j < r; j++ {
		if a[j] < p {
			a[i], a[j] = a[j], a[i]
			i++
		}
	}
	a[i], a[r] = a[r], a[i]
	return i
}
