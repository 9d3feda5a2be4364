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

package engine

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/oppie-labs/archivist/internal/metrics"
	"github.com/oppie-labs/archivist/pkg/archivist/catalog"
	"github.com/oppie-labs/archivist/pkg/archivist/dedup"
	"github.com/oppie-labs/archivist/pkg/archivist/kvstore"
	"github.com/oppie-labs/archivist/pkg/archivist/tasks"
	"github.com/oppie-labs/archivist/pkg/archivist/types"
	"github.com/oppie-labs/archivist/pkg/archivist/walker"
)

// defaultCheckpointBytes is the cumulative-bytes-uploaded threshold that
// triggers a mid-snapshot manifest checkpoint (spec §4.E step 7, "~10 MB").
const defaultCheckpointBytes = 10 * 1024 * 1024

// defaultTaskSlice is the number of upload tasks the TaskRunner batches
// between checkpoint polls; it is a scheduling grain, not itself the
// checkpoint trigger (that is CheckpointBytes).
const defaultTaskSlice = 64

// BackupOption configures a BackupEngine, mirroring the teacher's
// functional-options style (cas.go's BLAKE3StoreOption).
type BackupOption func(*BackupEngine)

// WithRunner overrides the TaskRunner (default tasks.Sequential{}).
func WithRunner(r tasks.Runner) BackupOption {
	return func(e *BackupEngine) { e.runner = r }
}

// WithCheckpointBytes overrides the checkpoint byte threshold.
func WithCheckpointBytes(n int64) BackupOption {
	return func(e *BackupEngine) { e.checkpointBytes = n }
}

// WithTaskSlice overrides the runner's checkpoint-polling slice size.
func WithTaskSlice(n int) BackupOption {
	return func(e *BackupEngine) { e.taskSlice = n }
}

// WithClock overrides datetime generation (tests use a fixed/incrementing
// sequence instead of the wall clock).
func WithClock(c Clock) BackupOption {
	return func(e *BackupEngine) { e.clock = c }
}

// WithLogger overrides the structured logger (default slog.Default()).
func WithLogger(l *slog.Logger) BackupOption {
	return func(e *BackupEngine) { e.logger = l }
}

// WithMetrics attaches an EngineMetrics sink; Snapshot records its latency
// and the bytes/objects it uploads.
func WithMetrics(m *metrics.EngineMetrics) BackupOption {
	return func(e *BackupEngine) { e.metrics = m }
}

// BackupEngine drives the snapshot protocol of spec §4.E against one
// archive-scoped store and catalog.
type BackupEngine struct {
	store   kvstore.Store
	catalog *catalog.Catalog
	walker  *walker.Walker

	runner          tasks.Runner
	checkpointBytes int64
	taskSlice       int
	clock           Clock
	logger          *slog.Logger
	metrics         *metrics.EngineMetrics
}

// NewBackupEngine returns a BackupEngine. store should already be scoped to
// one archive (e.g. via Store.Submap(name + "/")).
func NewBackupEngine(store kvstore.Store, opts ...BackupOption) *BackupEngine {
	e := &BackupEngine{
		store:           store,
		catalog:         catalog.New(store),
		walker:          walker.New(nil),
		runner:          tasks.Sequential{},
		checkpointBytes: defaultCheckpointBytes,
		taskSlice:       defaultTaskSlice,
		clock:           SystemClock,
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.walker = walker.New(e.logger)
	return e
}

// Snapshot performs one backup of sourceDir, per spec §4.E's eight steps.
func (e *BackupEngine) Snapshot(ctx context.Context, kind types.BackupKind, sourceDir string) (types.BackupRecord, error) {
	start := time.Now()
	record, bytesUploaded, err := e.snapshot(ctx, kind, sourceDir)
	if e.metrics != nil {
		e.metrics.ObserveSnapshotLatency(time.Since(start))
		if err == nil {
			e.metrics.AddUploadedBytes(uint64(bytesUploaded))
		}
	}
	return record, err
}

func (e *BackupEngine) snapshot(ctx context.Context, kind types.BackupKind, sourceDir string) (types.BackupRecord, int64, error) {
	// 1. Walk source -> manifest.
	manifest, err := e.walker.Walk(sourceDir)
	if err != nil {
		return types.BackupRecord{}, 0, err
	}

	// 2. Load records; append a new incomplete record.
	records, err := e.catalog.LoadRecords()
	if err != nil {
		return types.BackupRecord{}, 0, err
	}
	priorRecords := records

	// 4 (decided before persisting, but logically "step 4" in the spec):
	// silently promote Incremental to Full when the archive is empty.
	if kind == types.Incremental && len(priorRecords) == 0 {
		kind = types.Full
		e.logger.Info("backup: no previous records, promoting to full")
	}

	datetime := e.clock()
	record := types.BackupRecord{Kind: kind, Datetime: datetime, Completed: false}
	records = append(records, record)

	// 3. Persist records and manifest at the new datetime: announces intent.
	if err := e.catalog.SaveManifest(datetime, manifest); err != nil {
		return types.BackupRecord{}, 0, err
	}
	if err := e.catalog.SaveRecords(records); err != nil {
		return types.BackupRecord{}, 0, err
	}

	// 4. Seed WrittenIndex from the current group's predecessors.
	written := dedup.New()
	if kind == types.Incremental {
		if err := written.SeedFromGroup(e.catalog, priorRecords); err != nil {
			return types.BackupRecord{}, 0, err
		}
	}

	// 5. Build the upload task list.
	var bytesSinceCheckpoint int64
	var totalBytes int64
	var uploadTasks []tasks.Task
	// scheduled holds hashes already given an upload task in this snapshot,
	// so only the first of several identical files is uploaded.
	scheduled := make(map[types.ContentHash]bool)
	for i := range manifest {
		entry := &manifest[i]
		if !entry.IsFile() {
			continue
		}
		if written.IsWritten(entry.SHA1Hex) || scheduled[entry.SHA1Hex] {
			continue
		}
		scheduled[entry.SHA1Hex] = true
		uploadTasks = append(uploadTasks, &uploadTask{
			store:      e.store,
			sourcePath: sourceFullPath(sourceDir, entry.RelPath),
			datetime:   datetime,
			relPath:    entry.RelPath,
			hash:       entry.SHA1Hex,
			entry:      entry,
			written:    written,
			bytesMoved: &bytesSinceCheckpoint,
			totalBytes: &totalBytes,
		})
	}
	if e.metrics != nil {
		e.metrics.AddUploadedObjects(uint64(len(uploadTasks)))
	}

	// 6 & 7. Run tasks with periodic, byte-threshold-gated checkpointing.
	checkpoint := func() error {
		if atomic.LoadInt64(&bytesSinceCheckpoint) < e.checkpointBytes {
			return nil
		}
		atomic.StoreInt64(&bytesSinceCheckpoint, 0)
		return e.catalog.SaveManifest(datetime, manifest)
	}
	if err := e.runner.Run(ctx, uploadTasks, e.taskSlice, checkpoint); err != nil {
		return types.BackupRecord{}, atomic.LoadInt64(&totalBytes), err
	}
	// Unconditional final checkpoint, regardless of the byte threshold.
	if err := e.catalog.SaveManifest(datetime, manifest); err != nil {
		return types.BackupRecord{}, atomic.LoadInt64(&totalBytes), err
	}

	// 8. Finalise.
	record.Completed = true
	records[len(records)-1] = record
	if err := e.catalog.SaveRecords(records); err != nil {
		return types.BackupRecord{}, atomic.LoadInt64(&totalBytes), err
	}
	return record, atomic.LoadInt64(&totalBytes), nil
}
