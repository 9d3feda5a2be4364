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
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/oppie-labs/archivist/internal/archiveerr"
	"github.com/oppie-labs/archivist/internal/metrics"
	"github.com/oppie-labs/archivist/pkg/archivist/catalog"
	"github.com/oppie-labs/archivist/pkg/archivist/kvstore"
	"github.com/oppie-labs/archivist/pkg/archivist/tasks"
	"github.com/oppie-labs/archivist/pkg/archivist/verify"
)

// RestoreOpts configures one Restore call.
type RestoreOpts struct {
	// Datetime selects the snapshot to restore; empty means the latest
	// record in the archive.
	Datetime string
	// AllowIncomplete permits restoring a snapshot whose tail record has
	// completed=false (spec §4.G step 5).
	AllowIncomplete bool
	// Overwrite permits restoring into a non-empty targetDir (spec §4.G
	// step 6).
	Overwrite bool
	// Include/Exclude are doublestar glob patterns filtering which
	// relPaths get materialised, supplementing the base spec the way the
	// teacher's vst.MatOpts filters vst.Materialize output.
	Include []string
	Exclude []string
	// VerifyCache, if non-nil, records each fetched blob's true hash
	// during the synchronized phase (spec §4.G, "updates the
	// VerificationCache if enabled").
	VerifyCache *verify.Cache
}

// RestoreEngine drives the restore protocol of spec §4.G against one
// archive-scoped store and catalog.
type RestoreEngine struct {
	store   kvstore.Store
	catalog *catalog.Catalog
	runner  tasks.Runner
	logger  *slog.Logger
	metrics *metrics.EngineMetrics
}

// RestoreOption configures a RestoreEngine.
type RestoreOption func(*RestoreEngine)

// WithRestoreRunner overrides the TaskRunner (default tasks.Sequential{}).
func WithRestoreRunner(r tasks.Runner) RestoreOption {
	return func(e *RestoreEngine) { e.runner = r }
}

// WithRestoreLogger overrides the structured logger.
func WithRestoreLogger(l *slog.Logger) RestoreOption {
	return func(e *RestoreEngine) { e.logger = l }
}

// WithRestoreMetrics attaches an EngineMetrics sink; Restore records its
// latency against it.
func WithRestoreMetrics(m *metrics.EngineMetrics) RestoreOption {
	return func(e *RestoreEngine) { e.metrics = m }
}

// NewRestoreEngine returns a RestoreEngine. store should already be scoped
// to one archive.
func NewRestoreEngine(store kvstore.Store, opts ...RestoreOption) *RestoreEngine {
	e := &RestoreEngine{
		store:   store,
		catalog: catalog.New(store),
		runner:  tasks.Sequential{},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Restore performs the seven-step restoration protocol of spec §4.G.
func (e *RestoreEngine) Restore(ctx context.Context, targetDir string, opts RestoreOpts) error {
	start := time.Now()
	err := e.restore(ctx, targetDir, opts)
	if e.metrics != nil {
		e.metrics.ObserveRestoreLatency(time.Since(start))
	}
	return err
}

func (e *RestoreEngine) restore(ctx context.Context, targetDir string, opts RestoreOpts) error {
	// 1. Load records; pick the latest if datetime omitted.
	records, err := e.catalog.LoadRecords()
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return archiveerr.Configuration("no backup records found", nil)
	}
	datetime := opts.Datetime
	if datetime == "" {
		datetime = records[len(records)-1].Datetime
	}
	idx := catalog.FindIndexByDatetime(records, datetime)
	if idx < 0 {
		return archiveerr.Configuration("unknown snapshot datetime: "+datetime, nil)
	}
	target := records[idx]

	// 5. Refuse if incomplete and not allowed.
	if !target.Completed && !opts.AllowIncomplete {
		return archiveerr.Precondition("snapshot %s is incomplete (allowIncomplete=false)", datetime)
	}

	// 2. Find the enclosing backup group.
	group, ok := catalog.EnclosingGroup(records, datetime)
	if !ok {
		return archiveerr.Configuration("unknown snapshot datetime: "+datetime, nil)
	}

	// 3 & 4. Resolve, across the group, the actual write location of every
	// referenced hash (later writes win ties, per spec §4.G step 4).
	locations, targetManifest, err := resolveGroupManifests(e.catalog, group, datetime)
	if err != nil {
		return err
	}

	// 6. Refuse if targetDir is non-empty and overwrite is false.
	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return archiveerr.Io("mkdir", targetDir, err)
	}
	entries, err := os.ReadDir(targetDir)
	if err != nil {
		return archiveerr.Io("readdir", targetDir, err)
	}
	if len(entries) > 0 && !opts.Overwrite {
		return archiveerr.Precondition("restore target %s is not empty (overwrite=false)", targetDir)
	}

	// 7. Replay the target manifest in order.
	integrity := archiveerr.NewIntegrity("restore: manifest references missing content")
	var fetchTasks []tasks.Task
	for _, s := range targetManifest {
		if !includeFilter(s.RelPath, opts.Include, opts.Exclude) {
			continue
		}
		destPath := filepath.Join(targetDir, filepath.FromSlash(strings.TrimPrefix(s.RelPath, "/")))
		if s.IsDir() {
			if err := os.MkdirAll(destPath, 0o755); err != nil {
				return archiveerr.Io("mkdir", destPath, err)
			}
			continue
		}
		loc, ok := locations[s.SHA1Hex]
		if !ok {
			e.logger.Warn("restore: no written content found for path", "path", s.RelPath, "hash", s.SHA1Hex)
			integrity.Add(s.RelPath + ": no content key for hash " + string(s.SHA1Hex))
			continue
		}
		fetchTasks = append(fetchTasks, &fetchTask{
			store:      e.store,
			contentKey: loc.Key(),
			destPath:   destPath,
			datetime:   loc.Datetime,
			relPath:    loc.RelPath,
			cache:      opts.VerifyCache,
		})
	}

	if err := e.runner.Run(ctx, fetchTasks, len(fetchTasks), nil); err != nil {
		return err
	}
	if opts.VerifyCache != nil {
		if err := opts.VerifyCache.Flush(); err != nil {
			return err
		}
	}

	if integrity.HasDetails() {
		return integrity
	}
	return nil
}

// includeFilter applies doublestar glob Include/Exclude filtering to a
// manifest relPath, grounded in the teacher's vst.Materialize
// shouldMaterialize/matchGlob helpers.
func includeFilter(relPath string, include, exclude []string) bool {
	path := strings.TrimPrefix(relPath, "/")
	if len(include) > 0 {
		matched := false
		for _, pattern := range include {
			if ok, _ := doublestar.PathMatch(pattern, path); ok {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	for _, pattern := range exclude {
		if ok, _ := doublestar.PathMatch(pattern, path); ok {
			return false
		}
	}
	return true
}
