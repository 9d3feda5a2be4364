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

// Package cli implements archivist-cli's command handlers, adapted from
// the teacher's cmd/helios-cli/internal/cli: one Handle* function per
// subcommand, an Engine interface for testability, and a DefaultEngineFactory
// wiring the real Pebble-backed store.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/oppie-labs/archivist/internal/blobcache"
	"github.com/oppie-labs/archivist/internal/metrics"
	"github.com/oppie-labs/archivist/pkg/archivist/engine"
	"github.com/oppie-labs/archivist/pkg/archivist/hashtree"
	"github.com/oppie-labs/archivist/pkg/archivist/kvstore"
	"github.com/oppie-labs/archivist/pkg/archivist/types"
	"github.com/oppie-labs/archivist/pkg/archivist/verify"
	"github.com/oppie-labs/archivist/pkg/cli"
)

// Engine is the surface archivist-cli's handlers drive; DefaultEngineFactory
// returns a real instance, tests substitute a fake.
type Engine interface {
	Backup(ctx context.Context, kind types.BackupKind, sourceDir string) (types.BackupRecord, error)
	Restore(ctx context.Context, targetDir string, opts engine.RestoreOpts) error
	List() (string, error)
	Prune(keep int, dryRun bool) (engine.PruneResult, error)
	Verify(ctx context.Context, sourceDir string, datetime string, full bool) ([]hashtree.Difference, error)
	Stats() metrics.Snapshot
	Close() error
}

// Config holds dependencies for the CLI handlers.
type Config struct {
	EngineFactory func() (Engine, error)
}

// HandleBackup processes the `backup` command.
func HandleBackup(w io.Writer, cfg Config, kind types.BackupKind, sourceDir string) error {
	eng, err := cfg.EngineFactory()
	if err != nil {
		return err
	}
	defer eng.Close()

	record, err := eng.Backup(context.Background(), kind, sourceDir)
	if err != nil {
		return err
	}
	return json.NewEncoder(w).Encode(map[string]any{
		"kind":      record.Kind,
		"datetime":  record.Datetime,
		"completed": record.Completed,
	})
}

// HandleRestore processes the `restore` command.
func HandleRestore(w io.Writer, cfg Config, targetDir string, opts engine.RestoreOpts) error {
	eng, err := cfg.EngineFactory()
	if err != nil {
		return err
	}
	defer eng.Close()

	if err := eng.Restore(context.Background(), targetDir, opts); err != nil {
		return err
	}
	return json.NewEncoder(w).Encode(map[string]any{
		"restored": opts.Datetime,
		"out":      targetDir,
	})
}

// HandleList processes the `list` command.
func HandleList(w io.Writer, cfg Config) error {
	eng, err := cfg.EngineFactory()
	if err != nil {
		return err
	}
	defer eng.Close()

	out, err := eng.List()
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, out)
	return err
}

// HandlePrune processes the `prune` command.
func HandlePrune(w io.Writer, cfg Config, keep int, dryRun bool) error {
	eng, err := cfg.EngineFactory()
	if err != nil {
		return err
	}
	defer eng.Close()

	result, err := eng.Prune(keep, dryRun)
	if err != nil {
		return err
	}
	return json.NewEncoder(w).Encode(map[string]any{
		"kept_groups":   result.KeptGroups,
		"pruned_groups": result.PrunedGroups,
		"pruned_dates":  result.PrunedDates,
		"dry_run":       dryRun,
	})
}

// HandleVerify processes the `verify` command: rehashes sourceDir against
// the stored HashTree for datetime and reports every difference found. With
// full=true it instead restores datetime to a scratch directory and
// byte-compares it against sourceDir (spec §4.I "Full").
func HandleVerify(w io.Writer, cfg Config, sourceDir, datetime string, full bool) error {
	eng, err := cfg.EngineFactory()
	if err != nil {
		return err
	}
	defer eng.Close()

	diffs, err := eng.Verify(context.Background(), sourceDir, datetime, full)
	if err != nil {
		return err
	}
	out := make([]string, 0, len(diffs))
	for _, d := range diffs {
		out = append(out, d.String())
	}
	return json.NewEncoder(w).Encode(map[string]any{
		"datetime":    datetime,
		"full":        full,
		"identical":   len(diffs) == 0,
		"differences": out,
	})
}

// HandleStats processes the `stats` command.
func HandleStats(w io.Writer, cfg Config) error {
	eng, err := cfg.EngineFactory()
	if err != nil {
		return err
	}
	defer eng.Close()

	snap := eng.Stats()
	return json.NewEncoder(w).Encode(snap)
}

// archiveEngine adapts engine.Archive + verify.Cache + metrics.EngineMetrics
// to the Engine interface.
type archiveEngine struct {
	db      *kvstore.PebbleStore
	archive *engine.Archive
	metrics *metrics.EngineMetrics
}

var _ Engine = (*archiveEngine)(nil)

func (e *archiveEngine) Backup(ctx context.Context, kind types.BackupKind, sourceDir string) (types.BackupRecord, error) {
	be := e.archive.Backup(engine.WithMetrics(e.metrics))
	return be.Snapshot(ctx, kind, sourceDir)
}

func (e *archiveEngine) Restore(ctx context.Context, targetDir string, opts engine.RestoreOpts) error {
	if opts.VerifyCache == nil {
		opts.VerifyCache = verify.New(e.archive.StoreForVerify())
	}
	re := e.archive.Restore(engine.WithRestoreMetrics(e.metrics))
	return re.Restore(ctx, targetDir, opts)
}

func (e *archiveEngine) List() (string, error) {
	return e.archive.FormatList()
}

func (e *archiveEngine) Prune(keep int, dryRun bool) (engine.PruneResult, error) {
	return e.archive.Prune(keep, dryRun)
}

func (e *archiveEngine) Verify(ctx context.Context, sourceDir, datetime string, full bool) ([]hashtree.Difference, error) {
	if full {
		return e.archive.VerifyFull(ctx, sourceDir, datetime)
	}
	return e.archive.VerifyAgainst(sourceDir, datetime)
}

func (e *archiveEngine) Stats() metrics.Snapshot {
	return e.metrics.Snapshot()
}

func (e *archiveEngine) Close() error {
	return e.db.Close()
}

// DefaultEngineFactory wires a real Pebble-backed archive at
// cli.ResolveStore's directory, matching the teacher's
// DefaultEngineFactory wiring of l1cache/objstore.
func DefaultEngineFactory() (Engine, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("get working directory: %w", err)
	}
	objDir, err := cli.ResolveStore(cwd)
	if err != nil {
		return nil, fmt.Errorf("resolve store directory: %w", err)
	}
	if os.Getenv("ARCHIVIST_DEBUG") == "1" {
		fmt.Fprintf(os.Stderr, "archivist-debug: cwd=%s store=%s\n", cwd, objDir)
	}

	db, err := kvstore.OpenPebble(objDir, nil)
	if err != nil {
		return nil, err
	}
	var store kvstore.Store = db
	if os.Getenv("ARCHIVIST_COMPRESS") == "1" {
		compressed, err := kvstore.NewCompressing(store, 256)
		if err != nil {
			return nil, err
		}
		store = compressed
	}
	if os.Getenv("ARCHIVIST_CACHE") == "1" {
		cached, err := blobcache.New(store, 4096)
		if err != nil {
			return nil, err
		}
		store = cached
	}

	return &archiveEngine{
		db:      db,
		archive: engine.Open(store),
		metrics: metrics.NewEngineMetrics(),
	}, nil
}
