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
	"fmt"
	"os"
	"strings"

	"github.com/oppie-labs/archivist/internal/archiveerr"
	"github.com/oppie-labs/archivist/pkg/archivist/catalog"
	"github.com/oppie-labs/archivist/pkg/archivist/hashtree"
	"github.com/oppie-labs/archivist/pkg/archivist/kvstore"
	"github.com/oppie-labs/archivist/pkg/archivist/types"
	"github.com/oppie-labs/archivist/pkg/archivist/verify"
	"github.com/oppie-labs/archivist/pkg/archivist/walker"
)

// Archive ties one kvstore.Store (scoped to a single named archive) to its
// catalog, and is the entry point the CLI builds Backup/Restore engines and
// runs List/Prune from — the "engine surface" named in spec §6.
type Archive struct {
	store   kvstore.Store
	catalog *catalog.Catalog
}

// Open returns an Archive backed by store.
func Open(store kvstore.Store) *Archive {
	return &Archive{store: store, catalog: catalog.New(store)}
}

// Backup returns a BackupEngine bound to this archive's store.
func (a *Archive) Backup(opts ...BackupOption) *BackupEngine {
	return NewBackupEngine(a.store, opts...)
}

// Restore returns a RestoreEngine bound to this archive's store.
func (a *Archive) Restore(opts ...RestoreOption) *RestoreEngine {
	return NewRestoreEngine(a.store, opts...)
}

// StoreForVerify exposes the archive's underlying store, so a caller can
// build a verify.Cache against the same key space a BackupEngine/
// RestoreEngine built from this Archive writes into.
func (a *Archive) StoreForVerify() kvstore.Store {
	return a.store
}

// VerifyAgainst re-walks sourceDir, folds it into a HashTree, and compares
// it structurally against the HashTree of the manifest stored at datetime
// (spec §4.H): the `verify` CLI command's incremental mode. An empty
// result means the two trees are identical.
//
// The right-hand tree is built from hashes read back and rehashed from the
// store via the VerificationCache, not from the manifest's claimed
// SHA1Hex — per spec §9, this is intentional: it is what lets an
// incremental verify detect store-side corruption (bytes that no longer
// hash to what the manifest recorded), not just drift in sourceDir.
func (a *Archive) VerifyAgainst(sourceDir, datetime string) ([]hashtree.Difference, error) {
	records, err := a.catalog.LoadRecords()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, archiveerr.Configuration("no backup records found", nil)
	}
	if datetime == "" {
		datetime = records[len(records)-1].Datetime
	}
	group, ok := catalog.EnclosingGroup(records, datetime)
	if !ok {
		return nil, archiveerr.Configuration("unknown snapshot datetime: "+datetime, nil)
	}

	w := walker.New(nil)
	liveManifest, err := w.Walk(sourceDir)
	if err != nil {
		return nil, err
	}

	locations, storedManifest, err := resolveGroupManifests(a.catalog, group, datetime)
	if err != nil {
		return nil, err
	}
	cache := verify.New(a.store)
	verifiedManifest := make([]types.PathSummary, len(storedManifest))
	for i, s := range storedManifest {
		if !s.IsFile() {
			verifiedManifest[i] = s
			continue
		}
		loc, ok := locations[s.SHA1Hex]
		if !ok {
			verifiedManifest[i] = s
			continue
		}
		verifiedHash, err := cache.VerifiedHash(loc.Datetime, loc.RelPath)
		if err != nil {
			return nil, err
		}
		s.SHA1Hex = verifiedHash
		verifiedManifest[i] = s
	}
	if err := cache.Flush(); err != nil {
		return nil, err
	}

	left := hashtree.Build(liveManifest)
	right := hashtree.Build(verifiedManifest)
	return hashtree.Compare(left, right), nil
}

// VerifyFull restores datetime into a scratch directory and byte-compares
// it against sourceDir (spec §4.I "Full"): the `verify` command's full
// mode, catching bit-for-bit restore defects that the incremental,
// hash-only VerifyAgainst cannot see (e.g. a blob fetched correctly but
// written to the wrong destination). The scratch directory is removed
// before returning.
func (a *Archive) VerifyFull(ctx context.Context, sourceDir, datetime string) ([]hashtree.Difference, error) {
	scratch, err := os.MkdirTemp("", "archivist-verify-full-*")
	if err != nil {
		return nil, archiveerr.Io("mkdtemp", "", err)
	}
	defer os.RemoveAll(scratch)

	re := a.Restore()
	if err := re.Restore(ctx, scratch, RestoreOpts{Datetime: datetime, Overwrite: true}); err != nil {
		return nil, err
	}
	return hashtree.CompareBytes(sourceDir, scratch)
}

// ListBackups returns the archive's backup groups in chronological order
// (spec §6, "listBackups(name)").
func (a *Archive) ListBackups() ([]catalog.BackupGroup, error) {
	records, err := a.catalog.LoadRecords()
	if err != nil {
		return nil, err
	}
	return catalog.GroupRecords(records), nil
}

// FormatList renders ListBackups the way a CLI `list` command prints it: a
// `*` marker at each group head, and an `(incomplete)` flag on any
// uncompleted tail record.
func (a *Archive) FormatList() (string, error) {
	groups, err := a.ListBackups()
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, g := range groups {
		for i, r := range g.Records {
			marker := "  "
			if i == 0 {
				marker = "* "
			}
			fmt.Fprintf(&b, "%s%s %s", marker, r.Kind, r.Datetime)
			if !r.Completed {
				b.WriteString(" (incomplete)")
			}
			b.WriteString("\n")
		}
	}
	return b.String(), nil
}

// PruneResult reports what a Prune call did (or would do, for a dry run).
type PruneResult struct {
	KeptGroups    int
	PrunedGroups  int
	PrunedDates   []string
	SurvivingList []catalog.BackupGroup
}

// Prune keeps the `keep` most recent backup groups (spec §6,
// "pruneBackups(name, keep, dryRun)"): it deletes every key under each
// pruned group's datetimes and rewrites backupRecords to retain only the
// surviving groups. keep<1 is a PreconditionError. If keep is at least the
// number of groups present, Prune is a no-op. dryRun computes and returns
// the same PruneResult without mutating the store.
func (a *Archive) Prune(keep int, dryRun bool) (PruneResult, error) {
	if keep < 1 {
		return PruneResult{}, archiveerr.Precondition("prune keep must be >= 1, got %d", keep)
	}
	records, err := a.catalog.LoadRecords()
	if err != nil {
		return PruneResult{}, err
	}
	groups := catalog.GroupRecords(records)
	if keep >= len(groups) {
		return PruneResult{KeptGroups: len(groups), SurvivingList: groups}, nil
	}

	pruned := groups[:len(groups)-keep]
	surviving := groups[len(groups)-keep:]

	result := PruneResult{
		KeptGroups:    len(surviving),
		PrunedGroups:  len(pruned),
		SurvivingList: surviving,
	}
	for _, g := range pruned {
		for _, r := range g.Records {
			result.PrunedDates = append(result.PrunedDates, r.Datetime)
		}
	}
	if dryRun {
		return result, nil
	}

	for _, datetime := range result.PrunedDates {
		if err := deleteSubmap(a.store, datetime+"/"); err != nil {
			return PruneResult{}, err
		}
	}

	if err := a.catalog.SaveRecords(flattenGroups(surviving)); err != nil {
		return PruneResult{}, err
	}
	return result, nil
}

// flattenGroups concatenates each group's records back into one
// chronological list, suitable for SaveRecords.
func flattenGroups(groups []catalog.BackupGroup) []types.BackupRecord {
	var out []types.BackupRecord
	for _, g := range groups {
		out = append(out, g.Records...)
	}
	return out
}

// deleteSubmap removes every key under store.Submap(prefix).
func deleteSubmap(store kvstore.Store, prefix string) error {
	view := store.Submap(prefix)
	it, err := view.Iter()
	if err != nil {
		return archiveerr.Store("iter", prefix, err)
	}
	keys, err := kvstore.CollectKeys(it)
	if err != nil {
		return archiveerr.Store("iter", prefix, err)
	}
	for _, k := range keys {
		if err := view.Delete(k); err != nil {
			return archiveerr.Store("delete", prefix+k, err)
		}
	}
	return nil
}
