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

package engine_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gopkg.in/yaml.v3"

	"github.com/oppie-labs/archivist/internal/metrics"
	"github.com/oppie-labs/archivist/pkg/archivist/engine"
	"github.com/oppie-labs/archivist/pkg/archivist/kvstore"
	"github.com/oppie-labs/archivist/pkg/archivist/types"
	"github.com/oppie-labs/archivist/pkg/archivist/verify"
)

// sequenceClock returns a fresh, strictly-increasing datetime on every call,
// so successive Snapshot calls in one test never collide.
func sequenceClock() engine.Clock {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("d%03d", n)
	}
}

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for relPath, content := range files {
		full := filepath.Join(root, filepath.FromSlash(relPath))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
}

func TestBackupAndRestore_FullRoundTrip(t *testing.T) {
	store := kvstore.NewMem()
	archive := engine.Open(store)

	src := t.TempDir()
	writeTree(t, src, map[string]string{
		"a.txt":     "hello",
		"sub/b.txt": "world",
	})

	clock := sequenceClock()
	backupEngine := archive.Backup(engine.WithClock(clock))
	record, err := backupEngine.Snapshot(context.Background(), types.Full, src)
	require.NoError(t, err)
	assert.True(t, record.Completed)
	assert.Equal(t, types.Full, record.Kind)

	dst := t.TempDir()
	restoreEngine := archive.Restore()
	err = restoreEngine.Restore(context.Background(), dst, engine.RestoreOpts{})
	require.NoError(t, err)

	gotA, err := os.ReadFile(filepath.Join(dst, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(gotA))

	gotB, err := os.ReadFile(filepath.Join(dst, "sub", "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "world", string(gotB))
}

func TestBackup_IncrementalPromotedToFullWhenArchiveEmpty(t *testing.T) {
	store := kvstore.NewMem()
	archive := engine.Open(store)
	src := t.TempDir()
	writeTree(t, src, map[string]string{"a.txt": "hello"})

	backupEngine := archive.Backup(engine.WithClock(sequenceClock()))
	record, err := backupEngine.Snapshot(context.Background(), types.Incremental, src)
	require.NoError(t, err)
	assert.Equal(t, types.Full, record.Kind)
}

func TestBackup_IncrementalDedupesUnchangedFiles(t *testing.T) {
	store := kvstore.NewMem()
	archive := engine.Open(store)
	src := t.TempDir()
	writeTree(t, src, map[string]string{"a.txt": "hello", "b.txt": "world"})

	clock := sequenceClock()
	backupEngine := archive.Backup(engine.WithClock(clock))
	_, err := backupEngine.Snapshot(context.Background(), types.Full, src)
	require.NoError(t, err)

	// modify only b.txt
	require.NoError(t, os.WriteFile(filepath.Join(src, "b.txt"), []byte("world-v2"), 0o644))
	record, err := backupEngine.Snapshot(context.Background(), types.Incremental, src)
	require.NoError(t, err)
	assert.Equal(t, types.Incremental, record.Kind)

	// a.txt's content must not have been re-uploaded under the new datetime
	ok, err := store.Contains(types.ContentKey(record.Datetime, "/a.txt"))
	require.NoError(t, err)
	assert.False(t, ok, "unchanged file must be deduped within the group, not re-uploaded")

	ok, err = store.Contains(types.ContentKey(record.Datetime, "/b.txt"))
	require.NoError(t, err)
	assert.True(t, ok, "changed file must be uploaded under the new datetime")
}

func TestRestore_LatestWhenDatetimeOmitted(t *testing.T) {
	store := kvstore.NewMem()
	archive := engine.Open(store)
	src := t.TempDir()
	writeTree(t, src, map[string]string{"a.txt": "v1"})

	clock := sequenceClock()
	backupEngine := archive.Backup(engine.WithClock(clock))
	_, err := backupEngine.Snapshot(context.Background(), types.Full, src)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(src, "a.txt"), []byte("v2"), 0o644))
	_, err = backupEngine.Snapshot(context.Background(), types.Incremental, src)
	require.NoError(t, err)

	dst := t.TempDir()
	require.NoError(t, archive.Restore().Restore(context.Background(), dst, engine.RestoreOpts{}))

	got, err := os.ReadFile(filepath.Join(dst, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "v2", string(got))
}

func TestRestore_RefusesNonEmptyTargetWithoutOverwrite(t *testing.T) {
	store := kvstore.NewMem()
	archive := engine.Open(store)
	src := t.TempDir()
	writeTree(t, src, map[string]string{"a.txt": "v1"})

	backupEngine := archive.Backup(engine.WithClock(sequenceClock()))
	_, err := backupEngine.Snapshot(context.Background(), types.Full, src)
	require.NoError(t, err)

	dst := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dst, "existing.txt"), []byte("x"), 0o644))

	err = archive.Restore().Restore(context.Background(), dst, engine.RestoreOpts{})
	assert.Error(t, err)
}

func TestRestore_OverwriteAllowsNonEmptyTarget(t *testing.T) {
	store := kvstore.NewMem()
	archive := engine.Open(store)
	src := t.TempDir()
	writeTree(t, src, map[string]string{"a.txt": "v1"})
	backupEngine := archive.Backup(engine.WithClock(sequenceClock()))
	_, err := backupEngine.Snapshot(context.Background(), types.Full, src)
	require.NoError(t, err)

	dst := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dst, "existing.txt"), []byte("x"), 0o644))

	err = archive.Restore().Restore(context.Background(), dst, engine.RestoreOpts{Overwrite: true})
	assert.NoError(t, err)
}

func TestRestore_RefusesIncompleteSnapshotUnlessAllowed(t *testing.T) {
	store := kvstore.NewMem()
	archive := engine.Open(store)
	src := t.TempDir()
	writeTree(t, src, map[string]string{"a.txt": "v1"})
	backupEngine := archive.Backup(engine.WithClock(sequenceClock()))
	_, err := backupEngine.Snapshot(context.Background(), types.Full, src)
	require.NoError(t, err)

	// hand-corrupt the latest record to incomplete
	records, err := storeRecords(t, store)
	require.NoError(t, err)
	records[len(records)-1].Completed = false
	require.NoError(t, saveRecords(t, store, records))

	dst := t.TempDir()
	err = archive.Restore().Restore(context.Background(), dst, engine.RestoreOpts{})
	assert.Error(t, err)

	dst2 := t.TempDir()
	err = archive.Restore().Restore(context.Background(), dst2, engine.RestoreOpts{AllowIncomplete: true})
	assert.NoError(t, err)
}

func TestRestore_IncludeExcludeFiltering(t *testing.T) {
	store := kvstore.NewMem()
	archive := engine.Open(store)
	src := t.TempDir()
	writeTree(t, src, map[string]string{
		"keep.txt":     "k",
		"skip.log":     "s",
		"sub/keep.txt": "k2",
	})
	backupEngine := archive.Backup(engine.WithClock(sequenceClock()))
	_, err := backupEngine.Snapshot(context.Background(), types.Full, src)
	require.NoError(t, err)

	dst := t.TempDir()
	err = archive.Restore().Restore(context.Background(), dst, engine.RestoreOpts{
		Include: []string{"**/*.txt"},
	})
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dst, "keep.txt"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dst, "sub", "keep.txt"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dst, "skip.log"))
	assert.True(t, os.IsNotExist(err))
}

func TestRestore_WithVerifyCachePopulatesHashes(t *testing.T) {
	store := kvstore.NewMem()
	archive := engine.Open(store)
	src := t.TempDir()
	writeTree(t, src, map[string]string{"a.txt": "hello"})
	backupEngine := archive.Backup(engine.WithClock(sequenceClock()))
	_, err := backupEngine.Snapshot(context.Background(), types.Full, src)
	require.NoError(t, err)

	cache := verify.New(archive.StoreForVerify())
	dst := t.TempDir()
	err = archive.Restore().Restore(context.Background(), dst, engine.RestoreOpts{VerifyCache: cache})
	require.NoError(t, err)

	ok, err := store.Contains(types.VerifiedHashesKey(firstDatetime(t, store)))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRestore_WithVerifyCacheAndDedupedFiles(t *testing.T) {
	// Two byte-identical files in one full snapshot (scenario S4): the
	// second file is deduped (written=false) and its content lives under
	// the first file's relPath. VerifiedHash must be keyed off that
	// writing relPath, not the restored one, or the fetch-task's
	// DoSynchronized phase 404s against a content key that was never
	// written under the restored path.
	store := kvstore.NewMem()
	archive := engine.Open(store)
	src := t.TempDir()
	writeTree(t, src, map[string]string{"x1.txt": "same-bytes", "x2.txt": "same-bytes"})
	backupEngine := archive.Backup(engine.WithClock(sequenceClock()))
	_, err := backupEngine.Snapshot(context.Background(), types.Full, src)
	require.NoError(t, err)

	cache := verify.New(archive.StoreForVerify())
	dst := t.TempDir()
	err = archive.Restore().Restore(context.Background(), dst, engine.RestoreOpts{VerifyCache: cache})
	require.NoError(t, err)

	got1, err := os.ReadFile(filepath.Join(dst, "x1.txt"))
	require.NoError(t, err)
	assert.Equal(t, "same-bytes", string(got1))
	got2, err := os.ReadFile(filepath.Join(dst, "x2.txt"))
	require.NoError(t, err)
	assert.Equal(t, "same-bytes", string(got2))
}

func TestRestore_WithVerifyCacheAcrossIncrementalDedup(t *testing.T) {
	// A file unchanged across an incremental (deduped, written=false under
	// the later datetime) restores using the cache without the restored
	// relPath/datetime pair ever being asked of VerifiedHash.
	store := kvstore.NewMem()
	archive := engine.Open(store)
	src := t.TempDir()
	writeTree(t, src, map[string]string{"a.txt": "unchanged", "b.txt": "v1"})
	clock := sequenceClock()
	backupEngine := archive.Backup(engine.WithClock(clock))
	_, err := backupEngine.Snapshot(context.Background(), types.Full, src)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(src, "b.txt"), []byte("v2"), 0o644))
	_, err = backupEngine.Snapshot(context.Background(), types.Incremental, src)
	require.NoError(t, err)

	cache := verify.New(archive.StoreForVerify())
	dst := t.TempDir()
	err = archive.Restore().Restore(context.Background(), dst, engine.RestoreOpts{VerifyCache: cache})
	require.NoError(t, err)

	gotA, err := os.ReadFile(filepath.Join(dst, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "unchanged", string(gotA))
	gotB, err := os.ReadFile(filepath.Join(dst, "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "v2", string(gotB))
}

func TestArchive_VerifyAgainstDetectsStoreCorruption(t *testing.T) {
	store := kvstore.NewMem()
	archive := engine.Open(store)
	src := t.TempDir()
	writeTree(t, src, map[string]string{"a.txt": "v1"})
	backupEngine := archive.Backup(engine.WithClock(sequenceClock()))
	record, err := backupEngine.Snapshot(context.Background(), types.Full, src)
	require.NoError(t, err)

	// Corrupt the stored blob in place without touching the manifest's
	// claimed hash, simulating store-side bitrot.
	key := types.ContentKey(record.Datetime, "/a.txt")
	require.NoError(t, store.Put(key, []byte("corrupted")))

	diffs, err := archive.VerifyAgainst(src, record.Datetime)
	require.NoError(t, err)
	assert.NotEmpty(t, diffs, "VerifyAgainst must detect a blob whose stored bytes no longer match its manifest hash")
}

func TestArchive_VerifyFull_DetectsRestoreMismatch(t *testing.T) {
	store := kvstore.NewMem()
	archive := engine.Open(store)
	src := t.TempDir()
	writeTree(t, src, map[string]string{"a.txt": "v1", "sub/b.txt": "v2"})
	backupEngine := archive.Backup(engine.WithClock(sequenceClock()))
	record, err := backupEngine.Snapshot(context.Background(), types.Full, src)
	require.NoError(t, err)

	diffs, err := archive.VerifyFull(context.Background(), src, record.Datetime)
	require.NoError(t, err)
	assert.Empty(t, diffs)

	require.NoError(t, os.WriteFile(filepath.Join(src, "a.txt"), []byte("drifted"), 0o644))
	diffs, err = archive.VerifyFull(context.Background(), src, record.Datetime)
	require.NoError(t, err)
	assert.NotEmpty(t, diffs)
}

func TestArchive_ListAndFormatList(t *testing.T) {
	store := kvstore.NewMem()
	archive := engine.Open(store)
	src := t.TempDir()
	writeTree(t, src, map[string]string{"a.txt": "v1"})
	backupEngine := archive.Backup(engine.WithClock(sequenceClock()))
	_, err := backupEngine.Snapshot(context.Background(), types.Full, src)
	require.NoError(t, err)

	groups, err := archive.ListBackups()
	require.NoError(t, err)
	require.Len(t, groups, 1)

	listing, err := archive.FormatList()
	require.NoError(t, err)
	assert.Contains(t, listing, "full")
}

func TestArchive_PruneKeepsMostRecentGroups(t *testing.T) {
	store := kvstore.NewMem()
	archive := engine.Open(store)
	src := t.TempDir()
	writeTree(t, src, map[string]string{"a.txt": "v1"})

	backupEngine := archive.Backup(engine.WithClock(sequenceClock()))
	for i := 0; i < 3; i++ {
		_, err := backupEngine.Snapshot(context.Background(), types.Full, src)
		require.NoError(t, err)
	}

	result, err := archive.Prune(1, false)
	require.NoError(t, err)
	assert.Equal(t, 1, result.KeptGroups)
	assert.Equal(t, 2, result.PrunedGroups)

	groups, err := archive.ListBackups()
	require.NoError(t, err)
	require.Len(t, groups, 1)
}

func TestArchive_PruneDryRunDoesNotMutate(t *testing.T) {
	store := kvstore.NewMem()
	archive := engine.Open(store)
	src := t.TempDir()
	writeTree(t, src, map[string]string{"a.txt": "v1"})
	backupEngine := archive.Backup(engine.WithClock(sequenceClock()))
	for i := 0; i < 2; i++ {
		_, err := backupEngine.Snapshot(context.Background(), types.Full, src)
		require.NoError(t, err)
	}

	_, err := archive.Prune(1, true)
	require.NoError(t, err)

	groups, err := archive.ListBackups()
	require.NoError(t, err)
	assert.Len(t, groups, 2, "dry run must not remove any group")
}

func TestArchive_PruneRejectsKeepLessThanOne(t *testing.T) {
	store := kvstore.NewMem()
	archive := engine.Open(store)
	_, err := archive.Prune(0, false)
	assert.Error(t, err)
}

func TestArchive_VerifyAgainstDetectsDrift(t *testing.T) {
	store := kvstore.NewMem()
	archive := engine.Open(store)
	src := t.TempDir()
	writeTree(t, src, map[string]string{"a.txt": "v1"})
	backupEngine := archive.Backup(engine.WithClock(sequenceClock()))
	_, err := backupEngine.Snapshot(context.Background(), types.Full, src)
	require.NoError(t, err)

	diffs, err := archive.VerifyAgainst(src, "")
	require.NoError(t, err)
	assert.Empty(t, diffs)

	require.NoError(t, os.WriteFile(filepath.Join(src, "a.txt"), []byte("drifted"), 0o644))
	diffs, err = archive.VerifyAgainst(src, "")
	require.NoError(t, err)
	assert.NotEmpty(t, diffs)
}

func TestBackupEngine_MetricsRecordLatencyAndBytes(t *testing.T) {
	store := kvstore.NewMem()
	archive := engine.Open(store)
	src := t.TempDir()
	writeTree(t, src, map[string]string{"a.txt": "hello world"})

	m := metrics.NewEngineMetrics()
	backupEngine := archive.Backup(engine.WithClock(sequenceClock()), engine.WithMetrics(m))
	_, err := backupEngine.Snapshot(context.Background(), types.Full, src)
	require.NoError(t, err)

	snap := m.Snapshot()
	assert.EqualValues(t, 1, snap.UploadedObjects)
	assert.EqualValues(t, len("hello world"), snap.UploadedBytes)
}

func TestRestoreEngine_MetricsRecordLatency(t *testing.T) {
	store := kvstore.NewMem()
	archive := engine.Open(store)
	src := t.TempDir()
	writeTree(t, src, map[string]string{"a.txt": "hello"})
	backupEngine := archive.Backup(engine.WithClock(sequenceClock()))
	_, err := backupEngine.Snapshot(context.Background(), types.Full, src)
	require.NoError(t, err)

	m := metrics.NewEngineMetrics()
	dst := t.TempDir()
	err = archive.Restore(engine.WithRestoreMetrics(m)).Restore(context.Background(), dst, engine.RestoreOpts{})
	require.NoError(t, err)

	snap := m.Snapshot()
	assert.GreaterOrEqual(t, snap.RestoreLatencyUSP50, int64(0))
}

// storeRecords/saveRecords reach past the catalog package to hand-corrupt a
// record for the incomplete-snapshot test, using the same YAML encoding
// catalog.Catalog itself uses.
func storeRecords(t *testing.T, store kvstore.Store) ([]types.BackupRecord, error) {
	t.Helper()
	raw, err := store.Get(types.RecordsKey)
	if err != nil {
		return nil, err
	}
	var records []types.BackupRecord
	if err := yaml.Unmarshal(raw, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func saveRecords(t *testing.T, store kvstore.Store, records []types.BackupRecord) error {
	t.Helper()
	raw, err := yaml.Marshal(records)
	if err != nil {
		return err
	}
	return store.Put(types.RecordsKey, raw)
}

func firstDatetime(t *testing.T, store kvstore.Store) string {
	t.Helper()
	records, err := storeRecords(t, store)
	require.NoError(t, err)
	require.NotEmpty(t, records)
	return records[0].Datetime
}
