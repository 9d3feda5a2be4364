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
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/oppie-labs/archivist/internal/archiveerr"
	"github.com/oppie-labs/archivist/pkg/archivist/dedup"
	"github.com/oppie-labs/archivist/pkg/archivist/kvstore"
	"github.com/oppie-labs/archivist/pkg/archivist/tasks"
	"github.com/oppie-labs/archivist/pkg/archivist/types"
)

// uploadTask is the unsynchronized-fetch/synchronized-record pair for one
// novel file in a snapshot (spec §4.E step 6). DoUnsynchronized owns a
// private PathSummary slot (the manifest index assigned to it), so
// flipping Written there is race-free even when many uploadTasks run
// concurrently under BoundedParallel; only the WrittenIndex insert needs
// the runner's synchronized phase.
type uploadTask struct {
	store      kvstore.Store
	sourcePath string
	datetime   string
	relPath    string
	hash       types.ContentHash
	entry      *types.PathSummary
	written    *dedup.WrittenIndex
	bytesMoved *int64
	totalBytes *int64

	contentKey string
}

var _ tasks.Task = (*uploadTask)(nil)
var _ tasks.Clonable = (*uploadTask)(nil)

func (t *uploadTask) DoUnsynchronized(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	content, err := os.ReadFile(t.sourcePath)
	if err != nil {
		return archiveerr.Io("read", t.sourcePath, err)
	}
	key := types.ContentKey(t.datetime, t.relPath)
	if err := t.store.Put(key, content); err != nil {
		return archiveerr.Store("put", key, err)
	}
	t.entry.Written = true
	t.contentKey = key
	atomic.AddInt64(t.bytesMoved, int64(len(content)))
	atomic.AddInt64(t.totalBytes, int64(len(content)))
	return nil
}

func (t *uploadTask) DoSynchronized(ctx context.Context) error {
	t.written.Record(t.hash, t.contentKey)
	return nil
}

// CloneKeys/Resource/SetResource satisfy tasks.Clonable so BoundedParallel
// can hand each worker its own store client if the configured kvstore.Store
// is not safe for concurrent use (spec §4.F, §9 "per-worker client
// cloning"). Our shipped stores (Mem, PebbleStore, Compressing) are all
// internally synchronized, so this is a no-op unless a caller supplies a
// store that implements tasks.Cloner.
func (t *uploadTask) CloneKeys() []string                { return []string{"store"} }
func (t *uploadTask) Resource(key string) interface{}    { return t.store }
func (t *uploadTask) SetResource(key string, v interface{}) {
	if s, ok := v.(kvstore.Store); ok {
		t.store = s
	}
}

func sourceFullPath(sourceDir, relPath string) string {
	return filepath.Join(sourceDir, filepath.FromSlash(relPath))
}
