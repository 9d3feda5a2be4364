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

// Package dedup implements the ephemeral hash -> content-key map used to
// avoid re-uploading content already present within the current backup
// group (spec §4.D), grounded directly in the original keevalbak
// WrittenRecords class.
package dedup

import (
	"sync"

	"github.com/oppie-labs/archivist/pkg/archivist/types"
)

// WrittenIndex maps a content hash to the key holding its bytes, scoped to
// the current backup group.
type WrittenIndex struct {
	mu      sync.Mutex
	located map[types.ContentHash]string // hash -> store key
}

// New returns an empty WrittenIndex.
func New() *WrittenIndex {
	return &WrittenIndex{located: make(map[types.ContentHash]string)}
}

// IsWritten reports whether hash already has a known location.
func (w *WrittenIndex) IsWritten(hash types.ContentHash) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.located[hash]
	return ok
}

// LocationOf returns the store key holding hash's bytes, if known.
func (w *WrittenIndex) LocationOf(hash types.ContentHash) (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	k, ok := w.located[hash]
	return k, ok
}

// Record registers that hash's bytes live at contentKey. WrittenIndex
// insertions happen-before subsequent IsWritten checks within one
// snapshot (spec §5) because both are guarded by the same mutex and the
// engine only calls Record from a task's synchronized phase.
func (w *WrittenIndex) Record(hash types.ContentHash, contentKey string) {
	w.mu.Lock()
	w.located[hash] = contentKey
	w.mu.Unlock()
}

// ManifestLoader loads a snapshot's manifest by datetime; satisfied by
// *catalog.Catalog in production and a stub in tests.
type ManifestLoader interface {
	LoadManifest(datetime string) ([]types.PathSummary, error)
}

// SeedFromGroup scans backward through records from the latest, loading
// each manifest and recording hash -> content key for every written=true
// file, stopping immediately after processing the enclosing Full (or at
// index 0 if no Full exists). This is the cross-dedup-within-group-only
// rule: an Incremental's WrittenIndex only ever seeds from its own group
// (spec §8 property 4).
func (w *WrittenIndex) SeedFromGroup(loader ManifestLoader, records []types.BackupRecord) error {
	i := len(records) - 1
	for i >= 0 {
		record := records[i]
		manifest, err := loader.LoadManifest(record.Datetime)
		if err != nil {
			return err
		}
		for _, summary := range manifest {
			if summary.IsFile() && summary.Written {
				w.Record(summary.SHA1Hex, types.ContentKey(record.Datetime, summary.RelPath))
			}
		}
		if record.Kind == types.Full {
			return nil
		}
		i--
	}
	return nil
}
