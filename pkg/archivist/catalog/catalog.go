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

// Package catalog reads and writes an archive's backupRecords list and
// per-snapshot pathList manifests, and derives backup groups from the
// records (spec §4.C).
package catalog

import (
	"fmt"

	"github.com/oppie-labs/archivist/internal/archiveerr"
	"github.com/oppie-labs/archivist/pkg/archivist/kvstore"
	"github.com/oppie-labs/archivist/pkg/archivist/types"
	"gopkg.in/yaml.v3"
)

// Catalog wraps a kvstore.Store scoped to one archive (typically via
// Store.Submap(name + "/")) and exposes the metadata operations the
// backup/restore/list/prune flows need.
type Catalog struct {
	store kvstore.Store
}

// New returns a Catalog backed by store.
func New(store kvstore.Store) *Catalog {
	return &Catalog{store: store}
}

// legacyRecord mirrors BackupRecord but makes Completed optional on read,
// so records written before the completed flag existed default to true
// (spec §6: "Legacy records without a completed field default to true on
// read").
type legacyRecord struct {
	Kind      types.BackupKind `yaml:"type"`
	Datetime  string           `yaml:"datetime"`
	Completed *bool            `yaml:"completed,omitempty"`
}

// LoadRecords returns the ordered backupRecords list, or an empty slice if
// the key has never been written.
func (c *Catalog) LoadRecords() ([]types.BackupRecord, error) {
	raw, err := c.store.Get(types.RecordsKey)
	if err != nil {
		if err == kvstore.ErrNotFound {
			return nil, nil
		}
		return nil, archiveerr.Store("get", types.RecordsKey, err)
	}
	var legacy []legacyRecord
	if err := yaml.Unmarshal(raw, &legacy); err != nil {
		return nil, fmt.Errorf("catalog: decode backupRecords: %w", err)
	}
	out := make([]types.BackupRecord, len(legacy))
	for i, r := range legacy {
		completed := true
		if r.Completed != nil {
			completed = *r.Completed
		}
		out[i] = types.BackupRecord{Kind: r.Kind, Datetime: r.Datetime, Completed: completed}
	}
	return out, nil
}

// SaveRecords overwrites backupRecords wholesale with a single Put, which
// is the whole of the atomicity this layer offers (spec §4.C: "always
// overwrites backupRecords atomically from the engine's perspective
// (single put)").
func (c *Catalog) SaveRecords(records []types.BackupRecord) error {
	out := make([]legacyRecord, len(records))
	for i, r := range records {
		completed := r.Completed
		out[i] = legacyRecord{Kind: r.Kind, Datetime: r.Datetime, Completed: &completed}
	}
	buf, err := yaml.Marshal(out)
	if err != nil {
		return fmt.Errorf("catalog: encode backupRecords: %w", err)
	}
	if err := c.store.Put(types.RecordsKey, buf); err != nil {
		return archiveerr.Store("put", types.RecordsKey, err)
	}
	return nil
}

// LoadManifest returns the ordered PathSummary list for datetime.
func (c *Catalog) LoadManifest(datetime string) ([]types.PathSummary, error) {
	key := types.ManifestKey(datetime)
	raw, err := c.store.Get(key)
	if err != nil {
		if err == kvstore.ErrNotFound {
			return nil, archiveerr.Store("get", key, err)
		}
		return nil, archiveerr.Store("get", key, err)
	}
	var list []types.PathSummary
	if err := yaml.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("catalog: decode manifest %s: %w", key, err)
	}
	return list, nil
}

// SaveManifest persists the manifest for datetime.
func (c *Catalog) SaveManifest(datetime string, list []types.PathSummary) error {
	key := types.ManifestKey(datetime)
	buf, err := yaml.Marshal(list)
	if err != nil {
		return fmt.Errorf("catalog: encode manifest %s: %w", key, err)
	}
	if err := c.store.Put(key, buf); err != nil {
		return archiveerr.Store("put", key, err)
	}
	return nil
}

// FindIndexByDatetime returns the index of the record with the given
// datetime, or -1 if not found.
func FindIndexByDatetime(records []types.BackupRecord, datetime string) int {
	for i, r := range records {
		if r.Datetime == datetime {
			return i
		}
	}
	return -1
}
