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

	"github.com/oppie-labs/archivist/internal/archiveerr"
	"github.com/oppie-labs/archivist/pkg/archivist/kvstore"
	"github.com/oppie-labs/archivist/pkg/archivist/tasks"
	"github.com/oppie-labs/archivist/pkg/archivist/verify"
)

// fetchTask is the unsynchronized-fetch+write/synchronized-verify pair
// driving one file's restoration (spec §4.G, "Restoration tasks run
// through the same TaskRunner contract").
type fetchTask struct {
	store      kvstore.Store
	contentKey string
	destPath   string

	datetime string
	relPath  string
	cache    *verify.Cache // nil if verification is disabled
}

var _ tasks.Task = (*fetchTask)(nil)
var _ tasks.Clonable = (*fetchTask)(nil)

func (t *fetchTask) DoUnsynchronized(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	content, err := t.store.Get(t.contentKey)
	if err != nil {
		return archiveerr.Store("get", t.contentKey, err)
	}
	if err := os.MkdirAll(filepath.Dir(t.destPath), 0o755); err != nil {
		return archiveerr.Io("mkdir", filepath.Dir(t.destPath), err)
	}
	if err := os.WriteFile(t.destPath, content, 0o644); err != nil {
		return archiveerr.Io("write", t.destPath, err)
	}
	return nil
}

func (t *fetchTask) DoSynchronized(ctx context.Context) error {
	if t.cache == nil {
		return nil
	}
	_, err := t.cache.VerifiedHash(t.datetime, t.relPath)
	return err
}

func (t *fetchTask) CloneKeys() []string             { return []string{"store"} }
func (t *fetchTask) Resource(key string) interface{} { return t.store }
func (t *fetchTask) SetResource(key string, v interface{}) {
	if s, ok := v.(kvstore.Store); ok {
		t.store = s
	}
}
