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

// Package walker performs the depth-first pre-order traversal of a source
// directory that produces one snapshot's manifest (spec §4.B). It never
// mutates shared state; each call returns an owned []types.PathSummary
// (spec §9, "mutable global walk state" design note).
package walker

import (
	"crypto/sha1" //nolint:gosec // spec-mandated content address, not used for security
	"encoding/hex"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/oppie-labs/archivist/pkg/archivist/types"
)

// hasherPool reuses sha1.Hash instances the way the teacher's cas.go
// reuses blake3 hashers, keeping allocation flat across many small files.
var hasherPool = sync.Pool{
	New: func() interface{} { return sha1.New() },
}

// Walker walks one source directory into an ordered manifest.
type Walker struct {
	logger *slog.Logger
}

// New returns a Walker. A nil logger falls back to slog.Default().
func New(logger *slog.Logger) *Walker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Walker{logger: logger}
}

// Walk performs the depth-first pre-order traversal described in spec
// §4.B: directories are emitted before their children, every regular
// file's content is hashed with SHA-1, and anything that is neither a
// directory nor a regular file is logged and skipped (not represented in
// the manifest, not a fatal error).
func (w *Walker) Walk(root string) ([]types.PathSummary, error) {
	var out []types.PathSummary
	if err := w.walkSubdir(root, "", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (w *Walker) walkSubdir(root, relPath string, out *[]types.PathSummary) error {
	entries, err := os.ReadDir(filepath.Join(root, relPath))
	if err != nil {
		return err
	}
	for _, entry := range entries {
		childRel := relPath + "/" + entry.Name()
		childFull := filepath.Join(root, childRel)

		info, err := entry.Info()
		if err != nil {
			w.logger.Warn("walk: cannot stat entry, skipping", "path", childFull, "error", err)
			continue
		}

		switch {
		case info.Mode().IsDir():
			*out = append(*out, types.PathSummary{Kind: types.KindDir, RelPath: childRel})
			if err := w.walkSubdir(root, childRel, out); err != nil {
				return err
			}
		case info.Mode().IsRegular():
			sum, err := hashFile(childFull)
			if err != nil {
				return err
			}
			*out = append(*out, types.PathSummary{Kind: types.KindFile, RelPath: childRel, SHA1Hex: sum})
		default:
			w.logger.Warn("walk: unknown object, skipping", "path", childFull, "mode", info.Mode().String())
		}
	}
	return nil
}

func hashFile(path string) (types.ContentHash, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	h := hasherPool.Get().(interface {
		Write([]byte) (int, error)
		Sum([]byte) []byte
		Reset()
	})
	defer func() {
		h.Reset()
		hasherPool.Put(h)
	}()
	h.Write(content)
	digest := h.Sum(nil)
	return types.ContentHash(hex.EncodeToString(digest)), nil
}
