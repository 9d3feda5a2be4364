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

// Package cli holds small helpers shared by archivist-cli's command
// handlers, kept outside cmd/ so they stay importable from tests.
package cli

import (
	"fmt"
	"os"
	"path/filepath"
)

// ResolveStore picks the directory archivist-cli persists its Pebble store
// in: ARCHIVIST_STORE_DIR if set, else <cwd>/.archivist/objects.
func ResolveStore(cwd string) (string, error) {
	if p := os.Getenv("ARCHIVIST_STORE_DIR"); p != "" {
		if err := os.MkdirAll(p, 0o755); err != nil {
			return "", fmt.Errorf("create ARCHIVIST_STORE_DIR: %w", err)
		}
		return p, nil
	}
	p := filepath.Join(cwd, ".archivist", "objects")
	if err := os.MkdirAll(p, 0o755); err != nil {
		return "", fmt.Errorf("create default store: %w", err)
	}
	return p, nil
}
