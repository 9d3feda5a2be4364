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

package hashtree

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// CompareBytes recursively compares two on-disk directory trees by listing
// and byte-equality, for full-verification mode (spec §4.I "Full"), where a
// restored scratch copy must match the source exactly. Grounded directly in
// the original keevalbak CompareDirectories.DirectoryComparator.compareDirs:
// the left listing drives type/existence checks and file comparisons, and
// only after the left listing is fully walked does a second pass scan the
// right listing for names absent on the left.
func CompareBytes(dir1, dir2 string) ([]Difference, error) {
	return compareBytesAt(dir1, dir2, "")
}

func compareBytesAt(dir1, dir2, relPath string) ([]Difference, error) {
	entries1, err := os.ReadDir(dir1)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", dir1, err)
	}
	entries2, err := os.ReadDir(dir2)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", dir2, err)
	}

	byName2 := make(map[string]os.DirEntry, len(entries2))
	for _, e := range entries2 {
		byName2[e.Name()] = e
	}

	var diffs []Difference
	seen := make(map[string]bool, len(entries1))

	names1 := make([]string, len(entries1))
	for i, e := range entries1 {
		names1[i] = e.Name()
	}
	sort.Strings(names1)

	byName1 := make(map[string]os.DirEntry, len(entries1))
	for _, e := range entries1 {
		byName1[e.Name()] = e
	}

	for _, name := range names1 {
		seen[name] = true
		e1 := byName1[name]
		childPath := joinPath(relPath, name)
		e2, ok := byName2[name]
		if !ok {
			diffs = append(diffs, Difference{Kind: MissingRight, Path: childPath})
			continue
		}
		switch {
		case e1.IsDir() && e2.IsDir():
			sub, err := compareBytesAt(filepath.Join(dir1, name), filepath.Join(dir2, name), childPath)
			if err != nil {
				return nil, err
			}
			diffs = append(diffs, sub...)
		case e1.IsDir() != e2.IsDir():
			diffs = append(diffs, Difference{Kind: TypeMismatch, Path: childPath})
		default:
			equal, err := filesEqual(filepath.Join(dir1, name), filepath.Join(dir2, name))
			if err != nil {
				return nil, err
			}
			if !equal {
				diffs = append(diffs, Difference{Kind: HashMismatch, Path: childPath})
			}
		}
	}

	names2 := make([]string, 0, len(entries2))
	for _, e := range entries2 {
		names2 = append(names2, e.Name())
	}
	sort.Strings(names2)
	for _, name := range names2 {
		if seen[name] {
			continue
		}
		diffs = append(diffs, Difference{Kind: MissingLeft, Path: joinPath(relPath, name)})
	}

	return diffs, nil
}

func filesEqual(path1, path2 string) (bool, error) {
	b1, err := os.ReadFile(path1)
	if err != nil {
		return false, fmt.Errorf("reading %s: %w", path1, err)
	}
	b2, err := os.ReadFile(path2)
	if err != nil {
		return false, fmt.Errorf("reading %s: %w", path2, err)
	}
	return bytes.Equal(b1, b2), nil
}
