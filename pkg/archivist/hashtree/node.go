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

// Package hashtree builds an in-memory tree of (name, hash) pairs from a
// flat PathSummary list and structurally compares two such trees (spec
// §4.H). Grounded in keevalbak's BaseFileHash/BaseDirHash
// addFileSummary/getOrCreateChildDirHash, which materialises intermediate
// directories on demand as a flat list is walked; Build does the same, in
// list order, creating each missing intermediate directory the first time
// a path beneath it is seen, and returns a fresh tree per call.
package hashtree

import (
	"sort"
	"strings"

	"github.com/oppie-labs/archivist/pkg/archivist/types"
)

// Node is one entry of the reconstructed tree: a File carries Hash and no
// Children; a Dir carries Children and an empty Hash.
type Node struct {
	Name     string
	IsDir    bool
	Hash     types.ContentHash
	Children map[string]*Node
}

func newDir(name string) *Node {
	return &Node{Name: name, IsDir: true, Children: make(map[string]*Node)}
}

// Build folds a flat, walk-ordered PathSummary list into a Node tree rooted
// at "". Intermediate directories absent from the list (which should not
// happen given the walker always emits a Dir entry before its children,
// but may happen for a hand-built or filtered manifest) are synthesised on
// demand.
func Build(summaries []types.PathSummary) *Node {
	root := newDir("")
	for _, s := range summaries {
		parts := splitPath(s.RelPath)
		if len(parts) == 0 {
			continue
		}
		dir := root
		for _, p := range parts[:len(parts)-1] {
			dir = dir.childDir(p)
		}
		leaf := parts[len(parts)-1]
		if s.IsDir() {
			dir.childDir(leaf)
		} else {
			dir.Children[leaf] = &Node{Name: leaf, Hash: s.SHA1Hex}
		}
	}
	return root
}

func (n *Node) childDir(name string) *Node {
	if existing, ok := n.Children[name]; ok {
		return existing
	}
	child := newDir(name)
	n.Children[name] = child
	return child
}

func splitPath(relPath string) []string {
	trimmed := strings.Trim(relPath, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

// SortedNames returns n's child names in lexical order, for deterministic
// traversal and folding.
func (n *Node) SortedNames() []string {
	names := make([]string, 0, len(n.Children))
	for name := range n.Children {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
