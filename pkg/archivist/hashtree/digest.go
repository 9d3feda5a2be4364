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
	"crypto/sha1" //nolint:gosec // same content-address algorithm as the rest of the tree
	"encoding/hex"
	"strings"

	"github.com/oppie-labs/archivist/pkg/archivist/types"
)

// Digest folds a tree bottom-up into a single root hash: each directory's
// digest is the SHA-1 of its sorted "name:kind:hash" child lines, so two
// trees with identical content and layout produce the same Digest without
// a full Compare walk. Neither the original BaseDirHash nor the teacher's
// vst.Commit folding carries a dir-level digest; this is a supplemental
// convenience for a cheap "did anything change" check ahead of a full
// verify, following the same bottom-up fold shape as vst.Commit.
func Digest(n *Node) types.ContentHash {
	if !n.IsDir {
		return n.Hash
	}
	names := n.SortedNames()
	lines := make([]string, 0, len(names))
	for _, name := range names {
		child := n.Children[name]
		kind := "f"
		if child.IsDir {
			kind = "d"
		}
		lines = append(lines, name+":"+kind+":"+string(Digest(child)))
	}
	sum := sha1.Sum([]byte(strings.Join(lines, "\n")))
	return types.ContentHash(hex.EncodeToString(sum[:]))
}
