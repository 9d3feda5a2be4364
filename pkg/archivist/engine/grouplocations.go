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
	"github.com/oppie-labs/archivist/pkg/archivist/catalog"
	"github.com/oppie-labs/archivist/pkg/archivist/types"
)

// contentLocation identifies the snapshot a blob actually lives under: the
// datetime/relPath it was written=true under, which a later snapshot's
// manifest may reference via dedup (spec §4.D) under a different relPath
// (or even a different datetime) than the one doing the referencing.
type contentLocation struct {
	Datetime string
	RelPath  string
}

// Key is the store key addressing this location's bytes.
func (l contentLocation) Key() string {
	return types.ContentKey(l.Datetime, l.RelPath)
}

// resolveGroupManifests walks every record in group in chronological
// order, recording where each distinct hash was actually written, and
// returns the manifest belonging to targetDatetime alongside it. Visiting
// records oldest-to-newest means a later write's location wins on a hash
// collision (spec §4.G step 4). dedup.WrittenIndex.SeedFromGroup scans in
// the opposite direction, so on such a collision it keeps the oldest
// location instead.
func resolveGroupManifests(cat *catalog.Catalog, group catalog.BackupGroup, targetDatetime string) (map[types.ContentHash]contentLocation, []types.PathSummary, error) {
	locations := make(map[types.ContentHash]contentLocation)
	var targetManifest []types.PathSummary
	for _, r := range group.Records {
		manifest, err := cat.LoadManifest(r.Datetime)
		if err != nil {
			return nil, nil, err
		}
		for _, s := range manifest {
			if s.IsFile() && s.Written {
				locations[s.SHA1Hex] = contentLocation{Datetime: r.Datetime, RelPath: s.RelPath}
			}
		}
		if r.Datetime == targetDatetime {
			targetManifest = manifest
		}
	}
	return locations, targetManifest, nil
}
