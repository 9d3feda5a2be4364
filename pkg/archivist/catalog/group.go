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

package catalog

import "github.com/oppie-labs/archivist/pkg/archivist/types"

// BackupGroup is a maximal contiguous run of records starting at a Full
// (or at index 0 if the first record is Incremental — the legacy case)
// followed by zero or more Incrementals.
type BackupGroup struct {
	// StartIndex/EndIndex index into the records slice GroupRecords was
	// called with; EndIndex is inclusive.
	StartIndex, EndIndex int
	Records               []types.BackupRecord
}

// GroupRecords scans records chronologically, starting a new group at
// each Full record or at index 0, per spec §3 BackupGroup / §8 property 7
// (list stability: group boundaries at each Full).
func GroupRecords(records []types.BackupRecord) []BackupGroup {
	var groups []BackupGroup
	for i, r := range records {
		if i == 0 || r.Kind == types.Full {
			groups = append(groups, BackupGroup{StartIndex: i, EndIndex: i, Records: []types.BackupRecord{r}})
			continue
		}
		groups[len(groups)-1].EndIndex = i
		groups[len(groups)-1].Records = append(groups[len(groups)-1].Records, r)
	}
	return groups
}

// EnclosingGroup returns the backup group containing the record at
// datetime, scanning backward to the nearest Full (or index 0), mirroring
// IncrementalBackups.getRestoreRecords in the original keevalbak source.
func EnclosingGroup(records []types.BackupRecord, datetime string) (BackupGroup, bool) {
	idx := FindIndexByDatetime(records, datetime)
	if idx < 0 {
		return BackupGroup{}, false
	}
	start := idx
	for start > 0 && records[start].Kind != types.Full {
		start--
	}
	return BackupGroup{StartIndex: start, EndIndex: idx, Records: records[start : idx+1]}, true
}

// Head returns the first (Full, or legacy-Incremental-at-0) record of the
// group — the marker printed by `list` (spec §6).
func (g BackupGroup) Head() types.BackupRecord { return g.Records[0] }

// Tail returns the most recent record in the group.
func (g BackupGroup) Tail() types.BackupRecord { return g.Records[len(g.Records)-1] }
