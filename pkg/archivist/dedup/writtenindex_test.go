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

package dedup_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oppie-labs/archivist/pkg/archivist/dedup"
	"github.com/oppie-labs/archivist/pkg/archivist/types"
)

func TestWrittenIndex_RecordAndIsWritten(t *testing.T) {
	w := dedup.New()
	assert.False(t, w.IsWritten("h1"))

	w.Record("h1", "2026-Jan-01.00-00-00/files/a.txt")
	assert.True(t, w.IsWritten("h1"))

	loc, ok := w.LocationOf("h1")
	require.True(t, ok)
	assert.Equal(t, "2026-Jan-01.00-00-00/files/a.txt", loc)

	_, ok = w.LocationOf("missing")
	assert.False(t, ok)
}

type fakeLoader struct {
	manifests map[string][]types.PathSummary
}

func (f *fakeLoader) LoadManifest(datetime string) ([]types.PathSummary, error) {
	return f.manifests[datetime], nil
}

func TestWrittenIndex_SeedFromGroup_StopsAtEnclosingFull(t *testing.T) {
	loader := &fakeLoader{manifests: map[string][]types.PathSummary{
		"d0": {
			{Kind: types.KindFile, RelPath: "/a.txt", SHA1Hex: "hashA", Written: true},
		},
		"d1": {
			{Kind: types.KindFile, RelPath: "/b.txt", SHA1Hex: "hashB", Written: true},
			{Kind: types.KindFile, RelPath: "/unwritten.txt", SHA1Hex: "hashC", Written: false},
		},
	}}
	records := []types.BackupRecord{
		{Kind: types.Full, Datetime: "d0"},
		{Kind: types.Incremental, Datetime: "d1"},
	}

	w := dedup.New()
	require.NoError(t, w.SeedFromGroup(loader, records))

	assert.True(t, w.IsWritten("hashA"))
	assert.True(t, w.IsWritten("hashB"))
	assert.False(t, w.IsWritten("hashC"), "non-written files must not be seeded")

	locA, _ := w.LocationOf("hashA")
	assert.Equal(t, types.ContentKey("d0", "/a.txt"), locA)
}

func TestWrittenIndex_SeedFromGroup_DoesNotCrossIntoPriorGroup(t *testing.T) {
	loader := &fakeLoader{manifests: map[string][]types.PathSummary{
		"d0": {{Kind: types.KindFile, RelPath: "/old.txt", SHA1Hex: "hashOld", Written: true}},
		"d1": {{Kind: types.KindFile, RelPath: "/new.txt", SHA1Hex: "hashNew", Written: true}},
	}}
	// Only the second group (starting at d1, itself a Full) is passed in,
	// so seeding must never see d0's hashOld.
	records := []types.BackupRecord{
		{Kind: types.Full, Datetime: "d1"},
	}

	w := dedup.New()
	require.NoError(t, w.SeedFromGroup(loader, records))

	assert.True(t, w.IsWritten("hashNew"))
	assert.False(t, w.IsWritten("hashOld"))
}

func TestWrittenIndex_SeedFromGroup_LegacyNoFullStopsAtIndexZero(t *testing.T) {
	loader := &fakeLoader{manifests: map[string][]types.PathSummary{
		"d0": {{Kind: types.KindFile, RelPath: "/a.txt", SHA1Hex: "hashA", Written: true}},
	}}
	records := []types.BackupRecord{
		{Kind: types.Incremental, Datetime: "d0"},
	}

	w := dedup.New()
	require.NoError(t, w.SeedFromGroup(loader, records))
	assert.True(t, w.IsWritten("hashA"))
}

func TestWrittenIndex_SeedFromGroup_Empty(t *testing.T) {
	w := dedup.New()
	require.NoError(t, w.SeedFromGroup(&fakeLoader{}, nil))
	assert.False(t, w.IsWritten("anything"))
}
