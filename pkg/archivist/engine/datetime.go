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

// Package engine drives the snapshot and restore protocols (spec §4.E,
// §4.G) on top of catalog, dedup and tasks, grounded in the original
// keevalbak IncrementalBackups.doBackup/restore flow.
package engine

import "time"

// Clock returns the datetime string for a new snapshot, formatted
// YYYY-Mon-DD.HH-MM-SS per spec §3. Injectable so tests can supply a fixed
// or strictly-increasing sequence instead of the wall clock.
type Clock func() string

// SystemClock formats time.Now() in the spec's datetime layout.
func SystemClock() string {
	return time.Now().Format("2006-Jan-02.15-04-05")
}
