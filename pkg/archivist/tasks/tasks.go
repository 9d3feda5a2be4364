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

// Package tasks implements the two-phase task contract and the two
// runners (sequential, bounded-parallel) that drive backup/restore
// uploads and fetches (spec §4.F, §5). Grounded in the original
// keevalbak ThreadedTaskRunner.py (queue + worker pool +
// doUnsynchronized/doSynchronized), reimplemented with goroutines and
// channels in the teacher's idiom (cas.go's backgroundWriter/errorHandler
// goroutine pairing).
package tasks

import "context"

// Task is a unit of work with two phases. DoUnsynchronized may run
// concurrently with other tasks' unsynchronized phases and should do the
// I/O. DoSynchronized is always run serially, in submission order, on the
// runner's dispatching goroutine, and should update shared state.
type Task interface {
	DoUnsynchronized(ctx context.Context) error
	DoSynchronized(ctx context.Context) error
}

// Runner executes a slice of tasks in checkpointFreq-sized slices: every
// task's unsynchronized phase runs (concurrently or not, depending on
// implementation), then every synchronized phase runs in submission
// order, then checkpoint is invoked, before the next slice begins.
// checkpoint also runs once after the final slice.
type Runner interface {
	Run(ctx context.Context, tasks []Task, checkpointFreq int, checkpoint func() error) error
}

// chunk splits tasks into checkpointFreq-sized slices. checkpointFreq<=0
// means "one slice".
func chunk(tasks []Task, checkpointFreq int) [][]Task {
	if checkpointFreq <= 0 || checkpointFreq >= len(tasks) {
		if len(tasks) == 0 {
			return nil
		}
		return [][]Task{tasks}
	}
	var out [][]Task
	for i := 0; i < len(tasks); i += checkpointFreq {
		end := i + checkpointFreq
		if end > len(tasks) {
			end = len(tasks)
		}
		out = append(out, tasks[i:end])
	}
	return out
}
