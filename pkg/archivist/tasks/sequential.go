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

package tasks

import "context"

// Sequential runs every task on the invoking goroutine: a slice of
// checkpointFreq tasks runs all its unsynchronized phases, then all its
// synchronized phases, then checkpoint runs, per spec §5.
type Sequential struct{}

var _ Runner = Sequential{}

func (Sequential) Run(ctx context.Context, all []Task, checkpointFreq int, checkpoint func() error) error {
	for _, slice := range chunk(all, checkpointFreq) {
		for _, t := range slice {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := t.DoUnsynchronized(ctx); err != nil {
				return err
			}
		}
		for _, t := range slice {
			if err := t.DoSynchronized(ctx); err != nil {
				return err
			}
		}
		if checkpoint != nil {
			if err := checkpoint(); err != nil {
				return err
			}
		}
	}
	return nil
}
