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

import (
	"context"
	"sync"
)

// Cloner is implemented by a non-concurrency-safe resource (e.g. a store
// client) that a Clonable task needs cloned once per worker.
type Cloner interface {
	Clone() interface{}
}

// Clonable is implemented by tasks that hold resources workers must not
// share. BoundedParallel clones each named resource at most once per
// worker (on that worker's first task needing it) and rebinds the clone
// onto the task before calling DoUnsynchronized — mirroring the original
// ThreadedTaskRunner.py's clonedAttributes/clonedAttributesMap per
// TaskProcessor thread.
type Clonable interface {
	Task
	CloneKeys() []string
	Resource(key string) interface{}
	SetResource(key string, value interface{})
}

// BoundedParallel runs unsynchronized phases across a fixed worker pool,
// then runs every synchronized phase, in submission order, on the
// dispatching goroutine — guaranteeing FIFO synchronized ordering
// regardless of unsynchronized completion order (spec §5).
type BoundedParallel struct {
	Workers int // default 10 if <= 0
}

var _ Runner = BoundedParallel{}

func (p BoundedParallel) Run(ctx context.Context, all []Task, checkpointFreq int, checkpoint func() error) error {
	workers := p.Workers
	if workers <= 0 {
		workers = 10
	}

	for _, slice := range chunk(all, checkpointFreq) {
		if err := runSliceParallel(ctx, slice, workers); err != nil {
			return err
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

func runSliceParallel(ctx context.Context, slice []Task, workers int) error {
	if len(slice) == 0 {
		return nil
	}
	if workers > len(slice) {
		workers = len(slice)
	}

	type job struct {
		idx  int
		task Task
	}
	jobs := make(chan job, len(slice))
	for i, t := range slice {
		jobs <- job{idx: i, task: t}
	}
	close(jobs)

	errs := make([]error, len(slice))
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cloned := make(map[string]interface{}) // per-worker clonedAttributesMap
			for j := range jobs {
				t := j.task
				if clonable, ok := t.(Clonable); ok {
					for _, key := range clonable.CloneKeys() {
						if _, have := cloned[key]; !have {
							orig := clonable.Resource(key)
							if cloner, ok := orig.(Cloner); ok {
								cloned[key] = cloner.Clone()
							} else {
								cloned[key] = orig
							}
						}
						clonable.SetResource(key, cloned[key])
					}
				}
				errs[j.idx] = t.DoUnsynchronized(ctx)
			}
		}()
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
