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

package kvstore

import (
	"strings"

	"github.com/cockroachdb/pebble"
)

// PebbleOptions configures PebbleStore.
type PebbleOptions struct {
	ReadOnly bool
}

// PebbleStore adapts github.com/cockroachdb/pebble to the flat
// string-keyed Store contract. It is the persistent backend archivist
// commits archives to; generalized from the teacher's hash-keyed
// objstore.pebbleStore into an arbitrary-UTF-8-key store with prefix
// iteration (spec §4.A/§6 require Iter and Submap, which a pure
// hash-addressed store has no use for).
type PebbleStore struct {
	db *pebble.DB
}

// OpenPebble opens (creating if absent) a Pebble-backed store at path.
func OpenPebble(path string, opts *PebbleOptions) (*PebbleStore, error) {
	pebbleOpts := &pebble.Options{
		// Tuned for write-heavy, many-small-keys workloads (one key per
		// backed-up file plus manifests), matching the teacher's defaults.
		MemTableSize:                64 << 20,
		MemTableStopWritesThreshold: 4,
		L0CompactionThreshold:       4,
		L0StopWritesThreshold:       12,
		LBaseMaxBytes:               64 << 20,
		MaxConcurrentCompactions:    func() int { return 3 },
		DisableWAL:                  false,
	}
	if opts != nil && opts.ReadOnly {
		pebbleOpts.ReadOnly = true
	}

	db, err := pebble.Open(path, pebbleOpts)
	if err != nil {
		return nil, err
	}
	return &PebbleStore{db: db}, nil
}

func (s *PebbleStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *PebbleStore) Get(key string) ([]byte, error) {
	val, closer, err := s.db.Get([]byte(key))
	if err != nil {
		if err == pebble.ErrNotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}
	defer closer.Close()
	out := make([]byte, len(val))
	copy(out, val)
	return out, nil
}

func (s *PebbleStore) Put(key string, value []byte) error {
	return s.db.Set([]byte(key), value, pebble.Sync)
}

func (s *PebbleStore) Delete(key string) error {
	// Pebble's Delete of an absent key is already a silent no-op.
	return s.db.Delete([]byte(key), pebble.Sync)
}

func (s *PebbleStore) Contains(key string) (bool, error) {
	_, closer, err := s.db.Get([]byte(key))
	if err != nil {
		if err == pebble.ErrNotFound {
			return false, nil
		}
		return false, err
	}
	closer.Close()
	return true, nil
}

func (s *PebbleStore) Iter() (Iterator, error) {
	return s.iterWithPrefix("")
}

func (s *PebbleStore) iterWithPrefix(prefix string) (Iterator, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(prefix),
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	return &pebbleIterator{iter: iter, prefix: prefix, started: false}, nil
}

func (s *PebbleStore) Submap(prefix string) Store {
	return &prefixed{prefix: prefix, backing: s}
}

// prefixUpperBound returns the smallest key greater than every key with
// the given prefix, or nil if prefix is empty (unbounded scan).
func prefixUpperBound(prefix string) []byte {
	if prefix == "" {
		return nil
	}
	b := []byte(prefix)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] != 0xff {
			out := make([]byte, i+1)
			copy(out, b[:i+1])
			out[i]++
			return out
		}
	}
	return nil // prefix is all 0xff bytes: unbounded upper
}

type pebbleIterator struct {
	iter    *pebble.Iterator
	prefix  string
	started bool
}

func (it *pebbleIterator) Next() (string, bool) {
	var valid bool
	if !it.started {
		valid = it.iter.First()
		it.started = true
	} else {
		valid = it.iter.Next()
	}
	if !valid {
		return "", false
	}
	k := string(it.iter.Key())
	return strings.TrimPrefix(k, it.prefix), true
}

func (it *pebbleIterator) Close() error {
	return it.iter.Close()
}
