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
	"sort"
	"strings"
	"sync"
)

// Mem is an in-memory, concurrency-safe Store. It backs unit/integration
// tests; the CLI always uses the persistent Pebble store instead.
type Mem struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMem returns an empty in-memory store.
func NewMem() *Mem {
	return &Mem{data: make(map[string][]byte)}
}

func (m *Mem) Get(key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, nil
}

func (m *Mem) Put(key string, value []byte) error {
	cp := make([]byte, len(value))
	copy(cp, value)
	m.mu.Lock()
	m.data[key] = cp
	m.mu.Unlock()
	return nil
}

func (m *Mem) Delete(key string) error {
	m.mu.Lock()
	delete(m.data, key)
	m.mu.Unlock()
	return nil
}

func (m *Mem) Contains(key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.data[key]
	return ok, nil
}

func (m *Mem) Iter() (Iterator, error) {
	return m.iterWithPrefix("")
}

func (m *Mem) iterWithPrefix(prefix string) (Iterator, error) {
	m.mu.RLock()
	keys := make([]string, 0)
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k[len(prefix):])
		}
	}
	m.mu.RUnlock()
	sort.Strings(keys)
	return newSliceIterator(keys), nil
}

func (m *Mem) Submap(prefix string) Store {
	return &prefixed{prefix: prefix, backing: m}
}

// prefixIterable is implemented by backends (Mem, PebbleStore) that can
// iterate efficiently with a prefix filter, without materializing the
// whole keyspace. prefixed views use it when available.
type prefixIterable interface {
	iterWithPrefix(prefix string) (Iterator, error)
}

// prefixed is a bounded view over a Store: it transparently prepends
// prefix on the way in and strips it on the way out of Iter, exactly the
// "submap" semantics of spec §4.A / §9 (not a copy).
type prefixed struct {
	prefix  string
	backing Store
}

func (p *prefixed) Get(key string) ([]byte, error) { return p.backing.Get(p.prefix + key) }
func (p *prefixed) Put(key string, value []byte) error {
	return p.backing.Put(p.prefix+key, value)
}
func (p *prefixed) Delete(key string) error { return p.backing.Delete(p.prefix + key) }
func (p *prefixed) Contains(key string) (bool, error) {
	return p.backing.Contains(p.prefix + key)
}

func (p *prefixed) iterWithPrefix(prefix string) (Iterator, error) {
	full := p.prefix + prefix
	if pi, ok := p.backing.(prefixIterable); ok {
		return pi.iterWithPrefix(full)
	}
	it, err := p.backing.Iter()
	if err != nil {
		return nil, err
	}
	keys, err := CollectKeys(it)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if strings.HasPrefix(k, full) {
			out = append(out, k[len(full):])
		}
	}
	return newSliceIterator(out), nil
}

func (p *prefixed) Iter() (Iterator, error) {
	return p.iterWithPrefix("")
}

func (p *prefixed) Submap(prefix string) Store {
	return &prefixed{prefix: p.prefix + prefix, backing: p.backing}
}
