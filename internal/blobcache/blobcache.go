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

// Package blobcache is a read-through, in-memory cache in front of any
// kvstore.Store, grounded in the teacher's pkg/helios/l1cache, but swapping
// its hand-rolled FIFO map+slice for github.com/hashicorp/golang-lru/v2 and
// its per-hash keying for a plain store-key keying (this cache sits below
// an arbitrary-key store, not a content-addressed one).
//
// A second, small LRU of BLAKE3 fingerprints lets Put notice when the
// bytes it was just asked to cache are already held under a different
// key (e.g. two ContentKeys from different snapshots that happen to
// reference the same uploaded blob) and share the one backing slice
// instead of holding two copies in RAM. This is purely a cache-memory
// optimization: the canonical content address stays the engine's SHA-1
// (crypto/sha1), never this fingerprint.
package blobcache

import (
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"lukechampine.com/blake3"

	"github.com/oppie-labs/archivist/pkg/archivist/kvstore"
)

// Stats reports cumulative cache counters.
type Stats struct {
	Hits   uint64
	Misses uint64
}

// Cache wraps a kvstore.Store with a bounded read-through cache.
type Cache struct {
	backing kvstore.Store
	prefix  string // qualifies values' keys when this Cache is a Submap view

	mu     sync.Mutex
	values *lru.Cache[string, []byte]
	byFP   *lru.Cache[string, []byte] // fingerprint -> canonical byte slice, for in-RAM sharing

	hits, misses uint64
}

var _ kvstore.Store = (*Cache)(nil)

// New returns a Cache of the given entry capacity wrapping backing.
func New(backing kvstore.Store, capacity int) (*Cache, error) {
	if capacity <= 0 {
		capacity = 1024
	}
	values, err := lru.New[string, []byte](capacity)
	if err != nil {
		return nil, err
	}
	byFP, err := lru.New[string, []byte](capacity)
	if err != nil {
		return nil, err
	}
	return &Cache{backing: backing, values: values, byFP: byFP}, nil
}

// Get returns the value for key, consulting the in-memory cache first.
func (c *Cache) Get(key string) ([]byte, error) {
	qualified := c.prefix + key
	c.mu.Lock()
	if v, ok := c.values.Get(qualified); ok {
		c.mu.Unlock()
		atomic.AddUint64(&c.hits, 1)
		out := make([]byte, len(v))
		copy(out, v)
		return out, nil
	}
	c.mu.Unlock()
	atomic.AddUint64(&c.misses, 1)

	v, err := c.backing.Get(key)
	if err != nil {
		return nil, err
	}
	c.store(qualified, v)
	return v, nil
}

// Put writes through to the backing store, then caches the bytes, sharing
// the backing slice across keys that fingerprint identically.
func (c *Cache) Put(key string, value []byte) error {
	if err := c.backing.Put(key, value); err != nil {
		return err
	}
	c.store(c.prefix+key, value)
	return nil
}

// store caches value under qualifiedKey, which callers must already have
// qualified with this Cache view's prefix.
func (c *Cache) store(qualifiedKey string, value []byte) {
	h := blake3.New(32, nil)
	h.Write(value)
	fp := string(h.Sum(nil))
	c.mu.Lock()
	defer c.mu.Unlock()
	if canonical, ok := c.byFP.Get(fp); ok && len(canonical) == len(value) {
		c.values.Add(qualifiedKey, canonical)
		return
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	c.byFP.Add(fp, cp)
	c.values.Add(qualifiedKey, cp)
}

func (c *Cache) Delete(key string) error {
	if err := c.backing.Delete(key); err != nil {
		return err
	}
	c.mu.Lock()
	c.values.Remove(c.prefix + key)
	c.mu.Unlock()
	return nil
}

func (c *Cache) Contains(key string) (bool, error) {
	c.mu.Lock()
	_, ok := c.values.Get(c.prefix + key)
	c.mu.Unlock()
	if ok {
		return true, nil
	}
	return c.backing.Contains(key)
}

func (c *Cache) Iter() (kvstore.Iterator, error) { return c.backing.Iter() }

// Submap returns a view scoped to prefix. It shares the parent's LRUs
// (values and byFP) rather than allocating fresh ones, but qualifies every
// values lookup with its own cumulative prefix so two differently-prefixed
// views never collide on the same bare key.
func (c *Cache) Submap(prefix string) kvstore.Store {
	return &Cache{backing: c.backing.Submap(prefix), prefix: c.prefix + prefix, values: c.values, byFP: c.byFP}
}

// Stats returns a snapshot of cumulative hit/miss counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:   atomic.LoadUint64(&c.hits),
		Misses: atomic.LoadUint64(&c.misses),
	}
}
