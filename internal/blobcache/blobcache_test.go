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

package blobcache_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oppie-labs/archivist/internal/blobcache"
	"github.com/oppie-labs/archivist/pkg/archivist/kvstore"
)

func TestCache_GetMissThenHit(t *testing.T) {
	backing := kvstore.NewMem()
	require.NoError(t, backing.Put("k1", []byte("hello")))

	c, err := blobcache.New(backing, 16)
	require.NoError(t, err)

	v, err := c.Get("k1")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), v)
	assert.Equal(t, blobcache.Stats{Hits: 0, Misses: 1}, c.Stats())

	v, err = c.Get("k1")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), v)
	assert.Equal(t, blobcache.Stats{Hits: 1, Misses: 1}, c.Stats())
}

func TestCache_PutWritesThroughAndCaches(t *testing.T) {
	backing := kvstore.NewMem()
	c, err := blobcache.New(backing, 16)
	require.NoError(t, err)

	require.NoError(t, c.Put("k1", []byte("hello")))

	backed, err := backing.Get("k1")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), backed)

	v, err := c.Get("k1")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), v)
	assert.Equal(t, uint64(0), c.Stats().Misses, "Get right after Put must hit the cache, not the backing store")
}

func TestCache_Delete(t *testing.T) {
	backing := kvstore.NewMem()
	c, err := blobcache.New(backing, 16)
	require.NoError(t, err)
	require.NoError(t, c.Put("k1", []byte("hello")))
	require.NoError(t, c.Delete("k1"))

	ok, err := c.Contains("k1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCache_Contains(t *testing.T) {
	backing := kvstore.NewMem()
	c, err := blobcache.New(backing, 16)
	require.NoError(t, err)

	ok, err := c.Contains("missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Put("k1", []byte("x")))
	ok, err = c.Contains("k1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCache_Submap(t *testing.T) {
	backing := kvstore.NewMem()
	c, err := blobcache.New(backing, 16)
	require.NoError(t, err)
	view := c.Submap("pfx/")

	require.NoError(t, view.Put("k", []byte("hello")))
	got, err := backing.Get("pfx/k")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got)
}

func TestCache_Submap_DoesNotCollideAcrossPrefixes(t *testing.T) {
	backing := kvstore.NewMem()
	c, err := blobcache.New(backing, 16)
	require.NoError(t, err)

	a := c.Submap("a/")
	b := c.Submap("b/")

	require.NoError(t, a.Put("k", []byte("from-a")))
	require.NoError(t, b.Put("k", []byte("from-b")))

	va, err := a.Get("k")
	require.NoError(t, err)
	assert.Equal(t, []byte("from-a"), va, "submap a's cached value for bare key \"k\" must not be clobbered by submap b")

	vb, err := b.Get("k")
	require.NoError(t, err)
	assert.Equal(t, []byte("from-b"), vb)
}

func TestCache_Submap_DeleteDoesNotEvictSiblingPrefix(t *testing.T) {
	backing := kvstore.NewMem()
	c, err := blobcache.New(backing, 16)
	require.NoError(t, err)

	a := c.Submap("a/")
	b := c.Submap("b/")

	require.NoError(t, a.Put("k", []byte("from-a")))
	require.NoError(t, b.Put("k", []byte("from-b")))

	require.NoError(t, a.Delete("k"))

	okA, err := a.Contains("k")
	require.NoError(t, err)
	assert.False(t, okA)

	okB, err := b.Contains("k")
	require.NoError(t, err)
	assert.True(t, okB, "deleting through submap a must not evict submap b's entry for the same bare key")
}

func TestCache_DefaultsCapacityWhenNonPositive(t *testing.T) {
	backing := kvstore.NewMem()
	c, err := blobcache.New(backing, 0)
	require.NoError(t, err)
	require.NoError(t, c.Put("k", []byte("v")))
	v, err := c.Get("k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), v)
}
