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

package archiveerr_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/oppie-labs/archivist/internal/archiveerr"
)

func TestConfigurationError(t *testing.T) {
	cause := errors.New("boom")
	err := archiveerr.Configuration("bad config", cause)
	assert.Contains(t, err.Error(), "bad config")
	assert.Contains(t, err.Error(), "boom")
	assert.ErrorIs(t, err, cause)
}

func TestConfigurationError_NoCause(t *testing.T) {
	err := archiveerr.Configuration("bad config", nil)
	assert.Equal(t, "configuration error: bad config", err.Error())
}

func TestStoreError(t *testing.T) {
	cause := errors.New("disk full")
	err := archiveerr.Store("put", "k1", cause)
	assert.Contains(t, err.Error(), "put")
	assert.Contains(t, err.Error(), "k1")
	assert.ErrorIs(t, err, cause)
}

func TestStoreError_NilCauseReturnsNil(t *testing.T) {
	assert.NoError(t, archiveerr.Store("put", "k1", nil))
}

func TestIntegrityError_AccumulatesDetails(t *testing.T) {
	err := archiveerr.NewIntegrity("restore verification failed")
	assert.False(t, err.HasDetails())

	err.Add("a.txt: hash mismatch")
	err.Add("b.txt: missing")
	assert.True(t, err.HasDetails())
	assert.Contains(t, err.Error(), "2 detail(s)")
	assert.Contains(t, err.Error(), "a.txt: hash mismatch")
}

func TestPreconditionError(t *testing.T) {
	err := archiveerr.Precondition("keep must be >= 1, got %d", 0)
	assert.Equal(t, "precondition error: keep must be >= 1, got 0", err.Error())
}

func TestIoError(t *testing.T) {
	cause := errors.New("permission denied")
	err := archiveerr.Io("open", "/tmp/x", cause)
	assert.Contains(t, err.Error(), "open")
	assert.Contains(t, err.Error(), "/tmp/x")
	assert.ErrorIs(t, err, cause)
}

func TestIoError_NilCauseReturnsNil(t *testing.T) {
	assert.NoError(t, archiveerr.Io("open", "/tmp/x", nil))
}
