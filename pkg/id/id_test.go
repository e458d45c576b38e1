// Copyright 2025 Arcade Team
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package id

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetUUID(t *testing.T) {
	u := GetUUID()
	assert.Len(t, u, 36)
	assert.True(t, IsUUID(u))
	assert.Len(t, GetUUIDWithoutDashes(), 32)
	assert.False(t, IsUUID("not-a-uuid"))
}

func TestGetULID_Monotonic(t *testing.T) {
	prev := GetULID()
	assert.Len(t, prev, 26)
	for range 100 {
		next := GetULID()
		assert.Greater(t, next, prev)
		prev = next
	}
}

func TestShortId(t *testing.T) {
	a, b := ShortId(), ShortId()
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}
