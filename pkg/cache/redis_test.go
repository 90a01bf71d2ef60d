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

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisDefaults(t *testing.T) {
	cfg := (&Redis{PoolSize: 32}).SetDefaults()
	assert.Equal(t, 32, cfg.PoolSize)
	assert.Equal(t, time.Duration(5), cfg.DialTimeout)
	assert.Equal(t, time.Duration(3), cfg.ReadTimeout)
	assert.False(t, cfg.Enabled())
	assert.True(t, Redis{Mode: "single"}.Enabled())
}

func TestNewRedisRejectsUnknownMode(t *testing.T) {
	client, err := NewRedis(context.Background(), Redis{Mode: "cluster"})
	require.Error(t, err)
	assert.Nil(t, client)
	assert.Contains(t, err.Error(), "cluster")
}
