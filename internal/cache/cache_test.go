/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cachedKey struct {
	ID      string `json:"id"`
	Revoked bool   `json:"revoked"`
}

func newTestCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client), mr
}

func TestSetAndGet(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "apikey:abc", cachedKey{ID: "api_key_1"}, time.Minute))

	var got cachedKey
	found, err := c.Get(ctx, "apikey:abc", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "api_key_1", got.ID)
}

func TestGetMiss(t *testing.T) {
	c, _ := newTestCache(t)

	var got cachedKey
	found, err := c.Get(context.Background(), "missing", &got)
	assert.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, got.ID)
}

func TestDelete(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "apikey:abc", cachedKey{ID: "api_key_1"}, time.Minute))
	assert.True(t, mr.Exists("apikey:abc"))

	require.NoError(t, c.Delete(ctx, "apikey:abc"))
	assert.False(t, mr.Exists("apikey:abc"))

	var got cachedKey
	found, err := c.Get(ctx, "apikey:abc", &got)
	assert.NoError(t, err)
	assert.False(t, found)

	assert.NoError(t, c.Delete(ctx, "never-set"))
}
