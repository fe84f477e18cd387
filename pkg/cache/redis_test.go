package cache

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisCache_RoundTrip(t *testing.T) {
	c, err := NewRedisCache("localhost:6379", "", 0)
	if err != nil {
		t.Skip("Redis not available")
	}
	defer c.Close()

	ctx := context.Background()
	key := "test:" + uuid.NewString()

	type summary struct {
		Tier   string `json:"tier"`
		Status string `json:"status"`
	}

	var got summary
	assert.ErrorIs(t, c.Get(ctx, key, &got), redis.Nil)

	require.NoError(t, c.Set(ctx, key, summary{Tier: "sepa", Status: "pending"}, time.Minute))
	require.NoError(t, c.Get(ctx, key, &got))
	assert.Equal(t, summary{Tier: "sepa", Status: "pending"}, got)

	ok, err := c.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, c.Delete(ctx, key))
	ok, err = c.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
}
