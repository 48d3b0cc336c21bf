package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAllowLocal(t *testing.T) {
	ctx := context.Background()

	t.Run("blocks over the limit", func(t *testing.T) {
		limiter := New(nil, 2, time.Minute, nil)

		assert.True(t, limiter.Allow(ctx, "site-1"))
		assert.True(t, limiter.Allow(ctx, "site-1"))
		assert.False(t, limiter.Allow(ctx, "site-1"))
	})

	t.Run("keys are independent", func(t *testing.T) {
		limiter := New(nil, 1, time.Minute, nil)

		assert.True(t, limiter.Allow(ctx, "site-1"))
		assert.False(t, limiter.Allow(ctx, "site-1"))
		assert.True(t, limiter.Allow(ctx, "site-2"))
	})

	t.Run("window resets", func(t *testing.T) {
		limiter := New(nil, 1, 20*time.Millisecond, nil)

		assert.True(t, limiter.Allow(ctx, "site-1"))
		assert.False(t, limiter.Allow(ctx, "site-1"))

		time.Sleep(30 * time.Millisecond)
		assert.True(t, limiter.Allow(ctx, "site-1"))
	})

	t.Run("non-positive limit disables limiting", func(t *testing.T) {
		limiter := New(nil, 0, time.Minute, nil)
		for i := 0; i < 100; i++ {
			assert.True(t, limiter.Allow(ctx, "site-1"))
		}
	})
}
