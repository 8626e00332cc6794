package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryClaimStore_Claims(t *testing.T) {
	store := NewInMemoryClaimStore()
	defer store.Close()
	ctx := context.Background()

	ok, err := store.Claim(ctx, "dispatch:a", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Claim(ctx, "dispatch:a", time.Hour)
	require.NoError(t, err)
	assert.False(t, ok, "second claim must fail while the first is held")

	held, err := store.IsClaimed(ctx, "dispatch:a")
	require.NoError(t, err)
	assert.True(t, held)

	require.NoError(t, store.Release(ctx, "dispatch:a"))
	ok, err = store.Claim(ctx, "dispatch:a", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok, "claim is available again after release")
}

func TestInMemoryClaimStore_Expiry(t *testing.T) {
	store := NewInMemoryClaimStore()
	defer store.Close()
	ctx := context.Background()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	ok, _ := store.Claim(ctx, "k", time.Minute)
	require.True(t, ok)

	now = now.Add(2 * time.Minute)
	held, err := store.IsClaimed(ctx, "k")
	require.NoError(t, err)
	assert.False(t, held)

	ok, _ = store.Claim(ctx, "k", time.Minute)
	assert.True(t, ok, "expired claim can be taken again")

	now = now.Add(2 * time.Minute)
	store.sweep()
	assert.Equal(t, 0, store.Size())
}

func TestInMemoryClaimStore_ConcurrentClaims(t *testing.T) {
	store := NewInMemoryClaimStore()
	defer store.Close()
	ctx := context.Background()

	var winners int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := store.Claim(ctx, "dispatch:c", time.Hour); ok {
				atomic.AddInt32(&winners, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), winners)
}

func TestInMemoryClaimStore_CloseTwice(t *testing.T) {
	store := NewInMemoryClaimStore()
	assert.NoError(t, store.Close())
	assert.NoError(t, store.Close())
}
