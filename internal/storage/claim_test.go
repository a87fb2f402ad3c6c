package storage

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/crawldigest/pkg/types"
)

func TestClaimContentItems_OldestFirst(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	var ids []int64
	for i := 0; i < 5; i++ {
		item := createTestItem(t, storage, fmt.Sprintf("https://example.com/%d", i), "text")
		ids = append(ids, item.ID)
	}

	claimed, err := storage.ClaimContentItems(ctx, types.ItemPending, 3, time.Minute)
	require.NoError(t, err)
	require.Len(t, claimed, 3)
	for i, item := range claimed {
		assert.Equal(t, ids[i], item.ID)
		assert.NotEmpty(t, item.ClaimToken)
		require.NotNil(t, item.ClaimedUntil)
		assert.True(t, item.ClaimedUntil.After(time.Now()))
	}
	// One token per claim call
	assert.Equal(t, claimed[0].ClaimToken, claimed[2].ClaimToken)

	// Claimed items are skipped by the next claim
	rest, err := storage.ClaimContentItems(ctx, types.ItemPending, 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, rest, 2)
	assert.Equal(t, ids[3], rest[0].ID)
	assert.Equal(t, ids[4], rest[1].ID)

	none, err := storage.ClaimContentItems(ctx, types.ItemPending, 10, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestClaimContentItems_FiltersByStatus(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	a := createTestItem(t, storage, "https://example.com/a", "text")
	createTestItem(t, storage, "https://example.com/b", "text")
	require.NoError(t, storage.UpdateContentItemStatus(ctx, a.ID, "", types.ItemChunked))

	claimed, err := storage.ClaimContentItems(ctx, types.ItemChunked, 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, a.ID, claimed[0].ID)

	claimed, err = storage.ClaimContentItems(ctx, types.ItemPending, 0, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, claimed)
}

func TestClaimContentItems_ExpiredLeaseIsReclaimable(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()
	createTestItem(t, storage, "https://example.com/a", "text")

	first, err := storage.ClaimContentItems(ctx, types.ItemPending, 1, -time.Second)
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := storage.ClaimContentItems(ctx, types.ItemPending, 1, time.Minute)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.NotEqual(t, first[0].ClaimToken, second[0].ClaimToken)

	// The stale owner can no longer finish the item
	err = storage.UpdateContentItemStatus(ctx, first[0].ID, first[0].ClaimToken, types.ItemChunked)
	assert.ErrorIs(t, err, ErrClaimLost)

	require.NoError(t, storage.UpdateContentItemStatus(ctx, second[0].ID, second[0].ClaimToken, types.ItemChunked))
	got, err := storage.GetContentItem(ctx, second[0].ID)
	require.NoError(t, err)
	assert.Equal(t, types.ItemChunked, got.Status)
	assert.Empty(t, got.ClaimToken)
	assert.Nil(t, got.ClaimedUntil)
}

func TestReleaseClaim(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()
	createTestItem(t, storage, "https://example.com/a", "text")

	claimed, err := storage.ClaimContentItems(ctx, types.ItemPending, 1, time.Minute)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	require.NoError(t, storage.ReleaseClaim(ctx, claimed[0].ID, claimed[0].ClaimToken))

	got, err := storage.GetContentItem(ctx, claimed[0].ID)
	require.NoError(t, err)
	assert.Equal(t, types.ItemPending, got.Status)
	assert.Empty(t, got.ClaimToken)

	assert.ErrorIs(t, storage.ReleaseClaim(ctx, 999, "token"), ErrNotFound)
}

func TestReleaseExpiredClaims(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()
	createTestItem(t, storage, "https://example.com/a", "text")
	createTestItem(t, storage, "https://example.com/b", "text")

	// a is older and takes the live lease, so the expired lease lands on b
	live, err := storage.ClaimContentItems(ctx, types.ItemPending, 1, time.Hour)
	require.NoError(t, err)
	require.Len(t, live, 1)
	expired, err := storage.ClaimContentItems(ctx, types.ItemPending, 1, -time.Second)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	require.NotEqual(t, live[0].ID, expired[0].ID)

	released, err := storage.ReleaseExpiredClaims(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, released)

	status, err := storage.GetStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, status.ClaimedItems)

	got, err := storage.GetContentItem(ctx, expired[0].ID)
	require.NoError(t, err)
	assert.Empty(t, got.ClaimToken)
	assert.Nil(t, got.ClaimedUntil)
}

func TestUpsertContentItem_ChangedTextDropsClaim(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()
	createTestItem(t, storage, "https://example.com/a", "old text")

	claimed, err := storage.ClaimContentItems(ctx, types.ItemPending, 1, time.Hour)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	// Same text keeps the claim
	createTestItem(t, storage, "https://example.com/a", "old text")
	got, err := storage.GetContentItem(ctx, claimed[0].ID)
	require.NoError(t, err)
	assert.Equal(t, claimed[0].ClaimToken, got.ClaimToken)

	createTestItem(t, storage, "https://example.com/a", "new text")
	got, err = storage.GetContentItem(ctx, claimed[0].ID)
	require.NoError(t, err)
	assert.Equal(t, types.ItemPending, got.Status)
	assert.Empty(t, got.ClaimToken)
	assert.Nil(t, got.ClaimedUntil)

	err = storage.UpdateContentItemStatus(ctx, claimed[0].ID, claimed[0].ClaimToken, types.ItemChunked)
	assert.ErrorIs(t, err, ErrClaimLost)

	again, err := storage.ClaimContentItems(ctx, types.ItemPending, 1, time.Minute)
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.Equal(t, "new text", again[0].RawText)
}

func TestClaimContentItems_ConcurrentClaimsAreDisjoint(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		createTestItem(t, storage, fmt.Sprintf("https://example.com/%d", i), "text")
	}

	var mu sync.Mutex
	seen := make(map[int64]int)
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				claimed, err := storage.ClaimContentItems(ctx, types.ItemPending, 3, time.Minute)
				if !assert.NoError(t, err) || len(claimed) == 0 {
					return
				}
				mu.Lock()
				for _, item := range claimed {
					seen[item.ID]++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, 20)
	for id, n := range seen {
		assert.Equal(t, 1, n, "item %d claimed more than once", id)
	}
}
