package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harvestproof/harvestproof-engine/pkg/apperrors"
)

func TestMemoryQuota_ReserveUpToBudget(t *testing.T) {
	quota := NewMemoryQuotaCounter(1.0)
	ctx := context.Background()

	require.NoError(t, quota.Reserve(ctx, 0.5))
	require.NoError(t, quota.Reserve(ctx, 0.5))

	err := quota.Reserve(ctx, 0.5)
	assert.ErrorIs(t, err, apperrors.ErrQuotaExceeded)
}

func TestMemoryQuota_FailedReserveLeavesBudgetIntact(t *testing.T) {
	quota := NewMemoryQuotaCounter(1.0)
	ctx := context.Background()

	require.NoError(t, quota.Reserve(ctx, 0.8))
	require.ErrorIs(t, quota.Reserve(ctx, 0.5), apperrors.ErrQuotaExceeded)

	// The rejected reservation consumed nothing.
	assert.NoError(t, quota.Reserve(ctx, 0.2))
}

func TestMemoryQuota_ReleaseRefunds(t *testing.T) {
	quota := NewMemoryQuotaCounter(0.5)
	ctx := context.Background()

	require.NoError(t, quota.Reserve(ctx, 0.5))
	require.ErrorIs(t, quota.Reserve(ctx, 0.5), apperrors.ErrQuotaExceeded)

	require.NoError(t, quota.Release(ctx, 0.5))
	assert.NoError(t, quota.Reserve(ctx, 0.5))
}

func TestMemoryQuota_ReleaseNeverGoesNegative(t *testing.T) {
	quota := NewMemoryQuotaCounter(1.0)
	ctx := context.Background()

	require.NoError(t, quota.Release(ctx, 5.0))

	require.NoError(t, quota.Reserve(ctx, 1.0))
	assert.ErrorIs(t, quota.Reserve(ctx, 0.5), apperrors.ErrQuotaExceeded)
}

func TestMemoryQuota_ResetsOnMonthRollover(t *testing.T) {
	counter := &memoryQuotaCounter{budget: 1.0}
	current := time.Date(2026, time.August, 15, 0, 0, 0, 0, time.UTC)
	counter.now = func() time.Time { return current }
	ctx := context.Background()

	require.NoError(t, counter.Reserve(ctx, 1.0))
	require.ErrorIs(t, counter.Reserve(ctx, 0.5), apperrors.ErrQuotaExceeded)

	current = current.AddDate(0, 1, 0)
	assert.NoError(t, counter.Reserve(ctx, 1.0))
}

func TestMemoryQuota_ConcurrentReservesNeverOverspend(t *testing.T) {
	quota := NewMemoryQuotaCounter(100)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	granted := 0

	for i := 0; i < 300; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := quota.Reserve(ctx, 0.5); err == nil {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 200, granted)
}
