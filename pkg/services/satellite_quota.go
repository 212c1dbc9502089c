package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/harvestproof/harvestproof-engine/pkg/apperrors"
)

// QuotaCounter tracks consumption of the imagery provider's monthly
// processing-unit budget. Reserve is atomic: concurrent analysis requests can
// never over-spend the budget between check and increment.
type QuotaCounter interface {
	// Reserve consumes units from the current month's budget, failing with
	// apperrors.ErrQuotaExceeded when the budget would be exceeded.
	Reserve(ctx context.Context, units float64) error

	// Release refunds units reserved for a run that never reached the
	// provider (e.g. the fetch itself failed).
	Release(ctx context.Context, units float64) error
}

// quotaKeyRetention keeps a month's counter around a little past month end so
// late releases still find it.
const quotaKeyRetention = 40 * 24 * time.Hour

// ============================================================================
// Redis-backed counter (shared across instances)
// ============================================================================

type redisQuotaCounter struct {
	client *redis.Client
	budget float64
	now    func() time.Time
}

// NewRedisQuotaCounter creates a QuotaCounter backed by a month-keyed Redis
// counter, shared by every engine instance.
func NewRedisQuotaCounter(client *redis.Client, monthlyBudget float64) QuotaCounter {
	return &redisQuotaCounter{client: client, budget: monthlyBudget, now: time.Now}
}

var _ QuotaCounter = (*redisQuotaCounter)(nil)

func (c *redisQuotaCounter) key() string {
	return "satellite:quota:" + c.now().UTC().Format("2006-01")
}

func (c *redisQuotaCounter) Reserve(ctx context.Context, units float64) error {
	key := c.key()

	total, err := c.client.IncrByFloat(ctx, key, units).Result()
	if err != nil {
		return fmt.Errorf("failed to increment quota counter: %w: %v", apperrors.ErrExternalService, err)
	}
	// First writer of the month sets the expiry.
	c.client.Expire(ctx, key, quotaKeyRetention)

	if total > c.budget {
		// Undo the reservation so a smaller request can still fit.
		if _, err := c.client.IncrByFloat(ctx, key, -units).Result(); err != nil {
			return fmt.Errorf("failed to roll back quota reservation: %w: %v", apperrors.ErrExternalService, err)
		}
		return fmt.Errorf("monthly satellite budget of %.1f units spent: %w", c.budget, apperrors.ErrQuotaExceeded)
	}

	return nil
}

func (c *redisQuotaCounter) Release(ctx context.Context, units float64) error {
	if _, err := c.client.IncrByFloat(ctx, c.key(), -units).Result(); err != nil {
		return fmt.Errorf("failed to release quota units: %w: %v", apperrors.ErrExternalService, err)
	}
	return nil
}

// ============================================================================
// In-process counter (single-instance fallback)
// ============================================================================

type memoryQuotaCounter struct {
	mu     sync.Mutex
	budget float64
	month  string
	used   float64
	now    func() time.Time
}

// NewMemoryQuotaCounter creates a process-local QuotaCounter. Used when Redis
// is not configured; only safe for single-instance deployments.
func NewMemoryQuotaCounter(monthlyBudget float64) QuotaCounter {
	return &memoryQuotaCounter{budget: monthlyBudget, now: time.Now}
}

var _ QuotaCounter = (*memoryQuotaCounter)(nil)

func (c *memoryQuotaCounter) Reserve(_ context.Context, units float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.rollMonth()
	if c.used+units > c.budget {
		return fmt.Errorf("monthly satellite budget of %.1f units spent: %w", c.budget, apperrors.ErrQuotaExceeded)
	}
	c.used += units
	return nil
}

func (c *memoryQuotaCounter) Release(_ context.Context, units float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.rollMonth()
	c.used -= units
	if c.used < 0 {
		c.used = 0
	}
	return nil
}

// rollMonth resets the counter when the calendar month changes. Callers hold
// the mutex.
func (c *memoryQuotaCounter) rollMonth() {
	month := c.now().UTC().Format("2006-01")
	if month != c.month {
		c.month = month
		c.used = 0
	}
}
