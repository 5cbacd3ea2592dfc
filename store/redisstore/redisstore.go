// Package redisstore keeps the minimum payout threshold in Redis so several
// engine processes read one shared value.
package redisstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/warp/commission-engine/commission"
)

// ThresholdKey is the Redis key holding the threshold as a decimal string.
const ThresholdKey = "commission:min_payout_threshold"

// Eligibility implements commission.EligibilityConfig and
// commission.ThresholdSetter on a Redis string key.
type Eligibility struct {
	client *redis.Client
	key    string
}

// New connects to Redis and verifies the connection with PING.
func New(addr, password string, db int) (*Eligibility, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewWithClient(client), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *redis.Client) *Eligibility {
	return &Eligibility{client: client, key: ThresholdKey}
}

// MinPayoutThreshold returns ErrThresholdNotConfigured when the key is absent.
func (e *Eligibility) MinPayoutThreshold(ctx context.Context) (decimal.Decimal, error) {
	val, err := e.client.Get(ctx, e.key).Result()
	if errors.Is(err, redis.Nil) {
		return decimal.Zero, commission.ErrThresholdNotConfigured
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to read %s: %w", e.key, err)
	}

	d, err := decimal.NewFromString(val)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s %q: %w", e.key, val, err)
	}
	return d, nil
}

// SetMinPayoutThreshold stores amount without expiry.
func (e *Eligibility) SetMinPayoutThreshold(ctx context.Context, amount decimal.Decimal) error {
	if err := e.client.Set(ctx, e.key, amount.String(), 0).Err(); err != nil {
		return fmt.Errorf("failed to write %s: %w", e.key, err)
	}
	return nil
}

// Ping checks the Redis connection.
func (e *Eligibility) Ping(ctx context.Context) error {
	return e.client.Ping(ctx).Err()
}

func (e *Eligibility) Close() error {
	return e.client.Close()
}

var (
	_ commission.EligibilityConfig = (*Eligibility)(nil)
	_ commission.ThresholdSetter   = (*Eligibility)(nil)
)
