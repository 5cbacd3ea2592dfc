package redisstore_test

import (
	"context"
	"os"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/commission-engine/commission"
	"github.com/warp/commission-engine/store/redisstore"
)

// newEligibility connects to REDIS_ADDR and skips when it is unset.
func newEligibility(t *testing.T) (*redisstore.Eligibility, *redis.Client) {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}

	client := redis.NewClient(&redis.Options{Addr: addr, DB: 15})
	require.NoError(t, client.Ping(context.Background()).Err())
	require.NoError(t, client.Del(context.Background(), redisstore.ThresholdKey).Err())
	t.Cleanup(func() {
		client.Del(context.Background(), redisstore.ThresholdKey)
		client.Close()
	})
	return redisstore.NewWithClient(client), client
}

func TestEligibility_MissingKeyIsNotConfigured(t *testing.T) {
	e, _ := newEligibility(t)

	_, err := e.MinPayoutThreshold(context.Background())

	assert.ErrorIs(t, err, commission.ErrThresholdNotConfigured)
}

func TestEligibility_SetThenRead(t *testing.T) {
	e, client := newEligibility(t)
	ctx := context.Background()

	require.NoError(t, e.SetMinPayoutThreshold(ctx, commission.MustParseMoney("275.50")))

	got, err := e.MinPayoutThreshold(ctx)
	require.NoError(t, err)
	assert.True(t, got.Equal(commission.MustParseMoney("275.5")))

	raw, err := client.Get(ctx, redisstore.ThresholdKey).Result()
	require.NoError(t, err)
	assert.Equal(t, "275.5", raw)
}

func TestEligibility_GarbageValueIsAnError(t *testing.T) {
	e, client := newEligibility(t)
	ctx := context.Background()
	require.NoError(t, client.Set(ctx, redisstore.ThresholdKey, "lots", 0).Err())

	_, err := e.MinPayoutThreshold(ctx)

	require.Error(t, err)
	assert.NotErrorIs(t, err, commission.ErrThresholdNotConfigured)
}
