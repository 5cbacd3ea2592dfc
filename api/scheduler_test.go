package api

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/commission-engine/commission"
)

func TestScheduler_EmptyScheduleNeverStarts(t *testing.T) {
	s := newTestServer(t, 0)
	rs := NewReconciliationScheduler(s.handler.Engine, "")

	require.NoError(t, rs.Start())

	assert.False(t, rs.Running())
	assert.True(t, rs.GetNextRunTime().IsZero())
	rs.Stop()
}

func TestScheduler_InvalidScheduleFails(t *testing.T) {
	s := newTestServer(t, 0)
	rs := NewReconciliationScheduler(s.handler.Engine, "every tuesday")

	assert.Error(t, rs.Start())
	assert.False(t, rs.Running())
}

func TestScheduler_StartReportsNextRunAndStops(t *testing.T) {
	s := newTestServer(t, 0)
	rs := NewReconciliationScheduler(s.handler.Engine, "@every 1h")

	require.NoError(t, rs.Start())
	defer rs.Stop()

	assert.True(t, rs.Running())
	next := rs.GetNextRunTime()
	assert.WithinDuration(t, time.Now().Add(time.Hour), next, time.Minute)
	assert.Error(t, rs.Start(), "second start must fail")

	rs.Stop()
	assert.False(t, rs.Running())
}

func TestScheduler_RunNowRecordsLastRun(t *testing.T) {
	// GIVEN: An orphaned approved reward
	s := newTestServer(t, 0)
	now := s.clock.Now()
	require.NoError(t, s.store.CreateReward(context.Background(), commission.Reward{
		ID: "orphan", PayeeID: "agent-1", Amount: commission.NewMoney(15),
		Status: commission.RewardApproved, CreatedAt: now, UpdatedAt: now, PayoutRequestedAt: &now,
	}))
	rs := NewReconciliationScheduler(s.handler.Engine, "")
	s.handler.Scheduler = rs

	// WHEN: Triggered through the admin endpoint
	rec := s.do(t, "POST", "/api/admin/reconcile", nil)
	require.Equal(t, 200, rec.Code, rec.Body.String())

	// THEN: The run is remembered and audited under the requesting admin
	last, err := rs.LastRun()
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, []commission.RewardID{"orphan"}, last.Reverted)

	rec = s.do(t, "GET", "/api/admin/scheduler", nil)
	status := decode[SchedulerStatusDTO](t, rec)
	assert.False(t, status.Enabled)
	require.NotNil(t, status.LastRun)
	assert.Equal(t, []string{"orphan"}, status.LastRun.Reverted)

	entries, err := s.handler.Engine.AuditTrail(context.Background(), commission.AuditFilter{
		Actions: []commission.AuditAction{commission.AuditRewardReconciled},
	})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "ops-1", entries[0].ActorID)
}

func TestScheduler_RunNowActorFallsBackToScheduler(t *testing.T) {
	// GIVEN: An orphaned approved reward
	s := newTestServer(t, 0)
	now := s.clock.Now()
	require.NoError(t, s.store.CreateReward(context.Background(), commission.Reward{
		ID: "orphan", PayeeID: "agent-1", Amount: commission.NewMoney(15),
		Status: commission.RewardApproved, CreatedAt: now, UpdatedAt: now, PayoutRequestedAt: &now,
	}))
	rs := NewReconciliationScheduler(s.handler.Engine, "")

	// WHEN: A run is triggered without an actor, as the cron job does
	_, err := rs.RunNow(context.Background(), "")
	require.NoError(t, err)

	// THEN: The audit entry names the scheduler
	entries, err := s.handler.Engine.AuditTrail(context.Background(), commission.AuditFilter{
		Actions: []commission.AuditAction{commission.AuditRewardReconciled},
	})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "scheduler", entries[0].ActorID)
}
