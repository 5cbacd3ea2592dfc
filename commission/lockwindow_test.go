package commission_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/warp/commission-engine/commission"
)

var windowStart = time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)

func daysAfter(d float64) time.Time {
	return windowStart.Add(time.Duration(d * float64(24*time.Hour)))
}

func TestEvaluate_States(t *testing.T) {
	tests := []struct {
		name      string
		now       time.Time
		settled   bool
		remaining int
		state     commission.WindowState
	}{
		{"just started", daysAfter(0), false, 20, commission.WindowLocked},
		{"half a day left rounds up", daysAfter(19.5), false, 1, commission.WindowLocked},
		{"exactly due", daysAfter(20), false, 0, commission.WindowReady},
		{"six days late", daysAfter(26.5), false, -6, commission.WindowReady},
		{"seven days late", daysAfter(27), false, -7, commission.WindowOverdue},
		{"long overdue", daysAfter(60), false, -40, commission.WindowOverdue},
		{"settled while locked", daysAfter(3), true, 17, commission.WindowSettled},
		{"settled past overdue", daysAfter(40), true, -20, commission.WindowSettled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ws := commission.Evaluate(windowStart, tt.now, tt.settled)
			assert.Equal(t, tt.remaining, ws.DaysRemaining)
			assert.Equal(t, tt.state, ws.State)
			assert.Equal(t, windowStart.Add(20*24*time.Hour), ws.DueDate)
		})
	}
}

func TestEvaluate_DaysRemainingDecreasesAndCrossesZeroAtDueDate(t *testing.T) {
	prev := commission.Evaluate(windowStart, windowStart, false).DaysRemaining
	for d := 1; d <= 30; d++ {
		cur := commission.Evaluate(windowStart, daysAfter(float64(d)), false).DaysRemaining
		assert.Less(t, cur, prev, "day %d", d)
		prev = cur
	}

	due := commission.DueDate(windowStart)
	assert.Equal(t, 1, commission.Evaluate(windowStart, due.Add(-time.Second), false).DaysRemaining)
	assert.Equal(t, 0, commission.Evaluate(windowStart, due, false).DaysRemaining)
}

func TestRewardAgeWindow_UsesCreatedAt(t *testing.T) {
	r := commission.Reward{CreatedAt: windowStart, Status: commission.RewardPending}

	ws := commission.RewardAgeWindow(r, daysAfter(21))

	assert.True(t, ws.Eligible())
	assert.Equal(t, -1, ws.DaysRemaining)

	r.Status = commission.RewardPaid
	assert.Equal(t, commission.WindowSettled, commission.RewardAgeWindow(r, daysAfter(21)).State)
}

func TestCasePaymentWindow_RequiresCountdown(t *testing.T) {
	_, ok := commission.CasePaymentWindow(commission.Case{}, windowStart, false)
	assert.False(t, ok)

	started := windowStart
	ws, ok := commission.CasePaymentWindow(commission.Case{PaidCountdownStartedAt: &started}, daysAfter(5), false)
	assert.True(t, ok)
	assert.Equal(t, 15, ws.DaysRemaining)
	assert.Equal(t, commission.WindowLocked, ws.State)
}
