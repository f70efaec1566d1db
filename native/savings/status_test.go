package savings

import (
	"math/big"
	"testing"
)

func testPlan(daily, goal, current int64) *PlanConfig {
	return &PlanConfig{
		Enabled:           true,
		DailyAmount:       big.NewInt(daily),
		GoalAmount:        big.NewInt(goal),
		CurrentAmount:     big.NewInt(current),
		LastExecutionTime: 1_000_000,
		StartTime:         1_000_000,
	}
}

func TestComputeStatusDisabledPlan(t *testing.T) {
	plan := testPlan(100, 0, 0)
	plan.Enabled = false
	st := ComputeStatus(plan, plan.LastExecutionTime+3*oneDay)
	if st.Enabled || st.ShouldConsider || st.DaysPassed != 0 {
		t.Fatalf("disabled plan must not report elapsed days: %+v", st)
	}
}

func TestComputeStatusGoalReached(t *testing.T) {
	plan := testPlan(100, 250, 250)
	st := ComputeStatus(plan, plan.LastExecutionTime+3*oneDay)
	if !st.GoalReached {
		t.Fatalf("expected goal reached")
	}
	if st.DaysPassed != 0 {
		t.Fatalf("goal-reached plan must report zero days, got %d", st.DaysPassed)
	}
}

func TestComputeStatusDaysPassed(t *testing.T) {
	plan := testPlan(100, 0, 0)
	cases := []struct {
		elapsed int64
		want    uint64
	}{
		{0, 0},
		{oneDay - 1, 0},
		{oneDay, 1},
		{3*oneDay + 10, 3},
	}
	for _, tc := range cases {
		st := ComputeStatus(plan, plan.LastExecutionTime+tc.elapsed)
		if st.DaysPassed != tc.want {
			t.Fatalf("elapsed %d: got %d days, want %d", tc.elapsed, st.DaysPassed, tc.want)
		}
	}
}

func TestComputeStatusLazyDailyAmount(t *testing.T) {
	plan := testPlan(100, 0, 0)
	st := ComputeStatus(plan, plan.LastExecutionTime+oneDay/2)
	if st.DailyAmount.Sign() != 0 {
		t.Fatalf("daily amount must stay unread when no day elapsed, got %s", st.DailyAmount)
	}
	st = ComputeStatus(plan, plan.LastExecutionTime+oneDay)
	if st.DailyAmount.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("daily amount: got %s, want 100", st.DailyAmount)
	}
}

func TestComputeDueAmountCapsAtGoal(t *testing.T) {
	plan := testPlan(100, 250, 0)
	st := ComputeStatus(plan, plan.LastExecutionTime+3*oneDay)
	due := ComputeDueAmount(st, plan)
	if due.Cmp(big.NewInt(250)) != 0 {
		t.Fatalf("due: got %s, want capped 250", due)
	}
}

func TestComputeDueAmountNoGoal(t *testing.T) {
	plan := testPlan(100, 0, 0)
	st := ComputeStatus(plan, plan.LastExecutionTime+3*oneDay)
	due := ComputeDueAmount(st, plan)
	if due.Cmp(big.NewInt(300)) != 0 {
		t.Fatalf("due: got %s, want 300", due)
	}
}

func TestComputeDueAmountZeroDaily(t *testing.T) {
	plan := testPlan(0, 500, 0)
	st := ComputeStatus(plan, plan.LastExecutionTime+5*oneDay)
	if due := ComputeDueAmount(st, plan); due.Sign() != 0 {
		t.Fatalf("zero daily amount must owe nothing, got %s", due)
	}
}

func TestComputeDueAmountGoalHeadroom(t *testing.T) {
	plan := testPlan(100, 250, 0)
	st := ComputeStatus(plan, plan.LastExecutionTime+oneDay)

	plan.CurrentAmount = big.NewInt(240)
	if due := ComputeDueAmount(st, plan); due.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("due: got %s, want remaining 10", due)
	}

	// Progress past the goal (e.g. goal lowered after the fact): headroom
	// floors at zero rather than going negative.
	plan.CurrentAmount = big.NewInt(300)
	if due := ComputeDueAmount(st, plan); due.Sign() != 0 {
		t.Fatalf("due past goal must be zero, got %s", due)
	}
}

func TestPenaltyFloorArithmetic(t *testing.T) {
	cases := []struct {
		amount int64
		bps    uint32
		want   int64
	}{
		{100, 500, 5},
		{100, 0, 0},
		{99, 500, 4}, // floor(99*500/10000) = floor(4.95)
		{1, 3000, 0},
		{10_000, 3000, 3000},
	}
	for _, tc := range cases {
		got := penaltyFor(big.NewInt(tc.amount), tc.bps)
		if got.Cmp(big.NewInt(tc.want)) != 0 {
			t.Fatalf("penalty(%d, %d): got %s, want %d", tc.amount, tc.bps, got, tc.want)
		}
	}
}
