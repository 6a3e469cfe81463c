package session

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

var today = time.Date(2024, 6, 12, 15, 30, 0, 0, time.UTC)

func TestRollDay(t *testing.T) {
	tests := []struct {
		name       string
		lastActive string
		streak     int
		completed  int
		wantStreak int
		wantToday  int
	}{
		{"same day", "2024-06-12", 4, 7, 4, 7},
		{"consecutive day", "2024-06-11", 4, 7, 5, 0},
		{"three days ago", "2024-06-09", 4, 7, 1, 0},
		{"first run", "", 0, 0, 1, 0},
		{"clock moved backwards", "2024-06-14", 4, 7, 4, 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracker := NewTracker(State{
				CurrentStreakDays:   tt.streak,
				LastActiveDate:      tt.lastActive,
				TodayCompletedCount: tt.completed,
				DailyGoal:           10,
			})
			tracker.RollDay(today)

			st := tracker.State()
			assert.Equal(t, tt.wantStreak, st.CurrentStreakDays)
			assert.Equal(t, tt.wantToday, st.TodayCompletedCount)
		})
	}
}

func TestRollDay_SetsLastActiveDate(t *testing.T) {
	tracker := NewTracker(State{LastActiveDate: "2024-06-01", CurrentStreakDays: 3})
	tracker.RollDay(today)
	assert.Equal(t, "2024-06-12", tracker.State().LastActiveDate)

	backwards := NewTracker(State{LastActiveDate: "2024-07-01", CurrentStreakDays: 3})
	backwards.RollDay(today)
	assert.Equal(t, "2024-07-01", backwards.State().LastActiveDate)
}

func TestRollDay_UsesLocalCalendarDay(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*60*60)
	// 23:30 UTC on the 12th is already the 13th in Tokyo.
	now := time.Date(2024, 6, 12, 23, 30, 0, 0, time.UTC).In(tokyo)

	tracker := NewTracker(State{LastActiveDate: "2024-06-12", CurrentStreakDays: 2})
	tracker.RollDay(now)
	assert.Equal(t, 3, tracker.State().CurrentStreakDays)
	assert.Equal(t, "2024-06-13", tracker.State().LastActiveDate)
}

func TestRollDay_Idempotent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("rolling twice on the same day equals rolling once", prop.ForAll(
		func(daysAgo, streak, completed, minutes int) bool {
			state := State{
				CurrentStreakDays:   streak,
				LastActiveDate:      today.AddDate(0, 0, -daysAgo).Format(DateLayout),
				TodayCompletedCount: completed,
				DailyGoal:           5,
			}
			once := NewTracker(state)
			once.RollDay(today)

			twice := NewTracker(state)
			twice.RollDay(today)
			twice.RollDay(today.Add(time.Duration(minutes) * time.Minute))

			return once.State() == twice.State()
		},
		gen.IntRange(-3, 400),
		gen.IntRange(0, 100),
		gen.IntRange(0, 50),
		gen.IntRange(0, 8*60),
	))

	properties.TestingRun(t)
}

func TestRecordCompleted(t *testing.T) {
	tracker := NewTracker(State{DailyGoal: 4, TodayCompletedCount: 1, LastActiveDate: "2024-06-12"})

	tracker.RecordCompleted(2)
	tracker.RecordCompleted(0)
	tracker.RecordCompleted(-5)
	assert.Equal(t, 3, tracker.State().TodayCompletedCount)
	assert.Equal(t, 2, tracker.SessionCompleted())
	assert.False(t, tracker.GoalMet())
	assert.InDelta(t, 0.75, tracker.GoalProgress(), 1e-9)

	tracker.RecordCompleted(3)
	assert.True(t, tracker.GoalMet())
	assert.Equal(t, 1.0, tracker.GoalProgress())

	// A new day resets today but not the session counter.
	tracker.RollDay(today.AddDate(0, 0, 1))
	assert.Equal(t, 0, tracker.State().TodayCompletedCount)
	assert.Equal(t, 5, tracker.SessionCompleted())
}

func TestAccrueStudyTime(t *testing.T) {
	tracker := NewTracker(DefaultState())
	tracker.AccrueStudyTime(90)
	tracker.AccrueStudyTime(-30)
	tracker.AccrueStudyTime(30)
	assert.Equal(t, int64(120), tracker.State().TotalStudySeconds)
}

func TestNewTracker_Normalizes(t *testing.T) {
	tracker := NewTracker(State{
		CurrentStreakDays:   -2,
		LastActiveDate:      "yesterday",
		TodayCompletedCount: -1,
		DailyGoal:           0,
		TotalStudySeconds:   -10,
	})
	assert.Equal(t, State{DailyGoal: DefaultDailyGoal}, tracker.State())

	tracker.SetDailyGoal(0)
	assert.Equal(t, DefaultDailyGoal, tracker.State().DailyGoal)
	tracker.SetDailyGoal(5)
	assert.Equal(t, 5, tracker.State().DailyGoal)
}

func TestDaysBetween(t *testing.T) {
	a := time.Date(2024, 2, 28, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, 1, DaysBetween(a, time.Date(2024, 2, 29, 0, 1, 0, 0, time.UTC)))
	assert.Equal(t, 2, DaysBetween(a, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, -1, DaysBetween(a, time.Date(2024, 2, 27, 12, 0, 0, 0, time.UTC)))
	assert.Equal(t, 0, DaysBetween(a, a))
}
