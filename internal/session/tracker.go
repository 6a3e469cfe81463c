// Package session keeps the learner's day streak, daily goal progress and
// total study time.
package session

import (
	"time"
)

const (
	// DateLayout is the format of State.LastActiveDate.
	DateLayout = "2006-01-02"
	// DefaultDailyGoal is used when the persisted goal is missing or invalid.
	DefaultDailyGoal = 20
)

// State is the persisted part of a tracker.
type State struct {
	CurrentStreakDays   int    `json:"current_streak_days"`
	LastActiveDate      string `json:"last_active_date"`
	TodayCompletedCount int    `json:"today_completed_count"`
	DailyGoal           int    `json:"daily_goal"`
	TotalStudySeconds   int64  `json:"total_study_seconds"`
}

// DefaultState is the state of a learner who has never studied.
func DefaultState() State {
	return State{DailyGoal: DefaultDailyGoal}
}

// Tracker owns the session state for one run of the program.
type Tracker struct {
	state     State
	completed int
}

// NewTracker starts a tracker from persisted state, repairing values that
// would break its invariants.
func NewTracker(state State) *Tracker {
	if state.DailyGoal < 1 {
		state.DailyGoal = DefaultDailyGoal
	}
	state.CurrentStreakDays = max(state.CurrentStreakDays, 0)
	state.TodayCompletedCount = max(state.TodayCompletedCount, 0)
	state.TotalStudySeconds = max(state.TotalStudySeconds, 0)
	if _, err := time.Parse(DateLayout, state.LastActiveDate); err != nil {
		state.LastActiveDate = ""
	}
	return &Tracker{state: state}
}

// State returns a copy of the persisted fields.
func (t *Tracker) State() State {
	return t.state
}

// RollDay advances the streak to the calendar day of now. Calling it more
// than once on the same day has no further effect. A clock that went
// backwards is ignored.
func (t *Tracker) RollDay(now time.Time) {
	today := now.Format(DateLayout)
	last, err := time.Parse(DateLayout, t.state.LastActiveDate)
	if err != nil {
		t.state.CurrentStreakDays = 1
		t.state.TodayCompletedCount = 0
		t.state.LastActiveDate = today
		return
	}

	switch days := DaysBetween(last, now); {
	case days < 0:
		return
	case days == 0:
	case days == 1:
		t.state.CurrentStreakDays++
		t.state.TodayCompletedCount = 0
	default:
		t.state.CurrentStreakDays = 1
		t.state.TodayCompletedCount = 0
	}
	t.state.LastActiveDate = today
}

// RecordCompleted counts n finished items towards today and this session.
func (t *Tracker) RecordCompleted(n int) {
	if n <= 0 {
		return
	}
	t.state.TodayCompletedCount += n
	t.completed += n
}

// AccrueStudyTime adds seconds to the total study time.
func (t *Tracker) AccrueStudyTime(seconds int64) {
	if seconds <= 0 {
		return
	}
	t.state.TotalStudySeconds += seconds
}

// SetDailyGoal changes the goal; values below one are ignored.
func (t *Tracker) SetDailyGoal(goal int) {
	if goal >= 1 {
		t.state.DailyGoal = goal
	}
}

// GoalMet reports whether today's count reached the daily goal.
func (t *Tracker) GoalMet() bool {
	return t.state.TodayCompletedCount >= t.state.DailyGoal
}

// GoalProgress returns today's count as a fraction of the goal, at most 1.
func (t *Tracker) GoalProgress() float64 {
	return min(float64(t.state.TodayCompletedCount)/float64(t.state.DailyGoal), 1)
}

// SessionCompleted returns the number of items finished since the tracker
// was created.
func (t *Tracker) SessionCompleted() int {
	return t.completed
}

// DaysBetween returns the number of calendar days from the date of a to the
// date of b, each read in its own location.
func DaysBetween(a, b time.Time) int {
	da := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	db := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(db.Sub(da).Hours() / 24)
}
