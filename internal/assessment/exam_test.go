package assessment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var examStart = time.Date(2024, 5, 10, 14, 0, 0, 0, time.UTC)

func sampleExamItems() []ExamItem {
	return []ExamItem{
		{ItemID: "tf-1", TopicKey: "science/water", Question: NewTrueFalse(true, 2)},
		{ItemID: "tf-2", TopicKey: "science/water", Question: NewTrueFalse(false, 2)},
		{ItemID: "fill-1", TopicKey: "science/elements", Question: FillInQuestion{Accepted: []string{"H", "O", "C"}, Value: 6}},
	}
}

func TestExam_CompletedScenario(t *testing.T) {
	exam := NewExam(sampleExamItems(), 30*time.Minute)
	assert.Equal(t, NotStarted, exam.State())

	require.NoError(t, exam.Start(examStart))
	assert.Equal(t, InProgress, exam.State())

	now := examStart
	answers := []string{"true", "false", "h, o"}
	for _, answer := range answers {
		item, ok := exam.Current(now)
		require.True(t, ok)
		entry, err := exam.Answer(now, answer)
		require.NoError(t, err)
		assert.Equal(t, item.ItemID, entry.ItemID)
		now = now.Add(time.Minute)
	}

	assert.Equal(t, Completed, exam.State())
	res := exam.Result()
	assert.Equal(t, 8, res.TotalEarned)
	assert.Equal(t, 10, res.TotalPossible)
	assert.InDelta(t, 80.0, res.Percent, 0.001)
	assert.True(t, res.Passed)
	assert.Equal(t, "B", res.Grade.Letter)
	assert.Equal(t, 0, res.Unreached)
	assert.Equal(t, "completed", res.Status)
	assert.Equal(t, 120, res.DurationSeconds)
	assert.Len(t, res.Entries, 3)

	_, ok := exam.Current(now)
	assert.False(t, ok)
	_, err := exam.Answer(now, "true")
	assert.ErrorIs(t, err, ErrExamFinished)
}

func TestExam_TimesOutAndExcludesUnreachedItems(t *testing.T) {
	exam := NewExam(sampleExamItems(), 10*time.Minute)
	require.NoError(t, exam.Start(examStart))

	// The first answer arrives long after the deadline but is still scored.
	late := examStart.Add(15 * time.Minute)
	entry, err := exam.Answer(late, "true")
	require.NoError(t, err)
	assert.True(t, entry.Result.Correct)
	assert.Equal(t, TimedOut, exam.State())

	_, ok := exam.Current(late)
	assert.False(t, ok)

	res := exam.Result()
	assert.Equal(t, 2, res.TotalEarned)
	assert.Equal(t, 2, res.TotalPossible, "unreached items are not possible points")
	assert.Equal(t, 2, res.Unreached)
	assert.True(t, res.Passed)
	assert.Equal(t, "timed_out", res.Status)
}

func TestExam_LateFinalAnswerTimesOut(t *testing.T) {
	exam := NewExam(sampleExamItems()[:2], time.Minute)
	require.NoError(t, exam.Start(examStart))

	_, err := exam.Answer(examStart, "true")
	require.NoError(t, err)
	assert.Equal(t, InProgress, exam.State())

	entry, err := exam.Answer(examStart.Add(time.Hour), "false")
	require.NoError(t, err)
	assert.True(t, entry.Result.Correct)
	assert.Equal(t, TimedOut, exam.State())

	res := exam.Result()
	assert.Equal(t, "timed_out", res.Status)
	assert.Equal(t, 4, res.TotalEarned)
	assert.Equal(t, 0, res.Unreached)
	assert.Equal(t, 3600, res.DurationSeconds)
}

func TestExam_DeadlinePolledOnCurrent(t *testing.T) {
	exam := NewExam(sampleExamItems(), 10*time.Minute)
	require.NoError(t, exam.Start(examStart))

	_, ok := exam.Current(examStart.Add(10 * time.Minute))
	assert.True(t, ok, "exactly at the deadline is still in time")

	_, ok = exam.Current(examStart.Add(10*time.Minute + time.Second))
	assert.False(t, ok)
	assert.Equal(t, TimedOut, exam.State())

	res := exam.Result()
	assert.Equal(t, 0, res.TotalPossible)
	assert.False(t, res.Passed)
	assert.Equal(t, "F", res.Grade.Letter)
}

func TestExam_UnansweredStillCountsAsPresented(t *testing.T) {
	exam := NewExam(sampleExamItems()[:2], 0)
	require.NoError(t, exam.Start(examStart))

	_, err := exam.Answer(examStart, "")
	require.NoError(t, err)
	_, err = exam.Answer(examStart.Add(48*time.Hour), "false")
	require.NoError(t, err)

	res := exam.Result()
	assert.Equal(t, Completed, res.State, "untimed exams never time out")
	assert.Equal(t, 4, res.TotalPossible)
	assert.Equal(t, 2, res.TotalEarned)
	assert.Equal(t, 1, res.Tally.Unanswered)
}

func TestExam_Stop(t *testing.T) {
	exam := NewExam(sampleExamItems(), time.Hour)
	require.NoError(t, exam.Start(examStart))
	_, err := exam.Answer(examStart, "true")
	require.NoError(t, err)

	exam.Stop(examStart.Add(time.Minute))
	assert.Equal(t, Completed, exam.State())

	res := exam.Result()
	assert.Equal(t, 2, res.TotalPossible)
	assert.Equal(t, 2, res.Unreached)
	assert.Equal(t, 60, res.DurationSeconds)

	assert.ErrorIs(t, exam.Start(examStart), ErrExamFinished)
}

func TestExam_NotStarted(t *testing.T) {
	exam := NewExam(sampleExamItems(), time.Hour)

	_, err := exam.Answer(examStart, "true")
	assert.ErrorIs(t, err, ErrExamNotStarted)
	_, ok := exam.Deadline()
	assert.False(t, ok)

	require.NoError(t, exam.Start(examStart))
	deadline, ok := exam.Deadline()
	require.True(t, ok)
	assert.True(t, deadline.Equal(examStart.Add(time.Hour)))
	assert.Equal(t, 20*time.Minute, exam.Remaining(examStart.Add(40*time.Minute)))
	assert.Equal(t, time.Duration(0), exam.Remaining(examStart.Add(2*time.Hour)))
}

func TestExam_EmptyCompletesImmediately(t *testing.T) {
	exam := NewExam(nil, time.Hour)
	require.NoError(t, exam.Start(examStart))
	assert.Equal(t, Completed, exam.State())
	assert.False(t, exam.Result().Passed)
}
