package assessment

import (
	"errors"
	"time"
)

var (
	// ErrExamNotStarted is returned when answering an exam that was never started.
	ErrExamNotStarted = errors.New("exam not started")
	// ErrExamFinished is returned when answering or starting an exam that has ended.
	ErrExamFinished = errors.New("exam already finished")
)

// ExamState is the lifecycle of a single exam run.
type ExamState int

const (
	NotStarted ExamState = iota
	InProgress
	TimedOut
	Completed
)

func (s ExamState) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case InProgress:
		return "in_progress"
	case TimedOut:
		return "timed_out"
	case Completed:
		return "completed"
	default:
		return "unknown"
	}
}

// Finished reports whether the exam can no longer accept answers.
func (s ExamState) Finished() bool {
	return s == TimedOut || s == Completed
}

// ExamItem is one question presented during an exam.
type ExamItem struct {
	ItemID   string
	TopicKey string
	Question Question
}

// ExamEntry records an answered exam item.
type ExamEntry struct {
	ItemID   string `json:"item_id"`
	TopicKey string `json:"topic_key"`
	Answer   string `json:"answer"`
	Result   Result `json:"result"`
}

// ExamResult summarizes a finished (or abandoned) exam. Items that were never
// reached are not part of the totals.
type ExamResult struct {
	State           ExamState   `json:"-"`
	Status          string      `json:"status"`
	Entries         []ExamEntry `json:"entries"`
	DurationSeconds int         `json:"duration_seconds"`
	TotalEarned     int         `json:"total_earned"`
	TotalPossible   int         `json:"total_possible"`
	Percent         float64     `json:"percent"`
	Passed          bool        `json:"passed"`
	Grade           Grade       `json:"grade"`
	Unreached       int         `json:"unreached"`
	Tally           Tally       `json:"tally"`
}

// Exam walks a fixed list of items under a time limit. The deadline is
// checked only on transitions (Current and Answer); an answer that arrives
// late is still scored before the exam moves to TimedOut.
type Exam struct {
	items     []ExamItem
	duration  time.Duration
	state     ExamState
	startedAt time.Time
	endedAt   time.Time
	next      int
	entries   []ExamEntry
	tally     Tally
}

// NewExam prepares an exam. A non-positive duration means no time limit.
func NewExam(items []ExamItem, duration time.Duration) *Exam {
	return &Exam{
		items:    append([]ExamItem(nil), items...),
		duration: duration,
	}
}

// Start moves the exam to InProgress. An exam without items completes at once.
func (e *Exam) Start(now time.Time) error {
	if e.state != NotStarted {
		if e.state.Finished() {
			return ErrExamFinished
		}
		return nil
	}
	e.startedAt = now
	e.state = InProgress
	if len(e.items) == 0 {
		e.finish(Completed, now)
	}
	return nil
}

// State returns the current lifecycle state without polling the deadline.
func (e *Exam) State() ExamState {
	return e.state
}

// Len returns the number of items in the exam.
func (e *Exam) Len() int {
	return len(e.items)
}

// Answered returns how many items have been answered.
func (e *Exam) Answered() int {
	return len(e.entries)
}

// Deadline returns the instant the exam times out. The boolean is false for
// untimed or unstarted exams.
func (e *Exam) Deadline() (time.Time, bool) {
	if e.duration <= 0 || e.state == NotStarted {
		return time.Time{}, false
	}
	return e.startedAt.Add(e.duration), true
}

// Remaining returns the time left before the deadline, never negative.
func (e *Exam) Remaining(now time.Time) time.Duration {
	deadline, ok := e.Deadline()
	if !ok {
		return 0
	}
	return max(deadline.Sub(now), 0)
}

// Current polls the deadline and returns the item awaiting an answer.
func (e *Exam) Current(now time.Time) (ExamItem, bool) {
	e.pollDeadline(now)
	if e.state != InProgress {
		return ExamItem{}, false
	}
	return e.items[e.next], true
}

// Answer scores the current item and advances. The deadline is polled after
// scoring, so a slow answer still counts.
func (e *Exam) Answer(now time.Time, answer string) (ExamEntry, error) {
	switch e.state {
	case NotStarted:
		return ExamEntry{}, ErrExamNotStarted
	case TimedOut, Completed:
		return ExamEntry{}, ErrExamFinished
	}

	item := e.items[e.next]
	entry := ExamEntry{
		ItemID:   item.ItemID,
		TopicKey: item.TopicKey,
		Answer:   answer,
		Result:   Score(item.Question, answer),
	}
	e.entries = append(e.entries, entry)
	e.tally.Add(entry.Result)
	e.next++

	e.pollDeadline(now)
	if e.state == InProgress && e.next >= len(e.items) {
		e.finish(Completed, now)
	}
	return entry, nil
}

// Stop ends the exam early at the learner's request. Answered items keep
// their scores; the rest are excluded.
func (e *Exam) Stop(now time.Time) {
	if e.state.Finished() {
		return
	}
	if e.state == NotStarted {
		e.startedAt = now
	}
	e.finish(Completed, now)
}

// Result summarizes the exam so far.
func (e *Exam) Result() ExamResult {
	entries := make([]ExamEntry, len(e.entries))
	copy(entries, e.entries)

	res := ExamResult{
		State:         e.state,
		Status:        e.state.String(),
		Entries:       entries,
		TotalEarned:   e.tally.TotalEarned,
		TotalPossible: e.tally.TotalPossible,
		Percent:       e.tally.Percent(),
		Passed:        e.tally.Passed(),
		Grade:         e.tally.Grade(),
		Unreached:     len(e.items) - len(e.entries),
		Tally:         e.tally,
	}
	if e.state.Finished() {
		res.DurationSeconds = int(e.endedAt.Sub(e.startedAt) / time.Second)
	}
	return res
}

func (e *Exam) pollDeadline(now time.Time) {
	if e.state != InProgress || e.duration <= 0 {
		return
	}
	if now.Sub(e.startedAt) > e.duration {
		e.finish(TimedOut, now)
	}
}

func (e *Exam) finish(state ExamState, now time.Time) {
	e.state = state
	e.endedAt = now
}
