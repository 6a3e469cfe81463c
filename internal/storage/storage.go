// Package storage keeps the learner's progress between runs, either in a JSON
// file or in a SQLite database.
package storage

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/danieldreier/mcp-studycoach/internal/assessment"
	"github.com/danieldreier/mcp-studycoach/internal/progress"
	"github.com/danieldreier/mcp-studycoach/internal/scheduling"
	"github.com/danieldreier/mcp-studycoach/internal/session"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Review is one entry of the review log.
type Review struct {
	ID           string          `json:"id"`
	ItemID       string          `json:"item_id"`
	Rating       progress.Rating `json:"rating"` // Again=1, Hard=2, Good=3, Easy=4
	Answer       string          `json:"answer,omitempty"`
	IntervalDays int             `json:"interval_days"`
	Timestamp    time.Time       `json:"timestamp"`
}

// NewReview creates a review log entry with a fresh ID.
func NewReview(itemID string, rating progress.Rating, answer string, rec progress.ReviewRecord, at time.Time) Review {
	return Review{
		ID:           uuid.New().String(),
		ItemID:       itemID,
		Rating:       rating,
		Answer:       answer,
		IntervalDays: rec.IntervalDays,
		Timestamp:    at,
	}
}

// ExamSummary is the persisted outcome of one exam run.
type ExamSummary struct {
	ID              string    `json:"id"`
	StartedAt       time.Time `json:"started_at"`
	Status          string    `json:"status"`
	DurationSeconds int       `json:"duration_seconds"`
	TotalEarned     int       `json:"total_earned"`
	TotalPossible   int       `json:"total_possible"`
	Percent         float64   `json:"percent"`
	Passed          bool      `json:"passed"`
	Grade           string    `json:"grade"`
	Answered        int       `json:"answered"`
	Unreached       int       `json:"unreached"`
}

// NewExamSummary condenses an exam result for the history log.
func NewExamSummary(res assessment.ExamResult, startedAt time.Time) ExamSummary {
	return ExamSummary{
		ID:              uuid.New().String(),
		StartedAt:       startedAt,
		Status:          res.Status,
		DurationSeconds: res.DurationSeconds,
		TotalEarned:     res.TotalEarned,
		TotalPossible:   res.TotalPossible,
		Percent:         res.Percent,
		Passed:          res.Passed,
		Grade:           res.Grade.Letter,
		Answered:        len(res.Entries),
		Unreached:       res.Unreached,
	}
}

// Snapshot is everything the study engine persists between runs.
type Snapshot struct {
	Records     map[string]progress.ReviewRecord `json:"records"`
	Mastered    []string                         `json:"mastered"`
	Topics      map[string]scheduling.TopicStat  `json:"topics"`
	Session     session.State                    `json:"session"`
	Reviews     []Review                         `json:"reviews"`
	Exams       []ExamSummary                    `json:"exams"`
	LastUpdated time.Time                        `json:"last_updated"`
}

// EmptySnapshot is the state of a learner who has never studied.
func EmptySnapshot() Snapshot {
	return Snapshot{
		Records:  make(map[string]progress.ReviewRecord),
		Mastered: []string{},
		Topics:   make(map[string]scheduling.TopicStat),
		Session:  session.DefaultState(),
		Reviews:  []Review{},
		Exams:    []ExamSummary{},
	}
}

// Progress returns the part of the snapshot owned by progress.Store.
func (s Snapshot) Progress() progress.Snapshot {
	return progress.Snapshot{Records: s.Records, Mastered: s.Mastered}
}

var (
	// ErrUnknownDriver is returned by Open for an unsupported storage driver.
	ErrUnknownDriver = errors.New("unknown storage driver")
	// ErrClosed is returned when using a storage after Close.
	ErrClosed = errors.New("storage closed")
)

// Storage persists snapshots. Implementations keep the current snapshot in
// memory; Load and Save move it to and from the backing store.
type Storage interface {
	Load() error
	Save() error
	Snapshot() Snapshot
	Replace(snap Snapshot)

	AddReview(review Review) error
	ListReviews(itemID string) []Review
	AddExamResult(summary ExamSummary) error
	ListExamResults() []ExamSummary

	Close() error
}

// Driver names accepted by Open.
const (
	DriverJSON   = "json"
	DriverSQLite = "sqlite"
)

// Open creates the storage selected by driver. The data is not loaded.
func Open(driver, path string, logger *zap.Logger) (Storage, error) {
	switch driver {
	case DriverJSON, "file", "":
		return NewFileStorage(path, logger), nil
	case DriverSQLite:
		return NewSQLStorage(path, logger)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
}

// memoryState is the in-memory half shared by every backend.
type memoryState struct {
	mu   sync.RWMutex
	snap Snapshot
}

// Snapshot returns a deep copy of the current state.
func (m *memoryState) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return cloneSnapshot(m.snap)
}

// Replace swaps in a copy of snap.
func (m *memoryState) Replace(snap Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap = normalizeSnapshot(cloneSnapshot(snap))
}

func (m *memoryState) AddReview(review Review) error {
	if review.ItemID == "" {
		return errors.New("review has no item id")
	}
	if review.ID == "" {
		review.ID = uuid.New().String()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap.Reviews = append(m.snap.Reviews, review)
	return nil
}

// ListReviews returns the reviews of itemID in log order, or every review
// when itemID is empty.
func (m *memoryState) ListReviews(itemID string) []Review {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []Review{}
	for _, r := range m.snap.Reviews {
		if itemID == "" || r.ItemID == itemID {
			out = append(out, r)
		}
	}
	return out
}

func (m *memoryState) AddExamResult(summary ExamSummary) error {
	if summary.ID == "" {
		summary.ID = uuid.New().String()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap.Exams = append(m.snap.Exams, summary)
	return nil
}

// ListExamResults returns the exam history, oldest first.
func (m *memoryState) ListExamResults() []ExamSummary {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ExamSummary, len(m.snap.Exams))
	copy(out, m.snap.Exams)
	return out
}

func cloneSnapshot(s Snapshot) Snapshot {
	out := Snapshot{
		Records:     make(map[string]progress.ReviewRecord, len(s.Records)),
		Mastered:    append([]string{}, s.Mastered...),
		Topics:      make(map[string]scheduling.TopicStat, len(s.Topics)),
		Session:     s.Session,
		Reviews:     append([]Review{}, s.Reviews...),
		Exams:       append([]ExamSummary{}, s.Exams...),
		LastUpdated: s.LastUpdated,
	}
	for id, rec := range s.Records {
		if rec.LastReviewedAt != nil {
			t := *rec.LastReviewedAt
			rec.LastReviewedAt = &t
		}
		out.Records[id] = rec
	}
	for k, v := range s.Topics {
		out.Topics[k] = v
	}
	return out
}

// normalizeSnapshot fills nil collections (older files, empty tables) and
// orders the mastered set.
func normalizeSnapshot(s Snapshot) Snapshot {
	if s.Records == nil {
		s.Records = make(map[string]progress.ReviewRecord)
	}
	if s.Mastered == nil {
		s.Mastered = []string{}
	}
	sort.Strings(s.Mastered)
	if s.Topics == nil {
		s.Topics = make(map[string]scheduling.TopicStat)
	}
	if s.Reviews == nil {
		s.Reviews = []Review{}
	}
	if s.Exams == nil {
		s.Exams = []ExamSummary{}
	}
	if s.Session.DailyGoal < 1 {
		s.Session.DailyGoal = session.DefaultDailyGoal
	}
	return s
}
