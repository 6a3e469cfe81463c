package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/danieldreier/mcp-studycoach/internal/progress"
	"github.com/danieldreier/mcp-studycoach/internal/scheduling"
	"github.com/danieldreier/mcp-studycoach/internal/session"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	// Pure Go SQLite driver, registered as "sqlite".
	_ "modernc.org/sqlite"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS records (
		item_id TEXT PRIMARY KEY,
		times_correct INTEGER NOT NULL DEFAULT 0,
		times_seen INTEGER NOT NULL DEFAULT 0,
		interval_days INTEGER NOT NULL DEFAULT 1,
		last_reviewed_at INTEGER
	)`,
	`CREATE TABLE IF NOT EXISTS mastered (
		item_id TEXT PRIMARY KEY
	)`,
	`CREATE TABLE IF NOT EXISTS topics (
		topic_key TEXT PRIMARY KEY,
		correct INTEGER NOT NULL DEFAULT 0,
		attempts INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS session_state (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		current_streak_days INTEGER NOT NULL DEFAULT 0,
		last_active_date TEXT NOT NULL DEFAULT '',
		today_completed_count INTEGER NOT NULL DEFAULT 0,
		daily_goal INTEGER NOT NULL DEFAULT 20,
		total_study_seconds INTEGER NOT NULL DEFAULT 0,
		last_updated INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS reviews (
		seq INTEGER PRIMARY KEY,
		id TEXT NOT NULL UNIQUE,
		item_id TEXT NOT NULL,
		rating INTEGER NOT NULL,
		answer TEXT NOT NULL DEFAULT '',
		interval_days INTEGER NOT NULL,
		reviewed_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_reviews_item ON reviews(item_id)`,
	`CREATE TABLE IF NOT EXISTS exams (
		seq INTEGER PRIMARY KEY,
		id TEXT NOT NULL UNIQUE,
		started_at INTEGER NOT NULL,
		status TEXT NOT NULL,
		duration_seconds INTEGER NOT NULL,
		total_earned INTEGER NOT NULL,
		total_possible INTEGER NOT NULL,
		percent REAL NOT NULL,
		passed INTEGER NOT NULL,
		grade TEXT NOT NULL,
		answered INTEGER NOT NULL,
		unreached INTEGER NOT NULL
	)`,
}

// Row types mirror the tables. Timestamps are stored as Unix nanoseconds.

type recordRow struct {
	ItemID         string        `db:"item_id"`
	TimesCorrect   int           `db:"times_correct"`
	TimesSeen      int           `db:"times_seen"`
	IntervalDays   int           `db:"interval_days"`
	LastReviewedAt sql.NullInt64 `db:"last_reviewed_at"`
}

type topicRow struct {
	TopicKey string `db:"topic_key"`
	Correct  int    `db:"correct"`
	Attempts int    `db:"attempts"`
}

type sessionRow struct {
	ID                  int    `db:"id"`
	CurrentStreakDays   int    `db:"current_streak_days"`
	LastActiveDate      string `db:"last_active_date"`
	TodayCompletedCount int    `db:"today_completed_count"`
	DailyGoal           int    `db:"daily_goal"`
	TotalStudySeconds   int64  `db:"total_study_seconds"`
	LastUpdated         int64  `db:"last_updated"`
}

type reviewRow struct {
	Seq          int    `db:"seq"`
	ID           string `db:"id"`
	ItemID       string `db:"item_id"`
	Rating       int    `db:"rating"`
	Answer       string `db:"answer"`
	IntervalDays int    `db:"interval_days"`
	ReviewedAt   int64  `db:"reviewed_at"`
}

type examRow struct {
	Seq             int     `db:"seq"`
	ID              string  `db:"id"`
	StartedAt       int64   `db:"started_at"`
	Status          string  `db:"status"`
	DurationSeconds int     `db:"duration_seconds"`
	TotalEarned     int     `db:"total_earned"`
	TotalPossible   int     `db:"total_possible"`
	Percent         float64 `db:"percent"`
	Passed          bool    `db:"passed"`
	Grade           string  `db:"grade"`
	Answered        int     `db:"answered"`
	Unreached       int     `db:"unreached"`
}

// SQLStorage implements Storage on a SQLite database through sqlx.
// The review and exam logs are append-only, so Save inserts only the rows
// added since the last save.
type SQLStorage struct {
	memoryState
	db     *sqlx.DB
	path   string
	logger *zap.Logger

	logsSynced   bool
	savedReviews int
	savedExams   int
}

// NewSQLStorage opens (creating if needed) the database at path and ensures
// the schema exists.
func NewSQLStorage(path string, logger *zap.Logger) (*SQLStorage, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := sqlx.Connect("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	// SQLite doesn't support multiple writers; one connection also keeps
	// ":memory:" databases alive across calls.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to initialize schema: %w", err)
		}
	}

	logger.Debug("Opened SQLite storage", zap.String("path", path))
	s := &SQLStorage{db: db, path: path, logger: logger}
	s.snap = EmptySnapshot()
	return s, nil
}

// Load reads every table into memory. An empty database yields an empty snapshot.
func (s *SQLStorage) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return ErrClosed
	}

	snap := EmptySnapshot()

	var records []recordRow
	if err := s.db.Select(&records, `SELECT item_id, times_correct, times_seen, interval_days, last_reviewed_at FROM records`); err != nil {
		return fmt.Errorf("failed to load records: %w", err)
	}
	for _, r := range records {
		rec := progress.ReviewRecord{
			TimesCorrect: r.TimesCorrect,
			TimesSeen:    r.TimesSeen,
			IntervalDays: r.IntervalDays,
		}
		if r.LastReviewedAt.Valid {
			t := fromUnixNano(r.LastReviewedAt.Int64)
			rec.LastReviewedAt = &t
		}
		snap.Records[r.ItemID] = rec
	}

	if err := s.db.Select(&snap.Mastered, `SELECT item_id FROM mastered ORDER BY item_id`); err != nil {
		return fmt.Errorf("failed to load mastered items: %w", err)
	}

	var topics []topicRow
	if err := s.db.Select(&topics, `SELECT topic_key, correct, attempts FROM topics`); err != nil {
		return fmt.Errorf("failed to load topics: %w", err)
	}
	for _, t := range topics {
		snap.Topics[t.TopicKey] = scheduling.TopicStat{Correct: t.Correct, Attempts: t.Attempts}
	}

	var row sessionRow
	err := s.db.Get(&row, `SELECT * FROM session_state WHERE id = 1`)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return fmt.Errorf("failed to load session state: %w", err)
	default:
		snap.Session = session.State{
			CurrentStreakDays:   row.CurrentStreakDays,
			LastActiveDate:      row.LastActiveDate,
			TodayCompletedCount: row.TodayCompletedCount,
			DailyGoal:           row.DailyGoal,
			TotalStudySeconds:   row.TotalStudySeconds,
		}
		snap.LastUpdated = fromUnixNano(row.LastUpdated)
	}

	var reviews []reviewRow
	if err := s.db.Select(&reviews, `SELECT * FROM reviews ORDER BY seq`); err != nil {
		return fmt.Errorf("failed to load reviews: %w", err)
	}
	for _, r := range reviews {
		snap.Reviews = append(snap.Reviews, Review{
			ID:           r.ID,
			ItemID:       r.ItemID,
			Rating:       progress.Rating(r.Rating),
			Answer:       r.Answer,
			IntervalDays: r.IntervalDays,
			Timestamp:    fromUnixNano(r.ReviewedAt),
		})
	}

	var exams []examRow
	if err := s.db.Select(&exams, `SELECT * FROM exams ORDER BY seq`); err != nil {
		return fmt.Errorf("failed to load exams: %w", err)
	}
	for _, e := range exams {
		snap.Exams = append(snap.Exams, ExamSummary{
			ID:              e.ID,
			StartedAt:       fromUnixNano(e.StartedAt),
			Status:          e.Status,
			DurationSeconds: e.DurationSeconds,
			TotalEarned:     e.TotalEarned,
			TotalPossible:   e.TotalPossible,
			Percent:         e.Percent,
			Passed:          e.Passed,
			Grade:           e.Grade,
			Answered:        e.Answered,
			Unreached:       e.Unreached,
		})
	}

	s.snap = normalizeSnapshot(snap)
	s.logsSynced = true
	s.savedReviews = len(s.snap.Reviews)
	s.savedExams = len(s.snap.Exams)
	s.logger.Info("Loaded progress database",
		zap.String("path", s.path),
		zap.Int("records", len(s.snap.Records)),
		zap.Int("mastered", len(s.snap.Mastered)),
		zap.Int("topics", len(s.snap.Topics)))
	return nil
}

// Save rewrites the progress tables from the in-memory snapshot and appends
// new log rows, all in one transaction.
func (s *SQLStorage) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return ErrClosed
	}

	s.snap = normalizeSnapshot(s.snap)
	s.snap.LastUpdated = time.Now()

	tx, err := s.db.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"records", "mastered", "topics", "session_state"} {
		if _, err := tx.Exec(`DELETE FROM ` + table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	if err := s.saveRecords(tx); err != nil {
		return err
	}
	for _, id := range s.snap.Mastered {
		if _, err := tx.Exec(`INSERT INTO mastered (item_id) VALUES (?)`, id); err != nil {
			return fmt.Errorf("failed to save mastered item: %w", err)
		}
	}
	for key, stat := range s.snap.Topics {
		row := topicRow{TopicKey: key, Correct: stat.Correct, Attempts: stat.Attempts}
		if _, err := tx.NamedExec(`INSERT INTO topics (topic_key, correct, attempts) VALUES (:topic_key, :correct, :attempts)`, row); err != nil {
			return fmt.Errorf("failed to save topic: %w", err)
		}
	}

	st := s.snap.Session
	sessRow := sessionRow{
		ID:                  1,
		CurrentStreakDays:   st.CurrentStreakDays,
		LastActiveDate:      st.LastActiveDate,
		TodayCompletedCount: st.TodayCompletedCount,
		DailyGoal:           st.DailyGoal,
		TotalStudySeconds:   st.TotalStudySeconds,
		LastUpdated:         toUnixNano(s.snap.LastUpdated),
	}
	if _, err := tx.NamedExec(`INSERT INTO session_state
		(id, current_streak_days, last_active_date, today_completed_count, daily_goal, total_study_seconds, last_updated)
		VALUES (:id, :current_streak_days, :last_active_date, :today_completed_count, :daily_goal, :total_study_seconds, :last_updated)`, sessRow); err != nil {
		return fmt.Errorf("failed to save session state: %w", err)
	}

	newReviews, newExams, err := s.saveLogs(tx)
	if err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	s.logsSynced = true
	s.savedReviews = len(s.snap.Reviews)
	s.savedExams = len(s.snap.Exams)
	s.logger.Debug("Saved progress database",
		zap.String("path", s.path),
		zap.Int("records", len(s.snap.Records)),
		zap.Int("new_reviews", newReviews),
		zap.Int("new_exams", newExams))
	return nil
}

func (s *SQLStorage) saveRecords(tx *sqlx.Tx) error {
	stmt, err := tx.PrepareNamed(`INSERT INTO records (item_id, times_correct, times_seen, interval_days, last_reviewed_at)
		VALUES (:item_id, :times_correct, :times_seen, :interval_days, :last_reviewed_at)`)
	if err != nil {
		return fmt.Errorf("failed to prepare record insert: %w", err)
	}
	defer stmt.Close()

	for id, rec := range s.snap.Records {
		row := recordRow{
			ItemID:       id,
			TimesCorrect: rec.TimesCorrect,
			TimesSeen:    rec.TimesSeen,
			IntervalDays: rec.IntervalDays,
		}
		if rec.LastReviewedAt != nil {
			row.LastReviewedAt = sql.NullInt64{Int64: toUnixNano(*rec.LastReviewedAt), Valid: true}
		}
		if _, err := stmt.Exec(row); err != nil {
			return fmt.Errorf("failed to save record %s: %w", id, err)
		}
	}
	return nil
}

// saveLogs inserts the log rows past the saved counts. Logs are rewritten
// from scratch before the first Load or after Replace shrank them.
func (s *SQLStorage) saveLogs(tx *sqlx.Tx) (int, int, error) {
	fromReview, fromExam := s.savedReviews, s.savedExams
	if !s.logsSynced {
		fromReview, fromExam = -1, -1
	}
	if fromReview < 0 || len(s.snap.Reviews) < fromReview {
		if _, err := tx.Exec(`DELETE FROM reviews`); err != nil {
			return 0, 0, fmt.Errorf("failed to clear reviews: %w", err)
		}
		fromReview = 0
	}
	if fromExam < 0 || len(s.snap.Exams) < fromExam {
		if _, err := tx.Exec(`DELETE FROM exams`); err != nil {
			return 0, 0, fmt.Errorf("failed to clear exams: %w", err)
		}
		fromExam = 0
	}

	reviewStmt, err := tx.PrepareNamed(`INSERT INTO reviews (seq, id, item_id, rating, answer, interval_days, reviewed_at)
		VALUES (:seq, :id, :item_id, :rating, :answer, :interval_days, :reviewed_at)`)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to prepare review insert: %w", err)
	}
	defer reviewStmt.Close()

	for i := fromReview; i < len(s.snap.Reviews); i++ {
		r := s.snap.Reviews[i]
		row := reviewRow{
			Seq:          i + 1,
			ID:           r.ID,
			ItemID:       r.ItemID,
			Rating:       int(r.Rating),
			Answer:       r.Answer,
			IntervalDays: r.IntervalDays,
			ReviewedAt:   toUnixNano(r.Timestamp),
		}
		if _, err := reviewStmt.Exec(row); err != nil {
			return 0, 0, fmt.Errorf("failed to save review %s: %w", r.ID, err)
		}
	}

	examStmt, err := tx.PrepareNamed(`INSERT INTO exams
		(seq, id, started_at, status, duration_seconds, total_earned, total_possible, percent, passed, grade, answered, unreached)
		VALUES (:seq, :id, :started_at, :status, :duration_seconds, :total_earned, :total_possible, :percent, :passed, :grade, :answered, :unreached)`)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to prepare exam insert: %w", err)
	}
	defer examStmt.Close()

	for i := fromExam; i < len(s.snap.Exams); i++ {
		e := s.snap.Exams[i]
		row := examRow{
			Seq:             i + 1,
			ID:              e.ID,
			StartedAt:       toUnixNano(e.StartedAt),
			Status:          e.Status,
			DurationSeconds: e.DurationSeconds,
			TotalEarned:     e.TotalEarned,
			TotalPossible:   e.TotalPossible,
			Percent:         e.Percent,
			Passed:          e.Passed,
			Grade:           e.Grade,
			Answered:        e.Answered,
			Unreached:       e.Unreached,
		}
		if _, err := examStmt.Exec(row); err != nil {
			return 0, 0, fmt.Errorf("failed to save exam %s: %w", e.ID, err)
		}
	}
	return len(s.snap.Reviews) - fromReview, len(s.snap.Exams) - fromExam, nil
}

// Close closes the database. The in-memory snapshot stays readable.
func (s *SQLStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// toUnixNano maps the zero time to 0 so it survives a round trip.
func toUnixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
