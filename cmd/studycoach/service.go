// Package main provides the study coach MCP server.
package main

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/danieldreier/mcp-studycoach/internal/assessment"
	"github.com/danieldreier/mcp-studycoach/internal/content"
	"github.com/danieldreier/mcp-studycoach/internal/progress"
	"github.com/danieldreier/mcp-studycoach/internal/scheduling"
	"github.com/danieldreier/mcp-studycoach/internal/session"
	"github.com/danieldreier/mcp-studycoach/internal/storage"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// timeNow is swapped out by tests.
var timeNow = time.Now

var (
	// ErrItemNotFound is returned for an item ID that is not in the deck.
	ErrItemNotFound = errors.New("item not found")
	// ErrNotAssessable is returned when quizzing an item without a question.
	ErrNotAssessable = errors.New("item has no question")
	// ErrExamNotFound is returned when no exam with the given ID is running.
	ErrExamNotFound = errors.New("exam not found")
	// ErrExamInProgress is returned when starting an exam while another runs.
	ErrExamInProgress = errors.New("an exam is already in progress")
	// ErrNoQuestions is returned when no item qualifies for an exam.
	ErrNoQuestions = errors.New("no questions available")
)

// ServiceOptions tunes selection sizes and exam defaults.
type ServiceOptions struct {
	DailyGoal    int
	SessionSize  int
	ExamSize     int
	ExamDuration time.Duration
	// Rand shuffles selections; nil seeds from the clock.
	Rand *rand.Rand
}

type activeExam struct {
	id        string
	exam      *assessment.Exam
	startedAt time.Time
	items     map[string]content.Item
}

// StudyService wires the progress store, scheduling engine, session tracker
// and storage together. All methods are safe for concurrent use.
type StudyService struct {
	Storage storage.Storage
	Logger  *zap.Logger

	mu        sync.Mutex
	deck      *content.Deck
	store     *progress.Store
	engine    *scheduling.Engine
	tracker   *session.Tracker
	opts      ServiceOptions
	rng       *rand.Rand
	exam      *activeExam
	startedAt time.Time
}

// NewStudyService restores the engine state from the storage snapshot and
// rolls the session over to today.
func NewStudyService(st storage.Storage, deck *content.Deck, opts ServiceOptions, logger *zap.Logger) *StudyService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deck == nil {
		deck, _ = content.NewDeck("empty", nil)
	}
	rng := opts.Rand
	if rng == nil {
		seed := uint64(timeNow().UnixNano())
		rng = rand.New(rand.NewPCG(seed, seed>>1))
	}

	snap := st.Snapshot()
	store := progress.Restore(snap.Progress())
	engine := scheduling.NewEngine(store)
	engine.RestoreTopics(snap.Topics)
	tracker := session.NewTracker(snap.Session)
	if opts.DailyGoal > 0 {
		tracker.SetDailyGoal(opts.DailyGoal)
	}

	now := timeNow()
	tracker.RollDay(now)

	logger.Info("Study service ready",
		zap.String("deck", deck.Name),
		zap.Int("items", deck.Len()),
		zap.Int("records", store.Len()),
		zap.Int("streak", tracker.State().CurrentStreakDays))

	return &StudyService{
		Storage:   st,
		Logger:    logger,
		deck:      deck,
		store:     store,
		engine:    engine,
		tracker:   tracker,
		opts:      opts,
		rng:       rng,
		startedAt: now,
	}
}

// GetDueItems returns up to limit due items, optionally narrowed to a subject
// and topic. A limit of zero uses the configured session size.
func (s *StudyService) GetDueItems(subject, topic string, limit int) (ItemsResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := timeNow()
	s.tracker.RollDay(now)

	pool := s.deck.Filter(subjectFilter(subject), topic)
	items := scheduling.Take(s.engine.SelectDue(pool, now), s.sessionSize(limit), s.rng)
	s.Logger.Debug("Selected due items",
		zap.String("subject", subject), zap.String("topic", topic),
		zap.Int("pool", len(pool)), zap.Int("selected", len(items)))

	resp := ItemsResponse{Items: newItemViews(items), Stats: s.stats(now)}
	if len(items) == 0 {
		resp.Message = "Nothing is due for review right now"
	}
	return resp, nil
}

// GetWeakItems returns up to limit items from weak topics, falling back to
// the whole filtered pool when no topic is weak.
func (s *StudyService) GetWeakItems(subject, topic string, limit int) (ItemsResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := timeNow()
	s.tracker.RollDay(now)

	pool := s.deck.Filter(subjectFilter(subject), topic)
	items := scheduling.Take(s.engine.SelectWeak(pool), s.sessionSize(limit), s.rng)

	resp := ItemsResponse{
		Items:      newItemViews(items),
		WeakTopics: s.engine.WeakTopics(),
		Stats:      s.stats(now),
	}
	switch {
	case len(items) == 0:
		resp.Message = "No items match the filter"
	case len(resp.WeakTopics) == 0:
		resp.Message = "No weak topics yet, practicing from the whole pool"
	}
	return resp, nil
}

// SubmitReview applies a self-rated review (1-4, clamped) to an item.
func (s *StudyService) SubmitReview(itemID string, rating int, answer string) (ReviewResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.deck.Get(itemID)
	if !ok {
		return ReviewResponse{}, fmt.Errorf("%w: %s", ErrItemNotFound, itemID)
	}

	now := timeNow()
	s.tracker.RollDay(now)

	r := progress.ClampRating(rating)
	rec := s.applyReview(item.ID, r, answer, now)
	s.tracker.RecordCompleted(1)
	s.persist()

	resp := ReviewResponse{
		Success:  true,
		Message:  "Review submitted successfully for item " + item.ID,
		ItemID:   item.ID,
		Back:     item.Back,
		Rating:   progress.RatingName(r),
		Record:   rec,
		Mastered: s.store.IsMastered(item.ID),
		GoalMet:  s.tracker.GoalMet(),
	}
	if due, ok := s.store.NextDue(item.ID); ok {
		resp.NextDue = &due
	}
	return resp, nil
}

// AnswerQuestion scores a quiz answer, records the topic outcome and feeds
// the derived rating into the item's progress.
func (s *StudyService) AnswerQuestion(itemID, answer string) (AnswerResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.deck.Get(itemID)
	if !ok {
		return AnswerResponse{}, fmt.Errorf("%w: %s", ErrItemNotFound, itemID)
	}
	if !item.Assessable() {
		return AnswerResponse{}, fmt.Errorf("%w: %s", ErrNotAssessable, itemID)
	}
	q, err := item.Assessment()
	if err != nil {
		return AnswerResponse{}, err
	}

	now := timeNow()
	s.tracker.RollDay(now)

	res := assessment.Score(q, answer)
	stat := s.engine.RecordTopicOutcome(item.TopicKey(), res.Correct)
	r := ratingForResult(res)
	rec := s.applyReview(item.ID, r, answer, now)
	s.tracker.RecordCompleted(1)
	s.persist()

	s.Logger.Debug("Scored quiz answer",
		zap.String("item_id", item.ID),
		zap.Int("earned", res.PointsEarned),
		zap.Int("possible", res.PointsPossible),
		zap.Bool("correct", res.Correct))

	return AnswerResponse{
		ItemID:    item.ID,
		Result:    res,
		Back:      item.Back,
		Rating:    progress.RatingName(r),
		TopicKey:  item.TopicKey(),
		TopicStat: stat,
		Record:    rec,
		Mastered:  s.store.IsMastered(item.ID),
	}, nil
}

// StartExam draws up to size assessable items and starts a timed exam.
// Zero size or minutes fall back to the configured defaults; negative
// minutes disable the time limit.
func (s *StudyService) StartExam(subject, topic string, size, minutes int) (ExamResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := timeNow()
	s.tracker.RollDay(now)

	if s.exam != nil {
		if s.exam.exam.Current(now); !s.exam.exam.State().Finished() {
			return ExamResponse{}, fmt.Errorf("%w: %s", ErrExamInProgress, s.exam.id)
		}
		s.finishExam(now)
	}

	if size <= 0 {
		size = s.opts.ExamSize
	}
	duration := s.opts.ExamDuration
	switch {
	case minutes > 0:
		duration = time.Duration(minutes) * time.Minute
	case minutes < 0:
		duration = 0
	}

	pool := content.Assessable(s.deck.Filter(subjectFilter(subject), topic))
	picked := scheduling.Take(slices.Values(pool), size, s.rng)
	if len(picked) == 0 {
		return ExamResponse{}, ErrNoQuestions
	}

	examItems := make([]assessment.ExamItem, 0, len(picked))
	byID := make(map[string]content.Item, len(picked))
	for _, item := range picked {
		q, err := item.Assessment()
		if err != nil {
			return ExamResponse{}, err
		}
		examItems = append(examItems, assessment.ExamItem{ItemID: item.ID, TopicKey: item.TopicKey(), Question: q})
		byID[item.ID] = item
	}

	exam := assessment.NewExam(examItems, duration)
	if err := exam.Start(now); err != nil {
		return ExamResponse{}, err
	}
	s.exam = &activeExam{id: uuid.New().String(), exam: exam, startedAt: now, items: byID}
	s.Logger.Info("Exam started",
		zap.String("exam_id", s.exam.id),
		zap.Int("questions", len(examItems)),
		zap.Duration("duration", duration))

	return s.examResponse(now, nil), nil
}

// SubmitExamAnswer answers the current exam question. Once the exam ends
// the response carries the final result.
func (s *StudyService) SubmitExamAnswer(examID, answer string) (ExamResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.exam == nil || s.exam.id != examID {
		return ExamResponse{}, fmt.Errorf("%w: %s", ErrExamNotFound, examID)
	}

	now := timeNow()
	s.tracker.RollDay(now)

	entry, err := s.exam.exam.Answer(now, answer)
	if err != nil {
		if errors.Is(err, assessment.ErrExamFinished) {
			resp := s.examResponse(now, nil)
			s.finishExam(now)
			return resp, err
		}
		return ExamResponse{}, err
	}

	s.engine.RecordTopicOutcome(entry.TopicKey, entry.Result.Correct)
	s.applyReview(entry.ItemID, ratingForResult(entry.Result), answer, now)
	s.tracker.RecordCompleted(1)

	resp := s.examResponse(now, &entry)
	if s.exam.exam.State().Finished() {
		s.finishExam(now)
	} else {
		s.persist()
	}
	return resp, nil
}

// StopExam ends the running exam early and returns its result.
func (s *StudyService) StopExam(examID string) (ExamResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.exam == nil || s.exam.id != examID {
		return ExamResponse{}, fmt.Errorf("%w: %s", ErrExamNotFound, examID)
	}
	now := timeNow()
	s.exam.exam.Stop(now)
	resp := s.examResponse(now, nil)
	s.finishExam(now)
	return resp, nil
}

// GetSessionStats reports streak, goal and deck progress.
func (s *StudyService) GetSessionStats() SessionStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := timeNow()
	s.tracker.RollDay(now)
	return s.stats(now)
}

// WeakTopics lists the weak topics, weakest first.
func (s *StudyService) WeakTopics() []scheduling.WeakTopic {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.WeakTopics()
}

// ListExamHistory returns the most recent exams, newest first.
func (s *StudyService) ListExamHistory(limit int) ExamHistoryResponse {
	s.mu.Lock()
	defer s.mu.Unlock()

	exams := s.Storage.ListExamResults()
	resp := ExamHistoryResponse{TotalExams: len(exams)}
	for _, e := range exams {
		if e.Passed {
			resp.PassedExams++
		}
	}
	slices.Reverse(exams)
	if limit > 0 && len(exams) > limit {
		exams = exams[:limit]
	}
	resp.Exams = exams
	return resp
}

// Close ends a running exam, adds the wall-clock time of this run to the
// total study time and saves.
func (s *StudyService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := timeNow()
	if s.exam != nil {
		s.exam.exam.Stop(now)
		s.finishExam(now)
	}
	s.tracker.AccrueStudyTime(int64(now.Sub(s.startedAt) / time.Second))
	s.startedAt = now

	s.writeSnapshot()
	if err := s.Storage.Save(); err != nil {
		s.Logger.Error("Failed to save on close", zap.Error(err))
		return fmt.Errorf("failed to save progress: %w", err)
	}
	return s.Storage.Close()
}

// applyReview updates the progress store and appends to the review log.
// Assumes the lock is held.
func (s *StudyService) applyReview(itemID string, r progress.Rating, answer string, now time.Time) progress.ReviewRecord {
	rec := s.store.ApplyReview(itemID, r, now)
	if err := s.Storage.AddReview(storage.NewReview(itemID, r, answer, rec, now)); err != nil {
		s.Logger.Warn("Failed to log review", zap.String("item_id", itemID), zap.Error(err))
	}
	return rec
}

// finishExam logs the result of the active exam and clears it.
// Assumes the lock is held.
func (s *StudyService) finishExam(now time.Time) {
	res := s.exam.exam.Result()
	summary := storage.NewExamSummary(res, s.exam.startedAt)
	summary.ID = s.exam.id
	if err := s.Storage.AddExamResult(summary); err != nil {
		s.Logger.Warn("Failed to log exam result", zap.String("exam_id", s.exam.id), zap.Error(err))
	}
	s.Logger.Info("Exam finished",
		zap.String("exam_id", s.exam.id),
		zap.String("status", res.Status),
		zap.Int("earned", res.TotalEarned),
		zap.Int("possible", res.TotalPossible),
		zap.Bool("passed", res.Passed))
	s.exam = nil
	s.persist()
}

// persist copies the engine state into storage and saves. A failed save is
// logged; the state stays in memory and the next save retries.
// Assumes the lock is held.
func (s *StudyService) persist() {
	s.writeSnapshot()
	if err := s.Storage.Save(); err != nil {
		s.Logger.Warn("Failed to save progress, changes kept in memory", zap.Error(err))
	}
}

func (s *StudyService) writeSnapshot() {
	snap := s.Storage.Snapshot()
	p := s.store.Snapshot()
	snap.Records = p.Records
	snap.Mastered = p.Mastered
	snap.Topics = s.engine.TopicSnapshot()
	snap.Session = s.tracker.State()
	s.Storage.Replace(snap)
}

func (s *StudyService) examResponse(now time.Time, last *assessment.ExamEntry) ExamResponse {
	exam := s.exam.exam
	resp := ExamResponse{
		ExamID:        s.exam.id,
		QuestionCount: exam.Len(),
		LastAnswer:    last,
	}
	if item, ok := exam.Current(now); ok {
		view := newItemView(s.exam.items[item.ItemID])
		resp.Question = &view
	}
	resp.Status = exam.State().String()
	resp.Answered = exam.Answered()
	if exam.State().Finished() {
		res := exam.Result()
		resp.Result = &res
		return resp
	}
	if deadline, ok := exam.Deadline(); ok {
		resp.Deadline = &deadline
		resp.RemainingSeconds = int(exam.Remaining(now) / time.Second)
	}
	return resp
}

func (s *StudyService) stats(now time.Time) SessionStats {
	st := s.tracker.State()
	items := s.deck.Items()
	due := 0
	for range s.engine.SelectDue(items, now) {
		due++
	}
	weak := s.engine.WeakTopics()
	if weak == nil {
		weak = []scheduling.WeakTopic{}
	}
	return SessionStats{
		CurrentStreakDays:   st.CurrentStreakDays,
		LastActiveDate:      st.LastActiveDate,
		TodayCompletedCount: st.TodayCompletedCount,
		DailyGoal:           st.DailyGoal,
		GoalMet:             s.tracker.GoalMet(),
		GoalProgress:        s.tracker.GoalProgress(),
		SessionCompleted:    s.tracker.SessionCompleted(),
		TotalStudySeconds:   st.TotalStudySeconds + int64(now.Sub(s.startedAt)/time.Second),
		TotalItems:          len(items),
		DueItems:            due,
		MasteredItems:       len(s.store.MasteredIDs()),
		WeakTopics:          weak,
	}
}

func (s *StudyService) sessionSize(limit int) int {
	if limit > 0 {
		return limit
	}
	return s.opts.SessionSize
}

// ratingForResult maps a scored answer onto the review scale: fully correct
// is Good, partial credit is Hard, anything else is Again.
func ratingForResult(res assessment.Result) progress.Rating {
	switch {
	case res.Correct:
		return progress.Good
	case res.Partial():
		return progress.Hard
	default:
		return progress.Again
	}
}

func subjectFilter(name string) content.Subject {
	if name == "" {
		return ""
	}
	return content.ParseSubject(name)
}
