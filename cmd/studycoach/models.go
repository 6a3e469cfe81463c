// Package main provides the study coach MCP server.
package main

import (
	"time"

	"github.com/danieldreier/mcp-studycoach/internal/assessment"
	"github.com/danieldreier/mcp-studycoach/internal/content"
	"github.com/danieldreier/mcp-studycoach/internal/progress"
	"github.com/danieldreier/mcp-studycoach/internal/scheduling"
	"github.com/danieldreier/mcp-studycoach/internal/storage"
)

// ItemView is an item as presented to the learner: the back and the
// accepted answers stay hidden until an answer is submitted.
type ItemView struct {
	ID              string          `json:"id"`
	Subject         content.Subject `json:"subject"`
	Topic           string          `json:"topic"`
	Front           string          `json:"front"`
	Kind            assessment.Kind `json:"kind,omitempty"`
	Options         []string        `json:"options,omitempty"`
	Points          int             `json:"points,omitempty"`
	ExpectedAnswers int             `json:"expected_answers,omitempty"`
}

// SessionStats summarizes streak, goal and deck progress.
type SessionStats struct {
	CurrentStreakDays   int                    `json:"current_streak_days"`
	LastActiveDate      string                 `json:"last_active_date"`
	TodayCompletedCount int                    `json:"today_completed_count"`
	DailyGoal           int                    `json:"daily_goal"`
	GoalMet             bool                   `json:"goal_met"`
	GoalProgress        float64                `json:"goal_progress"`
	SessionCompleted    int                    `json:"session_completed"`
	TotalStudySeconds   int64                  `json:"total_study_seconds"`
	TotalItems          int                    `json:"total_items"`
	DueItems            int                    `json:"due_items"`
	MasteredItems       int                    `json:"mastered_items"`
	WeakTopics          []scheduling.WeakTopic `json:"weak_topics"`
}

// ItemsResponse represents the response structure for get_due_items and get_weak_items
type ItemsResponse struct {
	Items      []ItemView             `json:"items"`
	WeakTopics []scheduling.WeakTopic `json:"weak_topics,omitempty"`
	Stats      SessionStats           `json:"stats"`
	Message    string                 `json:"message,omitempty"`
}

// ReviewResponse represents the response structure for submit_review
type ReviewResponse struct {
	Success  bool                  `json:"success"`
	Message  string                `json:"message"`
	ItemID   string                `json:"item_id"`
	Back     string                `json:"back,omitempty"`
	Rating   string                `json:"rating"`
	Record   progress.ReviewRecord `json:"record"`
	NextDue  *time.Time            `json:"next_due,omitempty"`
	Mastered bool                  `json:"mastered"`
	GoalMet  bool                  `json:"goal_met"`
}

// AnswerResponse represents the response structure for answer_question
type AnswerResponse struct {
	ItemID    string                `json:"item_id"`
	Result    assessment.Result     `json:"result"`
	Back      string                `json:"back,omitempty"`
	Rating    string                `json:"rating"`
	TopicKey  string                `json:"topic_key"`
	TopicStat scheduling.TopicStat  `json:"topic_stat"`
	Record    progress.ReviewRecord `json:"record"`
	Mastered  bool                  `json:"mastered"`
}

// ExamResponse represents the response structure for the exam tools
type ExamResponse struct {
	ExamID           string                 `json:"exam_id"`
	Status           string                 `json:"status"`
	QuestionCount    int                    `json:"question_count"`
	Answered         int                    `json:"answered"`
	RemainingSeconds int                    `json:"remaining_seconds,omitempty"`
	Deadline         *time.Time             `json:"deadline,omitempty"`
	LastAnswer       *assessment.ExamEntry  `json:"last_answer,omitempty"`
	Question         *ItemView              `json:"question,omitempty"`
	Result           *assessment.ExamResult `json:"result,omitempty"`
}

// ExamHistoryResponse represents the response structure for list_exam_history
type ExamHistoryResponse struct {
	Exams       []storage.ExamSummary `json:"exams"`
	TotalExams  int                   `json:"total_exams"`
	PassedExams int                   `json:"passed_exams"`
}

// newItemView hides everything that would give the answer away.
func newItemView(item content.Item) ItemView {
	view := ItemView{
		ID:      item.ID,
		Subject: item.Subject,
		Topic:   item.Topic,
		Front:   item.Front,
	}
	if item.Question != nil {
		view.Kind = item.Question.Kind
		view.Points = item.Question.Points
		switch item.Question.Kind {
		case assessment.KindChoice:
			view.Options = item.Question.Options
		case assessment.KindTrueFalse:
			view.Options = []string{"True", "False"}
		case assessment.KindFillIn:
			view.ExpectedAnswers = len(item.Question.Accepted)
		}
	}
	return view
}

func newItemViews(items []content.Item) []ItemView {
	views := make([]ItemView, 0, len(items))
	for _, item := range items {
		views = append(views, newItemView(item))
	}
	return views
}
