// Package content defines study items and loads them from deck files.
package content

import (
	"fmt"
	"strings"

	"github.com/danieldreier/mcp-studycoach/internal/assessment"
	"github.com/google/uuid"
)

// Subject is the enumerated category of an item.
type Subject string

const (
	SubjectGeneral     Subject = "general"
	SubjectLanguage    Subject = "language"
	SubjectScience     Subject = "science"
	SubjectMath        Subject = "math"
	SubjectHistory     Subject = "history"
	SubjectProgramming Subject = "programming"
)

// Subjects lists every known subject.
var Subjects = []Subject{
	SubjectGeneral,
	SubjectLanguage,
	SubjectScience,
	SubjectMath,
	SubjectHistory,
	SubjectProgramming,
}

// ParseSubject maps a name onto a known subject, defaulting to general.
func ParseSubject(name string) Subject {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, s := range Subjects {
		if string(s) == name {
			return s
		}
	}
	return SubjectGeneral
}

// idNamespace scopes content-derived item IDs.
var idNamespace = uuid.MustParse("5b0d3f0e-8c1a-4f7e-9d2b-6a4c1e7f3b90")

// StableID derives an item ID from its content, so reordering or growing a
// deck never changes the identity of existing items.
func StableID(subject Subject, topic, front string) string {
	key := strings.Join([]string{
		string(subject),
		strings.ToLower(strings.TrimSpace(topic)),
		strings.TrimSpace(front),
	}, "\x1f")
	return uuid.NewSHA1(idNamespace, []byte(key)).String()
}

// Item is a flashcard, optionally carrying an assessable question.
type Item struct {
	ID       string                 `json:"id"`
	Subject  Subject                `json:"subject"`
	Topic    string                 `json:"topic"`
	Front    string                 `json:"front"`
	Back     string                 `json:"back,omitempty"`
	Question *assessment.Definition `json:"question,omitempty"`
}

// TopicKey groups quiz statistics per subject and topic.
func (i Item) TopicKey() string {
	return TopicKey(i.Subject, i.Topic)
}

// TopicKey builds the statistics key for a subject and topic.
func TopicKey(subject Subject, topic string) string {
	return string(subject) + "/" + strings.ToLower(strings.TrimSpace(topic))
}

// Assessable reports whether the item can be scored in a quiz or exam.
func (i Item) Assessable() bool {
	return i.Question != nil
}

// Assessment builds the question variant of the item.
func (i Item) Assessment() (assessment.Question, error) {
	if i.Question == nil {
		return nil, fmt.Errorf("item %s: %w: no question attached", i.ID, assessment.ErrInvalidQuestion)
	}
	q, err := i.Question.Build()
	if err != nil {
		return nil, fmt.Errorf("item %s: %w", i.ID, err)
	}
	return q, nil
}
