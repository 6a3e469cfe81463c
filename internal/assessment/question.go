// Package assessment scores answered questions and aggregates the points of a
// quiz or a timed exam into a verdict.
package assessment

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Kind names the serialized question variants.
type Kind string

const (
	KindChoice    Kind = "choice"
	KindTrueFalse Kind = "true_false"
	KindFillIn    Kind = "fill_in"
)

// ErrInvalidQuestion is returned when a Definition cannot be turned into a Question.
var ErrInvalidQuestion = errors.New("invalid question")

// Question is a closed set of assessable item variants. Each variant scores
// its own answers; the unexported method keeps other packages from adding
// variants that Score does not know about.
type Question interface {
	Points() int
	score(answer string) Result
	sealed()
}

// ChoiceQuestion is a multiple-choice or true/false item. Correct holds the
// zero-based indexes of every accepted option.
type ChoiceQuestion struct {
	Options   []string
	Correct   []int
	Value     int
	TrueFalse bool
}

// FillInQuestion is a free-text item whose answer is a comma separated list of
// tokens. Every accepted token is worth an equal share of Value.
type FillInQuestion struct {
	Accepted []string
	Value    int
}

func (q ChoiceQuestion) Points() int { return q.Value }
func (q FillInQuestion) Points() int { return q.Value }

func (ChoiceQuestion) sealed() {}
func (FillInQuestion) sealed() {}

// NewTrueFalse builds a true/false question whose options are "True" and "False".
func NewTrueFalse(answer bool, points int) ChoiceQuestion {
	correct := 1
	if answer {
		correct = 0
	}
	return ChoiceQuestion{
		Options:   []string{"True", "False"},
		Correct:   []int{correct},
		Value:     points,
		TrueFalse: true,
	}
}

// Definition is the serializable description of a question as it appears in decks.
type Definition struct {
	Kind     Kind     `json:"kind"`
	Points   int      `json:"points"`
	Options  []string `json:"options,omitempty"`
	Correct  []int    `json:"correct,omitempty"`
	Accepted []string `json:"accepted,omitempty"`
}

// Build turns the definition into its Question variant.
func (d Definition) Build() (Question, error) {
	if d.Points < 0 {
		return nil, fmt.Errorf("%w: negative points %d", ErrInvalidQuestion, d.Points)
	}
	switch d.Kind {
	case KindChoice, KindTrueFalse:
		options := d.Options
		if d.Kind == KindTrueFalse && len(options) == 0 {
			options = []string{"True", "False"}
		}
		if len(d.Correct) == 0 {
			return nil, fmt.Errorf("%w: %s question has no correct option", ErrInvalidQuestion, d.Kind)
		}
		for _, idx := range d.Correct {
			if idx < 0 || idx >= len(options) {
				return nil, fmt.Errorf("%w: correct index %d out of range for %d options", ErrInvalidQuestion, idx, len(options))
			}
		}
		return ChoiceQuestion{
			Options:   options,
			Correct:   append([]int(nil), d.Correct...),
			Value:     d.Points,
			TrueFalse: d.Kind == KindTrueFalse,
		}, nil
	case KindFillIn:
		accepted := make([]string, 0, len(d.Accepted))
		for _, token := range d.Accepted {
			if normalized := normalizeToken(token); normalized != "" {
				accepted = append(accepted, token)
			}
		}
		if len(accepted) == 0 {
			return nil, fmt.Errorf("%w: fill-in question has no accepted answers", ErrInvalidQuestion)
		}
		return FillInQuestion{Accepted: accepted, Value: d.Points}, nil
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidQuestion, d.Kind)
	}
}

// parseChoice resolves a submitted answer to an option index. The boolean is
// false for blank or unparseable input.
func (q ChoiceQuestion) parseChoice(answer string) (int, bool) {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return 0, false
	}
	if q.TrueFalse {
		switch strings.ToLower(answer) {
		case "true", "t", "yes", "y":
			return 0, true
		case "false", "f", "no", "n":
			return 1, true
		}
	}
	idx, err := strconv.Atoi(answer)
	if err != nil {
		return 0, false
	}
	return idx, true
}

func (q ChoiceQuestion) isCorrect(idx int) bool {
	for _, c := range q.Correct {
		if c == idx {
			return true
		}
	}
	return false
}

func normalizeToken(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
