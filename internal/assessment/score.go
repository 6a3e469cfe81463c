package assessment

import (
	"fmt"
	"strings"
)

// PassPercent is the minimum percentage of possible points needed to pass.
const PassPercent = 60

// Result is the outcome of scoring one answer.
type Result struct {
	PointsEarned   int    `json:"points_earned"`
	PointsPossible int    `json:"points_possible"`
	Correct        bool   `json:"correct"`
	Answered       bool   `json:"answered"`
	Matched        int    `json:"matched"`
	Expected       int    `json:"expected"`
	Detail         string `json:"detail"`
}

// Partial reports whether the answer earned some but not all of the points.
func (r Result) Partial() bool {
	return r.Answered && !r.Correct && r.PointsEarned > 0
}

// Score grades answer against q. It never fails: blank or unparseable
// answers score zero and are reported as unanswered.
func Score(q Question, answer string) Result {
	return q.score(answer)
}

func (q ChoiceQuestion) score(answer string) Result {
	res := Result{PointsPossible: q.Value, Expected: 1}
	idx, ok := q.parseChoice(answer)
	if !ok {
		res.Detail = "no answer given"
		return res
	}
	res.Answered = true
	if q.isCorrect(idx) {
		res.Correct = true
		res.Matched = 1
		res.PointsEarned = q.Value
		res.Detail = "correct"
		return res
	}
	res.Detail = fmt.Sprintf("incorrect, expected %s", q.describeCorrect())
	return res
}

func (q ChoiceQuestion) describeCorrect() string {
	labels := make([]string, 0, len(q.Correct))
	for _, idx := range q.Correct {
		if idx >= 0 && idx < len(q.Options) {
			labels = append(labels, q.Options[idx])
		} else {
			labels = append(labels, fmt.Sprintf("#%d", idx))
		}
	}
	return strings.Join(labels, " or ")
}

// score matches each submitted token against the accepted tokens. An accepted
// token can be consumed once, so repeating a right answer earns nothing extra.
func (q FillInQuestion) score(answer string) Result {
	expected := len(q.Accepted)
	res := Result{PointsPossible: q.Value, Expected: expected}
	if strings.TrimSpace(answer) == "" {
		res.Detail = "no answer given"
		return res
	}
	res.Answered = true

	used := make([]bool, expected)
	for _, submitted := range strings.Split(answer, ",") {
		token := normalizeToken(submitted)
		if token == "" {
			continue
		}
		for i, accepted := range q.Accepted {
			if !used[i] && normalizeToken(accepted) == token {
				used[i] = true
				res.Matched++
				break
			}
		}
	}

	if expected > 0 {
		res.PointsEarned = q.Value * res.Matched / expected
	}
	res.Correct = expected > 0 && res.Matched == expected
	switch {
	case res.Correct:
		res.Detail = "correct"
	case res.Matched > 0:
		res.Detail = fmt.Sprintf("partially correct: %d of %d", res.Matched, expected)
	default:
		res.Detail = fmt.Sprintf("incorrect, expected %s", strings.Join(q.Accepted, ", "))
	}
	return res
}

// Grade is the presentational band for a percentage score.
type Grade struct {
	Letter string `json:"letter"`
	Label  string `json:"label"`
}

// GradeFor maps a percentage onto its grade band.
func GradeFor(percent float64) Grade {
	switch {
	case percent >= 90:
		return Grade{"A", "Excellent"}
	case percent >= 80:
		return Grade{"B", "Good"}
	case percent >= 70:
		return Grade{"C", "Satisfactory"}
	case percent >= 60:
		return Grade{"D", "Sufficient"}
	default:
		return Grade{"F", "Fail"}
	}
}

// Tally accumulates results across a quiz or exam.
type Tally struct {
	TotalEarned   int `json:"total_earned"`
	TotalPossible int `json:"total_possible"`
	CorrectCount  int `json:"correct_count"`
	WrongCount    int `json:"wrong_count"`
	Unanswered    int `json:"unanswered"`
}

// Add folds one result into the tally.
func (t *Tally) Add(r Result) {
	t.TotalEarned += r.PointsEarned
	t.TotalPossible += r.PointsPossible
	switch {
	case !r.Answered:
		t.Unanswered++
	case r.Correct:
		t.CorrectCount++
	default:
		t.WrongCount++
	}
}

// Count returns the number of results folded in.
func (t Tally) Count() int {
	return t.CorrectCount + t.WrongCount + t.Unanswered
}

// Percent returns earned/possible as a percentage, or 0 when nothing was possible.
func (t Tally) Percent() float64 {
	if t.TotalPossible <= 0 {
		return 0
	}
	return float64(t.TotalEarned) * 100 / float64(t.TotalPossible)
}

// Passed reports whether the earned points reach PassPercent of the possible
// points. An empty tally never passes.
func (t Tally) Passed() bool {
	if t.TotalPossible <= 0 {
		return false
	}
	return t.TotalEarned*100 >= PassPercent*t.TotalPossible
}

// Grade returns the grade band of the tally.
func (t Tally) Grade() Grade {
	return GradeFor(t.Percent())
}
