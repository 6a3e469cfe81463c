package main

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/danieldreier/mcp-studycoach/internal/progress"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/commands"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"
)

// studySUT drives the tool handlers in-process.
type studySUT struct {
	ctx context.Context
}

// studyModel is the expected state after a sequence of tool calls.
type studyModel struct {
	today     int
	timesSeen map[string]int
	attempts  map[string]int
}

func (m studyModel) copyModel() studyModel {
	out := studyModel{
		today:     m.today,
		timesSeen: make(map[string]int, len(m.timesSeen)),
		attempts:  make(map[string]int, len(m.attempts)),
	}
	for k, v := range m.timesSeen {
		out.timesSeen[k] = v
	}
	for k, v := range m.attempts {
		out.attempts[k] = v
	}
	return out
}

var propertyItems = []string{"water-boil", "water-h2o", "spanish-numbers", "rome-founded"}

var propertyTopics = map[string]string{
	"water-boil":      "science/water",
	"water-h2o":       "science/water",
	"spanish-numbers": "language/spanish",
}

func callTool(sut commands.SystemUnderTest, h func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), args map[string]interface{}, v any) error {
	s := sut.(*studySUT)
	result, err := h(s.ctx, toolRequest("property", args))
	if err != nil {
		return err
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		return fmt.Errorf("expected TextContent, got %T", result.Content[0])
	}
	return json.Unmarshal([]byte(text.Text), v)
}

func reviewCmd(itemID string, rating int) commands.Command {
	return &commands.ProtoCommand{
		Name: fmt.Sprintf("Review(%s, %d)", itemID, rating),
		RunFunc: func(sut commands.SystemUnderTest) commands.Result {
			var resp ReviewResponse
			if err := callTool(sut, handleSubmitReview, map[string]interface{}{
				"item_id": itemID, "rating": float64(rating),
			}, &resp); err != nil {
				return err
			}
			return resp
		},
		NextStateFunc: func(state commands.State) commands.State {
			m := state.(studyModel).copyModel()
			m.today++
			m.timesSeen[itemID]++
			return m
		},
		PostConditionFunc: func(state commands.State, result commands.Result) *gopter.PropResult {
			resp, ok := result.(ReviewResponse)
			if !ok {
				return &gopter.PropResult{Status: gopter.PropError, Error: fmt.Errorf("%v", result)}
			}
			m := state.(studyModel)
			if resp.Record.TimesSeen != m.timesSeen[itemID] {
				return gopter.NewPropResult(false, "times seen")
			}
			wantSuccess := progress.IsSuccess(progress.ClampRating(rating))
			if wantSuccess != (resp.Record.IntervalDays > 1) {
				return gopter.NewPropResult(false, "interval after rating")
			}
			return gopter.NewPropResult(resp.Rating == progress.RatingName(progress.ClampRating(rating)), "rating clamped")
		},
	}
}

func answerCmd(itemID string, correct bool) commands.Command {
	answer := "nothing"
	if correct {
		answer = correctAnswers[itemID]
	}
	return &commands.ProtoCommand{
		Name: fmt.Sprintf("Answer(%s, %v)", itemID, correct),
		RunFunc: func(sut commands.SystemUnderTest) commands.Result {
			var resp AnswerResponse
			if err := callTool(sut, handleAnswerQuestion, map[string]interface{}{
				"item_id": itemID, "answer": answer,
			}, &resp); err != nil {
				return err
			}
			return resp
		},
		NextStateFunc: func(state commands.State) commands.State {
			m := state.(studyModel).copyModel()
			m.today++
			m.timesSeen[itemID]++
			m.attempts[propertyTopics[itemID]]++
			return m
		},
		PostConditionFunc: func(state commands.State, result commands.Result) *gopter.PropResult {
			resp, ok := result.(AnswerResponse)
			if !ok {
				return &gopter.PropResult{Status: gopter.PropError, Error: fmt.Errorf("%v", result)}
			}
			m := state.(studyModel)
			if resp.Result.Correct != correct {
				return gopter.NewPropResult(false, "scored correctness")
			}
			if resp.TopicStat.Attempts != m.attempts[propertyTopics[itemID]] {
				return gopter.NewPropResult(false, "topic attempts")
			}
			return gopter.NewPropResult(resp.Record.TimesSeen == m.timesSeen[itemID], "times seen")
		},
	}
}

var sessionStatsCmd = &commands.ProtoCommand{
	Name: "Stats",
	RunFunc: func(sut commands.SystemUnderTest) commands.Result {
		var stats SessionStats
		if err := callTool(sut, handleGetSessionStats, nil, &stats); err != nil {
			return err
		}
		return stats
	},
	PostConditionFunc: func(state commands.State, result commands.Result) *gopter.PropResult {
		stats, ok := result.(SessionStats)
		if !ok {
			return &gopter.PropResult{Status: gopter.PropError, Error: fmt.Errorf("%v", result)}
		}
		m := state.(studyModel)
		if stats.TodayCompletedCount != m.today || stats.SessionCompleted != m.today {
			return gopter.NewPropResult(false, "completed count")
		}
		return gopter.NewPropResult(stats.GoalMet == (m.today >= stats.DailyGoal), "goal met")
	},
}

func TestToolCommandSequences(t *testing.T) {
	defer mockTimeNow(studyStart)()

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 30
	properties := gopter.NewProperties(parameters)

	assessable := gen.OneConstOf("water-boil", "water-h2o", "spanish-numbers")
	protoCmds := &commands.ProtoCommands{
		NewSystemUnderTestFunc: func(_ commands.State) commands.SystemUnderTest {
			path := filepath.Join(t.TempDir(), "studycoach.json")
			svc := NewStudyService(openTestStorage(t, path), testDeck(t), testOptions(), zap.NewNop())
			return &studySUT{ctx: withService(context.Background(), svc)}
		},
		InitialStateGen: gen.Const(studyModel{timesSeen: map[string]int{}, attempts: map[string]int{}}),
		GenCommandFunc: func(_ commands.State) gopter.Gen {
			return gen.Weighted([]gen.WeightedGen{
				{Weight: 3, Gen: gopter.CombineGens(gen.OneConstOf(propertyItems[0], propertyItems[1], propertyItems[2], propertyItems[3]), gen.IntRange(-2, 7)).
					Map(func(v []interface{}) commands.Command {
						return reviewCmd(v[0].(string), v[1].(int))
					})},
				{Weight: 3, Gen: gopter.CombineGens(assessable, gen.Bool()).
					Map(func(v []interface{}) commands.Command {
						return answerCmd(v[0].(string), v[1].(bool))
					})},
				{Weight: 1, Gen: gen.Const(sessionStatsCmd)},
			})
		},
	}

	properties.Property("tool calls match the study model", commands.Prop(protoCmds))
	properties.TestingRun(t)
}

func TestSubmitReview_ClampsAnyRating(t *testing.T) {
	defer mockTimeNow(studyStart)()

	properties := gopter.NewProperties(nil)
	properties.Property("rating is always on the 1-4 scale", prop.ForAll(
		func(rating int) bool {
			svc, _ := setupTestService(t)
			resp, err := svc.SubmitReview("rome-founded", rating, "")
			if err != nil {
				return false
			}
			want := progress.ClampRating(rating)
			return resp.Rating == progress.RatingName(want) && resp.Record.TimesSeen == 1
		},
		gen.IntRange(-100, 100),
	))
	properties.TestingRun(t)
}
