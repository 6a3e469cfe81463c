// Package main provides the study coach MCP server.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/danieldreier/mcp-studycoach/internal/assessment"
	"github.com/danieldreier/mcp-studycoach/internal/scheduling"
	"github.com/mark3labs/mcp-go/mcp"
)

type contextKey string

// serviceKey carries the *StudyService through handler contexts.
const serviceKey contextKey = "service"

// weakTopicsURI is the resource listing the weak topics.
const weakTopicsURI = "studycoach://topics/weak"

// withService returns a context carrying s for the handlers.
func withService(ctx context.Context, s *StudyService) context.Context {
	return context.WithValue(ctx, serviceKey, s)
}

func serviceFrom(ctx context.Context) (*StudyService, bool) {
	s, ok := ctx.Value(serviceKey).(*StudyService)
	return s, ok && s != nil
}

// jsonResult marshals v as indented JSON into a text result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

// errorResult reports err to the client as a JSON error object.
func errorResult(prefix string, err error) (*mcp.CallToolResult, error) {
	return jsonResult(map[string]string{"error": fmt.Sprintf("%s: %v", prefix, err)})
}

func intArg(request mcp.CallToolRequest, name string) int {
	if f, ok := request.Params.Arguments[name].(float64); ok {
		return int(f)
	}
	return 0
}

func stringArg(request mcp.CallToolRequest, name string) string {
	s, _ := request.Params.Arguments[name].(string)
	return s
}

// handleGetDueItems handles the get_due_items tool request by selecting the
// items due for review, optionally narrowed to a subject and topic.
func handleGetDueItems(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s, ok := serviceFrom(ctx)
	if !ok {
		return mcp.NewToolResultText("Error: Service not available"), nil
	}

	resp, err := s.GetDueItems(stringArg(request, "subject"), stringArg(request, "topic"), intArg(request, "limit"))
	if err != nil {
		return errorResult("Error getting due items", err)
	}
	return jsonResult(resp)
}

// handleGetWeakItems handles the get_weak_items tool request. Items come from
// topics with low quiz accuracy, or from the whole pool when none is weak.
func handleGetWeakItems(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s, ok := serviceFrom(ctx)
	if !ok {
		return mcp.NewToolResultText("Error: Service not available"), nil
	}

	resp, err := s.GetWeakItems(stringArg(request, "subject"), stringArg(request, "topic"), intArg(request, "limit"))
	if err != nil {
		return errorResult("Error getting weak items", err)
	}
	return jsonResult(resp)
}

// handleSubmitReview handles the submit_review tool request. The rating is
// clamped to 1-4.
func handleSubmitReview(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	itemID, ok := request.Params.Arguments["item_id"].(string)
	if !ok || itemID == "" {
		return mcp.NewToolResultText("Missing required parameter: item_id"), nil
	}
	ratingFloat, ok := request.Params.Arguments["rating"].(float64)
	if !ok {
		return mcp.NewToolResultText("Missing required parameter: rating"), nil
	}

	s, ok := serviceFrom(ctx)
	if !ok {
		return mcp.NewToolResultText("Error: Service not available"), nil
	}

	resp, err := s.SubmitReview(itemID, int(ratingFloat), stringArg(request, "answer"))
	if err != nil {
		return errorResult("Error submitting review", err)
	}
	return jsonResult(resp)
}

// handleAnswerQuestion handles the answer_question tool request by scoring the
// answer against the item's question.
func handleAnswerQuestion(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	itemID, ok := request.Params.Arguments["item_id"].(string)
	if !ok || itemID == "" {
		return mcp.NewToolResultText("Missing required parameter: item_id"), nil
	}
	answer, ok := request.Params.Arguments["answer"].(string)
	if !ok {
		return mcp.NewToolResultText("Missing required parameter: answer"), nil
	}

	s, ok := serviceFrom(ctx)
	if !ok {
		return mcp.NewToolResultText("Error: Service not available"), nil
	}

	resp, err := s.AnswerQuestion(itemID, answer)
	if err != nil {
		return errorResult("Error scoring answer", err)
	}
	return jsonResult(resp)
}

func handleStartExam(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s, ok := serviceFrom(ctx)
	if !ok {
		return mcp.NewToolResultText("Error: Service not available"), nil
	}

	resp, err := s.StartExam(
		stringArg(request, "subject"),
		stringArg(request, "topic"),
		intArg(request, "size"),
		intArg(request, "minutes"),
	)
	if err != nil {
		return errorResult("Error starting exam", err)
	}
	return jsonResult(resp)
}

// handleSubmitExamAnswer answers the current question of a running exam. An
// exam that ran out of time is reported with its final result.
func handleSubmitExamAnswer(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	examID, ok := request.Params.Arguments["exam_id"].(string)
	if !ok || examID == "" {
		return mcp.NewToolResultText("Missing required parameter: exam_id"), nil
	}

	s, ok := serviceFrom(ctx)
	if !ok {
		return mcp.NewToolResultText("Error: Service not available"), nil
	}

	resp, err := s.SubmitExamAnswer(examID, stringArg(request, "answer"))
	if err != nil && !(errors.Is(err, assessment.ErrExamFinished) && resp.ExamID != "") {
		return errorResult("Error submitting exam answer", err)
	}
	return jsonResult(resp)
}

func handleStopExam(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	examID, ok := request.Params.Arguments["exam_id"].(string)
	if !ok || examID == "" {
		return mcp.NewToolResultText("Missing required parameter: exam_id"), nil
	}

	s, ok := serviceFrom(ctx)
	if !ok {
		return mcp.NewToolResultText("Error: Service not available"), nil
	}

	resp, err := s.StopExam(examID)
	if err != nil {
		return errorResult("Error stopping exam", err)
	}
	return jsonResult(resp)
}

// handleGetSessionStats reports streak, daily goal and deck progress.
func handleGetSessionStats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s, ok := serviceFrom(ctx)
	if !ok {
		return mcp.NewToolResultText("Error: Service not available"), nil
	}
	return jsonResult(s.GetSessionStats())
}

func handleListExamHistory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s, ok := serviceFrom(ctx)
	if !ok {
		return mcp.NewToolResultText("Error: Service not available"), nil
	}
	return jsonResult(s.ListExamHistory(intArg(request, "limit")))
}

// handleWeakTopicsResource lists the weak topics, weakest first, so clients
// can pick a topic to practice.
func handleWeakTopicsResource(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	s, ok := serviceFrom(ctx)
	if !ok {
		return nil, fmt.Errorf("service not available")
	}

	weak := s.WeakTopics()
	if weak == nil {
		weak = []scheduling.WeakTopic{}
	}
	jsonBytes, err := json.MarshalIndent(weak, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("error marshaling weak topics to JSON: %w", err)
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      weakTopicsURI,
			MIMEType: "application/json",
			Text:     string(jsonBytes),
		},
	}, nil
}
