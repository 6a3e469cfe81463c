package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/danieldreier/mcp-studycoach/internal/config"
	"github.com/danieldreier/mcp-studycoach/internal/content"
	"github.com/danieldreier/mcp-studycoach/internal/storage"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const studyCoachServerInfo = `
This is a study coach for self-learners. It schedules flashcard reviews with
spaced repetition, quizzes the learner on weak topics, runs timed practice
exams and tracks a daily study streak.

When using this server, follow this workflow:

1. SELECTION PHASE:
   - Use get_due_items for regular review, get_weak_items to drill weak topics
   - Present only the front of one item at a time
   - Never reveal the back until the learner has answered

2. ANSWER PHASE:
   - For items with a question, send the learner's answer to answer_question;
     the server scores it and updates the schedule
   - For plain flashcards, compare the answer yourself and call submit_review
     with a rating: 1 wrong or blank, 2 partially right, 3 right, 4 right at once

3. EXAM PHASE:
   - start_exam returns one question at a time; send each answer with
     submit_exam_answer until the result arrives
   - Mention the remaining time when it gets short
   - stop_exam ends the exam early; unanswered questions do not count

4. PROGRESS PHASE:
   - Use get_session_stats to report the streak and the daily goal
   - Celebrate a met goal and suggest weak topics for the next session
`

var (
	v = config.New()

	cfg    *config.Config
	logger *zap.Logger

	rootCmd = &cobra.Command{
		Use:   "studycoach",
		Short: "Spaced-repetition study coach served over MCP",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return setup(cmd)
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			if logger != nil {
				_ = logger.Sync()
			}
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
		SilenceUsage: true,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve the study coach over stdio (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}

	importCmd = &cobra.Command{
		Use:   "import <workbook.xlsx|items.csv> <deck.json>",
		Short: "Import study items from a spreadsheet into a deck file",
		Args:  cobra.ExactArgs(2),
		RunE:  runImport,
	}

	templateCmd = &cobra.Command{
		Use:   "template <workbook.xlsx>",
		Short: "Write an empty import workbook with the expected header row",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := content.ExportTemplate(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Template written to %s\n", args[0])
			return nil
		},
	}

	statsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Print streak, goal and deck progress as JSON",
		Args:  cobra.NoArgs,
		RunE:  runStats,
	}
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "optional config file (yaml, toml or json)")
	pf.String("env-file", ".env", "optional .env file with STUDYCOACH_* variables")
	pf.String("data-file", "./studycoach.json", "path to the progress data file")
	pf.String("storage-driver", storage.DriverJSON, "progress storage: json or sqlite")
	pf.String("deck-file", "./deck.json", "path to the JSON deck")
	pf.Int("daily-goal", 20, "items to complete per day")
	pf.Int("session-size", 10, "items returned by one selection")
	pf.Int("exam-size", 10, "questions per exam")
	pf.Int("exam-minutes", 15, "exam time limit in minutes, 0 for none")
	pf.String("log-level", "info", "log level: debug, info, warn or error")

	for key, flag := range map[string]string{
		config.KeyDataFile:      "data-file",
		config.KeyStorageDriver: "storage-driver",
		config.KeyDeckFile:      "deck-file",
		config.KeyDailyGoal:     "daily-goal",
		config.KeySessionSize:   "session-size",
		config.KeyExamSize:      "exam-size",
		config.KeyExamMinutes:   "exam-minutes",
		config.KeyLogLevel:      "log-level",
	} {
		if err := v.BindPFlag(key, pf.Lookup(flag)); err != nil {
			panic(err)
		}
	}

	importCmd.Flags().String("sheet", "Sheet1", "worksheet to read from an xlsx workbook")
	importCmd.Flags().String("name", "", "deck name, defaults to the file name")
	importCmd.Flags().Int("start-row", 2, "first data row, 1-based")

	rootCmd.AddCommand(serveCmd, importCmd, templateCmd, statsCmd)
}

// setup loads the .env file and config, then builds the logger.
func setup(cmd *cobra.Command) error {
	envFile, _ := cmd.Flags().GetString("env-file")
	if err := config.LoadDotEnv(envFile); err != nil {
		return err
	}
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	c, err := config.FromViper(v)
	if err != nil {
		return err
	}
	cfg = c

	logger, err = newLogger(cfg.Level())
	return err
}

// newLogger builds a development logger. Output goes to stderr; stdout
// belongs to the MCP transport.
func newLogger(level zapcore.Level) (*zap.Logger, error) {
	zapConfig := zap.NewDevelopmentConfig()
	zapConfig.Level = zap.NewAtomicLevelAt(level)
	l, err := zapConfig.Build(zap.AddStacktrace(zapcore.ErrorLevel))
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return l, nil
}

// openService opens storage and the deck and builds the study service.
func openService(cfg *config.Config, logger *zap.Logger) (*StudyService, error) {
	st, err := storage.Open(cfg.StorageDriver, cfg.DataFile, logger)
	if err != nil {
		return nil, err
	}
	if err := st.Load(); err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to load progress from %s: %w", cfg.DataFile, err)
	}

	deck, err := content.LoadDeck(cfg.DeckFile)
	if errors.Is(err, os.ErrNotExist) {
		logger.Warn("Deck file not found, starting with an empty deck", zap.String("path", cfg.DeckFile))
		deck, err = content.NewDeck("empty", nil)
	}
	if err != nil {
		st.Close()
		return nil, err
	}

	return NewStudyService(st, deck, ServiceOptions{
		DailyGoal:    cfg.DailyGoal,
		SessionSize:  cfg.SessionSize,
		ExamSize:     cfg.ExamSize,
		ExamDuration: time.Duration(cfg.ExamMinutes) * time.Minute,
	}, logger), nil
}

// newMCPServer registers the tools and resources of svc.
func newMCPServer(svc *StudyService) *server.MCPServer {
	s := server.NewMCPServer(
		"Study Coach MCP",
		"1.0.0",
		server.WithInstructions(studyCoachServerInfo),
		server.WithResourceCapabilities(true, true),
		server.WithToolCapabilities(true),
		server.WithLogging(),
	)

	ctx := withService(context.Background(), svc)
	bind := func(h server.ToolHandlerFunc) server.ToolHandlerFunc {
		return func(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return h(ctx, request)
		}
	}
	filterOpts := []mcp.ToolOption{
		mcp.WithString("subject",
			mcp.Description("Only items of this subject: language, science, math, history, programming or general"),
		),
		mcp.WithString("topic",
			mcp.Description("Only items of this topic (case-insensitive)"),
		),
	}

	s.AddTool(mcp.NewTool("get_due_items", append([]mcp.ToolOption{
		mcp.WithDescription(
			"Get the items due for review with session statistics. " +
				"Show ONLY the front of one item at a time and ask the learner to answer " +
				"before revealing anything else.",
		),
		mcp.WithNumber("limit", mcp.Description("Maximum number of items, defaults to the session size")),
	}, filterOpts...)...), bind(handleGetDueItems))

	s.AddTool(mcp.NewTool("get_weak_items", append([]mcp.ToolOption{
		mcp.WithDescription(
			"Get items from the topics with the lowest quiz accuracy. " +
				"When no topic is weak yet, items are drawn from the whole pool.",
		),
		mcp.WithNumber("limit", mcp.Description("Maximum number of items, defaults to the session size")),
	}, filterOpts...)...), bind(handleGetWeakItems))

	s.AddTool(mcp.NewTool("submit_review",
		mcp.WithDescription(
			"Record a self-rated review of a flashcard and reschedule it. "+
				"Show the back of the card after submitting.",
		),
		mcp.WithString("item_id", mcp.Required(), mcp.Description("The ID of the item being reviewed")),
		mcp.WithNumber("rating", mcp.Required(), mcp.Description("Rating from 1-4: Again=1, Hard=2, Good=3, Easy=4")),
		mcp.WithString("answer", mcp.Description("The answer provided by the learner")),
	), bind(handleSubmitReview))

	s.AddTool(mcp.NewTool("answer_question",
		mcp.WithDescription(
			"Score the learner's answer to an item's question. Choice questions take the "+
				"0-based option index, true/false questions also take true or false, fill-in "+
				"questions take the answers separated by commas. The item is rescheduled from the score.",
		),
		mcp.WithString("item_id", mcp.Required(), mcp.Description("The ID of the item being answered")),
		mcp.WithString("answer", mcp.Required(), mcp.Description("The learner's answer")),
	), bind(handleAnswerQuestion))

	s.AddTool(mcp.NewTool("start_exam", append([]mcp.ToolOption{
		mcp.WithDescription("Start a timed exam over items with questions and return the first question."),
		mcp.WithNumber("size", mcp.Description("Number of questions, defaults to the configured exam size")),
		mcp.WithNumber("minutes", mcp.Description("Time limit in minutes, negative for none")),
	}, filterOpts...)...), bind(handleStartExam))

	s.AddTool(mcp.NewTool("submit_exam_answer",
		mcp.WithDescription("Answer the current exam question. The final result is returned after the last question or when time runs out."),
		mcp.WithString("exam_id", mcp.Required(), mcp.Description("The ID returned by start_exam")),
		mcp.WithString("answer", mcp.Description("The learner's answer, blank to skip")),
	), bind(handleSubmitExamAnswer))

	s.AddTool(mcp.NewTool("stop_exam",
		mcp.WithDescription("End the running exam early. Unanswered questions are not counted."),
		mcp.WithString("exam_id", mcp.Required(), mcp.Description("The ID returned by start_exam")),
	), bind(handleStopExam))

	s.AddTool(mcp.NewTool("get_session_stats",
		mcp.WithDescription("Get the study streak, daily goal progress and deck statistics."),
	), bind(handleGetSessionStats))

	s.AddTool(mcp.NewTool("list_exam_history",
		mcp.WithDescription("List past exam results, newest first."),
		mcp.WithNumber("limit", mcp.Description("Maximum number of exams to return")),
	), bind(handleListExamHistory))

	s.AddResource(mcp.NewResource(weakTopicsURI, "weak-topics",
		mcp.WithResourceDescription("Topics with low quiz accuracy, weakest first"),
		mcp.WithMIMEType("application/json"),
	), func(_ context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return handleWeakTopicsResource(ctx, request)
	})

	return s
}

func runServe(ctx context.Context) error {
	svc, err := openService(cfg, logger)
	if err != nil {
		return err
	}

	logger.Info("Serving study coach over stdio",
		zap.String("data_file", cfg.DataFile),
		zap.String("storage_driver", cfg.StorageDriver),
		zap.String("deck_file", cfg.DeckFile))

	serveErr := server.ServeStdio(newMCPServer(svc))
	if err := svc.Close(); err != nil {
		logger.Error("Failed to close study service", zap.Error(err))
	}
	if serveErr != nil && !errors.Is(serveErr, context.Canceled) {
		return fmt.Errorf("error serving MCP server: %w", serveErr)
	}
	return nil
}

func runImport(cmd *cobra.Command, args []string) error {
	importConfig := content.DefaultImportConfig()
	importConfig.FilePath = args[0]
	importConfig.SheetName, _ = cmd.Flags().GetString("sheet")
	importConfig.DeckName, _ = cmd.Flags().GetString("name")
	importConfig.StartRow, _ = cmd.Flags().GetInt("start-row")

	deck, result, err := content.ImportWorkbook(importConfig)
	if err != nil {
		return err
	}
	for _, rowErr := range result.Errors {
		logger.Warn("Skipped row", zap.String("error", rowErr))
	}
	if err := content.SaveDeck(args[1], deck); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Imported %d of %d rows into %s (%d skipped)\n",
		result.Imported, result.TotalProcessed, args[1], result.Skipped)
	return nil
}

func runStats(cmd *cobra.Command, _ []string) error {
	svc, err := openService(cfg, logger)
	if err != nil {
		return err
	}
	defer svc.Storage.Close()

	jsonBytes, err := json.MarshalIndent(svc.GetSessionStats(), "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(jsonBytes))
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
