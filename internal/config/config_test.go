package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/danieldreier/mcp-studycoach/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestDefaults(t *testing.T) {
	cfg, err := FromViper(New())
	require.NoError(t, err)

	assert.Equal(t, &Config{
		DataFile:      "./studycoach.json",
		StorageDriver: storage.DriverJSON,
		DeckFile:      "./deck.json",
		DailyGoal:     20,
		SessionSize:   10,
		ExamSize:      10,
		ExamMinutes:   15,
		LogLevel:      "info",
	}, cfg)
	assert.Equal(t, zapcore.InfoLevel, cfg.Level())
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("STUDYCOACH_STORAGE_DRIVER", "SQLite")
	t.Setenv("STUDYCOACH_DAILY_GOAL", "35")
	t.Setenv("STUDYCOACH_EXAM_MINUTES", "0")
	t.Setenv("STUDYCOACH_LOG_LEVEL", "debug")

	cfg, err := FromViper(New())
	require.NoError(t, err)

	assert.Equal(t, storage.DriverSQLite, cfg.StorageDriver)
	assert.Equal(t, "./studycoach.db", cfg.DataFile, "default json path switches extension for sqlite")
	assert.Equal(t, 35, cfg.DailyGoal)
	assert.Equal(t, 0, cfg.ExamMinutes)
	assert.Equal(t, zapcore.DebugLevel, cfg.Level())
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("STUDYCOACH_SESSION_SIZE=4\nSTUDYCOACH_DECK_FILE=/tmp/spanish.json\n"), 0644))
	t.Setenv("STUDYCOACH_DECK_FILE", "/decks/already-set.json")
	t.Cleanup(func() { os.Unsetenv("STUDYCOACH_SESSION_SIZE") })

	require.NoError(t, LoadDotEnv(path))
	cfg, err := FromViper(New())
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.SessionSize)
	assert.Equal(t, "/decks/already-set.json", cfg.DeckFile, "existing environment wins over .env")
}

func TestLoadDotEnv_Missing(t *testing.T) {
	assert.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "nope.env")))
	assert.NoError(t, LoadDotEnv(""))
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{DataFile: "p.json", StorageDriver: "json", DailyGoal: 5, SessionSize: 3, ExamSize: 5, ExamMinutes: 10, LogLevel: "warn"}
	}

	c := valid()
	require.NoError(t, c.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown driver", func(c *Config) { c.StorageDriver = "postgres" }},
		{"empty data file", func(c *Config) { c.DataFile = "" }},
		{"zero daily goal", func(c *Config) { c.DailyGoal = 0 }},
		{"negative daily goal", func(c *Config) { c.DailyGoal = -3 }},
		{"negative session size", func(c *Config) { c.SessionSize = -1 }},
		{"zero exam size", func(c *Config) { c.ExamSize = 0 }},
		{"negative exam minutes", func(c *Config) { c.ExamMinutes = -5 }},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}

	c = valid()
	c.StorageDriver = "postgres"
	assert.ErrorIs(t, c.Validate(), storage.ErrUnknownDriver)
}
