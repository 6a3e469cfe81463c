// Package config resolves the study coach settings from flags, environment
// variables and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/danieldreier/mcp-studycoach/internal/session"
	"github.com/danieldreier/mcp-studycoach/internal/storage"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

// EnvPrefix is prepended to every environment variable, e.g. STUDYCOACH_DATA_FILE.
const EnvPrefix = "studycoach"

// Keys understood by Load. Flags use the same names with dashes.
const (
	KeyDataFile      = "data_file"
	KeyStorageDriver = "storage_driver"
	KeyDeckFile      = "deck_file"
	KeyDailyGoal     = "daily_goal"
	KeySessionSize   = "session_size"
	KeyExamSize      = "exam_size"
	KeyExamMinutes   = "exam_minutes"
	KeyLogLevel      = "log_level"
)

// Config is the configuration to start the study coach.
type Config struct {
	// DataFile is where progress is persisted
	DataFile string
	// StorageDriver is "json" or "sqlite"
	StorageDriver string
	// DeckFile is the JSON deck with the study items
	DeckFile string
	// DailyGoal is the number of items per day
	DailyGoal int
	// SessionSize caps the items returned by one selection
	SessionSize int
	// ExamSize caps the questions of one exam
	ExamSize int
	// ExamMinutes is the exam time limit; 0 disables it
	ExamMinutes int
	// LogLevel is a zap level name
	LogLevel string
}

// New returns a viper instance with defaults and environment binding set up.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault(KeyDataFile, "./studycoach.json")
	v.SetDefault(KeyStorageDriver, storage.DriverJSON)
	v.SetDefault(KeyDeckFile, "./deck.json")
	v.SetDefault(KeyDailyGoal, session.DefaultDailyGoal)
	v.SetDefault(KeySessionSize, 10)
	v.SetDefault(KeyExamSize, 10)
	v.SetDefault(KeyExamMinutes, 15)
	v.SetDefault(KeyLogLevel, "info")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// LoadDotEnv reads KEY=value pairs from path into the process environment.
// Variables that are already set win. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// FromViper builds and validates a Config.
func FromViper(v *viper.Viper) (*Config, error) {
	c := &Config{
		DataFile:      v.GetString(KeyDataFile),
		StorageDriver: strings.ToLower(v.GetString(KeyStorageDriver)),
		DeckFile:      v.GetString(KeyDeckFile),
		DailyGoal:     v.GetInt(KeyDailyGoal),
		SessionSize:   v.GetInt(KeySessionSize),
		ExamSize:      v.GetInt(KeyExamSize),
		ExamMinutes:   v.GetInt(KeyExamMinutes),
		LogLevel:      strings.ToLower(v.GetString(KeyLogLevel)),
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks the config and fills in derived values.
func (c *Config) Validate() error {
	switch c.StorageDriver {
	case storage.DriverJSON, storage.DriverSQLite:
	default:
		return fmt.Errorf("%w: %q", storage.ErrUnknownDriver, c.StorageDriver)
	}
	if c.DataFile == "" {
		return errors.New("data file must not be empty")
	}
	if c.StorageDriver == storage.DriverSQLite && strings.HasSuffix(c.DataFile, ".json") {
		c.DataFile = strings.TrimSuffix(c.DataFile, ".json") + ".db"
	}
	if c.DailyGoal < 1 {
		return fmt.Errorf("daily goal must be at least 1, got %d", c.DailyGoal)
	}
	if c.SessionSize < 0 {
		return fmt.Errorf("session size must not be negative, got %d", c.SessionSize)
	}
	if c.ExamSize < 1 {
		return fmt.Errorf("exam size must be at least 1, got %d", c.ExamSize)
	}
	if c.ExamMinutes < 0 {
		return fmt.Errorf("exam minutes must not be negative, got %d", c.ExamMinutes)
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	return nil
}

// Level returns the parsed log level, defaulting to info.
func (c *Config) Level() zapcore.Level {
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return zapcore.InfoLevel
	}
	return level
}
