package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// FileStorage implements Storage using a JSON file for persistence.
type FileStorage struct {
	memoryState
	filePath string
	logger   *zap.Logger
}

// NewFileStorage creates a new FileStorage instance
func NewFileStorage(filePath string, logger *zap.Logger) *FileStorage {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Debug("Creating file storage", zap.String("path", filePath))
	fs := &FileStorage{
		filePath: filePath,
		logger:   logger,
	}
	fs.snap = EmptySnapshot()
	return fs
}

// Path returns the JSON file backing the storage.
func (fs *FileStorage) Path() string {
	return fs.filePath
}

// save writes the snapshot without acquiring the lock again.
// Assumes the write lock is already held.
func (fs *FileStorage) save() error {
	fs.snap = normalizeSnapshot(fs.snap)
	fs.snap.LastUpdated = time.Now()

	dataBytes, err := json.MarshalIndent(fs.snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal storage data: %w", err)
	}

	dir := filepath.Dir(fs.filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// Write to a temporary file, then rename over the target (atomic on most systems)
	tempFile := fs.filePath + ".tmp"
	if err := os.WriteFile(tempFile, dataBytes, 0644); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to write temporary file: %w", err)
	}
	if err := os.Rename(tempFile, fs.filePath); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}

	fs.logger.Debug("Saved progress file",
		zap.String("path", fs.filePath),
		zap.Int("records", len(fs.snap.Records)),
		zap.Int("reviews", len(fs.snap.Reviews)))
	return nil
}

// Load reads the snapshot from the file. A missing file is created empty;
// an empty file yields an empty snapshot.
func (fs *FileStorage) Load() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if _, err := os.Stat(fs.filePath); os.IsNotExist(err) {
		fs.logger.Info("Progress file not found, initializing empty store", zap.String("path", fs.filePath))
		fs.snap = EmptySnapshot()
		if saveErr := fs.save(); saveErr != nil {
			return fmt.Errorf("failed to save initial empty store: %w", saveErr)
		}
		return nil
	}

	data, err := os.ReadFile(fs.filePath)
	if err != nil {
		return fmt.Errorf("failed to read storage file: %w", err)
	}
	if len(data) == 0 {
		fs.logger.Warn("Progress file is empty, initializing empty store", zap.String("path", fs.filePath))
		fs.snap = EmptySnapshot()
		return nil
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("failed to unmarshal storage data: %w", err)
	}
	fs.snap = normalizeSnapshot(snap)

	fs.logger.Info("Loaded progress file",
		zap.String("path", fs.filePath),
		zap.Int("records", len(fs.snap.Records)),
		zap.Int("mastered", len(fs.snap.Mastered)),
		zap.Int("topics", len(fs.snap.Topics)))
	return nil
}

// Save saves the snapshot to the file atomically.
func (fs *FileStorage) Save() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.save()
}

// Close is a no-op; every Save already reaches the disk.
func (fs *FileStorage) Close() error {
	return nil
}
