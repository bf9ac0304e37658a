package diaglog

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/altafino/inbox-verifier/internal/types"
	"github.com/google/uuid"
)

// FileRecorder implements Recorder on date-partitioned JSON files.
type FileRecorder struct {
	cfg         *types.Config
	logger      *slog.Logger
	storagePath string
	mu          sync.Mutex
}

// NewFileRecorder creates a file-based diagnostics recorder
func NewFileRecorder(cfg *types.Config, logger *slog.Logger) (*FileRecorder, error) {
	storagePath := cfg.Diagnostics.StoragePath

	if err := os.MkdirAll(storagePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create diagnostics directory: %w", err)
	}

	return &FileRecorder{
		cfg:         cfg,
		logger:      logger,
		storagePath: storagePath,
	}, nil
}

// Record appends a diagnostic to the current day's JSON file.
func (f *FileRecorder) Record(d Diagnostic) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	if d.Time.IsZero() {
		d.Time = time.Now().UTC()
	}

	dateStr := time.Now().UTC().Format("2006-01-02")
	filename := fmt.Sprintf("diag_%s_%s.json", d.ConfigID, dateStr)
	filePath := filepath.Join(f.storagePath, filename)

	var entries []Diagnostic
	if data, readErr := os.ReadFile(filePath); readErr == nil {
		if err := json.Unmarshal(data, &entries); err != nil {
			// Unparseable file: keep verifying, start a fresh list.
			f.logger.Warn("diagnostics file couldn't be parsed, starting fresh",
				"file", filePath,
				"error", err)
			entries = nil
		}
	}

	entries = append(entries, d)

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal diagnostics: %w", err)
	}
	if err := os.WriteFile(filePath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write diagnostics file: %w", err)
	}

	f.logger.Debug("recorded diagnostic",
		"id", d.ID,
		"account_id", d.AccountID,
		"stage", d.Stage,
		"folder", d.Folder,
	)
	return nil
}

// List retrieves diagnostics matching all given filters.
func (f *FileRecorder) List(filters map[string]string) ([]Diagnostic, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var all []Diagnostic

	files, err := os.ReadDir(f.storagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read diagnostics directory: %w", err)
	}

	for _, file := range files {
		if file.IsDir() || filepath.Ext(file.Name()) != ".json" {
			continue
		}

		filePath := filepath.Join(f.storagePath, file.Name())
		data, err := os.ReadFile(filePath)
		if err != nil {
			f.logger.Warn("failed to read diagnostics file", "file", filePath, "error", err)
			continue
		}

		var entries []Diagnostic
		if err := json.Unmarshal(data, &entries); err != nil {
			f.logger.Warn("failed to parse diagnostics file", "file", filePath, "error", err)
			continue
		}
		all = append(all, entries...)
	}

	if len(filters) == 0 {
		return all, nil
	}

	var filtered []Diagnostic
	for _, d := range all {
		if matchesFilters(d, filters) {
			filtered = append(filtered, d)
		}
	}
	return filtered, nil
}

func matchesFilters(d Diagnostic, filters map[string]string) bool {
	for key, value := range filters {
		switch key {
		case "config_id":
			if d.ConfigID != value {
				return false
			}
		case "account_id":
			if d.AccountID != value {
				return false
			}
		case "provider":
			if d.Provider != value {
				return false
			}
		case "folder":
			if d.Folder != value {
				return false
			}
		case "stage":
			if d.Stage != value {
				return false
			}
		}
	}
	return true
}

// CleanupOld removes diagnostic files older than the retention period.
func (f *FileRecorder) CleanupOld() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	retentionDays := f.cfg.Diagnostics.RetentionDays
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)

	files, err := os.ReadDir(f.storagePath)
	if err != nil {
		return fmt.Errorf("failed to read diagnostics directory: %w", err)
	}

	for _, file := range files {
		if file.IsDir() || filepath.Ext(file.Name()) != ".json" {
			continue
		}

		// Filenames carry the date: diag_<configid>_YYYY-MM-DD.json
		name := file.Name()
		fileDate := parseDateFromName(name)
		if fileDate.IsZero() {
			info, statErr := file.Info()
			if statErr != nil {
				continue
			}
			fileDate = info.ModTime()
		}

		if fileDate.Before(cutoff) {
			filePath := filepath.Join(f.storagePath, name)
			if err := os.Remove(filePath); err != nil {
				f.logger.Warn("failed to delete old diagnostics file", "file", filePath, "error", err)
				continue
			}
			f.logger.Debug("deleted old diagnostics file", "file", filePath)
		}
	}

	return nil
}

func parseDateFromName(name string) time.Time {
	if len(name) < 10 {
		return time.Time{}
	}
	for i := 0; i <= len(name)-10; i++ {
		if d, err := time.Parse("2006-01-02", name[i:i+10]); err == nil {
			return d
		}
	}
	return time.Time{}
}

// Close implements the Recorder interface
func (f *FileRecorder) Close() error {
	// No resources to release for file-based recorder
	return nil
}
