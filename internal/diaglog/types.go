// Package diaglog records the errors the verification engine deliberately
// swallows: per-folder search failures, auth problems, transport errors.
// Adapters degrade to empty results; this log is the audit trail.
package diaglog

import (
	"time"
)

// Diagnostic is one swallowed verification error.
type Diagnostic struct {
	ID        string    `json:"id"`
	ConfigID  string    `json:"config_id"`
	AccountID string    `json:"account_id"`
	Email     string    `json:"email"`
	Provider  string    `json:"provider"`
	Folder    string    `json:"folder,omitempty"`
	Stage     string    `json:"stage"` // connect, auth, token_refresh, select_folder, search, fetch
	Message   string    `json:"message"`
	Time      time.Time `json:"time"`
}

// Recorder defines the interface for diagnostic recording
type Recorder interface {
	// Record appends a diagnostic entry
	Record(d Diagnostic) error

	// List retrieves diagnostics based on filters
	List(filters map[string]string) ([]Diagnostic, error)

	// CleanupOld removes diagnostics older than the retention period
	CleanupOld() error

	// Close releases any resources used by the recorder
	Close() error
}
