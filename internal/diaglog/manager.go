package diaglog

import (
	"fmt"
	"log/slog"

	"github.com/altafino/inbox-verifier/internal/types"
)

// Manager fronts the configured Recorder implementation and fills in the
// config ID on every record.
type Manager struct {
	cfg    *types.Config
	logger *slog.Logger
	impl   Recorder
}

// NewManager creates a new diagnostics manager
func NewManager(cfg *types.Config, logger *slog.Logger) (*Manager, error) {
	if !cfg.Diagnostics.Enabled {
		logger.Debug("verification diagnostics recording is disabled")
		return &Manager{
			cfg:    cfg,
			logger: logger,
			impl:   &noopRecorder{},
		}, nil
	}

	impl, err := NewFileRecorder(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize diagnostics recorder: %w", err)
	}

	return &Manager{
		cfg:    cfg,
		logger: logger,
		impl:   impl,
	}, nil
}

// Record appends a diagnostic entry
func (m *Manager) Record(d Diagnostic) error {
	if d.ConfigID == "" {
		d.ConfigID = m.cfg.Meta.ID
	}
	return m.impl.Record(d)
}

// List retrieves diagnostics based on filters
func (m *Manager) List(filters map[string]string) ([]Diagnostic, error) {
	return m.impl.List(filters)
}

// CleanupOld removes diagnostics older than the retention period
func (m *Manager) CleanupOld() error {
	return m.impl.CleanupOld()
}

// Close releases any resources used by the recorder
func (m *Manager) Close() error {
	return m.impl.Close()
}

// noopRecorder is used when diagnostics recording is disabled
type noopRecorder struct{}

func (n *noopRecorder) Record(d Diagnostic) error                          { return nil }
func (n *noopRecorder) List(filters map[string]string) ([]Diagnostic, error) { return nil, nil }
func (n *noopRecorder) CleanupOld() error                                  { return nil }
func (n *noopRecorder) Close() error                                       { return nil }
