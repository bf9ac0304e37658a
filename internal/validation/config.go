package validation

import (
	"fmt"
	"time"

	"github.com/altafino/inbox-verifier/internal/types"
)

// ValidateConfig performs validation on a single configuration. Call after
// ApplyDefaults so only genuinely bad values fail.
func ValidateConfig(cfg *types.Config) error {
	if err := validateMeta(cfg); err != nil {
		return fmt.Errorf("meta validation failed: %w", err)
	}

	if err := validateEngine(cfg); err != nil {
		return fmt.Errorf("engine validation failed: %w", err)
	}

	if err := validateAccounts(cfg); err != nil {
		return fmt.Errorf("accounts validation failed: %w", err)
	}

	if err := validateSecurity(cfg); err != nil {
		return fmt.Errorf("security validation failed: %w", err)
	}

	if err := validateLogging(cfg); err != nil {
		return fmt.Errorf("logging validation failed: %w", err)
	}

	if err := validateScheduling(cfg); err != nil {
		return fmt.Errorf("scheduling validation failed: %w", err)
	}

	if err := validateDiagnostics(cfg); err != nil {
		return fmt.Errorf("diagnostics validation failed: %w", err)
	}

	return nil
}

func validateMeta(cfg *types.Config) error {
	if cfg.Meta.ID == "" {
		return fmt.Errorf("meta.id is required")
	}

	if !isValidID(cfg.Meta.ID) {
		return fmt.Errorf("meta.id contains invalid characters (use only alphanumeric, dash, underscore)")
	}

	if cfg.Meta.Name == "" {
		return fmt.Errorf("meta.name is required")
	}

	return nil
}

func validateEngine(cfg *types.Config) error {
	if cfg.Engine.OperationTimeout <= 0 {
		return fmt.Errorf("engine.operation_timeout must be positive")
	}

	if cfg.Engine.NetworkTimeout <= 0 {
		return fmt.Errorf("engine.network_timeout must be positive")
	}

	if cfg.Engine.NetworkTimeout > cfg.Engine.OperationTimeout {
		return fmt.Errorf("engine.network_timeout must not exceed engine.operation_timeout")
	}

	if cfg.Engine.MaxConcurrent <= 0 {
		return fmt.Errorf("engine.max_concurrent must be positive")
	}

	if cfg.Engine.PageSize <= 0 {
		return fmt.Errorf("engine.page_size must be positive")
	}

	if cfg.Engine.BodyMatchLimit <= 0 {
		return fmt.Errorf("engine.body_match_limit must be positive")
	}

	if cfg.Engine.FallbackFolderCap <= 0 {
		return fmt.Errorf("engine.fallback_folder_cap must be positive")
	}

	return nil
}

func validateAccounts(cfg *types.Config) error {
	if cfg.Accounts.File == "" {
		return fmt.Errorf("accounts.file is required")
	}

	if cfg.Accounts.StatusFile == "" {
		return fmt.Errorf("accounts.status_file is required")
	}

	if cfg.Accounts.SecretKeyEnv == "" {
		return fmt.Errorf("accounts.secret_key_env is required")
	}

	return nil
}

func validateSecurity(cfg *types.Config) error {
	switch cfg.Security.TLS.MinVersion {
	case "", "1.2", "1.3":
	default:
		return fmt.Errorf("security.tls.min_version must be '1.2' or '1.3'")
	}

	return nil
}

func validateLogging(cfg *types.Config) error {
	validLevels := map[string]bool{
		"":      true,
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	if !validLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}

	validFormats := map[string]bool{
		"":     true,
		"text": true,
		"json": true,
		"dev":  true,
	}

	if !validFormats[cfg.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: text, json, dev")
	}

	return nil
}

func validateScheduling(cfg *types.Config) error {
	if !cfg.Scheduling.Enabled {
		return nil
	}

	switch cfg.Scheduling.FrequencyEvery {
	case "minute", "hour", "day", "week":
	default:
		return fmt.Errorf("scheduling.frequency_every must be one of: minute, hour, day, week")
	}

	if cfg.Scheduling.FrequencyAmount <= 0 {
		return fmt.Errorf("scheduling.frequency_amount must be positive")
	}

	if cfg.Scheduling.StopAt != "" {
		if _, err := time.Parse(time.RFC3339, cfg.Scheduling.StopAt); err != nil {
			return fmt.Errorf("scheduling.stop_at must be RFC3339: %w", err)
		}
	}

	return nil
}

func validateDiagnostics(cfg *types.Config) error {
	if !cfg.Diagnostics.Enabled {
		return nil
	}

	if cfg.Diagnostics.StoragePath == "" {
		return fmt.Errorf("diagnostics.storage_path is required when diagnostics are enabled")
	}

	if cfg.Diagnostics.RetentionDays <= 0 {
		return fmt.Errorf("diagnostics.retention_days must be positive")
	}

	return nil
}

func isValidID(id string) bool {
	for _, r := range id {
		valid := r >= 'a' && r <= 'z' ||
			r >= 'A' && r <= 'Z' ||
			r >= '0' && r <= '9' ||
			r == '-' || r == '_'
		if !valid {
			return false
		}
	}
	return true
}
