package validation

import (
	"testing"

	"github.com/altafino/inbox-verifier/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *types.Config {
	cfg := &types.Config{}
	cfg.Meta.ID = "prod-eu"
	cfg.Meta.Name = "Production EU"
	cfg.Accounts.File = "/etc/inbox-verifier/accounts.yaml"
	cfg.Accounts.StatusFile = "/var/lib/inbox-verifier/status.json"
	cfg.ApplyDefaults()
	return cfg
}

func TestValidateConfigAcceptsDefaults(t *testing.T) {
	require.NoError(t, ValidateConfig(validConfig()))
}

func TestValidateConfigRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*types.Config)
	}{
		{"missing id", func(c *types.Config) { c.Meta.ID = "" }},
		{"invalid id characters", func(c *types.Config) { c.Meta.ID = "prod eu!" }},
		{"missing name", func(c *types.Config) { c.Meta.Name = "" }},
		{"zero operation timeout", func(c *types.Config) { c.Engine.OperationTimeout = -1 }},
		{"network exceeds operation timeout", func(c *types.Config) { c.Engine.NetworkTimeout = c.Engine.OperationTimeout + 1 }},
		{"zero max concurrent", func(c *types.Config) { c.Engine.MaxConcurrent = -1 }},
		{"missing accounts file", func(c *types.Config) { c.Accounts.File = "" }},
		{"missing status file", func(c *types.Config) { c.Accounts.StatusFile = "" }},
		{"bad tls version", func(c *types.Config) { c.Security.TLS.MinVersion = "1.0" }},
		{"bad log level", func(c *types.Config) { c.Logging.Level = "verbose" }},
		{"bad log format", func(c *types.Config) { c.Logging.Format = "xml" }},
		{"bad frequency", func(c *types.Config) {
			c.Scheduling.Enabled = true
			c.Scheduling.FrequencyEvery = "fortnight"
		}},
		{"bad stop time", func(c *types.Config) {
			c.Scheduling.Enabled = true
			c.Scheduling.StopAt = "tomorrow"
		}},
		{"diagnostics without path", func(c *types.Config) {
			c.Diagnostics.Enabled = true
			c.Diagnostics.StoragePath = ""
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			assert.Error(t, ValidateConfig(cfg))
		})
	}
}

func TestValidateConfigDisabledSectionsSkipped(t *testing.T) {
	cfg := validConfig()
	cfg.Scheduling.Enabled = false
	cfg.Scheduling.FrequencyEvery = "fortnight"
	cfg.Diagnostics.Enabled = false
	cfg.Diagnostics.StoragePath = ""

	assert.NoError(t, ValidateConfig(cfg))
}
