package types

// Config represents one engine configuration (one deployment/tenant).
type Config struct {
	// Meta information for the configuration
	Meta struct {
		ID          string `yaml:"id"`
		Name        string `yaml:"name"`
		Description string `yaml:"description,omitempty"`
		Enabled     bool   `yaml:"enabled"`
		Template    string `yaml:"template,omitempty"` // Name of the template to use
	} `yaml:"meta"`

	Engine struct {
		// Per-account verification deadline in seconds.
		OperationTimeout int `yaml:"operation_timeout"`
		// Network timeout for a single IMAP/HTTP call, in seconds.
		NetworkTimeout int `yaml:"network_timeout"`
		// Parallel account checks; keep below provider connection limits.
		MaxConcurrent int `yaml:"max_concurrent"`
		// Server-side fetch page size per folder.
		PageSize int `yaml:"page_size"`
		// Messages fetched for body matching per folder.
		BodyMatchLimit int `yaml:"body_match_limit"`
		// Messages scanned per folder during the unmapped-folder fallback.
		FallbackFolderCap int `yaml:"fallback_folder_cap"`
		// Probe POP3 when a generic account's IMAP dial fails.
		POP3Probe bool `yaml:"pop3_probe"`
	} `yaml:"engine"`

	OAuth struct {
		Google struct {
			ClientID     string `yaml:"client_id"`
			ClientSecret string `yaml:"client_secret"`
		} `yaml:"google"`
		Microsoft struct {
			ClientID     string `yaml:"client_id"`
			ClientSecret string `yaml:"client_secret"`
			Tenant       string `yaml:"tenant"`
		} `yaml:"microsoft"`
	} `yaml:"oauth"`

	Accounts struct {
		// YAML seed file with accounts and folder mappings.
		File string `yaml:"file"`
		// JSON file receiving connection-status and token writebacks.
		StatusFile string `yaml:"status_file"`
		// Environment variable holding the base64 credential key.
		SecretKeyEnv string `yaml:"secret_key_env"`
	} `yaml:"accounts"`

	Catalogs struct {
		// Optional YAML overrides; built-in defaults apply when empty.
		AntispamFile string `yaml:"antispam_file,omitempty"`
		KeywordsFile string `yaml:"keywords_file,omitempty"`
	} `yaml:"catalogs"`

	Security struct {
		TLS struct {
			MinVersion string `yaml:"min_version"`
			VerifyCert bool   `yaml:"verify_cert"`
		} `yaml:"tls"`
	} `yaml:"security"`

	Scheduling struct {
		Enabled         bool   `yaml:"enabled"`
		FrequencyEvery  string `yaml:"frequency_every"` // minute, hour, day
		FrequencyAmount int    `yaml:"frequency_amount"`
		StartNow        bool   `yaml:"start_now"`
		StopAt          string `yaml:"stop_at"` // UTC DateTime
	} `yaml:"scheduling"`

	Diagnostics struct {
		Enabled       bool   `yaml:"enabled"`
		StoragePath   string `yaml:"storage_path"`
		RetentionDays int    `yaml:"retention_days"`
	} `yaml:"diagnostics"`

	Logging struct {
		Level         string `yaml:"level"`
		Format        string `yaml:"format"` // "json", "text" or "dev"
		IncludeCaller bool   `yaml:"include_caller"`
	} `yaml:"logging"`
}

// ApplyDefaults fills unset engine limits with conservative values.
func (c *Config) ApplyDefaults() {
	if c.Engine.OperationTimeout <= 0 {
		c.Engine.OperationTimeout = 45
	}
	if c.Engine.NetworkTimeout <= 0 {
		c.Engine.NetworkTimeout = 20
	}
	if c.Engine.MaxConcurrent <= 0 {
		c.Engine.MaxConcurrent = 4
	}
	if c.Engine.PageSize <= 0 {
		c.Engine.PageSize = 100
	}
	if c.Engine.BodyMatchLimit <= 0 {
		c.Engine.BodyMatchLimit = 20
	}
	if c.Engine.FallbackFolderCap <= 0 {
		c.Engine.FallbackFolderCap = 20
	}
	if c.Scheduling.FrequencyAmount <= 0 {
		c.Scheduling.FrequencyAmount = 30
	}
	if c.Scheduling.FrequencyEvery == "" {
		c.Scheduling.FrequencyEvery = "minute"
	}
	if c.Diagnostics.RetentionDays <= 0 {
		c.Diagnostics.RetentionDays = 14
	}
	if c.Accounts.SecretKeyEnv == "" {
		c.Accounts.SecretKeyEnv = "INBOX_VERIFIER_SECRET_KEY"
	}
}
