package models

import (
	"fmt"
	"time"
)

// ProviderKind identifies which mailbox backend an account lives on.
type ProviderKind string

const (
	ProviderGmail       ProviderKind = "gmail"
	ProviderOutlook     ProviderKind = "outlook"
	ProviderYahoo       ProviderKind = "yahoo"
	ProviderGenericIMAP ProviderKind = "generic_imap"
)

// AuthKind identifies how an account authenticates.
type AuthKind string

const (
	AuthOAuth    AuthKind = "oauth"
	AuthPassword AuthKind = "password"
	AuthIMAP     AuthKind = "imap"
)

// ConnectionStatus is the durable health signal written back per account.
type ConnectionStatus string

const (
	StatusUnknown ConnectionStatus = "unknown"
	StatusSuccess ConnectionStatus = "success"
	StatusFailed  ConnectionStatus = "failed"
)

// IMAPSettings holds connection parameters for generic IMAP accounts.
// Well-known providers carry their own hardcoded endpoints.
type IMAPSettings struct {
	Host       string `json:"host" yaml:"host"`
	Port       int    `json:"port" yaml:"port"`
	Encryption string `json:"encryption" yaml:"encryption"` // "ssl", "starttls" or "none"
}

// MailboxAccount is one seed/test mailbox. The account-management subsystem
// owns these records; the engine reads them and writes back only connection
// status, last-check timestamp and refreshed token fields.
type MailboxAccount struct {
	ID                string           `json:"id" yaml:"id"`
	Email             string           `json:"email" yaml:"email"`
	Provider          ProviderKind     `json:"provider" yaml:"provider"`
	Auth              AuthKind         `json:"auth" yaml:"auth"`
	EncryptedPassword string           `json:"encrypted_password,omitempty" yaml:"encrypted_password,omitempty"`
	EncryptedRefresh  string           `json:"encrypted_refresh_token,omitempty" yaml:"encrypted_refresh_token,omitempty"`
	AccessToken       string           `json:"access_token,omitempty" yaml:"access_token,omitempty"`
	TokenExpiry       time.Time        `json:"token_expiry,omitempty" yaml:"token_expiry,omitempty"`
	ConnectionStatus  ConnectionStatus `json:"connection_status" yaml:"connection_status"`
	LastChecked       time.Time        `json:"last_connection_check,omitempty" yaml:"last_connection_check,omitempty"`
	IMAP              IMAPSettings     `json:"imap,omitempty" yaml:"imap,omitempty"`
	Mappings          []FolderMapping  `json:"folder_mappings,omitempty" yaml:"folder_mappings,omitempty"`
}

// Validate checks the provider/auth compatibility invariant.
func (a *MailboxAccount) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("account missing id")
	}
	if a.Email == "" {
		return fmt.Errorf("account %s missing email address", a.ID)
	}
	switch a.Provider {
	case ProviderGmail, ProviderOutlook:
		if a.Auth != AuthOAuth && a.Auth != AuthPassword {
			return fmt.Errorf("account %s: provider %s requires oauth or password auth, got %s", a.ID, a.Provider, a.Auth)
		}
	case ProviderYahoo:
		if a.Auth == AuthOAuth {
			return fmt.Errorf("account %s: yahoo accounts use app passwords, not oauth", a.ID)
		}
	case ProviderGenericIMAP:
		if a.Auth == AuthOAuth {
			return fmt.Errorf("account %s: generic imap accounts cannot use oauth", a.ID)
		}
		if a.IMAP.Host == "" {
			return fmt.Errorf("account %s: generic imap account missing host", a.ID)
		}
	default:
		return fmt.Errorf("account %s: unknown provider kind %q", a.ID, a.Provider)
	}
	return nil
}

// FolderRole is the logical role a configured folder plays for placement.
type FolderRole string

const (
	RoleInbox           FolderRole = "inbox"
	RoleSpam            FolderRole = "spam"
	RoleAdditionalInbox FolderRole = "additional_inbox"
)

// FolderMapping translates a logical role to a provider-native folder or
// label name. Configured externally, read-only to the engine.
type FolderMapping struct {
	AccountID   string     `json:"account_id" yaml:"account_id"`
	Role        FolderRole `json:"role" yaml:"role"`
	Name        string     `json:"name" yaml:"name"`
	DisplayName string     `json:"display_name,omitempty" yaml:"display_name,omitempty"`
	SortOrder   int        `json:"sort_order" yaml:"sort_order"`
}

// AntispamSystem is one catalog entry describing a filtering engine
// identifiable by the header patterns it injects.
type AntispamSystem struct {
	Name        string   `json:"name" yaml:"name"`
	DisplayName string   `json:"display_name" yaml:"display_name"`
	Patterns    []string `json:"patterns" yaml:"patterns"`
	Active      bool     `json:"active" yaml:"active"`
}

// SearchTarget is constructed per verification attempt and never persisted.
type SearchTarget struct {
	Marker        string
	TestCreatedAt *time.Time
	Since         time.Time
}

// PlacementCategory is the aggregate bucket a found message counts toward.
type PlacementCategory string

const (
	PlacementInbox PlacementCategory = "inbox"
	PlacementSpam  PlacementCategory = "spam"
)

// Placement is where a found message landed. Label carries the sub-inbox
// category (promotions, social, ...) when the category is inbox but the
// message sits in a categorized tab; it is preserved for display only.
type Placement struct {
	Category PlacementCategory `json:"category"`
	Label    string            `json:"label,omitempty"`
}

// AntispamResult carries the detected systems and their evidence lines.
type AntispamResult struct {
	Detected map[string]bool     `json:"detected"`
	Evidence map[string][]string `json:"evidence"`
}

// FoundMessage is the ephemeral result an adapter hands to the orchestrator.
type FoundMessage struct {
	ProviderID   string         `json:"provider_id"`
	Subject      string         `json:"subject"`
	Sender       string         `json:"sender"`
	Date         time.Time      `json:"date"`
	RawHeaders   string         `json:"-"`
	Placement    Placement      `json:"placement"`
	SourceFolder string         `json:"source_folder"`
	Antispam     AntispamResult `json:"antispam"`
}
