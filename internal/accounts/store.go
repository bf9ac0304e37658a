// Package accounts loads seed mailbox accounts and persists the narrow set
// of fields the engine is allowed to write back: connection status, last
// check time and refreshed OAuth tokens.
package accounts

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/altafino/inbox-verifier/internal/models"
	yaml "gopkg.in/yaml.v3"
)

// Store is the writeback surface exposed to the token manager and the
// verification service. Implementations must never touch other account
// fields.
type Store interface {
	UpdateConnectionStatus(ctx context.Context, accountID string, status models.ConnectionStatus, checkedAt time.Time) error
	UpdateOAuthToken(ctx context.Context, accountID string, accessToken string, expiry time.Time, encryptedRefresh string) error
}

// LoadAccounts reads the account seed file and validates every entry.
// Folder mappings are sorted by role priority then configured sort order so
// the search loop scans them deterministically.
func LoadAccounts(path string) ([]models.MailboxAccount, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read accounts file: %w", err)
	}

	var seed struct {
		Accounts []models.MailboxAccount `yaml:"accounts"`
	}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &seed); err != nil {
		return nil, fmt.Errorf("failed to parse accounts file: %w", err)
	}

	seen := make(map[string]bool, len(seed.Accounts))
	for i := range seed.Accounts {
		acct := &seed.Accounts[i]
		if err := acct.Validate(); err != nil {
			return nil, err
		}
		if seen[acct.ID] {
			return nil, fmt.Errorf("duplicate account id %s", acct.ID)
		}
		seen[acct.ID] = true
		if acct.ConnectionStatus == "" {
			acct.ConnectionStatus = models.StatusUnknown
		}
		for j := range acct.Mappings {
			acct.Mappings[j].AccountID = acct.ID
		}
		SortMappings(acct.Mappings)
	}

	return seed.Accounts, nil
}

// SortMappings orders mappings inbox first, then spam, then additional
// inboxes by their configured sort order.
func SortMappings(mappings []models.FolderMapping) {
	rank := func(r models.FolderRole) int {
		switch r {
		case models.RoleInbox:
			return 0
		case models.RoleSpam:
			return 1
		default:
			return 2
		}
	}
	sort.SliceStable(mappings, func(i, j int) bool {
		ri, rj := rank(mappings[i].Role), rank(mappings[j].Role)
		if ri != rj {
			return ri < rj
		}
		return mappings[i].SortOrder < mappings[j].SortOrder
	})
}
