package accounts

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/altafino/inbox-verifier/internal/models"
)

// StatusRecord is one account's durable engine-side state.
type StatusRecord struct {
	AccountID        string                  `json:"account_id"`
	Status           models.ConnectionStatus `json:"connection_status"`
	LastChecked      time.Time               `json:"last_connection_check"`
	AccessToken      string                  `json:"access_token,omitempty"`
	TokenExpiry      time.Time               `json:"token_expiry,omitempty"`
	EncryptedRefresh string                  `json:"encrypted_refresh_token,omitempty"`
	UpdatedAt        time.Time               `json:"updated_at"`
}

// FileStore implements Store on a single JSON file.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a file-backed status store, creating the parent
// directory and an empty records file if needed.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("status file path cannot be empty")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create status directory: %w", err)
	}

	fs := &FileStore{path: path}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := fs.save(map[string]StatusRecord{}); err != nil {
			return nil, fmt.Errorf("failed to create status file: %w", err)
		}
	}
	return fs, nil
}

// UpdateConnectionStatus records the result of a connection check.
func (fs *FileStore) UpdateConnectionStatus(ctx context.Context, accountID string, status models.ConnectionStatus, checkedAt time.Time) error {
	return fs.update(ctx, accountID, func(rec *StatusRecord) {
		rec.Status = status
		rec.LastChecked = checkedAt
	})
}

// UpdateOAuthToken records refreshed token material for an account. The
// refresh token stays encrypted; the short-lived access token is stored
// as received.
func (fs *FileStore) UpdateOAuthToken(ctx context.Context, accountID string, accessToken string, expiry time.Time, encryptedRefresh string) error {
	return fs.update(ctx, accountID, func(rec *StatusRecord) {
		rec.AccessToken = accessToken
		rec.TokenExpiry = expiry
		if encryptedRefresh != "" {
			rec.EncryptedRefresh = encryptedRefresh
		}
	})
}

// Get returns the stored record for an account, if any.
func (fs *FileStore) Get(accountID string) (StatusRecord, bool, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	records, err := fs.load()
	if err != nil {
		return StatusRecord{}, false, err
	}
	rec, ok := records[accountID]
	return rec, ok, nil
}

// Apply overlays stored status and token fields onto loaded seed accounts.
func (fs *FileStore) Apply(accounts []models.MailboxAccount) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	records, err := fs.load()
	if err != nil {
		return err
	}
	for i := range accounts {
		rec, ok := records[accounts[i].ID]
		if !ok {
			continue
		}
		accounts[i].ConnectionStatus = rec.Status
		accounts[i].LastChecked = rec.LastChecked
		if rec.AccessToken != "" {
			accounts[i].AccessToken = rec.AccessToken
			accounts[i].TokenExpiry = rec.TokenExpiry
		}
		if rec.EncryptedRefresh != "" {
			accounts[i].EncryptedRefresh = rec.EncryptedRefresh
		}
	}
	return nil
}

func (fs *FileStore) update(ctx context.Context, accountID string, mutate func(*StatusRecord)) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	records, err := fs.load()
	if err != nil {
		return err
	}

	rec := records[accountID]
	rec.AccountID = accountID
	mutate(&rec)
	rec.UpdatedAt = time.Now().UTC()
	records[accountID] = rec

	return fs.save(records)
}

func (fs *FileStore) load() (map[string]StatusRecord, error) {
	data, err := os.ReadFile(fs.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read status file: %w", err)
	}

	records := make(map[string]StatusRecord)
	if len(data) > 0 {
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, fmt.Errorf("failed to parse status file: %w", err)
		}
	}
	return records, nil
}

func (fs *FileStore) save(records map[string]StatusRecord) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal status records: %w", err)
	}
	if err := os.WriteFile(fs.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write status file: %w", err)
	}
	return nil
}
