// Package oauth2 manages the OAuth token lifecycle for OAuth-capable
// mailbox accounts: validity checks, refresh, and the Microsoft-specific
// connection repair flow that trades JWT access tokens for opaque ones.
package oauth2

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/altafino/inbox-verifier/internal/accounts"
	"github.com/altafino/inbox-verifier/internal/models"
	"github.com/altafino/inbox-verifier/internal/secret"
	"github.com/emersion/go-imap/client"
	"golang.org/x/oauth2"
)

// expiryBuffer refreshes tokens slightly before they actually expire.
const expiryBuffer = 5 * time.Minute

// microsoftLegacyTokenURL is the v1.0 token endpoint. Unlike the v2.0
// endpoint it honors the resource parameter and issues opaque access tokens,
// which are the only format the IMAP basic-auth bridge accepts.
const microsoftLegacyTokenURL = "https://login.microsoftonline.com/%s/oauth2/token"

const outlookIMAPAddr = "outlook.office365.com:993"

// Credentials holds the OAuth client registrations from configuration.
type Credentials struct {
	GoogleClientID        string
	GoogleClientSecret    string
	MicrosoftClientID     string
	MicrosoftClientSecret string
	MicrosoftTenant       string
}

// Manager handles token validation, refresh and connection repair. A single
// Manager is shared across concurrent verifications; refreshes for the same
// account are serialized through a per-account mutex because a racing second
// refresh can invalidate the first one's refresh token.
type Manager struct {
	creds   Credentials
	store   accounts.Store
	secrets *secret.Keeper
	logger  *slog.Logger

	httpClient *http.Client

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	// Overridable in tests.
	microsoftTokenURL string
	imapTest          func(ctx context.Context, email, token string) error
	now               func() time.Time
}

// NewManager creates a token manager backed by the given status store.
func NewManager(creds Credentials, store accounts.Store, secrets *secret.Keeper, logger *slog.Logger) *Manager {
	tenant := creds.MicrosoftTenant
	if tenant == "" {
		tenant = "common"
	}
	return &Manager{
		creds:             creds,
		store:             store,
		secrets:           secrets,
		logger:            logger,
		httpClient:        &http.Client{Timeout: 30 * time.Second},
		locks:             make(map[string]*sync.Mutex),
		microsoftTokenURL: fmt.Sprintf(microsoftLegacyTokenURL, tenant),
		imapTest:          testOutlookIMAP,
		now:               time.Now,
	}
}

// lockAccount serializes token operations per account id.
func (m *Manager) lockAccount(accountID string) func() {
	m.mu.Lock()
	l, ok := m.locks[accountID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[accountID] = l
	}
	m.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// EnsureValidToken guarantees the account carries a usable access token
// before any mailbox request. Gmail tokens refresh in place near expiry;
// Microsoft accounts go through the full repair flow because their token
// behavior differs across endpoint versions.
func (m *Manager) EnsureValidToken(ctx context.Context, account *models.MailboxAccount) error {
	if account.Auth != models.AuthOAuth {
		return nil
	}

	switch account.Provider {
	case models.ProviderGmail:
		if m.tokenUsable(account) {
			return nil
		}
		return m.refreshGoogleToken(ctx, account)
	case models.ProviderOutlook:
		if m.tokenUsable(account) && !IsJWT(account.AccessToken) {
			return nil
		}
		return m.TestAndRepairConnection(ctx, account)
	default:
		return fmt.Errorf("provider %s does not support OAuth tokens", account.Provider)
	}
}

func (m *Manager) tokenUsable(account *models.MailboxAccount) bool {
	return account.AccessToken != "" &&
		!account.TokenExpiry.IsZero() &&
		m.now().Add(expiryBuffer).Before(account.TokenExpiry)
}

// refreshGoogleToken exchanges the stored refresh token for a new access
// token via the standard Google endpoint.
func (m *Manager) refreshGoogleToken(ctx context.Context, account *models.MailboxAccount) error {
	unlock := m.lockAccount(account.ID)
	defer unlock()

	// Another caller may have refreshed while we waited on the lock.
	if m.tokenUsable(account) {
		return nil
	}

	refreshToken, err := m.secrets.Decrypt(account.EncryptedRefresh)
	if err != nil {
		return fmt.Errorf("failed to decrypt refresh token for %s: %w", account.ID, err)
	}

	conf := GetGoogleConfig(m.creds.GoogleClientID, m.creds.GoogleClientSecret)
	src := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	token, err := src.Token()
	if err != nil {
		return fmt.Errorf("google token refresh failed for %s: %w", account.ID, err)
	}

	account.AccessToken = token.AccessToken
	account.TokenExpiry = token.Expiry

	if err := m.store.UpdateOAuthToken(ctx, account.ID, token.AccessToken, token.Expiry, ""); err != nil {
		m.logger.Warn("failed to persist refreshed token",
			"account_id", account.ID,
			"error", err)
		// The in-memory token is still usable for this operation.
	}

	m.logger.Debug("google token refreshed",
		"account_id", account.ID,
		"expires_at", token.Expiry.Format(time.RFC3339))
	return nil
}

// TestAndRepairConnection runs the Microsoft repair flow: force a refresh
// through the legacy endpoint to obtain an opaque token, verify it against a
// live IMAP login, and persist the resulting connection status. After this
// returns, the account's status is success or failed, never unknown.
func (m *Manager) TestAndRepairConnection(ctx context.Context, account *models.MailboxAccount) error {
	checkedAt := m.now().UTC()

	fail := func(stage string, cause error) error {
		account.ConnectionStatus = models.StatusFailed
		account.LastChecked = checkedAt
		if err := m.store.UpdateConnectionStatus(ctx, account.ID, models.StatusFailed, checkedAt); err != nil {
			m.logger.Warn("failed to persist connection status",
				"account_id", account.ID,
				"error", err)
		}
		m.logger.Warn("microsoft connection repair failed",
			"account_id", account.ID,
			"stage", stage,
			"error", cause)
		return fmt.Errorf("connection repair for %s failed at %s: %w", account.ID, stage, cause)
	}

	if !m.RefreshMicrosoftToken(ctx, account) {
		return fail("token_refresh", fmt.Errorf("refresh token exchange failed"))
	}

	if IsJWT(account.AccessToken) {
		// The endpoint handed back a JWT anyway; IMAP will reject it.
		return fail("token_format", fmt.Errorf("received JWT access token, opaque token required"))
	}

	if err := m.imapTest(ctx, account.Email, account.AccessToken); err != nil {
		return fail("imap_test", err)
	}

	account.ConnectionStatus = models.StatusSuccess
	account.LastChecked = checkedAt
	if err := m.store.UpdateConnectionStatus(ctx, account.ID, models.StatusSuccess, checkedAt); err != nil {
		m.logger.Warn("failed to persist connection status",
			"account_id", account.ID,
			"error", err)
	}

	m.logger.Info("microsoft connection repaired",
		"account_id", account.ID,
		"email", account.Email)
	return nil
}

// RefreshMicrosoftToken exchanges the stored refresh token for a new opaque
// access token against the legacy endpoint. On failure the account's prior
// tokens are left untouched.
func (m *Manager) RefreshMicrosoftToken(ctx context.Context, account *models.MailboxAccount) bool {
	unlock := m.lockAccount(account.ID)
	defer unlock()

	refreshToken, err := m.secrets.Decrypt(account.EncryptedRefresh)
	if err != nil {
		m.logger.Warn("failed to decrypt refresh token",
			"account_id", account.ID,
			"error", err)
		return false
	}

	form := url.Values{
		"client_id":     {m.creds.MicrosoftClientID},
		"client_secret": {m.creds.MicrosoftClientSecret},
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
		// The resource parameter forces an opaque audience-bound token.
		"resource": {"https://outlook.office365.com/"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.microsoftTokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		m.logger.Warn("failed to build token request", "account_id", account.ID, "error", err)
		return false
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		m.logger.Warn("microsoft token exchange failed",
			"account_id", account.ID,
			"error", err)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		m.logger.Warn("microsoft token exchange rejected",
			"account_id", account.ID,
			"status", resp.StatusCode)
		return false
	}

	var payload struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    string `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		m.logger.Warn("failed to decode token response",
			"account_id", account.ID,
			"error", err)
		return false
	}
	if payload.AccessToken == "" {
		m.logger.Warn("token response missing access token", "account_id", account.ID)
		return false
	}

	expiresIn := 3600
	if n, err := strconv.Atoi(payload.ExpiresIn); err == nil && n > 0 {
		expiresIn = n
	}
	expiry := m.now().Add(time.Duration(expiresIn) * time.Second)

	var encryptedRefresh string
	if payload.RefreshToken != "" {
		encryptedRefresh, err = m.secrets.Encrypt(payload.RefreshToken)
		if err != nil {
			m.logger.Warn("failed to encrypt rotated refresh token",
				"account_id", account.ID,
				"error", err)
			encryptedRefresh = ""
		}
	}

	// Only now, with a complete response in hand, overwrite account state.
	account.AccessToken = payload.AccessToken
	account.TokenExpiry = expiry
	if encryptedRefresh != "" {
		account.EncryptedRefresh = encryptedRefresh
	}

	if err := m.store.UpdateOAuthToken(ctx, account.ID, payload.AccessToken, expiry, encryptedRefresh); err != nil {
		m.logger.Warn("failed to persist refreshed token",
			"account_id", account.ID,
			"error", err)
	}

	m.logger.Debug("microsoft token refreshed",
		"account_id", account.ID,
		"opaque", !IsJWT(payload.AccessToken),
		"expires_at", expiry.Format(time.RFC3339))
	return true
}

// IsJWT reports whether an access token is JWT-formatted. Microsoft's v2.0
// endpoint can issue these; IMAP basic-auth bridges reject them.
func IsJWT(token string) bool {
	return strings.HasPrefix(token, "eyJ") && strings.Count(token, ".") == 2
}

// testOutlookIMAP performs a real IMAP login with the given token and closes
// the session regardless of outcome.
func testOutlookIMAP(ctx context.Context, email, token string) error {
	c, err := client.DialTLS(outlookIMAPAddr, &tls.Config{MinVersion: tls.VersionTLS12})
	if err != nil {
		return fmt.Errorf("failed to connect to outlook IMAP: %w", err)
	}
	defer c.Logout()

	c.Timeout = 30 * time.Second

	if err := c.Authenticate(NewXOAUTH2Client(email, token)); err != nil {
		return fmt.Errorf("XOAUTH2 login rejected: %w", err)
	}
	return nil
}
