package verify

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/altafino/inbox-verifier/internal/models"
	"github.com/altafino/inbox-verifier/internal/provider"
	"github.com/altafino/inbox-verifier/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAdapter struct {
	found      []models.FoundMessage
	connOK     bool
	diagnostic string

	inFlight    int32
	maxInFlight int32
	delay       time.Duration
}

func (f *fakeAdapter) TestConnection(ctx context.Context) provider.ConnectionResult {
	return provider.ConnectionResult{OK: f.connOK, Diagnostic: f.diagnostic}
}

func (f *fakeAdapter) SearchByMarker(ctx context.Context, target models.SearchTarget) []models.FoundMessage {
	cur := atomic.AddInt32(&f.inFlight, 1)
	defer atomic.AddInt32(&f.inFlight, -1)
	for {
		prev := atomic.LoadInt32(&f.maxInFlight)
		if cur <= prev || atomic.CompareAndSwapInt32(&f.maxInFlight, prev, cur) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.found
}

func (f *fakeAdapter) FetchMessage(ctx context.Context, messageID string) (models.FoundMessage, bool) {
	return models.FoundMessage{}, false
}

func (f *fakeAdapter) FetchRawHeaders(ctx context.Context, messageID string, folderHint string) (string, bool) {
	return "", false
}

func (f *fakeAdapter) FetchFolderMessages(ctx context.Context, folder string, limit int) []models.FoundMessage {
	return nil
}

type statusRecorder struct {
	mu       sync.Mutex
	statuses map[string]models.ConnectionStatus
}

func newStatusRecorder() *statusRecorder {
	return &statusRecorder{statuses: make(map[string]models.ConnectionStatus)}
}

func (r *statusRecorder) UpdateConnectionStatus(ctx context.Context, accountID string, status models.ConnectionStatus, checkedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses[accountID] = status
	return nil
}

func (r *statusRecorder) UpdateOAuthToken(ctx context.Context, accountID string, accessToken string, expiry time.Time, encryptedRefresh string) error {
	return nil
}

func testService(t *testing.T, adapter *fakeAdapter, store *statusRecorder) *Service {
	t.Helper()
	cfg := &types.Config{}
	cfg.ApplyDefaults()
	cfg.Engine.MaxConcurrent = 2

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(cfg, logger, nil, store, provider.Deps{Config: cfg, Logger: logger})
	svc.newAdapter = func(account *models.MailboxAccount, deps provider.Deps) (provider.Adapter, error) {
		return adapter, nil
	}
	return svc
}

func testAccounts(n int) []*models.MailboxAccount {
	accts := make([]*models.MailboxAccount, n)
	for i := range accts {
		accts[i] = &models.MailboxAccount{
			ID:       "acc-" + string(rune('a'+i)),
			Email:    "user@example.com",
			Provider: models.ProviderGenericIMAP,
			Auth:     models.AuthPassword,
		}
	}
	return accts
}

func TestVerifyAccountReceived(t *testing.T) {
	adapter := &fakeAdapter{found: []models.FoundMessage{{
		ProviderID: "Spam:7",
		Subject:    "check T-9F3A21",
		Placement:  models.Placement{Category: models.PlacementSpam},
	}}}
	svc := testService(t, adapter, nil)

	account := testAccounts(1)[0]
	target := provider.NewSearchTarget("T-9F3A21", nil)
	result := svc.VerifyAccount(context.Background(), account, target)

	assert.NotEmpty(t, result.AttemptID)
	assert.True(t, result.Received)
	require.NotNil(t, result.Message)
	assert.Equal(t, models.PlacementSpam, result.Message.Placement.Category)
	assert.False(t, result.FinishedAt.Before(result.StartedAt))
}

func TestVerifyAccountNotReceivedIsTerminal(t *testing.T) {
	svc := testService(t, &fakeAdapter{}, nil)

	account := testAccounts(1)[0]
	result := svc.VerifyAccount(context.Background(), account, provider.NewSearchTarget("T-NONE", nil))

	assert.False(t, result.Received)
	assert.Nil(t, result.Message)
	assert.NotEmpty(t, result.AttemptID)
}

func TestVerifyAllBoundsConcurrency(t *testing.T) {
	adapter := &fakeAdapter{delay: 30 * time.Millisecond}
	svc := testService(t, adapter, nil)

	accts := testAccounts(6)
	results := svc.VerifyAll(context.Background(), accts, "T-9F3A21", nil)

	require.Len(t, results, 6)
	for i, r := range results {
		assert.Equal(t, accts[i].ID, r.AccountID, "results keep input order")
		assert.NotEmpty(t, r.AttemptID)
	}
	assert.LessOrEqual(t, adapter.maxInFlight, int32(2))
}

func TestVerifyAllUniqueAttemptIDs(t *testing.T) {
	svc := testService(t, &fakeAdapter{}, nil)

	results := svc.VerifyAll(context.Background(), testAccounts(4), "T-9F3A21", nil)

	seen := make(map[string]bool)
	for _, r := range results {
		assert.False(t, seen[r.AttemptID])
		seen[r.AttemptID] = true
	}
}

func TestCheckConnectionPersistsStatus(t *testing.T) {
	store := newStatusRecorder()
	svc := testService(t, &fakeAdapter{connOK: true}, store)

	account := testAccounts(1)[0]
	check := svc.CheckConnection(context.Background(), account)

	assert.Equal(t, models.StatusSuccess, check.Status)
	assert.Equal(t, models.StatusSuccess, store.statuses[account.ID])
}

func TestCheckConnectionFailureCarriesDiagnostic(t *testing.T) {
	store := newStatusRecorder()
	svc := testService(t, &fakeAdapter{connOK: false, diagnostic: "IMAP login failed"}, store)

	account := testAccounts(1)[0]
	check := svc.CheckConnection(context.Background(), account)

	assert.Equal(t, models.StatusFailed, check.Status)
	assert.Equal(t, "IMAP login failed", check.Diagnostic)
	assert.Equal(t, models.StatusFailed, store.statuses[account.ID])
}

func TestCheckAllConnectionsStopsOnCancel(t *testing.T) {
	store := newStatusRecorder()
	svc := testService(t, &fakeAdapter{connOK: true}, store)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	checks := svc.CheckAllConnections(ctx, testAccounts(3))
	assert.Empty(t, checks)
}
