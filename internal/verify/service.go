// Package verify orchestrates verification runs across accounts: adapter
// selection, search-window resolution, bounded concurrency and outcome
// records. Not finding the marker is a terminal outcome, not an error.
package verify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/altafino/inbox-verifier/internal/accounts"
	"github.com/altafino/inbox-verifier/internal/models"
	oauth2mgr "github.com/altafino/inbox-verifier/internal/oauth2"
	"github.com/altafino/inbox-verifier/internal/provider"
	"github.com/altafino/inbox-verifier/internal/types"
	"github.com/google/uuid"
)

// Result is the outcome record of one verification attempt on one account.
type Result struct {
	AttemptID  string               `json:"attempt_id"`
	AccountID  string               `json:"account_id"`
	Email      string               `json:"email"`
	Provider   models.ProviderKind  `json:"provider"`
	Marker     string               `json:"marker"`
	Received   bool                 `json:"received"`
	Message    *models.FoundMessage `json:"message,omitempty"`
	StartedAt  time.Time            `json:"started_at"`
	FinishedAt time.Time            `json:"finished_at"`
}

// ConnectionCheck is the outcome of one connection test.
type ConnectionCheck struct {
	AccountID  string                  `json:"account_id"`
	Email      string                  `json:"email"`
	Provider   models.ProviderKind     `json:"provider"`
	Status     models.ConnectionStatus `json:"status"`
	Diagnostic string                  `json:"diagnostic,omitempty"`
}

// Service runs verifications. One Service serves one engine configuration.
type Service struct {
	cfg    *types.Config
	logger *slog.Logger
	tokens *oauth2mgr.Manager
	store  accounts.Store
	deps   provider.Deps

	// newAdapter is swappable in tests.
	newAdapter func(account *models.MailboxAccount, deps provider.Deps) (provider.Adapter, error)
}

func NewService(cfg *types.Config, logger *slog.Logger, tokens *oauth2mgr.Manager, store accounts.Store, deps provider.Deps) *Service {
	return &Service{
		cfg:        cfg,
		logger:     logger,
		tokens:     tokens,
		store:      store,
		deps:       deps,
		newAdapter: provider.New,
	}
}

// VerifyAccount runs one verification attempt against one account under the
// per-account operation deadline.
func (s *Service) VerifyAccount(ctx context.Context, account *models.MailboxAccount, target models.SearchTarget) Result {
	result := Result{
		AttemptID: uuid.New().String(),
		AccountID: account.ID,
		Email:     account.Email,
		Provider:  account.Provider,
		Marker:    target.Marker,
		StartedAt: time.Now().UTC(),
	}

	opCtx, cancel := context.WithTimeout(ctx, time.Duration(s.cfg.Engine.OperationTimeout)*time.Second)
	defer cancel()

	adapter, err := s.newAdapter(account, s.deps)
	if err != nil {
		s.logger.Error("cannot build provider adapter",
			"attempt_id", result.AttemptID,
			"account_id", account.ID,
			"provider", account.Provider,
			"error", err)
		result.FinishedAt = time.Now().UTC()
		return result
	}

	s.logger.Info("verification attempt started",
		"attempt_id", result.AttemptID,
		"account_id", account.ID,
		"provider", account.Provider,
		"since", target.Since)

	found := adapter.SearchByMarker(opCtx, target)
	if len(found) > 0 {
		msg := found[0]
		result.Received = true
		result.Message = &msg
	}
	result.FinishedAt = time.Now().UTC()

	s.logger.Info("verification attempt finished",
		"attempt_id", result.AttemptID,
		"account_id", account.ID,
		"received", result.Received,
		"placement", placementLabel(result.Message),
		"duration", result.FinishedAt.Sub(result.StartedAt))

	return result
}

// VerifyAll runs one attempt per account with bounded concurrency. Results
// come back in input order.
func (s *Service) VerifyAll(ctx context.Context, accts []*models.MailboxAccount, marker string, testCreatedAt *time.Time) []Result {
	target := provider.NewSearchTarget(marker, testCreatedAt)
	results := make([]Result, len(accts))

	sem := make(chan struct{}, s.cfg.Engine.MaxConcurrent)
	var wg sync.WaitGroup
	for i, account := range accts {
		wg.Add(1)
		go func(idx int, acc *models.MailboxAccount) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results[idx] = Result{
					AttemptID: uuid.New().String(),
					AccountID: acc.ID,
					Email:     acc.Email,
					Provider:  acc.Provider,
					Marker:    marker,
					StartedAt: time.Now().UTC(),
				}
				results[idx].FinishedAt = results[idx].StartedAt
				return
			}
			results[idx] = s.VerifyAccount(ctx, acc, target)
		}(i, account)
	}
	wg.Wait()
	return results
}

// CheckConnection tests one account's connectivity and persists the
// resulting status. Outlook OAuth accounts go through the token repair flow
// so a stale refresh token heals in the same pass.
func (s *Service) CheckConnection(ctx context.Context, account *models.MailboxAccount) ConnectionCheck {
	check := ConnectionCheck{
		AccountID: account.ID,
		Email:     account.Email,
		Provider:  account.Provider,
	}

	if account.Provider == models.ProviderOutlook && account.Auth == models.AuthOAuth {
		if err := s.tokens.TestAndRepairConnection(ctx, account); err != nil {
			check.Status = models.StatusFailed
			check.Diagnostic = err.Error()
			return check
		}
		check.Status = models.StatusSuccess
		return check
	}

	adapter, err := s.newAdapter(account, s.deps)
	if err != nil {
		check.Status = models.StatusFailed
		check.Diagnostic = err.Error()
		s.persistStatus(ctx, account.ID, check.Status)
		return check
	}

	result := adapter.TestConnection(ctx)
	if result.OK {
		check.Status = models.StatusSuccess
	} else {
		check.Status = models.StatusFailed
		check.Diagnostic = result.Diagnostic
	}
	s.persistStatus(ctx, account.ID, check.Status)
	return check
}

// CheckAllConnections tests every account sequentially. Connection checks
// are cheap and rare; no need for the verification worker pool here.
func (s *Service) CheckAllConnections(ctx context.Context, accts []*models.MailboxAccount) []ConnectionCheck {
	checks := make([]ConnectionCheck, 0, len(accts))
	for _, account := range accts {
		if ctx.Err() != nil {
			break
		}
		checks = append(checks, s.CheckConnection(ctx, account))
	}
	return checks
}

func (s *Service) persistStatus(ctx context.Context, accountID string, status models.ConnectionStatus) {
	if s.store == nil {
		return
	}
	if err := s.store.UpdateConnectionStatus(ctx, accountID, status, time.Now().UTC()); err != nil {
		s.logger.Warn("failed to persist connection status",
			"account_id", accountID,
			"status", status,
			"error", err)
	}
}

func placementLabel(msg *models.FoundMessage) string {
	if msg == nil {
		return ""
	}
	if msg.Placement.Label != "" {
		return string(msg.Placement.Category) + "/" + msg.Placement.Label
	}
	return string(msg.Placement.Category)
}
