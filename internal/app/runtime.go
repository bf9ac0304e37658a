package app

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/altafino/inbox-verifier/internal/accounts"
	"github.com/altafino/inbox-verifier/internal/antispam"
	"github.com/altafino/inbox-verifier/internal/diaglog"
	"github.com/altafino/inbox-verifier/internal/logger"
	"github.com/altafino/inbox-verifier/internal/models"
	oauth2mgr "github.com/altafino/inbox-verifier/internal/oauth2"
	"github.com/altafino/inbox-verifier/internal/placement"
	"github.com/altafino/inbox-verifier/internal/provider"
	"github.com/altafino/inbox-verifier/internal/secret"
	"github.com/altafino/inbox-verifier/internal/types"
	"github.com/altafino/inbox-verifier/internal/verify"
)

// Runtime holds the fully wired engine for one configuration: credential
// keeper, account seed with status overlay, token manager, diagnostics and
// the verification service.
type Runtime struct {
	Config   *types.Config
	Logger   *slog.Logger
	Keeper   *secret.Keeper
	Store    *accounts.FileStore
	Tokens   *oauth2mgr.Manager
	Diags    *diaglog.Manager
	Accounts []*models.MailboxAccount
	Verifier *verify.Service

	deps provider.Deps
}

// BuildRuntime wires all services for one configuration.
func BuildRuntime(cfg *types.Config) (*Runtime, error) {
	log := logger.Setup(cfg)

	key := os.Getenv(cfg.Accounts.SecretKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("secret key environment variable %s is not set", cfg.Accounts.SecretKeyEnv)
	}
	keeper, err := secret.NewKeeper(key)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize credential keeper: %w", err)
	}

	seed, err := accounts.LoadAccounts(cfg.Accounts.File)
	if err != nil {
		return nil, fmt.Errorf("failed to load accounts: %w", err)
	}

	store, err := accounts.NewFileStore(cfg.Accounts.StatusFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open status store: %w", err)
	}
	if err := store.Apply(seed); err != nil {
		return nil, fmt.Errorf("failed to apply account status: %w", err)
	}

	diags, err := diaglog.NewManager(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize diagnostics log: %w", err)
	}

	tokens := oauth2mgr.NewManager(oauth2mgr.Credentials{
		GoogleClientID:        cfg.OAuth.Google.ClientID,
		GoogleClientSecret:    cfg.OAuth.Google.ClientSecret,
		MicrosoftClientID:     cfg.OAuth.Microsoft.ClientID,
		MicrosoftClientSecret: cfg.OAuth.Microsoft.ClientSecret,
		MicrosoftTenant:       cfg.OAuth.Microsoft.Tenant,
	}, store, keeper, log)

	keywords := placement.DefaultKeywords()
	if cfg.Catalogs.KeywordsFile != "" {
		keywords, err = placement.LoadKeywords(cfg.Catalogs.KeywordsFile)
		if err != nil {
			return nil, err
		}
	}

	catalog := antispam.DefaultCatalog()
	if cfg.Catalogs.AntispamFile != "" {
		catalog, err = antispam.LoadCatalog(cfg.Catalogs.AntispamFile)
		if err != nil {
			return nil, err
		}
	}

	deps := provider.Deps{
		Config:     cfg,
		Logger:     log,
		Tokens:     tokens,
		Secrets:    keeper,
		Classifier: placement.NewClassifier(keywords),
		Catalog:    catalog,
		Diags:      diags,
	}

	accts := make([]*models.MailboxAccount, len(seed))
	for i := range seed {
		accts[i] = &seed[i]
	}

	return &Runtime{
		Config:   cfg,
		Logger:   log,
		Keeper:   keeper,
		Store:    store,
		Tokens:   tokens,
		Diags:    diags,
		Accounts: accts,
		Verifier: verify.NewService(cfg, log, tokens, store, deps),
		deps:     deps,
	}, nil
}

// Adapter builds the provider adapter for one account.
func (r *Runtime) Adapter(account *models.MailboxAccount) (provider.Adapter, error) {
	return provider.New(account, r.deps)
}

// Account returns one account by id.
func (r *Runtime) Account(accountID string) (*models.MailboxAccount, error) {
	for _, a := range r.Accounts {
		if a.ID == accountID {
			return a, nil
		}
	}
	return nil, fmt.Errorf("unknown account %q", accountID)
}

// Close releases runtime resources.
func (r *Runtime) Close() {
	if r.Diags != nil {
		if err := r.Diags.Close(); err != nil {
			r.Logger.Warn("failed to close diagnostics log", "error", err)
		}
	}
}
