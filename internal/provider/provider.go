// Package provider implements the mailbox adapters that locate a marked
// test message on Gmail, Outlook, Yahoo and generic IMAP accounts. All
// adapter operations are fail-soft: transport, auth and not-found errors are
// logged and recorded, never raised to the orchestrator.
package provider

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/altafino/inbox-verifier/internal/diaglog"
	"github.com/altafino/inbox-verifier/internal/models"
	oauth2mgr "github.com/altafino/inbox-verifier/internal/oauth2"
	"github.com/altafino/inbox-verifier/internal/placement"
	"github.com/altafino/inbox-verifier/internal/secret"
	"github.com/altafino/inbox-verifier/internal/types"
)

// ConnectionResult is the outcome of a connection test. Diagnostic carries a
// human-readable explanation when OK is false.
type ConnectionResult struct {
	OK         bool
	Diagnostic string
}

// Adapter is the single contract every provider implements. Operations are
// synchronous and scoped to one mailbox session; none of them leaves a
// connection open on return, and none of them returns an error: failures
// degrade to empty or absent results.
type Adapter interface {
	// TestConnection opens a session, performs a minimal read and closes it.
	TestConnection(ctx context.Context) ConnectionResult

	// SearchByMarker scans the account's mapped folders for the marker.
	// The returned list holds at most one message: the first match wins.
	SearchByMarker(ctx context.Context, target models.SearchTarget) []models.FoundMessage

	// FetchMessage retrieves one message by provider message id.
	FetchMessage(ctx context.Context, messageID string) (models.FoundMessage, bool)

	// FetchRawHeaders retrieves the raw header text of one message.
	FetchRawHeaders(ctx context.Context, messageID string, folderHint string) (string, bool)

	// FetchFolderMessages samples recent messages from one folder. Used for
	// setup-time mapping configuration, not for verification.
	FetchFolderMessages(ctx context.Context, folder string, limit int) []models.FoundMessage
}

// Deps carries the shared collaborators adapters need. A Deps value is
// safe to share; adapters themselves are built per account per verification
// and never shared across concurrent checks.
type Deps struct {
	Config     *types.Config
	Logger     *slog.Logger
	Tokens     *oauth2mgr.Manager
	Secrets    *secret.Keeper
	Classifier *placement.Classifier
	Catalog    []models.AntispamSystem
	Diags      *diaglog.Manager
}

// New selects the adapter matching the account's provider kind.
func New(account *models.MailboxAccount, deps Deps) (Adapter, error) {
	if err := account.Validate(); err != nil {
		return nil, err
	}

	switch account.Provider {
	case models.ProviderGmail:
		return newGmailAdapter(account, deps), nil
	case models.ProviderOutlook:
		return newIMAPAdapter(account, deps, outlookVariant()), nil
	case models.ProviderYahoo:
		return newIMAPAdapter(account, deps, yahooVariant()), nil
	case models.ProviderGenericIMAP:
		return newIMAPAdapter(account, deps, genericVariant()), nil
	default:
		return nil, fmt.Errorf("no adapter for provider kind %q", account.Provider)
	}
}

// record logs a swallowed error and files it in the diagnostics log.
func (d Deps) record(account *models.MailboxAccount, folder, stage string, err error) {
	d.Logger.Warn("verification step failed",
		"account_id", account.ID,
		"provider", account.Provider,
		"folder", folder,
		"stage", stage,
		"error", err,
	)
	if d.Diags == nil {
		return
	}
	if recErr := d.Diags.Record(diaglog.Diagnostic{
		AccountID: account.ID,
		Email:     account.Email,
		Provider:  string(account.Provider),
		Folder:    folder,
		Stage:     stage,
		Message:   err.Error(),
	}); recErr != nil {
		d.Logger.Warn("failed to record diagnostic", "error", recErr)
	}
}
