package provider

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/altafino/inbox-verifier/internal/antispam"
	"github.com/altafino/inbox-verifier/internal/models"
	"github.com/jhillyerd/enmime"
	"golang.org/x/oauth2"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// gmailAdapter implements Adapter over the Gmail REST API. System labels
// carry the placement signal directly, so folder mappings only select which
// scopes get searched.
type gmailAdapter struct {
	account *models.MailboxAccount
	deps    Deps

	// newService is swappable in tests.
	newService func(ctx context.Context, token string) (*gmail.Service, error)
}

func newGmailAdapter(account *models.MailboxAccount, deps Deps) *gmailAdapter {
	return &gmailAdapter{
		account: account,
		deps:    deps,
		newService: func(ctx context.Context, token string) (*gmail.Service, error) {
			return gmail.NewService(ctx, option.WithTokenSource(
				oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}),
			))
		},
	}
}

func (a *gmailAdapter) service(ctx context.Context) (*gmail.Service, error) {
	if err := a.deps.Tokens.EnsureValidToken(ctx, a.account); err != nil {
		return nil, fmt.Errorf("token refresh failed: %w", err)
	}
	return a.newService(ctx, a.account.AccessToken)
}

func (a *gmailAdapter) TestConnection(ctx context.Context) ConnectionResult {
	svc, err := a.service(ctx)
	if err == nil {
		_, err = svc.Users.GetProfile("me").Context(ctx).Do()
	}
	if err != nil {
		a.deps.record(a.account, "", "connect", err)
		return ConnectionResult{OK: false, Diagnostic: err.Error()}
	}
	return ConnectionResult{OK: true}
}

// SearchByMarker issues one combined query covering every mapped scope;
// Gmail has no folder hierarchy, so the scopes OR together into a single
// label/category expression. Gmail matches the quoted marker against subject
// and body server-side; the local check only confirms there was no tokenized
// near-miss. Placement comes from the returned label set.
func (a *gmailAdapter) SearchByMarker(ctx context.Context, target models.SearchTarget) []models.FoundMessage {
	found := make([]models.FoundMessage, 0, 1)

	if len(a.account.Mappings) == 0 {
		a.deps.Logger.Debug("no folder mappings configured, skipping search",
			"account_id", a.account.ID,
			"provider", "gmail")
		return found
	}

	svc, err := a.service(ctx)
	if err != nil {
		a.deps.record(a.account, "", "connect", err)
		return found
	}

	query := buildMarkerQuery(gmailCombinedScope(a.account.Mappings), target)
	pageSize := int64(a.deps.Config.Engine.PageSize)
	resp, err := svc.Users.Messages.List("me").Q(query).MaxResults(pageSize).Context(ctx).Do()
	if err != nil {
		a.deps.record(a.account, "", "search", fmt.Errorf("failed to list messages: %w", err))
		return found
	}

	for _, ref := range resp.Messages {
		if ctx.Err() != nil {
			return found
		}

		msg, ok, err := a.fetchRaw(ctx, svc, ref.Id)
		if err != nil {
			a.deps.record(a.account, "", "fetch", err)
			continue
		}
		if !ok {
			continue
		}
		if strings.Contains(msg.subject, target.Marker) || msg.bodyHasMarker(target.Marker) {
			found = append(found, msg.toFound(a, a.sourceFolderFor(msg.labels)))
			return found
		}
	}
	return found
}

// sourceFolderFor attributes a result back to the configured mapping its
// label set satisfied.
func (a *gmailAdapter) sourceFolderFor(labels []string) string {
	placement, ok := placementFromGmailLabels(labels)

	role := models.RoleInbox
	if ok {
		switch {
		case placement.Category == models.PlacementSpam:
			role = models.RoleSpam
		case placement.Label != "":
			role = models.RoleAdditionalInbox
			for _, m := range a.account.Mappings {
				if m.Role == role && strings.EqualFold(m.Name, placement.Label) {
					return m.Name
				}
			}
		}
	}

	for _, m := range a.account.Mappings {
		if m.Role == role {
			return m.Name
		}
	}
	if len(a.account.Mappings) > 0 {
		return a.account.Mappings[0].Name
	}
	return ""
}

// rawMessage is the decoded RFC822 form of one Gmail message plus its
// API-level labels.
type rawMessage struct {
	id      string
	labels  []string
	headers string
	subject string
	sender  string
	date    time.Time
	text    string
	html    string
}

func (m *rawMessage) bodyHasMarker(marker string) bool {
	return strings.Contains(m.text, marker) || strings.Contains(m.html, marker)
}

func (m *rawMessage) toFound(a *gmailAdapter, mappedFolder string) models.FoundMessage {
	placement, ok := placementFromGmailLabels(m.labels)
	if !ok {
		placement = a.deps.Classifier.Classify(a.account.Mappings, mappedFolder)
	}

	return models.FoundMessage{
		ProviderID:   m.id,
		Subject:      m.subject,
		Sender:       m.sender,
		Date:         m.date,
		RawHeaders:   m.headers,
		Placement:    placement,
		SourceFolder: mappedFolder,
		Antispam:     toAntispamResult(antispam.Analyze(m.headers, a.deps.Catalog)),
	}
}

func (a *gmailAdapter) fetchRaw(ctx context.Context, svc *gmail.Service, id string) (*rawMessage, bool, error) {
	msg, err := svc.Users.Messages.Get("me", id).Format("raw").Context(ctx).Do()
	if err != nil {
		return nil, false, fmt.Errorf("failed to get message: %w", err)
	}

	data, err := base64.URLEncoding.DecodeString(msg.Raw)
	if err != nil {
		return nil, false, fmt.Errorf("failed to decode raw message: %w", err)
	}

	result := &rawMessage{
		id:      id,
		labels:  msg.LabelIds,
		headers: splitRawHeaders(string(data)),
	}

	env, err := enmime.ReadEnvelope(strings.NewReader(string(data)))
	if err != nil {
		// Unparseable MIME still yields headers; leave body fields empty.
		a.deps.Logger.Debug("failed to parse message MIME",
			"account_id", a.account.ID,
			"message_id", id,
			"error", err)
		return result, true, nil
	}

	result.subject = env.GetHeader("Subject")
	result.sender = env.GetHeader("From")
	result.text = env.Text
	result.html = env.HTML
	if t, err := mail.ParseDate(env.GetHeader("Date")); err == nil {
		result.date = t
	}
	return result, true, nil
}

// FetchMessage retrieves one message by Gmail message id.
func (a *gmailAdapter) FetchMessage(ctx context.Context, messageID string) (models.FoundMessage, bool) {
	svc, err := a.service(ctx)
	if err != nil {
		a.deps.record(a.account, "", "connect", err)
		return models.FoundMessage{}, false
	}

	msg, ok, err := a.fetchRaw(ctx, svc, messageID)
	if err != nil {
		a.deps.record(a.account, "", "fetch", err)
		return models.FoundMessage{}, false
	}
	if !ok {
		return models.FoundMessage{}, false
	}
	return msg.toFound(a, ""), true
}

// FetchRawHeaders retrieves the raw header text of one message.
func (a *gmailAdapter) FetchRawHeaders(ctx context.Context, messageID string, folderHint string) (string, bool) {
	svc, err := a.service(ctx)
	if err != nil {
		a.deps.record(a.account, folderHint, "connect", err)
		return "", false
	}

	msg, ok, err := a.fetchRaw(ctx, svc, messageID)
	if err != nil {
		a.deps.record(a.account, folderHint, "fetch", err)
		return "", false
	}
	if !ok || msg.headers == "" {
		return "", false
	}
	return msg.headers, true
}

// FetchFolderMessages samples the newest messages of one scope for
// setup-time mapping configuration.
func (a *gmailAdapter) FetchFolderMessages(ctx context.Context, folder string, limit int) []models.FoundMessage {
	if limit <= 0 {
		limit = 10
	}

	svc, err := a.service(ctx)
	if err != nil {
		a.deps.record(a.account, folder, "connect", err)
		return nil
	}

	scope := gmailScopeQuery(models.FolderMapping{Name: folder, Role: roleForFolderName(folder)})
	resp, err := svc.Users.Messages.List("me").Q(scope).MaxResults(int64(limit)).Context(ctx).Do()
	if err != nil {
		a.deps.record(a.account, folder, "fetch", fmt.Errorf("failed to list messages: %w", err))
		return nil
	}

	results := make([]models.FoundMessage, 0, len(resp.Messages))
	for _, ref := range resp.Messages {
		msg, err := svc.Users.Messages.Get("me", ref.Id).
			Format("metadata").
			MetadataHeaders("Subject", "From", "Date").
			Context(ctx).Do()
		if err != nil {
			a.deps.record(a.account, folder, "fetch", fmt.Errorf("failed to get message: %w", err))
			continue
		}

		found := models.FoundMessage{
			ProviderID:   ref.Id,
			SourceFolder: folder,
		}
		if placement, ok := placementFromGmailLabels(msg.LabelIds); ok {
			found.Placement = placement
		}
		if msg.Payload != nil {
			for _, h := range msg.Payload.Headers {
				switch h.Name {
				case "Subject":
					found.Subject = h.Value
				case "From":
					found.Sender = h.Value
				case "Date":
					if t, err := mail.ParseDate(h.Value); err == nil {
						found.Date = t
					}
				}
			}
		}
		results = append(results, found)
	}
	return results
}

// gmailCategories are the tab scopes Gmail exposes as search operators.
var gmailCategories = map[string]string{
	"promotions": "category:promotions",
	"social":     "category:social",
	"updates":    "category:updates",
	"forums":     "category:forums",
}

// gmailScopeQuery translates one folder mapping into a Gmail search scope.
func gmailScopeQuery(m models.FolderMapping) string {
	switch m.Role {
	case models.RoleSpam:
		return "in:spam"
	case models.RoleAdditionalInbox:
		if cat, ok := gmailCategories[strings.ToLower(m.Name)]; ok {
			return cat
		}
		return fmt.Sprintf("label:%q", m.Name)
	default:
		return "in:inbox"
	}
}

// gmailCombinedScope merges all mapped scopes into one OR expression, so a
// whole account is searched with a single query.
func gmailCombinedScope(mappings []models.FolderMapping) string {
	scopes := make([]string, 0, len(mappings))
	seen := make(map[string]bool)
	for _, m := range mappings {
		scope := gmailScopeQuery(m)
		if seen[scope] {
			continue
		}
		seen[scope] = true
		scopes = append(scopes, scope)
	}
	if len(scopes) == 1 {
		return scopes[0]
	}
	return "(" + strings.Join(scopes, " OR ") + ")"
}

func roleForFolderName(name string) models.FolderRole {
	lower := strings.ToLower(name)
	if lower == "spam" || lower == "junk" {
		return models.RoleSpam
	}
	if _, ok := gmailCategories[lower]; ok {
		return models.RoleAdditionalInbox
	}
	return models.RoleInbox
}

// buildMarkerQuery composes the final search query: scope, quoted marker
// and the resolved time window.
func buildMarkerQuery(scope string, target models.SearchTarget) string {
	return fmt.Sprintf("%s %q after:%d", scope, target.Marker, target.Since.Unix())
}

// placementFromGmailLabels derives placement from Gmail's system labels.
// SPAM always wins; category labels resolve to inbox sub-categories.
func placementFromGmailLabels(labels []string) (models.Placement, bool) {
	for _, l := range labels {
		if l == "SPAM" {
			return models.Placement{Category: models.PlacementSpam}, true
		}
	}
	for _, l := range labels {
		switch l {
		case "CATEGORY_PROMOTIONS":
			return models.Placement{Category: models.PlacementInbox, Label: "promotions"}, true
		case "CATEGORY_SOCIAL":
			return models.Placement{Category: models.PlacementInbox, Label: "social"}, true
		case "CATEGORY_UPDATES":
			return models.Placement{Category: models.PlacementInbox, Label: "updates"}, true
		case "CATEGORY_FORUMS":
			return models.Placement{Category: models.PlacementInbox, Label: "forums"}, true
		}
	}
	for _, l := range labels {
		if l == "INBOX" {
			return models.Placement{Category: models.PlacementInbox}, true
		}
	}
	return models.Placement{}, false
}

// splitRawHeaders returns the header block of a raw RFC822 message.
func splitRawHeaders(raw string) string {
	if idx := strings.Index(raw, "\r\n\r\n"); idx >= 0 {
		return raw[:idx]
	}
	if idx := strings.Index(raw, "\n\n"); idx >= 0 {
		return raw[:idx]
	}
	return raw
}
