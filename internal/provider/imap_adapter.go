package provider

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/DusanKasan/parsemail"
	"github.com/altafino/inbox-verifier/internal/antispam"
	"github.com/altafino/inbox-verifier/internal/models"
	oauth2mgr "github.com/altafino/inbox-verifier/internal/oauth2"
	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
)

// imapVariant holds the per-provider quirks of the IMAP family. Everything
// else (session handling, folder walking, marker matching) is shared.
type imapVariant struct {
	name string
	// endpoint resolves the connection parameters for an account.
	endpoint func(a *models.MailboxAccount) (host string, port int, encryption string)
	// translateFolder maps a configured folder name to the provider's
	// native name.
	translateFolder func(name string) string
	// oauthCapable enables XOAUTH2 via the token manager.
	oauthCapable bool
	// fallbackScan allows the bounded all-folder scan when the account has
	// no folder mappings. Only the generic adapter may guess; scanning
	// unrelated folders on known providers invites false results.
	fallbackScan bool
}

func outlookVariant() imapVariant {
	return imapVariant{
		name: "outlook",
		endpoint: func(a *models.MailboxAccount) (string, int, string) {
			return "outlook.office365.com", 993, "ssl"
		},
		translateFolder: func(name string) string { return name },
		oauthCapable:    true,
	}
}

func genericVariant() imapVariant {
	return imapVariant{
		name: "generic_imap",
		endpoint: func(a *models.MailboxAccount) (string, int, string) {
			host := a.IMAP.Host
			port := a.IMAP.Port
			if port == 0 {
				port = 993
			}
			enc := a.IMAP.Encryption
			if enc == "" {
				enc = "ssl"
			}
			return host, port, enc
		},
		translateFolder: func(name string) string { return name },
		fallbackScan:    true,
	}
}

// imapAdapter implements Adapter for the IMAP-family providers.
type imapAdapter struct {
	account *models.MailboxAccount
	deps    Deps
	variant imapVariant
}

func newIMAPAdapter(account *models.MailboxAccount, deps Deps, variant imapVariant) *imapAdapter {
	return &imapAdapter{
		account: account,
		deps:    deps,
		variant: variant,
	}
}

func (a *imapAdapter) networkTimeout() time.Duration {
	return time.Duration(a.deps.Config.Engine.NetworkTimeout) * time.Second
}

// connect dials and authenticates one session. OAuth-capable accounts go
// through the token manager first and fall back to password auth when a
// password is configured.
func (a *imapAdapter) connect(ctx context.Context) (*client.Client, error) {
	host, port, enc := a.variant.endpoint(a.account)
	verifyCert := a.deps.Config.Security.TLS.VerifyCert

	c, err := dialIMAP(host, port, enc, verifyCert, a.networkTimeout())
	if err != nil {
		return nil, err
	}

	if a.variant.oauthCapable && a.account.Auth == models.AuthOAuth {
		if authErr := a.loginOAuth(ctx, c); authErr != nil {
			if a.account.EncryptedPassword == "" {
				c.Logout()
				return nil, authErr
			}
			a.deps.record(a.account, "", "auth", fmt.Errorf("oauth login failed, trying password: %w", authErr))
			if pwErr := a.loginPassword(c); pwErr != nil {
				c.Logout()
				return nil, pwErr
			}
		}
		return c, nil
	}

	if err := a.loginPassword(c); err != nil {
		c.Logout()
		return nil, err
	}
	return c, nil
}

func (a *imapAdapter) loginOAuth(ctx context.Context, c *client.Client) error {
	if err := a.deps.Tokens.EnsureValidToken(ctx, a.account); err != nil {
		return fmt.Errorf("token refresh failed: %w", err)
	}
	if err := c.Authenticate(oauth2mgr.NewXOAUTH2Client(a.account.Email, a.account.AccessToken)); err != nil {
		return fmt.Errorf("XOAUTH2 login failed: %w", err)
	}
	return nil
}

func (a *imapAdapter) loginPassword(c *client.Client) error {
	password, err := a.deps.Secrets.Decrypt(a.account.EncryptedPassword)
	if err != nil {
		return fmt.Errorf("failed to decrypt password: %w", err)
	}
	if err := c.Login(a.account.Email, password); err != nil {
		return fmt.Errorf("IMAP login failed: %w", err)
	}
	return nil
}

// withSession runs fn inside a connect-use-disconnect scope. The session is
// torn down on every exit path; context cancellation closes the underlying
// connection to abort in-flight commands.
func (a *imapAdapter) withSession(ctx context.Context, fn func(c *client.Client) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c, err := a.connect(ctx)
	if err != nil {
		return err
	}

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			c.Close()
		case <-done:
		}
	}()
	defer func() {
		close(done)
		c.Logout()
	}()

	return fn(c)
}

// TestConnection opens a session and lists folders as the minimal read.
func (a *imapAdapter) TestConnection(ctx context.Context) ConnectionResult {
	err := a.withSession(ctx, func(c *client.Client) error {
		_, listErr := listFolders(c)
		return listErr
	})
	if err == nil {
		return ConnectionResult{OK: true}
	}

	diagnostic := err.Error()

	// For generic accounts, a POP3 probe distinguishes "server down" from
	// "IMAP blocked" in the diagnostic.
	if a.variant.fallbackScan && a.deps.Config.Engine.POP3Probe {
		host, _, _ := a.variant.endpoint(a.account)
		if probeErr := probePOP3(host, a.deps.Config.Security.TLS.VerifyCert, a.networkTimeout()); probeErr == nil {
			diagnostic += " (POP3 on the same host is reachable; IMAP access may be disabled)"
		}
	}

	a.deps.record(a.account, "", "connect", err)
	return ConnectionResult{OK: false, Diagnostic: diagnostic}
}

// folderCandidate pairs a provider-native folder name with the configured
// mapping name used for placement classification.
type folderCandidate struct {
	native string
	mapped string
}

func (a *imapAdapter) candidateFolders() []folderCandidate {
	candidates := make([]folderCandidate, 0, len(a.account.Mappings))
	for _, m := range a.account.Mappings {
		candidates = append(candidates, folderCandidate{
			native: a.variant.translateFolder(m.Name),
			mapped: m.Name,
		})
	}
	return candidates
}

// SearchByMarker walks the mapped folders in priority order and returns the
// first message whose subject or body contains the marker.
func (a *imapAdapter) SearchByMarker(ctx context.Context, target models.SearchTarget) []models.FoundMessage {
	found := make([]models.FoundMessage, 0, 1)

	candidates := a.candidateFolders()
	fallback := false
	if len(candidates) == 0 {
		if !a.variant.fallbackScan {
			a.deps.Logger.Debug("no folder mappings configured, skipping search",
				"account_id", a.account.ID,
				"provider", a.variant.name)
			return found
		}
		fallback = true
	}

	pageSize := a.deps.Config.Engine.PageSize
	bodyLimit := a.deps.Config.Engine.BodyMatchLimit
	if fallback {
		// Unmapped accounts get a bounded sweep over every folder.
		pageSize = a.deps.Config.Engine.FallbackFolderCap
		bodyLimit = a.deps.Config.Engine.FallbackFolderCap
	}

	err := a.withSession(ctx, func(c *client.Client) error {
		if fallback {
			names, err := listFolders(c)
			if err != nil {
				return fmt.Errorf("failed to list folders: %w", err)
			}
			for _, name := range names {
				candidates = append(candidates, folderCandidate{native: name, mapped: name})
			}
		}

		for _, folder := range candidates {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			msg, err := a.searchFolder(c, folder, target, pageSize, bodyLimit)
			if err != nil {
				a.deps.record(a.account, folder.native, "search", err)
				continue
			}
			if msg != nil {
				found = append(found, *msg)
				return nil
			}
		}
		return nil
	})
	if err != nil {
		a.deps.record(a.account, "", "connect", err)
	}

	return found
}

// searchFolder scans one folder: server-side SINCE filter, then a local
// subject pass over the newest page, then a bounded body pass.
func (a *imapAdapter) searchFolder(c *client.Client, folder folderCandidate, target models.SearchTarget, pageSize, bodyLimit int) (*models.FoundMessage, error) {
	if _, err := c.Select(folder.native, true); err != nil {
		return nil, fmt.Errorf("failed to select folder: %w", err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.Since = target.Since

	uids, err := c.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	if len(uids) == 0 {
		return nil, nil
	}
	// UIDs come back ascending; keep the newest page.
	if len(uids) > pageSize {
		uids = uids[len(uids)-pageSize:]
	}

	envelopes, err := a.fetchEnvelopes(c, uids)
	if err != nil {
		return nil, err
	}

	var matchedUID uint32
	var matched *imap.Envelope

	// Subject pass first: cheaper and more precise than body matching.
	for i := len(envelopes) - 1; i >= 0; i-- {
		env := envelopes[i]
		if env.envelope != nil && strings.Contains(env.envelope.Subject, target.Marker) {
			matchedUID = env.uid
			matched = env.envelope
			break
		}
	}

	if matched == nil {
		start := len(envelopes) - bodyLimit
		if start < 0 {
			start = 0
		}
		for i := len(envelopes) - 1; i >= start; i-- {
			env := envelopes[i]
			ok, err := a.bodyContains(c, env.uid, target.Marker)
			if err != nil {
				a.deps.record(a.account, folder.native, "fetch", err)
				continue
			}
			if ok {
				matchedUID = env.uid
				matched = env.envelope
				break
			}
		}
	}

	if matched == nil {
		return nil, nil
	}

	rawHeaders, err := fetchHeaderText(c, matchedUID)
	if err != nil {
		// Metadata without headers is still a result; classification and
		// analysis accept empty header text.
		a.deps.record(a.account, folder.native, "fetch", err)
		rawHeaders = ""
	}

	msg := a.buildFound(folder, matchedUID, matched, rawHeaders)
	return &msg, nil
}

type fetchedEnvelope struct {
	uid      uint32
	envelope *imap.Envelope
}

func (a *imapAdapter) fetchEnvelopes(c *client.Client, uids []uint32) ([]fetchedEnvelope, error) {
	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)

	messages := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	go func() {
		done <- c.UidFetch(seqset, []imap.FetchItem{imap.FetchEnvelope, imap.FetchUid}, messages)
	}()

	var envelopes []fetchedEnvelope
	for msg := range messages {
		envelopes = append(envelopes, fetchedEnvelope{uid: msg.Uid, envelope: msg.Envelope})
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to fetch envelopes: %w", err)
	}
	return envelopes, nil
}

// bodyContains fetches one message body and tests it for the marker.
func (a *imapAdapter) bodyContains(c *client.Client, uid uint32, marker string) (bool, error) {
	raw, err := fetchBodyRaw(c, uid)
	if err != nil {
		return false, err
	}

	email, err := parsemail.Parse(strings.NewReader(raw))
	if err != nil {
		// Unparseable MIME: fall back to a raw byte scan.
		return strings.Contains(raw, marker), nil
	}
	return strings.Contains(email.TextBody, marker) ||
		strings.Contains(email.HTMLBody, marker), nil
}

func (a *imapAdapter) buildFound(folder folderCandidate, uid uint32, env *imap.Envelope, rawHeaders string) models.FoundMessage {
	var sender string
	var date time.Time
	subject := ""
	if env != nil {
		subject = env.Subject
		date = env.Date
		if len(env.From) > 0 {
			sender = env.From[0].Address()
		}
	}

	return models.FoundMessage{
		ProviderID:   encodeMessageID(folder.native, uid),
		Subject:      subject,
		Sender:       sender,
		Date:         date,
		RawHeaders:   rawHeaders,
		Placement:    a.deps.Classifier.Classify(a.account.Mappings, folder.mapped),
		SourceFolder: folder.mapped,
		Antispam:     toAntispamResult(antispam.Analyze(rawHeaders, a.deps.Catalog)),
	}
}

// FetchMessage retrieves one message by its encoded "folder:uid" id.
func (a *imapAdapter) FetchMessage(ctx context.Context, messageID string) (models.FoundMessage, bool) {
	folder, uid, err := decodeMessageID(messageID)
	if err != nil {
		a.deps.record(a.account, "", "fetch", err)
		return models.FoundMessage{}, false
	}

	var result models.FoundMessage
	ok := false
	sessErr := a.withSession(ctx, func(c *client.Client) error {
		if _, err := c.Select(folder, true); err != nil {
			return fmt.Errorf("failed to select folder: %w", err)
		}

		envelopes, err := a.fetchEnvelopes(c, []uint32{uid})
		if err != nil {
			return err
		}
		if len(envelopes) == 0 || envelopes[0].envelope == nil {
			return nil
		}

		rawHeaders, err := fetchHeaderText(c, uid)
		if err != nil {
			a.deps.record(a.account, folder, "fetch", err)
			rawHeaders = ""
		}

		candidate := folderCandidate{native: folder, mapped: folder}
		result = a.buildFound(candidate, uid, envelopes[0].envelope, rawHeaders)
		ok = true
		return nil
	})
	if sessErr != nil {
		a.deps.record(a.account, folder, "fetch", sessErr)
		return models.FoundMessage{}, false
	}
	return result, ok
}

// FetchRawHeaders retrieves the raw header text of one message.
func (a *imapAdapter) FetchRawHeaders(ctx context.Context, messageID string, folderHint string) (string, bool) {
	folder, uid, err := decodeMessageID(messageID)
	if err != nil {
		if folderHint == "" {
			a.deps.record(a.account, "", "fetch", err)
			return "", false
		}
		folder = folderHint
		parsed, convErr := strconv.ParseUint(messageID, 10, 32)
		if convErr != nil {
			a.deps.record(a.account, folder, "fetch", err)
			return "", false
		}
		uid = uint32(parsed)
	}

	var headers string
	ok := false
	sessErr := a.withSession(ctx, func(c *client.Client) error {
		if _, err := c.Select(folder, true); err != nil {
			return fmt.Errorf("failed to select folder: %w", err)
		}
		text, err := fetchHeaderText(c, uid)
		if err != nil {
			return err
		}
		headers = text
		ok = text != ""
		return nil
	})
	if sessErr != nil {
		a.deps.record(a.account, folder, "fetch", sessErr)
		return "", false
	}
	return headers, ok
}

// FetchFolderMessages samples the newest messages of one folder for
// setup-time mapping configuration.
func (a *imapAdapter) FetchFolderMessages(ctx context.Context, folder string, limit int) []models.FoundMessage {
	if limit <= 0 {
		limit = 10
	}
	native := a.variant.translateFolder(folder)

	results := make([]models.FoundMessage, 0, limit)
	err := a.withSession(ctx, func(c *client.Client) error {
		mbox, err := c.Select(native, true)
		if err != nil {
			return fmt.Errorf("failed to select folder: %w", err)
		}
		if mbox.Messages == 0 {
			return nil
		}

		from := uint32(1)
		if mbox.Messages > uint32(limit) {
			from = mbox.Messages - uint32(limit) + 1
		}
		seqset := new(imap.SeqSet)
		seqset.AddRange(from, mbox.Messages)

		messages := make(chan *imap.Message, 10)
		done := make(chan error, 1)
		go func() {
			done <- c.Fetch(seqset, []imap.FetchItem{imap.FetchEnvelope, imap.FetchUid}, messages)
		}()

		for msg := range messages {
			if msg.Envelope == nil {
				continue
			}
			candidate := folderCandidate{native: native, mapped: folder}
			results = append(results, a.buildFound(candidate, msg.Uid, msg.Envelope, ""))
		}
		return <-done
	})
	if err != nil {
		a.deps.record(a.account, native, "fetch", err)
	}

	// Newest first for display.
	for i, j := 0, len(results)-1; i < j; i, j = i+1, j-1 {
		results[i], results[j] = results[j], results[i]
	}
	return results
}

// listFolders returns the selectable folder names of the account.
func listFolders(c *client.Client) ([]string, error) {
	mailboxes := make(chan *imap.MailboxInfo, 20)
	done := make(chan error, 1)
	go func() {
		done <- c.List("", "*", mailboxes)
	}()

	var names []string
	for m := range mailboxes {
		selectable := true
		for _, attr := range m.Attributes {
			if attr == imap.NoSelectAttr {
				selectable = false
				break
			}
		}
		if selectable {
			names = append(names, m.Name)
		}
	}
	if err := <-done; err != nil {
		return nil, err
	}
	return names, nil
}

// fetchHeaderText fetches the raw RFC822 header block of one message.
func fetchHeaderText(c *client.Client, uid uint32) (string, error) {
	section := &imap.BodySectionName{
		BodyPartName: imap.BodyPartName{Specifier: imap.HeaderSpecifier},
		Peek:         true,
	}
	return fetchSection(c, uid, section)
}

// fetchBodyRaw fetches the entire raw message.
func fetchBodyRaw(c *client.Client, uid uint32) (string, error) {
	section := &imap.BodySectionName{Peek: true}
	return fetchSection(c, uid, section)
}

func fetchSection(c *client.Client, uid uint32, section *imap.BodySectionName) (string, error) {
	seqset := new(imap.SeqSet)
	seqset.AddNum(uid)

	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- c.UidFetch(seqset, []imap.FetchItem{section.FetchItem()}, messages)
	}()

	var text string
	for msg := range messages {
		literal := msg.GetBody(section)
		if literal == nil {
			continue
		}
		data, err := io.ReadAll(literal)
		if err != nil {
			<-done
			return "", fmt.Errorf("failed to read section: %w", err)
		}
		text = string(data)
	}
	if err := <-done; err != nil {
		return "", fmt.Errorf("failed to fetch section: %w", err)
	}
	return text, nil
}

func encodeMessageID(folder string, uid uint32) string {
	return fmt.Sprintf("%s:%d", folder, uid)
}

func decodeMessageID(id string) (string, uint32, error) {
	idx := strings.LastIndex(id, ":")
	if idx <= 0 || idx == len(id)-1 {
		return "", 0, fmt.Errorf("malformed message id %q", id)
	}
	uid, err := strconv.ParseUint(id[idx+1:], 10, 32)
	if err != nil {
		return "", 0, fmt.Errorf("malformed message id %q: %w", id, err)
	}
	return id[:idx], uint32(uid), nil
}

func toAntispamResult(res antispam.Result) models.AntispamResult {
	return models.AntispamResult{
		Detected: res.Detected,
		Evidence: res.Evidence,
	}
}
