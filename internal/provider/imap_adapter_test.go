package provider

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/altafino/inbox-verifier/internal/antispam"
	"github.com/altafino/inbox-verifier/internal/models"
	"github.com/altafino/inbox-verifier/internal/placement"
	"github.com/altafino/inbox-verifier/internal/secret"
	"github.com/altafino/inbox-verifier/internal/types"
	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/backend/memory"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-imap/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeMessageID(t *testing.T) {
	id := encodeMessageID("INBOX/Sub", 42)
	assert.Equal(t, "INBOX/Sub:42", id)

	folder, uid, err := decodeMessageID(id)
	require.NoError(t, err)
	assert.Equal(t, "INBOX/Sub", folder)
	assert.Equal(t, uint32(42), uid)

	_, _, err = decodeMessageID("no-uid-part")
	assert.Error(t, err)

	_, _, err = decodeMessageID("folder:notanumber")
	assert.Error(t, err)
}

func TestTranslateYahooFolder(t *testing.T) {
	assert.Equal(t, "Bulk", translateYahooFolder("Spam"))
	assert.Equal(t, "Bulk", translateYahooFolder("JUNK"))
	assert.Equal(t, "Bulk", translateYahooFolder("Junk Email"))
	assert.Equal(t, "INBOX", translateYahooFolder("INBOX"))
	assert.Equal(t, "Receipts", translateYahooFolder("Receipts"))
}

func TestCandidateFoldersUseVariantTranslation(t *testing.T) {
	account := &models.MailboxAccount{
		Mappings: []models.FolderMapping{
			{Role: models.RoleInbox, Name: "INBOX"},
			{Role: models.RoleSpam, Name: "Spam"},
		},
	}
	a := newIMAPAdapter(account, Deps{}, yahooVariant())

	candidates := a.candidateFolders()
	require.Len(t, candidates, 2)
	assert.Equal(t, "INBOX", candidates[0].native)
	assert.Equal(t, "Bulk", candidates[1].native)
	assert.Equal(t, "Spam", candidates[1].mapped)
}

// --- end-to-end tests against an in-memory IMAP server ---

const testMarker = "T-9F3A21"

func testKeeper(t *testing.T) *secret.Keeper {
	t.Helper()
	key := base64.StdEncoding.EncodeToString([]byte(strings.Repeat("k", 32)))
	keeper, err := secret.NewKeeper(key)
	require.NoError(t, err)
	return keeper
}

func testDeps(t *testing.T, keeper *secret.Keeper) Deps {
	t.Helper()
	cfg := &types.Config{}
	cfg.ApplyDefaults()
	return Deps{
		Config:     cfg,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		Secrets:    keeper,
		Classifier: placement.NewClassifier(placement.DefaultKeywords()),
		Catalog:    antispam.DefaultCatalog(),
	}
}

func startIMAPServer(t *testing.T) string {
	t.Helper()
	be := memory.New()
	s := server.New(be)
	s.AllowInsecureAuth = true

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go s.Serve(l)
	t.Cleanup(func() { s.Close() })

	return l.Addr().String()
}

func testAccount(t *testing.T, addr string, keeper *secret.Keeper, mappings []models.FolderMapping) *models.MailboxAccount {
	t.Helper()
	host, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	var port int
	_, err = fmt.Sscanf(portStr, "%d", &port)
	require.NoError(t, err)

	encrypted, err := keeper.Encrypt("password")
	require.NoError(t, err)

	return &models.MailboxAccount{
		ID:                "acc-e2e",
		Email:             "username",
		Provider:          models.ProviderGenericIMAP,
		Auth:              models.AuthPassword,
		EncryptedPassword: encrypted,
		IMAP: models.IMAPSettings{
			Host:       host,
			Port:       port,
			Encryption: "none",
		},
		Mappings: mappings,
	}
}

// seedMessage appends one message to the given folder, creating the folder
// when missing.
func seedMessage(t *testing.T, addr, folder, subject, body string, extraHeaders ...string) {
	t.Helper()
	c, err := client.Dial(addr)
	require.NoError(t, err)
	defer c.Logout()
	require.NoError(t, c.Login("username", "password"))

	if folder != "INBOX" {
		// Create is idempotent for our purposes; already-exists is fine.
		_ = c.Create(folder)
	}

	var msg strings.Builder
	msg.WriteString("From: Sender <sender@example.com>\r\n")
	msg.WriteString("To: username@example.com\r\n")
	msg.WriteString("Subject: " + subject + "\r\n")
	msg.WriteString("Date: " + time.Now().Format(time.RFC1123Z) + "\r\n")
	msg.WriteString("Message-ID: <seed-1@example.com>\r\n")
	for _, h := range extraHeaders {
		msg.WriteString(h + "\r\n")
	}
	msg.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body + "\r\n")

	require.NoError(t, c.Append(folder, nil, time.Now(), strings.NewReader(msg.String())))
}

func defaultMappings() []models.FolderMapping {
	return []models.FolderMapping{
		{Role: models.RoleInbox, Name: "INBOX", SortOrder: 0},
		{Role: models.RoleSpam, Name: "Spam", SortOrder: 0},
	}
}

func TestIMAPSearchFindsMarkerInSpam(t *testing.T) {
	addr := startIMAPServer(t)
	keeper := testKeeper(t)
	seedMessage(t, addr, "Spam",
		"Deliverability check "+testMarker,
		"nothing relevant here",
		"X-Spam-Flag: YES")

	account := testAccount(t, addr, keeper, defaultMappings())
	a := newIMAPAdapter(account, testDeps(t, keeper), genericVariant())

	created := time.Now().Add(-5 * time.Minute)
	found := a.SearchByMarker(context.Background(), NewSearchTarget(testMarker, &created))

	require.Len(t, found, 1)
	msg := found[0]
	assert.Equal(t, models.PlacementSpam, msg.Placement.Category)
	assert.Equal(t, "Spam", msg.SourceFolder)
	assert.Contains(t, msg.Subject, testMarker)
	assert.Equal(t, "sender@example.com", msg.Sender)
	assert.True(t, strings.HasPrefix(msg.ProviderID, "Spam:"))
	assert.Contains(t, msg.RawHeaders, "X-Spam-Flag")
	assert.True(t, msg.Antispam.Detected["spamassassin"])
}

func TestIMAPSearchBodyMatchInInbox(t *testing.T) {
	addr := startIMAPServer(t)
	keeper := testKeeper(t)
	seedMessage(t, addr, "INBOX",
		"Your order confirmation",
		"tracking code "+testMarker+" enclosed")

	account := testAccount(t, addr, keeper, defaultMappings())
	a := newIMAPAdapter(account, testDeps(t, keeper), genericVariant())

	created := time.Now().Add(-5 * time.Minute)
	found := a.SearchByMarker(context.Background(), NewSearchTarget(testMarker, &created))

	require.Len(t, found, 1)
	assert.Equal(t, models.PlacementInbox, found[0].Placement.Category)
	assert.Equal(t, "INBOX", found[0].SourceFolder)
}

func TestIMAPSearchScansInboxBeforeSpam(t *testing.T) {
	addr := startIMAPServer(t)
	keeper := testKeeper(t)
	seedMessage(t, addr, "Spam",
		"Deliverability check "+testMarker,
		"spam copy")
	seedMessage(t, addr, "INBOX",
		"Deliverability check "+testMarker,
		"inbox copy")

	account := testAccount(t, addr, keeper, defaultMappings())
	a := newIMAPAdapter(account, testDeps(t, keeper), genericVariant())

	created := time.Now().Add(-5 * time.Minute)
	found := a.SearchByMarker(context.Background(), NewSearchTarget(testMarker, &created))

	// Both folders hold the marker; the inbox mapping comes first, so the
	// inbox copy wins.
	require.Len(t, found, 1)
	assert.Equal(t, models.PlacementInbox, found[0].Placement.Category)
	assert.Equal(t, "INBOX", found[0].SourceFolder)
}

func TestIMAPSearchIsRepeatable(t *testing.T) {
	addr := startIMAPServer(t)
	keeper := testKeeper(t)
	seedMessage(t, addr, "Spam",
		"Deliverability check "+testMarker,
		"nothing relevant here")

	account := testAccount(t, addr, keeper, defaultMappings())
	a := newIMAPAdapter(account, testDeps(t, keeper), genericVariant())
	snapshot := *account

	created := time.Now().Add(-5 * time.Minute)
	target := NewSearchTarget(testMarker, &created)

	first := a.SearchByMarker(context.Background(), target)
	second := a.SearchByMarker(context.Background(), target)

	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].ProviderID, second[0].ProviderID)
	assert.Equal(t, first[0].Placement, second[0].Placement)
	assert.Equal(t, first[0].SourceFolder, second[0].SourceFolder)

	// Searching mutates neither the account record nor the mailbox: the
	// matched message stays unread.
	assert.Equal(t, snapshot, *account)
	assert.False(t, messageSeen(t, addr, "Spam"))
}

// messageSeen reports whether any message in the folder carries \Seen.
func messageSeen(t *testing.T, addr, folder string) bool {
	t.Helper()
	c, err := client.Dial(addr)
	require.NoError(t, err)
	defer c.Logout()
	require.NoError(t, c.Login("username", "password"))

	mbox, err := c.Select(folder, true)
	require.NoError(t, err)
	require.NotZero(t, mbox.Messages)

	seqset := new(imap.SeqSet)
	seqset.AddRange(1, mbox.Messages)
	messages := make(chan *imap.Message, mbox.Messages)
	require.NoError(t, c.Fetch(seqset, []imap.FetchItem{imap.FetchFlags}, messages))

	for msg := range messages {
		for _, flag := range msg.Flags {
			if flag == imap.SeenFlag {
				return true
			}
		}
	}
	return false
}

func TestIMAPSearchNoMatch(t *testing.T) {
	addr := startIMAPServer(t)
	keeper := testKeeper(t)

	account := testAccount(t, addr, keeper, defaultMappings())
	a := newIMAPAdapter(account, testDeps(t, keeper), genericVariant())

	created := time.Now().Add(-5 * time.Minute)
	found := a.SearchByMarker(context.Background(), NewSearchTarget("T-MISSING", &created))

	assert.Empty(t, found)
}

func TestIMAPFallbackScanWithoutMappings(t *testing.T) {
	addr := startIMAPServer(t)
	keeper := testKeeper(t)
	seedMessage(t, addr, "Archive",
		"Check "+testMarker,
		"archived copy")

	account := testAccount(t, addr, keeper, nil)
	a := newIMAPAdapter(account, testDeps(t, keeper), genericVariant())

	created := time.Now().Add(-5 * time.Minute)
	found := a.SearchByMarker(context.Background(), NewSearchTarget(testMarker, &created))

	require.Len(t, found, 1)
	assert.Equal(t, "Archive", found[0].SourceFolder)
}

func TestIMAPNoMappingsSkipsSearchForKnownProviders(t *testing.T) {
	addr := startIMAPServer(t)
	keeper := testKeeper(t)
	seedMessage(t, addr, "INBOX", "Check "+testMarker, "body")

	account := testAccount(t, addr, keeper, nil)
	deps := testDeps(t, keeper)

	// Known providers never guess folders.
	variant := genericVariant()
	variant.fallbackScan = false
	a := newIMAPAdapter(account, deps, variant)

	found := a.SearchByMarker(context.Background(), NewSearchTarget(testMarker, nil))
	assert.Empty(t, found)
}

func TestIMAPTestConnection(t *testing.T) {
	addr := startIMAPServer(t)
	keeper := testKeeper(t)

	account := testAccount(t, addr, keeper, defaultMappings())
	a := newIMAPAdapter(account, testDeps(t, keeper), genericVariant())

	result := a.TestConnection(context.Background())
	assert.True(t, result.OK)
	assert.Empty(t, result.Diagnostic)
}

func TestIMAPTestConnectionBadCredentials(t *testing.T) {
	addr := startIMAPServer(t)
	keeper := testKeeper(t)

	account := testAccount(t, addr, keeper, defaultMappings())
	encrypted, err := keeper.Encrypt("wrong-password")
	require.NoError(t, err)
	account.EncryptedPassword = encrypted

	a := newIMAPAdapter(account, testDeps(t, keeper), genericVariant())

	result := a.TestConnection(context.Background())
	assert.False(t, result.OK)
	assert.NotEmpty(t, result.Diagnostic)
}

func TestIMAPFetchMessageAndHeadersRoundtrip(t *testing.T) {
	addr := startIMAPServer(t)
	keeper := testKeeper(t)
	seedMessage(t, addr, "Spam",
		"Check "+testMarker,
		"body text",
		"X-Rspamd-Action: add header")

	account := testAccount(t, addr, keeper, defaultMappings())
	a := newIMAPAdapter(account, testDeps(t, keeper), genericVariant())

	created := time.Now().Add(-5 * time.Minute)
	found := a.SearchByMarker(context.Background(), NewSearchTarget(testMarker, &created))
	require.Len(t, found, 1)

	msg, ok := a.FetchMessage(context.Background(), found[0].ProviderID)
	require.True(t, ok)
	assert.Equal(t, found[0].Subject, msg.Subject)
	assert.True(t, msg.Antispam.Detected["rspamd"])

	headers, ok := a.FetchRawHeaders(context.Background(), found[0].ProviderID, "")
	require.True(t, ok)
	assert.Contains(t, headers, "X-Rspamd-Action")

	_, ok = a.FetchMessage(context.Background(), "Spam:9999")
	assert.False(t, ok)
}

func TestIMAPFetchFolderMessages(t *testing.T) {
	addr := startIMAPServer(t)
	keeper := testKeeper(t)
	seedMessage(t, addr, "INBOX", "first sample", "one")
	seedMessage(t, addr, "INBOX", "second sample", "two")

	account := testAccount(t, addr, keeper, defaultMappings())
	a := newIMAPAdapter(account, testDeps(t, keeper), genericVariant())

	msgs := a.FetchFolderMessages(context.Background(), "INBOX", 2)
	require.Len(t, msgs, 2)
	// Newest first.
	assert.Equal(t, "second sample", msgs[0].Subject)
	assert.Equal(t, "INBOX", msgs[0].SourceFolder)
}

func TestIMAPSearchRespectsContextCancellation(t *testing.T) {
	addr := startIMAPServer(t)
	keeper := testKeeper(t)

	account := testAccount(t, addr, keeper, defaultMappings())
	a := newIMAPAdapter(account, testDeps(t, keeper), genericVariant())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	found := a.SearchByMarker(ctx, NewSearchTarget(testMarker, nil))
	assert.Empty(t, found)
}
