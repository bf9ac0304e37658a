package provider

import (
	"strings"

	"github.com/altafino/inbox-verifier/internal/models"
)

// Yahoo exposes its spam folder as "Bulk" over IMAP regardless of what the
// web UI shows, so configured names get translated before folder selection.
var yahooFolderNames = map[string]string{
	"spam":       "Bulk",
	"junk":       "Bulk",
	"junk email": "Bulk",
	"bulk mail":  "Bulk",
	"deleted":    "Trash",
	"sent items": "Sent",
	"drafts":     "Draft",
}

func yahooVariant() imapVariant {
	return imapVariant{
		name: "yahoo",
		endpoint: func(a *models.MailboxAccount) (string, int, string) {
			return "imap.mail.yahoo.com", 993, "ssl"
		},
		translateFolder: translateYahooFolder,
	}
}

func translateYahooFolder(name string) string {
	if native, ok := yahooFolderNames[strings.ToLower(name)]; ok {
		return native
	}
	return name
}
