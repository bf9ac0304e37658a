package oauth2

import (
	"fmt"

	"github.com/altafino/inbox-verifier/internal/models"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/microsoft"
)

// GetGoogleConfig returns the OAuth2 config for Google mailbox access
func GetGoogleConfig(clientID, clientSecret string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Scopes: []string{
			"https://mail.google.com/",
		},
		Endpoint: google.Endpoint,
	}
}

// GetMicrosoftConfig returns the OAuth2 config for Microsoft IMAP access.
// Note: tokens from this endpoint may be JWT-format; IMAP basic-auth
// bridges only accept opaque tokens, which the repair flow obtains through
// the legacy token endpoint instead.
func GetMicrosoftConfig(clientID, clientSecret, tenant string) *oauth2.Config {
	if tenant == "" {
		tenant = "common"
	}
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Scopes: []string{
			"https://outlook.office.com/IMAP.AccessAsUser.All",
			"offline_access",
		},
		Endpoint: microsoft.AzureADEndpoint(tenant),
	}
}

// GetProviderConfig returns the OAuth2 config for an account's provider kind
func GetProviderConfig(provider models.ProviderKind, creds Credentials) (*oauth2.Config, error) {
	switch provider {
	case models.ProviderGmail:
		return GetGoogleConfig(creds.GoogleClientID, creds.GoogleClientSecret), nil
	case models.ProviderOutlook:
		return GetMicrosoftConfig(creds.MicrosoftClientID, creds.MicrosoftClientSecret, creds.MicrosoftTenant), nil
	default:
		return nil, fmt.Errorf("provider %s does not support OAuth2", provider)
	}
}
