package provider

import (
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/emersion/go-imap/client"
)

// dialIMAP opens an IMAP connection honoring the account's encryption
// setting. Port 143 starts plain and upgrades with STARTTLS; port 993 (and
// any "ssl" setting) dials TLS directly.
func dialIMAP(host string, port int, encryption string, verifyCert bool, timeout time.Duration) (*client.Client, error) {
	addr := fmt.Sprintf("%s:%d", host, port)
	dialer := &net.Dialer{Timeout: timeout}

	tlsConfig := &tls.Config{
		ServerName:         host,
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: !verifyCert,
	}

	var (
		c   *client.Client
		err error
	)

	switch {
	case encryption == "none":
		c, err = client.DialWithDialer(dialer, addr)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to IMAP server %s: %w", addr, err)
		}

	case encryption == "starttls" || port == 143:
		c, err = client.DialWithDialer(dialer, addr)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to IMAP server %s: %w", addr, err)
		}
		if err := c.StartTLS(tlsConfig); err != nil {
			c.Logout()
			return nil, fmt.Errorf("STARTTLS with %s failed: %w", addr, err)
		}

	default:
		c, err = client.DialWithDialerTLS(dialer, addr, tlsConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to IMAP server %s: %w", addr, err)
		}
	}

	c.Timeout = timeout
	return c, nil
}
