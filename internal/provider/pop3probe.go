package provider

import (
	"fmt"
	"time"

	"github.com/knadh/go-pop3"
)

// probePOP3 checks whether the mail host answers on POP3S. It is a
// reachability diagnostic only; no authentication is attempted.
func probePOP3(host string, verifyCert bool, timeout time.Duration) error {
	p := pop3.New(pop3.Opt{
		Host:          host,
		Port:          995,
		TLSEnabled:    true,
		TLSSkipVerify: !verifyCert,
		DialTimeout:   timeout,
	})

	conn, err := p.NewConn()
	if err != nil {
		return fmt.Errorf("POP3 probe failed: %w", err)
	}
	defer conn.Quit()
	return nil
}
