package mail

import (
	"errors"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/coldfront-labs/coldfront/internal/models"
)

var ErrNoCredentials = errors.New("sender account has no SMTP credentials")

// smtpSendMail is swapped out in tests.
var smtpSendMail = smtp.SendMail

// Client sends already-rendered campaign email through one sender
// account's SMTP endpoint.
type Client struct {
	host string
	port int
	user string
	pass string
	from string
}

// NewClient builds a client from a sender account's stored credentials.
func NewClient(account models.SenderAccount) *Client {
	return &Client{
		host: account.SMTPHost,
		port: account.SMTPPort,
		user: account.SMTPUser,
		pass: account.SMTPPass,
		from: account.Email,
	}
}

// Send delivers one plain-text email. Credentials must be complete: a host
// without a user/pass pair is rejected rather than attempted unauthenticated,
// since cold-outreach providers universally require auth.
func (c *Client) Send(to, subject, body string) error {
	if strings.TrimSpace(c.host) == "" {
		return ErrNoCredentials
	}
	if c.user == "" || c.pass == "" {
		return fmt.Errorf("%w: user and password are both required", ErrNoCredentials)
	}

	addr := fmt.Sprintf("%s:%d", c.host, c.port)
	auth := smtp.PlainAuth("", c.user, c.pass, c.host)

	headers := fmt.Sprintf(
		"From: %s\r\n"+
			"To: %s\r\n"+
			"Subject: %s\r\n"+
			"MIME-Version: 1.0\r\n"+
			"Content-Type: text/plain; charset=\"UTF-8\"\r\n"+
			"\r\n",
		c.from, to, subject,
	)

	msg := []byte(headers + body)

	return smtpSendMail(addr, auth, c.from, []string{to}, msg)
}
