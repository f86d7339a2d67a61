package mailer

import (
	"errors"
	"fmt"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"time"

	mail "github.com/go-mail/mail/v2"
)

var (
	// ErrInvalidRecipient rejects addresses that fail the minimal syntactic
	// check before any connection is attempted.
	ErrInvalidRecipient = errors.New("invalid recipient email address")

	// ErrAuthFailed signals the relay rejected the configured credentials.
	ErrAuthFailed = errors.New("authentication failed, check the sender email and app password")
)

// SMTPError wraps a protocol-level failure reported by the relay.
type SMTPError struct {
	Err error
}

func (e *SMTPError) Error() string {
	return fmt.Sprintf("SMTP error occurred: %v", e.Err)
}

func (e *SMTPError) Unwrap() error { return e.Err }

// Dispatcher sends emails through an authenticated STARTTLS SMTP session,
// one connection per send.
type Dispatcher struct {
	dialer *mail.Dialer
	sender string
}

// New returns a Dispatcher. Both sender address and password must be present.
func New(host string, port int, sender, password string) (*Dispatcher, error) {
	if sender == "" {
		return nil, errors.New("mailer: sender email is required")
	}
	if password == "" {
		return nil, errors.New("mailer: sender password is required")
	}

	d := mail.NewDialer(host, port, sender, password)
	d.StartTLSPolicy = mail.MandatoryStartTLS
	d.Timeout = 10 * time.Second

	return &Dispatcher{dialer: d, sender: sender}, nil
}

// ValidEmail reports whether addr contains an @ followed somewhere by a dot.
// This is intentionally not full RFC validation.
func ValidEmail(addr string) bool {
	at := strings.Index(addr, "@")
	return at > 0 && strings.Contains(addr[at+1:], ".")
}

// Send delivers a multipart HTML message to recipient. If attachmentPath is
// non-empty and the file exists it is attached as a PDF under its base name;
// a missing attachment file is not an error and the message goes out without
// it. Errors are classified: ErrInvalidRecipient, ErrAuthFailed, *SMTPError
// for protocol failures, or a wrapped unexpected error.
func (d *Dispatcher) Send(recipient, subject, body, attachmentPath string) error {
	if !ValidEmail(recipient) {
		return ErrInvalidRecipient
	}

	m := mail.NewMessage()
	m.SetHeader("From", d.sender)
	m.SetHeader("To", recipient)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", body)

	if attachmentPath != "" {
		if _, err := os.Stat(attachmentPath); err == nil {
			m.Attach(attachmentPath, mail.Rename(filepath.Base(attachmentPath)))
		}
	}

	if err := d.dialer.DialAndSend(m); err != nil {
		return classify(err)
	}
	return nil
}

func classify(err error) error {
	var protoErr *textproto.Error
	if errors.As(err, &protoErr) {
		// 534/535 cover bad credentials and disabled app passwords
		if protoErr.Code == 534 || protoErr.Code == 535 {
			return ErrAuthFailed
		}
		return &SMTPError{Err: err}
	}
	return fmt.Errorf("an unexpected error occurred: %w", err)
}
