// Package mail delivers password-reset emails over SMTP, or writes them to
// the log when no SMTP host is configured.
package mail

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"sfaptracker/config"
)

type Message struct {
	To      string
	Subject string
	HTML    string
}

type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// defaultTimeout bounds a whole SMTP exchange when the caller's context
// has no earlier deadline.
const defaultTimeout = 30 * time.Second

// New returns an SMTP mailer when a host is configured and a log mailer
// otherwise.
func New(cfg config.SMTPConfig, log *zap.Logger) Mailer {
	if cfg.Host == "" {
		return &LogMailer{Log: log}
	}
	return &SMTPMailer{cfg: cfg, dial: (&net.Dialer{}).DialContext, timeout: defaultTimeout}
}

// LogMailer records messages instead of sending them. The body carries
// live reset links, so it is only logged at debug level.
type LogMailer struct {
	Log *zap.Logger
}

func (m *LogMailer) Send(_ context.Context, msg Message) error {
	m.Log.Info("email not sent, no SMTP host configured",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject))
	m.Log.Debug("unsent email body", zap.String("to", msg.To), zap.String("body", msg.HTML))
	return nil
}

type dialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

type SMTPMailer struct {
	cfg     config.SMTPConfig
	dial    dialFunc
	timeout time.Duration
}

// Send delivers msg within the context's deadline, or defaultTimeout when
// that comes first. Cancelling ctx aborts the exchange.
func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	from := m.cfg.From
	if from == "" {
		from = m.cfg.Username
	}

	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
	conn, err := m.dial(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()

	deadline := time.Now().Add(m.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if err := m.deliver(conn, from, msg); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return fmt.Errorf("send mail to %s: %w", msg.To, err)
	}
	return nil
}

func (m *SMTPMailer) deliver(conn net.Conn, from string, msg Message) error {
	c, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		return err
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: m.cfg.Host}); err != nil {
			return err
		}
	}
	if m.cfg.Username != "" {
		if ok, _ := c.Extension("AUTH"); !ok {
			return errors.New("server does not support AUTH")
		}
		if err := c.Auth(smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)); err != nil {
			return err
		}
	}
	if err := c.Mail(from); err != nil {
		return err
	}
	if err := c.Rcpt(msg.To); err != nil {
		return err
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(compose(from, msg)); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}

func compose(from string, msg Message) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=UTF-8\r\n\r\n")
	b.WriteString(strings.ReplaceAll(msg.HTML, "\n", "\r\n"))
	return b.Bytes()
}

var resetTemplate = template.Must(template.New("reset").Parse(`<h2>Password Reset Request</h2>
<p>Hello {{.Name}},</p>
<p>You requested a password reset for your {{.AppName}} account.</p>
<p><a href="{{.Link}}">Reset Password</a></p>
<p>Or copy and paste this link into your browser:</p>
<p>{{.Link}}</p>
<p>This link will expire in {{.Expiry}}.</p>
<p>If you didn't request this reset, please ignore this email.</p>
`))

// PasswordReset builds the reset email for a user.
func PasswordReset(appName, to, name, link string, ttl time.Duration) (Message, error) {
	var b bytes.Buffer
	err := resetTemplate.Execute(&b, map[string]string{
		"AppName": appName,
		"Name":    name,
		"Link":    link,
		"Expiry":  formatTTL(ttl),
	})
	if err != nil {
		return Message{}, err
	}
	return Message{To: to, Subject: appName + " - Password Reset", HTML: b.String()}, nil
}

func formatTTL(d time.Duration) string {
	plural := func(n int64, unit string) string {
		if n == 1 {
			return "1 " + unit
		}
		return fmt.Sprintf("%d %ss", n, unit)
	}
	if d >= time.Hour && d%time.Hour == 0 {
		return plural(int64(d/time.Hour), "hour")
	}
	return plural(int64(d.Round(time.Minute)/time.Minute), "minute")
}
