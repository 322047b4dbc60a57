package reply

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/smtp"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/google/uuid"

	"github.com/nhle/smstask/internal/logging"
	"github.com/nhle/smstask/internal/metrics"
)

// Relay transmits one composed message.
type Relay interface {
	Deliver(ctx context.Context, from string, to []string, msg []byte) error
}

// SMTPRelay delivers through an authenticated SMTP server.
type SMTPRelay struct {
	Host     string
	Port     string
	Username string
	Password string
	// TLS selects implicit TLS; otherwise STARTTLS is used.
	TLS bool
}

const dialTimeout = 30 * time.Second

// Deliver dials, authenticates with PLAIN, sends msg and quits.
func (r SMTPRelay) Deliver(ctx context.Context, from string, to []string, msg []byte) error {
	addr := net.JoinHostPort(r.Host, r.Port)
	tlsConfig := &tls.Config{ServerName: r.Host}

	dialer := &net.Dialer{Timeout: dialTimeout}
	var conn net.Conn
	var err error
	if r.TLS {
		conn, err = (&tls.Dialer{NetDialer: dialer, Config: tlsConfig}).DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return fmt.Errorf("dial to %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, r.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("creating SMTP client: %w", err)
	}
	defer client.Close()

	if !r.TLS {
		if err := client.StartTLS(tlsConfig); err != nil {
			return fmt.Errorf("SMTP STARTTLS: %w", err)
		}
	}

	if err := client.Auth(smtp.PlainAuth("", r.Username, r.Password, r.Host)); err != nil {
		return fmt.Errorf("SMTP auth: %w", err)
	}

	if err := client.Mail(from); err != nil {
		return fmt.Errorf("SMTP MAIL FROM: %w", err)
	}
	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("SMTP RCPT TO %s: %w", rcpt, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("SMTP DATA: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("writing message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("closing message: %w", err)
	}

	return client.Quit()
}

// Channel sends reply bodies from the service account to one recipient.
type Channel struct {
	relay   Relay
	from    string
	to      string
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// ChannelOption configures a Channel.
type ChannelOption func(*Channel)

func WithLogger(l *slog.Logger) ChannelOption {
	return func(c *Channel) { c.logger = l }
}

func WithMetrics(m *metrics.Metrics) ChannelOption {
	return func(c *Channel) { c.metrics = m }
}

// NewChannel returns a channel sending as from to the gateway address to.
func NewChannel(relay Relay, from, to string, opts ...ChannelOption) *Channel {
	c := &Channel{
		relay:  relay,
		from:   from,
		to:     to,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.Component(c.logger, "reply")
	return c
}

// Send delivers body as a plain-text message. Failures are logged and
// dropped; there is no retry.
func (c *Channel) Send(ctx context.Context, body string) {
	msg, err := c.compose(body)
	if err != nil {
		c.metrics.ReplySent(logging.OutcomeFailed)
		c.logger.Error("composing reply", logging.Err(err))
		return
	}

	if err := c.relay.Deliver(ctx, c.from, []string{c.to}, msg); err != nil {
		c.metrics.ReplySent(logging.OutcomeFailed)
		c.logger.Error("reply not delivered", slog.String("to", logging.MaskOwner(c.to)), logging.Err(err))
		return
	}

	c.metrics.ReplySent(logging.OutcomeOK)
	c.logger.Info("reply sent", slog.String("to", logging.MaskOwner(c.to)), slog.Int("bytes", len(body)))
}

func (c *Channel) compose(body string) ([]byte, error) {
	var h mail.Header
	h.SetDate(c.now())
	h.SetAddressList("From", []*mail.Address{{Address: c.from}})
	h.SetAddressList("To", []*mail.Address{{Address: c.to}})
	h.SetMessageID(uuid.NewString() + "@smstask")
	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("creating message writer: %w", err)
	}
	if _, err := io.WriteString(w, body); err != nil {
		return nil, fmt.Errorf("writing body: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("closing message: %w", err)
	}
	return buf.Bytes(), nil
}
