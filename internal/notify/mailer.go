// Package notify delivers the daily digest by email.
package notify

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/wneessen/go-mail"
	"go.uber.org/zap"

	"github.com/oscarsierraproject/covid19pl/internal/config"
	"github.com/oscarsierraproject/covid19pl/internal/resilience"
)

// ErrNotConfigured is returned when the SMTP settings are incomplete.
var ErrNotConfigured = eris.New("notify: smtp settings incomplete")

// Transport hands finished messages to an SMTP server. *mail.Client
// implements it.
type Transport interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// Message is one plain-text email.
type Message struct {
	From    string
	To      []string
	Subject string
	Body    string
	Date    time.Time
}

// Mailer sends messages through the configured SMTP server.
type Mailer struct {
	cfg       config.EmailConfig
	transport Transport
	policy    resilience.Policy
	log       *zap.Logger
}

// Option configures a Mailer.
type Option func(*Mailer)

// WithTransport replaces the SMTP client.
func WithTransport(t Transport) Option {
	return func(m *Mailer) {
		if t != nil {
			m.transport = t
		}
	}
}

// WithPolicy overrides the delivery retry policy.
func WithPolicy(p resilience.Policy) Option {
	return func(m *Mailer) { m.policy = p }
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(m *Mailer) {
		if log != nil {
			m.log = log
		}
	}
}

// NewMailer returns a Mailer for cfg. It fails with ErrNotConfigured when
// the server address, port or credentials are missing.
func NewMailer(cfg config.EmailConfig, opts ...Option) (*Mailer, error) {
	if !cfg.Configured() {
		return nil, ErrNotConfigured
	}
	m := &Mailer{
		cfg:    cfg,
		policy: resilience.MailPolicy(),
		log:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.transport == nil {
		client, err := newClient(cfg)
		if err != nil {
			return nil, err
		}
		m.transport = client
	}
	if m.policy.OnRetry == nil {
		m.policy.OnRetry = resilience.RetryLogger(m.log, "smtp_send")
	}
	return m, nil
}

// newClient dials with PLAIN auth over STARTTLS, or implicit TLS on 465.
func newClient(cfg config.EmailConfig) (*mail.Client, error) {
	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(cfg.Login),
		mail.WithPassword(cfg.Password),
		mail.WithTLSPolicy(mail.TLSMandatory),
	}
	if cfg.Port == 465 {
		opts = append(opts, mail.WithSSL())
	}
	client, err := mail.NewClient(cfg.Addr, opts...)
	if err != nil {
		return nil, eris.Wrapf(err, "notify: smtp client for %s", cfg.Addr)
	}
	return client, nil
}

// Sender returns the envelope sender: email.from, or the login when unset.
func (m *Mailer) Sender() string {
	if m.cfg.From != "" {
		return m.cfg.From
	}
	return m.cfg.Login
}

// Send delivers a plain-text message to recipients, retrying transient
// SMTP failures.
func (m *Mailer) Send(ctx context.Context, subject, body string, recipients []string) error {
	to := cleanRecipients(recipients)
	if len(to) == 0 {
		return eris.New("notify: no recipients")
	}

	msg, err := Message{
		From:    m.Sender(),
		To:      to,
		Subject: subject,
		Body:    body,
		Date:    time.Now(),
	}.Build()
	if err != nil {
		return err
	}

	err = resilience.Do(ctx, m.policy, func(ctx context.Context) error {
		return m.transport.DialAndSendWithContext(ctx, msg)
	})
	if err != nil {
		m.log.Error("failed to send mail", zap.Strings("to", to), zap.Error(err))
		return eris.Wrapf(err, "notify: send to %s", strings.Join(to, ", "))
	}

	m.log.Info("sent mail", zap.Strings("to", to), zap.String("subject", subject))
	return nil
}

// Build turns the message into a go-mail message with an 8bit UTF-8 body.
func (msg Message) Build() (*mail.Msg, error) {
	if msg.From == "" {
		return nil, eris.New("notify: message without sender")
	}
	if len(msg.To) == 0 {
		return nil, eris.New("notify: message without recipients")
	}
	for _, v := range append([]string{msg.From, msg.Subject}, msg.To...) {
		if strings.ContainsAny(v, "\r\n") {
			return nil, eris.Errorf("notify: header value %q contains a line break", v)
		}
	}

	date := msg.Date
	if date.IsZero() {
		date = time.Now()
	}

	m := mail.NewMsg(mail.WithEncoding(mail.NoEncoding))
	if err := m.From(msg.From); err != nil {
		return nil, eris.Wrapf(err, "notify: sender %q", msg.From)
	}
	if err := m.To(msg.To...); err != nil {
		return nil, eris.Wrapf(err, "notify: recipients %v", msg.To)
	}
	m.Subject(msg.Subject)
	m.SetDateWithValue(date)
	m.SetMessageIDWithValue(uuid.NewString() + "@covid19pl")
	m.SetBodyString(mail.TypeTextPlain, msg.Body)
	return m, nil
}

func cleanRecipients(in []string) []string {
	out := make([]string, 0, len(in))
	for _, r := range in {
		for _, part := range strings.Split(r, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
