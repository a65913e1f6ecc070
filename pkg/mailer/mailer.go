// Package mailer sends transactional email over a bounded pool of SMTP
// connections.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/textproto"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/wneessen/go-mail"
)

// Message is an outbound email with HTML and plain-text bodies
type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// Sender delivers messages
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Config holds SMTP settings
type Config struct {
	Host           string
	Port           int
	Username       string
	Password       string
	From           string
	MaxConnections int
	MaxRetries     int
}

// conn is the part of *mail.Client the pool uses
type conn interface {
	Send(msgs ...*mail.Msg) error
	Reset() error
	Close() error
}

type dialFunc func(ctx context.Context) (conn, error)

// Pool owns up to MaxConnections SMTP connections. Idle connections are
// reused after a RSET probe; broken ones are closed and redialled lazily.
type Pool struct {
	cfg    Config
	logger *logrus.Logger
	dial   dialFunc
	idle   chan conn
	slots  chan struct{}
	after  func(time.Duration) <-chan time.Time
}

// NewPool creates a pool. No connection is opened until the first send.
func NewPool(cfg Config, logger *logrus.Logger) *Pool {
	p := newPool(cfg, logger, nil)
	p.dial = p.dialSMTP
	return p
}

func newPool(cfg Config, logger *logrus.Logger, dial dialFunc) *Pool {
	if cfg.MaxConnections < 1 {
		cfg.MaxConnections = 1
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &Pool{
		cfg:    cfg,
		logger: logger,
		dial:   dial,
		idle:   make(chan conn, cfg.MaxConnections),
		slots:  make(chan struct{}, cfg.MaxConnections),
		after:  time.After,
	}
}

func (p *Pool) dialSMTP(ctx context.Context) (conn, error) {
	client, err := mail.NewClient(p.cfg.Host,
		mail.WithPort(p.cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(p.cfg.Username),
		mail.WithPassword(p.cfg.Password),
		mail.WithTLSPortPolicy(mail.TLSMandatory),
		mail.WithTimeout(15*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create smtp client: %w", err)
	}
	if err := client.DialWithContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to smtp server: %w", err)
	}
	return client, nil
}

// EnsureReady returns a healthy connection, reusing an idle one when
// possible. The caller must hand it back with release.
func (p *Pool) EnsureReady(ctx context.Context) (conn, error) {
	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	for {
		select {
		case c := <-p.idle:
			err := c.Reset()
			if err == nil {
				return c, nil
			}
			p.logger.WithError(err).Debug("Discarding stale SMTP connection")
			c.Close()
		default:
			c, err := p.dial(ctx)
			if err != nil {
				<-p.slots
				return nil, err
			}
			return c, nil
		}
	}
}

func (p *Pool) release(c conn, healthy bool) {
	if healthy {
		select {
		case p.idle <- c:
		default:
			c.Close()
		}
	} else {
		c.Close()
	}
	<-p.slots
}

// Send delivers msg, retrying transient failures with exponential backoff
func (p *Pool) Send(ctx context.Context, msg Message) error {
	m, err := p.build(msg)
	if err != nil {
		return err
	}

	for attempt := 0; ; attempt++ {
		err = p.sendOnce(ctx, m)
		if err == nil {
			return nil
		}
		if !IsRetryable(err) || attempt >= p.cfg.MaxRetries {
			return fmt.Errorf("failed to send mail: %w", err)
		}

		wait := Backoff(attempt)
		p.logger.WithError(err).WithFields(logrus.Fields{
			"attempt":  attempt + 1,
			"retry_in": wait.String(),
		}).Warn("Transient mail failure, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.after(wait):
		}
	}
}

func (p *Pool) sendOnce(ctx context.Context, m *mail.Msg) error {
	c, err := p.EnsureReady(ctx)
	if err != nil {
		return err
	}
	err = c.Send(m)
	p.release(c, err == nil)
	return err
}

func (p *Pool) build(msg Message) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.From(p.cfg.From); err != nil {
		return nil, fmt.Errorf("invalid sender address: %w", err)
	}
	if err := m.To(msg.To); err != nil {
		return nil, fmt.Errorf("invalid recipient address: %w", err)
	}
	m.Subject(msg.Subject)
	if msg.Text != "" {
		m.SetBodyString(mail.TypeTextPlain, msg.Text)
		if msg.HTML != "" {
			m.AddAlternativeString(mail.TypeTextHTML, msg.HTML)
		}
	} else {
		m.SetBodyString(mail.TypeTextHTML, msg.HTML)
	}
	return m, nil
}

// Close closes every idle connection
func (p *Pool) Close() error {
	for {
		select {
		case c := <-p.idle:
			c.Close()
		default:
			return nil
		}
	}
}

// Backoff returns min(30s, 1s * 2^attempt)
func Backoff(attempt int) time.Duration {
	const ceiling = 30 * time.Second
	if attempt >= 5 {
		return ceiling
	}
	d := time.Second << uint(attempt)
	if d > ceiling {
		return ceiling
	}
	return d
}

// IsRetryable reports whether err is a transient transport failure.
// Authentication failures never are.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		switch tpErr.Code {
		case 530, 534, 535:
			return false
		}
		return tpErr.Code >= 400 && tpErr.Code < 500
	}

	var sendErr *mail.SendError
	if errors.As(err, &sendErr) {
		return sendErr.IsTemp()
	}

	for _, errno := range []syscall.Errno{syscall.ETIMEDOUT, syscall.ECONNREFUSED, syscall.ECONNRESET, syscall.EHOSTUNREACH} {
		if errors.Is(err, errno) {
			return true
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	return strings.Contains(strings.ToLower(err.Error()), "connection reset")
}

// LogSender writes messages to the log instead of sending them
type LogSender struct {
	Logger *logrus.Logger
}

// Send implements Sender
func (s LogSender) Send(_ context.Context, msg Message) error {
	s.Logger.WithFields(logrus.Fields{
		"to":      msg.To,
		"subject": msg.Subject,
	}).Info("SMTP not configured, mail not sent")
	return nil
}
