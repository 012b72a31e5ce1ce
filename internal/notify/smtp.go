package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/medivault/internal/config"
)

type SMTPNotifier struct {
	cfg        config.SMTPConfig
	maxRetries uint64
	timeout    time.Duration
	logger     *zap.Logger
}

func NewSMTPNotifier(cfg config.SMTPConfig, logger *zap.Logger) *SMTPNotifier {
	return &SMTPNotifier{
		cfg:        cfg,
		maxRetries: 2,
		timeout:    10 * time.Second,
		logger:     logger,
	}
}

// Send retries transient failures a bounded number of times. Every attempt
// carries the same Message-ID so relays can drop duplicates.
func (n *SMTPNotifier) Send(ctx context.Context, to, subject, body string) error {
	msgID := fmt.Sprintf("<%s@%s>", uuid.NewString(), n.cfg.Host)
	msg := buildMessage(n.cfg.From, to, subject, body, msgID)

	attempt := 0
	op := func() error {
		attempt++
		err := n.deliver(to, msg)
		if err != nil {
			n.logger.Warn("smtp delivery attempt failed",
				zap.String("to", to),
				zap.Int("attempt", attempt),
				zap.Error(err))
		}
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxElapsedTime = n.timeout

	if err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, n.maxRetries), ctx)); err != nil {
		return fmt.Errorf("send mail to %s: %w", to, err)
	}
	return nil
}

func (n *SMTPNotifier) deliver(to string, msg []byte) error {
	addr := net.JoinHostPort(n.cfg.Host, n.cfg.Port)
	tlsConfig := &tls.Config{ServerName: n.cfg.Host}

	var client *smtp.Client
	if n.cfg.Port == "465" {
		// implicit TLS
		conn, err := tls.DialWithDialer(&net.Dialer{Timeout: n.timeout}, "tcp", addr, tlsConfig)
		if err != nil {
			return err
		}
		client, err = smtp.NewClient(conn, n.cfg.Host)
		if err != nil {
			_ = conn.Close()
			return err
		}
	} else {
		conn, err := net.DialTimeout("tcp", addr, n.timeout)
		if err != nil {
			return err
		}
		client, err = smtp.NewClient(conn, n.cfg.Host)
		if err != nil {
			_ = conn.Close()
			return err
		}
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(tlsConfig); err != nil {
				_ = client.Close()
				return err
			}
		}
	}
	defer client.Quit()

	if n.cfg.Username != "" {
		auth := smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return err
		}
	}

	if err := client.Mail(n.cfg.From); err != nil {
		return err
	}
	if err := client.Rcpt(to); err != nil {
		return err
	}

	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	return w.Close()
}

func buildMessage(from, to, subject, body, msgID string) []byte {
	var sb strings.Builder
	fmt.Fprintf(&sb, "From: %s\r\n", from)
	fmt.Fprintf(&sb, "To: %s\r\n", to)
	fmt.Fprintf(&sb, "Subject: %s\r\n", subject)
	fmt.Fprintf(&sb, "Message-ID: %s\r\n", msgID)
	sb.WriteString("MIME-Version: 1.0\r\n")
	sb.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	sb.WriteString("\r\n")
	sb.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return []byte(sb.String())
}
