// 외부 Mailgun API와 통신하는 클라이언트 정의
//
// 설정값 (config.MailConfig):
//   - MAILGUN_DOMAIN: 발신 도메인 (mg.example.com)
//   - MAILGUN_API_KEY: private API key
//   - MAILGUN_API_BASE: EU 리전이면 https://api.eu.mailgun.net
//
// 전송은 mailgun-go SDK가 담당합니다. API_BASE에 /v3가 없으면 붙여서 넘깁니다.

package client

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mailgun/mailgun-go/v4"

	"github.com/amazona/backend/internal/config"
	"github.com/amazona/backend/internal/logger"
	"github.com/amazona/backend/internal/model"
)

const mailgunAPIVersion = "/v3"

// MailgunClient sends messages through the Mailgun messages API.
type MailgunClient struct {
	mg     *mailgun.MailgunImpl
	domain string
	apiKey string
	from   string
}

func NewMailgunClient(cfg config.MailConfig) *MailgunClient {
	mg := mailgun.NewMailgun(cfg.Domain, cfg.APIKey)
	if base := mailgunAPIBase(cfg.APIBase); base != "" {
		mg.SetAPIBase(base)
	}
	return &MailgunClient{
		mg:     mg,
		domain: cfg.Domain,
		apiKey: cfg.APIKey,
		from:   cfg.From,
	}
}

// IsConfigured reports whether domain and API key are both set.
func (c *MailgunClient) IsConfigured() bool {
	return c.domain != "" && c.apiKey != ""
}

func (c *MailgunClient) Send(ctx context.Context, msg model.MailMessage) error {
	if !c.IsConfigured() {
		return fmt.Errorf("mailgun domain or API key not configured")
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
	}

	message := c.mg.NewMessage(c.from, msg.Subject, "", msg.To)
	message.SetHtml(msg.HTML)

	if _, _, err := c.mg.Send(ctx, message); err != nil {
		if status := mailgun.GetStatusFromErr(err); status > 0 {
			return fmt.Errorf("mailgun API error (%d): %w", status, err)
		}
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// mailgunAPIBase turns MAILGUN_API_BASE into the versioned base the SDK
// expects. Empty input keeps the SDK default.
func mailgunAPIBase(base string) string {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if base == "" || strings.HasSuffix(base, mailgunAPIVersion) {
		return base
	}
	return base + mailgunAPIVersion
}

// LogMailer stands in for Mailgun in development: the message, reset link
// included, goes to the log instead of an inbox.
type LogMailer struct {
	log *logger.Logger
}

func NewLogMailer(log *logger.Logger) *LogMailer {
	return &LogMailer{log: log}
}

func (m *LogMailer) Send(ctx context.Context, msg model.MailMessage) error {
	m.log.InfoContext(ctx, "mail delivery disabled, message logged", "to", msg.To, "subject", msg.Subject, "html", msg.HTML)
	return nil
}

// Mailer is satisfied by MailgunClient and LogMailer.
type Mailer interface {
	Send(ctx context.Context, msg model.MailMessage) error
}

// NewMailer returns a Mailgun client when cfg is complete and a LogMailer
// otherwise.
func NewMailer(cfg config.MailConfig, log *logger.Logger) Mailer {
	mailgun := NewMailgunClient(cfg)
	if mailgun.IsConfigured() {
		return mailgun
	}
	log.Warn("mailgun is not configured, mail will only be logged")
	return NewLogMailer(log)
}
