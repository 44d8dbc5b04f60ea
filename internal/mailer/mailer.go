// Package mailer はメール確認とパスワード再設定のメール送信を提供する。
package mailer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/wneessen/go-mail"
)

// Email は送信するメール。
type Email struct {
	To      string
	Subject string
	Body    string
}

// Transport はメールの配送手段。
type Transport interface {
	Send(ctx context.Context, email *Email) error
}

// SMTPConfig はSMTP送信の設定。
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	TLS      bool
}

// SMTPTransport はgo-mailでSMTP送信を行う。
type SMTPTransport struct {
	client *mail.Client
	from   string
}

// NewSMTPTransport はSMTPTransportを生成する。接続は送信時に行う。
func NewSMTPTransport(cfg SMTPConfig) (*SMTPTransport, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("smtp host is required")
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("smtp from address is required")
	}

	var options []mail.Option
	if cfg.Port != 0 {
		options = append(options, mail.WithPort(cfg.Port))
	}
	if cfg.Username != "" {
		options = append(options,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}
	if cfg.TLS {
		options = append(options, mail.WithTLSPolicy(mail.TLSMandatory))
	} else {
		options = append(options, mail.WithTLSPolicy(mail.TLSOpportunistic))
	}
	options = append(options, mail.WithTimeout(10*time.Second))

	client, err := mail.NewClient(cfg.Host, options...)
	if err != nil {
		return nil, fmt.Errorf("failed to create smtp client: %w", err)
	}

	return &SMTPTransport{client: client, from: cfg.From}, nil
}

// Send はメールを1通送信する。
func (t *SMTPTransport) Send(ctx context.Context, email *Email) error {
	msg, err := buildMessage(t.from, email)
	if err != nil {
		return err
	}
	if err := t.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("failed to send mail: %w", err)
	}
	return nil
}

// buildMessage はEmailからgo-mailのメッセージを組み立てる。
func buildMessage(from string, email *Email) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(from); err != nil {
		return nil, fmt.Errorf("invalid from address: %w", err)
	}
	if err := msg.To(email.To); err != nil {
		return nil, fmt.Errorf("invalid recipient address: %w", err)
	}
	msg.Subject(email.Subject)
	msg.SetBodyString(mail.TypeTextPlain, email.Body)
	return msg, nil
}

// LogTransport はメールを送信せずにログに出力する。SMTP未設定の開発環境用。
type LogTransport struct {
	logger *slog.Logger
}

// NewLogTransport はLogTransportを生成する。
func NewLogTransport(logger *slog.Logger) *LogTransport {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogTransport{logger: logger}
}

// Send はメールの内容をログに出力する。
func (t *LogTransport) Send(ctx context.Context, email *Email) error {
	t.logger.InfoContext(ctx, "mail delivery skipped (smtp not configured)",
		slog.String("to", email.To),
		slog.String("subject", email.Subject),
		slog.String("body", email.Body),
	)
	return nil
}

// Mailer は用途別のメールを組み立てて送信する。
type Mailer struct {
	transport Transport
	templates *TemplateRegistry
}

// New はMailerを生成する。
func New(transport Transport) (*Mailer, error) {
	templates, err := NewTemplateRegistry()
	if err != nil {
		return nil, err
	}
	return &Mailer{transport: transport, templates: templates}, nil
}

// SendVerification はメールアドレス確認用のリンクを送信する。
func (m *Mailer) SendVerification(ctx context.Context, to, link string, ttl time.Duration) error {
	return m.send(ctx, TemplateEmailVerification, to, link, ttl)
}

// SendPasswordReset はパスワード再設定用のリンクを送信する。
func (m *Mailer) SendPasswordReset(ctx context.Context, to, link string, ttl time.Duration) error {
	return m.send(ctx, TemplatePasswordReset, to, link, ttl)
}

func (m *Mailer) send(ctx context.Context, name, to, link string, ttl time.Duration) error {
	email, err := m.templates.Render(name, TemplateData{
		LoginID: to,
		Link:    link,
		Expires: formatTTL(ttl),
	})
	if err != nil {
		return err
	}
	email.To = to

	if err := m.transport.Send(ctx, email); err != nil {
		return fmt.Errorf("failed to deliver %s mail: %w", name, err)
	}
	return nil
}

// formatTTL は有効期間を「24時間」「30分」のような表記にする。
func formatTTL(d time.Duration) string {
	if d >= time.Hour && d%time.Hour == 0 {
		return fmt.Sprintf("%d時間", int(d/time.Hour))
	}
	return fmt.Sprintf("%d分", int(d/time.Minute))
}
