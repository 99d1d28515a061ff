package notify

import (
	"context"
	"errors"

	"gopkg.in/gomail.v2"
)

// MailSender delivers composed messages. *gomail.Dialer satisfies it.
type MailSender interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPConfig holds relay settings.
type SMTPConfig struct {
	Host     string   `mapstructure:"host" yaml:"host"`
	Port     int      `mapstructure:"port" yaml:"port"`
	Username string   `mapstructure:"username" yaml:"username"`
	Password string   `mapstructure:"password" yaml:"password"`
	From     string   `mapstructure:"from" yaml:"from"`
	To       []string `mapstructure:"to" yaml:"to"`
}

// EmailChannel sends HTML alert emails over SMTP.
type EmailChannel struct {
	sender MailSender
	from   string
	to     []string
}

// NewEmailChannel dials the configured relay for every send.
func NewEmailChannel(cfg SMTPConfig) (*EmailChannel, error) {
	if cfg.Host == "" {
		return nil, errors.New("email channel: empty smtp host")
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	dialer := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	from := cfg.From
	if from == "" {
		from = cfg.Username
	}
	return NewEmailChannelWithSender(dialer, from, cfg.To)
}

// NewEmailChannelWithSender constructs a channel over an existing sender.
func NewEmailChannelWithSender(sender MailSender, from string, to []string) (*EmailChannel, error) {
	if sender == nil {
		return nil, errors.New("email channel: nil sender")
	}
	if from == "" {
		return nil, errors.New("email channel: empty sender address")
	}
	if len(to) == 0 {
		return nil, errors.New("email channel: no recipients")
	}
	return &EmailChannel{sender: sender, from: from, to: to}, nil
}

// Name implements Channel.
func (e *EmailChannel) Name() string { return "email" }

// Send composes a multipart message with the HTML body preferred.
func (e *EmailChannel) Send(ctx context.Context, msg Message) error {
	if e == nil || e.sender == nil {
		return errors.New("email channel: nil")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m := gomail.NewMessage()
	m.SetHeader("From", e.from)
	m.SetHeader("To", e.to...)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.Text)
	if msg.HTML != "" {
		m.AddAlternative("text/html", msg.HTML)
	}
	return e.sender.DialAndSend(m)
}
