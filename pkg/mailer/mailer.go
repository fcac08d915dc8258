// Package mailer 提供了基于 SMTP 的邮件发送功能。
// 邮件是尽力而为的通知渠道：调用方记录错误但从不因此失败。
package mailer

import (
	"gopkg.in/gomail.v2"

	"tuneflow-go/internal/config"
)

// Mailer 封装了 SMTP 拨号参数。
type Mailer struct {
	dialer *gomail.Dialer
	from   string
}

// New 根据配置创建一个 Mailer。
func New(cfg config.EmailConfig) *Mailer {
	return &Mailer{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
	}
}

// Send 发送一封纯文本邮件。每次发送独立拨号，失败由调用方记录。
func (m *Mailer) Send(to, subject, body string) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)
	return m.dialer.DialAndSend(msg)
}
