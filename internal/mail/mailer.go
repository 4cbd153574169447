package mail

import (
	"bytes"
	"crypto/tls"
	"fmt"
	"html/template"
	"log"
	"net/smtp"
	"time"

	"github.com/knadh/smtppool"
	"github.com/spf13/viper"
)

// WelcomeEmail is the payload for the onboarding notification sent after an
// official's account is approved.
type WelcomeEmail struct {
	OfficialName string `json:"officialName" validate:"required"`
	Email        string `json:"email" validate:"required,email"`
	Position     string `json:"position" validate:"required"`
	Barangay     string `json:"barangay" validate:"required"`
	ResetURL     string `json:"resetUrl" validate:"required,url"`
}

// Mailer sends notification emails. Delivery is fire-and-forget from the
// caller's perspective and never participates in any rollback chain.
type Mailer interface {
	SendWelcome(email WelcomeEmail) error
}

var welcomeTemplate = template.Must(template.New("welcome").Parse(`
<html>
<body style="font-family: Arial, sans-serif;">
	<h2>Welcome to Barangay {{.Barangay}} Online Services</h2>
	<p>Dear {{.OfficialName}},</p>
	<p>Your account as <strong>{{.Position}}</strong> of Barangay {{.Barangay}}
	has been approved. You can now sign in with your registered email address.</p>
	<p>For your security, please set your own password before first use:</p>
	<p><a href="{{.ResetURL}}">Set your password</a></p>
	<p>If you did not expect this email, please contact your barangay administrator.</p>
</body>
</html>
`))

// SMTPMailer delivers mail through a pooled SMTP connection.
type SMTPMailer struct {
	pool *smtppool.Pool
	from string
}

// NewSMTPMailer builds a mailer from viper SMTP settings. Returns nil when no
// SMTP host is configured; the app degrades to logging the notification.
func NewSMTPMailer() *SMTPMailer {
	viper.SetDefault("smtp.port", 587)
	viper.SetDefault("smtp.max_conns", 4)
	viper.SetDefault("smtp.send_timeout", 15*time.Second)
	viper.SetDefault("smtp.from", "no-reply@barangaylink.ph")

	host := viper.GetString("smtp.host")
	if host == "" {
		return nil
	}

	var auth smtp.Auth
	if user := viper.GetString("smtp.username"); user != "" {
		auth = smtp.PlainAuth("", user, viper.GetString("smtp.password"), host)
	}

	pool, err := smtppool.New(smtppool.Opt{
		Host:            host,
		Port:            viper.GetInt("smtp.port"),
		MaxConns:        viper.GetInt("smtp.max_conns"),
		IdleTimeout:     viper.GetDuration("smtp.send_timeout"),
		PoolWaitTimeout: viper.GetDuration("smtp.send_timeout"),
		TLSConfig:       &tls.Config{ServerName: host},
		Auth:            auth,
	})
	if err != nil {
		log.Printf("[MAIL] SMTP pool setup failed, continuing without mailer: %v", err)
		return nil
	}

	return &SMTPMailer{pool: pool, from: viper.GetString("smtp.from")}
}

func (m *SMTPMailer) SendWelcome(payload WelcomeEmail) error {
	var body bytes.Buffer
	if err := welcomeTemplate.Execute(&body, payload); err != nil {
		return fmt.Errorf("render welcome email: %w", err)
	}

	err := m.pool.Send(smtppool.Email{
		From:    m.from,
		To:      []string{payload.Email},
		Subject: fmt.Sprintf("Barangay %s — your official account is approved", payload.Barangay),
		HTML:    body.Bytes(),
	})
	if err != nil {
		return fmt.Errorf("send welcome email: %w", err)
	}
	return nil
}

// LogMailer is the fallback when SMTP is not configured; it records the
// notification instead of delivering it.
type LogMailer struct{}

func (LogMailer) SendWelcome(payload WelcomeEmail) error {
	log.Printf("[MAIL] SMTP not configured; welcome email for %s (%s) not delivered", payload.OfficialName, payload.Email)
	return nil
}
