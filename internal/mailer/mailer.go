// Package mailer renders and delivers the transactional emails of the
// authentication flows.
package mailer

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"net/url"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

type Message struct {
	To      string
	Subject string
	HTML    string
}

// Sender is a delivery transport.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

type Mailer struct {
	sender  Sender
	baseURL string
	appName string
}

func New(sender Sender, baseURL string, appName string) *Mailer {
	if appName == "" {
		appName = "Rainbow Buyers"
	}
	return &Mailer{sender: sender, baseURL: baseURL, appName: appName}
}

type codeData struct {
	AppName string
	Name    string
	Code    string
	Minutes int
}

type linkData struct {
	AppName string
	Name    string
	Link    string
	Minutes int
}

func (m *Mailer) SendLoginOTP(ctx context.Context, to string, name string, code string, ttl time.Duration) error {
	return m.send(ctx, to, "Your login code", "otp.html", codeData{
		AppName: m.appName, Name: name, Code: code, Minutes: minutes(ttl),
	})
}

func (m *Mailer) SendPasswordResetOTP(ctx context.Context, to string, name string, code string, ttl time.Duration) error {
	return m.send(ctx, to, "Reset your password", "password_reset.html", codeData{
		AppName: m.appName, Name: name, Code: code, Minutes: minutes(ttl),
	})
}

func (m *Mailer) SendVerificationLink(ctx context.Context, to string, name string, token string, ttl time.Duration) error {
	return m.send(ctx, to, "Verify your email", "verify_email.html", linkData{
		AppName: m.appName, Name: name, Link: m.VerificationLink(token), Minutes: minutes(ttl),
	})
}

// VerificationLink points at the storefront page that redeems the token.
func (m *Mailer) VerificationLink(token string) string {
	return m.baseURL + "/auth/verify-email?token=" + url.QueryEscape(token)
}

func (m *Mailer) send(ctx context.Context, to string, subject string, tmpl string, data any) error {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, tmpl, data); err != nil {
		return fmt.Errorf("render %s: %w", tmpl, err)
	}

	if err := m.sender.Send(ctx, Message{To: to, Subject: subject, HTML: buf.String()}); err != nil {
		return fmt.Errorf("send %q to %s: %w", subject, to, err)
	}
	return nil
}

func minutes(d time.Duration) int {
	return int((d + time.Minute - 1) / time.Minute)
}
