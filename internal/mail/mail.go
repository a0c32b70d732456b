// Package mail sends the account emails: address confirmation and password
// reset. Sender is the transport; the message bodies are rendered here.
package mail

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
)

// Sender delivers one HTML message.
type Sender interface {
	Send(ctx context.Context, subject, recipient, htmlBody string) error
}

var (
	confirmTmpl = template.Must(template.New("confirm").Parse(
		`<p>Welcome to classplanner!</p>` +
			`<p>Please confirm your email address by following this link:</p>` +
			`<p><a href="{{.Link}}">{{.Link}}</a></p>` +
			`<p>The link expires in 24 hours.</p>`))

	resetTmpl = template.Must(template.New("reset").Parse(
		`<p>Someone asked to reset the password for your classplanner account.</p>` +
			`<p><a href="{{.Link}}">Choose a new password</a></p>` +
			`<p>If that wasn't you, ignore this email. The link expires in 24 hours.</p>`))
)

const (
	ConfirmSubject = "Confirm your email"
	ResetSubject   = "Reset your password"
)

// ConfirmBody renders the confirmation email for link.
func ConfirmBody(link string) (string, error) {
	return render(confirmTmpl, link)
}

// ResetBody renders the password reset email for link.
func ResetBody(link string) (string, error) {
	return render(resetTmpl, link)
}

func render(t *template.Template, link string) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, struct{ Link string }{link}); err != nil {
		return "", fmt.Errorf("mail: rendering %s: %w", t.Name(), err)
	}
	return buf.String(), nil
}
