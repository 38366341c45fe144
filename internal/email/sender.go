// Package email renders the account emails and hands them to a delivery backend.
package email

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
)

const (
	TemplateEmailVerification = "email-verification"
	TemplatePasswordReset     = "password-reset"
)

// Sender delivers a templated email. Implementations must be safe for
// concurrent use.
type Sender interface {
	SendTemplated(ctx context.Context, templateID string, to string, substitutions map[string]string) error
}

type Message struct {
	TemplateID string
	To         string
	Subject    string
	HTML       string
}

//go:embed templates/*.html
var templateFiles embed.FS

var subjects = map[string]string{
	TemplateEmailVerification: "Verify your email address",
	TemplatePasswordReset:     "Reset your password",
}

var templates = template.Must(template.New("email").Option("missingkey=zero").ParseFS(templateFiles, "templates/*.html"))

// Render builds the subject and HTML body for templateID.
func Render(templateID string, to string, substitutions map[string]string) (Message, error) {
	subject, ok := subjects[templateID]
	if !ok {
		return Message{}, fmt.Errorf("unknown email template %q", templateID)
	}

	var body bytes.Buffer
	if err := templates.ExecuteTemplate(&body, templateID+".html", substitutions); err != nil {
		return Message{}, fmt.Errorf("render %s: %w", templateID, err)
	}

	return Message{
		TemplateID: templateID,
		To:         to,
		Subject:    subject,
		HTML:       body.String(),
	}, nil
}
