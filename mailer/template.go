package mailer

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"os"
	texttemplate "text/template"

	"gopkg.in/yaml.v3"
)

// InvitationData is what invitation templates can reference.
type InvitationData struct {
	SenderName   string
	ProductName  string
	AffiliateURL string
}

const defaultInvitationSubject = `{{.SenderName}} invited you to {{.ProductName}}`

const defaultInvitationHTML = `<div style="font-family: 'Segoe UI', system-ui, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px;">
  <h1 style="color: #f59e0b;">You're Invited to {{.ProductName}}!</h1>
  <p style="font-size: 16px; color: #333;">
    Hey there! {{.SenderName}} thought you might love this AI-powered copywriting tool.
  </p>
  <p style="font-size: 16px; color: #333;">
    {{.ProductName}} analyzes your marketing copy and gives you instant feedback to improve conversions.
    Start with a free audit today!
  </p>
  <div style="text-align: center; margin: 30px 0;">
    <a href="{{.AffiliateURL}}" style="background-color: #f59e0b; color: white; padding: 16px 32px; text-decoration: none; border-radius: 8px; font-weight: bold; font-size: 16px;">
      Try {{.ProductName}} Free
    </a>
  </div>
  <p style="font-size: 12px; color: #666; margin-top: 30px;">
    This invitation was sent by {{.SenderName}}. If you didn't expect this email, you can safely ignore it.
  </p>
</div>`

// InvitationTemplate renders the subject and HTML body of an invitation.
type InvitationTemplate struct {
	subject *texttemplate.Template
	html    *htmltemplate.Template
}

type templateFile struct {
	Subject string `yaml:"subject"`
	HTML    string `yaml:"html"`
}

// DefaultInvitationTemplate returns the built-in invitation.
func DefaultInvitationTemplate() *InvitationTemplate {
	t, err := parseInvitationTemplate(defaultInvitationSubject, defaultInvitationHTML)
	if err != nil {
		panic(fmt.Sprintf("built-in invitation template is invalid: %v", err))
	}
	return t
}

// LoadInvitationTemplate reads a YAML file with `subject` and `html` keys.
// Missing keys fall back to the built-in template. An empty path returns the default.
func LoadInvitationTemplate(path string) (*InvitationTemplate, error) {
	if path == "" {
		return DefaultInvitationTemplate(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read invitation template: %w", err)
	}
	return ParseInvitationTemplate(raw)
}

// ParseInvitationTemplate parses YAML template content.
func ParseInvitationTemplate(raw []byte) (*InvitationTemplate, error) {
	var f templateFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("decode invitation template: %w", err)
	}
	if f.Subject == "" {
		f.Subject = defaultInvitationSubject
	}
	if f.HTML == "" {
		f.HTML = defaultInvitationHTML
	}
	return parseInvitationTemplate(f.Subject, f.HTML)
}

func parseInvitationTemplate(subject, html string) (*InvitationTemplate, error) {
	st, err := texttemplate.New("subject").Option("missingkey=error").Parse(subject)
	if err != nil {
		return nil, fmt.Errorf("parse subject template: %w", err)
	}
	ht, err := htmltemplate.New("html").Option("missingkey=error").Parse(html)
	if err != nil {
		return nil, fmt.Errorf("parse html template: %w", err)
	}
	return &InvitationTemplate{subject: st, html: ht}, nil
}

// Render produces the subject line and HTML body.
func (t *InvitationTemplate) Render(data InvitationData) (string, string, error) {
	var subject, body bytes.Buffer
	if err := t.subject.Execute(&subject, data); err != nil {
		return "", "", fmt.Errorf("render subject: %w", err)
	}
	if err := t.html.Execute(&body, data); err != nil {
		return "", "", fmt.Errorf("render html: %w", err)
	}
	return subject.String(), body.String(), nil
}
