// mailer/mailer.go
package mailer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/resend/resend-go/v2"
	"go.uber.org/zap"
)

// Message is one outbound email.
type Message struct {
	From    string
	To      []string
	Subject string
	HTML    string
	Tags    map[string]string
}

// Mailer delivers a message. Implementations must honour ctx cancellation.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

var ErrNoAPIKey = errors.New("resend api key not configured")

// ResendMailer delivers through the Resend API.
type ResendMailer struct {
	client *resend.Client
	apiKey string
}

// NewResendMailer builds a client for baseURL ("" keeps the SDK default).
// timeout caps each HTTP exchange; callers may tighten it through ctx.
func NewResendMailer(baseURL, apiKey string, timeout time.Duration) (*ResendMailer, error) {
	client := resend.NewCustomClient(&http.Client{Timeout: timeout}, apiKey)
	if baseURL != "" {
		u, err := url.Parse(strings.TrimRight(baseURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("invalid resend base url %q: %w", baseURL, err)
		}
		client.BaseURL = u
	}
	return &ResendMailer{client: client, apiKey: apiKey}, nil
}

func (m *ResendMailer) Send(ctx context.Context, msg Message) error {
	if m.apiKey == "" {
		return ErrNoAPIKey
	}

	req := &resend.SendEmailRequest{
		From:    msg.From,
		To:      msg.To,
		Subject: msg.Subject,
		Html:    msg.HTML,
	}
	names := make([]string, 0, len(msg.Tags))
	for name := range msg.Tags {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		req.Tags = append(req.Tags, resend.Tag{Name: name, Value: msg.Tags[name]})
	}

	sent, err := m.client.Emails.SendWithContext(ctx, req)
	if err != nil {
		zap.L().Warn("resend rejected email", zap.Strings("to", msg.To), zap.Error(err))
		return fmt.Errorf("failed to send via resend: %w", err)
	}
	zap.L().Debug("email accepted by resend", zap.String("id", sent.Id))
	return nil
}
