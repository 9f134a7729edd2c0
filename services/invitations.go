// services/invitations.go
package services

import (
	"context"
	"fmt"
	"time"

	"affiliate-system/config"
	"affiliate-system/mailer"
	"affiliate-system/metrics"
	"affiliate-system/utils"

	"github.com/gosimple/slug"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// SendResult is the per-address outcome of a bulk send.
type SendResult struct {
	Email   string `json:"email"`
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type InvitationService struct {
	Links       *LinkService
	Roster      *RosterService
	Users       *UserDirectory
	Mailer      mailer.Mailer
	Template    *mailer.InvitationTemplate
	Metrics     *metrics.Metrics
	From        string
	ProductName string
	SendTimeout time.Duration
	Concurrency int
	Now         func() time.Time
}

func NewInvitationService(links *LinkService, roster *RosterService, users *UserDirectory, m mailer.Mailer, tmpl *mailer.InvitationTemplate, cfg config.MailConfig) *InvitationService {
	return &InvitationService{
		Links:       links,
		Roster:      roster,
		Users:       users,
		Mailer:      m,
		Template:    tmpl,
		From:        fmt.Sprintf("%s <%s>", cfg.ProductName, cfg.From),
		ProductName: cfg.ProductName,
		SendTimeout: cfg.SendTimeout,
		Concurrency: cfg.Concurrency,
		Now:         func() time.Time { return time.Now().UTC() },
	}
}

// invitation is the per-referrer part of a message, prepared once per batch.
type invitation struct {
	userID  string
	subject string
	html    string
	tags    map[string]string
}

func (s *InvitationService) prepare(ctx context.Context, userID string) (*invitation, error) {
	link, err := s.Links.GetOrCreateLink(ctx, userID)
	if err != nil {
		return nil, err
	}
	sender, err := s.Users.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	senderName := DisplayName(sender)

	subject, html, err := s.Template.Render(mailer.InvitationData{
		SenderName:   senderName,
		ProductName:  s.ProductName,
		AffiliateURL: s.Links.URL(link.Code),
	})
	if err != nil {
		return nil, err
	}
	return &invitation{
		userID:  userID,
		subject: subject,
		html:    html,
		tags: map[string]string{
			"category":       "affiliate_invite",
			"affiliate_code": link.Code,
			"sender":         slug.Make(senderName),
		},
	}, nil
}

// deliver sends one invitation under the send timeout and stamps the roster.
// A failed send leaves the roster untouched.
func (s *InvitationService) deliver(ctx context.Context, inv *invitation, recipient string) error {
	sendCtx, cancel := context.WithTimeout(ctx, s.SendTimeout)
	defer cancel()

	err := s.Mailer.Send(sendCtx, mailer.Message{
		From:    s.From,
		To:      []string{recipient},
		Subject: inv.subject,
		HTML:    inv.html,
		Tags:    inv.tags,
	})
	if err != nil {
		s.Metrics.IncInvitation("failed")
		zap.L().Warn("invitation send failed",
			zap.String("user_id", inv.userID),
			zap.String("recipient", recipient),
			zap.Error(err))
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}
	s.Metrics.IncInvitation("sent")

	if err := s.Roster.MarkSent(ctx, inv.userID, recipient, s.Now()); err != nil {
		// the mail went out; only the bookkeeping is lost
		zap.L().Error("failed to stamp invitation", zap.String("recipient", recipient), zap.Error(err))
	}
	return nil
}

// SendInvitation mails one address, whether or not it is on the roster.
func (s *InvitationService) SendInvitation(ctx context.Context, userID, recipient string) error {
	recipient = utils.NormalizeEmail(recipient)
	if !utils.ValidEmail(recipient) {
		return ErrInvalidEmail
	}
	inv, err := s.prepare(ctx, userID)
	if err != nil {
		return err
	}
	return s.deliver(ctx, inv, recipient)
}

// SendAllInvitations mails every roster entry. Individual failures are
// reported in the results and never stop the batch.
func (s *InvitationService) SendAllInvitations(ctx context.Context, userID string) ([]SendResult, error) {
	entries, err := s.Roster.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, ErrEmptyRoster
	}
	inv, err := s.prepare(ctx, userID)
	if err != nil {
		return nil, err
	}

	results := make([]SendResult, len(entries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.Concurrency)
	for i, entry := range entries {
		g.Go(func() error {
			res := SendResult{Email: entry.Email, Success: true, Message: "Email sent successfully"}
			if err := s.deliver(gctx, inv, entry.Email); err != nil {
				res.Success = false
				res.Message = err.Error()
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	zap.L().Info("bulk invitations finished",
		zap.String("user_id", userID),
		zap.Int("total", len(results)),
		zap.Int("sent", CountSent(results)))
	return results, nil
}

// CountSent counts successful results.
func CountSent(results []SendResult) int {
	n := 0
	for _, r := range results {
		if r.Success {
			n++
		}
	}
	return n
}
