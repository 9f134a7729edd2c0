// services/visit_tracker.go
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"affiliate-system/config"
	"affiliate-system/metrics"
	"affiliate-system/models"
	"affiliate-system/utils"

	"github.com/mssola/useragent"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type VisitService struct {
	DB              *gorm.DB
	Links           *LinkService
	Metrics         *metrics.Metrics
	DedupWindow     time.Duration
	UserAgentMaxLen int
	Now             func() time.Time
}

func NewVisitService(db *gorm.DB, links *LinkService, cfg config.AffiliateConfig) *VisitService {
	return &VisitService{
		DB:              db,
		Links:           links,
		DedupWindow:     cfg.DedupWindow,
		UserAgentMaxLen: cfg.UserAgentMaxLen,
		Now:             func() time.Time { return time.Now().UTC() },
	}
}

// Track records a click on code. It reports whether the code matched a link.
// A repeat from the same visitor address inside the dedupe window matches
// but is not stored. Visits without an address are never deduplicated.
func (s *VisitService) Track(ctx context.Context, code, visitorIP, userAgent string) (bool, error) {
	link, err := s.Links.ResolveLink(ctx, code)
	if err != nil {
		if errors.Is(err, ErrInvalidCode) {
			s.Metrics.IncVisit("invalid")
			return false, nil
		}
		return false, err
	}

	db := s.DB.WithContext(ctx)
	now := s.Now()

	if visitorIP != "" {
		var recent int64
		if err := db.Model(&models.AffiliateVisit{}).
			Where("affiliate_link_id = ? AND visitor_ip = ? AND visited_at > ?", link.ID, visitorIP, now.Add(-s.DedupWindow)).
			Count(&recent).Error; err != nil {
			return false, fmt.Errorf("failed to check recent visits: %w", err)
		}
		if recent > 0 {
			s.Metrics.IncVisit("duplicate")
			return true, nil
		}
	}

	visit := models.AffiliateVisit{
		AffiliateLinkID: link.ID,
		VisitedAt:       now,
		Device:          models.DeviceUnknown,
	}
	if visitorIP != "" {
		visit.VisitorIP = &visitorIP
	}
	if userAgent != "" {
		ua := utils.TruncateRunes(userAgent, s.UserAgentMaxLen)
		visit.UserAgent = &ua
		visit.Browser, visit.OS, visit.Device = classifyUserAgent(userAgent)
	}

	if err := db.Create(&visit).Error; err != nil {
		return false, fmt.Errorf("failed to record visit: %w", err)
	}
	s.Metrics.IncVisit("recorded")
	zap.L().Debug("affiliate visit recorded", zap.String("link_id", link.ID), zap.String("device", string(visit.Device)))
	return true, nil
}

func classifyUserAgent(raw string) (browser, os string, device models.Device) {
	ua := useragent.New(raw)
	name, version := ua.Browser()
	if name != "" && version != "" {
		browser = name + " " + version
	} else {
		browser = name
	}
	browser = utils.TruncateRunes(browser, 64)
	os = utils.TruncateRunes(ua.OS(), 64)

	switch {
	case ua.Bot():
		device = models.DeviceBot
	case ua.Mobile():
		device = models.DeviceMobile
	case name != "" || os != "":
		device = models.DeviceDesktop
	default:
		device = models.DeviceUnknown
	}
	return browser, os, device
}
