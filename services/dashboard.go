// services/dashboard.go
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"affiliate-system/models"

	"gorm.io/gorm"
)

type RewardView struct {
	Type       models.RewardKind `json:"type"`
	Tokens     int               `json:"tokens"`
	TierBefore models.Tier       `json:"tier_before"`
	TierAfter  models.Tier       `json:"tier_after"`
	CreatedAt  time.Time         `json:"created_at"`
}

type DeviceBreakdown struct {
	Desktop int64 `json:"desktop"`
	Mobile  int64 `json:"mobile"`
	Bot     int64 `json:"bot"`
	Unknown int64 `json:"unknown"`
}

type Stats struct {
	AffiliateCode     string          `json:"affiliate_code"`
	AffiliateURL      string          `json:"affiliate_url"`
	TotalVisits       int64           `json:"total_visits"`
	TotalEmails       int64           `json:"total_emails"`
	TotalReferrals    int64           `json:"total_referrals"`
	VerifiedReferrals int64           `json:"verified_referrals"`
	PurchaseReferrals int64           `json:"purchase_referrals"`
	TotalTokensEarned int64           `json:"total_tokens_earned"`
	Devices           DeviceBreakdown `json:"devices"`
	Rewards           []RewardView    `json:"rewards"`
}

type ReferralView struct {
	ID              string           `json:"id"`
	ReferredEmail   string           `json:"referred_email"`
	ReferredName    string           `json:"referred_name"`
	Source          models.Source    `json:"source"`
	EmailVerified   bool             `json:"email_verified"`
	EmailVerifiedAt *time.Time       `json:"email_verified_at"`
	PurchaseTier    *models.PlanType `json:"purchase_tier"`
	PurchaseAt      *time.Time       `json:"purchase_at"`
	CreatedAt       time.Time        `json:"created_at"`
}

type Dashboard struct {
	Stats     *Stats         `json:"stats"`
	Referrals []ReferralView `json:"referrals"`
}

// DashboardService builds read-only rollups straight from the ledger tables.
type DashboardService struct {
	DB    *gorm.DB
	Links *LinkService
	Users *UserDirectory
}

func NewDashboardService(db *gorm.DB, links *LinkService, users *UserDirectory) *DashboardService {
	return &DashboardService{DB: db, Links: links, Users: users}
}

// Dashboard returns stats and history, issuing the referrer's link if needed.
func (s *DashboardService) Dashboard(ctx context.Context, userID string) (*Dashboard, error) {
	stats, err := s.Stats(ctx, userID)
	if err != nil {
		return nil, err
	}
	if stats.AffiliateCode == "" {
		link, err := s.Links.GetOrCreateLink(ctx, userID)
		if err != nil {
			return nil, err
		}
		stats.AffiliateCode = link.Code
	}
	stats.AffiliateURL = s.Links.URL(stats.AffiliateCode)

	history, err := s.History(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Dashboard{Stats: stats, Referrals: history}, nil
}

// Stats never creates a link; AffiliateCode is empty when none exists.
func (s *DashboardService) Stats(ctx context.Context, userID string) (*Stats, error) {
	db := s.DB.WithContext(ctx)
	stats := &Stats{Rewards: []RewardView{}}

	var link models.AffiliateLink
	err := db.Where("user_id = ?", userID).First(&link).Error
	switch {
	case err == nil:
		stats.AffiliateCode = link.Code
		if err := s.visitStats(db, link.ID, stats); err != nil {
			return nil, err
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
	default:
		return nil, fmt.Errorf("failed to load affiliate link: %w", err)
	}

	if err := db.Model(&models.RosterEntry{}).Where("user_id = ?", userID).Count(&stats.TotalEmails).Error; err != nil {
		return nil, fmt.Errorf("failed to count roster: %w", err)
	}

	referrals := db.Model(&models.Referral{}).Where("sharer_id = ?", userID).Session(&gorm.Session{})
	if err := referrals.Count(&stats.TotalReferrals).Error; err != nil {
		return nil, fmt.Errorf("failed to count referrals: %w", err)
	}
	if err := referrals.Where("email_verified = ?", true).Count(&stats.VerifiedReferrals).Error; err != nil {
		return nil, fmt.Errorf("failed to count verified referrals: %w", err)
	}
	if err := referrals.Where("purchase_tier IS NOT NULL").Count(&stats.PurchaseReferrals).Error; err != nil {
		return nil, fmt.Errorf("failed to count purchase referrals: %w", err)
	}

	var rewards []models.Reward
	if err := db.Where("user_id = ?", userID).Order("created_at ASC").Find(&rewards).Error; err != nil {
		return nil, fmt.Errorf("failed to load rewards: %w", err)
	}
	for _, r := range rewards {
		stats.TotalTokensEarned += int64(r.TokensAwarded)
		stats.Rewards = append(stats.Rewards, RewardView{
			Type:       r.Kind,
			Tokens:     r.TokensAwarded,
			TierBefore: r.TierBefore,
			TierAfter:  r.TierAfter,
			CreatedAt:  r.CreatedAt,
		})
	}
	return stats, nil
}

func (s *DashboardService) visitStats(db *gorm.DB, linkID string, stats *Stats) error {
	var rows []struct {
		Device models.Device
		Total  int64
	}
	if err := db.Model(&models.AffiliateVisit{}).
		Select("device, COUNT(*) AS total").
		Where("affiliate_link_id = ?", linkID).
		Group("device").
		Scan(&rows).Error; err != nil {
		return fmt.Errorf("failed to count visits: %w", err)
	}
	for _, row := range rows {
		stats.TotalVisits += row.Total
		switch row.Device {
		case models.DeviceDesktop:
			stats.Devices.Desktop += row.Total
		case models.DeviceMobile:
			stats.Devices.Mobile += row.Total
		case models.DeviceBot:
			stats.Devices.Bot += row.Total
		case models.DeviceUnknown:
			stats.Devices.Unknown += row.Total
		default:
			stats.Devices.Unknown += row.Total
		}
	}
	return nil
}

// History lists the referrer's referrals newest first.
func (s *DashboardService) History(ctx context.Context, userID string) ([]ReferralView, error) {
	var referrals []models.Referral
	if err := s.DB.WithContext(ctx).
		Where("sharer_id = ?", userID).
		Order("created_at DESC").
		Find(&referrals).Error; err != nil {
		return nil, fmt.Errorf("failed to load referrals: %w", err)
	}

	ids := make([]string, 0, len(referrals))
	for _, r := range referrals {
		ids = append(ids, r.ReferredID)
	}
	users, err := s.Users.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]ReferralView, 0, len(referrals))
	for _, r := range referrals {
		view := ReferralView{
			ID:              r.ID,
			ReferredEmail:   "Unknown",
			ReferredName:    "Unknown",
			Source:          r.Source,
			EmailVerified:   r.EmailVerified,
			EmailVerifiedAt: r.EmailVerifiedAt,
			PurchaseTier:    r.PurchaseTier,
			PurchaseAt:      r.PurchaseAt,
			CreatedAt:       r.CreatedAt,
		}
		if u, ok := users[r.ReferredID]; ok {
			view.ReferredEmail = u.Email
			view.ReferredName = u.Name
		}
		out = append(out, view)
	}
	return out, nil
}
