// services/link_registry.go
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"affiliate-system/config"
	"affiliate-system/metrics"
	"affiliate-system/models"
	"affiliate-system/utils"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// maxCodeAttempts bounds how many fresh codes we try before giving up.
const maxCodeAttempts = 10

// LinkCache is an optional read-through cache for code lookups.
// Get returns (nil, nil) on a miss.
type LinkCache interface {
	Get(ctx context.Context, code string) (*models.AffiliateLink, error)
	Set(ctx context.Context, link *models.AffiliateLink) error
}

type LinkService struct {
	DB         *gorm.DB
	Cache      LinkCache
	Metrics    *metrics.Metrics
	BaseURL    string
	CodeLength int

	// NewCode generates candidate codes; replaced in tests to force collisions.
	NewCode func(n int) (string, error)
}

func NewLinkService(db *gorm.DB, cfg config.AffiliateConfig) *LinkService {
	return &LinkService{
		DB:         db,
		BaseURL:    cfg.BaseURL,
		CodeLength: cfg.CodeLength,
		NewCode:    utils.GenerateCode,
	}
}

// URL is the shareable landing URL for a code.
func (s *LinkService) URL(code string) string {
	return fmt.Sprintf("%s/?ref=%s", s.BaseURL, code)
}

// GetOrCreateLink returns the referrer's link, issuing one on first call.
// Concurrent first calls for the same referrer converge on a single row.
func (s *LinkService) GetOrCreateLink(ctx context.Context, userID string) (*models.AffiliateLink, error) {
	db := s.DB.WithContext(ctx)

	var link models.AffiliateLink
	err := db.Where("user_id = ?", userID).First(&link).Error
	if err == nil {
		return &link, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to load affiliate link: %w", err)
	}

	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := s.unusedCode(db)
		if err != nil {
			return nil, err
		}

		candidate := models.AffiliateLink{UserID: userID, Code: code}
		res := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoNothing: true,
		}).Create(&candidate)
		if res.Error != nil {
			// code taken between the check and the insert
			if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
				continue
			}
			return nil, fmt.Errorf("failed to create affiliate link: %w", res.Error)
		}
		if res.RowsAffected == 1 {
			s.Metrics.IncLinkCreated()
			zap.L().Info("affiliate link created", zap.String("user_id", userID), zap.String("code", code))
			return &candidate, nil
		}
		// lost the race to a concurrent request for the same referrer
		break
	}

	if err := db.Where("user_id = ?", userID).First(&link).Error; err != nil {
		return nil, fmt.Errorf("failed to load affiliate link after create: %w", err)
	}
	return &link, nil
}

// unusedCode draws codes until one is not present in the table.
func (s *LinkService) unusedCode(db *gorm.DB) (string, error) {
	for i := 0; i < maxCodeAttempts; i++ {
		code, err := s.NewCode(s.CodeLength)
		if err != nil {
			return "", err
		}
		var count int64
		if err := db.Model(&models.AffiliateLink{}).Where("code = ?", code).Count(&count).Error; err != nil {
			return "", fmt.Errorf("failed to check code uniqueness: %w", err)
		}
		if count == 0 {
			return code, nil
		}
	}
	return "", fmt.Errorf("could not generate a unique affiliate code after %d attempts", maxCodeAttempts)
}

// ResolveLink looks a code up by exact match. Malformed and unknown codes
// return ErrInvalidCode; malformed ones never reach the cache or the store.
func (s *LinkService) ResolveLink(ctx context.Context, code string) (*models.AffiliateLink, error) {
	code = strings.TrimSpace(code)
	if !utils.ValidCode(code) {
		return nil, ErrInvalidCode
	}

	if s.Cache != nil {
		cached, err := s.Cache.Get(ctx, code)
		if err != nil {
			zap.L().Warn("link cache read failed", zap.String("code", code), zap.Error(err))
		} else if cached != nil {
			return cached, nil
		}
	}

	var link models.AffiliateLink
	if err := s.DB.WithContext(ctx).Where("code = ?", code).First(&link).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCode
		}
		return nil, fmt.Errorf("failed to resolve affiliate code: %w", err)
	}

	if s.Cache != nil {
		if err := s.Cache.Set(ctx, &link); err != nil {
			zap.L().Warn("link cache write failed", zap.String("code", code), zap.Error(err))
		}
	}
	return &link, nil
}
