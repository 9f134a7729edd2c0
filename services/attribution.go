// services/attribution.go
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"affiliate-system/events"
	"affiliate-system/metrics"
	"affiliate-system/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Attribution is the result of matching a registration. Empty SharerID means no match.
type Attribution struct {
	SharerID string
	Source   models.Source
}

func (a Attribution) Matched() bool { return a.SharerID != "" }

type AttributionService struct {
	DB             *gorm.DB
	Links          *LinkService
	Roster         *RosterService
	Events         events.Publisher
	PublishTimeout time.Duration
	Metrics        *metrics.Metrics
}

func NewAttributionService(db *gorm.DB, links *LinkService, roster *RosterService) *AttributionService {
	return &AttributionService{DB: db, Links: links, Roster: roster, PublishTimeout: defaultPublishTimeout}
}

// Match attributes a registration: a resolvable code wins, then a roster
// entry for the email, otherwise nothing.
func (s *AttributionService) Match(ctx context.Context, registeredEmail, code string) (Attribution, error) {
	if code != "" {
		link, err := s.Links.ResolveLink(ctx, code)
		switch {
		case err == nil:
			return Attribution{SharerID: link.UserID, Source: models.SourceLink}, nil
		case errors.Is(err, ErrInvalidCode):
			// fall through to the roster
		default:
			return Attribution{}, err
		}
	}

	owner, ok, err := s.Roster.FindOwner(ctx, registeredEmail)
	if err != nil {
		return Attribution{}, err
	}
	if ok {
		return Attribution{SharerID: owner, Source: models.SourceEmail}, nil
	}
	return Attribution{}, nil
}

// CreateReferral records the referral for referredID. If one already exists
// it is returned unchanged; the second return is true only for a new row.
func (s *AttributionService) CreateReferral(ctx context.Context, sharerID, referredID string, source models.Source) (*models.Referral, bool, error) {
	if !source.Valid() {
		return nil, false, fmt.Errorf("invalid referral source %q", source)
	}
	db := s.DB.WithContext(ctx)

	referral := models.Referral{
		SharerID:   sharerID,
		ReferredID: referredID,
		Source:     source,
	}
	res := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "referred_id"}},
		DoNothing: true,
	}).Create(&referral)
	if res.Error != nil {
		return nil, false, fmt.Errorf("failed to create referral: %w", res.Error)
	}

	if res.RowsAffected == 0 {
		var existing models.Referral
		if err := db.Where("referred_id = ?", referredID).First(&existing).Error; err != nil {
			return nil, false, fmt.Errorf("failed to load existing referral: %w", err)
		}
		return &existing, false, nil
	}

	s.Metrics.IncReferral(string(source))
	zap.L().Info("referral created",
		zap.String("sharer_id", sharerID),
		zap.String("referred_id", referredID),
		zap.String("source", string(source)))
	publish(ctx, s.Events, s.PublishTimeout, events.Event{
		Type: events.ReferralCreated,
		Key:  sharerID,
		Data: map[string]string{
			"referral_id": referral.ID,
			"referred_id": referredID,
			"source":      string(source),
		},
	})
	return &referral, true, nil
}
