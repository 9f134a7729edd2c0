// services/roster.go
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"affiliate-system/models"
	"affiliate-system/utils"

	"gorm.io/gorm"
)

type RosterService struct {
	DB *gorm.DB
}

func NewRosterService(db *gorm.DB) *RosterService {
	return &RosterService{DB: db}
}

// Add stores email on the referrer's roster.
// Returns ErrDuplicateEmail, ErrSelfEntry or ErrInvalidEmail on rejection.
func (s *RosterService) Add(ctx context.Context, userID, email string) (*models.RosterEntry, error) {
	email = utils.NormalizeEmail(email)
	if !utils.ValidEmail(email) {
		return nil, ErrInvalidEmail
	}
	db := s.DB.WithContext(ctx)

	var existing int64
	if err := db.Model(&models.RosterEntry{}).
		Where("user_id = ? AND email = ?", userID, email).
		Count(&existing).Error; err != nil {
		return nil, fmt.Errorf("failed to check roster: %w", err)
	}
	if existing > 0 {
		return nil, ErrDuplicateEmail
	}

	var owner models.User
	err := db.Select("id", "email").Where("id = ?", userID).First(&owner).Error
	switch {
	case err == nil:
		if utils.NormalizeEmail(owner.Email) == email {
			return nil, ErrSelfEntry
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		// account not mirrored yet; nothing to compare against
	default:
		return nil, fmt.Errorf("failed to load account: %w", err)
	}

	entry := models.RosterEntry{UserID: userID, Email: email}
	if err := db.Create(&entry).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("failed to add roster entry: %w", err)
	}
	return &entry, nil
}

// Remove deletes the entry if present and reports whether one was removed.
func (s *RosterService) Remove(ctx context.Context, userID, email string) (bool, error) {
	email = utils.NormalizeEmail(email)
	res := s.DB.WithContext(ctx).
		Where("user_id = ? AND email = ?", userID, email).
		Delete(&models.RosterEntry{})
	if res.Error != nil {
		return false, fmt.Errorf("failed to remove roster entry: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// List returns the roster in insertion order.
func (s *RosterService) List(ctx context.Context, userID string) ([]models.RosterEntry, error) {
	var entries []models.RosterEntry
	if err := s.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC, email ASC").
		Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to list roster: %w", err)
	}
	return entries, nil
}

// Count returns the roster size.
func (s *RosterService) Count(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := s.DB.WithContext(ctx).Model(&models.RosterEntry{}).Where("user_id = ?", userID).Count(&n).Error
	return n, err
}

// MarkSent stamps the send time. Addresses not on the roster are ignored.
func (s *RosterService) MarkSent(ctx context.Context, userID, email string, when time.Time) error {
	email = utils.NormalizeEmail(email)
	if err := s.DB.WithContext(ctx).Model(&models.RosterEntry{}).
		Where("user_id = ? AND email = ?", userID, email).
		Update("sent_at", when).Error; err != nil {
		return fmt.Errorf("failed to mark invitation sent: %w", err)
	}
	return nil
}

// FindOwner returns the first referrer whose roster holds email.
func (s *RosterService) FindOwner(ctx context.Context, email string) (string, bool, error) {
	email = utils.NormalizeEmail(email)
	if email == "" {
		return "", false, nil
	}
	var entry models.RosterEntry
	err := s.DB.WithContext(ctx).
		Where("email = ?", email).
		Order("created_at ASC").
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to match roster email: %w", err)
	}
	return entry.UserID, true, nil
}
