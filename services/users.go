// services/users.go
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"affiliate-system/models"
	"affiliate-system/utils"

	"gorm.io/gorm"
)

// UserDirectory reads the account table owned by the account subsystem.
type UserDirectory struct {
	DB *gorm.DB
}

func NewUserDirectory(db *gorm.DB) *UserDirectory {
	return &UserDirectory{DB: db}
}

// Get returns the account, or (nil, nil) when it does not exist.
func (d *UserDirectory) Get(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	if err := d.DB.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load user %s: %w", id, err)
	}
	return &u, nil
}

// GetMany loads accounts keyed by id. Missing ids are absent from the map.
func (d *UserDirectory) GetMany(ctx context.Context, ids []string) (map[string]models.User, error) {
	out := make(map[string]models.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var users []models.User
	if err := d.DB.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, fmt.Errorf("failed to load users: %w", err)
	}
	for _, u := range users {
		out[u.ID] = u
	}
	return out, nil
}

// DisplayName is the account name, or one derived from the email.
func DisplayName(u *models.User) string {
	if u == nil {
		return "A friend"
	}
	if name := strings.TrimSpace(u.Name); name != "" {
		return name
	}
	return utils.DisplayNameFromEmail(u.Email)
}
