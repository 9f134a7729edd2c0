package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RosterEntry is an address a referrer submitted for invitations and passive attribution.
// (UserID, Email) is unique; Email is stored lowercased and trimmed.
type RosterEntry struct {
	ID        string     `gorm:"primaryKey;type:uuid" json:"id"`
	UserID    string     `gorm:"type:varchar(64);not null;uniqueIndex:uix_affiliate_email_user,priority:1" json:"user_id"`
	Email     string     `gorm:"type:varchar(120);not null;uniqueIndex:uix_affiliate_email_user,priority:2;index" json:"email"`
	SentAt    *time.Time `json:"sent_at"`
	CreatedAt time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

func (RosterEntry) TableName() string { return "affiliate_email_list" }

func (e *RosterEntry) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return nil
}
