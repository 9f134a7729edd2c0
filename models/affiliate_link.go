// models/affiliate_link.go
package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AffiliateLink holds the one shareable code issued to a referrer.
// Both UserID and Code are unique; the code never changes once issued.
type AffiliateLink struct {
	ID        string    `gorm:"primaryKey;type:uuid" json:"id"`
	UserID    string    `gorm:"uniqueIndex;not null" json:"user_id"`
	Code      string    `gorm:"type:varchar(32);uniqueIndex;not null" json:"code"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (AffiliateLink) TableName() string { return "affiliate_links" }

func (l *AffiliateLink) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	return nil
}
