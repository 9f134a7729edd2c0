// models/visit.go
package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Device is the coarse client class derived from the user agent at track time.
type Device string

const (
	DeviceDesktop Device = "desktop"
	DeviceMobile  Device = "mobile"
	DeviceBot     Device = "bot"
	DeviceUnknown Device = "unknown"
)

// AffiliateVisit is one tracked click on an affiliate link.
type AffiliateVisit struct {
	ID              string  `gorm:"primaryKey;type:uuid" json:"id"`
	AffiliateLinkID string  `gorm:"index:idx_visit_link_ip_time,priority:1;not null" json:"affiliate_link_id"`
	VisitorIP       *string `gorm:"type:varchar(45);index:idx_visit_link_ip_time,priority:2" json:"visitor_ip,omitempty"` // IPv6 fits
	UserAgent       *string `gorm:"type:varchar(512)" json:"user_agent,omitempty"`
	Browser         string  `gorm:"type:varchar(64)" json:"browser,omitempty"`
	OS              string  `gorm:"type:varchar(64)" json:"os,omitempty"`
	Device          Device  `gorm:"type:varchar(16);default:'unknown'" json:"device"`

	VisitedAt time.Time `gorm:"index:idx_visit_link_ip_time,priority:3;not null" json:"visited_at"`
}

func (AffiliateVisit) TableName() string { return "affiliate_visits" }

func (v *AffiliateVisit) BeforeCreate(tx *gorm.DB) error {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	return nil
}
