package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Source records how a referral was attributed.
type Source string

const (
	SourceLink  Source = "link"
	SourceEmail Source = "email"
)

func (s Source) Valid() bool {
	switch s {
	case SourceLink, SourceEmail:
		return true
	default:
		return false
	}
}

// Referral is the ledger row linking a referred user to the sharer who brought them in.
// ReferredID is unique: a user is referred at most once, first writer wins.
type Referral struct {
	ID         string `gorm:"primaryKey;type:uuid" json:"id"`
	SharerID   string `gorm:"index:idx_referral_sharer_verified,priority:1;not null" json:"sharer_id"`
	ReferredID string `gorm:"uniqueIndex;not null" json:"referred_id"`
	Source     Source `gorm:"type:varchar(20);not null" json:"source"`

	EmailVerified   bool       `gorm:"index:idx_referral_sharer_verified,priority:2;default:false" json:"email_verified"`
	EmailVerifiedAt *time.Time `json:"email_verified_at,omitempty"`

	PurchaseTier *PlanType  `gorm:"type:varchar(10)" json:"purchase_tier,omitempty"`
	PurchaseAt   *time.Time `json:"purchase_at,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (Referral) TableName() string { return "affiliate_referrals" }

func (r *Referral) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

// Purchased reports whether a purchase has been stamped on the referral.
func (r *Referral) Purchased() bool {
	return r.PurchaseTier != nil
}
