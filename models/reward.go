package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RewardKind identifies which rung of the referral ladder produced a reward.
type RewardKind string

const (
	RewardFirstReferralPro RewardKind = "first_referral_pro"
	RewardReferralToken    RewardKind = "referral_token"
	RewardVIPUpgrade       RewardKind = "vip_upgrade"
)

func (k RewardKind) Valid() bool {
	switch k {
	case RewardFirstReferralPro, RewardReferralToken, RewardVIPUpgrade:
		return true
	default:
		return false
	}
}

// Message is the human readable summary returned to hook callers.
func (k RewardKind) Message() string {
	switch k {
	case RewardFirstReferralPro:
		return "Upgraded to PRO and received 1 token"
	case RewardReferralToken:
		return "Received 1 token"
	case RewardVIPUpgrade:
		return "Upgraded to VIP"
	default:
		return string(k)
	}
}

// Reward is an append-only audit row. Rows are never updated or deleted.
type Reward struct {
	ID            string     `gorm:"primaryKey;type:uuid" json:"id"`
	UserID        string     `gorm:"index;not null" json:"user_id"` // beneficiary (sharer)
	Kind          RewardKind `gorm:"column:reward_type;type:varchar(30);not null" json:"type"`
	TokensAwarded int        `gorm:"default:0" json:"tokens"`
	TierBefore    Tier       `gorm:"type:varchar(10)" json:"tier_before"`
	TierAfter     Tier       `gorm:"type:varchar(10)" json:"tier_after"`
	ReferralID    *string    `gorm:"index" json:"referral_id,omitempty"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

func (Reward) TableName() string { return "affiliate_rewards" }

func (r *Reward) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}
