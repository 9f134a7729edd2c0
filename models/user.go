package models

import (
	"strings"
	"time"
)

// Tier is the subscription level owned by the account subsystem.
type Tier string

const (
	TierFree Tier = "FREE"
	TierPro  Tier = "PRO"
	TierVIP  Tier = "VIP"
)

// Rank orders tiers FREE < PRO < VIP. Unknown tiers rank below FREE.
func (t Tier) Rank() int {
	switch t {
	case TierFree:
		return 1
	case TierPro:
		return 2
	case TierVIP:
		return 3
	default:
		return 0
	}
}

// AtLeast reports whether t is the same as or above other.
func (t Tier) AtLeast(other Tier) bool {
	return t.Rank() >= other.Rank()
}

// PlanType is a purchasable plan reported by billing.
type PlanType string

const (
	PlanDayPass PlanType = "daypass"
	PlanPro     PlanType = "pro"
	PlanVIP     PlanType = "vip"
)

func (p PlanType) Valid() bool {
	switch p {
	case PlanDayPass, PlanPro, PlanVIP:
		return true
	default:
		return false
	}
}

// ParsePlanType accepts plan identifiers case-insensitively.
func ParsePlanType(s string) (PlanType, bool) {
	p := PlanType(strings.ToLower(strings.TrimSpace(s)))
	return p, p.Valid()
}

// User mirrors the account table owned by the account/billing subsystem.
// The affiliate core only reads identity fields and mutates Tier and Credits.
type User struct {
	ID        string    `gorm:"column:id;primaryKey" json:"id"`
	Email     string    `gorm:"column:email" json:"email"`
	Name      string    `gorm:"column:name" json:"name"`
	Tier      Tier      `gorm:"column:tier;type:varchar(10);default:'FREE'" json:"tier"`
	Credits   int       `gorm:"column:credits;default:0" json:"credits"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (User) TableName() string { return "users" }
