// services/reward_engine.go
package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"affiliate-system/events"
	"affiliate-system/metrics"
	"affiliate-system/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RewardOutcome reports what an event did. Success is false with a nil error
// only for benign outcomes such as a purchase by a referral whose sharer is
// already VIP.
type RewardOutcome struct {
	Success bool
	Kind    models.RewardKind
	Message string
	Reward  *models.Reward
}

// RewardEngine applies the referral reward ladder. All decisions are
// recomputed from the ledger inside one transaction per event, with the
// referral row and then the sharer row locked.
type RewardEngine struct {
	DB             *gorm.DB
	Events         events.Publisher
	PublishTimeout time.Duration
	Metrics        *metrics.Metrics
	Now            func() time.Time
}

func NewRewardEngine(db *gorm.DB) *RewardEngine {
	return &RewardEngine{
		DB:             db,
		PublishTimeout: defaultPublishTimeout,
		Now:            func() time.Time { return time.Now().UTC() },
	}
}

var forUpdate = clause.Locking{Strength: "UPDATE"}

func lockReferral(tx *gorm.DB, referredID string) (*models.Referral, error) {
	var referral models.Referral
	if err := tx.Clauses(forUpdate).Where("referred_id = ?", referredID).First(&referral).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoReferral
		}
		return nil, fmt.Errorf("failed to load referral: %w", err)
	}
	return &referral, nil
}

// lockSharer returns (nil, nil) when the account is missing.
func lockSharer(tx *gorm.DB, sharerID string) (*models.User, error) {
	var sharer models.User
	if err := tx.Clauses(forUpdate).Where("id = ?", sharerID).First(&sharer).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load sharer: %w", err)
	}
	return &sharer, nil
}

// ProcessEmailVerifiedReward rewards the sharer of referredID the first time
// the referred user verifies their email. The verification stamp commits even
// when the sharer account is gone, in which case ErrSharerNotFound is returned.
func (e *RewardEngine) ProcessEmailVerifiedReward(ctx context.Context, referredID string) (*RewardOutcome, error) {
	defer e.Metrics.ObserveRewardEvent("email_verified", time.Now())

	var (
		reward        *models.Reward
		sharerMissing bool
	)
	err := e.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		referral, err := lockReferral(tx, referredID)
		if err != nil {
			return err
		}
		if referral.EmailVerified {
			return ErrAlreadyProcessed
		}

		now := e.Now()
		if err := tx.Model(&models.Referral{}).Where("id = ?", referral.ID).Updates(map[string]interface{}{
			"email_verified":    true,
			"email_verified_at": now,
		}).Error; err != nil {
			return fmt.Errorf("failed to stamp verification: %w", err)
		}

		sharer, err := lockSharer(tx, referral.SharerID)
		if err != nil {
			return err
		}
		if sharer == nil {
			sharerMissing = true
			return nil
		}

		// counted under the sharer lock so concurrent verifications for
		// the same sharer see each other's stamps
		var verified int64
		if err := tx.Model(&models.Referral{}).
			Where("sharer_id = ? AND email_verified = ?", sharer.ID, true).
			Count(&verified).Error; err != nil {
			return fmt.Errorf("failed to count verified referrals: %w", err)
		}

		kind := models.RewardReferralToken
		if verified == 1 {
			kind = models.RewardFirstReferralPro
		}

		tierAfter := sharer.Tier
		switch kind {
		case models.RewardFirstReferralPro:
			if !sharer.Tier.AtLeast(models.TierPro) {
				tierAfter = models.TierPro
			}
		case models.RewardReferralToken:
		case models.RewardVIPUpgrade:
			return fmt.Errorf("unexpected reward kind %q on verification", kind)
		}

		if err := tx.Model(&models.User{}).Where("id = ?", sharer.ID).Updates(map[string]interface{}{
			"tier":    tierAfter,
			"credits": gorm.Expr("credits + ?", 1),
		}).Error; err != nil {
			return fmt.Errorf("failed to credit sharer: %w", err)
		}

		referralID := referral.ID
		reward = &models.Reward{
			UserID:        sharer.ID,
			Kind:          kind,
			TokensAwarded: 1,
			TierBefore:    sharer.Tier,
			TierAfter:     tierAfter,
			ReferralID:    &referralID,
		}
		if err := tx.Create(reward).Error; err != nil {
			return fmt.Errorf("failed to record reward: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if sharerMissing {
		zap.L().Warn("verification stamped but sharer is missing", zap.String("referred_id", referredID))
		return nil, ErrSharerNotFound
	}

	e.granted(ctx, reward)
	return &RewardOutcome{Success: true, Kind: reward.Kind, Message: reward.Kind.Message(), Reward: reward}, nil
}

// ProcessPurchaseReward upgrades the sharer of referredID to VIP, at most once
// per referral. The purchase stamp commits whenever the referral exists and has
// not yet produced a VIP upgrade.
func (e *RewardEngine) ProcessPurchaseReward(ctx context.Context, referredID string, plan models.PlanType) (*RewardOutcome, error) {
	if !plan.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPlan, plan)
	}
	defer e.Metrics.ObserveRewardEvent("purchase", time.Now())

	var (
		reward        *models.Reward
		referral      *models.Referral
		sharerMissing bool
	)
	err := e.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		referral, err = lockReferral(tx, referredID)
		if err != nil {
			return err
		}

		var upgrades int64
		if err := tx.Model(&models.Reward{}).
			Where("referral_id = ? AND reward_type = ?", referral.ID, models.RewardVIPUpgrade).
			Count(&upgrades).Error; err != nil {
			return fmt.Errorf("failed to check prior upgrade: %w", err)
		}
		if upgrades > 0 {
			return ErrAlreadyRewarded
		}

		now := e.Now()
		if err := tx.Model(&models.Referral{}).Where("id = ?", referral.ID).Updates(map[string]interface{}{
			"purchase_tier": plan,
			"purchase_at":   now,
		}).Error; err != nil {
			return fmt.Errorf("failed to stamp purchase: %w", err)
		}

		sharer, err := lockSharer(tx, referral.SharerID)
		if err != nil {
			return err
		}
		if sharer == nil {
			sharerMissing = true
			return nil
		}
		if sharer.Tier == models.TierVIP {
			return nil
		}

		if err := tx.Model(&models.User{}).Where("id = ?", sharer.ID).
			Update("tier", models.TierVIP).Error; err != nil {
			return fmt.Errorf("failed to upgrade sharer: %w", err)
		}
		referralID := referral.ID
		reward = &models.Reward{
			UserID:        sharer.ID,
			Kind:          models.RewardVIPUpgrade,
			TokensAwarded: 0,
			TierBefore:    sharer.Tier,
			TierAfter:     models.TierVIP,
			ReferralID:    &referralID,
		}
		if err := tx.Create(reward).Error; err != nil {
			return fmt.Errorf("failed to record reward: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	publish(ctx, e.Events, e.PublishTimeout, events.Event{
		Type: events.PurchaseStamped,
		Key:  referral.SharerID,
		Data: map[string]string{
			"referral_id": referral.ID,
			"referred_id": referredID,
			"plan":        string(plan),
		},
	})

	if sharerMissing {
		zap.L().Warn("purchase stamped but sharer is missing", zap.String("referred_id", referredID))
		return nil, ErrSharerNotFound
	}
	if reward == nil {
		return &RewardOutcome{Success: false, Message: "Sharer already VIP"}, nil
	}

	e.granted(ctx, reward)
	return &RewardOutcome{Success: true, Kind: reward.Kind, Message: reward.Kind.Message(), Reward: reward}, nil
}

func (e *RewardEngine) granted(ctx context.Context, r *models.Reward) {
	e.Metrics.IncReward(string(r.Kind))
	zap.L().Info("affiliate reward granted",
		zap.String("user_id", r.UserID),
		zap.String("kind", string(r.Kind)),
		zap.String("tier_before", string(r.TierBefore)),
		zap.String("tier_after", string(r.TierAfter)))

	data := map[string]string{
		"reward_id":   r.ID,
		"kind":        string(r.Kind),
		"tokens":      strconv.Itoa(r.TokensAwarded),
		"tier_before": string(r.TierBefore),
		"tier_after":  string(r.TierAfter),
	}
	if r.ReferralID != nil {
		data["referral_id"] = *r.ReferralID
	}
	publish(ctx, e.Events, e.PublishTimeout, events.Event{Type: events.RewardGranted, Key: r.UserID, Data: data})
}
