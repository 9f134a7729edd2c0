// services/hooks.go
package services

import (
	"context"
	"errors"
	"fmt"

	"affiliate-system/models"

	"go.uber.org/zap"
)

// HookResult is returned to the account and billing collaborators.
type HookResult struct {
	Success    bool              `json:"success"`
	RewardType models.RewardKind `json:"reward_type,omitempty"`
	Message    string            `json:"message"`
}

// HookService is the entry point for account and billing lifecycle events.
type HookService struct {
	Attribution *AttributionService
	Rewards     *RewardEngine
}

func NewHookService(attribution *AttributionService, rewards *RewardEngine) *HookService {
	return &HookService{Attribution: attribution, Rewards: rewards}
}

// OnUserRegistered attributes a new account. This is the only place
// self-referrals are rejected. A repeated call returns the attribution
// recorded by the first one.
func (h *HookService) OnUserRegistered(ctx context.Context, userID, email, code string) (Attribution, error) {
	match, err := h.Attribution.Match(ctx, email, code)
	if err != nil {
		return Attribution{}, err
	}
	if !match.Matched() {
		return Attribution{}, nil
	}
	if match.SharerID == userID {
		zap.L().Info("ignoring self-referral", zap.String("user_id", userID), zap.String("source", string(match.Source)))
		return Attribution{}, nil
	}

	referral, _, err := h.Attribution.CreateReferral(ctx, match.SharerID, userID, match.Source)
	if err != nil {
		return Attribution{}, err
	}
	return Attribution{SharerID: referral.SharerID, Source: referral.Source}, nil
}

// OnEmailVerified rewards the sharer of userID, if any.
func (h *HookService) OnEmailVerified(ctx context.Context, userID string) (HookResult, error) {
	outcome, err := h.Rewards.ProcessEmailVerifiedReward(ctx, userID)
	if err != nil {
		return rejected(err)
	}
	zap.L().Info("email verified reward processed", zap.String("referred_id", userID), zap.String("kind", string(outcome.Kind)))
	return HookResult{Success: outcome.Success, RewardType: outcome.Kind, Message: outcome.Message}, nil
}

// OnPaymentSuccess rewards the sharer of userID for a purchase of planType.
func (h *HookService) OnPaymentSuccess(ctx context.Context, userID, planType string) (HookResult, error) {
	plan, ok := models.ParsePlanType(planType)
	if !ok {
		return HookResult{Message: fmt.Sprintf("Invalid plan type: %s", planType)}, nil
	}
	outcome, err := h.Rewards.ProcessPurchaseReward(ctx, userID, plan)
	if err != nil {
		return rejected(err)
	}
	return HookResult{Success: outcome.Success, RewardType: outcome.Kind, Message: outcome.Message}, nil
}

// rejected turns domain errors into unsuccessful results. Anything else is
// an infrastructure failure and is passed through.
func rejected(err error) (HookResult, error) {
	switch {
	case errors.Is(err, ErrNoReferral):
		return HookResult{Message: "No referral record found"}, nil
	case errors.Is(err, ErrAlreadyProcessed):
		return HookResult{Message: "Already processed"}, nil
	case errors.Is(err, ErrSharerNotFound):
		return HookResult{Message: "Sharer not found"}, nil
	case errors.Is(err, ErrAlreadyRewarded):
		return HookResult{Message: "VIP upgrade already awarded for this referral"}, nil
	case errors.Is(err, ErrInvalidPlan):
		return HookResult{Message: err.Error()}, nil
	default:
		return HookResult{}, err
	}
}
