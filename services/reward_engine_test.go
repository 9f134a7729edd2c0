package services

import (
	"context"
	"testing"
	"time"

	"affiliate-system/events"
	"affiliate-system/events/mocks"
	"affiliate-system/models"
	"affiliate-system/testutil"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"
	"gorm.io/gorm"
)

type RewardEngineSuite struct {
	suite.Suite
	db     *gorm.DB
	engine *RewardEngine
	ctx    context.Context
}

func TestRewardEngineSuite(t *testing.T) {
	suite.Run(t, new(RewardEngineSuite))
}

func (s *RewardEngineSuite) SetupTest() {
	s.db = testutil.NewSQLiteDB(s.T())
	s.engine = NewRewardEngine(s.db)
	s.ctx = context.Background()
}

func (s *RewardEngineSuite) refer(sharerID, referredID string) *models.Referral {
	ref := &models.Referral{SharerID: sharerID, ReferredID: referredID, Source: models.SourceLink}
	s.Require().NoError(s.db.Create(ref).Error)
	return ref
}

func (s *RewardEngineSuite) referral(referredID string) models.Referral {
	var ref models.Referral
	s.Require().NoError(s.db.Where("referred_id = ?", referredID).First(&ref).Error)
	return ref
}

func (s *RewardEngineSuite) rewards(userID string) []models.Reward {
	var out []models.Reward
	s.Require().NoError(s.db.Where("user_id = ?", userID).Order("created_at ASC").Find(&out).Error)
	return out
}

func (s *RewardEngineSuite) TestReferralLadder() {
	testutil.SeedUser(s.T(), s.db, "R", "r@example.com", "R", models.TierFree)
	s.refer("R", "U")
	s.refer("R", "V")

	out, err := s.engine.ProcessEmailVerifiedReward(s.ctx, "U")
	s.Require().NoError(err)
	s.True(out.Success)
	s.Equal(models.RewardFirstReferralPro, out.Kind)
	s.Equal("Upgraded to PRO and received 1 token", out.Message)

	r := testutil.LoadUser(s.T(), s.db, "R")
	s.Equal(models.TierPro, r.Tier)
	s.Equal(1, r.Credits)

	out, err = s.engine.ProcessEmailVerifiedReward(s.ctx, "V")
	s.Require().NoError(err)
	s.Equal(models.RewardReferralToken, out.Kind)

	r = testutil.LoadUser(s.T(), s.db, "R")
	s.Equal(models.TierPro, r.Tier)
	s.Equal(2, r.Credits)

	out, err = s.engine.ProcessPurchaseReward(s.ctx, "U", models.PlanVIP)
	s.Require().NoError(err)
	s.True(out.Success)
	s.Equal(models.RewardVIPUpgrade, out.Kind)
	s.Equal(0, out.Reward.TokensAwarded)

	r = testutil.LoadUser(s.T(), s.db, "R")
	s.Equal(models.TierVIP, r.Tier)
	s.Equal(2, r.Credits)

	rewards := s.rewards("R")
	s.Require().Len(rewards, 3)
	s.Equal(models.TierFree, rewards[0].TierBefore)
	s.Equal(models.TierPro, rewards[0].TierAfter)
	s.Equal(models.TierPro, rewards[2].TierBefore)
	s.Equal(models.TierVIP, rewards[2].TierAfter)

	u := s.referral("U")
	s.True(u.EmailVerified)
	s.NotNil(u.EmailVerifiedAt)
	s.Require().NotNil(u.PurchaseTier)
	s.Equal(models.PlanVIP, *u.PurchaseTier)
}

func (s *RewardEngineSuite) TestVerificationIsProcessedOnce() {
	testutil.SeedUser(s.T(), s.db, "R", "r@example.com", "R", models.TierFree)
	s.refer("R", "U")

	_, err := s.engine.ProcessEmailVerifiedReward(s.ctx, "U")
	s.Require().NoError(err)

	_, err = s.engine.ProcessEmailVerifiedReward(s.ctx, "U")
	s.ErrorIs(err, ErrAlreadyProcessed)

	s.Len(s.rewards("R"), 1)
	s.Equal(1, testutil.LoadUser(s.T(), s.db, "R").Credits)
}

func (s *RewardEngineSuite) TestUnreferredUser() {
	_, err := s.engine.ProcessEmailVerifiedReward(s.ctx, "nobody")
	s.ErrorIs(err, ErrNoReferral)

	_, err = s.engine.ProcessPurchaseReward(s.ctx, "nobody", models.PlanVIP)
	s.ErrorIs(err, ErrNoReferral)
}

func (s *RewardEngineSuite) TestMissingSharerKeepsVerificationStamp() {
	s.refer("ghost", "U")

	_, err := s.engine.ProcessEmailVerifiedReward(s.ctx, "U")
	s.ErrorIs(err, ErrSharerNotFound)
	s.True(s.referral("U").EmailVerified)

	_, err = s.engine.ProcessEmailVerifiedReward(s.ctx, "U")
	s.ErrorIs(err, ErrAlreadyProcessed)
	s.Empty(s.rewards("ghost"))
}

func (s *RewardEngineSuite) TestMissingSharerKeepsPurchaseStamp() {
	s.refer("ghost", "U")

	_, err := s.engine.ProcessPurchaseReward(s.ctx, "U", models.PlanDayPass)
	s.ErrorIs(err, ErrSharerNotFound)

	ref := s.referral("U")
	s.Require().NotNil(ref.PurchaseTier)
	s.Equal(models.PlanDayPass, *ref.PurchaseTier)
}

func (s *RewardEngineSuite) TestFirstReferralNeverDowngrades() {
	testutil.SeedUser(s.T(), s.db, "R", "r@example.com", "R", models.TierVIP)
	s.refer("R", "U")

	out, err := s.engine.ProcessEmailVerifiedReward(s.ctx, "U")
	s.Require().NoError(err)
	s.Equal(models.RewardFirstReferralPro, out.Kind)

	r := testutil.LoadUser(s.T(), s.db, "R")
	s.Equal(models.TierVIP, r.Tier)
	s.Equal(1, r.Credits)
	s.Equal(models.TierVIP, out.Reward.TierAfter)
}

func (s *RewardEngineSuite) TestOneFirstRewardThenTokens() {
	testutil.SeedUser(s.T(), s.db, "R", "r@example.com", "R", models.TierFree)
	referred := []string{"A", "B", "C", "D"}
	for _, id := range referred {
		s.refer("R", id)
	}
	for _, id := range referred {
		_, err := s.engine.ProcessEmailVerifiedReward(s.ctx, id)
		s.Require().NoError(err)
	}

	kinds := map[models.RewardKind]int{}
	for _, r := range s.rewards("R") {
		kinds[r.Kind]++
	}
	s.Equal(1, kinds[models.RewardFirstReferralPro])
	s.Equal(3, kinds[models.RewardReferralToken])
	s.Equal(4, testutil.LoadUser(s.T(), s.db, "R").Credits)
}

func (s *RewardEngineSuite) TestPurchaseRewardedOncePerReferral() {
	testutil.SeedUser(s.T(), s.db, "R", "r@example.com", "R", models.TierPro)
	s.refer("R", "U")

	_, err := s.engine.ProcessPurchaseReward(s.ctx, "U", models.PlanPro)
	s.Require().NoError(err)

	// the sharer is reset by billing; the same referral still cannot upgrade again
	s.Require().NoError(s.db.Model(&models.User{}).Where("id = ?", "R").Update("tier", models.TierPro).Error)

	_, err = s.engine.ProcessPurchaseReward(s.ctx, "U", models.PlanVIP)
	s.ErrorIs(err, ErrAlreadyRewarded)
	s.Equal(models.TierPro, testutil.LoadUser(s.T(), s.db, "R").Tier)
	s.Equal(models.PlanPro, *s.referral("U").PurchaseTier)
}

func (s *RewardEngineSuite) TestPurchaseBySharerAlreadyVIP() {
	testutil.SeedUser(s.T(), s.db, "R", "r@example.com", "R", models.TierVIP)
	s.refer("R", "U")

	out, err := s.engine.ProcessPurchaseReward(s.ctx, "U", models.PlanVIP)
	s.Require().NoError(err)
	s.False(out.Success)
	s.Equal("Sharer already VIP", out.Message)
	s.Nil(out.Reward)

	s.Equal(models.PlanVIP, *s.referral("U").PurchaseTier)
	s.Empty(s.rewards("R"))

	// no upgrade was granted, so a later purchase is still evaluated
	out, err = s.engine.ProcessPurchaseReward(s.ctx, "U", models.PlanPro)
	s.Require().NoError(err)
	s.False(out.Success)
}

func (s *RewardEngineSuite) TestInvalidPlan() {
	testutil.SeedUser(s.T(), s.db, "R", "r@example.com", "R", models.TierFree)
	s.refer("R", "U")

	_, err := s.engine.ProcessPurchaseReward(s.ctx, "U", models.PlanType("gold"))
	s.ErrorIs(err, ErrInvalidPlan)
	s.Nil(s.referral("U").PurchaseTier)
}

func (s *RewardEngineSuite) TestPurchaseBeforeVerification() {
	testutil.SeedUser(s.T(), s.db, "R", "r@example.com", "R", models.TierFree)
	s.refer("R", "U")

	_, err := s.engine.ProcessPurchaseReward(s.ctx, "U", models.PlanPro)
	s.Require().NoError(err)
	s.Equal(models.TierVIP, testutil.LoadUser(s.T(), s.db, "R").Tier)

	out, err := s.engine.ProcessEmailVerifiedReward(s.ctx, "U")
	s.Require().NoError(err)
	s.Equal(models.RewardFirstReferralPro, out.Kind)

	r := testutil.LoadUser(s.T(), s.db, "R")
	s.Equal(models.TierVIP, r.Tier)
	s.Equal(1, r.Credits)
}

func (s *RewardEngineSuite) TestEventsArePublishedAfterCommit() {
	ctrl := gomock.NewController(s.T())
	pub := mocks.NewMockPublisher(ctrl)
	s.engine.Events = pub
	s.engine.Now = func() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) }

	testutil.SeedUser(s.T(), s.db, "R", "r@example.com", "R", models.TierFree)
	s.refer("R", "U")

	var got []events.Event
	pub.EXPECT().Publish(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, evt events.Event) error {
			got = append(got, evt)
			return nil
		}).
		Times(3)

	_, err := s.engine.ProcessEmailVerifiedReward(s.ctx, "U")
	s.Require().NoError(err)
	_, err = s.engine.ProcessPurchaseReward(s.ctx, "U", models.PlanVIP)
	s.Require().NoError(err)

	s.Require().Len(got, 3)
	s.Equal(events.RewardGranted, got[0].Type)
	s.Equal(string(models.RewardFirstReferralPro), got[0].Data["kind"])
	s.Equal("R", got[0].Key)
	s.Equal(events.PurchaseStamped, got[1].Type)
	s.Equal("vip", got[1].Data["plan"])
	s.Equal(events.RewardGranted, got[2].Type)
	s.Equal(string(models.RewardVIPUpgrade), got[2].Data["kind"])
	s.False(got[2].OccurredAt.IsZero())
}

func (s *RewardEngineSuite) TestStalledPublisherDoesNotBlockRewards() {
	ctrl := gomock.NewController(s.T())
	pub := mocks.NewMockPublisher(ctrl)
	s.engine.Events = pub
	s.engine.PublishTimeout = 50 * time.Millisecond

	testutil.SeedUser(s.T(), s.db, "R", "r@example.com", "R", models.TierFree)
	s.refer("R", "U")

	release := make(chan struct{})
	defer close(release)
	deadlines := make(chan bool, 1)
	pub.EXPECT().Publish(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ events.Event) error {
			_, ok := ctx.Deadline()
			deadlines <- ok
			<-release
			return nil
		})

	done := make(chan error, 1)
	go func() {
		_, err := s.engine.ProcessEmailVerifiedReward(s.ctx, "U")
		done <- err
	}()

	select {
	case err := <-done:
		s.Require().NoError(err)
	case <-time.After(5 * time.Second):
		s.FailNow("reward processing blocked on the event publisher")
	}
	s.True(<-deadlines, "publish context carries a deadline")

	r := testutil.LoadUser(s.T(), s.db, "R")
	s.Equal(models.TierPro, r.Tier)
	s.Equal(1, r.Credits)
	s.True(s.referral("U").EmailVerified)
}

func (s *RewardEngineSuite) TestRejectedEventsPublishNothing() {
	ctrl := gomock.NewController(s.T())
	pub := mocks.NewMockPublisher(ctrl)
	s.engine.Events = pub
	pub.EXPECT().Publish(gomock.Any(), gomock.Any()).Times(0)

	_, err := s.engine.ProcessEmailVerifiedReward(s.ctx, "nobody")
	s.ErrorIs(err, ErrNoReferral)
}
