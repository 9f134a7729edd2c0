package services

import (
	"context"
	"testing"
	"time"

	"affiliate-system/models"
	"affiliate-system/testutil"

	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"
)

type DashboardServiceSuite struct {
	suite.Suite
	db        *gorm.DB
	links     *LinkService
	visits    *VisitService
	roster    *RosterService
	engine    *RewardEngine
	dashboard *DashboardService
	ctx       context.Context
}

func TestDashboardServiceSuite(t *testing.T) {
	suite.Run(t, new(DashboardServiceSuite))
}

func (s *DashboardServiceSuite) SetupTest() {
	s.db = testutil.NewSQLiteDB(s.T())
	s.ctx = context.Background()
	s.links = NewLinkService(s.db, testAffiliateConfig)
	s.visits = NewVisitService(s.db, s.links, testAffiliateConfig)
	s.roster = NewRosterService(s.db)
	s.engine = NewRewardEngine(s.db)
	s.dashboard = NewDashboardService(s.db, s.links, NewUserDirectory(s.db))

	testutil.SeedUser(s.T(), s.db, "R", "r@example.com", "R", models.TierFree)
}

func (s *DashboardServiceSuite) TestEmptyStatsDoNotIssueLink() {
	stats, err := s.dashboard.Stats(s.ctx, "R")
	s.Require().NoError(err)
	s.Empty(stats.AffiliateCode)
	s.Zero(stats.TotalVisits)
	s.Zero(stats.TotalReferrals)
	s.NotNil(stats.Rewards)

	var count int64
	s.Require().NoError(s.db.Model(&models.AffiliateLink{}).Count(&count).Error)
	s.Zero(count)
}

func (s *DashboardServiceSuite) TestDashboardIssuesLink() {
	d, err := s.dashboard.Dashboard(s.ctx, "R")
	s.Require().NoError(err)
	s.NotEmpty(d.Stats.AffiliateCode)
	s.Equal("https://copymindset.ai/?ref="+d.Stats.AffiliateCode, d.Stats.AffiliateURL)
	s.Empty(d.Referrals)
}

func (s *DashboardServiceSuite) TestRollup() {
	link, err := s.links.GetOrCreateLink(s.ctx, "R")
	s.Require().NoError(err)

	_, err = s.visits.Track(s.ctx, link.Code, "10.0.0.1", uaDesktop)
	s.Require().NoError(err)
	_, err = s.visits.Track(s.ctx, link.Code, "10.0.0.2", uaIPhone)
	s.Require().NoError(err)
	_, err = s.visits.Track(s.ctx, link.Code, "10.0.0.3", uaBot)
	s.Require().NoError(err)
	_, err = s.visits.Track(s.ctx, link.Code, "", "")
	s.Require().NoError(err)

	_, err = s.roster.Add(s.ctx, "R", "friend@example.com")
	s.Require().NoError(err)

	testutil.SeedUser(s.T(), s.db, "U", "u@example.com", "Una", models.TierFree)
	for _, id := range []string{"U", "V", "W"} {
		s.Require().NoError(s.db.Create(&models.Referral{SharerID: "R", ReferredID: id, Source: models.SourceLink}).Error)
	}
	_, err = s.engine.ProcessEmailVerifiedReward(s.ctx, "U")
	s.Require().NoError(err)
	_, err = s.engine.ProcessEmailVerifiedReward(s.ctx, "V")
	s.Require().NoError(err)
	_, err = s.engine.ProcessPurchaseReward(s.ctx, "U", models.PlanPro)
	s.Require().NoError(err)

	stats, err := s.dashboard.Stats(s.ctx, "R")
	s.Require().NoError(err)
	s.Equal(link.Code, stats.AffiliateCode)
	s.EqualValues(4, stats.TotalVisits)
	s.Equal(DeviceBreakdown{Desktop: 1, Mobile: 1, Bot: 1, Unknown: 1}, stats.Devices)
	s.EqualValues(1, stats.TotalEmails)
	s.EqualValues(3, stats.TotalReferrals)
	s.EqualValues(2, stats.VerifiedReferrals)
	s.EqualValues(1, stats.PurchaseReferrals)
	s.EqualValues(2, stats.TotalTokensEarned)

	s.Require().Len(stats.Rewards, 3)
	s.Equal(models.RewardFirstReferralPro, stats.Rewards[0].Type)
	s.Equal(models.RewardReferralToken, stats.Rewards[1].Type)
	s.Equal(models.RewardVIPUpgrade, stats.Rewards[2].Type)
}

func (s *DashboardServiceSuite) TestHistoryNewestFirst() {
	testutil.SeedUser(s.T(), s.db, "U", "u@example.com", "Una", models.TierFree)
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	s.Require().NoError(s.db.Create(&models.Referral{SharerID: "R", ReferredID: "U", Source: models.SourceEmail, CreatedAt: base}).Error)
	s.Require().NoError(s.db.Create(&models.Referral{SharerID: "R", ReferredID: "gone", Source: models.SourceLink, CreatedAt: base.Add(time.Hour)}).Error)
	s.Require().NoError(s.db.Create(&models.Referral{SharerID: "other", ReferredID: "X", Source: models.SourceLink}).Error)

	history, err := s.dashboard.History(s.ctx, "R")
	s.Require().NoError(err)
	s.Require().Len(history, 2)

	s.Equal("Unknown", history[0].ReferredEmail)
	s.Equal("Unknown", history[0].ReferredName)
	s.Equal(models.SourceLink, history[0].Source)

	s.Equal("u@example.com", history[1].ReferredEmail)
	s.Equal("Una", history[1].ReferredName)
	s.Equal(models.SourceEmail, history[1].Source)
	s.False(history[1].EmailVerified)
	s.Nil(history[1].PurchaseTier)
}
