package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"affiliate-system/config"
	"affiliate-system/models"
	"affiliate-system/testutil"
	"affiliate-system/utils"

	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"
)

var testAffiliateConfig = config.AffiliateConfig{
	BaseURL:         "https://copymindset.ai",
	CodeLength:      8,
	DedupWindow:     30 * time.Second,
	UserAgentMaxLen: 512,
}

// memoryLinkCache is a LinkCache backed by a map.
type memoryLinkCache struct {
	mu    sync.Mutex
	links map[string]models.AffiliateLink
	gets  int
	sets  int
	fail  bool
}

func newMemoryLinkCache() *memoryLinkCache {
	return &memoryLinkCache{links: map[string]models.AffiliateLink{}}
}

func (c *memoryLinkCache) Get(_ context.Context, code string) (*models.AffiliateLink, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	if c.fail {
		return nil, errors.New("cache down")
	}
	l, ok := c.links[code]
	if !ok {
		return nil, nil
	}
	return &l, nil
}

func (c *memoryLinkCache) Set(_ context.Context, link *models.AffiliateLink) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("cache down")
	}
	c.sets++
	c.links[link.Code] = *link
	return nil
}

type LinkServiceSuite struct {
	suite.Suite
	db      *gorm.DB
	service *LinkService
	ctx     context.Context
}

func TestLinkServiceSuite(t *testing.T) {
	suite.Run(t, new(LinkServiceSuite))
}

func (s *LinkServiceSuite) SetupTest() {
	s.db = testutil.NewSQLiteDB(s.T())
	s.service = NewLinkService(s.db, testAffiliateConfig)
	s.ctx = context.Background()
}

func (s *LinkServiceSuite) TestGetOrCreateLinkIsIdempotent() {
	first, err := s.service.GetOrCreateLink(s.ctx, "user-1")
	s.Require().NoError(err)
	s.Len(first.Code, 8)
	s.True(utils.ValidCode(first.Code), "unexpected code %q", first.Code)

	second, err := s.service.GetOrCreateLink(s.ctx, "user-1")
	s.Require().NoError(err)
	s.Equal(first.ID, second.ID)
	s.Equal(first.Code, second.Code)

	var count int64
	s.Require().NoError(s.db.Model(&models.AffiliateLink{}).Count(&count).Error)
	s.EqualValues(1, count)
}

func (s *LinkServiceSuite) TestDistinctReferrersGetDistinctCodes() {
	a, err := s.service.GetOrCreateLink(s.ctx, "user-a")
	s.Require().NoError(err)
	b, err := s.service.GetOrCreateLink(s.ctx, "user-b")
	s.Require().NoError(err)
	s.NotEqual(a.Code, b.Code)
}

func (s *LinkServiceSuite) TestCollidingCodeIsRejected() {
	s.Require().NoError(s.db.Create(&models.AffiliateLink{UserID: "other", Code: "TAKEN001"}).Error)

	candidates := []string{"TAKEN001", "TAKEN001", "FRESH001"}
	s.service.NewCode = func(int) (string, error) {
		code := candidates[0]
		candidates = candidates[1:]
		return code, nil
	}

	link, err := s.service.GetOrCreateLink(s.ctx, "user-1")
	s.Require().NoError(err)
	s.Equal("FRESH001", link.Code)
}

func (s *LinkServiceSuite) TestCodeSpaceExhausted() {
	s.Require().NoError(s.db.Create(&models.AffiliateLink{UserID: "other", Code: "TAKEN001"}).Error)
	s.service.NewCode = func(int) (string, error) { return "TAKEN001", nil }

	_, err := s.service.GetOrCreateLink(s.ctx, "user-1")
	s.Require().Error(err)

	var count int64
	s.Require().NoError(s.db.Model(&models.AffiliateLink{}).Where("user_id = ?", "user-1").Count(&count).Error)
	s.Zero(count)
}

func (s *LinkServiceSuite) TestResolveLink() {
	created, err := s.service.GetOrCreateLink(s.ctx, "user-1")
	s.Require().NoError(err)

	got, err := s.service.ResolveLink(s.ctx, created.Code)
	s.Require().NoError(err)
	s.Equal("user-1", got.UserID)

	s.Run("surrounding whitespace", func() {
		got, err := s.service.ResolveLink(s.ctx, "  "+created.Code+" ")
		s.Require().NoError(err)
		s.Equal(created.ID, got.ID)
	})

	s.Run("case sensitive", func() {
		_, err := s.service.ResolveLink(s.ctx, strings.ToLower(created.Code))
		s.ErrorIs(err, ErrInvalidCode)
	})

	s.Run("unknown code", func() {
		_, err := s.service.ResolveLink(s.ctx, "NOPE0000")
		s.ErrorIs(err, ErrInvalidCode)
	})

	s.Run("empty code", func() {
		_, err := s.service.ResolveLink(s.ctx, "")
		s.ErrorIs(err, ErrInvalidCode)
	})
}

func (s *LinkServiceSuite) TestMalformedCodeSkipsLookups() {
	cache := newMemoryLinkCache()
	s.service.Cache = cache

	for _, code := range []string{"abc-123", "ref=ABC12345", strings.Repeat("A", utils.MaxCodeLength+1)} {
		_, err := s.service.ResolveLink(s.ctx, code)
		s.ErrorIs(err, ErrInvalidCode, code)
	}
	s.Zero(cache.gets)
}

func (s *LinkServiceSuite) TestResolveLinkReadsThroughCache() {
	cache := newMemoryLinkCache()
	s.service.Cache = cache

	created, err := s.service.GetOrCreateLink(s.ctx, "user-1")
	s.Require().NoError(err)

	_, err = s.service.ResolveLink(s.ctx, created.Code)
	s.Require().NoError(err)
	s.Equal(1, cache.sets)

	// served from cache once the row is gone
	s.Require().NoError(s.db.Where("id = ?", created.ID).Delete(&models.AffiliateLink{}).Error)
	got, err := s.service.ResolveLink(s.ctx, created.Code)
	s.Require().NoError(err)
	s.Equal("user-1", got.UserID)
	s.Equal(1, cache.sets)
}

func (s *LinkServiceSuite) TestResolveLinkSurvivesCacheOutage() {
	cache := newMemoryLinkCache()
	cache.fail = true
	s.service.Cache = cache

	created, err := s.service.GetOrCreateLink(s.ctx, "user-1")
	s.Require().NoError(err)

	got, err := s.service.ResolveLink(s.ctx, created.Code)
	s.Require().NoError(err)
	s.Equal(created.ID, got.ID)
}

func (s *LinkServiceSuite) TestURL() {
	s.Equal("https://copymindset.ai/?ref=ABC12345", s.service.URL("ABC12345"))
}
