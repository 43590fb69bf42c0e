package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/vytor/hanziflash/internal/models"
	"github.com/vytor/hanziflash/internal/repository"
	"github.com/vytor/hanziflash/internal/repository/sqlite"
	"github.com/vytor/hanziflash/internal/testutil"
)

type CardStoreSuite struct {
	suite.Suite
	store repository.CardStore
}

func (s *CardStoreSuite) SetupTest() {
	s.store = sqlite.NewCardStore(testutil.NewTestProvider(s.T()))
}

func (s *CardStoreSuite) TestPutAndGet() {
	ctx := context.Background()
	card := testutil.Card("c1", "你好", "https://x/a.mp3")
	card.Comment = models.StringPtr("greeting")
	card.ReferenceID = models.StringPtr("cedict-42")

	err := s.store.Put(ctx, models.CachedCard{Card: card, CollectionIDs: []string{"col-a"}, CachedAt: time.Now()})
	s.Require().NoError(err)

	got, err := s.store.Get(ctx, "c1")
	s.Require().NoError(err)
	s.Require().NotNil(got)
	s.Assert().Equal(card, got.Card)
	s.Assert().Equal([]string{"col-a"}, got.CollectionIDs)
	s.Assert().False(got.CachedAt.IsZero())
}

func (s *CardStoreSuite) TestPutOverwrites() {
	ctx := context.Background()
	card := testutil.Card("c1", "你好", "")
	s.Require().NoError(s.store.Put(ctx, models.CachedCard{Card: card, CollectionIDs: []string{"col-a"}, CachedAt: time.Now()}))

	card.Mastered = true
	card.Pinyin = "ni3 hao3"
	s.Require().NoError(s.store.Put(ctx, models.CachedCard{Card: card, CachedAt: time.Now()}))

	got, err := s.store.Get(ctx, "c1")
	s.Require().NoError(err)
	s.Assert().Equal(card, got.Card)
	s.Assert().Empty(got.CollectionIDs)
	s.Assert().NotNil(got.CollectionIDs)
}

func (s *CardStoreSuite) TestPut_NormalizesTimestampsToUTC() {
	ctx := context.Background()
	beijing := time.FixedZone("CST", 8*60*60)
	card := testutil.Card("c1", "你好", "")
	card.CreatedAt = time.Date(2024, 3, 1, 20, 0, 0, 0, beijing)
	cachedAt := time.Date(2024, 5, 1, 16, 0, 0, 0, beijing)

	s.Require().NoError(s.store.Put(ctx, models.CachedCard{Card: card, CachedAt: cachedAt}))

	got, err := s.store.Get(ctx, "c1")
	s.Require().NoError(err)
	s.Assert().Same(time.UTC, got.Card.CreatedAt.Location())
	s.Assert().True(card.CreatedAt.Equal(got.Card.CreatedAt))
	s.Assert().Equal(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), got.Card.CreatedAt)
	s.Assert().Equal(time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC), got.CachedAt)

	all, err := s.store.GetAll(ctx)
	s.Require().NoError(err)
	s.Require().Len(all, 1)
	s.Assert().Equal(got.Card, all[0].Card)
}

func (s *CardStoreSuite) TestGet_NotFound() {
	got, err := s.store.Get(context.Background(), "missing")
	s.Assert().NoError(err)
	s.Assert().Nil(got)
}

func (s *CardStoreSuite) TestDelete_MissingIsNotAnError() {
	ctx := context.Background()
	s.Require().NoError(s.store.Put(ctx, models.CachedCard{Card: testutil.Card("c1", "你好", ""), CachedAt: time.Now()}))

	s.Assert().NoError(s.store.Delete(ctx, "c1"))
	s.Assert().NoError(s.store.Delete(ctx, "c1"))

	got, err := s.store.Get(ctx, "c1")
	s.Require().NoError(err)
	s.Assert().Nil(got)
}

func (s *CardStoreSuite) TestGetAllAndClear() {
	ctx := context.Background()
	older := testutil.Card("c1", "你好", "")
	newer := testutil.Card("c2", "谢谢", "")
	newer.CreatedAt = older.CreatedAt.Add(time.Hour)

	s.Require().NoError(s.store.Put(ctx, models.CachedCard{Card: older, CachedAt: time.Now()}))
	s.Require().NoError(s.store.Put(ctx, models.CachedCard{Card: newer, CachedAt: time.Now()}))

	all, err := s.store.GetAll(ctx)
	s.Require().NoError(err)
	s.Require().Len(all, 2)
	s.Assert().Equal("c2", all[0].Card.ID)
	s.Assert().Equal("c1", all[1].Card.ID)

	s.Require().NoError(s.store.Clear(ctx))
	all, err = s.store.GetAll(ctx)
	s.Require().NoError(err)
	s.Assert().Empty(all)
}

func (s *CardStoreSuite) TestUpdateCollections() {
	ctx := context.Background()
	card := testutil.Card("c1", "你好", "https://x/a.mp3")
	s.Require().NoError(s.store.Put(ctx, models.CachedCard{Card: card, CollectionIDs: []string{"col-a"}, CachedAt: time.Now()}))

	updated, err := s.store.UpdateCollections(ctx, "c1", []string{"col-b", "col-c"})
	s.Require().NoError(err)
	s.Assert().True(updated)

	got, err := s.store.Get(ctx, "c1")
	s.Require().NoError(err)
	s.Assert().Equal(card, got.Card, "snapshot untouched")
	s.Assert().Equal([]string{"col-b", "col-c"}, got.CollectionIDs)

	updated, err = s.store.UpdateCollections(ctx, "c2", []string{"col-a"})
	s.Require().NoError(err)
	s.Assert().False(updated)

	missing, err := s.store.Get(ctx, "c2")
	s.Require().NoError(err)
	s.Assert().Nil(missing)
}

func TestCardStoreSuite(t *testing.T) {
	suite.Run(t, new(CardStoreSuite))
}
